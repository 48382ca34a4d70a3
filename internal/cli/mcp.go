package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/attend/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the attend tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), os.Stderr)
		if err != nil {
			return err
		}
		defer rt.Close()
		return mcpserver.Serve(rt.engine, VersionString())
	},
}
