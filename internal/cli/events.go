package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/attend/internal/event"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage stored events",
}

var eventsImportCmd = &cobra.Command{
	Use:   "import <events.jsonl>",
	Short: "Import events, one JSON object per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsImport,
}

var eventsListLimit int

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently seen events",
	RunE:  runEventsList,
}

func init() {
	eventsListCmd.Flags().IntVar(&eventsListLimit, "limit", 20, "maximum events to list")
	eventsCmd.AddCommand(eventsImportCmd)
	eventsCmd.AddCommand(eventsListCmd)
}

func runEventsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rt, err := openRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	imported, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var n event.Node
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			rt.logger.Warn("skipping line", "line", lineNo, "error", err)
			continue
		}
		if err := rt.engine.AddEvent(ctx, &n); err != nil {
			rt.logger.Warn("skipping event", "line", lineNo, "error", err)
			continue
		}
		imported++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	// New documents shift the TF-IDF vocabulary.
	if _, err := rt.engine.Reindex(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d events\n", imported)
	return nil
}

func runEventsList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	nodes, err := rt.db.ListEvents(cmd.Context(), eventsListLimit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return err
		}
	}
	return nil
}
