package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/attend/internal/focus"
	"github.com/lazypower/attend/internal/pool"
	"github.com/lazypower/attend/internal/transcript"
)

var (
	replayJSON bool
	replayTop  int
)

var replayCmd = &cobra.Command{
	Use:   "replay <turns.jsonl>",
	Short: "Feed a recorded conversation through the tracker and print attention per turn",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "emit one JSON object per turn")
	replayCmd.Flags().IntVar(&replayTop, "top", 5, "pool entries to show per turn")
}

type replayStep struct {
	Turn   int                `json:"turn"`
	At     time.Time          `json:"at"`
	Result focus.IngestResult `json:"result"`
	Active []string           `json:"active"`
	Pool   []pool.ScoredNode  `json:"pool"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	turns, err := transcript.ParseFile(args[0])
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for i, turn := range turns {
		res, snap := rt.engine.Ingest(cmd.Context(), turn)
		if len(snap) > replayTop {
			snap = snap[:replayTop]
		}
		step := replayStep{Turn: i + 1, At: turn.Timestamp, Result: res, Pool: snap}
		for _, f := range rt.engine.Tracker.Active() {
			step.Active = append(step.Active, f.Label)
		}

		if replayJSON {
			if err := enc.Encode(step); err != nil {
				return err
			}
			continue
		}
		printStep(out, step, turn.Content)
	}
	return nil
}

func printStep(w io.Writer, s replayStep, content string) {
	fmt.Fprintf(w, "#%d %s  %s\n", s.Turn, s.At.Format(time.DateTime), truncate(content, 72))
	fmt.Fprintf(w, "  focus: %s\n", strings.Join(s.Active, ", "))
	for _, e := range s.Pool {
		fmt.Fprintf(w, "  %6.3f  %s\n", e.Composite, describeEvent(e))
	}
}

func describeEvent(e pool.ScoredNode) string {
	n := e.Node
	parts := []string{}
	for _, s := range []string{n.Purpose, n.Result, n.Location} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return n.ID
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
