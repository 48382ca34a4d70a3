package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lazypower/attend/internal/llm"
)

// maxContextEvents bounds the pool entries rendered into context.
const maxContextEvents = 5

// isInternalPrompt reports whether the prompt came from attend's own model
// calls rather than the user. Only a leading sentinel counts.
func isInternalPrompt(prompt string) bool {
	return strings.HasPrefix(prompt, llm.InternalSentinel)
}

// attentionState is the subset of /api/turns, /api/focuses and /api/pool
// responses the hook renders.
type attentionState struct {
	Active  []focusView `json:"active"`
	Focuses []focusView `json:"focuses"`
	Pool    []poolView  `json:"pool"`
}

type focusView struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

type poolView struct {
	Node struct {
		ID       string     `json:"id"`
		StartAt  *time.Time `json:"start_at"`
		Location string     `json:"location"`
		Purpose  string     `json:"purpose"`
		Result   string     `json:"result"`
	} `json:"node"`
	Composite float64 `json:"composite"`
}

func handleSubmit(client *Client, input *HookInput, stdout io.Writer) {
	// Guard: skip prompts from attend's own LLM calls to prevent recursion.
	if isInternalPrompt(input.Prompt) || strings.TrimSpace(input.Prompt) == "" {
		return
	}

	body, err := json.Marshal(map[string]any{
		"content": input.Prompt,
		"context": map[string]string{
			"session_id": input.SessionID,
			"cwd":        input.CWD,
		},
	})
	if err != nil {
		ExitError(err)
		return
	}

	data, err := client.Post("/api/turns", body)
	if err != nil {
		ExitError(err)
		return
	}

	var state attentionState
	if err := json.Unmarshal(data, &state); err != nil {
		ExitError(fmt.Errorf("decode turn response: %w", err))
		return
	}
	if ctx := state.render(maxContextEvents); ctx != "" {
		WriteOutput(stdout, "UserPromptSubmit", ctx)
	}
}

// render formats focuses and the best pool entries as a context block.
// An empty state renders as "".
func (s attentionState) render(limit int) string {
	foci := s.Active
	if len(foci) == 0 {
		foci = s.Focuses
	}
	if len(foci) == 0 && len(s.Pool) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<attention>\n")
	if len(foci) > 0 {
		labels := make([]string, len(foci))
		for i, f := range foci {
			labels[i] = f.Label
		}
		fmt.Fprintf(&b, "Focus: %s\n", strings.Join(labels, ", "))
	}
	if len(s.Pool) > 0 {
		b.WriteString("Relevant events:\n")
		for i, p := range s.Pool {
			if i == limit {
				break
			}
			b.WriteString("- ")
			b.WriteString(describe(p))
			b.WriteString("\n")
		}
	}
	b.WriteString("</attention>")
	return b.String()
}

func describe(p poolView) string {
	n := p.Node
	text := n.Purpose
	if n.Result != "" {
		if text != "" {
			text += ": "
		}
		text += n.Result
	}
	if text == "" {
		text = n.ID
	}
	var where []string
	if n.Location != "" {
		where = append(where, n.Location)
	}
	if n.StartAt != nil {
		where = append(where, n.StartAt.Format("2006-01-02"))
	}
	if len(where) > 0 {
		text += " (" + strings.Join(where, ", ") + ")"
	}
	return text
}
