package hooks

import (
	"encoding/json"
	"io"
)

// handleStart reports the focuses and pool carried over from earlier turns.
func handleStart(client *Client, input *HookInput, stdout io.Writer) {
	var state attentionState

	if data, err := client.Get("/api/focuses?tier=active"); err == nil {
		json.Unmarshal(data, &state)
	}
	if data, err := client.Get("/api/pool"); err == nil {
		json.Unmarshal(data, &state)
	}

	WriteOutput(stdout, "SessionStart", state.render(maxContextEvents))
}
