// Package hooks feeds an agent host's prompts to a running attend server and
// returns the current attention state as additional context.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// Handle reads HookInput from stdin, dispatches on event, and writes any
// context to stdout. It never fails the host: errors go to stderr.
func Handle(event string, stdin io.Reader, stdout io.Writer) {
	handle(NewClient(), event, stdin, stdout)
}

func handle(client *Client, event string, stdin io.Reader, stdout io.Writer) {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		// Stdin may be empty for some events; degrade gracefully
		if event == "start" {
			WriteOutput(stdout, "SessionStart", "")
			return
		}
		ExitError(fmt.Errorf("decode stdin: %w", err))
		return
	}

	// Check server health and stay quiet when it is down
	if !client.Healthy() {
		if event == "start" {
			WriteOutput(stdout, "SessionStart", "")
		}
		return
	}

	switch event {
	case "start":
		handleStart(client, &input, stdout)
	case "submit":
		handleSubmit(client, &input, stdout)
	default:
		ExitError(fmt.Errorf("unknown hook event: %s", event))
	}
}
