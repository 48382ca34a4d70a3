package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Output is the JSON structure the host expects on stdout when a hook adds
// context to the conversation.
type Output struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// WriteOutput writes a context response for eventName to w.
func WriteOutput(w io.Writer, eventName, context string) error {
	out := Output{}
	out.HookSpecificOutput.HookEventName = eventName
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}

// ExitError logs to stderr and returns; hooks never fail the host.
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "attend hook: %v\n", err)
}
