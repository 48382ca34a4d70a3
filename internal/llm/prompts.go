package llm

import (
	"fmt"
	"strings"
)

// InternalSentinel prefixes every prompt attend sends to a model. A
// claude-cli call starts a new agent session whose hooks fire back into
// attend; the hook client drops prompts carrying this prefix.
const InternalSentinel = "[attend-internal]"

// FocusExtractionPrompt asks for the things a user is attending to in the
// current turn. history holds the most recent prior turns, oldest first.
func FocusExtractionPrompt(current string, history []string, entities []string) string {
	var ctx strings.Builder
	if len(history) == 0 {
		ctx.WriteString("(no earlier turns)\n")
	}
	for i, h := range history {
		fmt.Fprintf(&ctx, "%d. %s\n", i+1, strings.TrimSpace(h))
	}

	known := "(none)"
	if len(entities) > 0 {
		known = strings.Join(entities, ", ")
	}

	return InternalSentinel + " " + fmt.Sprintf(`You track what a user is paying attention to in a conversation.

RECENT TURNS:
%s
CURRENT TURN:
%s

ENTITIES ALREADY DETECTED: %s

List the focus points of the CURRENT TURN. A focus point is one of:
- event: something that happened or will happen ("yesterday's standup", "the product launch")
- topic: a subject under discussion ("state management", "budget")
- entity: a person, place, product or organisation ("Alice", "Flutter")

Rules:
- Use short canonical labels, 1-4 words, in the language of the conversation
- Put alternative names for the same thing in aliases
- emotion is the intensity of feeling attached to the focus, 0.0 to 1.0
- related lists labels from the recent turns this focus is connected to
- Very short or content-free turns may have no focus points
- Return ONLY a JSON array, no other text

Return a JSON array:
[{
  "label": "canonical label",
  "type": "event|topic|entity",
  "aliases": ["other name"],
  "emotion": 0.0,
  "related": ["label"]
}]

If there is nothing to track, return: []`, ctx.String(), strings.TrimSpace(current), known)
}
