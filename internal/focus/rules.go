package focus

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// RuleExtractor is the deterministic fallback extractor. It never calls out
// to another process and never fails.
type RuleExtractor struct {
	// NER enables prose named-entity recognition on the turn content.
	NER bool
}

// NewRuleExtractor returns a RuleExtractor with NER enabled.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{NER: true}
}

var eventPhrase = regexp.MustCompile(`(?i)\b(yesterday|today|tonight|tomorrow|last\s+(?:week|month|year|night)|this\s+(?:week|morning|afternoon|evening))(?:'s)?\s+([\p{L}][\p{L}\p{N}-]{2,})`)

var skipWords = map[string]bool{
	"I": true, "The": true, "A": true, "An": true, "This": true, "That": true,
	"It": true, "Is": true, "Are": true, "Was": true, "Were": true,
	"He": true, "She": true, "They": true, "We": true, "You": true,
	"My": true, "Your": true, "His": true, "Her": true, "Its": true, "Our": true,
	"What": true, "When": true, "Where": true, "Who": true, "Why": true, "How": true,
	"But": true, "And": true, "Or": true, "So": true, "If": true, "Then": true,
	"Yes": true, "No": true, "Ok": true, "Okay": true, "Sure": true, "Thanks": true,
	"Hello": true, "Hi": true, "Hey": true, "Bye": true, "Let's": true, "Please": true,
}

// Extract derives candidates from supplied entity labels, named entities,
// capitalised terms, the intent label and temporal event phrases.
func (r *RuleExtractor) Extract(_ context.Context, turn Turn, _ []Turn) ([]Candidate, error) {
	var out []Candidate
	seen := make(map[string]bool)

	add := func(label string, typ Type, meta map[string]string) {
		label = strings.TrimSpace(label)
		key := normalize(label)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Candidate{
			Label:    label,
			Type:     typ,
			Emotion:  EmotionWeight(turn.Emotion),
			Metadata: meta,
		})
	}

	for _, e := range turn.Entities {
		add(e, TypeEntity, map[string]string{"source": "pipeline"})
	}

	for _, m := range eventPhrase.FindAllStringSubmatch(turn.Content, -1) {
		add(m[2], TypeEvent, map[string]string{"source": "temporal", "when": strings.ToLower(m[1])})
	}

	if r.NER {
		for _, name := range namedEntities(turn.Content) {
			add(name, TypeEntity, map[string]string{"source": "ner"})
		}
	}

	for _, w := range capitalized(turn.Content) {
		add(w, TypeEntity, map[string]string{"source": "heuristic"})
	}

	if turn.Intent != "" {
		add(turn.Intent, TypeTopic, map[string]string{"source": "intent"})
	}

	return out, nil
}

func namedEntities(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	var names []string
	for _, ent := range doc.Entities() {
		switch strings.ToUpper(ent.Label) {
		case "DATE", "TIME", "MONEY", "PERCENT", "QUANTITY", "CARDINAL", "ORDINAL":
			continue
		}
		names = append(names, ent.Text)
	}
	return names
}

// capitalized finds capitalised words that do not start a sentence.
func capitalized(text string) []string {
	var out []string
	words := strings.Fields(text)
	for i, word := range words {
		clean := strings.Trim(word, ".,!?;:'\"()[]{}@#")
		if clean == "" || skipWords[clean] {
			continue
		}
		runes := []rune(clean)
		if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
			continue
		}
		if i == 0 || strings.ContainsAny(words[i-1][len(words[i-1])-1:], ".!?") {
			continue
		}
		out = append(out, clean)
	}
	return out
}
