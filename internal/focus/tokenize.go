package focus

import (
	"strings"
	"unicode"
)

// Tokenizer splits a normalized label into tokens for fuzzy matching.
type Tokenizer interface {
	Tokens(s string) []string
}

// WhitespaceTokenizer splits on Unicode whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokens(s string) []string {
	return strings.Fields(s)
}

// ScriptTokenizer emits one token per rune for scripts written without word
// separators (Han, Hiragana, Katakana, Hangul) and letter/digit runs for
// everything else. Punctuation and spaces only separate tokens.
type ScriptTokenizer struct{}

func (ScriptTokenizer) Tokens(s string) []string {
	var tokens []string
	var run strings.Builder

	flush := func() {
		if run.Len() > 0 {
			tokens = append(tokens, run.String())
			run.Reset()
		}
	}

	for _, r := range s {
		switch {
		case isSegmentedScript(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isSegmentedScript(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Jaccard is |A∩B| / |A∪B| over the token sets of a and b.
// Two empty sets have similarity 0.
func Jaccard(tok Tokenizer, a, b string) float64 {
	setA := tokenSet(tok.Tokens(a))
	setB := tokenSet(tok.Tokens(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// normalize lowercases and collapses whitespace so labels compare stably.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
