package focus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lazypower/attend/internal/llm"
)

// Extractor proposes candidate foci for a turn. recent holds the most recent
// prior turns, oldest first. An empty result is a valid outcome.
type Extractor interface {
	Extract(ctx context.Context, turn Turn, recent []Turn) ([]Candidate, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, turn Turn, recent []Turn) ([]Candidate, error)

func (f ExtractorFunc) Extract(ctx context.Context, turn Turn, recent []Turn) ([]Candidate, error) {
	return f(ctx, turn, recent)
}

// maxLLMCandidates caps what a single completion may contribute.
const maxLLMCandidates = 8

// LLMExtractor asks a language model for candidate foci.
type LLMExtractor struct {
	Client llm.Client
}

// NewLLMExtractor wraps client.
func NewLLMExtractor(client llm.Client) *LLMExtractor {
	return &LLMExtractor{Client: client}
}

// llmCandidate is the JSON structure returned by the extraction prompt.
type llmCandidate struct {
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Aliases []string `json:"aliases"`
	Emotion float64  `json:"emotion"`
	Related []string `json:"related"`
}

func (e *LLMExtractor) Extract(ctx context.Context, turn Turn, recent []Turn) ([]Candidate, error) {
	history := make([]string, 0, len(recent))
	for _, t := range recent {
		history = append(history, t.Content)
	}

	resp, err := e.Client.Complete(ctx, llm.FocusExtractionPrompt(turn.Content, history, turn.Entities))
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llm extraction: empty response")
	}

	raw, err := parseExtractionResponse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			continue
		}
		out = append(out, Candidate{
			Label:   label,
			Type:    parseType(c.Type),
			Aliases: c.Aliases,
			Emotion: clamp01(c.Emotion),
			Related: c.Related,
		})
		if len(out) == maxLLMCandidates {
			break
		}
	}
	return out, nil
}

func parseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeEvent:
		return TypeEvent
	case TypeEntity:
		return TypeEntity
	default:
		return TypeTopic
	}
}

// parseExtractionResponse pulls the JSON array out of a completion that may be
// wrapped in code fences or prose.
func parseExtractionResponse(content string) ([]llmCandidate, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(content[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	return candidates, nil
}
