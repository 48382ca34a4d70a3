// Package transcript reads conversation replays as focus turns.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lazypower/attend/internal/focus"
)

// DefaultStep spaces turns that carry no timestamp.
const DefaultStep = time.Minute

// line is the union of the two accepted shapes: native turn lines carry
// content at the top level, chat lines wrap it in message.
type line struct {
	// native
	Content   *string        `json:"content"`
	Timestamp string         `json:"timestamp"`
	Entities  []string       `json:"entities"`
	Intent    string         `json:"intent"`
	Emotion   string         `json:"emotion"`
	Context   map[string]any `json:"context"`

	// chat
	Type    string          `json:"type"` // "user", "assistant", "system"
	Message json.RawMessage `json:"message"`
}

// message is the chat-style payload.
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"` // string or []contentItem
}

// contentItem is a single content block (text, tool_use, tool_result).
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// Parser turns JSONL lines into turns, stamping untimed turns Step after
// the previous one (or at Start for the first).
type Parser struct {
	Start time.Time
	Step  time.Duration
}

// ParseFile reads a JSONL replay file with a Parser starting now.
func ParseFile(path string) ([]focus.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parser{Start: time.Now().UTC()}.Parse(f)
}

// ParseLines parses replay content from a string.
func ParseLines(content string) ([]focus.Turn, error) {
	return Parser{Start: time.Now().UTC()}.Parse(strings.NewReader(content))
}

// Parse reads turns from r. Malformed lines, assistant and system lines,
// and lines without text are skipped.
func (p Parser) Parse(r io.Reader) ([]focus.Turn, error) {
	step := p.Step
	if step <= 0 {
		step = DefaultStep
	}
	next := p.Start

	var turns []focus.Turn
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		turn, ok := parseLine([]byte(raw))
		if !ok {
			continue
		}
		if turn.Timestamp.IsZero() {
			turn.Timestamp = next
		}
		next = turn.Timestamp.Add(step)
		turns = append(turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return turns, nil
}

func parseLine(raw []byte) (focus.Turn, bool) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return focus.Turn{}, false
	}
	ts := parseTime(l.Timestamp)

	if l.Content != nil {
		text := clean(*l.Content)
		if text == "" {
			return focus.Turn{}, false
		}
		return focus.Turn{
			Content:   text,
			Timestamp: ts,
			Entities:  l.Entities,
			Intent:    l.Intent,
			Emotion:   l.Emotion,
			Context:   l.Context,
		}, true
	}

	if l.Type != "user" || l.Message == nil {
		return focus.Turn{}, false
	}
	var msg message
	if err := json.Unmarshal(l.Message, &msg); err != nil {
		return focus.Turn{}, false
	}
	text := clean(extractText(msg.Content))
	// Tool results arrive as user lines carrying JSON payloads.
	if text == "" || strings.HasPrefix(text, "{") {
		return focus.Turn{}, false
	}
	return focus.Turn{Content: text, Timestamp: ts}, true
}

func clean(text string) string {
	return strings.TrimSpace(systemReminderRe.ReplaceAllString(text, ""))
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of content items.
func extractText(raw json.RawMessage) string {
	// Try as string first
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	// Try as array of content items
	var items []contentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return ""
}
