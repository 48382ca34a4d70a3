package focus

import (
	"time"
)

// Type tags what kind of thing a focus point refers to.
type Type string

const (
	TypeEvent  Type = "event"
	TypeTopic  Type = "topic"
	TypeEntity Type = "entity"
)

// State is the lifecycle tier of a focus point.
type State string

const (
	StateEmerging   State = "emerging"
	StateActive     State = "active"
	StateBackground State = "background"
	StateLatent     State = "latent"
	StateFading     State = "fading"
)

// MaxMentions bounds the mention timestamps kept per focus point.
const MaxMentions = 100

// Scores holds the per-dimension attention scores of a focus point.
// Every component is in [0,1]; Salience is their weighted sum.
type Scores struct {
	Salience   float64 `json:"salience"`
	Recency    float64 `json:"recency"`
	Repetition float64 `json:"repetition"`
	Emotion    float64 `json:"emotion"`
	Causal     float64 `json:"causal"`
	Drift      float64 `json:"drift"`
}

// FocusPoint is a tracked unit of user attention.
type FocusPoint struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Label    string   `json:"label"`
	Aliases  []string `json:"aliases,omitempty"`
	State    State    `json:"state"`
	Scores   Scores   `json:"scores"`
	Mentions int      `json:"mention_count"`

	FirstSeen   time.Time   `json:"first_seen"`
	LastUpdated time.Time   `json:"last_updated"`
	MentionedAt []time.Time `json:"mentioned_at,omitempty"`

	Linked   []string          `json:"linked,omitempty"`
	Features map[string]any    `json:"features,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// clone returns a deep copy for handing out snapshots.
func (f *FocusPoint) clone() FocusPoint {
	c := *f
	c.Aliases = append([]string(nil), f.Aliases...)
	c.MentionedAt = append([]time.Time(nil), f.MentionedAt...)
	c.Linked = append([]string(nil), f.Linked...)
	if f.Features != nil {
		c.Features = make(map[string]any, len(f.Features))
		for k, v := range f.Features {
			c.Features[k] = v
		}
	}
	if f.Metadata != nil {
		c.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// FocusTransition records a move of attention between two foci.
type FocusTransition struct {
	At       time.Time `json:"at"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to"`
	Strength float64   `json:"strength"`
	Reason   string    `json:"reason"`
}

// Turn is one conversational turn as delivered by the understanding pipeline.
type Turn struct {
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Entities  []string       `json:"entities,omitempty"`
	Intent    string         `json:"intent,omitempty"`
	Emotion   string         `json:"emotion,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Candidate is a proposed focus produced by an extractor.
type Candidate struct {
	Label    string            `json:"label"`
	Type     Type              `json:"type"`
	Aliases  []string          `json:"aliases,omitempty"`
	Emotion  float64           `json:"emotion,omitempty"`
	Related  []string          `json:"related,omitempty"`
	Features map[string]any    `json:"features,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Statistics summarises the tracker for diagnostics.
type Statistics struct {
	Total       int           `json:"total"`
	ByState     map[State]int `json:"by_state"`
	ByType      map[Type]int  `json:"by_type"`
	Transitions int           `json:"transitions"`
	History     int           `json:"history"`
	Threshold   float64       `json:"threshold"`
}

// IngestResult describes what a single Ingest call did.
type IngestResult struct {
	// Source names the strategy that produced candidates; empty when none did.
	Source          string   `json:"source,omitempty"`
	ExtractionEmpty bool     `json:"extraction_empty"`
	Candidates      int      `json:"candidates"`
	Created         []string `json:"created,omitempty"`
	Merged          []string `json:"merged,omitempty"`
	Promoted        int      `json:"promoted"`
	Pruned          int      `json:"pruned"`
	Active          int      `json:"active"`
}
