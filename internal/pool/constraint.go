package pool

import (
	"strings"
	"time"
	"unicode"

	"github.com/lazypower/attend/internal/event"
)

// Kind separates filtering constraints from scoring ones.
type Kind int

const (
	// Hard constraints remove failing candidates.
	Hard Kind = iota
	// Soft constraints always pass and add a non-negative score.
	Soft
)

func (k Kind) String() string {
	if k == Hard {
		return "hard"
	}
	return "soft"
}

// TimeRange is an inclusive interval.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Query is the retrieval context shared by every topic in a round.
type Query struct {
	Time      time.Time      `json:"time"`
	Location  string         `json:"location,omitempty"`
	EntityIDs []string       `json:"entity_ids,omitempty"`
	Window    *TimeRange     `json:"window,omitempty"`
	Text      string         `json:"text,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Outcome is a constraint's verdict on one node.
type Outcome struct {
	Pass  bool
	Score float64
}

// Constraint judges a candidate against a query.
type Constraint interface {
	Name() string
	Kind() Kind
	Evaluate(n *event.Node, q Query) Outcome
}

func pass(score float64) Outcome { return Outcome{Pass: true, Score: score} }

var fail = Outcome{}

// TimeWindow keeps nodes whose [start, end] overlaps the query window.
// Nodes without a start time fail when a window is set.
type TimeWindow struct{}

func (TimeWindow) Name() string { return "time_window" }
func (TimeWindow) Kind() Kind   { return Hard }

func (TimeWindow) Evaluate(n *event.Node, q Query) Outcome {
	if q.Window == nil {
		return pass(0)
	}
	if n.StartAt == nil {
		return fail
	}
	start := *n.StartAt
	end := start
	if n.EndAt != nil && n.EndAt.After(start) {
		end = *n.EndAt
	}
	if end.Before(q.Window.Start) || (!q.Window.End.IsZero() && start.After(q.Window.End)) {
		return fail
	}
	return pass(0)
}

// LocationMatch keeps nodes at the query location, exactly (case-insensitive)
// or as a substring in either direction.
type LocationMatch struct {
	Exact bool
}

func (LocationMatch) Name() string { return "location_match" }
func (LocationMatch) Kind() Kind   { return Hard }

func (c LocationMatch) Evaluate(n *event.Node, q Query) Outcome {
	want := strings.ToLower(strings.TrimSpace(q.Location))
	if want == "" {
		return pass(0)
	}
	have := strings.ToLower(strings.TrimSpace(n.Location))
	if have == "" {
		return fail
	}
	if c.Exact {
		if have == want {
			return pass(0)
		}
		return fail
	}
	if strings.Contains(have, want) || strings.Contains(want, have) {
		return pass(0)
	}
	return fail
}

// RequiredEntities keeps nodes mentioning every entity in the query.
type RequiredEntities struct{}

func (RequiredEntities) Name() string { return "required_entities" }
func (RequiredEntities) Kind() Kind   { return Hard }

func (RequiredEntities) Evaluate(n *event.Node, q Query) Outcome {
	if len(q.EntityIDs) == 0 {
		return pass(0)
	}
	have := make(map[string]bool, len(n.Entities))
	for _, e := range n.Entities {
		have[strings.ToLower(e)] = true
	}
	for _, want := range q.EntityIDs {
		if !have[strings.ToLower(want)] {
			return fail
		}
	}
	return pass(0)
}

// TemporalProximity scores 1 at the query time, falling linearly to 0 at
// MaxDistance from it.
type TemporalProximity struct {
	MaxDistance time.Duration
}

func (TemporalProximity) Name() string { return "temporal_proximity" }
func (TemporalProximity) Kind() Kind   { return Soft }

func (c TemporalProximity) Evaluate(n *event.Node, q Query) Outcome {
	if n.StartAt == nil || q.Time.IsZero() || c.MaxDistance <= 0 {
		return pass(0)
	}
	dist := q.Time.Sub(*n.StartAt)
	if dist < 0 {
		dist = -dist
	}
	return pass(linear(dist, c.MaxDistance))
}

// LocationSimilarity scores the token overlap of the two locations.
type LocationSimilarity struct{}

func (LocationSimilarity) Name() string { return "location_similarity" }
func (LocationSimilarity) Kind() Kind   { return Soft }

func (LocationSimilarity) Evaluate(n *event.Node, q Query) Outcome {
	a, b := locationTokens(n.Location), locationTokens(q.Location)
	if len(a) == 0 || len(b) == 0 {
		return pass(0)
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return pass(float64(inter) / float64(len(a)+len(b)-inter))
}

func locationTokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[t] = true
	}
	return set
}

// Freshness boosts nodes seen or updated within Window, decaying linearly.
type Freshness struct {
	Window time.Duration
}

func (Freshness) Name() string { return "freshness" }
func (Freshness) Kind() Kind   { return Soft }

func (c Freshness) Evaluate(n *event.Node, q Query) Outcome {
	last := n.LastSeen
	if n.UpdatedAt.After(last) {
		last = n.UpdatedAt
	}
	if last.IsZero() || q.Time.IsZero() || c.Window <= 0 {
		return pass(0)
	}
	age := q.Time.Sub(last)
	if age < 0 {
		age = 0
	}
	return pass(linear(age, c.Window))
}

// SemanticDrift is an extension point for penalising nodes that drift from
// the conversation. It currently contributes nothing.
type SemanticDrift struct{}

func (SemanticDrift) Name() string                        { return "semantic_drift" }
func (SemanticDrift) Kind() Kind                          { return Soft }
func (SemanticDrift) Evaluate(*event.Node, Query) Outcome { return pass(0) }

// linear is 1 at d=0 falling to 0 at d>=limit.
func linear(d, limit time.Duration) float64 {
	if d >= limit {
		return 0
	}
	return 1 - float64(d)/float64(limit)
}

// DefaultConstraints returns the built-in constraint set.
func DefaultConstraints(freshness, proximity time.Duration) []Constraint {
	return []Constraint{
		TimeWindow{},
		LocationMatch{},
		RequiredEntities{},
		TemporalProximity{MaxDistance: proximity},
		LocationSimilarity{},
		Freshness{Window: freshness},
		SemanticDrift{},
	}
}

// Evaluate applies constraints to n. ok is false when any hard constraint
// fails; scores holds each soft constraint's contribution.
func Evaluate(cs []Constraint, n *event.Node, q Query) (scores map[string]float64, sum float64, ok bool) {
	scores = make(map[string]float64)
	for _, c := range cs {
		out := c.Evaluate(n, q)
		if c.Kind() == Hard {
			if !out.Pass {
				return nil, 0, false
			}
			continue
		}
		s := out.Score
		if s < 0 {
			s = 0
		}
		scores[c.Name()] = s
		sum += s
	}
	return scores, sum, true
}
