package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lazypower/attend/internal/event"
)

func at(t time.Time) *time.Time { return &t }

func TestHardConstraints(t *testing.T) {
	start := now.Add(-3 * time.Hour)
	end := now.Add(-time.Hour)
	node := &event.Node{StartAt: &start, EndAt: &end, Location: "Shanghai Hongqiao Airport", Entities: []string{"Alice", "Bob"}}
	bare := &event.Node{}

	tests := []struct {
		name string
		c    Constraint
		q    Query
		n    *event.Node
		want bool
	}{
		{"window unset", TimeWindow{}, Query{}, bare, true},
		{"window overlaps", TimeWindow{}, Query{Window: &TimeRange{Start: now.Add(-2 * time.Hour), End: now}}, node, true},
		{"window after", TimeWindow{}, Query{Window: &TimeRange{Start: now.Add(-30 * time.Minute), End: now}}, node, false},
		{"window before", TimeWindow{}, Query{Window: &TimeRange{Start: now.Add(-10 * time.Hour), End: now.Add(-5 * time.Hour)}}, node, false},
		{"window no start", TimeWindow{}, Query{Window: &TimeRange{Start: now.Add(-time.Hour)}}, bare, false},
		{"location unset", LocationMatch{}, Query{}, bare, true},
		{"location substring", LocationMatch{}, Query{Location: "hongqiao"}, node, true},
		{"location exact miss", LocationMatch{Exact: true}, Query{Location: "hongqiao"}, node, false},
		{"location exact hit", LocationMatch{Exact: true}, Query{Location: "shanghai hongqiao airport"}, node, true},
		{"location missing", LocationMatch{}, Query{Location: "x"}, bare, false},
		{"entities unset", RequiredEntities{}, Query{}, bare, true},
		{"entities all present", RequiredEntities{}, Query{EntityIDs: []string{"alice", "Bob"}}, node, true},
		{"entities one missing", RequiredEntities{}, Query{EntityIDs: []string{"Alice", "Carol"}}, node, false},
		{"entities node empty", RequiredEntities{}, Query{EntityIDs: []string{"Alice"}}, bare, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Hard, tt.c.Kind())
			assert.Equal(t, tt.want, tt.c.Evaluate(tt.n, tt.q).Pass)
		})
	}
}

func TestSoftConstraints(t *testing.T) {
	prox := TemporalProximity{MaxDistance: 10 * 24 * time.Hour}
	assert.InDelta(t, 0.5, prox.Evaluate(&event.Node{StartAt: at(now.Add(-5 * 24 * time.Hour))}, Query{Time: now}).Score, 1e-12)
	assert.InDelta(t, 0.5, prox.Evaluate(&event.Node{StartAt: at(now.Add(5 * 24 * time.Hour))}, Query{Time: now}).Score, 1e-12)
	assert.Equal(t, 0.0, prox.Evaluate(&event.Node{StartAt: at(now.Add(-30 * 24 * time.Hour))}, Query{Time: now}).Score)
	assert.Equal(t, 0.0, prox.Evaluate(&event.Node{}, Query{Time: now}).Score)

	loc := LocationSimilarity{}
	assert.InDelta(t, 1.0/3.0, loc.Evaluate(&event.Node{Location: "Berlin office"}, Query{Location: "Berlin, home"}).Score, 1e-12)
	assert.Equal(t, 0.0, loc.Evaluate(&event.Node{}, Query{Location: "Berlin"}).Score)

	fresh := Freshness{Window: 48 * time.Hour}
	assert.InDelta(t, 0.5, fresh.Evaluate(&event.Node{LastSeen: now.Add(-24 * time.Hour)}, Query{Time: now}).Score, 1e-12)
	assert.InDelta(t, 0.75, fresh.Evaluate(&event.Node{LastSeen: now.Add(-40 * time.Hour), UpdatedAt: now.Add(-12 * time.Hour)}, Query{Time: now}).Score, 1e-12)
	assert.Equal(t, 0.0, fresh.Evaluate(&event.Node{LastSeen: now.Add(-72 * time.Hour)}, Query{Time: now}).Score)

	for _, c := range []Constraint{prox, loc, fresh, SemanticDrift{}} {
		assert.Equal(t, Soft, c.Kind())
		assert.True(t, c.Evaluate(&event.Node{}, Query{}).Pass)
	}
	assert.Equal(t, 0.0, SemanticDrift{}.Evaluate(&event.Node{LastSeen: now}, Query{Time: now, Text: "anything"}).Score)
}

func TestEvaluateCombines(t *testing.T) {
	cs := DefaultConstraints(48*time.Hour, 30*24*time.Hour)
	n := &event.Node{LastSeen: now.Add(-24 * time.Hour), Location: "Berlin"}

	scores, sum, ok := Evaluate(cs, n, Query{Time: now, Location: "berlin"})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, scores["freshness"], 1e-12)
	assert.InDelta(t, 1.0, scores["location_similarity"], 1e-12)
	assert.InDelta(t, 1.5, sum, 1e-12)
	assert.Len(t, scores, 4)

	_, _, ok = Evaluate(cs, n, Query{Time: now, EntityIDs: []string{"Alice"}})
	assert.False(t, ok)
}
