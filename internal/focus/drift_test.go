package focus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftProbability(t *testing.T) {
	d := NewDriftModel(0)
	d.Record(FocusTransition{From: "a", To: "b", Strength: 1})
	d.Record(FocusTransition{From: "a", To: "b", Strength: 1})
	d.Record(FocusTransition{From: "a", To: "c", Strength: 1})
	d.Record(FocusTransition{From: "a", To: "a", Strength: 1})

	assert.Equal(t, 3, d.Len(), "self transitions are ignored")
	assert.InDelta(t, 2.0/3.0, d.Probability("a", "b"), 1e-12)
	assert.InDelta(t, 1.0/3.0, d.Probability("a", "c"), 1e-12)
	assert.Equal(t, 0.0, d.Probability("b", "a"))

	assert.InDelta(t, 2.0/3.0, d.Score("b", []string{"a", "b"}), 1e-12)
	assert.Equal(t, 0.0, d.Score("a", []string{"a"}))

	pred := d.Predict("a", 1)
	require.Len(t, pred, 1)
	assert.Equal(t, "b", pred[0].ID)
}

func TestDriftHistoryBounded(t *testing.T) {
	d := NewDriftModel(DefaultTransitionCap)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		d.Record(FocusTransition{At: base.Add(time.Duration(i) * time.Second), From: "x", To: fmt.Sprintf("y%d", i%5), Strength: 1})
	}
	assert.Equal(t, DefaultTransitionCap, d.Len())
	assert.Equal(t, base.Add(249*time.Second), d.LastTransitionAt())
	assert.Equal(t, base.Add(50*time.Second), d.History()[0].At)

	// Evicted transitions no longer contribute strength.
	var total float64
	for i := 0; i < 5; i++ {
		total += d.Probability("x", fmt.Sprintf("y%d", i))
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.InDelta(t, 0.2, d.Probability("x", "y0"), 1e-9)
}

func TestDriftForget(t *testing.T) {
	d := NewDriftModel(10)
	d.Record(FocusTransition{From: "a", To: "b", Strength: 1})
	d.Record(FocusTransition{From: "b", To: "c", Strength: 1})
	d.Forget("b")

	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0.0, d.Probability("a", "b"))
	assert.Empty(t, d.Predict("b", 0))
}
