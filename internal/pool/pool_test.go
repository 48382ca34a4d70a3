package pool

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/attend/internal/event"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func scored(id string, emb float64) ScoredNode {
	return ScoredNode{Node: event.Node{ID: id}, EmbeddingScore: emb}
}

func newPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(size, DefaultWeights())
	require.NoError(t, err)
	return p
}

func TestCompositeFormula(t *testing.T) {
	w := DefaultWeights()
	assert.InDelta(t, 0.4*0.8+0.5*1.5+0.1*1, w.Composite(0.8, 1.5, now, now), 1e-12)
	assert.InDelta(t, 0.5, w.RecencyFactor(now.Add(-24*time.Hour), now), 1e-12)
	assert.InDelta(t, 1.0, w.RecencyFactor(now.Add(time.Hour), now), 1e-12)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.ErrorIs(t, Weights{Embedding: -1, StalenessHours: 24}.Validate(), ErrInvalidWeights)
	assert.ErrorIs(t, Weights{Embedding: 1}.Validate(), ErrInvalidWeights)
}

func TestMergeReplacesOnlyOnStrictlyHigher(t *testing.T) {
	p := newPool(t, 5)
	p.Merge([]ScoredNode{scored("a", 0.9)}, now)
	first, ok := p.Get("a")
	require.True(t, ok)

	// Same round time, lower score: kept as is.
	st := p.Merge([]ScoredNode{scored("a", 0.5)}, now)
	assert.Equal(t, 1, st.Kept)
	got, _ := p.Get("a")
	assert.Equal(t, first.EmbeddingScore, got.EmbeddingScore)
	assert.Equal(t, first.UpdatedAt, got.UpdatedAt)

	// Equal score at the same instant: not strictly higher, kept.
	st = p.Merge([]ScoredNode{scored("a", 0.9)}, now)
	assert.Equal(t, 1, st.Kept)

	later := now.Add(time.Hour)
	st = p.Merge([]ScoredNode{scored("a", 1.2)}, later)
	assert.Equal(t, 1, st.Replaced)
	got, _ = p.Get("a")
	assert.Equal(t, 1.2, got.EmbeddingScore)
	assert.Equal(t, later, got.UpdatedAt)
}

func TestMergeKeepsOldEntryTimestampAcrossRounds(t *testing.T) {
	p := newPool(t, 5)
	p.Merge([]ScoredNode{scored("a", 1.0)}, now)

	later := now.Add(2 * time.Hour)
	p.Merge([]ScoredNode{scored("a", 0.2)}, later)

	got, _ := p.Get("a")
	assert.Equal(t, now, got.UpdatedAt)
	// Composite was recomputed against the later time.
	assert.InDelta(t, DefaultWeights().Composite(1.0, 0, now, later), got.Composite, 1e-12)
}

func TestIdenticalRefetchRefreshesAfterTimePasses(t *testing.T) {
	p := newPool(t, 5)
	p.Merge([]ScoredNode{scored("a", 0.8)}, now)

	later := now.Add(time.Minute)
	st := p.Merge([]ScoredNode{scored("a", 0.8)}, later)
	assert.Equal(t, 1, st.Replaced)
	got, _ := p.Get("a")
	assert.Equal(t, later, got.UpdatedAt)
	assert.InDelta(t, DefaultWeights().Composite(0.8, 0, later, later), got.Composite, 1e-12)
}

func TestEvictsLowestCompositeNotOldest(t *testing.T) {
	p := newPool(t, 2)
	p.Merge([]ScoredNode{scored("old-strong", 2.0)}, now)
	st := p.Merge([]ScoredNode{scored("new-weak", 0.1), scored("new-mid", 0.5)}, now.Add(time.Hour))

	assert.Equal(t, 1, st.Evicted)
	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "old-strong", snap[0].Node.ID)
	assert.Equal(t, "new-mid", snap[1].Node.ID)
	_, ok := p.Get("new-weak")
	assert.False(t, ok)
}

func TestPoolBoundAndUniqueness(t *testing.T) {
	p := newPool(t, DefaultMaxSize)
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		var batch []ScoredNode
		for i := 0; i < 30; i++ {
			id := fmt.Sprintf("n%d", rng.Intn(60))
			batch = append(batch, scored(id, rng.Float64()*2))
		}
		p.Merge(batch, now.Add(time.Duration(round)*time.Minute))

		snap := p.Snapshot()
		require.LessOrEqual(t, len(snap), DefaultMaxSize)
		seen := map[string]bool{}
		for i, e := range snap {
			require.False(t, seen[e.Node.ID], "duplicate id %s", e.Node.ID)
			seen[e.Node.ID] = true
			if i > 0 {
				require.GreaterOrEqual(t, snap[i-1].Composite, e.Composite)
			}
		}
	}
}

func TestSetWeightsRescores(t *testing.T) {
	p := newPool(t, 5)
	a := scored("a", 1.0)
	b := scored("b", 0.1)
	b.ConstraintScores = map[string]float64{"freshness": 1}
	p.Merge([]ScoredNode{a, b}, now)
	assert.Equal(t, "b", p.Snapshot()[0].Node.ID)

	require.NoError(t, p.SetWeights(Weights{Embedding: 1, Constraint: 0, Recency: 0, StalenessHours: 24}, now))
	snap := p.Snapshot()
	assert.Equal(t, "a", snap[0].Node.ID)
	assert.InDelta(t, 1.0, snap[0].Composite, 1e-12)

	assert.Error(t, p.SetWeights(Weights{}, now))
	assert.Equal(t, 1.0, p.Weights().Embedding)
}

func TestSnapshotIsCopy(t *testing.T) {
	p := newPool(t, 5)
	n := scored("a", 1)
	n.Node.Entities = []string{"x"}
	n.ConstraintScores = map[string]float64{"freshness": 0.5}
	p.Merge([]ScoredNode{n}, now)

	snap := p.Snapshot()
	snap[0].Node.Entities[0] = "mutated"
	snap[0].ConstraintScores["freshness"] = 9

	got, _ := p.Get("a")
	assert.Equal(t, "x", got.Node.Entities[0])
	assert.Equal(t, 0.5, got.ConstraintScores["freshness"])
}
