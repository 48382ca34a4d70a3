// Package pool keeps the bounded, continuously merged set of currently
// relevant events and the retrieval rounds that feed it.
package pool

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/attend/internal/event"
	"github.com/lazypower/attend/internal/priority"
)

// DefaultMaxSize is the default pool capacity.
const DefaultMaxSize = 20

var ErrInvalidWeights = errors.New("invalid composite weights")

// Weights balance the composite score.
type Weights struct {
	Embedding      float64 `json:"embedding"`
	Constraint     float64 `json:"constraint"`
	Recency        float64 `json:"recency"`
	StalenessHours float64 `json:"staleness_hours"`
}

// DefaultWeights returns the standard composite weights.
func DefaultWeights() Weights {
	return Weights{Embedding: 0.4, Constraint: 0.5, Recency: 0.1, StalenessHours: 24}
}

func (w Weights) Validate() error {
	for _, v := range []float64{w.Embedding, w.Constraint, w.Recency} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("negative weight %v: %w", v, ErrInvalidWeights)
		}
	}
	if w.StalenessHours <= 0 {
		return fmt.Errorf("staleness_hours must be > 0: %w", ErrInvalidWeights)
	}
	return nil
}

// RecencyFactor is 1/(1+h/staleness) for a pool entry last updated h hours ago.
func (w Weights) RecencyFactor(updatedAt, now time.Time) float64 {
	h := now.Sub(updatedAt).Hours()
	if h < 0 {
		h = 0
	}
	return 1 / (1 + h/w.StalenessHours)
}

// Composite combines the three terms.
func (w Weights) Composite(embedding, constraintSum float64, updatedAt, now time.Time) float64 {
	return embedding*w.Embedding + constraintSum*w.Constraint + w.RecencyFactor(updatedAt, now)*w.Recency
}

// ScoredNode is a candidate with everything that went into its ranking.
type ScoredNode struct {
	Node             event.Node         `json:"node"`
	Topic            string             `json:"topic,omitempty"`
	Similarity       float64            `json:"similarity"`
	EmbeddingScore   float64            `json:"embedding_score"`
	Priority         priority.Breakdown `json:"priority"`
	ConstraintScores map[string]float64 `json:"constraint_scores"`
	Composite        float64            `json:"composite"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (s ScoredNode) constraintSum() float64 {
	var sum float64
	for _, v := range s.ConstraintScores {
		sum += v
	}
	return sum
}

func (s ScoredNode) clone() ScoredNode {
	c := s
	c.Node = s.Node.Clone()
	if s.ConstraintScores != nil {
		c.ConstraintScores = make(map[string]float64, len(s.ConstraintScores))
		for k, v := range s.ConstraintScores {
			c.ConstraintScores[k] = v
		}
	}
	return c
}

// MergeStats counts what a merge did.
type MergeStats struct {
	Inserted int `json:"inserted"`
	Replaced int `json:"replaced"`
	Kept     int `json:"kept"`
	Evicted  int `json:"evicted"`
}

// Pool is a size-bounded set of ScoredNodes ordered by composite score.
// Eviction removes the lowest composite, never the oldest. All mutation goes
// through Merge and SetWeights.
type Pool struct {
	mu      sync.RWMutex
	maxSize int
	weights Weights
	entries []ScoredNode
	index   map[string]int
}

// New returns an empty pool.
func New(maxSize int, w Weights) (*Pool, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{maxSize: maxSize, weights: w, index: make(map[string]int)}, nil
}

// Merge folds a scored batch into the pool at time now. An existing entry is
// replaced only by a strictly higher composite; otherwise it keeps its score
// and timestamp.
//
// Existing entries are rescored with a recency factor decayed since their
// UpdatedAt, while incoming candidates are fresh (factor 1). An identically
// scored re-fetch therefore replaces an entry once any time has passed, and
// UpdatedAt moves to now. Only a same-instant re-fetch or a lower score keeps
// the old entry.
func (p *Pool) Merge(batch []ScoredNode, now time.Time) MergeStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var st MergeStats
	p.recomputeLocked(now)

	for _, cand := range batch {
		if cand.Node.ID == "" {
			continue
		}
		cand = cand.clone()
		cand.UpdatedAt = now
		cand.Composite = p.weights.Composite(cand.EmbeddingScore, cand.constraintSum(), now, now)

		if i, ok := p.index[cand.Node.ID]; ok {
			if cand.Composite > p.entries[i].Composite {
				p.entries[i] = cand
				st.Replaced++
			} else {
				st.Kept++
			}
			continue
		}
		p.index[cand.Node.ID] = len(p.entries)
		p.entries = append(p.entries, cand)
		st.Inserted++
	}

	p.sortLocked()
	if over := len(p.entries) - p.maxSize; over > 0 {
		st.Evicted = over
		p.entries = p.entries[:p.maxSize]
	}
	p.reindexLocked()
	return st
}

// recomputeLocked refreshes every composite so none is stale against now or
// the current weights.
func (p *Pool) recomputeLocked(now time.Time) {
	for i := range p.entries {
		e := &p.entries[i]
		e.Composite = p.weights.Composite(e.EmbeddingScore, e.constraintSum(), e.UpdatedAt, now)
	}
}

func (p *Pool) sortLocked() {
	sort.SliceStable(p.entries, func(i, j int) bool {
		if p.entries[i].Composite != p.entries[j].Composite {
			return p.entries[i].Composite > p.entries[j].Composite
		}
		return p.entries[i].Node.ID < p.entries[j].Node.ID
	})
}

func (p *Pool) reindexLocked() {
	p.index = make(map[string]int, len(p.entries))
	for i, e := range p.entries {
		p.index[e.Node.ID] = i
	}
}

// SetWeights swaps the composite weights and rescores every entry at now.
func (p *Pool) SetWeights(w Weights, now time.Time) error {
	if err := w.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.weights = w
	p.recomputeLocked(now)
	p.sortLocked()
	p.reindexLocked()
	return nil
}

// Weights returns the composite weights in use.
func (p *Pool) Weights() Weights {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weights
}

// Snapshot returns a copy of the pool, best first.
func (p *Pool) Snapshot() []ScoredNode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ScoredNode, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.clone()
	}
	return out
}

// Get returns a copy of one entry.
func (p *Pool) Get(id string) (ScoredNode, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.index[id]
	if !ok {
		return ScoredNode{}, false
	}
	return p.entries[i].clone(), true
}

// Len is the number of entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// MaxSize is the pool capacity.
func (p *Pool) MaxSize() int { return p.maxSize }

// Reset empties the pool.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.index = make(map[string]int)
}
