// Package priority scores how strongly a candidate event should be boosted
// beyond raw similarity, from temporal decay, reactivation history, semantic
// alignment and diffusion over the event graph.
package priority

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/attend/internal/event"
)

const day = 24 * time.Hour

// Breakdown is a node's priority and its components.
type Breakdown struct {
	Time     float64 `json:"f_time"`
	React    float64 `json:"f_react"`
	Sem      float64 `json:"f_sem"`
	Diff     float64 `json:"f_diff"`
	Base     float64 `json:"base"`
	Priority float64 `json:"priority"`
	// Lambda is the decay constant actually used, after any temporal boost.
	Lambda float64 `json:"lambda"`
	Cosine float64 `json:"cosine"`
}

// Ranked is a node's position in a ranking.
type Ranked struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Neighborhood lists the edges touching each node id.
type Neighborhood map[string][]event.Edge

// NeighborhoodOf indexes edges by both endpoints.
func NeighborhoodOf(edges []event.Edge) Neighborhood {
	n := make(Neighborhood)
	for _, e := range edges {
		n[e.From] = append(n[e.From], e)
		if e.To != e.From {
			n[e.To] = append(n[e.To], e)
		}
	}
	return n
}

// Scorer computes priorities. Its only state is the parameter set, which can
// be swapped atomically at runtime.
type Scorer struct {
	mu     sync.RWMutex
	params Params
}

// NewScorer validates p and returns a scorer using it.
func NewScorer(p Params) (*Scorer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{params: p}, nil
}

// Params returns the current parameters.
func (s *Scorer) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// UpdateParameters validates p and swaps it in. On error the previous
// parameters stay in effect.
func (s *Scorer) UpdateParameters(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// ageDays is the non-negative age of t at now, in days.
func ageDays(t, now time.Time) float64 {
	if t.IsZero() {
		return math.Inf(1)
	}
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(day)
}

// TimeDecay is exp(-λ·Δt_days) measured from the node's reference time.
// A node with no usable timestamp decays fully.
func TimeDecay(n *event.Node, lambda float64, now time.Time) float64 {
	age := ageDays(n.ReferenceTime(), now)
	if math.IsInf(age, 1) {
		return 0
	}
	return math.Exp(-lambda * age)
}

// Reactivation is Σ α·exp(-β·Δt_i) over the node's activation history.
// Cold-start nodes score exactly 0.
func Reactivation(n *event.Node, alpha, beta float64, now time.Time) float64 {
	var sum float64
	for _, a := range n.Activations {
		sum += alpha * math.Exp(-beta*ageDays(a.At, now))
	}
	return sum
}

// Semantic rescales cosine into [0,1]. Missing or mismatched vectors give 0.
func Semantic(query, embedding []float64) (fsem, cos float64) {
	c, ok := event.Cosine(query, embedding)
	if !ok {
		return 0, 0
	}
	return (c + 1) / 2, c
}

func (s *Scorer) base(p Params, n *event.Node, query []float64, lambda float64, now time.Time) Breakdown {
	var b Breakdown
	b.Lambda = lambda
	b.Time = TimeDecay(n, lambda, now)
	b.React = Reactivation(n, p.Alpha, p.Beta, now)
	b.Sem, b.Cosine = Semantic(query, n.Embedding)
	b.Base = p.ThetaTime*b.Time + p.ThetaReact*b.React + p.ThetaSem*b.Sem
	b.Priority = b.Base
	return b
}

// Score computes a single node's priority without graph context, so its
// diffusion component is 0. text is the originating query, used only for
// the transient temporal boost.
func (s *Scorer) Score(n *event.Node, query []float64, text string, now time.Time) Breakdown {
	p := s.Params()
	return s.base(p, n, query, p.Lambda*Boost(text), now)
}

// ScoreBatch scores nodes in two passes: base priorities first, then
// diffusion from neighbors inside the batch using only those base values.
// Results are index-aligned with nodes.
func (s *Scorer) ScoreBatch(nodes []event.Node, query []float64, text string, now time.Time, hood Neighborhood) []Breakdown {
	p := s.Params()
	lambda := p.Lambda * Boost(text)

	out := make([]Breakdown, len(nodes))
	baseByID := make(map[string]float64, len(nodes))
	for i := range nodes {
		out[i] = s.base(p, &nodes[i], query, lambda, now)
		baseByID[nodes[i].ID] = out[i].Base
	}

	if p.ThetaDiff == 0 || len(hood) == 0 {
		return out
	}
	for i := range nodes {
		out[i].Diff = diffuse(nodes[i].ID, baseByID, hood, p.Gamma, p.MaxHops)
		out[i].Priority = out[i].Base + p.ThetaDiff*out[i].Diff
	}
	return out
}

// diffuse walks up to maxHops from id breadth-first. A node first reached at
// hop h contributes γ^h · (product of edge weights on its path) · base.
// Nodes outside the batch contribute nothing; the source never feeds itself.
func diffuse(id string, base map[string]float64, hood Neighborhood, gamma float64, maxHops int) float64 {
	visited := map[string]bool{id: true}
	frontier := map[string]float64{id: 1}
	var total float64
	decay := 1.0

	for h := 1; h <= maxHops && len(frontier) > 0; h++ {
		decay *= gamma
		next := make(map[string]float64)
		for from, pathW := range frontier {
			for _, e := range hood[from] {
				to := e.Other(from)
				if visited[to] {
					continue
				}
				w := pathW * edgeStrength(e)
				if w > next[to] {
					next[to] = w
				}
			}
		}
		for to, w := range next {
			visited[to] = true
			if b, ok := base[to]; ok {
				total += decay * w * b
			}
		}
		frontier = next
	}
	return math.Min(1, total)
}

// edgeStrength is the category weight scaled by the edge's own weight, which
// defaults to 1 when unset.
func edgeStrength(e event.Edge) float64 {
	w := e.Weight
	if w <= 0 {
		w = 1
	}
	return event.EdgeWeight(e.Type) * w
}

// Rank scores the batch and orders it by the configured strategy, best first.
func (s *Scorer) Rank(nodes []event.Node, query []float64, text string, now time.Time, hood Neighborhood) []Ranked {
	strategy := s.Params().Strategy
	bd := s.ScoreBatch(nodes, query, text, now, hood)

	out := make([]Ranked, len(nodes))
	switch strategy {
	case Softmax:
		shares := softmax(bd)
		for i := range nodes {
			out[i] = Ranked{ID: nodes[i].ID, Score: bd[i].Cosine * shares[i], Breakdown: bd[i]}
		}
	default:
		for i := range nodes {
			out[i] = Ranked{ID: nodes[i].ID, Score: bd[i].Cosine * (1 + bd[i].Priority), Breakdown: bd[i]}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func softmax(bd []Breakdown) []float64 {
	if len(bd) == 0 {
		return nil
	}
	maxP := math.Inf(-1)
	for _, b := range bd {
		maxP = math.Max(maxP, b.Priority)
	}
	shares := make([]float64, len(bd))
	var sum float64
	for i, b := range bd {
		shares[i] = math.Exp(b.Priority - maxP)
		sum += shares[i]
	}
	for i := range shares {
		shares[i] /= sum
	}
	return shares
}

// RecordActivation appends a capped activation to n. When relatedID names
// another node, the revisit edge to add to the graph is returned.
func RecordActivation(n *event.Node, similarity float64, at time.Time, relatedID string) *event.Edge {
	n.Activate(at, similarity)
	if relatedID == "" || relatedID == n.ID {
		return nil
	}
	return &event.Edge{
		From:      n.ID,
		To:        relatedID,
		Type:      event.EdgeRevisit,
		Weight:    1,
		CreatedAt: at,
	}
}
