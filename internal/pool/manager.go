package pool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/attend/internal/event"
	"github.com/lazypower/attend/internal/logging"
	"github.com/lazypower/attend/internal/priority"
)

// Embedder turns a topic label into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Lookup finds the nodes most similar to a query vector.
type Lookup interface {
	TopKByEmbedding(ctx context.Context, query []float64, k int, threshold float64) ([]event.Hit, error)
}

// EdgeSource returns the edges touching any of ids.
type EdgeSource interface {
	EdgesFor(ctx context.Context, ids []string) ([]event.Edge, error)
}

// ManagerConfig tunes retrieval rounds.
type ManagerConfig struct {
	K           int
	Threshold   float64
	Concurrency int
	Constraints []Constraint
}

// DefaultManagerConfig returns top-30 candidates, four concurrent topic
// fetches and the built-in constraints.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		K:           30,
		Concurrency: 4,
		Constraints: DefaultConstraints(48*time.Hour, 30*24*time.Hour),
	}
}

// Manager runs retrieval rounds and merges them into its pool.
type Manager struct {
	pool     *Pool
	scorer   *priority.Scorer
	embedder Embedder
	lookup   Lookup
	edges    EdgeSource
	cfg      ManagerConfig
	logger   *log.Logger
	now      func() time.Time

	// retrieveMu keeps rounds from different Retrieve calls from interleaving.
	retrieveMu sync.Mutex
}

// NewManager wires a manager. edges may be nil, in which case diffusion
// contributes nothing.
func NewManager(p *Pool, scorer *priority.Scorer, embedder Embedder, lookup Lookup, edges EdgeSource, cfg ManagerConfig, logger *log.Logger) *Manager {
	def := DefaultManagerConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Constraints == nil {
		cfg.Constraints = def.Constraints
	}
	return &Manager{
		pool:     p,
		scorer:   scorer,
		embedder: embedder,
		lookup:   lookup,
		edges:    edges,
		cfg:      cfg,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// SetClock overrides the manager's time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Pool returns the managed pool.
func (m *Manager) Pool() *Pool { return m.pool }

// Retrieve runs one round per topic and merges each into the pool in topic
// order. Topic fetches run concurrently; merges do not. Collaborator failures
// yield empty rounds, so the result is never an error.
func (m *Manager) Retrieve(ctx context.Context, topics []string, q Query) []ScoredNode {
	m.retrieveMu.Lock()
	defer m.retrieveMu.Unlock()

	now := m.now()
	if q.Time.IsZero() {
		q.Time = now
	}

	rounds := make([][]ScoredNode, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, topic := range topics {
		g.Go(func() error {
			rounds[i] = m.Round(gctx, topic, q, now)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range rounds {
		st := m.pool.Merge(r, now)
		m.logger.Debug("merged round", "topic", topics[i], "candidates", len(r),
			"inserted", st.Inserted, "replaced", st.Replaced, "evicted", st.Evicted)
	}
	return m.pool.Snapshot()
}

// Round scores one topic's candidates without touching the pool.
func (m *Manager) Round(ctx context.Context, topic string, q Query, now time.Time) []ScoredNode {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	vec, err := m.embedder.Embed(ctx, topic)
	if err != nil {
		m.logger.Warn("embed topic failed", "topic", topic, "error", err)
		return nil
	}
	hits, err := m.lookup.TopKByEmbedding(ctx, vec, m.cfg.K, m.cfg.Threshold)
	if err != nil {
		m.logger.Warn("similarity lookup failed", "topic", topic, "error", err)
		return nil
	}

	type kept struct {
		hit    event.Hit
		scores map[string]float64
	}
	var survivors []kept
	for _, h := range hits {
		scores, _, ok := Evaluate(m.cfg.Constraints, &h.Node, q)
		if !ok {
			continue
		}
		survivors = append(survivors, kept{hit: h, scores: scores})
	}
	if len(survivors) == 0 {
		return nil
	}

	nodes := make([]event.Node, len(survivors))
	ids := make([]string, len(survivors))
	for i, s := range survivors {
		nodes[i] = s.hit.Node
		ids[i] = s.hit.Node.ID
	}

	var hood priority.Neighborhood
	if m.edges != nil {
		edges, err := m.edges.EdgesFor(ctx, ids)
		if err != nil {
			m.logger.Warn("edge lookup failed", "topic", topic, "error", err)
		} else {
			hood = priority.NeighborhoodOf(edges)
		}
	}

	text := strings.TrimSpace(topic + " " + q.Text)
	ranked := m.scorer.Rank(nodes, vec, text, now, hood)
	byID := make(map[string]int, len(survivors))
	for i, s := range survivors {
		byID[s.hit.Node.ID] = i
	}

	w := m.pool.Weights()
	out := make([]ScoredNode, 0, len(ranked))
	for _, r := range ranked {
		s := survivors[byID[r.ID]]
		sn := ScoredNode{
			Node:             s.hit.Node,
			Topic:            topic,
			Similarity:       s.hit.Similarity,
			EmbeddingScore:   r.Score,
			Priority:         r.Breakdown,
			ConstraintScores: s.scores,
			UpdatedAt:        now,
		}
		sn.Composite = w.Composite(sn.EmbeddingScore, sn.constraintSum(), now, now)
		out = append(out, sn)
	}
	return out
}
