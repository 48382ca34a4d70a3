// Package engine wires focus tracking, priority scoring and the candidate
// pool to persistent event storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/attend/internal/event"
	"github.com/lazypower/attend/internal/focus"
	"github.com/lazypower/attend/internal/llm"
	"github.com/lazypower/attend/internal/logging"
	"github.com/lazypower/attend/internal/pool"
	"github.com/lazypower/attend/internal/priority"
	"github.com/lazypower/attend/internal/store"
)

// ErrInvalidSimilarity is returned for activation similarities outside [-1, 1].
var ErrInvalidSimilarity = errors.New("similarity must be within [-1, 1]")

// distributionLimit bounds the candidates scored for a distribution report.
const distributionLimit = 1000

// Engine orchestrates focus tracking, retrieval and event storage.
type Engine struct {
	DB       *store.DB
	LLM      llm.Client
	Embedder Embedder
	Tracker  *focus.Tracker
	Scorer   *priority.Scorer
	Manager  *pool.Manager

	topN   int
	logger *log.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine. client may be nil, in which case rule-based
// extraction is the primary strategy. embedder must not be nil.
func New(db *store.DB, client llm.Client, embedder Embedder, s Settings, logger *log.Logger) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: database required")
	}
	if embedder == nil {
		return nil, errors.New("engine: embedder required")
	}
	logger = logging.OrDiscard(logger)

	scorer, err := priority.NewScorer(s.Params)
	if err != nil {
		return nil, fmt.Errorf("priority params: %w", err)
	}
	p, err := pool.New(s.PoolSize, s.Weights)
	if err != nil {
		return nil, fmt.Errorf("pool weights: %w", err)
	}

	var primary focus.Extractor = focus.NewRuleExtractor()
	if client != nil {
		primary = focus.NewLLMExtractor(client)
	}
	tracker := focus.NewTracker(s.Focus, primary, focus.WithLogger(logger.WithPrefix("focus")))
	manager := pool.NewManager(p, scorer, embedder, db, db, s.Manager, logger.WithPrefix("pool"))

	topN := s.TopN
	if topN <= 0 {
		topN = DefaultSettings().TopN
	}
	return &Engine{
		DB:       db,
		LLM:      client,
		Embedder: embedder,
		Tracker:  tracker,
		Scorer:   scorer,
		Manager:  manager,
		topN:     topN,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetClock overrides the engine's time source, including the pool manager's.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.Manager.SetClock(now)
}

// AddEvent persists an event and its embedding. A failed embedding leaves
// the event stored but invisible to similarity lookup.
func (e *Engine) AddEvent(ctx context.Context, n *event.Node) error {
	if strings.TrimSpace(n.Text()) == "" && n.Location == "" && len(n.Entities) == 0 {
		return errors.New("event has no content")
	}
	if err := e.DB.UpsertEvent(ctx, n); err != nil {
		return err
	}
	if err := e.embedEvent(ctx, n); err != nil {
		e.logger.Warn("embed event failed", "id", n.ID, "error", err)
	}
	return nil
}

func (e *Engine) embedEvent(ctx context.Context, n *event.Node) error {
	text := eventText(n)
	if text == "" {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed event %s: %w", n.ID, err)
	}
	if err := e.DB.SaveVector(ctx, n.ID, vec, e.Embedder.Model()); err != nil {
		return err
	}
	n.Embedding = vec
	return nil
}

// eventText is the embedding surface: purpose and result, then location and
// entities so that events without prose are still reachable.
func eventText(n *event.Node) string {
	parts := []string{n.Text()}
	if n.Location != "" {
		parts = append(parts, n.Location)
	}
	parts = append(parts, n.Entities...)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// refitter is implemented by embedders whose vector space depends on the corpus.
type refitter interface {
	Refit(ctx context.Context, db *store.DB) error
}

// Reindex refits a corpus-dependent embedder and re-embeds every event whose
// vector is missing or was produced by another model. After a refit every
// event is re-embedded.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	force := false
	if r, ok := e.Embedder.(refitter); ok {
		if err := r.Refit(ctx, e.DB); err != nil {
			return 0, err
		}
		force = true
	}
	return e.embedMissing(ctx, force)
}

func (e *Engine) embedMissing(ctx context.Context, force bool) (int, error) {
	events, err := e.DB.ListEvents(ctx, maxCorpus)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	embedded := 0
	for i := range events {
		if !force {
			existing, err := e.DB.GetVector(ctx, events[i].ID)
			if err != nil {
				e.logger.Warn("embed missing: get vector", "id", events[i].ID, "error", err)
				continue
			}
			if existing != nil && existing.Model == e.Embedder.Model() {
				continue
			}
		}
		if err := e.embedEvent(ctx, &events[i]); err != nil {
			e.logger.Warn("embed missing", "error", err)
			continue
		}
		embedded++
	}
	return embedded, nil
}

// Ingest feeds a turn to the focus tracker and then refreshes the pool for
// the top focus labels. The returned pool is the post-merge snapshot.
func (e *Engine) Ingest(ctx context.Context, turn focus.Turn) (focus.IngestResult, []pool.ScoredNode) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = e.now()
	}
	res := e.Tracker.Ingest(ctx, turn)
	topics := e.Tracker.TopLabels(e.topN)
	if len(topics) == 0 {
		return res, e.Manager.Pool().Snapshot()
	}
	q := pool.Query{Time: turn.Timestamp, Text: turn.Content}
	return res, e.Manager.Retrieve(ctx, topics, q)
}

// Retrieve runs a retrieval round for topics, defaulting to the tracker's
// top focus labels when none are given.
func (e *Engine) Retrieve(ctx context.Context, topics []string, q pool.Query) []pool.ScoredNode {
	if len(topics) == 0 {
		topics = e.Tracker.TopLabels(e.topN)
	}
	if len(topics) == 0 {
		return e.Manager.Pool().Snapshot()
	}
	return e.Manager.Retrieve(ctx, topics, q)
}

// Pool returns a snapshot of the candidate pool.
func (e *Engine) Pool() []pool.ScoredNode {
	return e.Manager.Pool().Snapshot()
}

// RecordActivation marks an event as relevant now with the given similarity.
// When relatedID names another event, a revisit edge links the two.
func (e *Engine) RecordActivation(ctx context.Context, id string, similarity float64, relatedID string) (*event.Node, error) {
	if similarity < -1 || similarity > 1 {
		return nil, fmt.Errorf("similarity %v: %w", similarity, ErrInvalidSimilarity)
	}
	n, err := e.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if relatedID != "" && relatedID != id {
		if _, err := e.DB.GetEvent(ctx, relatedID); err != nil {
			return nil, fmt.Errorf("related event: %w", err)
		}
	}

	at := e.now()
	edge := priority.RecordActivation(n, similarity, at, relatedID)
	if err := e.DB.AppendActivation(ctx, id, event.Activation{At: at, Similarity: similarity}); err != nil {
		return nil, err
	}
	if edge != nil {
		if err := e.DB.AddEdge(ctx, *edge); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// UpdateParameters swaps the scorer's parameters after validating them.
func (e *Engine) UpdateParameters(p priority.Params) error {
	if err := e.Scorer.UpdateParameters(p); err != nil {
		return err
	}
	e.logger.Info("priority parameters updated", "strategy", p.Strategy, "max_hops", p.MaxHops)
	return nil
}

// Distribution scores stored events against text and summarises their
// priorities.
func (e *Engine) Distribution(ctx context.Context, text string) (priority.Distribution, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return priority.Distribution{}, errors.New("distribution: empty query")
	}
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return priority.Distribution{}, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.DB.TopKByEmbedding(ctx, vec, distributionLimit, -1)
	if err != nil {
		return priority.Distribution{}, err
	}
	nodes := make([]event.Node, len(hits))
	ids := make([]string, len(hits))
	for i, h := range hits {
		nodes[i] = h.Node
		ids[i] = h.Node.ID
	}
	edges, err := e.DB.EdgesFor(ctx, ids)
	if err != nil {
		return priority.Distribution{}, err
	}
	return e.Scorer.AnalyzeDistribution(nodes, vec, text, e.now(), priority.NeighborhoodOf(edges)), nil
}

// Stats summarises engine state.
type Stats struct {
	Focus    focus.Statistics `json:"focus"`
	Events   int              `json:"events"`
	Edges    int              `json:"edges"`
	Pool     int              `json:"pool"`
	PoolMax  int              `json:"pool_max"`
	Params   priority.Params  `json:"params"`
	Weights  pool.Weights     `json:"weights"`
	Embedder string           `json:"embedder"`
}

// Statistics reports focus, storage and pool counters.
func (e *Engine) Statistics(ctx context.Context) (Stats, error) {
	events, err := e.DB.CountEvents(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count events: %w", err)
	}
	edges, err := e.DB.CountEdges(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count edges: %w", err)
	}
	p := e.Manager.Pool()
	return Stats{
		Focus:    e.Tracker.Statistics(),
		Events:   events,
		Edges:    edges,
		Pool:     p.Len(),
		PoolMax:  p.MaxSize(),
		Params:   e.Scorer.Params(),
		Weights:  p.Weights(),
		Embedder: e.Embedder.Model(),
	}, nil
}

// StartRefresh re-runs retrieval for the current foci every interval so the
// pool keeps tracking the conversation between turns.
func (e *Engine) StartRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if topics := e.Tracker.TopLabels(e.topN); len(topics) > 0 {
					res := e.Manager.Retrieve(ctx, topics, pool.Query{})
					e.logger.Debug("pool refreshed", "topics", len(topics), "pool", len(res))
				}
				cancel()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
