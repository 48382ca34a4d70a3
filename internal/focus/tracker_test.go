package focus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted returns one candidate list per call; calls past the end return nothing.
type scripted struct {
	turns [][]Candidate
	calls int
	seen  [][]Turn
}

func (s *scripted) Extract(_ context.Context, _ Turn, recent []Turn) ([]Candidate, error) {
	s.seen = append(s.seen, recent)
	defer func() { s.calls++ }()
	if s.calls >= len(s.turns) {
		return nil, nil
	}
	return s.turns[s.calls], nil
}

func labels(fs []FocusPoint) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Label
	}
	return out
}

func topics(names ...string) []Candidate {
	out := make([]Candidate, len(names))
	for i, n := range names {
		out[i] = Candidate{Label: n, Type: TypeTopic}
	}
	return out
}

func newTestTracker(ex Extractor) *Tracker {
	chain := Chain{
		{Name: "collaborator", Extractor: ex, Timeout: time.Second},
		{Name: "rule-based", Extractor: &RuleExtractor{}, Local: true, When: func(s ChainState) bool { return s.Foci == 0 && s.History > 0 }},
	}
	return NewTracker(DefaultConfig(), ex, WithChain(chain))
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestEmptyExtractionKeepsActiveFoci(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{topics("Flutter", "AI")}}
	tr := newTestTracker(ex)

	res := tr.Ingest(context.Background(), Turn{Content: "I'm learning Flutter and AI", Timestamp: t0})
	require.Equal(t, "collaborator", res.Source)
	require.Len(t, res.Created, 2)
	before := tr.Active()
	require.Len(t, before, 2)

	res = tr.Ingest(context.Background(), Turn{Content: "ok", Timestamp: t0.Add(time.Minute)})
	assert.True(t, res.ExtractionEmpty)
	assert.Empty(t, res.Source)

	after := tr.Active()
	assert.GreaterOrEqual(t, len(after), len(before))
	assert.ElementsMatch(t, labels(before), labels(after))
}

func TestDedupIdempotence(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{topics("Flutter"), topics("flutter ")}}
	tr := newTestTracker(ex)

	tr.Ingest(context.Background(), Turn{Content: "Flutter", Timestamp: t0})
	tr.Ingest(context.Background(), Turn{Content: "flutter again", Timestamp: t0.Add(time.Second)})

	all := tr.All()
	require.Len(t, all, 1)
	f := all[0]
	assert.Equal(t, 2, f.Mentions)
	assert.Len(t, f.MentionedAt, 2)
	for _, a := range f.Aliases {
		assert.NotEqual(t, normalize(f.Label), normalize(a), "alias duplicates canonical label")
	}
}

func TestTierFloorHoldsAcrossEmptyTurns(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		topics("Flutter", "AI", "Dart"),
		topics("Go"),
	}}
	tr := newTestTracker(ex)
	cfg := DefaultConfig()

	for i := 0; i < 8; i++ {
		tr.Ingest(context.Background(), Turn{Content: fmt.Sprintf("turn %d", i), Timestamp: t0.Add(time.Duration(i) * 10 * time.Minute)})
		if len(tr.All()) >= cfg.MinActive {
			require.GreaterOrEqual(t, len(tr.Active()), cfg.MinActive, "after turn %d", i)
		}
	}
}

func TestMergeUnionsAliasesAndLinks(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		{{Label: "Project Atlas", Type: TypeEvent, Aliases: []string{"atlas"}}},
		{{Label: "Atlas", Type: TypeEvent, Related: []string{"Project Atlas"}}, {Label: "budget", Type: TypeTopic, Metadata: map[string]string{"k": "v"}}},
	}}
	tr := newTestTracker(ex)

	tr.Ingest(context.Background(), Turn{Content: "a", Timestamp: t0})
	res := tr.Ingest(context.Background(), Turn{Content: "b", Timestamp: t0.Add(time.Minute)})
	require.Len(t, res.Merged, 1)
	require.Len(t, res.Created, 1)

	all := tr.All()
	require.Len(t, all, 2)
	byLabel := map[string]FocusPoint{}
	for _, f := range all {
		byLabel[f.Label] = f
	}
	atlas := byLabel["Project Atlas"]
	budget := byLabel["budget"]
	assert.Equal(t, 2, atlas.Mentions)
	assert.Equal(t, t0, atlas.FirstSeen)
	assert.Equal(t, t0.Add(time.Minute), atlas.LastUpdated)
	assert.Equal(t, []string{"atlas"}, atlas.Aliases)
	assert.Contains(t, atlas.Linked, budget.ID)
	assert.Contains(t, budget.Linked, atlas.ID)
	assert.Equal(t, "v", budget.Metadata["k"])
}

func TestFuzzyMerge(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		topics("machine learning model training"),
		topics("machine learning model training pipeline"),
	}}
	tr := newTestTracker(ex)
	tr.Ingest(context.Background(), Turn{Content: "a", Timestamp: t0})
	tr.Ingest(context.Background(), Turn{Content: "b", Timestamp: t0.Add(time.Minute)})

	all := tr.All()
	require.Len(t, all, 1, "4/5 token overlap should merge")
	assert.Equal(t, []string{"machine learning model training pipeline"}, all[0].Aliases)
}

func TestExtractionErrorFallsBackToRules(t *testing.T) {
	failing := ExtractorFunc(func(context.Context, Turn, []Turn) ([]Candidate, error) {
		return nil, errors.New("malformed response")
	})
	tr := newTestTracker(failing)

	res := tr.Ingest(context.Background(), Turn{
		Content:   "talked about it",
		Timestamp: t0,
		Entities:  []string{"Kubernetes"},
		Intent:    "deployment",
	})
	assert.True(t, res.ExtractionEmpty)
	assert.Equal(t, "rule-based", res.Source)
	assert.ElementsMatch(t, []string{"Kubernetes", "deployment"}, labels(tr.All()))
}

func TestRuleFallbackRunsWithCancelledContext(t *testing.T) {
	failing := ExtractorFunc(func(context.Context, Turn, []Turn) ([]Candidate, error) {
		return nil, errors.New("unreachable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		tr := newTestTracker(failing)
		res := tr.Ingest(ctx, Turn{Content: "x", Timestamp: t0, Entities: []string{"Flutter"}})
		require.Equal(t, "rule-based", res.Source, "ingest %d", i)
		require.Equal(t, []string{"Flutter"}, labels(tr.All()))
	}
}

func TestRulePrimaryRunsWithCancelledContext(t *testing.T) {
	tr := NewTracker(DefaultConfig(), NewRuleExtractor())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := tr.Ingest(ctx, Turn{Content: "x", Timestamp: t0, Entities: []string{"Flutter"}})
	assert.Equal(t, "collaborator", res.Source)
	assert.False(t, res.ExtractionEmpty)
	assert.Contains(t, labels(tr.All()), "Flutter")
}

func TestSameTurnDuplicateKeepsLinksAndEmotion(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		topics("budget"),
		{
			{Label: "Atlas", Type: TypeEvent, Emotion: 0.2},
			{Label: "atlas", Type: TypeEvent, Emotion: 0.9, Aliases: []string{"Project Atlas"}, Related: []string{"budget"}},
		},
	}}
	tr := newTestTracker(ex)

	tr.Ingest(context.Background(), Turn{Content: "a", Timestamp: t0})
	res := tr.Ingest(context.Background(), Turn{Content: "b", Timestamp: t0.Add(time.Minute)})
	require.Len(t, res.Created, 1)
	assert.Empty(t, res.Merged)

	byLabel := map[string]FocusPoint{}
	for _, f := range tr.All() {
		byLabel[f.Label] = f
	}
	atlas := byLabel["Atlas"]
	assert.Equal(t, 1, atlas.Mentions)
	assert.InDelta(t, 0.9, atlas.Scores.Emotion, 1e-12)
	assert.Equal(t, []string{"Project Atlas"}, atlas.Aliases)
	assert.Contains(t, atlas.Linked, byLabel["budget"].ID)
}

func TestRuleFallbackSkippedWhenFociExist(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{topics("Flutter")}}
	tr := newTestTracker(ex)

	tr.Ingest(context.Background(), Turn{Content: "Flutter", Timestamp: t0})
	res := tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0.Add(time.Second), Entities: []string{"Rust"}})

	assert.Empty(t, res.Source)
	assert.Equal(t, []string{"Flutter"}, labels(tr.All()))
}

func TestExtractionTimeoutIsFailure(t *testing.T) {
	slow := ExtractorFunc(func(ctx context.Context, _ Turn, _ []Turn) ([]Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	chain := Chain{
		{Name: "collaborator", Extractor: slow, Timeout: 20 * time.Millisecond},
		{Name: "rule-based", Extractor: &RuleExtractor{}, Local: true, When: func(s ChainState) bool { return s.Foci == 0 && s.History > 0 }},
	}
	tr := NewTracker(DefaultConfig(), slow, WithChain(chain))

	start := time.Now()
	res := tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0, Entities: []string{"Postgres"}})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.ExtractionEmpty)
	assert.Equal(t, "rule-based", res.Source)
}

func TestRecentContextIsNewestFive(t *testing.T) {
	ex := &scripted{}
	tr := newTestTracker(ex)
	for i := 0; i < 9; i++ {
		tr.Ingest(context.Background(), Turn{Content: fmt.Sprintf("t%d", i), Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}

	last := ex.seen[len(ex.seen)-1]
	require.Len(t, last, 5)
	assert.Equal(t, "t3", last[0].Content)
	assert.Equal(t, "t7", last[4].Content)
	assert.Equal(t, 9, tr.Statistics().History)
}

func TestHistoryCapped(t *testing.T) {
	tr := newTestTracker(&scripted{})
	for i := 0; i < 15; i++ {
		tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, 10, tr.Statistics().History)
}

func TestPruneStaleNonActive(t *testing.T) {
	batch := topics("a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11", "a12", "a13", "a14")
	ex := &scripted{turns: [][]Candidate{batch, topics("fresh")}}
	tr := newTestTracker(ex)

	tr.Ingest(context.Background(), Turn{Content: "many", Timestamp: t0})
	res := tr.Ingest(context.Background(), Turn{Content: "later", Timestamp: t0.Add(3 * time.Hour)})

	assert.Positive(t, res.Pruned)
	for _, f := range tr.All() {
		if f.State != StateActive {
			assert.False(t, t0.Add(3*time.Hour).Sub(f.LastUpdated) > 2*time.Hour && f.Scores.Salience < tr.Statistics().Threshold)
		}
	}
	assert.GreaterOrEqual(t, len(tr.Active()), 3)
}

func TestScoresInRange(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		{{Label: "launch", Type: TypeEvent, Emotion: 0.9}, {Label: "team"}},
		topics("launch", "release"),
		topics("release"),
	}}
	tr := newTestTracker(ex)
	for i := 0; i < 3; i++ {
		tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}
	for _, f := range tr.All() {
		s := f.Scores
		for name, v := range map[string]float64{"recency": s.Recency, "repetition": s.Repetition, "emotion": s.Emotion, "causal": s.Causal, "drift": s.Drift, "salience": s.Salience} {
			assert.GreaterOrEqual(t, v, 0.0, "%s %s", f.Label, name)
			assert.LessOrEqual(t, v, 1.0, "%s %s", f.Label, name)
		}
	}
	assert.NotEmpty(t, tr.Transitions())
}

func TestTopActiveFirstAndStatistics(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{
		{{Label: "Alice", Type: TypeEntity}, {Label: "roadmap", Type: TypeTopic}, {Label: "offsite", Type: TypeEvent}},
	}}
	tr := newTestTracker(ex)
	tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0})

	top := tr.Top(2)
	require.Len(t, top, 2)
	for _, f := range top {
		assert.Equal(t, StateActive, f.State)
	}
	assert.Len(t, tr.TopLabels(0), 3)

	st := tr.Statistics()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.ByType[TypeEntity])
	assert.Equal(t, 1, st.ByType[TypeTopic])
	assert.Equal(t, 1, st.ByType[TypeEvent])
	assert.Equal(t, 3, st.ByState[StateActive])
}

func TestSnapshotsAreCopies(t *testing.T) {
	ex := &scripted{turns: [][]Candidate{{{Label: "x", Aliases: []string{"ex"}}}}}
	tr := newTestTracker(ex)
	tr.Ingest(context.Background(), Turn{Content: "x", Timestamp: t0})

	snap := tr.All()
	snap[0].Aliases[0] = "mutated"
	snap[0].Mentions = 99

	again := tr.All()
	assert.Equal(t, "ex", again[0].Aliases[0])
	assert.Equal(t, 1, again[0].Mentions)
}
