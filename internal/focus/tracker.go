package focus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lazypower/attend/internal/logging"
)

// Config tunes a Tracker.
type Config struct {
	MinActive      int
	MaxActive      int
	BaseThreshold  float64
	HistoryCap     int
	ContextTurns   int
	FuzzyThreshold float64
	PruneAge       time.Duration
	ExtractTimeout time.Duration
	TransitionCap  int
	Tokenizer      Tokenizer
}

// DefaultConfig returns the standard tracker settings.
func DefaultConfig() Config {
	return Config{
		MinActive:      3,
		MaxActive:      12,
		BaseThreshold:  0.35,
		HistoryCap:     10,
		ContextTurns:   5,
		FuzzyThreshold: DefaultFuzzyThreshold,
		PruneAge:       2 * time.Hour,
		ExtractTimeout: 10 * time.Second,
		TransitionCap:  DefaultTransitionCap,
		Tokenizer:      ScriptTokenizer{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinActive <= 0 {
		c.MinActive = d.MinActive
	}
	if c.MaxActive < c.MinActive {
		c.MaxActive = max(d.MaxActive, c.MinActive)
	}
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = d.BaseThreshold
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = d.HistoryCap
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = d.ContextTurns
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = d.FuzzyThreshold
	}
	if c.PruneAge <= 0 {
		c.PruneAge = d.PruneAge
	}
	if c.TransitionCap <= 0 {
		c.TransitionCap = d.TransitionCap
	}
	if c.Tokenizer == nil {
		c.Tokenizer = d.Tokenizer
	}
	return c
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = logging.OrDiscard(l) }
}

// WithClock overrides the time source used for turns without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithChain replaces the degradation chain.
func WithChain(c Chain) Option {
	return func(t *Tracker) { t.chain = c }
}

// Tracker is the focus state machine. It exclusively owns its focus points
// and transition history; readers only ever receive copies.
type Tracker struct {
	// ingestMu orders whole Ingest calls, extraction included.
	ingestMu sync.Mutex
	// mu guards the state below; held only while mutating or copying.
	mu sync.RWMutex

	cfg    Config
	chain  Chain
	logger *log.Logger
	now    func() time.Time

	foci      map[string]*FocusPoint
	order     []string
	history   []Turn
	drift     *DriftModel
	threshold float64
	top       string
	recent    []string
}

// NewTracker returns a tracker that extracts with primary and falls back to
// rule-based extraction. primary may be nil.
func NewTracker(cfg Config, primary Extractor, opts ...Option) *Tracker {
	cfg = cfg.withDefaults()
	t := &Tracker{
		cfg:       cfg,
		logger:    logging.Discard(),
		now:       time.Now,
		foci:      make(map[string]*FocusPoint),
		drift:     NewDriftModel(cfg.TransitionCap),
		threshold: cfg.BaseThreshold,
	}
	t.chain = DefaultChain(primary, cfg.ExtractTimeout)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ingest folds one conversational turn into the focus state. It never fails:
// extraction errors and timeouts degrade to the next strategy in the chain.
func (t *Tracker) Ingest(ctx context.Context, turn Turn) IngestResult {
	t.ingestMu.Lock()
	defer t.ingestMu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = t.now()
	}
	now := turn.Timestamp

	t.mu.Lock()
	recent := t.recentTurnsLocked()
	t.history = append(t.history, turn)
	if over := len(t.history) - t.cfg.HistoryCap; over > 0 {
		t.history = append([]Turn(nil), t.history[over:]...)
	}
	st := ChainState{Foci: len(t.foci), History: len(t.history)}
	t.mu.Unlock()

	outcome := t.chain.Run(ctx, turn, recent, st, t.logger)

	t.mu.Lock()
	defer t.mu.Unlock()

	res := IngestResult{
		Source:          outcome.Source,
		ExtractionEmpty: outcome.PrimaryEmpty,
		Candidates:      len(outcome.Candidates),
	}
	if outcome.PrimaryEmpty {
		t.logger.Debug("extraction returned empty", "content_len", len(turn.Content))
	}

	mentioned := t.mergeLocked(outcome.Candidates, turn, now, &res)
	t.recordDriftLocked(mentioned, now)
	t.rescoreLocked(now)
	res.Promoted = t.classifyLocked(now, mentioned)
	res.Pruned = t.pruneLocked(now)

	for _, f := range t.foci {
		if f.State == StateActive {
			res.Active++
		}
	}
	t.logger.Debug("ingested turn",
		"source", res.Source, "candidates", res.Candidates,
		"active", res.Active, "total", len(t.foci))
	return res
}

// recentTurnsLocked returns up to ContextTurns of the newest history, oldest first.
func (t *Tracker) recentTurnsLocked() []Turn {
	n := min(len(t.history), t.cfg.ContextTurns)
	return append([]Turn(nil), t.history[len(t.history)-n:]...)
}

func (t *Tracker) fociLocked() []*FocusPoint {
	out := make([]*FocusPoint, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.foci[id])
	}
	return out
}

// mergeLocked resolves each candidate to an existing focus or creates one.
// It returns the ids mentioned in this turn, in candidate order.
func (t *Tracker) mergeLocked(cands []Candidate, turn Turn, now time.Time, res *IngestResult) []string {
	var mentioned []string
	seen := make(map[string]bool)
	turnEmotion := EmotionWeight(turn.Emotion)

	for _, c := range cands {
		emotion := c.Emotion
		if emotion <= 0 {
			emotion = turnEmotion
		}

		m := Resolve(c.Label, c.Aliases, t.fociLocked(), t.cfg.Tokenizer, t.cfg.FuzzyThreshold)
		var f *FocusPoint
		if m.Kind == NoMatch {
			f = t.createLocked(c, now)
			res.Created = append(res.Created, f.ID)
		} else {
			f = t.foci[m.ID]
			if seen[f.ID] {
				// Two candidates in one turn folding into the same focus count
				// once. The candidate's aliases and links still apply; the stronger emotion wins.
				addAliases(f, c.Label)
				addAliases(f, c.Aliases...)
			} else {
				mergeInto(f, c, now)
				res.Merged = append(res.Merged, f.ID)
				t.logger.Debug("merged focus", "label", f.Label, "match", m.Kind.String(), "score", m.Score)
			}
		}
		if emotion > 0 && (!seen[f.ID] || emotion > f.Scores.Emotion) {
			f.Scores.Emotion = clamp01(emotion)
		}
		if !seen[f.ID] {
			seen[f.ID] = true
			mentioned = append(mentioned, f.ID)
		}

		for _, rel := range c.Related {
			rm := Resolve(rel, nil, t.fociLocked(), t.cfg.Tokenizer, t.cfg.FuzzyThreshold)
			if rm.Kind != NoMatch && rm.ID != f.ID {
				t.linkLocked(f.ID, rm.ID)
			}
		}
	}

	for i := range mentioned {
		for j := i + 1; j < len(mentioned); j++ {
			t.linkLocked(mentioned[i], mentioned[j])
		}
	}
	return mentioned
}

func (t *Tracker) createLocked(c Candidate, now time.Time) *FocusPoint {
	typ := c.Type
	if typ == "" {
		typ = TypeTopic
	}
	f := &FocusPoint{
		ID:          uuid.NewString(),
		Type:        typ,
		Label:       c.Label,
		State:       StateEmerging,
		Mentions:    1,
		FirstSeen:   now,
		LastUpdated: now,
		MentionedAt: []time.Time{now},
		Features:    copyAny(c.Features),
		Metadata:    copyStrings(c.Metadata),
	}
	addAliases(f, c.Aliases...)
	t.foci[f.ID] = f
	t.order = append(t.order, f.ID)
	return f
}

// mergeInto folds a fresh mention of c into f.
func mergeInto(f *FocusPoint, c Candidate, now time.Time) {
	addAliases(f, c.Label)
	addAliases(f, c.Aliases...)
	f.Mentions++
	f.MentionedAt = append(f.MentionedAt, now)
	if over := len(f.MentionedAt) - MaxMentions; over > 0 {
		f.MentionedAt = append([]time.Time(nil), f.MentionedAt[over:]...)
	}
	if now.Before(f.FirstSeen) {
		f.FirstSeen = now
	}
	if now.After(f.LastUpdated) {
		f.LastUpdated = now
	}
	for k, v := range c.Metadata {
		if f.Metadata == nil {
			f.Metadata = make(map[string]string)
		}
		f.Metadata[k] = v
	}
	for k, v := range c.Features {
		if f.Features == nil {
			f.Features = make(map[string]any)
		}
		f.Features[k] = v
	}
}

// addAliases unions names into f's aliases, skipping the canonical label and
// duplicates under normalization.
func addAliases(f *FocusPoint, names ...string) {
	canon := normalize(f.Label)
	for _, n := range names {
		key := normalize(n)
		if key == "" || key == canon {
			continue
		}
		dup := false
		for _, a := range f.Aliases {
			if normalize(a) == key {
				dup = true
				break
			}
		}
		if !dup {
			f.Aliases = append(f.Aliases, n)
		}
	}
}

func (t *Tracker) linkLocked(a, b string) {
	fa, fb := t.foci[a], t.foci[b]
	if fa == nil || fb == nil || a == b {
		return
	}
	fa.Linked = appendUnique(fa.Linked, b)
	fb.Linked = appendUnique(fb.Linked, a)
}

func appendUnique(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// recordDriftLocked logs a move from the previous top focus to each focus
// mentioned now.
func (t *Tracker) recordDriftLocked(mentioned []string, now time.Time) {
	prev := t.top
	if len(mentioned) > 0 {
		t.recent = append([]string(nil), mentioned...)
		if prev != "" {
			t.recent = append(t.recent, prev)
		}
	}
	if prev == "" {
		return
	}
	for _, id := range mentioned {
		t.drift.Record(FocusTransition{At: now, From: prev, To: id, Strength: 1, Reason: "mention"})
	}
}

func (t *Tracker) rescoreLocked(now time.Time) {
	for _, f := range t.foci {
		linked := 0
		for _, id := range f.Linked {
			if _, ok := t.foci[id]; ok {
				linked++
			}
		}
		s := f.Scores
		s.Recency = Recency(now.Sub(f.LastUpdated))
		s.Repetition = Repetition(f.Mentions)
		s.Causal = Causal(linked)
		s.Drift = t.drift.Score(f.ID, t.recent)
		s.Salience = Salience(s)
		f.Scores = s
	}
}

// classifyLocked assigns tiers and returns how many foci were force-promoted.
func (t *Tracker) classifyLocked(now time.Time, mentioned []string) int {
	all := t.fociLocked()
	sortBySalience(all)

	var sum float64
	for _, f := range all {
		sum += f.Scores.Salience
	}
	t.threshold = t.cfg.BaseThreshold
	if len(all) > 0 {
		t.threshold = max(t.cfg.BaseThreshold, sum/float64(len(all)))
	}

	isNew := make(map[string]bool, len(mentioned))
	for _, id := range mentioned {
		if f := t.foci[id]; f != nil && f.Mentions == 1 && f.FirstSeen.Equal(now) {
			isNew[id] = true
		}
	}

	active := 0
	assigned := make(map[string]bool, len(all))
	for _, f := range all {
		if active < t.cfg.MaxActive && f.Scores.Salience >= t.threshold {
			f.State = StateActive
			assigned[f.ID] = true
			active++
		}
	}

	// Forced promotion: an empty or thin extraction must not collapse the
	// active tier below its floor while scored foci remain.
	promoted := 0
	for _, f := range all {
		if active >= t.cfg.MinActive {
			break
		}
		if assigned[f.ID] || f.Scores.Salience <= 0 {
			continue
		}
		f.State = StateActive
		assigned[f.ID] = true
		active++
		promoted++
	}

	for _, f := range all {
		if assigned[f.ID] {
			continue
		}
		switch {
		case isNew[f.ID]:
			f.State = StateEmerging
		case f.Scores.Salience >= t.threshold/2:
			f.State = StateLatent
		case now.Sub(f.LastUpdated) > t.cfg.PruneAge:
			f.State = StateFading
		default:
			f.State = StateBackground
		}
	}

	t.top = ""
	for _, f := range all {
		if f.State == StateActive {
			t.top = f.ID
			break
		}
	}
	return promoted
}

// pruneLocked drops stale, sub-threshold foci outside the active tier.
func (t *Tracker) pruneLocked(now time.Time) int {
	var drop []string
	for _, id := range t.order {
		f := t.foci[id]
		if f.State == StateActive {
			continue
		}
		if now.Sub(f.LastUpdated) > t.cfg.PruneAge && f.Scores.Salience < t.threshold {
			drop = append(drop, id)
		}
	}
	if len(drop) == 0 {
		return 0
	}

	gone := make(map[string]bool, len(drop))
	for _, id := range drop {
		gone[id] = true
		delete(t.foci, id)
		t.drift.Forget(id)
		t.logger.Debug("pruned focus", "id", id)
	}
	kept := t.order[:0]
	for _, id := range t.order {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	t.order = kept
	for _, f := range t.foci {
		links := f.Linked[:0]
		for _, id := range f.Linked {
			if !gone[id] {
				links = append(links, id)
			}
		}
		f.Linked = links
	}
	return len(drop)
}

func sortBySalience(fs []*FocusPoint) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Scores.Salience != b.Scores.Salience {
			return a.Scores.Salience > b.Scores.Salience
		}
		return a.LastUpdated.After(b.LastUpdated)
	})
}

func (t *Tracker) snapshot(keep func(*FocusPoint) bool) []FocusPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.fociLocked()
	sortBySalience(all)
	out := make([]FocusPoint, 0, len(all))
	for _, f := range all {
		if keep == nil || keep(f) {
			out = append(out, f.clone())
		}
	}
	return out
}

// Active returns the active tier, highest salience first.
func (t *Tracker) Active() []FocusPoint {
	return t.snapshot(func(f *FocusPoint) bool { return f.State == StateActive })
}

// Latent returns the latent tier, highest salience first.
func (t *Tracker) Latent() []FocusPoint {
	return t.snapshot(func(f *FocusPoint) bool { return f.State == StateLatent })
}

// All returns every tracked focus, highest salience first.
func (t *Tracker) All() []FocusPoint {
	return t.snapshot(nil)
}

// Top returns up to n foci, active ones first, each group by salience.
// n <= 0 returns all.
func (t *Tracker) Top(n int) []FocusPoint {
	all := t.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].State == StateActive && all[j].State != StateActive
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// TopLabels returns the canonical labels of Top(n).
func (t *Tracker) TopLabels(n int) []string {
	top := t.Top(n)
	labels := make([]string, len(top))
	for i, f := range top {
		labels[i] = f.Label
	}
	return labels
}

// Get returns a copy of one focus.
func (t *Tracker) Get(id string) (FocusPoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.foci[id]
	if !ok {
		return FocusPoint{}, false
	}
	return f.clone(), true
}

// Transitions returns the retained transition history, oldest first.
func (t *Tracker) Transitions() []FocusTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.drift.History()
}

// Forecast predicts up to n foci likely to follow the current top focus.
func (t *Tracker) Forecast(n int) []FocusPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.top == "" {
		return nil
	}
	var out []FocusPoint
	for _, p := range t.drift.Predict(t.top, n) {
		if f, ok := t.foci[p.ID]; ok {
			out = append(out, f.clone())
		}
	}
	return out
}

// Statistics summarises the tracker.
func (t *Tracker) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := Statistics{
		Total:       len(t.foci),
		ByState:     make(map[State]int),
		ByType:      make(map[Type]int),
		Transitions: t.drift.Len(),
		History:     len(t.history),
		Threshold:   t.threshold,
	}
	for _, f := range t.foci {
		st.ByState[f.State]++
		st.ByType[f.Type]++
	}
	return st
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func copyAny(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
