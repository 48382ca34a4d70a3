package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/attend/internal/logging"
)

// ErrExtractTimeout is reported when a strategy exceeds its time bound.
var ErrExtractTimeout = errors.New("extraction timed out")

// ChainState is what a strategy guard can see of the tracker.
type ChainState struct {
	Foci    int
	History int
}

// Fallback is one named extraction strategy in a degradation chain.
type Fallback struct {
	Name      string
	Extractor Extractor
	// Timeout bounds a single attempt. Zero means no bound beyond ctx.
	Timeout time.Duration
	// Local marks an in-process strategy. It runs inline and ignores
	// cancellation of the caller's context.
	Local bool
	// When gates the strategy. Nil always runs.
	When func(ChainState) bool
}

// Attempt records what one strategy did during a run.
type Attempt struct {
	Name       string
	Skipped    bool
	Candidates int
	Err        error
}

// Outcome is the result of running a chain.
type Outcome struct {
	// Source is the strategy whose candidates were used, empty when none.
	Source     string
	Candidates []Candidate
	// PrimaryEmpty is set when the first strategy produced nothing,
	// either by returning no candidates or by failing.
	PrimaryEmpty bool
	Attempts     []Attempt
}

// Chain is an ordered list of strategies; the first one yielding candidates wins.
type Chain []Fallback

// DefaultChain wires the collaborator first and the rule-based extractor as
// the second layer, which only runs when nothing is tracked yet but the
// conversation has history.
func DefaultChain(primary Extractor, timeout time.Duration) Chain {
	var c Chain
	if primary != nil {
		fb := Fallback{Name: "collaborator", Extractor: primary, Timeout: timeout}
		if _, ok := primary.(*RuleExtractor); ok {
			fb.Timeout, fb.Local = 0, true
		}
		c = append(c, fb)
	}
	c = append(c, Fallback{
		Name:      "rule-based",
		Extractor: NewRuleExtractor(),
		Local:     true,
		When:      func(s ChainState) bool { return s.Foci == 0 && s.History > 0 },
	})
	return c
}

// Run tries each strategy in order. Errors are logged and recorded, never returned.
func (c Chain) Run(ctx context.Context, turn Turn, recent []Turn, st ChainState, logger *log.Logger) Outcome {
	logger = logging.OrDiscard(logger)
	var out Outcome
	for i, fb := range c {
		if fb.When != nil && !fb.When(st) {
			out.Attempts = append(out.Attempts, Attempt{Name: fb.Name, Skipped: true})
			continue
		}

		cands, err := runBounded(ctx, fb, turn, recent)
		out.Attempts = append(out.Attempts, Attempt{Name: fb.Name, Candidates: len(cands), Err: err})
		if err != nil {
			logger.Warn("extraction failed", "strategy", fb.Name, "error", err)
		}

		if len(cands) > 0 && err == nil {
			out.Source = fb.Name
			out.Candidates = cands
			return out
		}
		if i == 0 {
			out.PrimaryEmpty = true
		}
	}
	return out
}

type extractResult struct {
	cands []Candidate
	err   error
}

// runBounded runs one attempt, abandoning it when its deadline passes even if
// the extractor ignores cancellation. Local strategies run inline.
func runBounded(ctx context.Context, fb Fallback, turn Turn, recent []Turn) (cands []Candidate, err error) {
	if fb.Local {
		return runLocal(context.WithoutCancel(ctx), fb, turn, recent)
	}
	if fb.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fb.Timeout)
		defer cancel()
	}

	done := make(chan extractResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extractResult{err: fmt.Errorf("extractor panic: %v", r)}
			}
		}()
		c, err := fb.Extractor.Extract(ctx, turn, recent)
		done <- extractResult{cands: c, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", fb.Name, ErrExtractTimeout)
		}
		return res.cands, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", fb.Name, ErrExtractTimeout)
		}
		return nil, fmt.Errorf("%s: %w", fb.Name, ctx.Err())
	}
}

func runLocal(ctx context.Context, fb Fallback, turn Turn, recent []Turn) (cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands, err = nil, fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return fb.Extractor.Extract(ctx, turn, recent)
}
