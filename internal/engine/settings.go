package engine

import (
	"time"

	"github.com/lazypower/attend/internal/config"
	"github.com/lazypower/attend/internal/focus"
	"github.com/lazypower/attend/internal/pool"
	"github.com/lazypower/attend/internal/priority"
)

// Settings collects the tunables of every component the engine owns.
type Settings struct {
	Focus    focus.Config
	Params   priority.Params
	Weights  pool.Weights
	PoolSize int
	Manager  pool.ManagerConfig
	// TopN is how many focus labels drive retrieval after a turn.
	TopN int
}

// DefaultSettings returns each component's defaults.
func DefaultSettings() Settings {
	return Settings{
		Focus:    focus.DefaultConfig(),
		Params:   priority.DefaultParams(),
		Weights:  pool.DefaultWeights(),
		PoolSize: pool.DefaultMaxSize,
		Manager:  pool.DefaultManagerConfig(),
		TopN:     5,
	}
}

// SettingsFromConfig maps a validated config onto engine settings.
func SettingsFromConfig(cfg config.Config) Settings {
	s := DefaultSettings()

	f := cfg.Focus
	s.Focus.MinActive = f.MinActive
	s.Focus.MaxActive = f.MaxActive
	s.Focus.BaseThreshold = f.BaseThreshold
	s.Focus.FuzzyThreshold = f.FuzzyThreshold
	s.Focus.PruneAge = time.Duration(f.PruneAfterMinutes) * time.Minute
	s.Focus.ExtractTimeout = time.Duration(f.ExtractTimeoutSeconds) * time.Second
	if f.Tokenizer == "whitespace" {
		s.Focus.Tokenizer = focus.WhitespaceTokenizer{}
	}
	if f.TopN > 0 {
		s.TopN = f.TopN
	}

	p := cfg.Priority
	s.Params = priority.Params{
		ThetaTime:  p.ThetaTime,
		ThetaReact: p.ThetaReact,
		ThetaSem:   p.ThetaSem,
		ThetaDiff:  p.ThetaDiff,
		Lambda:     p.Lambda,
		Alpha:      p.Alpha,
		Beta:       p.Beta,
		Gamma:      p.Gamma,
		MaxHops:    p.MaxHops,
		Strategy:   priority.Strategy(p.Strategy),
	}

	pc := cfg.Pool
	s.Weights = pool.Weights{
		Embedding:      pc.WeightEmbedding,
		Constraint:     pc.WeightConstraint,
		Recency:        pc.WeightRecency,
		StalenessHours: pc.StalenessHours,
	}
	s.PoolSize = pc.MaxSize
	s.Manager = pool.ManagerConfig{
		K:           pc.CandidateK,
		Threshold:   pc.SimilarityThreshold,
		Concurrency: pc.Concurrency,
		Constraints: pool.DefaultConstraints(
			hours(pc.FreshnessWindowHours),
			hours(pc.ProximityDays*24),
		),
	}
	return s
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
