package priority

import (
	"errors"
	"fmt"
	"math"
)

// Strategy selects how priority turns into a ranking score.
type Strategy string

const (
	// Multiplicative ranks by cos·(1+P̃).
	Multiplicative Strategy = "multiplicative"
	// Softmax ranks by cos·softmax(P̃) over the batch.
	Softmax Strategy = "softmax"
)

var (
	ErrWeightSum = errors.New("priority weights must sum to 1")
	ErrNegative  = errors.New("priority parameters must be non-negative")
	ErrMaxHops   = errors.New("max hops must be at least 1")
	ErrStrategy  = errors.New("unknown ranking strategy")
)

const weightSumTolerance = 1e-6

// Params are the tunable weights and decay constants of the scorer.
type Params struct {
	ThetaTime  float64  `json:"theta_time"`
	ThetaReact float64  `json:"theta_react"`
	ThetaSem   float64  `json:"theta_sem"`
	ThetaDiff  float64  `json:"theta_diff"`
	Lambda     float64  `json:"lambda"`
	Alpha      float64  `json:"alpha"`
	Beta       float64  `json:"beta"`
	Gamma      float64  `json:"gamma"`
	MaxHops    int      `json:"max_hops"`
	Strategy   Strategy `json:"strategy"`
}

// DefaultParams returns the standard configuration.
func DefaultParams() Params {
	return Params{
		ThetaTime:  0.3,
		ThetaReact: 0.4,
		ThetaSem:   0.2,
		ThetaDiff:  0.1,
		Lambda:     0.01,
		Alpha:      1.0,
		Beta:       0.01,
		Gamma:      0.5,
		MaxHops:    1,
		Strategy:   Multiplicative,
	}
}

// Validate reports the first problem with p.
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"theta_time": p.ThetaTime, "theta_react": p.ThetaReact,
		"theta_sem": p.ThetaSem, "theta_diff": p.ThetaDiff,
		"lambda": p.Lambda, "alpha": p.Alpha, "beta": p.Beta, "gamma": p.Gamma,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s=%v: %w", name, v, ErrNegative)
		}
	}
	if sum := p.ThetaTime + p.ThetaReact + p.ThetaSem + p.ThetaDiff; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("got %.4f: %w", sum, ErrWeightSum)
	}
	if p.MaxHops < 1 {
		return ErrMaxHops
	}
	switch p.Strategy {
	case Multiplicative, Softmax:
	default:
		return fmt.Errorf("%q: %w", p.Strategy, ErrStrategy)
	}
	return nil
}
