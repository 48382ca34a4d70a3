package focus

import (
	"math"
	"strings"
	"time"
)

// Salience weights.
const (
	weightRecency    = 0.25
	weightRepetition = 0.20
	weightEmotion    = 0.15
	weightCausal     = 0.20
	weightDrift      = 0.20
)

const (
	recencyHalfScale = 300 * time.Second
	recencyExponent  = 0.7

	// repetition saturates at this many mentions.
	repetitionCeiling = 20

	// linked foci needed for full causal connectivity.
	causalSaturation = 5
)

// Recency is the slow-tail decay 1/(1+(Δt/300s)^0.7). Negative ages count as 0.
func Recency(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	x := age.Seconds() / recencyHalfScale.Seconds()
	return 1 / (1 + math.Pow(x, recencyExponent))
}

// Repetition is log(1+n)/log(21), capped at 1.
func Repetition(mentions int) float64 {
	if mentions <= 0 {
		return 0
	}
	return math.Min(1, math.Log(1+float64(mentions))/math.Log(1+repetitionCeiling))
}

// Causal maps the number of linked, still-tracked foci into [0,1].
func Causal(linked int) float64 {
	return math.Min(1, float64(linked)/causalSaturation)
}

// Salience combines the component scores.
func Salience(s Scores) float64 {
	return weightRecency*s.Recency +
		weightRepetition*s.Repetition +
		weightEmotion*s.Emotion +
		weightCausal*s.Causal +
		weightDrift*s.Drift
}

// emotionLexicon maps coarse emotion labels from the understanding pipeline
// to an intensity. Unknown labels score as neutral.
var emotionLexicon = map[string]float64{
	"neutral":    0.1,
	"calm":       0.2,
	"curious":    0.4,
	"interested": 0.4,
	"happy":      0.6,
	"positive":   0.6,
	"surprised":  0.6,
	"sad":        0.7,
	"negative":   0.7,
	"worried":    0.7,
	"anxious":    0.8,
	"frustrated": 0.8,
	"excited":    0.8,
	"angry":      0.9,
	"fear":       0.9,
	"urgent":     0.9,
}

// EmotionWeight turns a coarse emotion label into an intensity in [0,1].
func EmotionWeight(label string) float64 {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return 0
	}
	if w, ok := emotionLexicon[label]; ok {
		return w
	}
	return emotionLexicon["neutral"]
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
