package event

import (
	"math"
	"time"
)

// EdgeType classifies a relationship between two event nodes.
type EdgeType string

const (
	EdgeRevisit          EdgeType = "revisit"
	EdgeProgressOf       EdgeType = "progress_of"
	EdgeCausal           EdgeType = "causal"
	EdgeContains         EdgeType = "contains"
	EdgeTemporalSequence EdgeType = "temporal_sequence"
	EdgeRelated          EdgeType = "related"
)

// Edge is a directed, typed link used for attention diffusion.
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      EdgeType  `json:"type"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// EdgeWeight is the fixed diffusion weight for an edge category.
func EdgeWeight(t EdgeType) float64 {
	switch t {
	case EdgeRevisit, EdgeProgressOf:
		return 1.0
	case EdgeCausal:
		return 0.8
	case EdgeContains:
		return 0.7
	case EdgeTemporalSequence:
		return 0.6
	default:
		return 0.5
	}
}

// Other returns the endpoint of e that is not id.
func (e Edge) Other(id string) string {
	if e.From == id {
		return e.To
	}
	return e.From
}

// Cosine computes cosine similarity. ok is false when either vector is empty,
// the dimensions differ, or a vector has zero norm.
func Cosine(a, b []float64) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, false
	}
	return dot / denom, true
}
