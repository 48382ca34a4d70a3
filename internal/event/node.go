package event

import (
	"time"
)

// MaxActivations bounds the activation history carried by a node.
const MaxActivations = 100

// Activation records one occasion on which a node was judged relevant.
type Activation struct {
	At         time.Time `json:"at"`
	Similarity float64   `json:"similarity"`
}

// Node is an event record that can be ranked against a query.
type Node struct {
	ID          string       `json:"id"`
	Embedding   []float64    `json:"embedding,omitempty"`
	StartAt     *time.Time   `json:"start_at,omitempty"`
	EndAt       *time.Time   `json:"end_at,omitempty"`
	Location    string       `json:"location,omitempty"`
	Purpose     string       `json:"purpose,omitempty"`
	Result      string       `json:"result,omitempty"`
	Entities    []string     `json:"entities,omitempty"`
	LastSeen    time.Time    `json:"last_seen,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at,omitempty"`
	Activations []Activation `json:"activations,omitempty"`
}

// Activate appends an activation, evicting the oldest entries so the history
// never exceeds MaxActivations, and moves LastSeen forward.
func (n *Node) Activate(at time.Time, similarity float64) {
	n.Activations = append(n.Activations, Activation{At: at, Similarity: similarity})
	if over := len(n.Activations) - MaxActivations; over > 0 {
		kept := make([]Activation, MaxActivations)
		copy(kept, n.Activations[over:])
		n.Activations = kept
	}
	if at.After(n.LastSeen) {
		n.LastSeen = at
	}
}

// LastActivation returns the time of the most recent recorded activation.
func (n *Node) LastActivation() (time.Time, bool) {
	var last time.Time
	for _, a := range n.Activations {
		if a.At.After(last) {
			last = a.At
		}
	}
	return last, !last.IsZero()
}

// ReferenceTime is the instant temporal decay is measured from: the last
// activation, else the start time, else the last update.
func (n *Node) ReferenceTime() time.Time {
	if t, ok := n.LastActivation(); ok {
		return t
	}
	if !n.LastSeen.IsZero() {
		return n.LastSeen
	}
	if n.StartAt != nil && !n.StartAt.IsZero() {
		return *n.StartAt
	}
	return n.UpdatedAt
}

// Text is the searchable surface used for embedding.
func (n *Node) Text() string {
	switch {
	case n.Purpose != "" && n.Result != "":
		return n.Purpose + "\n" + n.Result
	case n.Purpose != "":
		return n.Purpose
	default:
		return n.Result
	}
}

// Clone returns a deep copy so callers never share slices with the owner.
func (n Node) Clone() Node {
	c := n
	if n.Embedding != nil {
		c.Embedding = append([]float64(nil), n.Embedding...)
	}
	if n.Entities != nil {
		c.Entities = append([]string(nil), n.Entities...)
	}
	if n.Activations != nil {
		c.Activations = append([]Activation(nil), n.Activations...)
	}
	if n.StartAt != nil {
		t := *n.StartAt
		c.StartAt = &t
	}
	if n.EndAt != nil {
		t := *n.EndAt
		c.EndAt = &t
	}
	return c
}

// Hit is a node returned by a similarity lookup with its raw cosine score.
type Hit struct {
	Node       Node    `json:"node"`
	Similarity float64 `json:"similarity"`
}
