package focus

import (
	"sort"
	"time"
)

// DefaultTransitionCap bounds the transition history kept by a DriftModel.
const DefaultTransitionCap = 200

// DriftModel keeps a bounded, append-only transition history and a
// first-order strength map between focus ids. It is owned by a Tracker and
// is not safe for concurrent use on its own.
type DriftModel struct {
	cap     int
	history []FocusTransition

	// strength[from][to] accumulates transition strength.
	strength map[string]map[string]float64
}

// NewDriftModel returns an empty model keeping at most limit transitions.
func NewDriftModel(limit int) *DriftModel {
	if limit <= 0 {
		limit = DefaultTransitionCap
	}
	return &DriftModel{
		cap:      limit,
		strength: make(map[string]map[string]float64),
	}
}

// Record appends a transition. Self-transitions and empty destinations are
// ignored. When the history is full the oldest transition is evicted and its
// strength withdrawn, so the map only reflects retained history.
func (d *DriftModel) Record(t FocusTransition) {
	if t.To == "" || t.From == t.To {
		return
	}
	t.Strength = clamp01(t.Strength)

	d.history = append(d.history, t)
	d.add(t.From, t.To, t.Strength)

	for len(d.history) > d.cap {
		old := d.history[0]
		d.history = d.history[1:]
		d.add(old.From, old.To, -old.Strength)
	}
}

func (d *DriftModel) add(from, to string, w float64) {
	row, ok := d.strength[from]
	if !ok {
		row = make(map[string]float64)
		d.strength[from] = row
	}
	row[to] += w
	if row[to] <= 1e-12 {
		delete(row, to)
	}
	if len(row) == 0 {
		delete(d.strength, from)
	}
}

// Probability is the normalized transition strength P(to|from).
func (d *DriftModel) Probability(from, to string) float64 {
	row := d.strength[from]
	var total float64
	for _, w := range row {
		total += w
	}
	if total == 0 {
		return 0
	}
	return row[to] / total
}

// Score is the drift-predictive component for id: the strongest P(id|r) over
// the recently mentioned foci r.
func (d *DriftModel) Score(id string, recent []string) float64 {
	var best float64
	for _, r := range recent {
		if r == id {
			continue
		}
		if p := d.Probability(r, id); p > best {
			best = p
		}
	}
	return clamp01(best)
}

// Prediction is a forecast next focus with its probability.
type Prediction struct {
	ID          string  `json:"id"`
	Probability float64 `json:"probability"`
}

// Predict returns up to n likely next foci after from, most likely first.
func (d *DriftModel) Predict(from string, n int) []Prediction {
	row := d.strength[from]
	out := make([]Prediction, 0, len(row))
	for to := range row {
		out = append(out, Prediction{ID: to, Probability: d.Probability(from, to)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Forget drops every transition touching id.
func (d *DriftModel) Forget(id string) {
	kept := d.history[:0]
	for _, t := range d.history {
		if t.From == id || t.To == id {
			d.add(t.From, t.To, -t.Strength)
			continue
		}
		kept = append(kept, t)
	}
	d.history = kept
}

// History returns a copy of the retained transitions, oldest first.
func (d *DriftModel) History() []FocusTransition {
	return append([]FocusTransition(nil), d.history...)
}

// Len is the number of retained transitions.
func (d *DriftModel) Len() int { return len(d.history) }

// LastTransitionAt is the time of the newest transition, or zero.
func (d *DriftModel) LastTransitionAt() time.Time {
	if len(d.history) == 0 {
		return time.Time{}
	}
	return d.history[len(d.history)-1].At
}
