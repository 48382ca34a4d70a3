package priority

import (
	"sort"
	"time"

	"github.com/lazypower/attend/internal/event"
)

// HistogramBuckets is the number of equal-width buckets in a Distribution.
const HistogramBuckets = 10

// Distribution summarises priorities across a candidate batch for tuning.
type Distribution struct {
	Count     int                   `json:"count"`
	Min       float64               `json:"min"`
	Max       float64               `json:"max"`
	Mean      float64               `json:"mean"`
	Median    float64               `json:"median"`
	Histogram [HistogramBuckets]int `json:"histogram"`
}

// AnalyzeDistribution scores the batch and summarises the priorities.
func (s *Scorer) AnalyzeDistribution(nodes []event.Node, query []float64, text string, now time.Time, hood Neighborhood) Distribution {
	bd := s.ScoreBatch(nodes, query, text, now, hood)
	vals := make([]float64, len(bd))
	for i, b := range bd {
		vals[i] = b.Priority
	}
	return summarize(vals)
}

func summarize(vals []float64) Distribution {
	var d Distribution
	d.Count = len(vals)
	if d.Count == 0 {
		return d
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	d.Min, d.Max = sorted[0], sorted[len(sorted)-1]

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	d.Mean = sum / float64(d.Count)

	mid := d.Count / 2
	if d.Count%2 == 0 {
		d.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		d.Median = sorted[mid]
	}

	width := (d.Max - d.Min) / HistogramBuckets
	for _, v := range sorted {
		i := 0
		if width > 0 {
			i = int((v - d.Min) / width)
		}
		if i >= HistogramBuckets {
			i = HistogramBuckets - 1
		}
		d.Histogram[i]++
	}
	return d
}
