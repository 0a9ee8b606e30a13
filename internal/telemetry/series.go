package telemetry

import (
	"sort"
	"time"
)

// DefaultMaxDataPoints caps every live series.
const DefaultMaxDataPoints = 40

// Sample is one live sensor value.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is a bounded, append-only window of samples. The oldest sample is
// evicted once the limit is reached.
type Series struct {
	limit  int
	points []Sample
}

func NewSeries(limit int) *Series {
	if limit <= 0 {
		limit = DefaultMaxDataPoints
	}
	return &Series{limit: limit, points: make([]Sample, 0, limit)}
}

func (s *Series) Append(p Sample) {
	if len(s.points) < s.limit {
		s.points = append(s.points, p)
		return
	}
	copy(s.points, s.points[1:])
	s.points[len(s.points)-1] = p
}

func (s *Series) Len() int { return len(s.points) }

// Points returns a copy sorted by timestamp. Arrival order is not trusted
// since resubscription can replay out of order.
func (s *Series) Points() []Sample {
	out := make([]Sample, len(s.points))
	copy(out, s.points)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
