package series

import (
	"sort"
	"time"
)

// Reading is one observation of instantaneous power for an entity.
type Reading struct {
	EntityID  string
	Timestamp time.Time
	Power     float64
}

// Point is a timestamped value inside a Series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is the chronological readings of exactly one entity. Timestamps are
// strictly increasing; a duplicate timestamp keeps the latest value by input order.
type Series struct {
	entityID string
	points   []Point
}

// FromPoints builds a Series, sorting points and collapsing duplicate
// timestamps so that the later point in input order wins.
func FromPoints(entityID string, points []Point) *Series {
	out := make([]Point, 0, len(points))
	index := make(map[int64]int, len(points))
	for _, p := range points {
		key := p.Timestamp.UnixNano()
		if pos, ok := index[key]; ok {
			out[pos].Value = p.Value
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return &Series{entityID: entityID, points: out}
}

// Empty returns a series without readings.
func Empty(entityID string) *Series {
	return &Series{entityID: entityID}
}

// EntityID returns the metered entity identifier.
func (s *Series) EntityID() string {
	if s == nil {
		return ""
	}
	return s.entityID
}

// Len returns the number of readings.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// IsEmpty reports whether the series has no readings.
func (s *Series) IsEmpty() bool { return s.Len() == 0 }

// At returns the i-th point.
func (s *Series) At(i int) Point { return s.points[i] }

// Points returns a copy of the points.
func (s *Series) Points() []Point {
	if s == nil {
		return nil
	}
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns the reading values in timestamp order.
func (s *Series) Values() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}

// Readings returns the series as entity readings.
func (s *Series) Readings() []Reading {
	if s == nil {
		return nil
	}
	out := make([]Reading, len(s.points))
	for i, p := range s.points {
		out[i] = Reading{EntityID: s.entityID, Timestamp: p.Timestamp, Power: p.Value}
	}
	return out
}

// First returns the earliest point.
func (s *Series) First() (Point, bool) {
	if s.IsEmpty() {
		return Point{}, false
	}
	return s.points[0], true
}

// Last returns the latest point.
func (s *Series) Last() (Point, bool) {
	if s.IsEmpty() {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Between returns the readings in [from, to).
func (s *Series) Between(from, to time.Time) *Series {
	return s.Filter(func(p Point) bool {
		return !p.Timestamp.Before(from) && p.Timestamp.Before(to)
	})
}

// Filter returns the readings accepted by keep. Order is preserved.
func (s *Series) Filter(keep func(Point) bool) *Series {
	if s == nil {
		return Empty("")
	}
	out := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		if keep(p) {
			out = append(out, p)
		}
	}
	return &Series{entityID: s.entityID, points: out}
}
