package statistic

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"load-analytics/internal/analysis/domain/series"
)

// HourStat summarises all readings taken in one hour of the day.
type HourStat struct {
	Hour  int      `json:"hour"`
	Count int      `json:"count"`
	Mean  float64  `json:"mean"`
	Max   float64  `json:"max"`
	Min   float64  `json:"min"`
	Stdev Optional `json:"stdev"`
}

// HourlyProfile groups readings by hour of day across the whole series.
// Hours without readings are omitted.
func HourlyProfile(s *series.Series) []HourStat {
	var buckets [24][]float64
	for _, p := range s.Points() {
		h := p.Timestamp.Hour()
		buckets[h] = append(buckets[h], p.Value)
	}
	out := make([]HourStat, 0, 24)
	for h, values := range buckets {
		if len(values) == 0 {
			continue
		}
		hs := HourStat{
			Hour:  h,
			Count: len(values),
			Mean:  stat.Mean(values, nil),
			Max:   floats.Max(values),
			Min:   floats.Min(values),
		}
		if len(values) >= 2 {
			hs.Stdev = Some(stat.StdDev(values, nil))
		}
		out = append(out, hs)
	}
	return out
}
