package statistic

import (
	"fmt"
	"time"

	"load-analytics/internal/analysis/domain/series"
)

// Metric names a per-day derived value.
type Metric string

const (
	MetricMean       Metric = "mean"
	MetricMax        Metric = "max"
	MetricMin        Metric = "min"
	MetricStdev      Metric = "stdev"
	MetricPeakValley Metric = "peak_valley"
	MetricLoadFactor Metric = "load_factor"
	MetricVolatility Metric = "volatility"
)

// ParseMetric validates a metric name.
func ParseMetric(value string) (Metric, error) {
	switch m := Metric(value); m {
	case MetricMean, MetricMax, MetricMin, MetricStdev, MetricPeakValley, MetricLoadFactor, MetricVolatility:
		return m, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMetric, value)
}

// Value returns the metric of one day.
func (d DailyStat) Value(metric Metric) Optional {
	switch metric {
	case MetricMean:
		return Some(d.Mean)
	case MetricMax:
		return Some(d.Max)
	case MetricMin:
		return Some(d.Min)
	case MetricStdev:
		return d.Stdev
	case MetricPeakValley:
		return Some(d.PeakValley)
	case MetricLoadFactor:
		return d.LoadFactor
	case MetricVolatility:
		return d.Volatility
	}
	return Missing()
}

// Deltas returns M[d] - M[prev] for each day, where prev is the preceding
// entry of daily regardless of calendar gaps. The first day has no delta.
func Deltas(daily []DailyStat, metric Metric) []Optional {
	out := make([]Optional, len(daily))
	for i := 1; i < len(daily); i++ {
		out[i] = daily[i].Value(metric).Sub(daily[i-1].Value(metric))
	}
	return out
}

// Extremes are the raw reading max and min of one month.
type Extremes struct {
	Max   Optional  `json:"max"`
	Min   Optional  `json:"min"`
	MaxAt time.Time `json:"max_at,omitempty"`
	MinAt time.Time `json:"min_at,omitempty"`
}

// MonthExtremes scans raw readings of the given month. It does not use
// daily buckets.
func MonthExtremes(s *series.Series, year int, month time.Month) Extremes {
	var out Extremes
	for _, p := range s.Points() {
		y, m, _ := p.Timestamp.Date()
		if y != year || m != month {
			continue
		}
		if !out.Max.Valid || p.Value > out.Max.Value {
			out.Max = Some(p.Value)
			out.MaxAt = p.Timestamp
		}
		if !out.Min.Valid || p.Value < out.Min.Value {
			out.Min = Some(p.Value)
			out.MinAt = p.Timestamp
		}
	}
	return out
}

// HeadlineMetric is a value and its change from the previous present day.
type HeadlineMetric struct {
	Value Optional `json:"value"`
	Delta Optional `json:"delta"`
}

// Headline is the summary of one selected day.
type Headline struct {
	EntityID   string         `json:"entity_id"`
	Day        time.Time      `json:"day"`
	Found      bool           `json:"found"`
	Mean       HeadlineMetric `json:"mean"`
	LoadFactor HeadlineMetric `json:"load_factor"`
	Stdev      HeadlineMetric `json:"stdev"`
	Volatility HeadlineMetric `json:"volatility"`
	Month      Extremes       `json:"month"`
}

// DayHeadline builds the headline of day. A day absent from the profile
// yields Found=false with every metric missing; month extremes are still
// computed from raw readings.
func DayHeadline(profile Profile, s *series.Series, day time.Time) Headline {
	y, m, _ := day.Date()
	h := Headline{
		EntityID: profile.EntityID,
		Day:      startOfDay(day),
		Month:    MonthExtremes(s, y, m),
	}
	idx := -1
	for i, d := range profile.Daily {
		if sameDay(d.Day, day) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return h
	}
	h.Found = true
	h.Mean = headlineMetric(profile.Daily, idx, MetricMean)
	h.LoadFactor = headlineMetric(profile.Daily, idx, MetricLoadFactor)
	h.Stdev = headlineMetric(profile.Daily, idx, MetricStdev)
	h.Volatility = headlineMetric(profile.Daily, idx, MetricVolatility)
	return h
}

func headlineMetric(daily []DailyStat, idx int, metric Metric) HeadlineMetric {
	out := HeadlineMetric{Value: daily[idx].Value(metric)}
	if idx > 0 {
		out.Delta = out.Value.Sub(daily[idx-1].Value(metric))
	}
	return out
}
