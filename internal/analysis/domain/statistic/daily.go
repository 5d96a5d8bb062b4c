package statistic

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"load-analytics/internal/analysis/domain/series"
)

// DailyStat is the load shape of one calendar day.
type DailyStat struct {
	Day        time.Time `json:"day"`
	Count      int       `json:"count"`
	Mean       float64   `json:"mean"`
	Max        float64   `json:"max"`
	Min        float64   `json:"min"`
	Stdev      Optional  `json:"stdev"`
	PeakValley float64   `json:"peak_valley"`
	LoadFactor Optional  `json:"load_factor"`
	Volatility Optional  `json:"volatility"`
}

// MonthlyStat is the mean of daily means over the days of one month present in a series.
type MonthlyStat struct {
	Month time.Time `json:"month"`
	Mean  float64   `json:"mean"`
	Days  int       `json:"days"`
}

// Profile is the full derived load shape of one entity.
type Profile struct {
	EntityID string        `json:"entity_id"`
	Daily    []DailyStat   `json:"daily"`
	Monthly  []MonthlyStat `json:"monthly"`
}

// Compute derives daily and monthly statistics for a series.
func Compute(s *series.Series) Profile {
	daily := ComputeDaily(s)
	return Profile{
		EntityID: s.EntityID(),
		Daily:    daily,
		Monthly:  ComputeMonthly(daily),
	}
}

// ComputeDaily buckets readings by calendar date in their own location.
// Days without readings produce no entry.
func ComputeDaily(s *series.Series) []DailyStat {
	if s.IsEmpty() {
		return nil
	}
	var (
		out    []DailyStat
		values []float64
		day    time.Time
	)
	flush := func() {
		if len(values) > 0 {
			out = append(out, newDailyStat(day, values))
		}
		values = values[:0]
	}
	for _, p := range s.Points() {
		d := startOfDay(p.Timestamp)
		if !d.Equal(day) {
			flush()
			day = d
		}
		values = append(values, p.Value)
	}
	flush()
	return out
}

func newDailyStat(day time.Time, values []float64) DailyStat {
	st := DailyStat{
		Day:   day,
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		Max:   floats.Max(values),
		Min:   floats.Min(values),
	}
	st.PeakValley = st.Max - st.Min
	if len(values) >= 2 {
		st.Stdev = Some(stat.StdDev(values, nil))
	}
	if st.Max != 0 {
		st.LoadFactor = Some(st.Mean / st.Max)
	}
	if st.Stdev.Valid && st.Mean != 0 {
		st.Volatility = Some(st.Stdev.Value / st.Mean)
	}
	return st
}

// ComputeMonthly averages daily means per calendar month.
// Months with no daily entry produce no MonthlyStat.
func ComputeMonthly(daily []DailyStat) []MonthlyStat {
	var (
		out   []MonthlyStat
		means []float64
		month time.Time
	)
	flush := func() {
		if len(means) > 0 {
			out = append(out, MonthlyStat{Month: month, Mean: stat.Mean(means, nil), Days: len(means)})
		}
		means = means[:0]
	}
	for _, d := range daily {
		m := startOfMonth(d.Day)
		if !m.Equal(month) {
			flush()
			month = m
		}
		means = append(means, d.Mean)
	}
	flush()
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
