package statistic

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultAnomalyThreshold flags days more than two standard deviations from the mean.
const DefaultAnomalyThreshold = 2.0

// Anomaly is a day whose mean deviates from the reference distribution.
type Anomaly struct {
	Day    time.Time `json:"day"`
	Mean   float64   `json:"mean"`
	ZScore float64   `json:"z_score"`
}

// ZScores standardises daily means. With window <= 0 the whole sequence is
// the reference; otherwise the trailing window of entries ending at each
// day is used and earlier days are missing.
func ZScores(daily []DailyStat, window int) []Optional {
	out := make([]Optional, len(daily))
	means := make([]float64, len(daily))
	for i, d := range daily {
		means[i] = d.Mean
	}
	if window <= 0 {
		mu, sigma := meanStd(means)
		for i, v := range means {
			out[i] = zscore(v, mu, sigma)
		}
		return out
	}
	for i := window - 1; i < len(means); i++ {
		mu, sigma := meanStd(means[i-window+1 : i+1])
		out[i] = zscore(means[i], mu, sigma)
	}
	return out
}

// Anomalies returns the days whose |z| exceeds threshold.
func Anomalies(daily []DailyStat, window int, threshold float64) []Anomaly {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}
	var out []Anomaly
	for i, z := range ZScores(daily, window) {
		if z.Valid && math.Abs(z.Value) > threshold {
			out = append(out, Anomaly{Day: daily[i].Day, Mean: daily[i].Mean, ZScore: z.Value})
		}
	}
	return out
}

func meanStd(values []float64) (float64, Optional) {
	if len(values) < 2 {
		return 0, Missing()
	}
	mu, sigma := stat.MeanStdDev(values, nil)
	return mu, Some(sigma)
}

func zscore(v, mu float64, sigma Optional) Optional {
	if !sigma.Valid || sigma.Value == 0 {
		return Missing()
	}
	return Some((v - mu) / sigma.Value)
}

// Trend compares the mean daily mean of the last days calendar days with the
// preceding days calendar days, as a percent change. It is missing when the
// profile holds fewer than 2*days entries, when either window is empty, or
// when the earlier mean is zero.
func Trend(daily []DailyStat, days int) (Optional, error) {
	if days <= 0 {
		return Missing(), ErrInvalidWindow
	}
	if len(daily) < 2*days {
		return Missing(), nil
	}
	latest := daily[len(daily)-1].Day
	recentFrom := latest.AddDate(0, 0, -days)
	prevFrom := latest.AddDate(0, 0, -2*days)
	var recent, prev []float64
	for _, d := range daily {
		switch {
		case d.Day.After(recentFrom):
			recent = append(recent, d.Mean)
		case d.Day.After(prevFrom):
			prev = append(prev, d.Mean)
		}
	}
	if len(recent) == 0 || len(prev) == 0 {
		return Missing(), nil
	}
	prevMean := stat.Mean(prev, nil)
	if prevMean == 0 {
		return Missing(), nil
	}
	return Some((stat.Mean(recent, nil) - prevMean) / prevMean * 100), nil
}
