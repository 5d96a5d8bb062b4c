package statistic

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"load-analytics/internal/analysis/domain/series"
)

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func buildSeries(points ...series.Point) *series.Series {
	return series.FromPoints("A1", points)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeDailySingleDay(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(1, 0), Value: 0},
		series.Point{Timestamp: at(1, 6), Value: 100},
		series.Point{Timestamp: at(1, 12), Value: 200},
		series.Point{Timestamp: at(1, 18), Value: 50},
	)
	daily := ComputeDaily(s)
	if len(daily) != 1 {
		t.Fatalf("expected 1 day, got %d", len(daily))
	}
	d := daily[0]
	if d.Mean != 87.5 || d.Max != 200 || d.Min != 0 || d.Count != 4 {
		t.Fatalf("unexpected stat: %+v", d)
	}
	if !d.LoadFactor.Valid || !almostEqual(d.LoadFactor.Value, 0.4375) {
		t.Fatalf("expected load factor 0.4375, got %v", d.LoadFactor)
	}
	if d.PeakValley != 200 {
		t.Fatalf("expected peak valley 200, got %v", d.PeakValley)
	}
	if !d.Stdev.Valid || !d.Volatility.Valid {
		t.Fatalf("expected stdev and volatility defined")
	}
}

func TestComputeDailySingleReadingIsMissing(t *testing.T) {
	s := buildSeries(series.Point{Timestamp: at(2, 9), Value: 40})
	daily := ComputeDaily(s)
	if len(daily) != 1 {
		t.Fatalf("expected 1 day, got %d", len(daily))
	}
	if daily[0].Stdev.Valid || daily[0].Volatility.Valid {
		t.Fatalf("stdev and volatility must be missing: %+v", daily[0])
	}
	if daily[0].Stdev.String() != "NA" || daily[0].Volatility.Format(2) != "" {
		t.Fatalf("missing values must render as NA and blank")
	}
	// mean/max is defined for a lone reading.
	if !daily[0].LoadFactor.Valid || daily[0].LoadFactor.Value != 1 {
		t.Fatalf("expected load factor 1 for a single reading day, got %+v", daily[0].LoadFactor)
	}
}

func TestComputeDailyZeroMaxLoadFactorMissing(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(3, 1), Value: 0},
		series.Point{Timestamp: at(3, 2), Value: 0},
	)
	d := ComputeDaily(s)[0]
	if d.LoadFactor.Valid {
		t.Fatalf("load factor must be missing when max is 0")
	}
	if d.Volatility.Valid {
		t.Fatalf("volatility must be missing when mean is 0")
	}
}

func TestLoadFactorNeverExceedsOne(t *testing.T) {
	var points []series.Point
	for day := 1; day <= 10; day++ {
		for hour := 0; hour < 24; hour += 3 {
			points = append(points, series.Point{Timestamp: at(day, hour), Value: float64((day*37+hour*11)%97) + 1})
		}
	}
	for _, d := range ComputeDaily(buildSeries(points...)) {
		if d.Max > 0 && (!d.LoadFactor.Valid || d.LoadFactor.Value > 1) {
			t.Fatalf("load factor out of range on %v: %v", d.Day, d.LoadFactor)
		}
	}
}

func TestComputeMonthlyMeanOfPresentDays(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(1, 0), Value: 10},
		series.Point{Timestamp: at(1, 12), Value: 30},
		series.Point{Timestamp: at(5, 0), Value: 50},
		series.Point{Timestamp: time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC), Value: 7},
	)
	p := Compute(s)
	if len(p.Monthly) != 2 {
		t.Fatalf("expected 2 months (april has no data), got %d", len(p.Monthly))
	}
	if p.Monthly[0].Mean != 35 || p.Monthly[0].Days != 2 {
		t.Fatalf("unexpected march stat: %+v", p.Monthly[0])
	}
	if p.Monthly[1].Month.Month() != time.May || p.Monthly[1].Mean != 7 {
		t.Fatalf("unexpected may stat: %+v", p.Monthly[1])
	}
}

func TestDeltasUsePreviousPresentDay(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(1, 0), Value: 10},
		series.Point{Timestamp: at(4, 0), Value: 25},
		series.Point{Timestamp: at(5, 0), Value: 20},
	)
	deltas := Deltas(ComputeDaily(s), MetricMean)
	if deltas[0].Valid {
		t.Fatalf("first delta must be missing")
	}
	if !deltas[1].Valid || deltas[1].Value != 15 {
		t.Fatalf("expected delta 15 across the gap, got %v", deltas[1])
	}
	if !deltas[2].Valid || deltas[2].Value != -5 {
		t.Fatalf("expected delta -5, got %v", deltas[2])
	}
	stdevDeltas := Deltas(ComputeDaily(s), MetricStdev)
	if stdevDeltas[1].Valid {
		t.Fatalf("delta of missing stdev must be missing")
	}
}

func TestDayHeadline(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(1, 0), Value: 10},
		series.Point{Timestamp: at(1, 12), Value: 30},
		series.Point{Timestamp: at(2, 0), Value: 5},
		series.Point{Timestamp: at(2, 12), Value: 95},
	)
	p := Compute(s)
	h := DayHeadline(p, s, at(2, 15))
	if !h.Found {
		t.Fatalf("expected day to be found")
	}
	if h.Mean.Value.Value != 50 || !h.Mean.Delta.Valid || h.Mean.Delta.Value != 30 {
		t.Fatalf("unexpected mean headline: %+v", h.Mean)
	}
	if h.Month.Max.Value != 95 || h.Month.Min.Value != 5 {
		t.Fatalf("unexpected month extremes: %+v", h.Month)
	}

	missing := DayHeadline(p, s, at(9, 0))
	if missing.Found {
		t.Fatalf("expected day not found")
	}
	for _, m := range []HeadlineMetric{missing.Mean, missing.LoadFactor, missing.Stdev, missing.Volatility} {
		if m.Value.Valid || m.Delta.Valid {
			t.Fatalf("metrics of an absent day must be missing: %+v", m)
		}
	}
	if !missing.Month.Max.Valid {
		t.Fatalf("month extremes do not depend on the selected day")
	}
}

func TestMonthExtremesEmptyMonth(t *testing.T) {
	s := buildSeries(series.Point{Timestamp: at(1, 0), Value: 10})
	ext := MonthExtremes(s, 2024, time.June)
	if ext.Max.Valid || ext.Min.Valid {
		t.Fatalf("expected missing extremes, got %+v", ext)
	}
}

func TestHourlyProfile(t *testing.T) {
	s := buildSeries(
		series.Point{Timestamp: at(1, 8), Value: 10},
		series.Point{Timestamp: at(2, 8), Value: 30},
		series.Point{Timestamp: at(2, 20), Value: 4},
	)
	hours := HourlyProfile(s)
	if len(hours) != 2 {
		t.Fatalf("expected 2 hours, got %d", len(hours))
	}
	if hours[0].Hour != 8 || hours[0].Mean != 20 || hours[0].Count != 2 || !hours[0].Stdev.Valid {
		t.Fatalf("unexpected hour 8: %+v", hours[0])
	}
	if hours[1].Hour != 20 || hours[1].Stdev.Valid {
		t.Fatalf("unexpected hour 20: %+v", hours[1])
	}
}

func TestAnomalies(t *testing.T) {
	var points []series.Point
	for day := 1; day <= 10; day++ {
		v := 10.0
		if day == 10 {
			v = 100
		}
		points = append(points, series.Point{Timestamp: at(day, 0), Value: v})
	}
	daily := ComputeDaily(buildSeries(points...))
	found := Anomalies(daily, 0, DefaultAnomalyThreshold)
	if len(found) != 1 || found[0].Day.Day() != 10 {
		t.Fatalf("expected one anomaly on day 10, got %+v", found)
	}
	windowed := ZScores(daily, 5)
	for i := 0; i < 4; i++ {
		if windowed[i].Valid {
			t.Fatalf("z-score before a full window must be missing")
		}
	}
	if windowed[5].Valid {
		t.Fatalf("constant window has no z-score")
	}
}

func TestTrend(t *testing.T) {
	var points []series.Point
	for day := 1; day <= 14; day++ {
		v := 10.0
		if day > 7 {
			v = 20
		}
		points = append(points, series.Point{Timestamp: at(day, 0), Value: v})
	}
	daily := ComputeDaily(buildSeries(points...))
	trend, err := Trend(daily, 7)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if !trend.Valid || !almostEqual(trend.Value, 100) {
		t.Fatalf("expected +100%%, got %v", trend)
	}
	short, err := Trend(daily, 30)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if short.Valid {
		t.Fatalf("trend over insufficient data must be missing")
	}
	if _, err := Trend(daily, 0); err == nil {
		t.Fatalf("expected invalid window error")
	}
}

func TestOptionalJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		A Optional `json:"a"`
		B Optional `json:"b"`
	}{A: Some(1.5), B: Missing()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"a":1.5,"b":null}` {
		t.Fatalf("unexpected json: %s", payload)
	}
	var decoded struct {
		A Optional `json:"a"`
		B Optional `json:"b"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.A.Valid || decoded.A.Value != 1.5 || decoded.B.Valid {
		t.Fatalf("unexpected decoded: %+v", decoded)
	}
}
