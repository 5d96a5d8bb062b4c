package tariff

import (
	"fmt"
	"math"
	"time"

	"load-analytics/internal/analysis/domain/series"
)

// DefaultSweepSteps is the number of thresholds evaluated by a sweep.
const DefaultSweepSteps = 50

// MaxSweepSteps bounds the thresholds one sweep may evaluate.
const MaxSweepSteps = 10000

// MaxSweepTargets bounds the target and report target lists.
const MaxSweepTargets = 1000

// DaysPerYear scales a window ratio to an annual day count.
const DaysPerYear = 365

// InMiddayWindow reports whether t falls in 11:10 through 14:00 inclusive.
func InMiddayWindow(t time.Time) bool {
	switch h := t.Hour(); {
	case h == 11:
		return t.Minute() >= 10
	case h == 12, h == 13:
		return true
	case h == 14:
		return t.Minute() == 0
	}
	return false
}

// SweepConfig parameterises the midday capacity sizing sweep.
type SweepConfig struct {
	Start float64 `yaml:"start" json:"start"`
	Step  float64 `yaml:"step" json:"step"`
	Steps int     `yaml:"steps" json:"steps"`
	// MainTransformerCapacity is in kVA.
	MainTransformerCapacity float64 `yaml:"main_transformer_capacity" json:"main_transformer_capacity"`
	// UtilizationRatio is a fraction, 0.85 for 85%.
	UtilizationRatio float64   `yaml:"utilization_ratio" json:"utilization_ratio"`
	Targets          []float64 `yaml:"targets" json:"targets"`
	ReportTargets    []float64 `yaml:"report_targets" json:"report_targets"`
}

// DefaultSweepConfig returns the sizing defaults.
func DefaultSweepConfig() SweepConfig {
	targets := make([]float64, 0, 21)
	for d := 300; d <= 320; d++ {
		targets = append(targets, float64(d))
	}
	return SweepConfig{
		Start:                   1000,
		Step:                    10,
		Steps:                   DefaultSweepSteps,
		MainTransformerCapacity: 2000,
		UtilizationRatio:        0.85,
		Targets:                 targets,
		ReportTargets:           []float64{300, 319, 320},
	}
}

func (c SweepConfig) withDefaults() SweepConfig {
	def := DefaultSweepConfig()
	if c.Steps <= 0 {
		c.Steps = def.Steps
	}
	if len(c.Targets) == 0 {
		c.Targets = def.Targets
	}
	if len(c.ReportTargets) == 0 {
		c.ReportTargets = def.ReportTargets
	}
	return c
}

// Validate checks the sweep parameters.
func (c SweepConfig) Validate() error {
	if c.Steps > MaxSweepSteps {
		return fmt.Errorf("%w: steps must not exceed %d", ErrInvalidSweep, MaxSweepSteps)
	}
	if len(c.Targets) > MaxSweepTargets || len(c.ReportTargets) > MaxSweepTargets {
		return fmt.Errorf("%w: at most %d targets", ErrInvalidSweep, MaxSweepTargets)
	}
	if c.Step <= 0 || math.IsNaN(c.Step) {
		return fmt.Errorf("%w: step must be positive", ErrInvalidSweep)
	}
	if c.UtilizationRatio < 0 || c.UtilizationRatio > 1 {
		return fmt.Errorf("%w: utilization ratio must be in [0,1]", ErrInvalidSweep)
	}
	if c.MainTransformerCapacity < 0 {
		return fmt.Errorf("%w: negative transformer capacity", ErrInvalidSweep)
	}
	return nil
}

// SweepPoint is the share of midday readings below one threshold.
type SweepPoint struct {
	Threshold  float64 `json:"threshold"`
	Ratio      float64 `json:"ratio"`
	AnnualDays float64 `json:"annual_days"`
}

// Recommendation is the threshold whose annual day count is nearest a target.
type Recommendation struct {
	TargetDays float64 `json:"target_days"`
	Threshold  float64 `json:"threshold"`
	AnnualDays float64 `json:"annual_days"`
	Capacity   float64 `json:"capacity"`
}

// SweepResult is the full sweep output.
type SweepResult struct {
	EntityID        string           `json:"entity_id"`
	WindowReadings  int              `json:"window_readings"`
	Points          []SweepPoint     `json:"points"`
	Recommendations []Recommendation `json:"recommendations"`
	Report          []Recommendation `json:"report"`
}

// Sweep evaluates thresholds Start + i*Step for i in [0, Steps) over the
// midday window and recommends a capacity per target day count as
// MainTransformerCapacity*UtilizationRatio - threshold. Among equally near
// thresholds the smallest wins. When no target is a report target the report
// holds every recommendation.
func Sweep(s *series.Series, cfg SweepConfig) (SweepResult, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return SweepResult{}, err
	}
	window := s.Filter(func(p series.Point) bool { return InMiddayWindow(p.Timestamp) }).Values()
	if len(window) == 0 {
		return SweepResult{}, ErrEmptyWindow
	}

	out := SweepResult{EntityID: s.EntityID(), WindowReadings: len(window)}
	for i := 0; i < cfg.Steps; i++ {
		threshold := cfg.Start + float64(i)*cfg.Step
		below := 0
		for _, v := range window {
			if v < threshold {
				below++
			}
		}
		ratio := roundTo(float64(below)/float64(len(window)), 4)
		out.Points = append(out.Points, SweepPoint{
			Threshold:  threshold,
			Ratio:      ratio,
			AnnualDays: roundTo(ratio*DaysPerYear, 2),
		})
	}

	usable := cfg.MainTransformerCapacity * cfg.UtilizationRatio
	for _, target := range cfg.Targets {
		best := nearest(out.Points, target)
		rec := Recommendation{
			TargetDays: target,
			Threshold:  best.Threshold,
			AnnualDays: best.AnnualDays,
			Capacity:   usable - best.Threshold,
		}
		out.Recommendations = append(out.Recommendations, rec)
		for _, r := range cfg.ReportTargets {
			if r == target {
				out.Report = append(out.Report, rec)
				break
			}
		}
	}
	// Overridden targets that share nothing with the report targets are
	// reported as a whole.
	if len(out.Report) == 0 {
		out.Report = append([]Recommendation(nil), out.Recommendations...)
	}
	return out, nil
}

func nearest(points []SweepPoint, target float64) SweepPoint {
	best := points[0]
	bestDiff := math.Abs(best.AnnualDays - target)
	for _, p := range points[1:] {
		diff := math.Abs(p.AnnualDays - target)
		if diff < bestDiff || (diff == bestDiff && p.Threshold < best.Threshold) {
			best, bestDiff = p, diff
		}
	}
	return best
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
