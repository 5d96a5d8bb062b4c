package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"load-analytics/internal/analysis/domain/series"
	"load-analytics/internal/analysis/domain/statistic"
	"load-analytics/internal/gridapi"
	tariff "load-analytics/internal/tariff/domain"
)

// Prices holds the per-period energy price in currency per kWh.
type Prices struct {
	Valley       float64 `yaml:"valley"`
	Flat         float64 `yaml:"flat"`
	Peak         float64 `yaml:"peak"`
	CriticalPeak float64 `yaml:"critical_peak"`
}

// Table converts prices to a tariff price table.
func (p Prices) Table() tariff.PriceTable {
	return tariff.NewPriceTable(p.Valley, p.Flat, p.Peak, p.CriticalPeak)
}

// AnomalyConfig controls z-score anomaly flagging.
type AnomalyConfig struct {
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

// MeasurementConfig controls grid measurement valuation.
type MeasurementConfig struct {
	Meters          []gridapi.Meter `yaml:"meters"`
	IntervalMinutes int             `yaml:"interval_minutes"`
	ChargeMetric    string          `yaml:"charge_metric"`
	DischargeMetric string          `yaml:"discharge_metric"`
}

// RetryConfig controls external call retries.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// NarrativeConfig controls the narrative report prompt.
type NarrativeConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// RecentDays bounds how many daily rows are quoted in the prompt.
	RecentDays int `yaml:"recent_days"`
}

// Config defines analysis configuration.
type Config struct {
	Columns     series.Columns     `yaml:"columns"`
	Timezone    string             `yaml:"timezone"`
	Prices      Prices             `yaml:"prices"`
	Sweep       tariff.SweepConfig `yaml:"sweep"`
	Anomaly     AnomalyConfig      `yaml:"anomaly"`
	Measurement MeasurementConfig  `yaml:"measurement"`
	Retry       RetryConfig        `yaml:"retry"`
	Narrative   NarrativeConfig    `yaml:"narrative"`
	MaxUpload   int64              `yaml:"max_upload_bytes"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Columns: series.Columns{
			Entity:    "用户编号",
			Timestamp: "日期",
			Value:     "瞬时有功",
		},
		Timezone: "UTC",
		Prices: Prices{
			Valley:       0.51,
			Flat:         0.5,
			Peak:         0.6,
			CriticalPeak: 0.7,
		},
		Sweep: tariff.DefaultSweepConfig(),
		Anomaly: AnomalyConfig{
			Window:    0,
			Threshold: statistic.DefaultAnomalyThreshold,
		},
		Measurement: MeasurementConfig{
			IntervalMinutes: 15,
			ChargeMetric:    "TotalChargeEnergy",
			DischargeMetric: "TotalDischargeEnergy",
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    time.Second,
		},
		Narrative: NarrativeConfig{
			Model:      "deepseek-chat",
			MaxTokens:  4096,
			RecentDays: 31,
		},
		MaxUpload: 64 << 20,
	}
}

// LoadConfig loads config from the yaml file named by ANALYSIS_CONFIG, then env.
func LoadConfig() (Config, error) {
	return LoadConfigFile(os.Getenv("ANALYSIS_CONFIG"))
}

// LoadConfigFile loads config from path; an empty path keeps the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("analysis config: %w", err)
		}
	}

	cfg.Timezone = getenvDefault("TZ_NAME", cfg.Timezone)
	if value := os.Getenv("ANALYSIS_ENTITY_COLUMN"); value != "" {
		cfg.Columns.Entity = value
	}
	if value := os.Getenv("ANALYSIS_TIMESTAMP_COLUMN"); value != "" {
		cfg.Columns.Timestamp = value
	}
	if value := os.Getenv("ANALYSIS_VALUE_COLUMN"); value != "" {
		cfg.Columns.Value = value
	}
	cfg.Prices.Valley = getenvFloatDefault("PRICE_VALLEY", cfg.Prices.Valley)
	cfg.Prices.Flat = getenvFloatDefault("PRICE_FLAT", cfg.Prices.Flat)
	cfg.Prices.Peak = getenvFloatDefault("PRICE_PEAK", cfg.Prices.Peak)
	cfg.Prices.CriticalPeak = getenvFloatDefault("PRICE_CRITICAL_PEAK", cfg.Prices.CriticalPeak)
	if targets := splitFloats(os.Getenv("SWEEP_TARGETS")); len(targets) > 0 {
		cfg.Sweep.Targets = targets
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Columns.Validate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.Prices.Table().Validate(); err != nil {
		return err
	}
	if err := c.Sweep.Validate(); err != nil {
		return err
	}
	if c.Anomaly.Window < 0 || c.Anomaly.Threshold < 0 {
		return errors.New("analysis config: invalid anomaly settings")
	}
	if c.Retry.Attempts < 1 {
		return errors.New("analysis config: retry attempts must be positive")
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("analysis config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Meter finds a configured meter by name.
func (c Config) Meter(name string) (gridapi.Meter, bool) {
	for _, m := range c.Measurement.Meters {
		if m.Name == name {
			return m, true
		}
	}
	return gridapi.Meter{}, false
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitFloats(value string) []float64 {
	if value == "" {
		return nil
	}
	var result []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if f, err := strconv.ParseFloat(part, 64); err == nil {
			result = append(result, f)
		}
	}
	return result
}
