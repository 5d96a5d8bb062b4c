package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Columns.Entity != "用户编号" || cfg.Retry.Attempts != 3 || cfg.Retry.Delay != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	content := `
columns:
  entity: meter
  timestamp: date
  time: clock
  value: kw
timezone: Asia/Shanghai
prices:
  valley: 0.3
  flat: 0.6
  peak: 0.9
  critical_peak: 1.2
sweep:
  start: 500
  step: 5
  steps: 20
  main_transformer_capacity: 1000
  utilization_ratio: 0.8
retry:
  attempts: 5
  delay: 2s
measurement:
  meters:
    - name: site
      path: /open-api/history
      params:
        gridAcct: "42"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TZ_NAME", "")
	t.Setenv("SWEEP_TARGETS", "310, 315")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Columns.Time != "clock" || cfg.Prices.Peak != 0.9 || cfg.Sweep.Steps != 20 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.Delay != 2*time.Second {
		t.Fatalf("unexpected retry: %+v", cfg.Retry)
	}
	if len(cfg.Sweep.Targets) != 2 || cfg.Sweep.Targets[1] != 315 {
		t.Fatalf("expected env targets, got %v", cfg.Sweep.Targets)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Shanghai" {
		t.Fatalf("unexpected location %v err=%v", loc, err)
	}
	meter, ok := cfg.Meter("site")
	if !ok || meter.Params["gridAcct"] != "42" {
		t.Fatalf("unexpected meter %+v", meter)
	}
}

func TestConfigRejectsBadTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Nowhere/Land"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected timezone error")
	}
}
