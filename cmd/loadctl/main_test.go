package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"load-analytics/internal/analysis/domain/statistic"
	"load-analytics/internal/auth"
)

const loadCSV = "用户编号,日期,瞬时有功\n" +
	"A1,2024-03-01 00:00,50\n" +
	"A1,2024-03-01 06:00,100\n" +
	"A1,2024-03-01 12:00,200\n" +
	"A1,2024-03-01 18:00,0\n" +
	"A1,2024-03-02 00:00,80\n" +
	"B2,2024-03-01 00:00,not-a-number\n"

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "load.csv")
	if err := os.WriteFile(path, []byte(loadCSV), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ANALYSIS_CONFIG", "")
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeTable(t *testing.T) {
	out, err := run(t, "analyze", writeFixture(t), "--entity", "A1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "2024-03-01") || !strings.Contains(out, "87.50") {
		t.Fatalf("missing daily row: %q", out)
	}
	if !strings.Contains(out, "2024-03") {
		t.Fatalf("missing monthly row: %q", out)
	}
}

func TestAnalyzeJSON(t *testing.T) {
	out, err := run(t, "analyze", writeFixture(t), "-e", "A1", "--json")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var profile statistic.Profile
	if err := json.Unmarshal([]byte(out), &profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(profile.Daily) != 2 || profile.Daily[0].Mean != 87.5 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.Daily[1].Stdev.Valid {
		t.Fatalf("expected missing stdev for single reading day")
	}
}

func TestAnalyzeHeadline(t *testing.T) {
	out, err := run(t, "analyze", writeFixture(t), "-e", "A1", "--date", "2024-03-02")
	if err != nil {
		t.Fatalf("headline: %v", err)
	}
	if !strings.Contains(out, "delta -7.50") {
		t.Fatalf("expected mean delta: %q", out)
	}
}

func TestAnalyzeAnomaliesMissingTrend(t *testing.T) {
	out, err := run(t, "analyze", writeFixture(t), "-e", "A1", "--anomalies")
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if !strings.Contains(out, "trend 7d: NA  trend 30d: NA") || strings.Contains(out, "NA%") {
		t.Fatalf("missing trends must print NA without a percent sign: %q", out)
	}
}

func TestAnalyzeRequiresEntity(t *testing.T) {
	if _, err := run(t, "analyze", writeFixture(t)); err == nil {
		t.Fatalf("expected error without entity")
	}
}

func TestEntities(t *testing.T) {
	out, err := run(t, "entities", writeFixture(t))
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if !strings.Contains(out, "value=1") || !strings.Contains(out, "A1") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSizing(t *testing.T) {
	out, err := run(t, "sizing", writeFixture(t), "-e", "A1")
	if err != nil {
		t.Fatalf("sizing: %v", err)
	}
	if !strings.Contains(out, "1 midday readings") {
		t.Fatalf("expected one midday reading: %q", out)
	}
	if strings.Count(out, "700.00") != 3 {
		t.Fatalf("expected three report rows with capacity 700: %q", out)
	}

	out, err = run(t, "sizing", writeFixture(t), "-e", "A1", "--start", "100", "--steps", "2", "--step", "200", "--all", "--targets", "0")
	if err != nil {
		t.Fatalf("sizing override: %v", err)
	}
	if !strings.Contains(out, "1600.00") {
		t.Fatalf("expected threshold 100 for target 0: %q", out)
	}
}

func TestClassify(t *testing.T) {
	out, err := run(t, "classify", "--hour", "20", "--month", "7")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if strings.TrimSpace(out) != "critical-peak 0.7" {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, "classify", "--at", "2024-03-01 13:15")
	if err != nil {
		t.Fatalf("classify at: %v", err)
	}
	if strings.TrimSpace(out) != "valley 0.51" {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := run(t, "classify"); err == nil {
		t.Fatalf("expected error without --at or --hour")
	}
}

func TestExportCSV(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "daily.csv")
	if _, err := run(t, "export", writeFixture(t), "-e", "A1", "--format", "csv", "--out", dest); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\ufeffday,")) {
		t.Fatalf("expected bom and header: %q", data)
	}
}

func TestExportRejectsFormat(t *testing.T) {
	if _, err := run(t, "export", writeFixture(t), "-e", "A1", "--format", "docx", "--out", "-"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	out, err := run(t, "token", "--role", "analyst", "--subject", "ops")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseJWT(strings.TrimSpace(out), []byte("secret"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "analyst" || claims.Subject != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
