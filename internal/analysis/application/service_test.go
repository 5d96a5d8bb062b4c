package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"load-analytics/internal/analysis/domain/dataset"
	"load-analytics/internal/analysis/infrastructure/memory"
	"load-analytics/internal/gridapi"
	tariff "load-analytics/internal/tariff/domain"
)

const loadCSV = "用户编号,日期,瞬时有功\n" +
	"A1,2024-03-01 00:00,50\n" +
	"A1,2024-03-01 06:00,100\n" +
	"A1,2024-03-01 12:00,200\n" +
	"A1,2024-03-01 18:00,0\n" +
	"A1,2024-03-01 18:00,0\n" +
	"B2,2024-03-01 00:00,not-a-number\n" +
	",2024-03-01 00:00,7\n"

type stubNarrator struct {
	prompt string
	text   string
	err    error
}

func (s *stubNarrator) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.text, s.err
}

type stubMeasurements struct {
	history *gridapi.History
	err     error
	meter   gridapi.Meter
}

func (s *stubMeasurements) History(ctx context.Context, meter gridapi.Meter, start, end time.Time, intervalMinutes int) (*gridapi.History, error) {
	s.meter = meter
	return s.history, s.err
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.DatasetRepository) {
	t.Helper()
	repo := memory.NewDatasetRepository()
	cfg := DefaultConfig()
	cfg.Measurement.Meters = []gridapi.Meter{{Name: "site", Path: "/history"}}
	svc, err := NewService(repo, NewSessionStore(), cfg, nil, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func upload(t *testing.T, svc *Service, sessionID string) UploadResult {
	t.Helper()
	result, err := svc.Upload(context.Background(), sessionID, "load.csv", []byte(loadCSV), "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return result
}

func TestUploadAndProfile(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	if result.Session.ID == "" || result.Dataset.ID == "" {
		t.Fatalf("expected session and dataset ids: %+v", result)
	}
	if result.Dataset.Rows != 7 || result.Dataset.Discards.Value != 1 || result.Dataset.Discards.Entity != 1 {
		t.Fatalf("unexpected counts: %+v", result.Dataset)
	}
	if len(result.Dataset.Entities) != 1 || result.Dataset.Entities[0] != "A1" {
		t.Fatalf("unexpected entities: %v", result.Dataset.Entities)
	}

	profile, err := svc.Profile(context.Background(), result.Session.ID, "A1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Daily) != 1 || profile.Daily[0].Count != 4 {
		t.Fatalf("unexpected daily: %+v", profile.Daily)
	}
	if profile.Daily[0].Mean != 87.5 || profile.Daily[0].LoadFactor.Value != 0.4375 {
		t.Fatalf("unexpected stats: %+v", profile.Daily[0])
	}

	empty, err := svc.Profile(context.Background(), result.Session.ID, "nobody")
	if err != nil || len(empty.Daily) != 0 {
		t.Fatalf("unknown entity must yield an empty profile, got %+v err=%v", empty, err)
	}
}

func TestSelectionIsCachedPerEntity(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	if _, err := svc.Profile(context.Background(), result.Session.ID, "A1"); err != nil {
		t.Fatalf("profile: %v", err)
	}
	sess, err := svc.sessions.Get(result.Session.ID)
	if err != nil || sess.Entity != "A1" {
		t.Fatalf("expected A1 selected, got %+v err=%v", sess, err)
	}
	if _, _, ok := svc.sessions.cached(result.Session.ID, result.Dataset.ID, "A1"); !ok {
		t.Fatalf("expected cached selection")
	}
	if _, _, ok := svc.sessions.cached(result.Session.ID, result.Dataset.ID, "B2"); ok {
		t.Fatalf("cache must be keyed by entity")
	}
}

func TestNewUploadClearsSession(t *testing.T) {
	svc, repo := newTestService(t)
	first := upload(t, svc, "")
	if _, err := svc.Profile(context.Background(), first.Session.ID, "A1"); err != nil {
		t.Fatalf("profile: %v", err)
	}
	second := upload(t, svc, first.Session.ID)
	if second.Session.ID != first.Session.ID {
		t.Fatalf("expected same session, got %s", second.Session.ID)
	}
	if second.Session.Entity != "" {
		t.Fatalf("new upload must clear the selection")
	}
	if _, err := repo.Get(context.Background(), first.Dataset.ID); !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("previous dataset must be dropped, got %v", err)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Upload(context.Background(), "", "load.csv", []byte("a,b\n1,2\n"), "")
	if KindOf(err) != KindInput {
		t.Fatalf("expected input error, got %v", err)
	}
	var ae *AnalysisError
	if !errors.As(err, &ae) || ae.Step != stepUpload {
		t.Fatalf("expected upload step, got %v", err)
	}
}

func TestAnalysisRequiresSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Profile(context.Background(), "missing", "A1")
	if !errors.Is(err, ErrSessionNotFound) || KindOf(err) != KindInput {
		t.Fatalf("expected session not found, got %v", err)
	}
	result := upload(t, svc, "")
	if _, err := svc.Profile(context.Background(), result.Session.ID, " "); !errors.Is(err, ErrEmptyEntity) {
		t.Fatalf("expected ErrEmptyEntity, got %v", err)
	}
}

func TestHeadlineMissingDay(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	headline, err := svc.Headline(context.Background(), result.Session.ID, "A1", day)
	if err != nil {
		t.Fatalf("headline: %v", err)
	}
	if !headline.Found || headline.Mean.Value.Value != 87.5 {
		t.Fatalf("unexpected headline: %+v", headline)
	}
	missing, err := svc.Headline(context.Background(), result.Session.ID, "A1", day.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("a day without data is not an error: %v", err)
	}
	if missing.Found || missing.Mean.Value.Valid || missing.LoadFactor.Value.Valid {
		t.Fatalf("expected missing metrics, got %+v", missing)
	}
}

func TestSizing(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	sweep, err := svc.Sizing(context.Background(), result.Session.ID, "A1", nil)
	if err != nil {
		t.Fatalf("sizing: %v", err)
	}
	if sweep.WindowReadings != 1 || len(sweep.Report) != 3 {
		t.Fatalf("unexpected sweep: window=%d report=%d", sweep.WindowReadings, len(sweep.Report))
	}

	bad := tariff.DefaultSweepConfig()
	bad.Step = 0
	if _, err := svc.Sizing(context.Background(), result.Session.ID, "A1", &bad); KindOf(err) != KindInput {
		t.Fatalf("expected input error, got %v", err)
	}
	if _, err := svc.Sizing(context.Background(), result.Session.ID, "nobody", nil); KindOf(err) != KindNoData {
		t.Fatalf("expected no-data error, got %v", err)
	}
}

func TestAnomaliesOnShortSeries(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	report, err := svc.Anomalies(context.Background(), result.Session.ID, "A1")
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if len(report.Anomalies) != 0 || report.Trend7.Valid || report.Trend30.Valid {
		t.Fatalf("a single day has no anomalies or trends: %+v", report)
	}
}

func TestNarrative(t *testing.T) {
	narrator := &stubNarrator{text: "report"}
	svc, _ := newTestService(t, WithNarrator(narrator))
	result := upload(t, svc, "")
	text, err := svc.Narrative(context.Background(), result.Session.ID, "A1")
	if err != nil {
		t.Fatalf("narrative: %v", err)
	}
	if text != "report" {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.Contains(narrator.prompt, "2024-03-01, 87.50, 200.00, 0.00") || !strings.Contains(narrator.prompt, "A1") {
		t.Fatalf("prompt must quote the daily statistics:\n%s", narrator.prompt)
	}
	if !strings.Contains(narrator.prompt, "|z| > 2.0") {
		t.Fatalf("prompt must state the strict anomaly rule:\n%s", narrator.prompt)
	}

	narrator.err = errors.New("api down")
	if _, err := svc.Narrative(context.Background(), result.Session.ID, "A1"); KindOf(err) != KindExternal {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestNarrativeUnavailable(t *testing.T) {
	svc, _ := newTestService(t)
	result := upload(t, svc, "")
	if _, err := svc.Narrative(context.Background(), result.Session.ID, "A1"); !errors.Is(err, ErrNarratorUnavailable) {
		t.Fatalf("expected ErrNarratorUnavailable, got %v", err)
	}
}

func sample(at time.Time, metric string, value float64) gridapi.Sample {
	raw, _ := json.Marshal(value)
	return gridapi.Sample{TS: at.UnixMilli(), Data: map[string]json.RawMessage{metric: raw}}
}

func TestValuateMeasurements(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	source := &stubMeasurements{history: &gridapi.History{
		Meter: "site",
		Samples: []gridapi.Sample{
			sample(day.Add(1*time.Hour), "TotalChargeEnergy", 100),
			sample(day.Add(3*time.Hour), "TotalChargeEnergy", 150),
			sample(day.Add(16*time.Hour), "TotalDischargeEnergy", 10),
			sample(day.Add(16*time.Hour+30*time.Minute), "TotalDischargeEnergy", 30),
		},
	}}
	svc, _ := newTestService(t, WithMeasurementSource(source))
	result, err := svc.ValuateMeasurements(context.Background(), "site", day, day.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("valuate: %v", err)
	}
	if source.meter.Path != "/history" {
		t.Fatalf("expected configured meter, got %+v", source.meter)
	}
	if !result.Charge.Valuation.Total.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected charge cost %s", result.Charge.Valuation.Total)
	}
	if !result.Discharge.Valuation.Total.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("unexpected discharge revenue %s", result.Discharge.Valuation.Total)
	}
	if !result.Net.Equal(decimal.RequireFromString("-13.5")) {
		t.Fatalf("unexpected net %s", result.Net)
	}
	if len(result.Metrics) != 2 {
		t.Fatalf("unexpected metrics %v", result.Metrics)
	}

	if _, err := svc.ValuateMeasurements(context.Background(), "other", day, day.Add(time.Hour), 0); !errors.Is(err, ErrUnknownMeter) {
		t.Fatalf("expected ErrUnknownMeter, got %v", err)
	}
	source.err = errors.New("timeout")
	if _, err := svc.ValuateMeasurements(context.Background(), "site", day, day.Add(time.Hour), 0); KindOf(err) != KindExternal {
		t.Fatalf("expected external error, got %v", err)
	}
}
