package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"load-analytics/internal/analysis/domain/dataset"
	"load-analytics/internal/analysis/domain/series"
	"load-analytics/internal/analysis/domain/statistic"
	"load-analytics/internal/gridapi"
	"load-analytics/internal/ingest"
	"load-analytics/internal/observability/metrics"
	tariff "load-analytics/internal/tariff/domain"
)

const (
	stepUpload      = "upload"
	stepProfile     = "profile"
	stepHeadline    = "headline"
	stepHourly      = "hourly"
	stepAnomalies   = "anomalies"
	stepSizing      = "sizing"
	stepNarrative   = "narrative"
	stepMeasurement = "measurement"
)

// Narrator turns a prompt into report text.
type Narrator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// MeasurementSource fetches metered history from the grid API.
type MeasurementSource interface {
	History(ctx context.Context, meter gridapi.Meter, start, end time.Time, intervalMinutes int) (*gridapi.History, error)
}

// Service runs the analysis pipeline for sessions.
type Service struct {
	repo         dataset.Repository
	sessions     *SessionStore
	normalizer   *series.Normalizer
	cfg          Config
	location     *time.Location
	narrator     Narrator
	measurements MeasurementSource
	logger       *log.Logger
	now          func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithNarrator enables narrative reports.
func WithNarrator(n Narrator) Option {
	return func(s *Service) {
		s.narrator = n
	}
}

// WithMeasurementSource enables grid measurement valuation.
func WithMeasurementSource(m MeasurementSource) Option {
	return func(s *Service) {
		s.measurements = m
	}
}

// WithClock overrides the upload clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs an analysis service.
func NewService(repo dataset.Repository, sessions *SessionStore, cfg Config, logger *log.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("analysis service: nil repository")
	}
	if sessions == nil {
		return nil, errors.New("analysis service: nil session store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	normalizer, err := series.NewNormalizer(cfg.Columns, series.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	svc := &Service{
		repo:       repo,
		sessions:   sessions,
		normalizer: normalizer,
		cfg:        cfg,
		location:   loc,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Location returns the wall-clock location readings are expressed in.
func (s *Service) Location() *time.Location { return s.location }

// UploadResult describes an accepted upload.
type UploadResult struct {
	Session Session         `json:"session"`
	Dataset dataset.Dataset `json:"dataset"`
	Report  ingest.Report   `json:"report"`
}

// Upload parses, normalizes and stores a file, then binds it to the session.
// Any dataset the session held before is dropped.
func (s *Service) Upload(ctx context.Context, sessionID, filename string, data []byte, sheet string) (UploadResult, error) {
	start := time.Now()
	result, err := s.upload(ctx, sessionID, filename, data, sheet)
	metrics.ObserveUpload(result.Report.Format, err, time.Since(start))
	return result, err
}

func (s *Service) upload(ctx context.Context, sessionID, filename string, data []byte, sheet string) (UploadResult, error) {
	if s.cfg.MaxUpload > 0 && int64(len(data)) > s.cfg.MaxUpload {
		return UploadResult{}, fail(stepUpload, KindInput, fmt.Errorf("file exceeds %d bytes", s.cfg.MaxUpload))
	}
	table, report, err := ingest.ReadTable(filename, data, sheet)
	if err != nil {
		return UploadResult{Report: report}, fail(stepUpload, KindInput, err)
	}
	normalized, err := s.normalizer.Normalize(table)
	if err != nil {
		return UploadResult{Report: report}, fail(stepUpload, KindInput, err)
	}

	ds := &dataset.Dataset{
		ID:         uuid.NewString(),
		Filename:   filepath.Base(filename),
		Format:     report.Format,
		UploadedAt: s.now().In(s.location),
		Entities:   normalized.Entities,
		Rows:       normalized.Rows,
		Discards:   normalized.Discards,
	}
	if err := s.repo.Save(ctx, ds, normalized.Series); err != nil {
		return UploadResult{Report: report}, fail(stepUpload, KindInternal, err)
	}
	metrics.AddDiscardedRows("entity", normalized.Discards.Entity)
	metrics.AddDiscardedRows("timestamp", normalized.Discards.Timestamp)
	metrics.AddDiscardedRows("value", normalized.Discards.Value)

	sess, previous := s.sessions.Reset(sessionID, ds.ID, ds.Filename)
	if previous != "" && previous != ds.ID {
		if err := s.repo.Delete(ctx, previous); err != nil {
			s.logger.Printf("analysis upload: drop previous dataset=%s err=%v", previous, err)
		}
	}
	s.logger.Printf("analysis upload: session=%s dataset=%s file=%s format=%s rows=%d entities=%d discarded=%d",
		sess.ID, ds.ID, ds.Filename, report.Format, ds.Rows, len(ds.Entities), ds.Discards.Total())
	return UploadResult{Session: sess, Dataset: *ds, Report: report}, nil
}

// EndSession drops the session and the dataset it held.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	datasetID := s.sessions.Delete(sessionID)
	if datasetID == "" {
		return fail("session", KindInput, ErrSessionNotFound)
	}
	if err := s.repo.Delete(ctx, datasetID); err != nil {
		return fail("session", KindInternal, err)
	}
	return nil
}

// Dataset returns the dataset bound to the session.
func (s *Service) Dataset(ctx context.Context, sessionID string) (*dataset.Dataset, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fail("dataset", KindInput, err)
	}
	if sess.DatasetID == "" {
		return nil, fail("dataset", KindInput, ErrNoDataset)
	}
	ds, err := s.repo.Get(ctx, sess.DatasetID)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return nil, fail("dataset", KindInput, ErrNoDataset)
		}
		return nil, fail("dataset", KindInternal, err)
	}
	return ds, nil
}

// selection loads the series and profile of the selected entity, reusing
// the session cache while neither the dataset nor the entity changes.
func (s *Service) selection(ctx context.Context, step, sessionID, entityID string) (*series.Series, statistic.Profile, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, statistic.Profile{}, fail(step, KindInput, ErrEmptyEntity)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, statistic.Profile{}, fail(step, KindInput, err)
	}
	if sess.DatasetID == "" {
		return nil, statistic.Profile{}, fail(step, KindInput, ErrNoDataset)
	}
	if ser, profile, ok := s.sessions.cached(sessionID, sess.DatasetID, entityID); ok {
		return ser, *profile, nil
	}
	ser, err := s.repo.Series(ctx, sess.DatasetID, entityID)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return nil, statistic.Profile{}, fail(step, KindInput, ErrNoDataset)
		}
		return nil, statistic.Profile{}, fail(step, KindInternal, err)
	}
	profile := statistic.Compute(ser)
	s.sessions.remember(sessionID, sess.DatasetID, entityID, ser, &profile)
	return ser, profile, nil
}

// Profile computes daily and monthly statistics of one entity. Unknown
// entities yield an empty profile.
func (s *Service) Profile(ctx context.Context, sessionID, entityID string) (statistic.Profile, error) {
	start := time.Now()
	_, profile, err := s.selection(ctx, stepProfile, sessionID, entityID)
	metrics.ObserveAnalysis(stepProfile, err, time.Since(start))
	return profile, err
}

// Headline returns the headline metrics for one calendar day. A day without
// readings is reported with Found=false and missing metrics.
func (s *Service) Headline(ctx context.Context, sessionID, entityID string, day time.Time) (statistic.Headline, error) {
	start := time.Now()
	ser, profile, err := s.selection(ctx, stepHeadline, sessionID, entityID)
	var headline statistic.Headline
	if err == nil {
		headline = statistic.DayHeadline(profile, ser, day.In(s.location))
	}
	metrics.ObserveAnalysis(stepHeadline, err, time.Since(start))
	return headline, err
}

// Hourly returns hour-of-day statistics.
func (s *Service) Hourly(ctx context.Context, sessionID, entityID string) ([]statistic.HourStat, error) {
	start := time.Now()
	ser, _, err := s.selection(ctx, stepHourly, sessionID, entityID)
	var hours []statistic.HourStat
	if err == nil {
		hours = statistic.HourlyProfile(ser)
	}
	metrics.ObserveAnalysis(stepHourly, err, time.Since(start))
	return hours, err
}

// AnomalyReport holds flagged days and recent trends.
type AnomalyReport struct {
	EntityID  string              `json:"entity_id"`
	Window    int                 `json:"window"`
	Threshold float64             `json:"threshold"`
	Anomalies []statistic.Anomaly `json:"anomalies"`
	Trend7    statistic.Optional  `json:"trend_7d"`
	Trend30   statistic.Optional  `json:"trend_30d"`
}

// Anomalies flags days whose mean deviates by the configured z-score and
// reports the 7 and 30 day trends.
func (s *Service) Anomalies(ctx context.Context, sessionID, entityID string) (AnomalyReport, error) {
	start := time.Now()
	report, err := s.anomalies(ctx, sessionID, entityID)
	metrics.ObserveAnalysis(stepAnomalies, err, time.Since(start))
	return report, err
}

func (s *Service) anomalies(ctx context.Context, sessionID, entityID string) (AnomalyReport, error) {
	_, profile, err := s.selection(ctx, stepAnomalies, sessionID, entityID)
	if err != nil {
		return AnomalyReport{}, err
	}
	report := AnomalyReport{
		EntityID:  entityID,
		Window:    s.cfg.Anomaly.Window,
		Threshold: s.cfg.Anomaly.Threshold,
		Anomalies: statistic.Anomalies(profile.Daily, s.cfg.Anomaly.Window, s.cfg.Anomaly.Threshold),
	}
	if report.Trend7, err = statistic.Trend(profile.Daily, 7); err != nil {
		return AnomalyReport{}, fail(stepAnomalies, KindInternal, err)
	}
	if report.Trend30, err = statistic.Trend(profile.Daily, 30); err != nil {
		return AnomalyReport{}, fail(stepAnomalies, KindInternal, err)
	}
	return report, nil
}

// Sizing sweeps midday demand thresholds. A nil override uses the configured
// sweep.
func (s *Service) Sizing(ctx context.Context, sessionID, entityID string, override *tariff.SweepConfig) (tariff.SweepResult, error) {
	start := time.Now()
	result, err := s.sizing(ctx, sessionID, entityID, override)
	metrics.ObserveAnalysis(stepSizing, err, time.Since(start))
	return result, err
}

func (s *Service) sizing(ctx context.Context, sessionID, entityID string, override *tariff.SweepConfig) (tariff.SweepResult, error) {
	ser, _, err := s.selection(ctx, stepSizing, sessionID, entityID)
	if err != nil {
		return tariff.SweepResult{}, err
	}
	cfg := s.cfg.Sweep
	if override != nil {
		cfg = *override
	}
	result, err := tariff.Sweep(ser, cfg)
	switch {
	case errors.Is(err, tariff.ErrEmptyWindow):
		return tariff.SweepResult{}, fail(stepSizing, KindNoData, err)
	case errors.Is(err, tariff.ErrInvalidSweep):
		return tariff.SweepResult{}, fail(stepSizing, KindInput, err)
	case err != nil:
		return tariff.SweepResult{}, fail(stepSizing, KindInternal, err)
	}
	return result, nil
}

// Narrative asks the configured LLM for a written report on one entity.
func (s *Service) Narrative(ctx context.Context, sessionID, entityID string) (string, error) {
	start := time.Now()
	text, err := s.narrative(ctx, sessionID, entityID)
	metrics.ObserveAnalysis(stepNarrative, err, time.Since(start))
	return text, err
}

func (s *Service) narrative(ctx context.Context, sessionID, entityID string) (string, error) {
	if s.narrator == nil {
		return "", fail(stepNarrative, KindExternal, ErrNarratorUnavailable)
	}
	_, profile, err := s.selection(ctx, stepNarrative, sessionID, entityID)
	if err != nil {
		return "", err
	}
	if len(profile.Daily) == 0 {
		return "", fail(stepNarrative, KindNoData, fmt.Errorf("no readings for entity %q", entityID))
	}
	report, err := s.anomalies(ctx, sessionID, entityID)
	if err != nil {
		return "", err
	}
	prompt := buildNarrativePrompt(profile, report, s.cfg.Narrative.RecentDays)

	callStart := time.Now()
	text, err := s.narrator.Complete(ctx, prompt)
	metrics.ObserveExternal("llm", err, time.Since(callStart))
	if err != nil {
		s.logger.Printf("analysis narrative: entity=%s err=%v", entityID, err)
		return "", fail(stepNarrative, KindExternal, err)
	}
	return text, nil
}

func buildNarrativePrompt(profile statistic.Profile, report AnomalyReport, recentDays int) string {
	daily := profile.Daily
	if recentDays > 0 && len(daily) > recentDays {
		daily = daily[len(daily)-recentDays:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "作为电力负荷分析专家，请基于以下用户 %s 的负荷统计数据输出分析报告，结构如下：\n", profile.EntityID)
	b.WriteString("## 1. 执行摘要\n## 2. 负荷特性分析（负荷率、波动率、峰谷差）\n## 3. 异常与趋势\n## 4. 结论与建议（3条，按优先级排序，引用具体数据）\n\n")
	b.WriteString("### 日统计（日期, 均值, 最大值, 最小值, 标准差, 峰谷差, 负荷率, 波动率）\n")
	for _, d := range daily {
		fmt.Fprintf(&b, "%s, %.2f, %.2f, %.2f, %s, %.2f, %s, %s\n",
			d.Day.Format("2006-01-02"), d.Mean, d.Max, d.Min,
			formatOptional(d.Stdev), d.PeakValley, formatOptional(d.LoadFactor), formatOptional(d.Volatility))
	}
	b.WriteString("\n### 月统计（月份, 日均值, 天数）\n")
	for _, m := range profile.Monthly {
		fmt.Fprintf(&b, "%s, %.2f, %d\n", m.Month.Format("2006-01"), m.Mean, m.Days)
	}
	fmt.Fprintf(&b, "\n### 异常检测\n检测到 %d 个异常日（|z| > %.1f）", len(report.Anomalies), report.Threshold)
	for _, a := range report.Anomalies {
		fmt.Fprintf(&b, "\n- %s 均值 %.2f, z=%.2f", a.Day.Format("2006-01-02"), a.Mean, a.ZScore)
	}
	fmt.Fprintf(&b, "\n\n### 趋势\n近7天环比: %s\n近30天环比: %s\n", formatPercent(report.Trend7), formatPercent(report.Trend30))
	return b.String()
}

func formatPercent(o statistic.Optional) string {
	if !o.Valid {
		return "NA"
	}
	return fmt.Sprintf("%+.1f%%", o.Value)
}

func formatOptional(o statistic.Optional) string {
	if !o.Valid {
		return "NA"
	}
	return o.Format(2)
}

// MeterValuation is the priced energy of one counter metric.
type MeterValuation struct {
	Metric    string           `json:"metric"`
	Valuation tariff.Valuation `json:"valuation"`
}

// MeasurementValuation is the charge cost and discharge revenue of a meter
// over a range.
type MeasurementValuation struct {
	Meter     string          `json:"meter"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Metrics   []string        `json:"metrics"`
	Charge    MeterValuation  `json:"charge"`
	Discharge MeterValuation  `json:"discharge"`
	Net       decimal.Decimal `json:"net"`
}

// ValuateMeasurements fetches meter history and prices its charge and
// discharge counters by tariff period.
func (s *Service) ValuateMeasurements(ctx context.Context, meterName string, startAt, endAt time.Time, intervalMinutes int) (MeasurementValuation, error) {
	start := time.Now()
	result, err := s.valuateMeasurements(ctx, meterName, startAt, endAt, intervalMinutes)
	metrics.ObserveAnalysis(stepMeasurement, err, time.Since(start))
	return result, err
}

func (s *Service) valuateMeasurements(ctx context.Context, meterName string, startAt, endAt time.Time, intervalMinutes int) (MeasurementValuation, error) {
	if s.measurements == nil {
		return MeasurementValuation{}, fail(stepMeasurement, KindExternal, ErrMeasurementsUnavailable)
	}
	meter, ok := s.cfg.Meter(meterName)
	if !ok {
		return MeasurementValuation{}, fail(stepMeasurement, KindInput, fmt.Errorf("%w: %q", ErrUnknownMeter, meterName))
	}
	if startAt.IsZero() || endAt.IsZero() || endAt.Before(startAt) {
		return MeasurementValuation{}, fail(stepMeasurement, KindInput, gridapi.ErrInvalidRange)
	}
	if intervalMinutes <= 0 {
		intervalMinutes = s.cfg.Measurement.IntervalMinutes
	}

	callStart := time.Now()
	history, err := s.measurements.History(ctx, meter, startAt, endAt, intervalMinutes)
	metrics.ObserveExternal("gridapi", err, time.Since(callStart))
	if err != nil {
		s.logger.Printf("analysis measurement: meter=%s err=%v", meterName, err)
		return MeasurementValuation{}, fail(stepMeasurement, KindExternal, err)
	}

	prices := s.cfg.Prices.Table()
	result := MeasurementValuation{
		Meter:   meter.Name,
		Start:   startAt.In(s.location),
		End:     endAt.In(s.location),
		Metrics: history.Metrics(),
	}
	if result.Charge, err = s.valuateMetric(history, s.cfg.Measurement.ChargeMetric, prices); err != nil {
		return MeasurementValuation{}, err
	}
	if result.Discharge, err = s.valuateMetric(history, s.cfg.Measurement.DischargeMetric, prices); err != nil {
		return MeasurementValuation{}, err
	}
	result.Net = result.Discharge.Valuation.Total.Sub(result.Charge.Valuation.Total)
	return result, nil
}

func (s *Service) valuateMetric(history *gridapi.History, metric string, prices tariff.PriceTable) (MeterValuation, error) {
	ser := history.Metric(metric)
	local := make([]series.Point, 0, ser.Len())
	for _, p := range ser.Points() {
		local = append(local, series.Point{Timestamp: p.Timestamp.In(s.location), Value: p.Value})
	}
	valuation, err := tariff.Valuate(series.FromPoints(metric, local), prices)
	if err != nil {
		return MeterValuation{}, fail(stepMeasurement, KindInput, err)
	}
	if valuation.Decreases > 0 {
		s.logger.Printf("analysis measurement: meter=%s metric=%s counter decreases=%d", history.Meter, metric, valuation.Decreases)
	}
	return MeterValuation{Metric: metric, Valuation: valuation}, nil
}
