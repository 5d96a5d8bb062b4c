package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	analysisapp "load-analytics/internal/analysis/application"
	analysisinterfaces "load-analytics/internal/analysis/interfaces"
	"load-analytics/internal/audit"
	"load-analytics/internal/auth"
	"load-analytics/internal/observability/metrics"
	tariff "load-analytics/internal/tariff/domain"
)

const (
	sessionHeader = "X-Session-ID"
	dateLayout    = "2006-01-02"
	timeLayout    = time.RFC3339
)

// Handler provides dataset, analysis, export and report endpoints.
type Handler struct {
	service     *analysisapp.Service
	logger      *log.Logger
	auditLogger audit.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithAuditLogger records uploads, session ends, exports and external calls.
func WithAuditLogger(l audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditLogger = l
	}
}

// NewHandler constructs a handler.
func NewHandler(service *analysisapp.Service, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("analysis handler: nil service")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes /api/v1/datasets, /api/v1/sessions, /api/v1/analysis/*,
// /api/v1/exports/*, /api/v1/reports/narrative and
// /api/v1/measurements/valuation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/datasets":
		switch r.Method {
		case http.MethodPost:
			h.handleUpload(w, r)
		case http.MethodGet:
			h.handleDataset(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case path == "/api/v1/sessions":
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEndSession(w, r)
	case strings.HasPrefix(path, "/api/v1/analysis/"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAnalysis(w, r, strings.TrimPrefix(path, "/api/v1/analysis/"))
	case strings.HasPrefix(path, "/api/v1/exports/daily."):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, strings.TrimPrefix(path, "/api/v1/exports/daily."))
	case path == "/api/v1/reports/narrative":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleNarrative(w, r)
	case path == "/api/v1/measurements/valuation":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleMeasurements(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxUpload := h.service.Config().MaxUpload
	if maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload failed", http.StatusBadRequest)
		return
	}

	result, err := h.service.Upload(r.Context(), sessionID(r), header.Filename, data, r.FormValue("sheet"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Printf("analysis http upload: subject=%s session=%s dataset=%s", auth.SubjectFromContext(r.Context()), result.Session.ID, result.Dataset.ID)
	h.logAudit(r, audit.Entry{
		Action:    audit.ActionUpload,
		SessionID: result.Session.ID,
		DatasetID: result.Dataset.ID,
	}, map[string]any{"filename": result.Dataset.Filename, "format": result.Report.Format, "rows": result.Dataset.Rows})
	w.Header().Set(sessionHeader, result.Session.ID)
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.service.Dataset(r.Context(), sessionID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if err := h.service.EndSession(r.Context(), sid); err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, audit.Entry{Action: audit.ActionEndSession, SessionID: sid}, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request, kind string) {
	sid := sessionID(r)
	entityID := r.URL.Query().Get("entity_id")
	ctx := r.Context()

	switch kind {
	case "daily":
		profile, err := h.service.Profile(ctx, sid, entityID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "daily": profile.Daily})
	case "monthly":
		profile, err := h.service.Profile(ctx, sid, entityID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "monthly": profile.Monthly})
	case "headline":
		day, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("date"), h.service.Location())
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		headline, err := h.service.Headline(ctx, sid, entityID, day)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, headline)
	case "hourly":
		hours, err := h.service.Hourly(ctx, sid, entityID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "hours": hours})
	case "anomalies":
		report, err := h.service.Anomalies(ctx, sid, entityID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case "sizing":
		override, err := parseSweepQuery(r, h.service.Config().Sweep)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := h.service.Sizing(ctx, sid, entityID, override)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	profile, err := h.service.Profile(r.Context(), sessionID(r), r.URL.Query().Get("entity_id"))
	if err != nil {
		metrics.ObserveExport(format, err, time.Since(start))
		h.respondError(w, err)
		return
	}

	var buf bytes.Buffer
	var contentType string
	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		err = analysisinterfaces.WriteDailyCSV(&buf, profile.Daily)
	case "json":
		contentType = "application/json"
		err = analysisinterfaces.WriteProfileJSON(&buf, profile)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		var data []byte
		data, err = analysisinterfaces.BuildDailyXLSX(profile)
		buf.Write(data)
	case "pdf":
		contentType = "application/pdf"
		var data []byte
		data, err = analysisinterfaces.BuildDailyPDF(profile, time.Now().In(h.service.Location()))
		buf.Write(data)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	metrics.ObserveExport(format, err, time.Since(start))
	if err != nil {
		h.logger.Printf("analysis http export: format=%s err=%v", format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(profile.EntityID, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	h.logAudit(r, audit.Entry{
		Action:    audit.ActionExport,
		SessionID: sessionID(r),
		EntityID:  profile.EntityID,
	}, map[string]any{"format": format, "days": len(profile.Daily)})
}

type narrativeRequest struct {
	EntityID string `json:"entity_id"`
}

func (h *Handler) handleNarrative(w http.ResponseWriter, r *http.Request) {
	var req narrativeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	if req.EntityID == "" {
		req.EntityID = r.URL.Query().Get("entity_id")
	}
	text, err := h.service.Narrative(r.Context(), sessionID(r), req.EntityID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, audit.Entry{Action: audit.ActionNarrative, SessionID: sessionID(r), EntityID: req.EntityID}, nil)
	writeJSON(w, http.StatusOK, map[string]string{"entity_id": req.EntityID, "report": text})
}

func (h *Handler) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meter := q.Get("meter")
	if meter == "" {
		http.Error(w, "meter is required", http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "start")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "end")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}
	interval := 0
	if raw := q.Get("interval"); raw != "" {
		interval, err = strconv.Atoi(raw)
		if err != nil || interval <= 0 {
			http.Error(w, "interval must be a positive number of minutes", http.StatusBadRequest)
			return
		}
	}
	result, err := h.service.ValuateMeasurements(r.Context(), meter, from, to, interval)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, audit.Entry{Action: audit.ActionValuation}, map[string]any{
		"meter": meter,
		"start": from.Format(timeLayout),
		"end":   to.Format(timeLayout),
	})
	writeJSON(w, http.StatusOK, result)
}

// respondError maps analysis error kinds to status codes. External failures
// carry the underlying text; internal ones a generic message.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysisapp.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case errors.Is(err, analysisapp.ErrNarratorUnavailable), errors.Is(err, analysisapp.ErrMeasurementsUnavailable):
		http.Error(w, errorText(err), http.StatusServiceUnavailable)
		return
	}
	switch analysisapp.KindOf(err) {
	case analysisapp.KindInput:
		http.Error(w, errorText(err), http.StatusBadRequest)
	case analysisapp.KindNoData:
		http.Error(w, errorText(err), http.StatusUnprocessableEntity)
	case analysisapp.KindExternal:
		http.Error(w, errorText(err), http.StatusBadGateway)
	default:
		h.logger.Printf("analysis http error: %v", err)
		http.Error(w, "cannot analyze selected data", http.StatusInternalServerError)
	}
}

func errorText(err error) string {
	var ae *analysisapp.AnalysisError
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err.Error()
	}
	return err.Error()
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

// parseSweepQuery overlays query parameters on the configured sweep; nil when
// none are given.
func parseSweepQuery(r *http.Request, base tariff.SweepConfig) (*tariff.SweepConfig, error) {
	q := r.URL.Query()
	cfg := base
	touched := false
	floats := map[string]*float64{
		"start":    &cfg.Start,
		"step":     &cfg.Step,
		"capacity": &cfg.MainTransformerCapacity,
		"ratio":    &cfg.UtilizationRatio,
	}
	for key, dst := range floats {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", key)
		}
		*dst = v
		touched = true
	}
	if raw := q.Get("steps"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > tariff.MaxSweepSteps {
			return nil, fmt.Errorf("steps must be in [1,%d]", tariff.MaxSweepSteps)
		}
		cfg.Steps = v
		touched = true
	}
	lists := map[string]*[]float64{
		"targets":        &cfg.Targets,
		"report_targets": &cfg.ReportTargets,
	}
	for key, dst := range lists {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		values, err := parseFloatList(raw, tariff.MaxSweepTargets)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = values
		touched = true
	}
	if !touched {
		return nil, nil
	}
	return &cfg, nil
}

func parseFloatList(raw string, limit int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > limit {
		return nil, fmt.Errorf("at most %d values", limit)
	}
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func exportFilename(entityID, format string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' || r < 0x20 {
			return '_'
		}
		return r
	}, entityID)
	if name == "" {
		name = "daily"
	}
	return fmt.Sprintf("%s_daily.%s", name, format)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) logAudit(r *http.Request, entry audit.Entry, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		entry.Workspace = id.Workspace
		entry.Role = string(id.Role)
	}
	entry.Actor = auth.SubjectFromContext(r.Context())
	if meta != nil {
		entry.Metadata, _ = json.Marshal(meta)
	}
	entry.IP = audit.ClientIP(r)
	entry.UserAgent = r.UserAgent()
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("analysis http audit: action=%s err=%v", entry.Action, err)
	}
}
