package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	analysisapp "load-analytics/internal/analysis/application"
	"load-analytics/internal/analysis/infrastructure/memory"
	"load-analytics/internal/audit"
	"load-analytics/internal/auth"
	tariff "load-analytics/internal/tariff/domain"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

const loadCSV = "用户编号,日期,瞬时有功\n" +
	"A1,2024-03-01 00:00,50\n" +
	"A1,2024-03-01 06:00,100\n" +
	"A1,2024-03-01 12:00,200\n" +
	"A1,2024-03-01 18:00,0\n"

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	svc, err := analysisapp.NewService(memory.NewDatasetRepository(), analysisapp.NewSessionStore(), analysisapp.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h, err := NewHandler(svc, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func uploadSession(t *testing.T, h *Handler) string {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, uploadRequest(t, "load.csv", loadCSV))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	sid := resp.Header().Get(sessionHeader)
	if sid == "" {
		t.Fatalf("expected session header")
	}
	return sid
}

func get(h *Handler, sid, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if sid != "" {
		req.Header.Set(sessionHeader, sid)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestUploadAndDaily(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	resp := get(h, sid, "/api/v1/analysis/daily?entity_id=A1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Daily []struct {
			Mean       float64  `json:"mean"`
			LoadFactor *float64 `json:"load_factor"`
		} `json:"daily"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Daily) != 1 || payload.Daily[0].Mean != 87.5 || *payload.Daily[0].LoadFactor != 0.4375 {
		t.Fatalf("unexpected daily: %s", resp.Body.String())
	}
}

func TestHeadlineMissingDayIsNotAnError(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	resp := get(h, sid, "/api/v1/analysis/headline?entity_id=A1&date=2024-03-09")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"found":false`) || !strings.Contains(resp.Body.String(), `"value":null`) {
		t.Fatalf("expected missing metrics: %s", resp.Body.String())
	}

	resp = get(h, sid, "/api/v1/analysis/headline?entity_id=A1&date=03/09/2024")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.Code)
	}
}

func TestSizingWithOverride(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	resp := get(h, sid, "/api/v1/analysis/sizing?entity_id=A1&start=100&step=50&steps=4&targets=365")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result struct {
		Points          []json.RawMessage `json:"points"`
		Recommendations []struct {
			Threshold float64 `json:"threshold"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Points) != 4 || len(result.Recommendations) != 1 || result.Recommendations[0].Threshold != 250 {
		t.Fatalf("unexpected sizing: %s", resp.Body.String())
	}

	resp = get(h, sid, "/api/v1/analysis/sizing?entity_id=nobody")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty window, got %d", resp.Code)
	}
}

func TestSizingRejectsOversizedSweep(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	resp := get(h, sid, "/api/v1/analysis/sizing?entity_id=A1&steps=10000000000")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for huge steps, got %d", resp.Code)
	}

	targets := strings.TrimSuffix(strings.Repeat("300,", tariff.MaxSweepTargets+1), ",")
	resp = get(h, sid, "/api/v1/analysis/sizing?entity_id=A1&targets="+targets)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too many targets, got %d", resp.Code)
	}
}

func TestSizingReportFollowsTargets(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	var result struct {
		Report []struct {
			TargetDays float64 `json:"target_days"`
		} `json:"report"`
	}
	resp := get(h, sid, "/api/v1/analysis/sizing?entity_id=A1&targets=310")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Report) != 1 || result.Report[0].TargetDays != 310 {
		t.Fatalf("expected report for target 310: %s", resp.Body.String())
	}

	resp = get(h, sid, "/api/v1/analysis/sizing?entity_id=A1&targets=300,310,320&report_targets=310")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	result.Report = nil
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Report) != 1 || result.Report[0].TargetDays != 310 {
		t.Fatalf("expected only report target 310: %s", resp.Body.String())
	}
}

func TestExportDailyCSV(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	resp := get(h, sid, "/api/v1/exports/daily.csv?entity_id=A1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
	if !strings.Contains(resp.Body.String(), "2024-03-01,4,87.50,200.00,0.00") {
		t.Fatalf("unexpected csv: %s", resp.Body.String())
	}
	if !strings.Contains(resp.Header().Get("Content-Disposition"), "A1_daily.csv") {
		t.Fatalf("unexpected disposition %q", resp.Header().Get("Content-Disposition"))
	}

	if resp := get(h, sid, "/api/v1/exports/daily.doc?entity_id=A1"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown format, got %d", resp.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)
	if resp := get(h, "missing", "/api/v1/analysis/daily?entity_id=A1"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.Code)
	}

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, uploadRequest(t, "load.csv", "a,b\n1,2\n"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing columns, got %d", resp.Code)
	}

	sid := uploadSession(t, h)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/narrative", strings.NewReader(`{"entity_id":"A1"}`))
	req.Header.Set(sessionHeader, sid)
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without narrator, got %d", resp.Code)
	}

	if resp := get(h, sid, "/api/v1/measurements/valuation?meter=site&start=2024-03-01T00:00:00Z"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without end, got %d", resp.Code)
	}
}

func TestEndSession(t *testing.T) {
	h := newTestHandler(t)
	sid := uploadSession(t, h)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions", nil)
	req.Header.Set(sessionHeader, sid)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := get(h, sid, "/api/v1/datasets"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after session end, got %d", resp.Code)
	}
}

func TestAuditTrail(t *testing.T) {
	svc, err := analysisapp.NewService(memory.NewDatasetRepository(), analysisapp.NewSessionStore(), analysisapp.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	rec := &recordingAudit{}
	h, err := NewHandler(svc, nil, WithAuditLogger(rec))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := uploadRequest(t, "load.csv", loadCSV)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "ops", Role: auth.RoleAnalyst}))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	sid := resp.Header().Get(sessionHeader)

	if resp := get(h, sid, "/api/v1/exports/daily.csv?entity_id=A1"); resp.Code != http.StatusOK {
		t.Fatalf("export: %d", resp.Code)
	}
	if resp := get(h, sid, "/api/v1/analysis/daily?entity_id=A1"); resp.Code != http.StatusOK {
		t.Fatalf("daily: %d", resp.Code)
	}

	if len(rec.entries) != 2 {
		t.Fatalf("expected upload and export entries, got %+v", rec.entries)
	}
	upload := rec.entries[0]
	if upload.Action != audit.ActionUpload || upload.Actor != "ops" || upload.Role != "analyst" || upload.DatasetID == "" {
		t.Fatalf("unexpected upload entry: %+v", upload)
	}
	export := rec.entries[1]
	if export.Action != audit.ActionExport || export.Actor != "anonymous" || export.EntityID != "A1" {
		t.Fatalf("unexpected export entry: %+v", export)
	}
}
