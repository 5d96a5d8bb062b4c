package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"load-analytics/internal/analysis/domain/series"
	tariff "load-analytics/internal/tariff/domain"
)

const maxValuationBody = 8 << 20

// Handler serves tariff classification and counter valuation.
type Handler struct {
	prices   tariff.PriceTable
	location *time.Location
	logger   *log.Logger
}

// NewHandler constructs a handler with the default price table.
func NewHandler(prices tariff.PriceTable, loc *time.Location, logger *log.Logger) (*Handler, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{prices: prices, location: loc, logger: logger}, nil
}

// ServeHTTP handles /api/v1/tariff/classify and /api/v1/tariff/valuation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/tariff/classify":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleClassify(w, r)
	case "/api/v1/tariff/valuation":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleValuation(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type classifyResponse struct {
	At     time.Time       `json:"at"`
	Hour   int             `json:"hour"`
	Month  int             `json:"month"`
	Period tariff.Period   `json:"period"`
	Price  decimal.Decimal `json:"price"`
}

// handleClassify accepts either at (RFC3339 or local timestamp) or hour and
// month.
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var resp classifyResponse
	if raw := q.Get("at"); raw != "" {
		at, err := series.ParseTimestamp(raw, h.location)
		if err != nil {
			http.Error(w, "invalid at", http.StatusBadRequest)
			return
		}
		at = at.In(h.location)
		resp.At = at
		resp.Hour = at.Hour()
		resp.Month = int(at.Month())
	} else {
		hour, errHour := strconv.Atoi(q.Get("hour"))
		month, errMonth := strconv.Atoi(q.Get("month"))
		if errHour != nil || errMonth != nil {
			http.Error(w, "at or hour and month are required", http.StatusBadRequest)
			return
		}
		resp.Hour = hour
		resp.Month = month
	}

	period, err := tariff.Classify(resp.Hour, resp.Month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp.Period = period
	resp.Price, _ = h.prices.Price(period)
	writeJSON(w, http.StatusOK, resp)
}

type pricesRequest struct {
	Valley       float64 `json:"valley"`
	Flat         float64 `json:"flat"`
	Peak         float64 `json:"peak"`
	CriticalPeak float64 `json:"critical_peak"`
}

type valuationRequest struct {
	EntityID string         `json:"entity_id"`
	Prices   *pricesRequest `json:"prices,omitempty"`
	Points   []struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	} `json:"points"`
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	var req valuationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxValuationBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	prices := h.prices
	if req.Prices != nil {
		prices = tariff.NewPriceTable(req.Prices.Valley, req.Prices.Flat, req.Prices.Peak, req.Prices.CriticalPeak)
	}

	points := make([]series.Point, 0, len(req.Points))
	for i, p := range req.Points {
		ts, err := series.ParseTimestamp(p.Timestamp, h.location)
		if err != nil {
			http.Error(w, "invalid timestamp at point "+strconv.Itoa(i), http.StatusBadRequest)
			return
		}
		points = append(points, series.Point{Timestamp: ts.In(h.location), Value: p.Value})
	}

	valuation, err := tariff.Valuate(series.FromPoints(req.EntityID, points), prices)
	if err != nil {
		if errors.Is(err, tariff.ErrMissingPrice) || errors.Is(err, tariff.ErrNegativePrice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Printf("tariff http valuation error: %v", err)
		http.Error(w, "valuation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
