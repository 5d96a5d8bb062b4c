package gridapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"load-analytics/internal/analysis/domain/series"
)

var (
	// ErrEmptyBaseURL is returned when the client has no endpoint.
	ErrEmptyBaseURL = errors.New("gridapi: empty base url")
	// ErrMissingCredentials is returned when the access key or secret is empty.
	ErrMissingCredentials = errors.New("gridapi: missing credentials")
	// ErrInvalidRange is returned when a query range is empty or reversed.
	ErrInvalidRange = errors.New("gridapi: invalid range")
	// ErrUnsuccessful is returned when the endpoint answers success=false.
	ErrUnsuccessful = errors.New("gridapi: request unsuccessful")
)

const (
	headerAccessKey   = "X-ACCESS-KEY"
	headerAccessToken = "X-ACCESS-TOKEN"
	headerAccessTS    = "X-ACCESS-TS"

	queryTimeLayout = "2006-01-02 15:04:05"
)

// Meter is one measurement source: a path plus its fixed query parameters.
type Meter struct {
	Name   string            `yaml:"name" json:"name"`
	Path   string            `yaml:"path" json:"path"`
	Params map[string]string `yaml:"params" json:"params"`
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	AccessKey    string
	AccessSecret string
	Timeout      time.Duration
	Attempts     int
	RetryDelay   time.Duration
	Location     *time.Location
}

// Client reads measurement history from the signed open API.
type Client struct {
	baseURL   string
	accessKey string
	secret    string
	client    *http.Client
	attempts  int
	delay     time.Duration
	location  *time.Location
	now       func() time.Time
	logger    *log.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNow overrides the signing clock.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a grid API client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	if cfg.AccessKey == "" || cfg.AccessSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accessKey: cfg.AccessKey,
		secret:    cfg.AccessSecret,
		client:    &http.Client{Timeout: cfg.Timeout},
		attempts:  cfg.Attempts,
		delay:     cfg.RetryDelay,
		location:  cfg.Location,
		now:       time.Now,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sample is one timestamped set of metric values.
type Sample struct {
	TS   int64                      `json:"ts"`
	Data map[string]json.RawMessage `json:"data"`
}

// History is the decoded answer of a history query.
type History struct {
	Meter    string
	Samples  []Sample
	location *time.Location
}

type historyResponse struct {
	Success bool     `json:"success"`
	Code    any      `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Data    []Sample `json:"data"`
}

// History fetches samples of a meter between start and end at the given
// interval in minutes.
func (c *Client) History(ctx context.Context, meter Meter, start, end time.Time, intervalMinutes int) (*History, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, ErrInvalidRange
	}
	if intervalMinutes <= 0 {
		intervalMinutes = 15
	}
	query := url.Values{}
	for k, v := range meter.Params {
		query.Set(k, v)
	}
	query.Set("startDate", start.In(c.location).Format(queryTimeLayout))
	query.Set("endDate", end.In(c.location).Format(queryTimeLayout))
	query.Set("interval", strconv.Itoa(intervalMinutes))

	var resp historyResponse
	if err := c.getSigned(ctx, meter.Path, query, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Message)
	}
	return &History{Meter: meter.Name, Samples: resp.Data, location: c.location}, nil
}

// Metrics lists the metric names present in any sample, sorted.
func (h *History) Metrics() []string {
	seen := make(map[string]struct{})
	for _, s := range h.Samples {
		for k := range s.Data {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Metric converts one metric into a series. Samples without a numeric value
// for the metric are skipped.
func (h *History) Metric(name string) *series.Series {
	loc := h.location
	if loc == nil {
		loc = time.UTC
	}
	points := make([]series.Point, 0, len(h.Samples))
	for _, s := range h.Samples {
		raw, ok := s.Data[name]
		if !ok {
			continue
		}
		v, ok := numeric(raw)
		if !ok {
			continue
		}
		points = append(points, series.Point{
			Timestamp: time.UnixMilli(s.TS).In(loc),
			Value:     v,
		})
	}
	return series.FromPoints(name, points)
}

func numeric(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	v, err := series.ParseValue(s)
	return v, err == nil
}

func (c *Client) getSigned(ctx context.Context, path string, query url.Values, out any) error {
	rawURL := c.baseURL + path + "?" + query.Encode()
	escaped, err := EscapeURL(rawURL)
	if err != nil {
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), uint64(c.attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(
		func() error {
			return c.doSigned(ctx, rawURL, escaped, out)
		},
		policy,
		func(err error, d time.Duration) {
			c.logger.Printf("gridapi retry: path=%s err=%v wait=%v", path, err, d)
		},
	)
}

func (c *Client) doSigned(ctx context.Context, rawURL, escaped string, out any) error {
	ts := c.now().UnixMilli()
	token, err := Sign(c.accessKey, c.secret, http.MethodGet, rawURL, ts)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, escaped, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set(headerAccessKey, c.accessKey)
	req.Header.Set(headerAccessToken, token)
	req.Header.Set(headerAccessTS, strconv.FormatInt(ts, 10))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gridapi: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gridapi: decode response: %w", err)
	}
	return nil
}
