package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analysisapp "load-analytics/internal/analysis/application"
	"load-analytics/internal/analysis/domain/dataset"
	analysismemory "load-analytics/internal/analysis/infrastructure/memory"
	analysispostgres "load-analytics/internal/analysis/infrastructure/postgres"
	analysishttp "load-analytics/internal/analysis/interfaces/http"
	"load-analytics/internal/audit"
	"load-analytics/internal/auth"
	"load-analytics/internal/gridapi"
	"load-analytics/internal/llm"
	"load-analytics/internal/observability/metrics"
	tariffhttp "load-analytics/internal/tariff/interfaces/http"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	analysisCfg, err := analysisapp.LoadConfig()
	if err != nil {
		logger.Fatalf("analysis config error: %v", err)
	}
	loc, err := analysisCfg.Location()
	if err != nil {
		logger.Fatalf("analysis timezone error: %v", err)
	}

	var (
		repo        dataset.Repository
		auditLogger audit.Logger
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		pgRepo := analysispostgres.NewDatasetRepository(db, analysispostgres.WithLocation(loc))
		if err := pgRepo.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("db schema error: %v", err)
		}
		auditRepo := audit.NewRepository(db, "")
		if err := auditRepo.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("audit schema error: %v", err)
		}
		metrics.Init(db, logger)
		repo = pgRepo
		auditLogger = auditRepo
	} else {
		logger.Printf("DATABASE_URL not set, datasets are kept in memory")
		metrics.Init(nil, logger)
		repo = analysismemory.NewDatasetRepository()
		auditLogger = audit.NewLogLogger(logger)
	}

	sessions := analysisapp.NewSessionStore(
		analysisapp.WithSessionTTL(cfg.SessionTTL),
		analysisapp.WithExpireHook(func(datasetID string) {
			if err := repo.Delete(context.Background(), datasetID); err != nil {
				logger.Printf("session expire: drop dataset=%s err=%v", datasetID, err)
			}
		}),
	)

	var opts []analysisapp.Option
	if cfg.LLMEndpoint != "" && cfg.LLMAPIKey != "" {
		narrative := analysisCfg.Narrative
		llmClient, err := llm.NewClient(llm.Config{
			Endpoint:    cfg.LLMEndpoint,
			APIKey:      cfg.LLMAPIKey,
			Model:       getenvDefault("LLM_MODEL", narrative.Model),
			Temperature: getenvFloatDefault("LLM_TEMPERATURE", narrative.Temperature),
			MaxTokens:   getenvIntDefault("LLM_MAX_TOKENS", narrative.MaxTokens),
			Timeout:     cfg.LLMTimeout,
			Attempts:    analysisCfg.Retry.Attempts,
			RetryDelay:  analysisCfg.Retry.Delay,
		}, logger)
		if err != nil {
			logger.Fatalf("llm client error: %v", err)
		}
		opts = append(opts, analysisapp.WithNarrator(llmClient))
	}
	if cfg.GridBaseURL != "" {
		gridClient, err := gridapi.NewClient(gridapi.Config{
			BaseURL:      cfg.GridBaseURL,
			AccessKey:    cfg.GridAccessKey,
			AccessSecret: cfg.GridAccessSecret,
			Timeout:      cfg.GridTimeout,
			Attempts:     analysisCfg.Retry.Attempts,
			RetryDelay:   analysisCfg.Retry.Delay,
			Location:     loc,
		}, gridapi.WithLogger(logger))
		if err != nil {
			logger.Fatalf("grid api client error: %v", err)
		}
		opts = append(opts, analysisapp.WithMeasurementSource(gridClient))
	}

	service, err := analysisapp.NewService(repo, sessions, analysisCfg, logger, opts...)
	if err != nil {
		logger.Fatalf("analysis service error: %v", err)
	}
	analysisHandler, err := analysishttp.NewHandler(service, logger, analysishttp.WithAuditLogger(auditLogger))
	if err != nil {
		logger.Fatalf("analysis handler error: %v", err)
	}
	tariffHandler, err := tariffhttp.NewHandler(analysisCfg.Prices.Table(), loc, logger)
	if err != nil {
		logger.Fatalf("tariff handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/datasets", analysisHandler)
	mux.Handle("/api/v1/sessions", analysisHandler)
	mux.Handle("/api/v1/analysis/", analysisHandler)
	mux.Handle("/api/v1/exports/", analysisHandler)
	mux.Handle("/api/v1/reports/narrative", analysisHandler)
	mux.Handle("/api/v1/measurements/valuation", analysisHandler)
	mux.Handle("/api/v1/tariff/classify", tariffHandler)
	mux.Handle("/api/v1/tariff/valuation", tariffHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	JWTSecret        string
	SessionTTL       time.Duration
	GridBaseURL      string
	GridAccessKey    string
	GridAccessSecret string
	GridTimeout      time.Duration
	LLMEndpoint      string
	LLMAPIKey        string
	LLMTimeout       time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		SessionTTL:       getenvDuration("SESSION_TTL", 12*time.Hour),
		GridBaseURL:      getenvDefault("GRID_API_BASE_URL", ""),
		GridAccessKey:    getenvDefault("GRID_API_ACCESS_KEY", ""),
		GridAccessSecret: getenvDefault("GRID_API_ACCESS_SECRET", ""),
		GridTimeout:      getenvDuration("GRID_API_TIMEOUT", 10*time.Second),
		LLMEndpoint:      getenvDefault("LLM_ENDPOINT", "https://api.deepseek.com/v1/chat/completions"),
		LLMAPIKey:        getenvDefault("LLM_API_KEY", getenvDefault("DEEPSEEK_API_KEY", "")),
		LLMTimeout:       getenvDuration("LLM_TIMEOUT", 60*time.Second),
	}
	if cfg.GridBaseURL != "" && (cfg.GridAccessKey == "" || cfg.GridAccessSecret == "") {
		log.Fatal("GRID_API_ACCESS_KEY and GRID_API_ACCESS_SECRET are required with GRID_API_BASE_URL")
	}
	return cfg
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

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
