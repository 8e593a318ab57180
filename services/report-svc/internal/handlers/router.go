package handlers

import (
	"net/http"

	"workshop/pkg/config"
	"workshop/pkg/metrics"
	"workshop/pkg/ratelimit"
	"workshop/pkg/swagger"
	"workshop/pkg/telemetry"
	"workshop/services/report-svc/internal/middleware"
)

// RouterConfig настройки маршрутизации
type RouterConfig struct {
	Auth middleware.AuthConfig
	// GenerateLimiter лимит на создание отчётов; nil - без лимита
	GenerateLimiter ratelimit.Limiter
	CORS            config.CORSConfig
	Metrics         *metrics.Metrics
	// MetricsHandler отдаётся на MetricsPath; nil - эндпоинт не регистрируется
	MetricsHandler http.Handler
	MetricsPath    string
	// DocsSpec OpenAPI документ для Swagger UI на DocsPath; nil - без документации
	DocsSpec []byte
	DocsPath string
}

// NewRouter собирает HTTP API сервиса
func NewRouter(h *ReportHandler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.Auth(cfg.Auth)
	api := func(hf http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		return middleware.Chain(hf, append([]func(http.Handler) http.Handler{auth}, extra...)...)
	}

	mux.Handle("POST /api/v1/reports", api(h.GenerateReport,
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  cfg.GenerateLimiter,
			Category: "generate",
		}),
	))
	mux.Handle("GET /api/v1/reports/types", api(h.ListTypes))
	mux.Handle("GET /api/v1/reports/history", api(h.GetReportHistory))
	mux.Handle("GET /api/v1/reports/{id}/download", api(h.DownloadReport))
	mux.Handle("DELETE /api/v1/reports/{id}", api(h.DeleteReport))
	mux.Handle("POST /api/v1/reports/cleanup", api(h.Cleanup, middleware.RequireAdmin))

	// Health endpoints (обычный HTTP для проверок k8s)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.MetricsHandler)
	}

	if cfg.DocsSpec != nil {
		docs := swagger.DefaultConfig()
		if cfg.DocsPath != "" {
			docs.BasePath = cfg.DocsPath
		}
		swagger.Register(mux, docs, cfg.DocsSpec)
	}

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		telemetry.HTTPMiddleware,
		middleware.Logging,
		middleware.Metrics(cfg.Metrics),
	}
	if cfg.CORS.Enabled {
		mws = append(mws, middleware.CORS(cfg.CORS))
	}
	return middleware.Chain(mux, mws...)
}
