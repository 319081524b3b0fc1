package http

import (
	"net/http"

	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/handler"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
	"github.com/dreschagin/perf-audit-history/pkg/config"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

// Instrumentation - метрики HTTP слоя; nil отключает
type Instrumentation interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	OnRateLimited()
	OnAuthFailure()
}

// Router настраивает маршруты приложения
type Router struct {
	mux             *http.ServeMux
	auditAPIHandler *handler.AuditAPIHandler
	healthHandler   *handler.HealthHandler
	limiter         *middleware.IPRateLimiter
	instrumentation Instrumentation
	security        config.SecurityConfig
	logger          *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	auditAPIHandler *handler.AuditAPIHandler,
	healthHandler *handler.HealthHandler,
	limiter *middleware.IPRateLimiter,
	instrumentation Instrumentation,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		auditAPIHandler: auditAPIHandler,
		healthHandler:   healthHandler,
		limiter:         limiter,
		instrumentation: instrumentation,
		security:        security,
		logger:          logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Пробы и метрики без авторизации
	rt.mux.HandleFunc("GET /healthz", rt.healthHandler.Healthz)
	rt.mux.HandleFunc("GET /readyz", rt.healthHandler.Readyz)
	if rt.instrumentation != nil {
		rt.mux.Handle("GET /metrics", rt.instrumentation.Handler())
	}

	authCfg := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	var onDrop func()
	if rt.instrumentation != nil {
		authCfg.OnFailure = rt.instrumentation.OnAuthFailure
		onDrop = rt.instrumentation.OnRateLimited
	}

	api := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		wrapped = middleware.Auth(authCfg, rt.logger)(wrapped)
		if rt.limiter != nil {
			wrapped = middleware.RateLimit(rt.limiter, onDrop)(wrapped)
		}
		return wrapped
	}

	rt.mux.Handle("POST /api/v1/runs", middleware.Decompression(api(rt.auditAPIHandler.IngestRun)))
	rt.mux.Handle("GET /api/v1/trend", middleware.Compression(api(rt.auditAPIHandler.GetTrend)))
	rt.mux.Handle("GET /api/v1/latest", api(rt.auditAPIHandler.GetLatest))
	rt.mux.Handle("GET /api/v1/details/{id}", middleware.Compression(api(rt.auditAPIHandler.GetReportDetail)))

	// Применяем middleware
	var handler http.Handler = rt.mux
	if rt.instrumentation != nil {
		handler = rt.instrumentation.Middleware(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}
