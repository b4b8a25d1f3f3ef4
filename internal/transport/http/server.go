package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"dicommart/internal/config"
	apierrors "dicommart/internal/errors"
	"dicommart/internal/infrastructure"
	"dicommart/internal/middleware"
)

// Dependencies are the services behind the routes. Metrics and WebSocket
// are optional; their routes are not mounted when nil.
type Dependencies struct {
	Runs      RunService
	Summary   SummaryService
	Datamarts DatamartService

	Metrics   http.Handler
	WebSocket http.Handler
	Telemetry *middleware.Telemetry
}

// NewRouter builds the control plane router.
func NewRouter(deps Dependencies, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	errHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	if deps.Telemetry != nil {
		r.Use(deps.Telemetry.Handler)
	}
	r.Use(apierrors.NewErrorMiddleware(errHandler, logger).Handler)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	r.NotFound(errHandler.NotFound)
	r.MethodNotAllowed(errHandler.MethodNotAllowed)

	r.Get("/healthz", NewHealthHandler(deps.Runs).Healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", deps.WebSocket)
	}

	runs := NewRunsHandler(deps.Runs, errHandler, logger)
	data := NewDataHandler(deps.Summary, deps.Datamarts, errHandler, logger)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(render.SetContentType(render.ContentTypeJSON))
		if cfg.RateLimit > 0 {
			api.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, logger).Handler)
		}
		api.Mount("/runs", runs.Routes())
		api.Get("/summary", data.Summary)
		api.Get("/datamarts", data.Datamarts)
	})

	return r
}

// NewServer wraps handler in an http.Server configured from cfg.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
