package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vnmchuo/puqee/internal/metrics"
)

// NewRouter mounts every route. collector may be nil, in which case neither
// request metrics nor /metrics are served.
func NewRouter(h *Handler, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)
	if collector != nil {
		r.Use(collector.Middleware)
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}

	r.Get("/health", h.HandleHealth)
	r.Get("/api/info", h.HandleInfo)
	r.Post("/chat", h.HandleChat)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.HandleListAgents)
		r.Post("/", h.HandleCreateAgent)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetAgent)
			r.Delete("/", h.HandleDeleteAgent)
			r.Post("/chat", h.HandleAgentChat)
			r.Get("/sessions/{sid}", h.HandleGetSession)
			r.Delete("/sessions/{sid}", h.HandleClearSession)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", h.HandleGenerate)
		r.Get("/providers", h.HandleProviders)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
