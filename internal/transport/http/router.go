// Package httptransport assembles the HTTP surface: middleware chain,
// domain handlers, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
)

// Registrar is anything that mounts routes on the authenticated router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports the liveness of one dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router needs. Health checks are optional; nil
// entries are skipped.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator middleware.TokenValidator
	Handlers  []Registrar
	Health    map[string]HealthChecker
}

// NewRouter builds the full service router. Auth is applied once here, so
// handlers only deal with role gating.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(d.Metrics))
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", healthHandler(d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Validator, d.Logger))
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(ctx); err != nil {
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		shared.WriteJSON(w, status, body)
	}
}
