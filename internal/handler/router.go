// Package handler serves the operational endpoints of a running walletctl:
// health, readiness, Prometheus metrics and a read-only view of the
// session core.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

// StateSource reports the session core state.
type StateSource interface {
	State() service.State
}

// NewRouter creates the ops router. state may be nil, in which case
// /v1/state answers 503.
func NewRouter(state StateSource, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)

	started := time.Now()

	r.Get("/healthz", healthzHandler(started))
	r.Get("/readyz", readyzHandler(state))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", stateHandler(state))
		r.Get("/stats", statsHandler(metrics))
	})

	return r
}

func healthzHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"uptime":    time.Since(started).Round(time.Second).String(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler(state StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if state == nil {
			writeError(w, http.StatusServiceUnavailable, "session core not started")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func stateHandler(state StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if state == nil {
			writeError(w, http.StatusServiceUnavailable, "session core not started")
			return
		}
		writeJSON(w, http.StatusOK, state.State())
	}
}

func statsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := metrics.GetSnapshot()
		writeJSON(w, http.StatusOK, map[string]float64{
			"operations":      snap.Operations,
			"failures":        snap.Failures,
			"backend_errors":  snap.BackendErrors,
			"stale_responses": snap.StaleResponses,
			"cache_hits":      snap.CacheHits,
			"cache_misses":    snap.CacheMisses,
		})
	}
}
