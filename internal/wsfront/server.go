package wsfront

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/augmentcore/corehub/internal/health"
	"github.com/augmentcore/corehub/internal/observe"
)

// NewServer assembles the HTTP front door (C13): the glasses and TPA
// WebSocket upgrade routes, health/readiness probes, and a Prometheus
// metrics endpoint, all behind the shared observability middleware.
func NewServer(glasses *GlassesHandler, tpa *TPAHandler, healthHandler *health.Handler, metrics *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /glasses-ws", glasses)
	mux.Handle("GET /tpa-ws", tpa)
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return observe.Middleware(metrics)(mux)
}
