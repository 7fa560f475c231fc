package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/stealth-crawler/internal/delivery/http/handler"
	"github.com/user/stealth-crawler/internal/delivery/http/middleware"
	"github.com/user/stealth-crawler/pkg/metrics"
)

// New wires the status API. /metrics serves the collectors registered in gatherer.
func New(h *handler.Handler, gatherer prometheus.Gatherer, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)
	mux.HandleFunc("GET /api/status", h.HandleGetStatus)
	mux.HandleFunc("/api/", h.HandleNotFound)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Apply middlewares
	var chainedHandler http.Handler = mux
	chainedHandler = middleware.Metrics(m)(chainedHandler)
	chainedHandler = middleware.Logging(chainedHandler)

	return chainedHandler
}
