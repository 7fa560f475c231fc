package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for a crawl process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PagesTotal          *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	MatchesTotal        *prometheus.CounterVec
	ChallengesTotal     prometheus.Counter
	DismissalsTotal     *prometheus.CounterVec
	VisitedURLs         prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served by the status endpoint.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the status endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		PagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Pages attempted, by outcome.",
			},
			[]string{"status", "error_type"}, // status: success, failure, challenge
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Duration of page navigations, including pacing delays.",
				Buckets: []float64{1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"domain"},
		),
		MatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_matches_total",
				Help: "Deduplicated matches written, by pattern family.",
			},
			[]string{"family"},
		),
		ChallengesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_challenges_detected_total",
				Help: "Pages flagged by the challenge hook.",
			},
		),
		DismissalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_dismissal_attempts_total",
				Help: "Challenge dismissal attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		VisitedURLs: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_visited_urls",
				Help: "URLs marked visited in the current run.",
			},
		),
	}
}

func (m *Metrics) ObservePage(status, errorType string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(status, errorType).Inc()
}

func (m *Metrics) ObserveFetch(domain string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(domain).Observe(seconds)
}

func (m *Metrics) AddMatches(family string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MatchesTotal.WithLabelValues(family).Add(float64(n))
}

func (m *Metrics) IncChallenges() {
	if m == nil {
		return
	}
	m.ChallengesTotal.Inc()
}

func (m *Metrics) IncDismissal(outcome string) {
	if m == nil {
		return
	}
	m.DismissalsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetVisited(n int) {
	if m == nil {
		return
	}
	m.VisitedURLs.Set(float64(n))
}
