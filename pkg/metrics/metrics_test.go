package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePage("success", "")
		m.ObserveFetch("example.com", 1.5)
		m.AddMatches("email", 3)
		m.IncChallenges()
		m.IncDismissal("not_found")
		m.SetVisited(2)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePage("failure", "timeout")
	m.ObservePage("failure", "timeout")
	m.AddMatches("pdf", 4)
	m.AddMatches("pdf", 0)
	m.IncDismissal("dismissed")
	m.SetVisited(7)
	m.ObserveFetch("example.com", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("failure", "timeout")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("pdf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DismissalsTotal.WithLabelValues("dismissed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.VisitedURLs))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchDuration))
}

func TestNew_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
