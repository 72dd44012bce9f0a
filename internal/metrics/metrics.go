package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	codeforcesRequests *prometheus.CounterVec
	codeforcesLatency  prometheus.Histogram
	syncs              *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	completedMatches   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		codeforcesRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfbingo",
			Name:      "codeforces_requests_total",
			Help:      "Requests sent to the Codeforces API by outcome.",
		}, []string{"outcome"}),
		codeforcesLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cfbingo",
			Name:      "codeforces_request_seconds",
			Help:      "Latency of Codeforces API requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfbingo",
			Name:      "syncs_total",
			Help:      "Sync requests by round and result.",
		}, []string{"round", "result"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfbingo",
			Name:      "match_submissions_total",
			Help:      "Round 2 submissions recorded by side and verdict class.",
		}, []string{"side", "verdict"}),
		completedMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfbingo",
			Name:      "matches_completed_total",
			Help:      "Matches completed by winning side.",
		}, []string{"winner"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCodeforcesRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.codeforcesRequests.WithLabelValues(outcome).Inc()
	m.codeforcesLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) IncSync(round, result string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(round, result).Inc()
}

func (m *Metrics) IncSubmission(side, verdict string) {
	if m == nil {
		return
	}
	if verdict != "OK" {
		verdict = "rejected"
	}
	m.submissions.WithLabelValues(side, verdict).Inc()
}

func (m *Metrics) IncCompleted(winner string) {
	if m == nil {
		return
	}
	m.completedMatches.WithLabelValues(winner).Inc()
}
