package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the backend counters exposed on /metrics.
type Metrics struct {
	answers        *prometheus.CounterVec
	statusRequests prometheus.Counter
	handler        http.Handler
}

// NewMetrics registers the counters on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_answers_total",
			Help: "Answer submissions by outcome.",
		}, []string{"result"}),
		statusRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "challenge_status_requests_total",
			Help: "Answer-status reads served.",
		}),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

func (m *Metrics) answer(result string) {
	m.answers.WithLabelValues(result).Inc()
}

func (m *Metrics) statusRead() {
	m.statusRequests.Inc()
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}
