package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors this service emits. A nil *Registry is a
// valid no-op sink, so tests and tools can run without metrics wiring.
type Registry struct {
	reg *prometheus.Registry

	pollsStarted   prometheus.Counter
	pollsCompleted *prometheus.CounterVec
	pollAttempts   prometheus.Histogram
	providerFetch  *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	overallScores  prometheus.Histogram
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		pollsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "recording",
			Name:      "polls_started_total",
			Help:      "Background recording polls started.",
		}),
		pollsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "recording",
			Name:      "polls_completed_total",
			Help:      "Polls finished, by terminal state.",
		}, []string{"state"}),
		pollAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mentor",
			Subsystem: "recording",
			Name:      "poll_attempts",
			Help:      "Fetch attempts used per finished poll.",
			Buckets:   []float64{1, 2, 3, 5, 8, 12, 16, 20},
		}),
		providerFetch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "voiceai",
			Name:      "provider_fetches_total",
			Help:      "Snapshot fetches against the voice-AI provider, by outcome.",
		}, []string{"outcome"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "evaluation",
			Name:      "evaluations_total",
			Help:      "Evaluation attempts, by outcome.",
		}, []string{"outcome"}),
		overallScores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mentor",
			Subsystem: "evaluation",
			Name:      "overall_score",
			Help:      "Overall scores persisted by the orchestrator.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
}

func (r *Registry) PollStarted() {
	if r == nil {
		return
	}
	r.pollsStarted.Inc()
}

func (r *Registry) PollCompleted(state string, attempts int) {
	if r == nil {
		return
	}
	r.pollsCompleted.WithLabelValues(state).Inc()
	r.pollAttempts.Observe(float64(attempts))
}

// Provider fetch outcomes.
const (
	FetchOK       = "ok"
	FetchNotFound = "not_found"
	FetchError    = "error"
)

func (r *Registry) ProviderFetch(outcome string) {
	if r == nil {
		return
	}
	r.providerFetch.WithLabelValues(outcome).Inc()
}

func (r *Registry) EvaluationOutcome(outcome string) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(outcome).Inc()
}

func (r *Registry) EvaluationScored(overall int) {
	if r == nil {
		return
	}
	r.overallScores.Observe(float64(overall))
}
