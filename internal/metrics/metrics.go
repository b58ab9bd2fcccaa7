// Package metrics holds the Prometheus collectors of the extraction engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "energodoc"

// Fallback call outcomes.
const (
	FallbackProposal   = "proposal"
	FallbackNoProposal = "no_proposal"
	FallbackCacheHit   = "cache_hit"
	FallbackError      = "error"
)

// Processing run outcomes.
const (
	SubmissionProcessed = "processed"
	SubmissionRetry     = "retry"
	SubmissionFailed    = "failed"
	SubmissionCanceled  = "canceled"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions   *prometheus.CounterVec
	FallbackCalls *prometheus.CounterVec
	Candidates    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_processed_total",
			Help:      "Processing runs by outcome.",
		}, []string{"outcome"}),
		FallbackCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_calls_total",
			Help:      "Semantic fallback calls by outcome.",
		}, []string{"outcome"}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_candidates_total",
			Help:      "Field extraction candidates by method.",
		}, []string{"method"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30, 120},
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{m.Submissions, m.FallbackCalls, m.Candidates, m.StageDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Submission counts one processing run.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

// Fallback counts one fallback call.
func (m *Metrics) Fallback(outcome string) {
	if m == nil {
		return
	}
	m.FallbackCalls.WithLabelValues(outcome).Inc()
}

// Candidate counts n candidates of one method.
func (m *Metrics) Candidate(method string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Candidates.WithLabelValues(method).Add(float64(n))
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler exposes the collectors gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
