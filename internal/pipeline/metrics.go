package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for analysis runs.
//
// Metrics:
//   - magscore_runs_total{decision} - runs by outcome (analyzed, recorded, rejected)
//   - magscore_stage_duration_seconds{stage} - time spent per stage
//   - magscore_behaviors_activated_total{code} - activations per behavior
//   - magscore_patterns_detected_total{code} - detections per pattern
//   - magscore_ruptures_total{phase} - rupture events per phase
//   - magscore_vision_failures_total - vision calls that failed or timed out
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	BehaviorsActivated *prometheus.CounterVec
	PatternsDetected   *prometheus.CounterVec
	RupturesTotal      *prometheus.CounterVec
	VisionFailures     prometheus.Counter
}

// NewMetrics registers the metrics on reg. Each registry may be used once;
// tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magscore_runs_total",
				Help: "Total number of analysis runs by decision",
			},
			[]string{"decision"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "magscore_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us to ~1.6s
			},
			[]string{"stage"},
		),
		BehaviorsActivated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magscore_behaviors_activated_total",
				Help: "Total number of behavior activations",
			},
			[]string{"code"},
		),
		PatternsDetected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magscore_patterns_detected_total",
				Help: "Total number of pattern detections",
			},
			[]string{"code"},
		),
		RupturesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magscore_ruptures_total",
				Help: "Total number of rupture events",
			},
			[]string{"phase"},
		),
		VisionFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "magscore_vision_failures_total",
				Help: "Total number of failed vision extractions",
			},
		),
	}
}
