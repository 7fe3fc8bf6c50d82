package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/shelf/errors"
)

const (
	// MetricsNamespace is the namespace for all shelf metrics.
	MetricsNamespace = "shelf"

	// MetricsSubsystem is the subsystem for pipeline metrics.
	MetricsSubsystem = "pipeline"
)

// Run outcomes, used as the "outcome" label.
const (
	OutcomeSuccess        = "success"
	OutcomeParseFailed    = "parse_failed"
	OutcomeAnalysisFailed = "analysis_failed"
	OutcomePersistFailed  = "persist_failed"
)

// Metrics holds the Prometheus metrics for pipeline runs.
// A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	StageDurationSeconds *prometheus.HistogramVec
	RecordsTotal         prometheus.Counter
	MalformedNodesTotal  prometheus.Counter
	SuggestionsTotal     prometheus.Counter
}

// NewMetrics creates and registers the pipeline metrics on reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"stage"},
		),
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "records_total",
			Help:      "Total number of flat records produced by the parser",
		}),
		MalformedNodesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "malformed_nodes_total",
			Help:      "Total number of malformed nodes skipped by the parser",
		}),
		SuggestionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "suggestions_total",
			Help:      "Total number of suggestions produced by the analyzer",
		}),
	}
}

func (m *Metrics) observeStage(stage errors.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *Metrics) recordRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordParse(records, malformed int) {
	if m == nil {
		return
	}
	m.RecordsTotal.Add(float64(records))
	m.MalformedNodesTotal.Add(float64(malformed))
}

func (m *Metrics) recordSuggestions(n int) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.Add(float64(n))
}
