// Package metrics exposes Prometheus instrumentation for the HTTP layer and
// the extraction pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/denisAlshanov/audioworker/internal/models"
	"github.com/denisAlshanov/audioworker/internal/services/artifact"
	"github.com/denisAlshanov/audioworker/internal/services/extractor"
)

const namespace = "audioworker"

type Metrics struct {
	httpDuration   *prometheus.HistogramVec
	extractions    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	liveArtifacts  *prometheus.GaugeVec
	artifactsTotal *prometheus.CounterVec
}

var (
	_ artifact.Observer  = (*Metrics)(nil)
	_ extractor.Observer = (*Metrics)(nil)
)

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_duration_seconds",
			Help:      "Latency of requests in second.",
		}, []string{"path", "method", "status"}),
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Finished pipeline executions by terminal state and failed stage.",
		}, []string{"state", "failed_stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures.",
		}, []string{"stage"}),
		liveArtifacts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_artifacts",
			Help:      "Scratch files currently on disk.",
		}, []string{"kind"}),
		artifactsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_allocated_total",
			Help:      "Scratch files allocated.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ArtifactAllocated(kind artifact.Kind) {
	m.liveArtifacts.WithLabelValues(kind.String()).Inc()
	m.artifactsTotal.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ArtifactReleased(kind artifact.Kind) {
	m.liveArtifacts.WithLabelValues(kind.String()).Dec()
}

func (m *Metrics) StageFinished(stage extractor.Stage, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) RunFinished(state models.RunState, failedStage extractor.Stage) {
	m.extractions.WithLabelValues(string(state), string(failedStage)).Inc()
}

// Middleware records request latency. Paths are labelled by route
// template so unmatched URLs do not create new series.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		m.httpDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
