package scavenge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsReporter publishes scavenge progress as Prometheus metrics.
type MetricsReporter struct {
	runsStarted      prometheus.Counter
	runsCompleted    *prometheus.CounterVec
	stageSeconds     *prometheus.HistogramVec
	currentStage     prometheus.Gauge
	recordsSwept     prometheus.Counter
	streamsCalced    prometheus.Counter
	chunksRewritten  prometheus.Counter
	chunksSkipped    prometheus.Counter
	recordsDiscarded prometheus.Counter
	rewriteSeconds   prometheus.Histogram
	indexDropped     prometheus.Counter
}

// stageOrdinal positions each stage on the current-stage gauge.
var stageOrdinal = map[Stage]float64{
	StageNone:            0,
	StageAccumulating:    1,
	StageCalculating:     2,
	StageExecutingChunks: 3,
	StageMergingChunks:   4,
	StageExecutingIndex:  5,
	StageCleaning:        6,
	StageDone:            7,
}

// NewMetricsReporter registers the scavenge metric family.
func NewMetricsReporter(reg prometheus.Registerer) *MetricsReporter {
	m := &MetricsReporter{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "runs_started_total",
			Help: "Scavenge runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "runs_completed_total",
			Help: "Scavenge runs completed, by result.",
		}, []string{"result"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "stage_seconds",
			Help:    "Wall time per completed pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		currentStage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "current_stage",
			Help: "Pipeline stage currently running (0 idle ... 7 done).",
		}),
		recordsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "records_accumulated_total",
			Help: "Records swept by the accumulator.",
		}),
		streamsCalced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "streams_calculated_total",
			Help: "Streams processed by the calculator.",
		}),
		chunksRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "chunks_rewritten_total",
			Help: "Chunks rewritten by the chunk executor.",
		}),
		chunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "chunks_skipped_total",
			Help: "Chunks skipped below the weight threshold.",
		}),
		recordsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "records_discarded_total",
			Help: "Records dropped during chunk rewrites.",
		}),
		rewriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "chunk_rewrite_seconds",
			Help:    "Wall time per chunk rewrite.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
		indexDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour", Subsystem: "scavenge", Name: "index_entries_dropped_total",
			Help: "Index entries dropped by the index executor.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.runsStarted, m.runsCompleted, m.stageSeconds, m.currentStage,
			m.recordsSwept, m.streamsCalced, m.chunksRewritten, m.chunksSkipped,
			m.recordsDiscarded, m.rewriteSeconds, m.indexDropped,
		)
	}
	return m
}

func (m *MetricsReporter) RunStarted(string, ScavengePoint) { m.runsStarted.Inc() }

func (m *MetricsReporter) StageStarted(stage Stage) {
	m.currentStage.Set(stageOrdinal[stage])
}

func (m *MetricsReporter) StageCompleted(stage Stage, elapsed time.Duration) {
	m.stageSeconds.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *MetricsReporter) ChunkAccumulated(_ int, records int) {
	m.recordsSwept.Add(float64(records))
}

func (m *MetricsReporter) StreamsCalculated(streams int) {
	m.streamsCalced.Add(float64(streams))
}

func (m *MetricsReporter) ChunkRewritten(_ int, _, discarded int64, elapsed time.Duration) {
	m.chunksRewritten.Inc()
	m.recordsDiscarded.Add(float64(discarded))
	m.rewriteSeconds.Observe(elapsed.Seconds())
}

func (m *MetricsReporter) ChunkSkipped(int, float64) { m.chunksSkipped.Inc() }

func (m *MetricsReporter) IndexExecuted(_, dropped int64) {
	m.indexDropped.Add(float64(dropped))
}

func (m *MetricsReporter) RunCompleted(_ string, result Result, _ time.Duration) {
	m.runsCompleted.WithLabelValues(string(result)).Inc()
	m.currentStage.Set(stageOrdinal[StageNone])
}

func (m *MetricsReporter) RunFailed(string, error, time.Duration) {
	m.runsCompleted.WithLabelValues(string(ResultErrored)).Inc()
	m.currentStage.Set(stageOrdinal[StageNone])
}
