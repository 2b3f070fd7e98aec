package scavenge

import (
	"time"

	logpkg "github.com/rzbill/scour/pkg/log"
)

// NoopReporter discards all notifications.
type NoopReporter struct{}

func (NoopReporter) RunStarted(string, ScavengePoint)                {}
func (NoopReporter) StageStarted(Stage)                              {}
func (NoopReporter) StageCompleted(Stage, time.Duration)             {}
func (NoopReporter) ChunkAccumulated(int, int)                       {}
func (NoopReporter) StreamsCalculated(int)                           {}
func (NoopReporter) ChunkRewritten(int, int64, int64, time.Duration) {}
func (NoopReporter) ChunkSkipped(int, float64)                       {}
func (NoopReporter) IndexExecuted(int64, int64)                      {}
func (NoopReporter) RunCompleted(string, Result, time.Duration)      {}
func (NoopReporter) RunFailed(string, error, time.Duration)          {}

// LogReporter writes structured progress logs.
type LogReporter struct {
	logger logpkg.Logger
}

// NewLogReporter tags entries with the scavenge component.
func NewLogReporter(logger logpkg.Logger) *LogReporter {
	return &LogReporter{logger: logger.WithComponent("scavenge")}
}

func (r *LogReporter) RunStarted(runID string, sp ScavengePoint) {
	r.logger.Info("scavenge started",
		logpkg.F("scavenge_id", runID),
		logpkg.F("scavenge_point", sp.String()),
		logpkg.F("threshold", sp.Threshold))
}

func (r *LogReporter) StageStarted(stage Stage) {
	r.logger.Info("stage started", logpkg.F("stage", string(stage)))
}

func (r *LogReporter) StageCompleted(stage Stage, elapsed time.Duration) {
	r.logger.Info("stage completed",
		logpkg.F("stage", string(stage)), logpkg.F("elapsed_ms", elapsed.Milliseconds()))
}

func (r *LogReporter) ChunkAccumulated(chunk int, records int) {
	r.logger.Debug("chunk accumulated",
		logpkg.F("chunk", chunk), logpkg.F("records", records))
}

func (r *LogReporter) StreamsCalculated(streams int) {
	r.logger.Debug("streams calculated", logpkg.F("streams", streams))
}

func (r *LogReporter) ChunkRewritten(chunk int, kept, discarded int64, elapsed time.Duration) {
	r.logger.Info("chunk rewritten",
		logpkg.F("chunk", chunk),
		logpkg.F("kept", kept),
		logpkg.F("discarded", discarded),
		logpkg.F("elapsed_ms", elapsed.Milliseconds()))
}

func (r *LogReporter) ChunkSkipped(chunk int, weight float64) {
	r.logger.Debug("chunk skipped",
		logpkg.F("chunk", chunk), logpkg.F("weight", weight))
}

func (r *LogReporter) IndexExecuted(kept, dropped int64) {
	r.logger.Info("index executed",
		logpkg.F("kept", kept), logpkg.F("dropped", dropped))
}

func (r *LogReporter) RunCompleted(runID string, result Result, elapsed time.Duration) {
	r.logger.Info("scavenge completed",
		logpkg.F("scavenge_id", runID),
		logpkg.F("result", string(result)),
		logpkg.F("elapsed_ms", elapsed.Milliseconds()))
}

func (r *LogReporter) RunFailed(runID string, err error, elapsed time.Duration) {
	r.logger.Error("scavenge failed",
		logpkg.F("scavenge_id", runID),
		logpkg.Err(err),
		logpkg.F("elapsed_ms", elapsed.Milliseconds()))
}

// MultiReporter fans notifications out to several reporters.
type MultiReporter []ScavengerLog

func (m MultiReporter) RunStarted(runID string, sp ScavengePoint) {
	for _, r := range m {
		r.RunStarted(runID, sp)
	}
}

func (m MultiReporter) StageStarted(stage Stage) {
	for _, r := range m {
		r.StageStarted(stage)
	}
}

func (m MultiReporter) StageCompleted(stage Stage, elapsed time.Duration) {
	for _, r := range m {
		r.StageCompleted(stage, elapsed)
	}
}

func (m MultiReporter) ChunkAccumulated(chunk int, records int) {
	for _, r := range m {
		r.ChunkAccumulated(chunk, records)
	}
}

func (m MultiReporter) StreamsCalculated(streams int) {
	for _, r := range m {
		r.StreamsCalculated(streams)
	}
}

func (m MultiReporter) ChunkRewritten(chunk int, kept, discarded int64, elapsed time.Duration) {
	for _, r := range m {
		r.ChunkRewritten(chunk, kept, discarded, elapsed)
	}
}

func (m MultiReporter) ChunkSkipped(chunk int, weight float64) {
	for _, r := range m {
		r.ChunkSkipped(chunk, weight)
	}
}

func (m MultiReporter) IndexExecuted(kept, dropped int64) {
	for _, r := range m {
		r.IndexExecuted(kept, dropped)
	}
}

func (m MultiReporter) RunCompleted(runID string, result Result, elapsed time.Duration) {
	for _, r := range m {
		r.RunCompleted(runID, result, elapsed)
	}
}

func (m MultiReporter) RunFailed(runID string, err error, elapsed time.Duration) {
	for _, r := range m {
		r.RunFailed(runID, err, elapsed)
	}
}
