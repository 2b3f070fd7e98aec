package scavenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/rzbill/scour/pkg/log"
)

// Config wires a Scavenger from its collaborators.
type Config struct {
	State          State
	Chunks         ChunkManager
	Index          IndexReader
	IndexScavenger IndexScavenger
	Points         ScavengePointSource
	Names          MetastreamLookup
	Clock          Clock
	Options        Options
	Logger         logpkg.Logger
	Reporter       ScavengerLog
}

// Scavenger drives one run of the pipeline over a scavenge point: it settles
// the target point, then executes the stages in order, resuming whichever one
// the durable checkpoint names.
type Scavenger struct {
	state    State
	chunks   ChunkManager
	points   ScavengePointSource
	opts     Options
	logger   logpkg.Logger
	reporter ScavengerLog

	accumulator   *Accumulator
	calculator    *Calculator
	chunkExecutor *ChunkExecutor
	indexExecutor *IndexExecutor
	cleaner       *Cleaner
}

// NewScavenger builds the pipeline.
func NewScavenger(cfg Config) (*Scavenger, error) {
	switch {
	case cfg.State == nil:
		return nil, errors.New("scavenge: Config.State is required")
	case cfg.Chunks == nil:
		return nil, errors.New("scavenge: Config.Chunks is required")
	case cfg.Index == nil:
		return nil, errors.New("scavenge: Config.Index is required")
	case cfg.IndexScavenger == nil:
		return nil, errors.New("scavenge: Config.IndexScavenger is required")
	case cfg.Points == nil:
		return nil, errors.New("scavenge: Config.Points is required")
	case cfg.Names == nil:
		return nil, errors.New("scavenge: Config.Names is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logpkg.NewLogger()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NoopReporter{}
	}
	opts := cfg.Options.Normalize()
	throttle := NewThrottle(opts.ThrottlePercent)

	return &Scavenger{
		state:         cfg.State,
		chunks:        cfg.Chunks,
		points:        cfg.Points,
		opts:          opts,
		logger:        cfg.Logger.WithComponent("scavenger"),
		reporter:      cfg.Reporter,
		accumulator:   NewAccumulator(cfg.State, cfg.Chunks, cfg.Names, opts, cfg.Logger, cfg.Reporter),
		calculator:    NewCalculator(cfg.State, cfg.Index, opts, cfg.Logger, cfg.Reporter),
		chunkExecutor: NewChunkExecutor(cfg.State, cfg.Chunks, opts, throttle, cfg.Logger, cfg.Reporter),
		indexExecutor: NewIndexExecutor(cfg.State, cfg.Index, cfg.IndexScavenger, opts, cfg.Logger, cfg.Reporter),
		cleaner:       NewCleaner(cfg.State, cfg.Names, opts, cfg.Logger, cfg.Reporter),
	}, nil
}

// RunOptions carry the per-run knobs of the scavenge command.
type RunOptions struct {
	// Threads bounds the index port's merge fan-out; values below 1 mean
	// sequential.
	Threads int
	// StartFromChunk forces a fresh run's accumulation to begin no earlier
	// than this chunk. Resumed runs ignore it.
	StartFromChunk int
}

// Run executes one scavenge to completion or cancellation, returning the
// command result. All recovery is resumption: a later Run picks up where a
// stopped one checkpointed.
func (s *Scavenger) Run(ctx context.Context, runID string, runOpts RunOptions) (Result, error) {
	started := time.Now()
	err := s.run(ctx, runID, runOpts)
	elapsed := time.Since(started)
	switch {
	case err == nil:
		s.reporter.RunCompleted(runID, ResultSuccess, elapsed)
		return ResultSuccess, nil
	case errors.Is(err, context.Canceled), errors.Is(err, ErrChunkBeingDeleted):
		s.reporter.RunCompleted(runID, ResultStopped, elapsed)
		return ResultStopped, err
	default:
		s.reporter.RunFailed(runID, err, elapsed)
		return ResultErrored, err
	}
}

func (s *Scavenger) run(ctx context.Context, runID string, runOpts RunOptions) error {
	cp, err := s.state.LoadCheckpoint()
	if err != nil {
		return err
	}

	var target ScavengePoint
	startStage := StageAccumulating
	accStart, execStart := 0, 0
	var calcAfter *StreamHandle

	if cp.InProgress() {
		// resume the interrupted run exactly where it checkpointed
		target = *cp.Point
		startStage = cp.Stage
		switch cp.Stage {
		case StageAccumulating:
			if cp.DoneChunk != nil {
				accStart = *cp.DoneChunk + 1
			}
		case StageCalculating:
			calcAfter = cp.LastHandle
		case StageExecutingChunks:
			if cp.DoneChunk != nil {
				execStart = *cp.DoneChunk + 1
			}
		}
		s.logger.Info("resuming scavenge",
			logpkg.F("stage", string(cp.Stage)), logpkg.F("scavenge_point", target.String()))
	} else {
		var source *ScavengePoint
		if cp.IsDone() {
			sp := *cp.Point
			source = &sp
		}
		target, err = s.settleTarget(ctx, source)
		if err != nil {
			return err
		}
		if source != nil {
			// re-sweep from the chunk holding the previous point; records
			// before it were accumulated by the prior run
			accStart = s.opts.ChunkForPosition(source.Position)
		}
		if runOpts.StartFromChunk > accStart {
			accStart = runOpts.StartFromChunk
		}
		// make the stage entry durable so a crash before the first chunk
		// commit still resumes against the same target
		if err := s.state.CommitCheckpoint(ctx, Accumulating(target, IntPtr(accStart-1))); err != nil {
			return err
		}
	}

	s.reporter.RunStarted(runID, target)

	type stageStep struct {
		stage Stage
		run   func(context.Context) error
	}
	steps := []stageStep{
		{StageAccumulating, func(ctx context.Context) error {
			return s.accumulator.Accumulate(ctx, target, accStart)
		}},
		{StageCalculating, func(ctx context.Context) error {
			return s.calculator.Calculate(ctx, target, calcAfter)
		}},
		{StageExecutingChunks, func(ctx context.Context) error {
			return s.chunkExecutor.Execute(ctx, target, execStart)
		}},
		{StageMergingChunks, func(ctx context.Context) error {
			return s.mergeChunks(ctx, target)
		}},
		{StageExecutingIndex, func(ctx context.Context) error {
			if err := s.state.CommitCheckpoint(ctx, ExecutingIndex(target)); err != nil {
				return err
			}
			return s.indexExecutor.Execute(ctx, target, runOpts.Threads)
		}},
		{StageCleaning, func(ctx context.Context) error {
			if err := s.state.CommitCheckpoint(ctx, Cleaning(target)); err != nil {
				return err
			}
			return s.cleaner.Clean(ctx, target, s.opts.UnsafeIgnoreHardDeletes)
		}},
	}

	running := false
	for _, step := range steps {
		if !running {
			if step.stage != startStage {
				continue
			}
			running = true
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.timed(ctx, step.stage, step.run); err != nil {
			return err
		}
	}

	return s.state.CommitCheckpoint(ctx, Done(target))
}

// settleTarget adopts the latest existing scavenge point newer than the
// completed one, or appends a fresh marker.
func (s *Scavenger) settleTarget(ctx context.Context, source *ScavengePoint) (ScavengePoint, error) {
	latest, err := s.points.LatestScavengePoint(ctx)
	if err != nil {
		return ScavengePoint{}, fmt.Errorf("read latest scavenge point: %w", err)
	}
	if latest != nil && (source == nil || latest.EventNumber > source.EventNumber) {
		return *latest, nil
	}
	sp, err := s.points.AppendScavengePoint(ctx, s.opts.Threshold)
	if err != nil {
		return ScavengePoint{}, fmt.Errorf("append scavenge point: %w", err)
	}
	s.logger.Info("scavenge point created", logpkg.F("scavenge_point", sp.String()))
	return sp, nil
}

func (s *Scavenger) mergeChunks(ctx context.Context, target ScavengePoint) error {
	if err := s.state.CommitCheckpoint(ctx, MergingChunks(target)); err != nil {
		return err
	}
	merger, ok := s.chunks.(ChunkMerger)
	if !ok {
		return nil
	}
	return merger.MergeChunks(ctx)
}

func (s *Scavenger) timed(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	s.reporter.StageStarted(stage)
	started := time.Now()
	if err := fn(ctx); err != nil {
		return err
	}
	s.reporter.StageCompleted(stage, time.Since(started))
	return nil
}
