package scavenge

import (
	"context"
	"errors"
	"sync"

	"github.com/rzbill/scour/pkg/id"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// Runner lifecycle errors.
var (
	// ErrAlreadyRunning rejects a start while a run is active.
	ErrAlreadyRunning = errors.New("scavenge already in progress")
	// ErrInvalidScavengeID rejects a stop whose id does not match the
	// active run.
	ErrInvalidScavengeID = errors.New("no scavenge with that id is running")
)

type runnerPhase int

const (
	phaseIdle runnerPhase = iota
	phaseRunning
	phaseCancelling
)

// Runner is the process-wide singleton guard around the scavenger: at most
// one run at a time, started and stopped by id.
type Runner struct {
	scavenger *Scavenger
	logger    logpkg.Logger
	gen       *id.Generator

	mu      sync.Mutex
	phase   runnerPhase
	current string
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastResult Result
	lastErr    error
}

// NewRunner wraps a scavenger with the singleton lifecycle.
func NewRunner(scavenger *Scavenger, logger logpkg.Logger) *Runner {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Runner{
		scavenger: scavenger,
		logger:    logger.WithComponent("scavenge-runner"),
		gen:       id.NewGenerator(),
	}
}

// Start launches a run in the background and returns its id. A second start
// while one is active fails with ErrAlreadyRunning (result InProgress).
func (r *Runner) Start(ctx context.Context, runOpts RunOptions) (string, error) {
	r.mu.Lock()
	if r.phase != phaseIdle {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	runID := r.gen.Next().String()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.phase = phaseRunning
	r.current = runID
	r.stopped = false
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		result, err := r.scavenger.Run(runCtx, runID, runOpts)

		r.mu.Lock()
		if result == ResultStopped && !r.stopped {
			// cancelled from outside rather than by Stop
			result = ResultInterrupted
		}
		r.lastResult = result
		r.lastErr = err
		r.phase = phaseIdle
		r.current = ""
		r.cancel = nil
		r.mu.Unlock()

		if err != nil && result == ResultErrored {
			r.logger.Error("scavenge failed", logpkg.F("scavenge_id", runID), logpkg.Err(err))
		}
	}()
	return runID, nil
}

// Stop cancels the active run if scavengeID matches it.
func (r *Runner) Stop(scavengeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != phaseRunning || r.current != scavengeID {
		return ErrInvalidScavengeID
	}
	r.phase = phaseCancelling
	r.stopped = true
	r.cancel()
	return nil
}

// Wait blocks until the current run finishes; a no-op when idle.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RunSync starts a run and waits for its result, for the CLI and tests.
func (r *Runner) RunSync(ctx context.Context, runOpts RunOptions) (Result, error) {
	if _, err := r.Start(ctx, runOpts); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return ResultInProgress, err
		}
		return ResultErrored, err
	}
	r.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult, r.lastErr
}

// Active returns the running scavenge id, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == phaseIdle {
		return "", false
	}
	return r.current, true
}

// LastResult reports the outcome of the most recent completed run.
func (r *Runner) LastResult() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult, r.lastErr
}
