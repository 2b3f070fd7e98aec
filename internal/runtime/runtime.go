package runtime

import (
	"context"
	"errors"

	cfgpkg "github.com/rzbill/scour/internal/config"
	"github.com/rzbill/scour/internal/logstream"
	"github.com/rzbill/scour/internal/scavenge"
	"github.com/rzbill/scour/internal/scavenge/state"
	pebblestore "github.com/rzbill/scour/internal/storage/pebble"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
}

// Runtime wires the state store and scavenge options for a single node.
type Runtime struct {
	db     *pebblestore.DB
	state  *state.Store
	config cfgpkg.Config
	logger logpkg.Logger
}

// Open initializes the underlying storage and scavenge state.
func Open(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	scavOpts := ScavengeOptions(opts.Config)
	st, err := state.Open(state.Options{
		DB:               db,
		Hasher:           logstream.Hasher64{},
		Names:            logstream.Naming{},
		ChunkForPosition: scavOpts.ChunkForPosition,
		HashCacheSize:    opts.Config.HashCacheSize,
		Logger:           opts.Logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Runtime{db: db, state: st, config: opts.Config, logger: opts.Logger}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// State exposes the scavenge state store.
func (r *Runtime) State() *state.Store { return r.state }

// DB exposes the underlying store for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// NewScavenger builds a scavenger over this runtime's state with the given
// external ports.
func (r *Runtime) NewScavenger(chunks scavenge.ChunkManager, index scavenge.IndexReader, indexScav scavenge.IndexScavenger, points scavenge.ScavengePointSource, reporter scavenge.ScavengerLog) (*scavenge.Scavenger, error) {
	return scavenge.NewScavenger(scavenge.Config{
		State:          r.state,
		Chunks:         chunks,
		Index:          index,
		IndexScavenger: indexScav,
		Points:         points,
		Names:          logstream.Naming{},
		Options:        ScavengeOptions(r.config),
		Logger:         r.logger,
		Reporter:       reporter,
	})
}

// ScavengeOptions maps file configuration onto scavenge options.
func ScavengeOptions(cfg cfgpkg.Config) scavenge.Options {
	return scavenge.Options{
		ChunkSize:               cfg.ChunkSize,
		Threshold:               cfg.Threshold,
		CancellationCheckPeriod: cfg.CancellationCheckPeriod,
		SkewToleranceMs:         cfg.SkewToleranceMs,
		ThrottlePercent:         cfg.ThrottlePercent,
		UnsafeIgnoreHardDeletes: cfg.UnsafeIgnoreHardDeletes,
	}.Normalize()
}
