package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir is the scavenge state store directory.
	DataDir string `json:"dataDir"`
	// ChunkSize is the logical chunk size in bytes.
	ChunkSize int64 `json:"chunkSize"`
	// Threshold is the minimum chunk weight for a rewrite. -1 forces none,
	// 0 rewrites on any positive weight.
	Threshold int64 `json:"threshold"`
	// CancellationCheckPeriod is the number of records between cancel polls
	// inside a chunk rewrite.
	CancellationCheckPeriod int `json:"cancellationCheckPeriod"`
	// SkewToleranceMs widens the coarse max-age comparison to absorb clock
	// drift.
	SkewToleranceMs int64 `json:"skewToleranceMs"`
	// ThrottlePercent paces chunk execution; 100 runs flat out.
	ThrottlePercent float64 `json:"throttlePercent"`
	// UnsafeIgnoreHardDeletes discards tombstoned streams entirely,
	// including the tombstone.
	UnsafeIgnoreHardDeletes bool `json:"unsafeIgnoreHardDeletes"`
	// HashCacheSize bounds the hash-to-name collision cache.
	HashCacheSize int `json:"hashCacheSize"`
	// LogLevel is debug|info|warn|error.
	LogLevel string `json:"logLevel"`
	// LogFormat is text|json.
	LogFormat string `json:"logFormat"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		ChunkSize:               256 << 20,
		Threshold:               0,
		CancellationCheckPeriod: 1024,
		SkewToleranceMs:         60_000,
		ThrottlePercent:         100,
		HashCacheSize:           10_000,
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. Environment overlays are applied separately via FromEnv.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if ext := filepath.Ext(path); ext != "" && ext != ".json" {
		return Config{}, fmt.Errorf("unsupported config extension %q; use JSON", ext)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
