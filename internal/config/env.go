package config

import (
	"os"
	"strconv"
)

// FromEnv overlays SCOUR_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SCOUR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SCOUR_CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("SCOUR_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Threshold = n
		}
	}
	if v := os.Getenv("SCOUR_CANCELLATION_CHECK_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CancellationCheckPeriod = n
		}
	}
	if v := os.Getenv("SCOUR_SKEW_TOLERANCE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SkewToleranceMs = n
		}
	}
	if v := os.Getenv("SCOUR_THROTTLE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThrottlePercent = f
		}
	}
	if v := os.Getenv("SCOUR_UNSAFE_IGNORE_HARD_DELETES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UnsafeIgnoreHardDeletes = b
		}
	}
	if v := os.Getenv("SCOUR_HASH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HashCacheSize = n
		}
	}
	if v := os.Getenv("SCOUR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SCOUR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
