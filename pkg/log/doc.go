// Package log provides structured logging for scour components.
//
// The Logger interface carries both a Field-based API and printf-style
// helpers. The default implementation formats entries as text or JSON and
// writes them to the console; it is bridged onto log/slog so that library
// code holding a *slog.Logger participates in the same pipeline.
//
//	logger := log.NewLogger(
//		log.WithLevel(log.InfoLevel),
//		log.WithFormatter(&log.TextFormatter{}),
//	)
//	logger = logger.WithComponent("scavenge")
//	logger.Info("chunk rewritten", log.F("chunk", 3), log.F("kept", 120))
//
// RedirectStdLog points the standard library logger (used by Pebble) at a
// Logger so subsystem output is uniform.
package log
