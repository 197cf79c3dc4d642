// Package logging provides structured logging for taskvault.
//
// It wraps Go's standard log/slog package to provide consistent,
// structured logging across the application:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//
// Never log secrets, tokens, passwords, or password hashes.
package logging
