// Package logging provides the minimal logging interface used across the
// swarm plus adapters for Go's structured logging.
//
// The Logger interface (Debug, Info, Warn, Error with key/value pairs) is what
// every component depends on. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping *slog.Logger
//   - NoOpLogger for silent operation (tests, minimal setups)
//   - SwarmLogger with session/user context and domain helpers
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: os.Stderr})
//	orch := orchestrator.New(func(o *orchestrator.Options) { o.Logger = logger })
package logging
