package core

import (
	"github.com/google/uuid"
	"github.com/hupe1980/eduswarm/logging"
)

// NewID returns a new random identifier used for sessions, nodes, edges and tasks.
func NewID() string { return uuid.NewString() }

// EnsureLogger substitutes a NoOpLogger when l is nil so callers never have to
// nil-check their logger.
func EnsureLogger(l logging.Logger) logging.Logger {
	if l == nil {
		return logging.NoOpLogger{}
	}
	return l
}
