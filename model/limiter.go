package model

import (
	"fmt"
	"sync"
)

// RoundLimiter enforces a maximum number of provider round trips per completion.
type RoundLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewRoundLimiter creates a limiter allowing max rounds. max <= 0 means one round.
func NewRoundLimiter(max int) *RoundLimiter {
	if max <= 0 {
		max = 1
	}
	return &RoundLimiter{max: max}
}

// Increment counts a round and returns an error once the limit is exceeded.
func (l *RoundLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.count > l.max {
		return fmt.Errorf("exceeded max model rounds: %d", l.max)
	}

	return nil
}

// Count returns the number of rounds taken.
func (l *RoundLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many rounds are left.
func (l *RoundLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count >= l.max {
		return 0
	}
	return l.max - l.count
}
