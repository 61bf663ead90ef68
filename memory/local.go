package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
)

// DefaultLocalCap is the number of turns LocalStore keeps per user.
const DefaultLocalCap = 20

// LocalStore is a process-local core.Memory keeping the most recent turns of
// every user. Search is a case-insensitive substring scan.
type LocalStore struct {
	mu    sync.RWMutex
	cap   int
	turns map[string][]core.Turn // userID -> turns, oldest first
}

// NewLocalStore creates a store capped at capacity turns per user. A
// non-positive capacity selects DefaultLocalCap.
func NewLocalStore(capacity int) *LocalStore {
	if capacity <= 0 {
		capacity = DefaultLocalCap
	}
	return &LocalStore{cap: capacity, turns: make(map[string][]core.Turn)}
}

// AddMemory appends turn and drops the oldest entries beyond the cap.
func (s *LocalStore) AddMemory(_ context.Context, userID string, turn core.Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.turns[userID], turn)
	if over := len(list) - s.cap; over > 0 {
		list = append([]core.Turn(nil), list[over:]...)
	}
	s.turns[userID] = list
	return nil
}

// GetMemory returns up to limit of the most recent turns, oldest first. A
// non-positive limit returns everything kept.
func (s *LocalStore) GetMemory(_ context.Context, userID string, limit int) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.turns[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]core.Turn{}, list...), nil
}

// SearchMemory returns up to limit turns containing query, newest first.
func (s *LocalStore) SearchMemory(_ context.Context, userID, query string, limit int) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return searchTurns(s.turns[userID], query, limit), nil
}

// Len returns the number of turns kept for userID.
func (s *LocalStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[userID])
}

// searchTurns scans turns (oldest first) from the newest end.
func searchTurns(turns []core.Turn, query string, limit int) []core.Turn {
	q := strings.ToLower(query)
	out := []core.Turn{}
	for i := len(turns) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(turns[i].Content), q) {
			out = append(out, turns[i])
		}
	}
	return out
}

// SearchTurns exposes the substring scan to remote backends that filter
// client-side.
func SearchTurns(turns []core.Turn, query string, limit int) []core.Turn {
	return searchTurns(turns, query, limit)
}
