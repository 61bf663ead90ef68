package core

import (
	"context"
	"time"
)

// Turn is one conversational turn kept by the memory collaborator.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Agent     string    `json:"agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory stores and retrieves per-user conversational turns.
type Memory interface {
	AddMemory(ctx context.Context, userID string, turn Turn) error
	// GetMemory returns up to limit of the most recent turns, oldest first.
	GetMemory(ctx context.Context, userID string, limit int) ([]Turn, error)
	// SearchMemory returns up to limit turns whose content contains query.
	SearchMemory(ctx context.Context, userID, query string, limit int) ([]Turn, error)
}
