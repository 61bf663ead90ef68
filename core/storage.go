package core

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by stores when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEdge is returned when a connection between the same ordered
	// pair of nodes already exists.
	ErrDuplicateEdge = errors.New("connection already exists")
)

// Storage persists sessions, thought nodes and their connections. Writes are
// append-only. Every method is fallible; a non-nil error means nothing was
// persisted and the returned record is nil.
type Storage interface {
	CreateSession(ctx context.Context, userID, agentID string) (*SessionRecord, error)
	EndSession(ctx context.Context, sessionID, summary string, topics []string) (*SessionRecord, error)
	CreateNode(ctx context.Context, sessionID, userID string, typ NodeType, content string, metadata map[string]any) (*Node, error)
	ConnectNodes(ctx context.Context, sourceID, targetID string, typ EdgeType, strength float64, metadata map[string]any) (*Edge, error)
}

// GraphReader is implemented by stores that can answer graph queries.
type GraphReader interface {
	// SessionNodes returns the active nodes of a session in creation order.
	SessionNodes(ctx context.Context, sessionID string) ([]Node, error)
	// ConnectedEdges returns every edge leaving nodeID.
	ConnectedEdges(ctx context.Context, nodeID string) ([]Edge, error)
	// RecentSessions returns the most recently started sessions of a user.
	RecentSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error)
}

// NodeDeactivator is implemented by stores that track an active flag per node.
type NodeDeactivator interface {
	DeactivateNode(ctx context.Context, nodeID string) error
}
