// Package inmemory is a volatile core.Storage keeping sessions, nodes and
// connections in process local maps. Returned records are copies.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
)

type pair struct{ source, target string }

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*core.SessionRecord
	nodes     map[string]*core.Node
	nodeOrder map[string][]string // sessionID -> node ids in creation order
	edges     map[pair]*core.Edge
	outgoing  map[string][]pair
	now       func() time.Time
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*core.SessionRecord),
		nodes:     make(map[string]*core.Node),
		nodeOrder: make(map[string][]string),
		edges:     make(map[pair]*core.Edge),
		outgoing:  make(map[string][]pair),
		now:       time.Now,
	}
}

// CreateSession persists a new active session.
func (s *Store) CreateSession(_ context.Context, userID, agentID string) (*core.SessionRecord, error) {
	rec := &core.SessionRecord{
		ID:             core.NewID(),
		UserID:         userID,
		PrimaryAgentID: agentID,
		StartTime:      s.now(),
		Status:         core.SessionActive,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return cloneSession(rec), nil
}

// EndSession marks a session completed.
func (s *Store) EndSession(_ context.Context, sessionID, summary string, topics []string) (*core.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	end := s.now()
	rec.EndTime = &end
	rec.Summary = summary
	rec.TopicsCovered = append([]string(nil), topics...)
	rec.Status = core.SessionCompleted
	return cloneSession(rec), nil
}

// CreateNode persists an active node.
func (s *Store) CreateNode(_ context.Context, sessionID, userID string, typ core.NodeType, content string, metadata map[string]any) (*core.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	n := &core.Node{
		ID:        core.NewID(),
		SessionID: sessionID,
		UserID:    userID,
		Type:      typ,
		Content:   content,
		Metadata:  cloneMap(metadata),
		Active:    true,
		CreatedAt: s.now(),
	}
	s.nodes[n.ID] = n
	s.nodeOrder[sessionID] = append(s.nodeOrder[sessionID], n.ID)
	return cloneNode(n), nil
}

// ConnectNodes persists a connection. A second connection between the same
// ordered pair fails with core.ErrDuplicateEdge.
func (s *Store) ConnectNodes(_ context.Context, sourceID, targetID string, typ core.EdgeType, strength float64, metadata map[string]any) (*core.Edge, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("connection strength %v out of range [0,1]", strength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{sourceID, targetID} {
		if _, ok := s.nodes[id]; !ok {
			return nil, fmt.Errorf("node %s: %w", id, core.ErrNotFound)
		}
	}
	key := pair{sourceID, targetID}
	if _, ok := s.edges[key]; ok {
		return nil, fmt.Errorf("%s -> %s: %w", sourceID, targetID, core.ErrDuplicateEdge)
	}
	e := &core.Edge{
		ID:        core.NewID(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      typ,
		Strength:  strength,
		Metadata:  cloneMap(metadata),
		CreatedAt: s.now(),
	}
	s.edges[key] = e
	s.outgoing[sourceID] = append(s.outgoing[sourceID], key)
	return cloneEdge(e), nil
}

// DeactivateNode clears the active flag of a node.
func (s *Store) DeactivateNode(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, core.ErrNotFound)
	}
	n.Active = false
	return nil
}

// SessionNodes returns the active nodes of a session in creation order.
func (s *Store) SessionNodes(_ context.Context, sessionID string) ([]core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Node{}
	for _, id := range s.nodeOrder[sessionID] {
		if n := s.nodes[id]; n.Active {
			out = append(out, *cloneNode(n))
		}
	}
	return out, nil
}

// ConnectedEdges returns the edges leaving nodeID.
func (s *Store) ConnectedEdges(_ context.Context, nodeID string) ([]core.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Edge{}
	for _, key := range s.outgoing[nodeID] {
		out = append(out, *cloneEdge(s.edges[key]))
	}
	return out, nil
}

// RecentSessions returns up to limit sessions of userID, newest first.
func (s *Store) RecentSessions(_ context.Context, userID string, limit int) ([]core.SessionRecord, error) {
	s.mu.RLock()
	out := []core.SessionRecord{}
	for _, rec := range s.sessions {
		if rec.UserID == userID {
			out = append(out, *cloneSession(rec))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func cloneSession(r *core.SessionRecord) *core.SessionRecord {
	c := *r
	c.TopicsCovered = append([]string(nil), r.TopicsCovered...)
	if r.EndTime != nil {
		end := *r.EndTime
		c.EndTime = &end
	}
	return &c
}

func cloneNode(n *core.Node) *core.Node {
	c := *n
	c.Metadata = cloneMap(n.Metadata)
	return &c
}

func cloneEdge(e *core.Edge) *core.Edge {
	c := *e
	c.Metadata = cloneMap(e.Metadata)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
