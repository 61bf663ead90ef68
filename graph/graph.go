// Package graph holds the in-memory mirror of a session's thought graph.
//
// Connections are indexed source -> target -> type, so two connections of
// different types between the same ordered pair live side by side. The mirror
// is a cache for in-process queries; the storage collaborator owns the
// persisted graph.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
)

// Connection is a typed, weighted link in the mirror.
type Connection struct {
	SourceID  string        `json:"source_id"`
	TargetID  string        `json:"target_id"`
	Type      core.EdgeType `json:"type"`
	Strength  float64       `json:"strength"`
	Timestamp time.Time     `json:"timestamp"`
}

// Graph is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]core.Node
	order []string
	adj   map[string]map[string]map[core.EdgeType]Connection
	count int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]core.Node),
		adj:   make(map[string]map[string]map[core.EdgeType]Connection),
	}
}

// AddNode tracks n. Re-adding a node id replaces nothing and returns false.
func (g *Graph) AddNode(n core.Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[n.ID]; ok {
		return false
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return true
}

// HasNode reports whether id is tracked.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Node returns the tracked node with id.
func (g *Graph) Node(id string) (core.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns tracked nodes in insertion order.
func (g *Graph) Nodes() []core.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]core.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// AddConnection records a typed link from source to target. A second call
// with the same (source, target, type) overwrites strength and timestamp.
func (g *Graph) AddConnection(source, target string, typ core.EdgeType, strength float64) Connection {
	c := Connection{
		SourceID:  source,
		TargetID:  target,
		Type:      typ,
		Strength:  core.ClampStrength(strength),
		Timestamp: time.Now(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	targets, ok := g.adj[source]
	if !ok {
		targets = make(map[string]map[core.EdgeType]Connection)
		g.adj[source] = targets
	}
	byType, ok := targets[target]
	if !ok {
		byType = make(map[core.EdgeType]Connection)
		targets[target] = byType
	}
	if _, exists := byType[typ]; !exists {
		g.count++
	}
	byType[typ] = c
	return c
}

// Connections returns the links between source and target, sorted by type.
func (g *Graph) Connections(source, target string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedConnections(g.adj[source][target])
}

// Outgoing returns every link leaving source, sorted by target then type.
func (g *Graph) Outgoing(source string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Connection
	for _, byType := range g.adj[source] {
		out = append(out, sortedConnections(byType)...)
	}
	sortByEndpoints(out)
	return out
}

// Incoming returns every link arriving at target, sorted by source then type.
func (g *Graph) Incoming(target string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Connection
	for _, targets := range g.adj {
		out = append(out, sortedConnections(targets[target])...)
	}
	sortByEndpoints(out)
	return out
}

// All returns every link in the mirror.
func (g *Graph) All() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Connection, 0, g.count)
	for _, targets := range g.adj {
		for _, byType := range targets {
			out = append(out, sortedConnections(byType)...)
		}
	}
	sortByEndpoints(out)
	return out
}

// Len returns the number of tracked nodes and connections.
func (g *Graph) Len() (nodes, connections int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), g.count
}

// Reset drops every node and connection.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]core.Node)
	g.order = nil
	g.adj = make(map[string]map[string]map[core.EdgeType]Connection)
	g.count = 0
}

// Snapshot is a serializable copy of the mirror.
type Snapshot struct {
	Nodes       []core.Node  `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// Snapshot copies the mirror.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Nodes: g.Nodes(), Connections: g.All()}
}

func sortedConnections(byType map[core.EdgeType]Connection) []Connection {
	if len(byType) == 0 {
		return nil
	}
	out := make([]Connection, 0, len(byType))
	for _, c := range byType {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func sortByEndpoints(cs []Connection) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].SourceID != cs[j].SourceID {
			return cs[i].SourceID < cs[j].SourceID
		}
		if cs[i].TargetID != cs[j].TargetID {
			return cs[i].TargetID < cs[j].TargetID
		}
		return cs[i].Type < cs[j].Type
	})
}
