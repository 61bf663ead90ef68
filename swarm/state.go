// Package swarm holds the state shared by the orchestrator and the agent
// manager: the active session, the agent registry, the thought-graph mirror
// and the event bus.
//
// Collaborator calls never happen while the state lock is held. Writes that
// belong to a session are tagged with its id and dropped once that session
// is no longer the active one, so a task finishing after EndSession cannot
// leak into the next session.
package swarm

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/graph"
)

// AgentStatus is the lifecycle status of a registered agent.
type AgentStatus string

const (
	AgentReady  AgentStatus = "ready"
	AgentActive AgentStatus = "active"
)

// HistoryEntry records one prompt/response exchange handled by an agent.
type HistoryEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	PromptNodeID   string    `json:"prompt_node_id"`
	ResponseNodeID string    `json:"response_node_id"`
	Success        bool      `json:"success"`
}

// Agent is a registry record.
type Agent struct {
	ID               string         `json:"id"`
	Prompt           string         `json:"-"`
	Status           AgentStatus    `json:"status"`
	ActivatedAt      time.Time      `json:"activated_at,omitempty"`
	ActivationNodeID string         `json:"activation_node_id,omitempty"`
	History          []HistoryEntry `json:"history"`
}

func (a *Agent) clone() Agent {
	c := *a
	c.History = append([]HistoryEntry(nil), a.History...)
	return c
}

// State is the orchestrator-owned state. It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	prompts map[string]string
	agents  map[string]*Agent
	session *core.Session
	closing bool
	// moving maps agents with a transition in flight to their session id.
	moving map[string]string
	graph  *graph.Graph
	bus    *Bus
}

// NewState creates state around bus with an empty registry.
func NewState(bus *Bus) *State {
	return &State{
		prompts: map[string]string{},
		agents:  map[string]*Agent{},
		moving:  map[string]string{},
		graph:   graph.New(),
		bus:     bus,
	}
}

// Bus returns the event bus.
func (s *State) Bus() *Bus { return s.bus }

// Graph returns the thought-graph mirror.
func (s *State) Graph() *graph.Graph { return s.graph }

// LoadCatalog replaces the prompt catalog and resets the registry to one
// ready record per catalog entry.
func (s *State) LoadCatalog(prompts map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = make(map[string]string, len(prompts))
	for id, p := range prompts {
		s.prompts[id] = p
	}
	s.resetAgentsLocked()
}

func (s *State) resetAgentsLocked() {
	s.agents = make(map[string]*Agent, len(s.prompts))
	for id, p := range s.prompts {
		s.agents[id] = &Agent{ID: id, Prompt: p, Status: AgentReady}
	}
	s.moving = map[string]string{}
}

// liveLocked reports whether sessionID is active and not being closed.
func (s *State) liveLocked(sessionID string) bool {
	return s.session != nil && s.session.ID == sessionID && !s.closing
}

// Prompt returns the configured system prompt for agentID.
func (s *State) Prompt(agentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[agentID]
	return p, ok && p != ""
}

// Session returns a snapshot of the active session.
func (s *State) Session() (core.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return core.SessionSnapshot{}, false
	}
	return s.session.Snapshot(), true
}

// SessionID returns the active session id and user id.
func (s *State) SessionID() (sessionID, userID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return "", "", false
	}
	return s.session.ID, s.session.UserID, true
}

// IsCurrent reports whether sessionID is the active session and is not being
// closed.
func (s *State) IsCurrent(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked(sessionID)
}

// BeginSession installs sess as the active session.
func (s *State) BeginSession(sess *core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	s.closing = false
}

// BeginClose freezes the active session and returns its snapshot. From here
// on every write tagged with the session is dropped, so the snapshot's topics
// are the ones that get persisted. It returns false if there is no active
// session or it is already closing.
func (s *State) BeginClose() (core.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.closing {
		return core.SessionSnapshot{}, false
	}
	s.closing = true
	return s.session.Snapshot(), true
}

// AbortClose reopens sessionID when ending it failed after BeginClose.
func (s *State) AbortClose(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.ID == sessionID {
		s.closing = false
	}
}

// CloseSession marks the active session completed, clears the registry and
// the graph mirror and returns the closing snapshot.
func (s *State) CloseSession(summary string, end time.Time) (core.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return core.SessionSnapshot{}, false
	}
	s.closing = false
	s.session.Summary = summary
	s.session.EndTime = &end
	s.session.Status = core.SessionCompleted
	snap := s.session.Snapshot()
	s.session = nil
	s.resetAgentsLocked()
	s.graph.Reset()
	return snap, true
}

// Agent returns a copy of the registry record for agentID.
func (s *State) Agent(agentID string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return Agent{}, false
	}
	return a.clone(), true
}

// Agents returns copies of every registry record sorted by id.
func (s *State) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsActive reports whether agentID is active.
func (s *State) IsActive(agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	return ok && a.Status == AgentActive
}

// BeginTransition claims agentID for a move to status to within sessionID. It
// returns false if the session is not current, the agent already has that
// status or another transition for it is in flight. A successful claim must
// be released with EndTransition.
func (s *State) BeginTransition(sessionID, agentID string, to AgentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(sessionID) {
		return false
	}
	if _, busy := s.moving[agentID]; busy {
		return false
	}
	from := AgentReady
	if a, ok := s.agents[agentID]; ok {
		from = a.Status
	}
	if from == to {
		return false
	}
	s.moving[agentID] = sessionID
	return true
}

// EndTransition releases a claim taken with BeginTransition.
func (s *State) EndTransition(sessionID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.moving[agentID] == sessionID {
		delete(s.moving, agentID)
	}
}

// MarkActive registers agentID as active in sessionID with its activation
// node. It returns false if sessionID is no longer current.
func (s *State) MarkActive(sessionID, agentID, prompt, activationNodeID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(sessionID) {
		return false
	}
	a, ok := s.agents[agentID]
	if !ok {
		a = &Agent{ID: agentID}
		s.agents[agentID] = a
	}
	a.Prompt = prompt
	a.Status = AgentActive
	a.ActivatedAt = at
	a.ActivationNodeID = activationNodeID
	s.session.Agents.Add(agentID)
	return true
}

// MarkInactive returns agentID to the ready state.
func (s *State) MarkInactive(sessionID, agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(sessionID) {
		return false
	}
	a, ok := s.agents[agentID]
	if !ok || a.Status != AgentActive {
		return false
	}
	a.Status = AgentReady
	a.ActivationNodeID = ""
	return true
}

// AppendHistory adds a history entry to an active agent.
func (s *State) AppendHistory(sessionID, agentID string, entry HistoryEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(sessionID) {
		return false
	}
	a, ok := s.agents[agentID]
	if !ok {
		return false
	}
	a.History = append(a.History, entry)
	return true
}

// AddTopics merges topics into the active session's topic set and returns the
// newly added ones.
func (s *State) AddTopics(sessionID string, topics ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(sessionID) {
		return nil
	}
	var added []string
	for _, t := range topics {
		if s.session.Topics.Add(t) {
			added = append(added, t)
		}
	}
	return added
}

// TrackNode mirrors n into the graph if its session is current.
func (s *State) TrackNode(n core.Node) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.liveLocked(n.SessionID) {
		return false
	}
	return s.graph.AddNode(n)
}

// TrackConnection mirrors an edge into the graph if sessionID is current.
func (s *State) TrackConnection(sessionID, source, target string, typ core.EdgeType, strength float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.liveLocked(sessionID) {
		return false
	}
	s.graph.AddConnection(source, target, typ, strength)
	return true
}

// IsTracked reports whether nodeID is in the graph mirror.
func (s *State) IsTracked(nodeID string) bool {
	return s.graph.HasNode(nodeID)
}

// Emit publishes ev on the bus.
func (s *State) Emit(ev Event) { s.bus.Emit(ev) }

// EmitCurrent publishes ev only while its session is current.
func (s *State) EmitCurrent(ev Event) bool {
	if !s.IsCurrent(ev.SessionID) {
		return false
	}
	s.bus.Emit(ev)
	return true
}
