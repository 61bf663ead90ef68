package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/swarm"
	"github.com/hupe1980/eduswarm/topic"
)

var (
	// ErrUnknownAgent is returned when no system prompt is configured for an agent.
	ErrUnknownAgent = errors.New("no system prompt configured for agent")
	// ErrAgentNotActive is returned when an operation needs an active agent.
	ErrAgentNotActive = errors.New("agent is not active")
	// ErrNoActiveSession is returned when an operation needs an active session.
	ErrNoActiveSession = errors.New("no active session")
)

// DefaultMemoryLimit is the number of recent turns fed to the model.
const DefaultMemoryLimit = 10

// ToolSource provides the tool definitions attached when UseTools is set.
// *tool.Registry satisfies it.
type ToolSource interface {
	Definitions() []core.ToolDefinition
}

// Options configures a Manager.
//
// Use functional options with NewManager to override defaults.
type Options struct {
	Storage     core.Storage
	Memory      core.Memory
	Model       core.LanguageModel
	Tools       ToolSource
	Topics      *topic.Extractor
	MemoryLimit int
	Logger      logging.Logger
}

// ResponseOptions tune a single GenerateResponse call.
type ResponseOptions struct {
	// UseTools attaches the tool catalog to the model call.
	UseTools bool
	// ToolChoice is passed through to the model ("auto", "none", ...).
	ToolChoice string
	// Model overrides the model name for this call.
	Model string
}

// Response is the outcome of GenerateResponse. On failure Content holds an
// apology, Success is false and Error describes the cause.
type Response struct {
	Content string `json:"content"`
	NodeID  string `json:"node_id,omitempty"`
	Success bool   `json:"success"`
	Agent   string `json:"agent"`
	Error   string `json:"error,omitempty"`
}

// Manager owns the agent activation lifecycle and response generation.
//
// Manager never owns state: every read and write goes through the
// swarm.State it was created with. It is safe for concurrent use, although
// the orchestrator drives it from a single queue goroutine.
type Manager struct {
	state       *swarm.State
	storage     core.Storage
	memory      core.Memory
	model       core.LanguageModel
	tools       ToolSource
	topics      *topic.Extractor
	memoryLimit int
	logger      logging.Logger
	now         func() time.Time
}

// NewManager creates a manager bound to state.
//
// Storage, Memory and Model are required by the operations that use them;
// a missing collaborator surfaces as an operation error, not a panic. Topics
// defaults to the built-in keyword tables.
func NewManager(state *swarm.State, optFns ...func(o *Options)) *Manager {
	opts := Options{
		MemoryLimit: DefaultMemoryLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Topics == nil {
		opts.Topics = topic.NewExtractor(topic.DefaultDomains())
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	return &Manager{
		state:       state,
		storage:     opts.Storage,
		memory:      opts.Memory,
		model:       opts.Model,
		tools:       opts.Tools,
		topics:      opts.Topics,
		memoryLimit: opts.MemoryLimit,
		logger:      core.EnsureLogger(opts.Logger),
		now:         time.Now,
	}
}

// ActivateAgent activates agentID within the active session.
//
// Activating an already active agent succeeds without side effects. An agent
// without a configured prompt fails with ErrUnknownAgent and leaves the
// registry untouched. Otherwise an agent_activation node is persisted and,
// when sourceNodeID names a tracked node, linked from it with an edge of
// connType (default "direct") and strength 0.8. Emits agent:activate.
func (m *Manager) ActivateAgent(ctx context.Context, agentID string, connType core.EdgeType, sourceNodeID string) error {
	if m.state.IsActive(agentID) {
		m.logger.Debug("agent.activate.skip", "agent", agentID, "reason", "already active")
		return nil
	}
	prompt, ok := m.state.Prompt(agentID)
	if !ok {
		m.logger.Warn("agent.activate.unknown", "agent", agentID)
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	sessionID, userID, ok := m.state.SessionID()
	if !ok {
		m.logger.Warn("agent.activate.no_session", "agent", agentID)
		return ErrNoActiveSession
	}
	if !m.state.BeginTransition(sessionID, agentID, swarm.AgentActive) {
		if !m.state.IsCurrent(sessionID) {
			m.logger.Warn("agent.activate.stale", "agent", agentID, "session", sessionID)
			return ErrNoActiveSession
		}
		m.logger.Debug("agent.activate.skip", "agent", agentID, "reason", "already active or activating")
		return nil
	}
	defer m.state.EndTransition(sessionID, agentID)

	if connType == "" {
		connType = core.EdgeDirect
	}

	at := m.now()
	activationNodeID := ""
	node := m.createNode(ctx, sessionID, userID, core.NodeAgentActivation,
		fmt.Sprintf("Agent %s activated", agentID),
		map[string]any{"agentId": agentID, "timestamp": at.Format(time.RFC3339)})
	if node != nil {
		activationNodeID = node.ID
	}

	if !m.state.MarkActive(sessionID, agentID, prompt, activationNodeID, at) {
		m.logger.Warn("agent.activate.stale", "agent", agentID, "session", sessionID)
		return ErrNoActiveSession
	}

	if node != nil && sourceNodeID != "" && m.state.IsTracked(sourceNodeID) {
		m.connect(ctx, sessionID, sourceNodeID, node.ID, connType, core.ActivationStrength, "Agent activation")
	}

	m.logger.Info("agent.activate", "agent", agentID, "session", sessionID, "node", activationNodeID)
	m.state.EmitCurrent(swarm.Event{
		Name:      swarm.EventAgentActivate,
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		NodeID:    activationNodeID,
		Timestamp: at,
	})
	return nil
}

// DeactivateAgent returns agentID to the ready state.
//
// Deactivating an agent that is not active logs a warning and succeeds
// without creating nodes. Otherwise an agent_deactivation node is persisted
// and linked from the activation node with a lifecycle edge of strength 1.0.
// Prior nodes and edges are kept. Emits agent:deactivate.
func (m *Manager) DeactivateAgent(ctx context.Context, agentID string) error {
	sessionID, userID, ok := m.state.SessionID()
	if !ok {
		m.logger.Warn("agent.deactivate.no_session", "agent", agentID)
		return nil
	}
	if !m.state.BeginTransition(sessionID, agentID, swarm.AgentReady) {
		m.logger.Warn("agent.deactivate.skip", "agent", agentID, "reason", "not active or deactivating")
		return nil
	}
	defer m.state.EndTransition(sessionID, agentID)
	a, ok := m.state.Agent(agentID)
	if !ok {
		return nil
	}

	at := m.now()
	node := m.createNode(ctx, sessionID, userID, core.NodeAgentDeactivation,
		fmt.Sprintf("Agent %s deactivated", agentID),
		map[string]any{"agentId": agentID, "timestamp": at.Format(time.RFC3339)})

	nodeID := ""
	if node != nil {
		nodeID = node.ID
		if a.ActivationNodeID != "" {
			m.connect(ctx, sessionID, a.ActivationNodeID, node.ID, core.EdgeLifecycle, core.LifecycleStrength, "Agent lifecycle")
		}
	}
	if d, ok := m.storage.(core.NodeDeactivator); ok && a.ActivationNodeID != "" {
		if err := d.DeactivateNode(ctx, a.ActivationNodeID); err != nil {
			m.logger.Warn("agent.deactivate.node", "agent", agentID, "node", a.ActivationNodeID, "error", err)
		}
	}

	m.state.MarkInactive(sessionID, agentID)

	m.logger.Info("agent.deactivate", "agent", agentID, "session", sessionID, "node", nodeID)
	m.state.EmitCurrent(swarm.Event{
		Name:      swarm.EventAgentDeactivate,
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		NodeID:    nodeID,
		Timestamp: at,
	})
	return nil
}

// GenerateResponse asks agentID to answer message.
//
// The algorithm:
//  1. persist an agent_prompt node and link every tracked context node to
//     it (context, 0.6)
//  2. assemble system prompt, up to MemoryLimit recent turns (a memory
//     failure yields an empty history) and the user turn
//  3. call the language model once, with the tool catalog if requested
//  4. persist an agent_response node linked from the prompt (response, 1.0)
//  5. record history, extract topics, append both turns to memory on a
//     best-effort basis and emit agent:response
//
// GenerateResponse never returns an error: failures yield Success=false
// with an apologetic Content.
func (m *Manager) GenerateResponse(ctx context.Context, agentID, message string, contextNodeIDs []string, opts ResponseOptions) Response {
	resp, err := m.generate(ctx, agentID, message, contextNodeIDs, opts)
	if err != nil {
		m.logger.Error("agent.response.error", "agent", agentID, "error", err)
		return Response{
			Content: core.Apology,
			Success: false,
			Agent:   agentID,
			Error:   err.Error(),
		}
	}
	return resp
}

func (m *Manager) generate(ctx context.Context, agentID, message string, contextNodeIDs []string, opts ResponseOptions) (Response, error) {
	a, ok := m.state.Agent(agentID)
	if !ok || a.Status != swarm.AgentActive {
		return Response{}, fmt.Errorf("%w: %s", ErrAgentNotActive, agentID)
	}
	sessionID, userID, ok := m.state.SessionID()
	if !ok {
		return Response{}, ErrNoActiveSession
	}
	if m.model == nil {
		return Response{}, errors.New("no language model configured")
	}

	promptNode := m.createNode(ctx, sessionID, userID, core.NodeAgentPrompt, message, map[string]any{
		"agentId":        agentID,
		"timestamp":      m.now().Format(time.RFC3339),
		"contextNodeIds": append([]string{}, contextNodeIDs...),
	})
	if promptNode != nil {
		for _, id := range contextNodeIDs {
			if m.state.IsTracked(id) {
				m.connect(ctx, sessionID, id, promptNode.ID, core.EdgeContext, core.ContextStrength, "Providing context")
			}
		}
	}

	messages := []core.Message{{Role: core.RoleSystem, Content: a.Prompt}}
	messages = append(messages, m.history(ctx, userID)...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: message})

	copts := core.CompletionOptions{
		Model:      opts.Model,
		ToolChoice: opts.ToolChoice,
		UserID:     userID,
	}
	if opts.UseTools && m.tools != nil {
		copts.Tools = m.tools.Definitions()
	}

	completion := m.model.CreateChatCompletion(ctx, messages, copts)
	if !completion.Success {
		m.logger.Warn("agent.response.model", "agent", agentID, "error", completion.Error)
	}

	promptNodeID := ""
	if promptNode != nil {
		promptNodeID = promptNode.ID
	}
	responseNode := m.createNode(ctx, sessionID, userID, core.NodeAgentResponse, completion.Content, map[string]any{
		"agentId":      agentID,
		"timestamp":    m.now().Format(time.RFC3339),
		"promptNodeId": promptNodeID,
		"success":      completion.Success,
	})
	responseNodeID := ""
	if responseNode != nil {
		responseNodeID = responseNode.ID
		if promptNode != nil {
			m.connect(ctx, sessionID, promptNode.ID, responseNode.ID, core.EdgeResponse, core.ResponseStrength, "Agent response")
		}
	}

	m.state.AppendHistory(sessionID, agentID, swarm.HistoryEntry{
		Timestamp:      m.now(),
		PromptNodeID:   promptNodeID,
		ResponseNodeID: responseNodeID,
		Success:        completion.Success,
	})

	if completion.Content != "" {
		if added := m.state.AddTopics(sessionID, m.topics.Extract(completion.Content)...); len(added) > 0 {
			m.logger.Debug("session.topics", "session", sessionID, "added", added)
		}
	}

	m.remember(ctx, userID, agentID, message, completion.Content)

	m.logger.Info("agent.response", "agent", agentID, "session", sessionID, "node", responseNodeID, "success", completion.Success)
	m.state.EmitCurrent(swarm.Event{
		Name:      swarm.EventAgentResponse,
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		NodeID:    responseNodeID,
		Content:   completion.Content,
		Error:     completion.Error,
		Timestamp: m.now(),
	})

	return Response{
		Content: completion.Content,
		NodeID:  responseNodeID,
		Success: completion.Success,
		Agent:   agentID,
		Error:   completion.Error,
	}, nil
}

// RecommendAgent returns the preferred agent for a topic domain, "main" when
// the domain is unmapped.
func (m *Manager) RecommendAgent(topicName string) string {
	return m.topics.Recommend(topicName)
}

// ExtractTopics returns the topic domains matched by text.
func (m *Manager) ExtractTopics(text string) []string {
	return m.topics.Extract(text)
}

func (m *Manager) history(ctx context.Context, userID string) []core.Message {
	if m.memory == nil {
		return nil
	}
	turns, err := m.memory.GetMemory(ctx, userID, m.memoryLimit)
	if err != nil {
		m.logger.Warn("agent.memory.get", "user", userID, "error", err)
		return nil
	}
	if len(turns) > m.memoryLimit {
		turns = turns[len(turns)-m.memoryLimit:]
	}
	out := make([]core.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, core.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

func (m *Manager) remember(ctx context.Context, userID, agentID, message, answer string) {
	if m.memory == nil {
		return
	}
	now := m.now()
	for _, t := range []core.Turn{
		{Role: core.RoleUser, Content: message, Agent: agentID, Timestamp: now},
		{Role: core.RoleAssistant, Content: answer, Agent: agentID, Timestamp: now},
	} {
		if err := m.memory.AddMemory(ctx, userID, t); err != nil {
			m.logger.Warn("agent.memory.add", "user", userID, "role", t.Role, "error", err)
		}
	}
}

// createNode persists a node and mirrors it into the graph. Storage failures
// are logged and yield nil.
func (m *Manager) createNode(ctx context.Context, sessionID, userID string, typ core.NodeType, content string, metadata map[string]any) *core.Node {
	if m.storage == nil {
		m.logger.Warn("agent.node.skip", "type", typ, "reason", "no storage")
		return nil
	}
	n, err := m.storage.CreateNode(ctx, sessionID, userID, typ, content, metadata)
	if err != nil {
		m.logger.Warn("agent.node.error", "type", typ, "error", err)
		return nil
	}
	m.state.TrackNode(*n)
	return n
}

// connect persists an edge and mirrors it into the graph once stored.
func (m *Manager) connect(ctx context.Context, sessionID, source, target string, typ core.EdgeType, strength float64, reason string) {
	if _, err := m.storage.ConnectNodes(ctx, source, target, typ, strength, map[string]any{"reason": reason}); err != nil {
		m.logger.Warn("agent.connect.error", "source", source, "target", target, "type", typ, "error", err)
		return
	}
	m.state.TrackConnection(sessionID, source, target, typ, strength)
}
