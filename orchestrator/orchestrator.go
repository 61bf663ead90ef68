package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/agent"
	"github.com/hupe1980/eduswarm/catalog"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/graph"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/swarm"
)

var (
	// ErrNotInitialized is returned by operations that need Initialize.
	ErrNotInitialized = errors.New("orchestrator not initialized")
	// ErrNoActiveSession is returned when an operation needs an active session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionActive is returned by StartSession while a session is active.
	ErrSessionActive = errors.New("a session is already active")
	// ErrMissingCollaborator is returned by Initialize when a required
	// collaborator is not configured.
	ErrMissingCollaborator = errors.New("missing collaborator")
	// ErrUnsupported is returned when the storage cannot answer a query.
	ErrUnsupported = errors.New("operation not supported by storage")
)

// Options configures an Orchestrator.
type Options struct {
	// Storage persists sessions, nodes and connections. Required.
	Storage core.Storage
	// Memory stores conversational turns. Required.
	Memory core.Memory
	// Model generates responses. Required.
	Model core.LanguageModel
	// Catalog supplies agent prompts and topic tables. Defaults to
	// catalog.Default().
	Catalog *catalog.Catalog
	// Tools is attached to model calls made with UseTools.
	Tools agent.ToolSource
	// DefaultAgent is the primary agent when StartSession gets none.
	DefaultAgent string
	// MemoryLimit bounds the turns fed to the model per response.
	MemoryLimit int
	// MaxParallelProcesses is reserved for a bounded-concurrency drain
	// across independent sessions. Tasks of one session never run
	// concurrently.
	MaxParallelProcesses int
	// DisableDefaultListeners skips the logging listeners registered by
	// Initialize.
	DisableDefaultListeners bool
	// Logger receives structured logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// MessageOptions tune the processing of one user message.
type MessageOptions struct {
	// AgentID routes the task to an active agent other than the primary.
	AgentID string
	agent.ResponseOptions
}

// Task is a queued unit of work.
type Task struct {
	ID         string
	Type       string
	SessionID  string
	Message    string
	NodeID     string
	Options    MessageOptions
	EnqueuedAt time.Time
}

// TaskUserMessage is the only task type.
const TaskUserMessage = "user_message"

// Orchestrator coordinates agents for one learner session at a time.
//
// It exclusively owns the session, the agent registry, the thought-graph
// mirror (all inside swarm.State) and the task queue. All methods are safe
// for concurrent use; session transitions are serialized.
type Orchestrator struct {
	opts   Options
	logger logging.Logger
	bus    *swarm.Bus
	state  *swarm.State

	lifecycle sync.Mutex // serializes Initialize, StartSession, EndSession

	mu          sync.Mutex // guards the fields below
	initialized bool
	userID      string
	manager     *agent.Manager
	queue       []Task
	draining    bool
	idle        chan struct{}
}

// New creates an uninitialized orchestrator.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		DefaultAgent:         "main",
		MemoryLimit:          agent.DefaultMemoryLimit,
		MaxParallelProcesses: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	logger := core.EnsureLogger(opts.Logger)
	bus := swarm.NewBus(logger)
	return &Orchestrator{
		opts:   opts,
		logger: logger,
		bus:    bus,
		state:  swarm.NewState(bus),
	}
}

// Initialize wires the collaborators, loads the agent registry from the
// catalog (every agent ready) and registers the default logging listeners.
// It is idempotent. A missing collaborator fails with ErrMissingCollaborator.
func (o *Orchestrator) Initialize(ctx context.Context, userID string) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.initialize(ctx, userID)
}

func (o *Orchestrator) initialize(_ context.Context, userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	for name, missing := range map[string]bool{
		"storage": o.opts.Storage == nil,
		"memory":  o.opts.Memory == nil,
		"model":   o.opts.Model == nil,
	} {
		if missing {
			o.logger.Error("orchestrator.init.error", "collaborator", name)
			return fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
		}
	}

	o.state.LoadCatalog(o.opts.Catalog.Prompts())
	o.manager = agent.NewManager(o.state, func(ao *agent.Options) {
		ao.Storage = o.opts.Storage
		ao.Memory = o.opts.Memory
		ao.Model = o.opts.Model
		ao.Tools = o.opts.Tools
		ao.Topics = o.opts.Catalog.Extractor()
		ao.MemoryLimit = o.opts.MemoryLimit
		ao.Logger = o.logger
	})
	if !o.opts.DisableDefaultListeners {
		o.registerDefaultListeners()
	}

	o.userID = userID
	o.initialized = true
	o.logger.Info("orchestrator.init", "user", userID, "agents", len(o.opts.Catalog.Agents))
	return nil
}

// Initialized reports whether Initialize has run.
func (o *Orchestrator) Initialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

func (o *Orchestrator) registerDefaultListeners() {
	o.bus.Subscribe(swarm.EventSessionStart, func(ev swarm.Event) {
		o.logger.Info("session.start", "session", ev.SessionID, "user", ev.UserID, "agent", ev.PrimaryAgentID)
	})
	o.bus.Subscribe(swarm.EventSessionEnd, func(ev swarm.Event) {
		o.logger.Info("session.end", "session", ev.SessionID, "topics", ev.Topics)
	})
	o.bus.Subscribe(swarm.EventAgentActivate, func(ev swarm.Event) {
		o.logger.Debug("agent.activated", "agent", ev.AgentID, "session", ev.SessionID)
	})
	o.bus.Subscribe(swarm.EventAgentDeactivate, func(ev swarm.Event) {
		o.logger.Debug("agent.deactivated", "agent", ev.AgentID, "session", ev.SessionID)
	})
	o.bus.Subscribe(swarm.EventTaskError, func(ev swarm.Event) {
		o.logger.Error("task.error", "task", ev.TaskID, "agent", ev.AgentID, "error", ev.Error)
	})
}

// StartSession persists a new session for userID, records its
// session_start node and activates the primary agent (DefaultAgent when
// empty). It initializes the orchestrator if needed and fails with
// ErrSessionActive while another session is active. When the storage call
// fails no session becomes active.
func (o *Orchestrator) StartSession(ctx context.Context, userID, primaryAgentID string) (core.SessionSnapshot, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if err := o.initialize(ctx, userID); err != nil {
		return core.SessionSnapshot{}, err
	}
	if userID == "" {
		userID = o.defaultUser()
	}
	if primaryAgentID == "" {
		primaryAgentID = o.opts.DefaultAgent
	}
	if current, ok := o.state.Session(); ok {
		o.logger.Warn("session.start.rejected", "active", current.ID, "user", userID)
		return core.SessionSnapshot{}, ErrSessionActive
	}
	if _, ok := o.state.Prompt(primaryAgentID); !ok {
		o.logger.Warn("session.start.unknown_agent", "agent", primaryAgentID)
		return core.SessionSnapshot{}, fmt.Errorf("%w: %s", agent.ErrUnknownAgent, primaryAgentID)
	}

	rec, err := o.opts.Storage.CreateSession(ctx, userID, primaryAgentID)
	if err != nil {
		o.logger.Error("session.start.error", "user", userID, "error", err)
		return core.SessionSnapshot{}, fmt.Errorf("create session: %w", err)
	}

	log := logging.ForSession(o.logger, rec.ID, userID)
	sess := core.NewSession(rec)
	sess.UserID = userID
	sess.PrimaryAgentID = primaryAgentID
	sess.Agents.Add(primaryAgentID)
	o.state.BeginSession(sess)

	entryID := ""
	entry, err := o.opts.Storage.CreateNode(ctx, rec.ID, userID, core.NodeSessionStart,
		"Learning session initialized", map[string]any{"agentId": primaryAgentID})
	if err != nil {
		log.Warn("session.start.node", "error", err)
	} else {
		o.state.TrackNode(*entry)
		entryID = entry.ID
	}

	if err := o.manager.ActivateAgent(ctx, primaryAgentID, core.EdgeDirect, entryID); err != nil {
		log.Warn("session.start.activate", "agent", primaryAgentID, "error", err)
	}

	o.bus.Emit(swarm.Event{
		Name:           swarm.EventSessionStart,
		SessionID:      rec.ID,
		UserID:         userID,
		PrimaryAgentID: primaryAgentID,
		NodeID:         entryID,
		Timestamp:      sess.StartTime,
	})

	snap, _ := o.state.Session()
	return snap, nil
}

// EndSession persists the end time, summary and accumulated topics, then
// clears the agent registry, the graph mirror and the task queue. It is the
// only operation that discards in-memory graph state. It returns the
// completed session.
//
// The session is frozen before the storage call: results of tasks still in
// flight are dropped, so the persisted topics match the returned ones and no
// agent:response follows session:end. A failed storage call unfreezes it.
func (o *Orchestrator) EndSession(ctx context.Context, summary string) (core.SessionSnapshot, error) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	current, ok := o.state.BeginClose()
	if !ok {
		o.logger.Warn("session.end.skip", "reason", "no active session")
		return core.SessionSnapshot{}, ErrNoActiveSession
	}

	rec, err := o.opts.Storage.EndSession(ctx, current.ID, summary, current.TopicsCovered)
	if err != nil {
		o.state.AbortClose(current.ID)
		o.logger.Error("session.end.error", "session", current.ID, "error", err)
		return core.SessionSnapshot{}, fmt.Errorf("end session: %w", err)
	}

	end := time.Now()
	if rec.EndTime != nil {
		end = *rec.EndTime
	}

	o.mu.Lock()
	dropped := len(o.queue)
	o.queue = nil
	o.mu.Unlock()
	if dropped > 0 {
		o.logger.Warn("session.end.dropped_tasks", "session", current.ID, "count", dropped)
	}

	snap, ok := o.state.CloseSession(summary, end)
	if !ok {
		return core.SessionSnapshot{}, ErrNoActiveSession
	}

	o.bus.Emit(swarm.Event{
		Name:      swarm.EventSessionEnd,
		SessionID: snap.ID,
		UserID:    snap.UserID,
		Summary:   summary,
		Topics:    snap.TopicsCovered,
		Timestamp: end,
	})
	return snap, nil
}

// ProcessUserMessage records message as a user_message node, queues it for
// the target agent and returns the node id at once. The answer is delivered
// asynchronously as an agent:response event. A failed node write is logged
// and the message is still queued with an empty node id.
func (o *Orchestrator) ProcessUserMessage(ctx context.Context, message string, opts MessageOptions) (string, error) {
	if !o.Initialized() {
		return "", ErrNotInitialized
	}
	sessionID, userID, ok := o.state.SessionID()
	if !ok {
		o.logger.Warn("message.rejected", "reason", "no active session")
		return "", ErrNoActiveSession
	}

	nodeID := ""
	node, err := o.opts.Storage.CreateNode(ctx, sessionID, userID, core.NodeUserMessage, message,
		map[string]any{"timestamp": time.Now().Format(time.RFC3339)})
	if err != nil {
		o.logger.Warn("message.node.error", "session", sessionID, "error", err)
	} else {
		o.state.TrackNode(*node)
		nodeID = node.ID
	}

	o.enqueue(context.WithoutCancel(ctx), Task{
		ID:         core.NewID(),
		Type:       TaskUserMessage,
		SessionID:  sessionID,
		Message:    message,
		NodeID:     nodeID,
		Options:    opts,
		EnqueuedAt: time.Now(),
	})
	return nodeID, nil
}

// ActivateAgent activates agentID in the active session; see
// agent.Manager.ActivateAgent.
func (o *Orchestrator) ActivateAgent(ctx context.Context, agentID string, connType core.EdgeType, sourceNodeID string) error {
	m, err := o.activeManager()
	if err != nil {
		return err
	}
	return m.ActivateAgent(ctx, agentID, connType, sourceNodeID)
}

// DeactivateAgent deactivates agentID; see agent.Manager.DeactivateAgent.
func (o *Orchestrator) DeactivateAgent(ctx context.Context, agentID string) error {
	m, err := o.activeManager()
	if err != nil {
		return err
	}
	return m.DeactivateAgent(ctx, agentID)
}

// RecommendAgent returns the preferred agent for a topic domain.
func (o *Orchestrator) RecommendAgent(topicName string) string {
	return o.opts.Catalog.Extractor().Recommend(topicName)
}

func (o *Orchestrator) activeManager() (*agent.Manager, error) {
	o.mu.Lock()
	m := o.manager
	o.mu.Unlock()
	if m == nil {
		return nil, ErrNotInitialized
	}
	if _, ok := o.state.Session(); !ok {
		return nil, ErrNoActiveSession
	}
	return m, nil
}

func (o *Orchestrator) defaultUser() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userID
}

// On registers fn for an event name and returns the orchestrator for
// chaining. Use Subscribe to obtain an id for targeted removal.
func (o *Orchestrator) On(name string, fn swarm.Listener) *Orchestrator {
	o.bus.Subscribe(name, fn)
	return o
}

// Subscribe registers fn for an event name and returns its id.
func (o *Orchestrator) Subscribe(name string, fn swarm.Listener) swarm.ListenerID {
	return o.bus.Subscribe(name, fn)
}

// Off removes the listeners identified by ids, or every listener of name
// when no id is given.
func (o *Orchestrator) Off(name string, ids ...swarm.ListenerID) *Orchestrator {
	o.bus.Off(name, ids...)
	return o
}

// Bus returns the event bus.
func (o *Orchestrator) Bus() *swarm.Bus { return o.bus }

// Session returns a snapshot of the active session.
func (o *Orchestrator) Session() (core.SessionSnapshot, bool) { return o.state.Session() }

// Agents returns the agent registry.
func (o *Orchestrator) Agents() []swarm.Agent { return o.state.Agents() }

// Catalog returns the agent catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.opts.Catalog }

// Graph returns a snapshot of the in-memory thought graph.
func (o *Orchestrator) Graph() graph.Snapshot { return o.state.Graph().Snapshot() }

// MaxParallelProcesses returns the configured drain bound.
func (o *Orchestrator) MaxParallelProcesses() int { return o.opts.MaxParallelProcesses }

// RecentSessions returns the most recent sessions of userID from storage.
func (o *Orchestrator) RecentSessions(ctx context.Context, userID string, limit int) ([]core.SessionRecord, error) {
	r, ok := o.opts.Storage.(core.GraphReader)
	if !ok {
		return nil, ErrUnsupported
	}
	if limit <= 0 {
		limit = 5
	}
	return r.RecentSessions(ctx, userID, limit)
}
