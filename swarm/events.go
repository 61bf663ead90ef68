package swarm

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
)

// Event names emitted by the orchestrator and agent manager.
const (
	EventSessionStart    = "session:start"
	EventSessionEnd      = "session:end"
	EventAgentActivate   = "agent:activate"
	EventAgentDeactivate = "agent:deactivate"
	EventAgentResponse   = "agent:response"
	EventTaskError       = "task:error"
)

// EventNames lists every built-in event name.
var EventNames = []string{
	EventSessionStart,
	EventSessionEnd,
	EventAgentActivate,
	EventAgentDeactivate,
	EventAgentResponse,
	EventTaskError,
}

// Event is the payload delivered to listeners. Fields irrelevant to an event
// are left empty.
type Event struct {
	Name           string    `json:"name"`
	SessionID      string    `json:"session_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	PrimaryAgentID string    `json:"primary_agent_id,omitempty"`
	NodeID         string    `json:"node_id,omitempty"`
	TaskID         string    `json:"task_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

// ListenerID identifies a registration for targeted removal.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Bus is a named-event fan-out. Listeners run in registration order; a
// panicking listener is recovered and logged and the remaining listeners
// still run.
type Bus struct {
	mu        sync.RWMutex
	next      ListenerID
	listeners map[string][]registration
	logger    logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{listeners: make(map[string][]registration), logger: core.EnsureLogger(logger)}
}

// Subscribe registers fn for name and returns its id.
func (b *Bus) Subscribe(name string, fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.listeners[name] = append(b.listeners[name], registration{id: b.next, fn: fn})
	return b.next
}

// Off removes the listeners with the given ids from name, or every listener
// of name when no id is given.
func (b *Bus) Off(name string, ids ...ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(ids) == 0 {
		delete(b.listeners, name)
		return
	}
	drop := make(map[ListenerID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := b.listeners[name][:0]
	for _, r := range b.listeners[name] {
		if _, ok := drop[r.id]; !ok {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(b.listeners, name)
		return
	}
	b.listeners[name] = kept
}

// Count returns the number of listeners registered for name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Names returns the event names that have listeners.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Emit delivers ev to every listener of ev.Name.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	regs := append([]registration(nil), b.listeners[ev.Name]...)
	b.mu.RUnlock()

	for _, r := range regs {
		b.dispatch(r, ev)
	}
}

func (b *Bus) dispatch(r registration, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event.listener.panic",
				"event", ev.Name,
				"listener", r.id,
				"recover", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	r.fn(ev)
}
