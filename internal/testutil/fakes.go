package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/swarm"
)

// ErrInjected is returned by the failing fakes.
var ErrInjected = errors.New("injected failure")

// ScriptedModel is a core.LanguageModel replaying scripted completions and
// echoing the user turn once the script is exhausted. It records every call.
type ScriptedModel struct {
	mu     sync.Mutex
	script []core.Completion
	delays []time.Duration
	calls  []ModelCall
}

// ModelCall is one recorded CreateChatCompletion invocation.
type ModelCall struct {
	Messages []core.Message
	Options  core.CompletionOptions
}

// NewScriptedModel creates an empty script.
func NewScriptedModel() *ScriptedModel { return &ScriptedModel{} }

// Reply queues a successful completion (chainable).
func (m *ScriptedModel) Reply(content string) *ScriptedModel {
	return m.push(core.Completion{Content: content, Success: true, Rounds: 1}, 0)
}

// ReplyAfter queues a successful completion delivered after d (chainable).
func (m *ScriptedModel) ReplyAfter(d time.Duration, content string) *ScriptedModel {
	return m.push(core.Completion{Content: content, Success: true, Rounds: 1}, d)
}

// Fail queues a failed completion (chainable).
func (m *ScriptedModel) Fail(reason string) *ScriptedModel {
	return m.push(core.Completion{Content: core.Apology, Success: false, Error: reason, Rounds: 1}, 0)
}

func (m *ScriptedModel) push(c core.Completion, d time.Duration) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, c)
	m.delays = append(m.delays, d)
	return m
}

// Calls returns the recorded invocations.
func (m *ScriptedModel) Calls() []ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModelCall(nil), m.calls...)
}

// CreateChatCompletion implements core.LanguageModel.
func (m *ScriptedModel) CreateChatCompletion(ctx context.Context, messages []core.Message, opts core.CompletionOptions) core.Completion {
	m.mu.Lock()
	m.calls = append(m.calls, ModelCall{Messages: append([]core.Message(nil), messages...), Options: opts})
	var (
		next  *core.Completion
		delay time.Duration
	)
	if len(m.script) > 0 {
		c := m.script[0]
		next, delay = &c, m.delays[0]
		m.script, m.delays = m.script[1:], m.delays[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return core.Completion{Content: core.Apology, Error: ctx.Err().Error()}
		}
	}
	if next != nil {
		return *next
	}
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return core.Completion{Content: "Echo: " + last, Success: true, Rounds: 1}
}

// FailingMemory is a core.Memory whose every call fails.
type FailingMemory struct {
	mu    sync.Mutex
	calls int
}

// Calls returns the number of attempted calls.
func (f *FailingMemory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FailingMemory) hit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return fmt.Errorf("memory: %w", ErrInjected)
}

// AddMemory implements core.Memory.
func (f *FailingMemory) AddMemory(context.Context, string, core.Turn) error { return f.hit() }

// GetMemory implements core.Memory.
func (f *FailingMemory) GetMemory(context.Context, string, int) ([]core.Turn, error) {
	return nil, f.hit()
}

// SearchMemory implements core.Memory.
func (f *FailingMemory) SearchMemory(context.Context, string, string, int) ([]core.Turn, error) {
	return nil, f.hit()
}

// Storage operations that FailingStorage can be told to fail.
const (
	OpCreateSession = "CreateSession"
	OpEndSession    = "EndSession"
	OpCreateNode    = "CreateNode"
	OpConnectNodes  = "ConnectNodes"
)

// FailingStorage wraps a core.Storage and fails the selected operations.
type FailingStorage struct {
	core.Storage

	mu   sync.Mutex
	fail map[string]bool
}

// NewFailingStorage wraps inner.
func NewFailingStorage(inner core.Storage) *FailingStorage {
	return &FailingStorage{Storage: inner, fail: map[string]bool{}}
}

// FailOn makes ops fail until Heal is called (chainable).
func (f *FailingStorage) FailOn(ops ...string) *FailingStorage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.fail[op] = true
	}
	return f
}

// Heal clears every injected failure.
func (f *FailingStorage) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = map[string]bool{}
}

func (f *FailingStorage) failing(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op] {
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

// CreateSession implements core.Storage.
func (f *FailingStorage) CreateSession(ctx context.Context, userID, agentID string) (*core.SessionRecord, error) {
	if err := f.failing(OpCreateSession); err != nil {
		return nil, err
	}
	return f.Storage.CreateSession(ctx, userID, agentID)
}

// EndSession implements core.Storage.
func (f *FailingStorage) EndSession(ctx context.Context, sessionID, summary string, topics []string) (*core.SessionRecord, error) {
	if err := f.failing(OpEndSession); err != nil {
		return nil, err
	}
	return f.Storage.EndSession(ctx, sessionID, summary, topics)
}

// CreateNode implements core.Storage.
func (f *FailingStorage) CreateNode(ctx context.Context, sessionID, userID string, typ core.NodeType, content string, metadata map[string]any) (*core.Node, error) {
	if err := f.failing(OpCreateNode); err != nil {
		return nil, err
	}
	return f.Storage.CreateNode(ctx, sessionID, userID, typ, content, metadata)
}

// ConnectNodes implements core.Storage.
func (f *FailingStorage) ConnectNodes(ctx context.Context, sourceID, targetID string, typ core.EdgeType, strength float64, metadata map[string]any) (*core.Edge, error) {
	if err := f.failing(OpConnectNodes); err != nil {
		return nil, err
	}
	return f.Storage.ConnectNodes(ctx, sourceID, targetID, typ, strength, metadata)
}

// Recorder collects bus events for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []swarm.Event
}

// NewRecorder subscribes a recorder to names on bus; with no names it
// subscribes to every built-in event.
func NewRecorder(bus *swarm.Bus, names ...string) *Recorder {
	if len(names) == 0 {
		names = swarm.EventNames
	}
	r := &Recorder{}
	for _, name := range names {
		bus.Subscribe(name, r.Record)
	}
	return r
}

// Record appends ev.
func (r *Recorder) Record(ev swarm.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns recorded events, optionally filtered by name.
func (r *Recorder) Events(names ...string) []swarm.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		return append([]swarm.Event(nil), r.events...)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []swarm.Event
	for _, ev := range r.events {
		if want[ev.Name] {
			out = append(out, ev)
		}
	}
	return out
}

// Names returns recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}
