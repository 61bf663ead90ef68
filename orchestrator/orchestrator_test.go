package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/eduswarm/agent"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/internal/testutil"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/memory"
	"github.com/hupe1980/eduswarm/storage/inmemory"
	"github.com/hupe1980/eduswarm/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	orch  *Orchestrator
	store *inmemory.Store
	model *testutil.ScriptedModel
	rec   *testutil.Recorder
}

func newHarness(t *testing.T, optFns ...func(o *Options)) *harness {
	t.Helper()
	h := &harness{store: inmemory.New(), model: testutil.NewScriptedModel()}
	h.orch = New(append([]func(o *Options){func(o *Options) {
		o.Storage = h.store
		o.Memory = memory.NewService()
		o.Model = h.model
	}}, optFns...)...)
	h.rec = testutil.NewRecorder(h.orch.Bus())
	return h
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitIdle(ctx))
}

func TestInitialize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.orch.Initialize(ctx, "u1"))
	require.NoError(t, h.orch.Initialize(ctx, "u1"))
	assert.True(t, h.orch.Initialized())

	agents := h.orch.Agents()
	require.Len(t, agents, 4)
	for _, a := range agents {
		assert.Equal(t, swarm.AgentReady, a.Status)
	}
	assert.Equal(t, 3, h.orch.MaxParallelProcesses())
}

func TestInitialize_MissingCollaborator(t *testing.T) {
	o := New(func(o *Options) {
		o.Storage = inmemory.New()
		o.Model = testutil.NewScriptedModel()
	})
	err := o.Initialize(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	assert.ErrorContains(t, err, "memory")
	assert.False(t, o.Initialized())

	_, err = o.ProcessUserMessage(context.Background(), "hi", MessageOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPhotosynthesisScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.model.Reply("Photosynthesis lets plants turn sunlight into food. That is biology!")

	require.NoError(t, h.orch.Initialize(ctx, "u1"))
	sess, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	assert.Equal(t, "main", sess.PrimaryAgentID)
	assert.Equal(t, core.SessionActive, sess.Status)
	assert.Equal(t, []string{"main"}, sess.Agents)

	main, ok := findAgent(h.orch.Agents(), "main")
	require.True(t, ok)
	assert.Equal(t, swarm.AgentActive, main.Status)

	userNodeID, err := h.orch.ProcessUserMessage(ctx, "Tell me about photosynthesis", MessageOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, userNodeID)
	waitIdle(t, h.orch)

	responses := h.rec.Events(swarm.EventAgentResponse)
	require.Len(t, responses, 1)
	responseNodeID := responses[0].NodeID

	g := h.orch.Graph()
	var promptID string
	for _, c := range g.Connections {
		if c.SourceID == userNodeID {
			assert.Equal(t, core.EdgeContext, c.Type)
			promptID = c.TargetID
		}
	}
	require.NotEmpty(t, promptID)
	chain := 0
	for _, c := range g.Connections {
		if c.SourceID == promptID && c.TargetID == responseNodeID {
			assert.Equal(t, core.EdgeResponse, c.Type)
			chain++
		}
	}
	assert.Equal(t, 1, chain)

	ended, err := h.orch.EndSession(ctx, "covered photosynthesis")
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, ended.Status)
	assert.Contains(t, ended.TopicsCovered, "science")
	assert.Equal(t, "covered photosynthesis", ended.Summary)

	recent, err := h.orch.RecentSessions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, core.SessionCompleted, recent[0].Status)
	assert.Equal(t, []string{"science"}, recent[0].TopicsCovered)

	assert.Equal(t, []string{
		swarm.EventAgentActivate,
		swarm.EventSessionStart,
		swarm.EventAgentResponse,
		swarm.EventSessionEnd,
	}, h.rec.Names())
}

func TestStartSession_Rejects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.orch.StartSession(ctx, "u1", "ghost")
	assert.ErrorIs(t, err, agent.ErrUnknownAgent)

	_, err = h.orch.StartSession(ctx, "u1", "")
	require.NoError(t, err)

	_, err = h.orch.StartSession(ctx, "u1", "science")
	assert.ErrorIs(t, err, ErrSessionActive)

	snap, ok := h.orch.Session()
	require.True(t, ok)
	assert.Equal(t, "main", snap.PrimaryAgentID)
}

func TestStartSession_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFailingStorage(inmemory.New()).FailOn(testutil.OpCreateSession)
	o := New(func(o *Options) {
		o.Storage = store
		o.Memory = memory.NewService()
		o.Model = testutil.NewScriptedModel()
	})

	_, err := o.StartSession(ctx, "u1", "main")
	assert.ErrorIs(t, err, testutil.ErrInjected)
	_, ok := o.Session()
	assert.False(t, ok)

	_, err = o.ProcessUserMessage(ctx, "hi", MessageOptions{})
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEndSession_NoSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.EndSession(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestEndSession_ClearsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	require.NoError(t, h.orch.ActivateAgent(ctx, "science", "", ""))
	_, err = h.orch.ProcessUserMessage(ctx, "hello", MessageOptions{})
	require.NoError(t, err)
	waitIdle(t, h.orch)

	main, _ := findAgent(h.orch.Agents(), "main")
	require.Len(t, main.History, 1)

	_, err = h.orch.EndSession(ctx, "")
	require.NoError(t, err)

	g := h.orch.Graph()
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Connections)
	assert.Equal(t, 0, h.orch.Pending())
	for _, a := range h.orch.Agents() {
		assert.Equal(t, swarm.AgentReady, a.Status)
		assert.Empty(t, a.History)
	}

	sess, err := h.orch.StartSession(ctx, "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, []string{"science"}, sess.Agents)
	sci, _ := findAgent(h.orch.Agents(), "science")
	assert.Empty(t, sci.History)
	main, _ = findAgent(h.orch.Agents(), "main")
	assert.Equal(t, swarm.AgentReady, main.Status)
}

func TestProcessUserMessage_FIFO(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.model.
		ReplyAfter(60*time.Millisecond, "first").
		ReplyAfter(10*time.Millisecond, "second").
		Reply("third")

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := h.orch.ProcessUserMessage(ctx, msg, MessageOptions{})
		require.NoError(t, err)
	}
	waitIdle(t, h.orch)

	responses := h.rec.Events(swarm.EventAgentResponse)
	require.Len(t, responses, 3)
	assert.Equal(t, "first", responses[0].Content)
	assert.Equal(t, "second", responses[1].Content)
	assert.Equal(t, "third", responses[2].Content)

	calls := h.model.Calls()
	require.Len(t, calls, 3)
	for i, msg := range []string{"one", "two", "three"} {
		last := calls[i].Messages[len(calls[i].Messages)-1]
		assert.Equal(t, msg, last.Content)
	}
}

func TestProcessUserMessage_ReturnsBeforeResponse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.model.ReplyAfter(100*time.Millisecond, "slow")

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)

	nodeID, err := h.orch.ProcessUserMessage(ctx, "hi", MessageOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, nodeID)
	assert.Empty(t, h.rec.Events(swarm.EventAgentResponse))

	waitIdle(t, h.orch)
	assert.Len(t, h.rec.Events(swarm.EventAgentResponse), 1)
}

func TestProcessUserMessage_CanceledCallerContext(t *testing.T) {
	h := newHarness(t)
	h.model.ReplyAfter(30*time.Millisecond, "still answered")

	_, err := h.orch.StartSession(context.Background(), "u1", "main")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = h.orch.ProcessUserMessage(ctx, "hi", MessageOptions{})
	require.NoError(t, err)
	cancel()

	waitIdle(t, h.orch)
	responses := h.rec.Events(swarm.EventAgentResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "still answered", responses[0].Content)
}

func TestProcessUserMessage_RoutesToRequestedAgent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	require.NoError(t, h.orch.ActivateAgent(ctx, "science", "", ""))

	_, err = h.orch.ProcessUserMessage(ctx, "to science", MessageOptions{AgentID: "science"})
	require.NoError(t, err)
	_, err = h.orch.ProcessUserMessage(ctx, "to inactive", MessageOptions{AgentID: "creativity"})
	require.NoError(t, err)
	waitIdle(t, h.orch)

	responses := h.rec.Events(swarm.EventAgentResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, "science", responses[0].AgentID)
	assert.Equal(t, "main", responses[1].AgentID)
}

func TestProcessUserMessage_TaskError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.model.Fail("upstream timeout")

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	nodeID, err := h.orch.ProcessUserMessage(ctx, "hi", MessageOptions{})
	require.NoError(t, err)
	waitIdle(t, h.orch)

	errs := h.rec.Events(swarm.EventTaskError)
	require.Len(t, errs, 1)
	assert.Equal(t, "upstream timeout", errs[0].Error)
	assert.Equal(t, nodeID, errs[0].NodeID)
	assert.NotEmpty(t, errs[0].TaskID)
}

func TestProcessUserMessage_MemoryDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(o *Options) { o.Memory = &testutil.FailingMemory{} })
	h.model.Reply("fine")

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	_, err = h.orch.ProcessUserMessage(ctx, "hi", MessageOptions{})
	require.NoError(t, err)
	waitIdle(t, h.orch)

	assert.Empty(t, h.rec.Events(swarm.EventTaskError))
	responses := h.rec.Events(swarm.EventAgentResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "fine", responses[0].Content)
}

func TestDeactivateAgent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.ErrorIs(t, h.orch.DeactivateAgent(ctx, "main"), ErrNotInitialized)

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	require.NoError(t, h.orch.DeactivateAgent(ctx, "creativity"))
	require.NoError(t, h.orch.DeactivateAgent(ctx, "main"))

	main, _ := findAgent(h.orch.Agents(), "main")
	assert.Equal(t, swarm.AgentReady, main.Status)
	assert.Len(t, h.rec.Events(swarm.EventAgentDeactivate), 1)
}

func TestEventBus_OnOff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var mu sync.Mutex
	var got []string
	id := h.orch.Subscribe(swarm.EventSessionStart, func(ev swarm.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a")
	})
	h.orch.
		On(swarm.EventSessionStart, func(swarm.Event) { panic("listener failure") }).
		On(swarm.EventSessionStart, func(swarm.Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, "b")
		})

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	h.orch.Off(swarm.EventSessionStart, id)
	_, err = h.orch.EndSession(ctx, "")
	require.NoError(t, err)
	_, err = h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b"}, got)
}

func TestRecommendAgent(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "critical_thinking", h.orch.RecommendAgent("history"))
	assert.Equal(t, "main", h.orch.RecommendAgent("unknown"))
}

func findAgent(agents []swarm.Agent, id string) (swarm.Agent, bool) {
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return swarm.Agent{}, false
}

func TestEndSession_DropsInFlightResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.model.ReplyAfter(50*time.Millisecond, "Photosynthesis is biology in action.")

	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	_, err = h.orch.ProcessUserMessage(ctx, "How do plants eat?", MessageOptions{})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	snap, err := h.orch.EndSession(ctx, "short")
	require.NoError(t, err)
	waitIdle(t, h.orch)

	recs, err := h.store.RecentSessions(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.ElementsMatch(t, snap.TopicsCovered, recs[0].TopicsCovered)
	assert.NotContains(t, snap.TopicsCovered, "science")

	names := h.rec.Names()
	require.Contains(t, names, swarm.EventSessionEnd)
	assert.Equal(t, swarm.EventSessionEnd, names[len(names)-1])
	assert.Empty(t, h.rec.Events(swarm.EventAgentResponse))
}

func TestEndSession_StorageFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFailingStorage(inmemory.New()).FailOn(testutil.OpEndSession)
	model := testutil.NewScriptedModel().Reply("Photosynthesis is biology in action.")
	o := New(func(o *Options) {
		o.Storage = store
		o.Memory = memory.NewService()
		o.Model = model
	})

	sess, err := o.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	_, err = o.EndSession(ctx, "")
	assert.ErrorIs(t, err, testutil.ErrInjected)

	// The session is usable again after the failed close.
	_, err = o.ProcessUserMessage(ctx, "How do plants eat?", MessageOptions{})
	require.NoError(t, err)
	waitIdle(t, o)
	cur, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, sess.ID, cur.ID)
	assert.Contains(t, cur.TopicsCovered, "science")

	store.Heal()
	closed, err := o.EndSession(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, closed.TopicsCovered, "science")
}

func TestProcessUserMessage_LogsSessionScopedTask(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	h := newHarness(t, func(o *Options) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Output: &buf})
	})

	sess, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)
	_, err = h.orch.ProcessUserMessage(ctx, "hello", MessageOptions{})
	require.NoError(t, err)
	waitIdle(t, h.orch)

	var task map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		if line["msg"] == "task.completed" {
			task = line
		}
	}
	require.NotNil(t, task)
	assert.Equal(t, sess.ID, task["session_id"])
	assert.Equal(t, "u1", task["user_id"])
	assert.Equal(t, "main", task["agent"])
}

func TestActivateAgent_ConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.orch.StartSession(ctx, "u1", "main")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.orch.ActivateAgent(ctx, "science", "", ""))
		}()
	}
	wg.Wait()

	activations := 0
	for _, n := range h.orch.Graph().Nodes {
		if n.Type == core.NodeAgentActivation {
			activations++
		}
	}
	// One for the primary agent, one for science.
	assert.Equal(t, 2, activations)
	assert.Len(t, h.rec.Events(swarm.EventAgentActivate), 2)
}
