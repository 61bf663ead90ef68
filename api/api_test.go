package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/graph"
	"github.com/hupe1980/eduswarm/internal/testutil"
	"github.com/hupe1980/eduswarm/memory"
	"github.com/hupe1980/eduswarm/orchestrator"
	"github.com/hupe1980/eduswarm/storage/inmemory"
	"github.com/hupe1980/eduswarm/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var _ Pinger = (*inmemory.Store)(nil)

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()
	store := inmemory.New()
	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Storage = store
		o.Memory = memory.NewService()
		o.Model = testutil.NewScriptedModel().Reply("Photosynthesis is biology in action.")
	})
	srv := httptest.NewServer(New(orch, optFns...).Handler())
	t.Cleanup(srv.Close)
	return srv, orch
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func waitIdle(t *testing.T, o *orchestrator.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitIdle(ctx))
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.Health = map[string]Pinger{"storage": pingFunc(func(context.Context) error { return nil })}
	})
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"storage": "ok"}, body["checks"])
}

func TestHealth_Unreachable(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.Health = map[string]Pinger{"memory": pingFunc(func(context.Context) error { return errors.New("down") })}
	})
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, map[string]any{"memory": "unreachable"}, body["checks"])
}

func TestSessionLifecycle(t *testing.T) {
	srv, orch := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{"user_id": "u1", "agent_id": "science"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, "science", body["primary_agent_id"])
	sessionID := body["id"]

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/sessions/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, body["id"])

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/messages", map[string]string{"message": "How do plants grow?"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["node_id"])
	waitIdle(t, orch)

	resp, body = do(t, http.MethodDelete, srv.URL+"/v1/sessions/current", map[string]string{"summary": "plants"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(core.SessionCompleted), body["status"])
	assert.Equal(t, []any{"science"}, body["topics_covered"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/sessions/current", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/sessions/current", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/users/u1/sessions?limit=5", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var sessions []core.SessionRecord
	require.NoError(t, json.NewDecoder(res.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
}

func TestStartSession_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{"user_id": "u1", "agent_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostMessage_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/messages", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAgents(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/agents/creativity/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/agents/ghost/activate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	res, err := http.Get(srv.URL + "/v1/agents")
	require.NoError(t, err)
	defer res.Body.Close()
	var agents []agentView
	require.NoError(t, json.NewDecoder(res.Body).Decode(&agents))
	require.Len(t, agents, 4)

	status := map[string]swarm.AgentStatus{}
	for _, a := range agents {
		status[a.ID] = a.Status
		assert.NotEmpty(t, a.Name)
	}
	assert.Equal(t, swarm.AgentActive, status["main"])
	assert.Equal(t, swarm.AgentActive, status["creativity"])
	assert.Equal(t, swarm.AgentReady, status["science"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/agents/creativity", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	res, err = http.Get(srv.URL + "/v1/graph")
	require.NoError(t, err)
	defer res.Body.Close()
	var snap graph.Snapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&snap))
	types := map[core.NodeType]int{}
	for _, n := range snap.Nodes {
		types[n.Type]++
	}
	assert.Equal(t, 1, types[core.NodeSessionStart])
	assert.Equal(t, 2, types[core.NodeAgentActivation])
	assert.Equal(t, 1, types[core.NodeAgentDeactivation])
}

func TestRecentSessions_BadLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/users/u1/sessions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	srv, orch := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?names=agent:activate,session:start,agent:response"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, err = orch.StartSession(ctx, "u1", "")
	require.NoError(t, err)
	_, err = orch.ProcessUserMessage(ctx, "Tell me about plants", orchestrator.MessageOptions{})
	require.NoError(t, err)

	var names []string
	for len(names) < 3 {
		var ev swarm.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		names = append(names, ev.Name)
		if ev.Name == swarm.EventAgentResponse {
			assert.Equal(t, "Photosynthesis is biology in action.", ev.Content)
		}
	}
	assert.Equal(t, []string{swarm.EventAgentActivate, swarm.EventSessionStart, swarm.EventAgentResponse}, names)
}
