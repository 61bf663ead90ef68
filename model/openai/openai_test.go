package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Provider = (*Provider)(nil)

func newServer(t *testing.T, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(url string) *Provider {
	return NewProvider(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = url + "/"
		o.Model = "gpt-4o"
	})
}

func TestProvider_FinalText(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Plants make food from light."}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16}
	}`, &seen)

	turn, err := newTestProvider(srv.URL).Generate(context.Background(), model.Request{
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: "You teach."},
			{Role: core.RoleUser, Content: "What is photosynthesis?"},
		},
		User: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TurnFinal, turn.Kind)
	assert.Equal(t, "Plants make food from light.", turn.Content)
	assert.Equal(t, 16, turn.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", seen["model"])
	assert.Equal(t, "u1", seen["user"])
	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestProvider_ToolCalls(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, `{
		"id": "chatcmpl-2",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {"role": "assistant", "content": null,
			"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "researchTopic", "arguments": "{\"topic\":\"tides\"}"}}]}}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`, &seen)

	turn, err := newTestProvider(srv.URL).Generate(context.Background(), model.Request{
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "Tell me about tides"},
			{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "call_0", Name: "searchEducationalContent", Arguments: `{"query":"tides"}`}}},
			{Role: core.RoleTool, Content: `{"success":true}`, ToolCallID: "call_0"},
		},
		Tools: []core.ToolDefinition{{
			Name:        "researchTopic",
			Description: "Research a topic",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"topic": map[string]any{"type": "string"}}},
		}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TurnToolCalls, turn.Kind)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, core.ToolCall{ID: "call_1", Name: "researchTopic", Arguments: `{"topic":"tides"}`}, turn.ToolCalls[0])

	assert.Equal(t, "auto", seen["tool_choice"])
	tools := seen["tools"].([]any)
	require.Len(t, tools, 1)
	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "tool", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "call_0", msgs[2].(map[string]any)["tool_call_id"])
}

func TestProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Generate(context.Background(), model.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	assert.ErrorContains(t, err, "openai api error")
}
