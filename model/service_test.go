package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Provider     = (*MockProvider)(nil)
	_ ToolExecutor = (*tool.Registry)(nil)
)

func userTurn(text string) []core.Message {
	return []core.Message{{Role: core.RoleSystem, Content: "You teach."}, {Role: core.RoleUser, Content: text}}
}

func TestService_FinalTurn(t *testing.T) {
	p := NewMockProvider("mock-1")
	svc := NewService(p, func(o *Options) { o.Model = "gpt-4o" })

	c := svc.CreateChatCompletion(context.Background(), userTurn("hi"), core.CompletionOptions{UserID: "u1"})
	require.True(t, c.Success)
	assert.Equal(t, "Mock response to: hi", c.Content)
	assert.Equal(t, 1, c.Rounds)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o", reqs[0].Model)
	assert.Equal(t, "u1", reqs[0].User)
}

func TestService_ToolLoop(t *testing.T) {
	sum := tool.NewFunctionTool("sum", "Add", map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
		"required":   []string{"a", "b"},
	}, func(_ *tool.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
	reg := tool.NewRegistry(nil, sum)

	p := NewMockProvider("mock-1").
		AddTurn(ToolCallTurn(core.ToolCall{ID: "c1", Name: "sum", Arguments: `{"a":2,"b":3}`})).
		AddTurn(FinalTurn("The answer is 5"))
	svc := NewService(p, func(o *Options) { o.Tools = reg })

	c := svc.CreateChatCompletion(context.Background(), userTurn("2+3?"), core.CompletionOptions{Tools: reg.Definitions()})
	require.True(t, c.Success)
	assert.Equal(t, "The answer is 5", c.Content)
	assert.Equal(t, 2, c.Rounds)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "auto", reqs[0].ToolChoice)
	second := reqs[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, core.RoleAssistant, second[2].Role)
	assert.Equal(t, "sum", second[2].ToolCalls[0].Name)
	assert.Equal(t, core.Message{Role: core.RoleTool, Content: "5", ToolCallID: "c1", Name: "sum"}, second[3])
}

func TestService_ToolErrorIsFedBack(t *testing.T) {
	reg := tool.NewRegistry(nil)
	p := NewMockProvider("mock-1").
		AddTurn(ToolCallTurn(core.ToolCall{ID: "c1", Name: "missing"})).
		AddTurn(FinalTurn("Sorry, I could not look that up."))
	svc := NewService(p, func(o *Options) { o.Tools = reg })

	c := svc.CreateChatCompletion(context.Background(), userTurn("look it up"), core.CompletionOptions{})
	require.True(t, c.Success)
	toolMsg := p.Requests()[1].Messages[3]
	assert.Contains(t, toolMsg.Content, `"success":false`)
	assert.Contains(t, toolMsg.Content, "NOT_FOUND")
}

func TestService_RoundBudget(t *testing.T) {
	reg := tool.NewRegistry(nil)
	p := NewMockProvider("mock-1")
	for i := 0; i < 5; i++ {
		p.AddTurn(ToolCallTurn(core.ToolCall{ID: "c", Name: "missing"}))
	}
	svc := NewService(p, func(o *Options) { o.Tools = reg; o.MaxRounds = 3 })

	c := svc.CreateChatCompletion(context.Background(), userTurn("loop"), core.CompletionOptions{})
	assert.False(t, c.Success)
	assert.Equal(t, core.Apology, c.Content)
	assert.Contains(t, c.Error, "exceeded max model rounds: 3")
	assert.Equal(t, 3, c.Rounds)
	assert.Len(t, p.Requests(), 3)
}

func TestService_ProviderError(t *testing.T) {
	p := NewMockProvider("mock-1").AddError(errors.New("upstream down"))
	c := NewService(p).CreateChatCompletion(context.Background(), userTurn("hi"), core.CompletionOptions{})
	assert.False(t, c.Success)
	assert.Equal(t, "upstream down", c.Error)
	assert.Equal(t, core.Apology, c.Content)
}

func TestService_ToolRequestWithoutExecutor(t *testing.T) {
	p := NewMockProvider("mock-1").AddTurn(ToolCallTurn(core.ToolCall{ID: "c1", Name: "sum"}))
	c := NewService(p).CreateChatCompletion(context.Background(), userTurn("hi"), core.CompletionOptions{})
	assert.False(t, c.Success)
	assert.Contains(t, c.Error, "none can be executed")
}

func TestRoundLimiter(t *testing.T) {
	l := NewRoundLimiter(2)
	require.NoError(t, l.Increment())
	assert.Equal(t, 1, l.Remaining())
	require.NoError(t, l.Increment())
	assert.Error(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())
	assert.Equal(t, 3, l.Count())
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestService_LogsModelAndToolCalls(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Output: &buf})
	reg := tool.NewRegistry(nil)

	p := NewMockProvider("mock-1")
	for i := 0; i < 3; i++ {
		p.AddTurn(ToolCallTurn(core.ToolCall{ID: "c", Name: "missing"}))
	}
	svc := NewService(p, func(o *Options) { o.Tools = reg; o.MaxRounds = 2; o.Logger = logger })

	c := svc.CreateChatCompletion(context.Background(), userTurn("loop"), core.CompletionOptions{})
	require.False(t, c.Success)

	var tools, failed []map[string]any
	for _, l := range logLines(t, &buf) {
		switch l["msg"] {
		case "tool.call.failed":
			tools = append(tools, l)
		case "model.call.failed":
			failed = append(failed, l)
		}
	}
	require.Len(t, tools, 2)
	assert.Equal(t, "missing", tools[0]["tool"])
	require.Len(t, failed, 1)
	assert.Equal(t, "mock", failed[0]["provider"])
	assert.EqualValues(t, 2, failed[0]["rounds"])
	assert.EqualValues(t, 0, failed[0]["remaining"])

	buf.Reset()
	ok := NewService(NewMockProvider("mock-2"), func(o *Options) { o.MaxRounds = 4; o.Logger = logger }).
		CreateChatCompletion(context.Background(), userTurn("hi"), core.CompletionOptions{})
	require.True(t, ok.Success)
	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "model.call.completed", lines[0]["msg"])
	assert.Equal(t, "mock-2", lines[0]["model"])
	assert.EqualValues(t, 3, lines[0]["remaining"])
}
