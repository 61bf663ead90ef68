// Package model implements the language model collaborator. A Provider
// performs one round trip to a vendor API and answers with a Turn that is
// either final text or a request to call tools. Service drives providers
// through a bounded tool loop and satisfies core.LanguageModel.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/eduswarm/core"
)

// TurnKind tags the Turn variant.
type TurnKind int

const (
	// TurnFinal carries the terminal assistant text.
	TurnFinal TurnKind = iota
	// TurnToolCalls asks the caller to run tools and continue.
	TurnToolCalls
)

func (k TurnKind) String() string {
	if k == TurnToolCalls {
		return "tool_calls"
	}
	return "final"
}

// TokenUsage captures token usage statistics for a turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Turn is the outcome of a single provider round trip.
type Turn struct {
	Kind         TurnKind        `json:"kind"`
	ID           string          `json:"id,omitempty"`
	Content      string          `json:"content,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// FinalTurn builds a terminal turn.
func FinalTurn(content string) Turn {
	return Turn{Kind: TurnFinal, Content: content, FinishReason: "stop"}
}

// ToolCallTurn builds a tool-request turn.
func ToolCallTurn(calls ...core.ToolCall) Turn {
	return Turn{Kind: TurnToolCalls, ToolCalls: calls, FinishReason: "tool_calls"}
}

// Request is the normalized input of one provider round trip.
type Request struct {
	Messages   []core.Message        `json:"messages"`
	Tools      []core.ToolDefinition `json:"tools,omitempty"`
	ToolChoice string                `json:"tool_choice,omitempty"`
	Model      string                `json:"model,omitempty"`
	User       string                `json:"user,omitempty"`
}

// Info contains metadata about a provider.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Provider performs one model round trip.
type Provider interface {
	Generate(ctx context.Context, req Request) (Turn, error)

	// Info returns information about the provider.
	Info() Info
}

// MockProvider replays scripted turns, then falls back to echoing the last
// user message. It records every request and is safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	info     Info
	script   []scripted
	requests []Request
}

type scripted struct {
	turn Turn
	err  error
}

// NewMockProvider constructs a MockProvider with tool support enabled.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// AddTurn queues a turn to return.
func (m *MockProvider) AddTurn(t Turn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{turn: t})
	return m
}

// AddError queues an error to return.
func (m *MockProvider) AddError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// Requests returns the requests seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Provider.
func (m *MockProvider) Generate(ctx context.Context, req Request) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next.turn, next.err
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return FinalTurn(fmt.Sprintf("Mock response to: %s", req.Messages[i].Content)), nil
		}
	}
	return Turn{}, fmt.Errorf("no user message provided")
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
