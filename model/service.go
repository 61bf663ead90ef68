package model

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
)

// ToolExecutor runs a model-issued tool call and returns its encoded result.
type ToolExecutor interface {
	Execute(ctx context.Context, call core.ToolCall, userID string) (string, error)
}

// Options configure Service.
type Options struct {
	// MaxRounds bounds provider round trips per completion, tool rounds
	// included.
	MaxRounds int
	// Tools executes tool calls. Without it a tool request fails the completion.
	Tools ToolExecutor
	// Model overrides the provider default when a call does not name one.
	Model  string
	Logger logging.Logger
}

// Service is the language model collaborator.
type Service struct {
	provider Provider
	opts     Options
}

var _ core.LanguageModel = (*Service)(nil)

// NewService wraps provider.
func NewService(provider Provider, optFns ...func(o *Options)) *Service {
	opts := Options{MaxRounds: 5}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = core.EnsureLogger(opts.Logger)
	return &Service{provider: provider, opts: opts}
}

// Info describes the underlying provider.
func (s *Service) Info() Info { return s.provider.Info() }

// CreateChatCompletion runs the tool loop until the provider answers with a
// final turn or the round budget is spent.
func (s *Service) CreateChatCompletion(ctx context.Context, messages []core.Message, opts core.CompletionOptions) core.Completion {
	start := time.Now()
	limiter := NewRoundLimiter(s.opts.MaxRounds)
	info := s.provider.Info()

	req := Request{
		Messages:   append([]core.Message(nil), messages...),
		Tools:      opts.Tools,
		ToolChoice: opts.ToolChoice,
		Model:      opts.Model,
		User:       opts.UserID,
	}
	if req.Model == "" {
		req.Model = s.opts.Model
	}
	if len(req.Tools) > 0 && req.ToolChoice == "" {
		req.ToolChoice = "auto"
	}

	for {
		if err := limiter.Increment(); err != nil {
			return s.fail(info, err, limiter.Count()-1, limiter.Remaining(), start)
		}

		turn, err := s.provider.Generate(ctx, req)
		if err != nil {
			return s.fail(info, err, limiter.Count(), limiter.Remaining(), start)
		}

		if turn.Kind == TurnFinal {
			logging.LogModelCall(s.opts.Logger, info.Provider, info.Name, limiter.Count(), limiter.Remaining(), time.Since(start), nil)
			return core.Completion{Content: turn.Content, Success: true, Rounds: limiter.Count()}
		}

		if s.opts.Tools == nil || len(turn.ToolCalls) == 0 {
			return s.fail(info, errors.New("model requested tools but none can be executed"), limiter.Count(), limiter.Remaining(), start)
		}

		req.Messages = append(req.Messages, core.Message{
			Role:      core.RoleAssistant,
			Content:   turn.Content,
			ToolCalls: turn.ToolCalls,
		})
		for _, call := range turn.ToolCalls {
			req.Messages = append(req.Messages, s.runTool(ctx, call, opts.UserID))
		}
	}
}

func (s *Service) runTool(ctx context.Context, call core.ToolCall, userID string) core.Message {
	start := time.Now()
	out, err := s.opts.Tools.Execute(ctx, call, userID)
	logging.LogToolCall(s.opts.Logger, call.Name, call.ID, time.Since(start), err)
	if err != nil {
		data, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
		out = string(data)
	}
	return core.Message{Role: core.RoleTool, Content: out, ToolCallID: call.ID, Name: call.Name}
}

func (s *Service) fail(info Info, err error, rounds, remaining int, start time.Time) core.Completion {
	logging.LogModelCall(s.opts.Logger, info.Provider, info.Name, rounds, remaining, time.Since(start), err)
	return core.Completion{Content: core.Apology, Success: false, Error: err.Error(), Rounds: rounds}
}
