package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
)

// Registry holds tools by name and executes model-issued calls against them.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates a registry holding tools.
func NewRegistry(logger logging.Logger, tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool), logger: core.EnsureLogger(logger)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns model-facing declarations in registration order.
func (r *Registry) Definitions() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]core.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, core.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return defs
}

// Execute runs call and returns the JSON-encoded result. Panics inside a tool
// are recovered and reported as EXECUTION_ERROR.
func (r *Registry) Execute(ctx context.Context, call core.ToolCall, userID string) (result string, err error) {
	impl, ok := r.Get(call.Name)
	if !ok {
		return "", NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), CodeNotFound)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if uerr := json.Unmarshal([]byte(call.Arguments), &args); uerr != nil {
			return "", &ToolError{Tool: call.Name, Message: fmt.Sprintf("failed to unmarshal args: %v", uerr), Code: CodeValidation}
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool.call.panic", "tool", call.Name, "recover", fmt.Sprint(rec), "stack", string(debug.Stack()))
			result, err = "", NewToolError(call.Name, "panic recovered", CodeExecution)
		}
	}()

	out, err := impl.Call(NewContext(ctx, call.ID, userID, r.logger), args)
	if err != nil {
		return "", err
	}
	if s, ok := out.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", NewToolError(call.Name, fmt.Sprintf("failed to encode result: %v", err), CodeExecution)
	}
	return string(data), nil
}
