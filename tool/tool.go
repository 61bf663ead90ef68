// Package tool implements the callable tools offered to language models:
// schema validated arguments, consistent error handling, a registry that
// executes model-issued calls, and the educational tool catalog.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/eduswarm/internal/util"
	"github.com/hupe1980/eduswarm/logging"
)

// Error codes carried by ToolError.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeExecution     = "EXECUTION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeNotConfigured = "NOT_CONFIGURED"
)

// Context is handed to a tool invocation. It carries the request context,
// the id of the model-issued call and the user on whose behalf it runs.
type Context struct {
	context.Context
	CallID string
	UserID string
	Logger logging.Logger
}

// NewContext builds a tool context; a nil logger becomes a NoOpLogger.
func NewContext(ctx context.Context, callID, userID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{Context: ctx, CallID: callID, UserID: userID, Logger: logger}
}

// Tool is a capability a model may invoke.
//
// Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for parameters
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
