package tool

import (
	"context"

	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
)

// Tool represents an external capability that can be called by the LLM
type Tool interface {
	// Spec returns the tool specification for function calling
	Spec() *adapter.ToolDefinition

	// Execute runs the tool with the given call and returns a
	// JSON-serializable result
	Execute(ctx context.Context, call model.ToolCall) (any, error)

	// Prompt returns additional information to be added to the system
	// prompt. Returns empty string if no additional prompt is needed.
	Prompt(ctx context.Context) string
}
