package tool

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
)

var errToolNotFound = goerr.New("tool not found")

// Registry manages available tools for the LLM
type Registry struct {
	tools    map[string]Tool
	allTools []Tool
}

// New creates a new tool registry with the given tools
func New(tools ...Tool) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool),
		allTools: tools,
	}

	for _, t := range tools {
		if spec := t.Spec(); spec != nil {
			r.tools[spec.Name] = t
		}
	}

	return r
}

// Specs returns all tool specifications for function calling
func (r *Registry) Specs() []adapter.ToolDefinition {
	specs := make([]adapter.ToolDefinition, 0, len(r.allTools))
	for _, t := range r.allTools {
		if spec := t.Spec(); spec != nil {
			specs = append(specs, *spec)
		}
	}
	return specs
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Execute runs the tool named by the given call
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) (any, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return nil, goerr.Wrap(errToolNotFound, "unknown tool", goerr.V("name", call.Name))
	}

	return t.Execute(ctx, call)
}
