package tool_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/tool"
)

type stubTool struct {
	name   string
	prompt string
	result any
	calls  []model.ToolCall
}

func (s *stubTool) Spec() *adapter.ToolDefinition {
	return &adapter.ToolDefinition{
		Name:       s.name,
		Parameters: &jsonschema.Schema{Type: "object"},
	}
}

func (s *stubTool) Execute(ctx context.Context, call model.ToolCall) (any, error) {
	s.calls = append(s.calls, call)
	return s.result, nil
}

func (s *stubTool) Prompt(ctx context.Context) string {
	return s.prompt
}

func TestRegistrySpecs(t *testing.T) {
	r := tool.New(&stubTool{name: "alpha"}, &stubTool{name: "beta"})

	specs := r.Specs()
	gt.A(t, specs).Length(2)
	gt.Equal(t, specs[0].Name, "alpha")
	gt.Equal(t, specs[1].Name, "beta")
}

func TestRegistryExecute(t *testing.T) {
	st := &stubTool{name: "alpha", result: "done"}
	r := tool.New(st)

	out, err := r.Execute(context.Background(), model.ToolCall{
		ID:        "call_1",
		Name:      "alpha",
		Arguments: json.RawMessage(`{}`),
	})
	gt.NoError(t, err)
	gt.Equal(t, out, "done")
	gt.A(t, st.calls).Length(1)
	gt.Equal(t, st.calls[0].ID, "call_1")
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := tool.New(&stubTool{name: "alpha"})

	_, err := r.Execute(context.Background(), model.ToolCall{Name: "missing"})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("unknown tool")
}

func TestRegistryPrompts(t *testing.T) {
	r := tool.New(
		&stubTool{name: "alpha", prompt: "use alpha wisely"},
		&stubTool{name: "beta"},
	)

	prompts := r.Prompts(context.Background())
	gt.Equal(t, prompts, "use alpha wisely")
}
