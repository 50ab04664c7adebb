package generate_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/tool"
	"github.com/m-mizutani/loris/pkg/usecase/generate"
)

// scriptedChat replays canned completion responses and records every
// request it receives.
type scriptedChat struct {
	responses []*model.Message
	requests  []*adapter.CompletionRequest

	streamDeltas  []string
	streamRequest *adapter.CompletionRequest
}

func (s *scriptedChat) Complete(ctx context.Context, req *adapter.CompletionRequest) (*model.Message, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return &model.Message{Role: model.RoleAssistant, Content: "fallback"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedChat) Stream(ctx context.Context, req *adapter.CompletionRequest, fn func(delta string) error) error {
	s.streamRequest = req
	for _, d := range s.streamDeltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

type echoTool struct {
	calls []model.ToolCall
}

func (e *echoTool) Spec() *adapter.ToolDefinition {
	return &adapter.ToolDefinition{
		Name:       "query_chunks",
		Parameters: &jsonschema.Schema{Type: "object"},
	}
}

func (e *echoTool) Execute(ctx context.Context, call model.ToolCall) (any, error) {
	e.calls = append(e.calls, call)
	return map[string]any{"results": []any{}}, nil
}

func (e *echoTool) Prompt(ctx context.Context) string {
	return ""
}

func toolCallResponse(callID string, args string) *model.Message {
	return &model.Message{
		Role: model.RoleAssistant,
		ToolCalls: []model.ToolCall{
			{ID: callID, Name: "query_chunks", Arguments: json.RawMessage(args)},
		},
	}
}

func userMessages(texts ...string) []model.Message {
	msgs := make([]model.Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, model.Message{
			ID:      model.NewMessageID(),
			Role:    model.RoleUser,
			Content: text,
		})
	}
	return msgs
}

func TestNewValidatesInput(t *testing.T) {
	chat := &scriptedChat{}
	registry := tool.New(&echoTool{})

	_, err := generate.New(generate.NewInput{
		Chat: chat, Registry: registry, Model: "openai/gpt-4o", DocumentID: "task-1",
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRequest))

	_, err = generate.New(generate.NewInput{
		Chat: chat, Registry: registry, Model: "openai/gpt-4o",
		Messages: userMessages("hi"),
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRequest))

	_, err = generate.New(generate.NewInput{
		Chat: chat, Registry: registry, DocumentID: "task-1",
		Messages: userMessages("hi"),
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestRunWithoutToolCalls(t *testing.T) {
	chat := &scriptedChat{
		responses:    []*model.Message{{Role: model.RoleAssistant, Content: "direct answer"}},
		streamDeltas: []string{`{"metadata":`, `...}`},
	}

	session, err := generate.New(generate.NewInput{
		Chat:       chat,
		Registry:   tool.New(&echoTool{}),
		Model:      "openai/gpt-4o",
		DocumentID: "task-1",
		Messages:   userMessages("what is this document about?"),
	})
	gt.NoError(t, err)

	var events []model.Event
	gt.NoError(t, session.Run(context.Background(), func(ev model.Event) error {
		events = append(events, ev)
		return nil
	}))

	// Only streamed response fragments, no tool_call events
	gt.A(t, events).Length(2)
	gt.Equal(t, events[0].Type, model.EventTypeResponse)
	gt.Equal(t, events[0].Content, `{"metadata":`)
	gt.Equal(t, events[1].Content, `...}`)

	// The completion saw the system prompt first, then the user turn
	gt.A(t, chat.requests).Length(1)
	first := chat.requests[0].Messages
	gt.Equal(t, first[0].Role, model.RoleSystem)
	gt.S(t, first[0].Content).Contains("task-1")
	gt.Equal(t, first[1].Role, model.RoleUser)

	// The streaming request carries the schema constraint
	gt.V(t, chat.streamRequest).NotNil()
	gt.V(t, chat.streamRequest.Format).NotNil()
	gt.Equal(t, chat.streamRequest.Format.Name, "cited_response")
}

func TestRunExecutesFirstToolCallOnly(t *testing.T) {
	resp := toolCallResponse("call_a", `{"query":"q1"}`)
	resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
		ID: "call_b", Name: "query_chunks", Arguments: json.RawMessage(`{"query":"q2"}`),
	})

	chat := &scriptedChat{
		responses: []*model.Message{
			resp,
			{Role: model.RoleAssistant, Content: "done"},
		},
		streamDeltas: []string{"answer"},
	}
	echo := &echoTool{}

	session, err := generate.New(generate.NewInput{
		Chat:       chat,
		Registry:   tool.New(echo),
		Model:      "openai/gpt-4o",
		DocumentID: "task-1",
		Messages:   userMessages("question"),
	})
	gt.NoError(t, err)

	var events []model.Event
	gt.NoError(t, session.Run(context.Background(), func(ev model.Event) error {
		events = append(events, ev)
		return nil
	}))

	// Only the first of the two requested calls ran
	gt.A(t, echo.calls).Length(1)
	gt.Equal(t, echo.calls[0].ID, "call_a")

	gt.A(t, events).Length(2)
	gt.Equal(t, events[0].Type, model.EventTypeToolCall)
	gt.Equal(t, events[0].ToolName, "query_chunks")
	gt.Equal(t, events[1].Type, model.EventTypeResponse)

	// Tool-call message and tool result are adjacent and linked by ID
	second := chat.requests[1].Messages
	n := len(second)
	toolMsg := second[n-1]
	callMsg := second[n-2]
	gt.Equal(t, callMsg.Role, model.RoleAssistant)
	gt.A(t, callMsg.ToolCalls).Length(1)
	gt.Equal(t, callMsg.ToolCalls[0].ID, "call_a")
	gt.Equal(t, toolMsg.Role, model.RoleTool)
	gt.Equal(t, toolMsg.ToolCallID, "call_a")
	gt.S(t, toolMsg.Content).Contains("results")
}

func TestRunIterationCap(t *testing.T) {
	// Every completion requests another tool call; the loop must cut
	// off at the cap and still stream a final answer.
	var responses []*model.Message
	for i := 0; i < 20; i++ {
		responses = append(responses, toolCallResponse("call_x", `{"query":"again"}`))
	}

	chat := &scriptedChat{
		responses:    responses,
		streamDeltas: []string{"forced answer"},
	}
	echo := &echoTool{}

	session, err := generate.New(generate.NewInput{
		Chat:       chat,
		Registry:   tool.New(echo),
		Model:      "openai/gpt-4o",
		DocumentID: "task-1",
		Messages:   userMessages("question"),
	}, generate.WithMaxIterations(3))
	gt.NoError(t, err)

	var events []model.Event
	gt.NoError(t, session.Run(context.Background(), func(ev model.Event) error {
		events = append(events, ev)
		return nil
	}))

	gt.A(t, chat.requests).Length(3)
	gt.A(t, echo.calls).Length(3)

	// Three tool_call events then the forced response
	gt.A(t, events).Length(4)
	gt.Equal(t, events[0].Type, model.EventTypeToolCall)
	gt.Equal(t, events[2].Type, model.EventTypeToolCall)
	gt.Equal(t, events[3].Type, model.EventTypeResponse)
	gt.Equal(t, events[3].Content, "forced answer")
}

func TestRunRemintsMessageIDs(t *testing.T) {
	chat := &scriptedChat{
		responses: []*model.Message{{Role: model.RoleAssistant, Content: "ok"}},
	}

	supplied := model.Message{
		ID:      model.MessageID("msg_supplied"),
		Role:    model.RoleUser,
		Content: "hello",
	}

	session, err := generate.New(generate.NewInput{
		Chat:       chat,
		Registry:   tool.New(&echoTool{}),
		Model:      "openai/gpt-4o",
		DocumentID: "task-1",
		Messages:   []model.Message{supplied},
	})
	gt.NoError(t, err)

	gt.NoError(t, session.Run(context.Background(), func(ev model.Event) error {
		return nil
	}))

	userMsg := chat.requests[0].Messages[1]
	gt.Equal(t, userMsg.Content, "hello")
	gt.NotEqual(t, userMsg.ID, model.MessageID("msg_supplied"))
}
