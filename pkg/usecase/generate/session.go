package generate

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/tool"
	"github.com/m-mizutani/loris/pkg/utils/logging"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

// maxToolIterations caps the tool-call cycle per conversation turn. A
// model that keeps requesting tools is cut off and forced to answer
// with whatever context has been gathered.
const maxToolIterations = 8

// Session drives one tool-augmented generation request: a sequential
// tool-call loop followed by a schema-constrained streaming answer.
type Session struct {
	chat     adapter.ChatModel
	registry *tool.Registry

	modelID       string
	documentID    model.DocumentID
	messages      []model.Message
	maxIterations int
}

// NewInput contains parameters for creating a generation session
type NewInput struct {
	Chat       adapter.ChatModel
	Registry   *tool.Registry
	Model      string
	DocumentID model.DocumentID
	Messages   []model.Message
}

type Option func(*Session)

// WithMaxIterations overrides the tool-call iteration cap.
func WithMaxIterations(n int) Option {
	return func(s *Session) {
		s.maxIterations = n
	}
}

// New creates a new generation session. The caller's messages are
// re-minted with fresh IDs so tool-call linkage never collides with
// externally supplied IDs.
func New(input NewInput, opts ...Option) (*Session, error) {
	if len(input.Messages) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "messages are required")
	}
	if input.DocumentID == "" {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "document ID is required")
	}
	if input.Model == "" {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "model is required")
	}

	systemPrompt, err := buildSystemPrompt(input.DocumentID)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(input.Messages)+1)
	messages = append(messages, model.Message{
		ID:      model.NewMessageID(),
		Role:    model.RoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range input.Messages {
		messages = append(messages, msg.WithFreshID())
	}

	s := &Session{
		chat:          input.Chat,
		registry:      input.Registry,
		modelID:       input.Model,
		documentID:    input.DocumentID,
		messages:      messages,
		maxIterations: maxToolIterations,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func buildSystemPrompt(documentID model.DocumentID) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, map[string]any{
		"DocumentID": documentID,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}

// Run executes the conversation loop, emitting one event per executed
// tool call and one per streamed answer fragment. It is strictly
// sequential: each external call completes before the next begins.
func (s *Session) Run(ctx context.Context, emit func(model.Event) error) error {
	for i := 0; ; i++ {
		if i >= s.maxIterations {
			logging.From(ctx).Warn("tool iteration cap reached, forcing final answer",
				"document_id", s.documentID, "iterations", i)
			break
		}

		resp, err := s.chat.Complete(ctx, &adapter.CompletionRequest{
			Model:    s.modelID,
			Messages: s.messages,
			Tools:    s.registry.Specs(),
		})
		if err != nil {
			return goerr.Wrap(err, "failed to generate completion")
		}

		if len(resp.ToolCalls) == 0 {
			s.messages = append(s.messages, model.Message{
				ID:      model.NewMessageID(),
				Role:    model.RoleAssistant,
				Content: resp.Content,
			})
			break
		}

		// Only the first tool call is executed even when the model
		// requests several in one response.
		call := resp.ToolCalls[0]
		if err := s.executeToolCall(ctx, call); err != nil {
			return err
		}
		if err := emit(model.NewToolCallEvent(call.Name, call.Arguments)); err != nil {
			return err
		}
	}

	return s.streamFinalAnswer(ctx, emit)
}

// executeToolCall appends the assistant's tool-call message, runs the
// tool, and appends the matching tool-result message. The pair is always
// adjacent in the history.
func (s *Session) executeToolCall(ctx context.Context, call model.ToolCall) error {
	s.messages = append(s.messages, model.Message{
		ID:        model.NewMessageID(),
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{call},
	})

	result, err := s.registry.Execute(ctx, call)
	if err != nil {
		return goerr.Wrap(err, "failed to execute tool", goerr.V("tool", call.Name))
	}

	content, err := serializeToolResult(result)
	if err != nil {
		return err
	}

	s.messages = append(s.messages, model.Message{
		ID:         model.NewMessageID(),
		Role:       model.RoleTool,
		ToolCallID: call.ID,
		Content:    content,
	})

	return nil
}

func serializeToolResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", goerr.Wrap(err, "failed to serialize tool result")
	}
	return string(data), nil
}

// streamFinalAnswer re-requests the answer under the cited_response
// schema and forwards each fragment to the caller as it arrives.
func (s *Session) streamFinalAnswer(ctx context.Context, emit func(model.Event) error) error {
	err := s.chat.Stream(ctx, &adapter.CompletionRequest{
		Model:    s.modelID,
		Messages: s.messages,
		Format:   citedResponseFormat(),
	}, func(delta string) error {
		return emit(model.NewResponseEvent(delta))
	})
	if err != nil {
		return goerr.Wrap(err, "failed to stream final answer")
	}

	return nil
}
