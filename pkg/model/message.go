package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Role is the speaker of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageID identifies a conversation message. Every message gets a
// fresh ID before being sent to the completion service, regardless of
// what the caller supplied, so tool-call linkage never collides.
type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID("msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ToolCall is a structured request from the model to invoke a named
// function with JSON-encoded arguments.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of the conversation history exchanged with the
// completion service.
type Message struct {
	ID         MessageID
	Role       Role
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that request tools
	ToolCallID string     // set on tool result messages
}

// wireFunction / wireToolCall / wireMessage mirror the OpenAI chat
// completion message format. Arguments travel as a JSON-encoded string.
type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	ID         string         `json:"id,omitempty"`
	Role       Role           `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes the message in OpenAI wire format. Content is null
// when the message only carries tool call instructions.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:         string(m.ID),
		Role:       m.Role,
		ToolCallID: m.ToolCallID,
	}

	if m.Content != "" || len(m.ToolCalls) == 0 {
		content := m.Content
		w.Content = &content
	}

	for _, tc := range m.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireFunction{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a message from OpenAI wire format.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return goerr.Wrap(err, "failed to unmarshal message")
	}

	m.ID = MessageID(w.ID)
	m.Role = w.Role
	m.ToolCallID = w.ToolCallID
	if w.Content != nil {
		m.Content = *w.Content
	}
	m.ToolCalls = nil
	for _, tc := range w.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return nil
}

// WithFreshID returns a copy of the message with a newly minted ID.
func (m Message) WithFreshID() Message {
	m.ID = NewMessageID()
	return m
}
