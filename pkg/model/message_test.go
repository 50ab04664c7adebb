package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/loris/pkg/model"
)

func TestNewMessageID(t *testing.T) {
	id1 := model.NewMessageID()
	id2 := model.NewMessageID()

	gt.True(t, strings.HasPrefix(string(id1), "msg_"))
	gt.V(t, len(id1)).Equal(len("msg_") + 32)
	gt.False(t, strings.Contains(string(id1), "-"))
	gt.NotEqual(t, id1, id2)
}

func TestMessageMarshalToolCalls(t *testing.T) {
	msg := model.Message{
		ID:   model.NewMessageID(),
		Role: model.RoleAssistant,
		ToolCalls: []model.ToolCall{
			{
				ID:        "call_abc",
				Name:      "query_chunks",
				Arguments: json.RawMessage(`{"query":"refund policy"}`),
			},
		},
	}

	data, err := json.Marshal(msg)
	gt.NoError(t, err)

	var wire map[string]any
	gt.NoError(t, json.Unmarshal(data, &wire))

	// Content must be explicit null when only tool calls are present
	content, ok := wire["content"]
	gt.True(t, ok)
	gt.Nil(t, content)

	calls, ok := wire["tool_calls"].([]any)
	gt.True(t, ok)
	gt.A(t, calls).Length(1)

	call, ok := calls[0].(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, call["id"], "call_abc")
	gt.Equal(t, call["type"], "function")

	fn, ok := call["function"].(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, fn["name"], "query_chunks")
	// Arguments travel as a JSON-encoded string, not a nested object
	gt.Equal(t, fn["arguments"], `{"query":"refund policy"}`)
}

func TestMessageRoundTrip(t *testing.T) {
	original := model.Message{
		ID:   model.NewMessageID(),
		Role: model.RoleAssistant,
		ToolCalls: []model.ToolCall{
			{
				ID:        "call_1",
				Name:      "query_chunks",
				Arguments: json.RawMessage(`{"query":"x","document_id":"t1"}`),
			},
		},
	}

	data, err := json.Marshal(original)
	gt.NoError(t, err)

	var decoded model.Message
	gt.NoError(t, json.Unmarshal(data, &decoded))

	gt.Equal(t, decoded.ID, original.ID)
	gt.Equal(t, decoded.Role, original.Role)
	gt.A(t, decoded.ToolCalls).Length(1)
	gt.Equal(t, decoded.ToolCalls[0].ID, "call_1")
	gt.Equal(t, decoded.ToolCalls[0].Name, "query_chunks")
	gt.Equal(t, string(decoded.ToolCalls[0].Arguments), `{"query":"x","document_id":"t1"}`)
}

func TestMessageMarshalToolResult(t *testing.T) {
	msg := model.Message{
		ID:         model.NewMessageID(),
		Role:       model.RoleTool,
		Content:    `{"results":[]}`,
		ToolCallID: "call_1",
	}

	data, err := json.Marshal(msg)
	gt.NoError(t, err)

	var wire map[string]any
	gt.NoError(t, json.Unmarshal(data, &wire))

	gt.Equal(t, wire["role"], "tool")
	gt.Equal(t, wire["tool_call_id"], "call_1")
	gt.Equal(t, wire["content"], `{"results":[]}`)
}

func TestMessageWithFreshID(t *testing.T) {
	msg := model.Message{
		ID:      model.MessageID("msg_original"),
		Role:    model.RoleUser,
		Content: "hello",
	}

	fresh := msg.WithFreshID()

	gt.NotEqual(t, fresh.ID, msg.ID)
	gt.Equal(t, fresh.Role, msg.Role)
	gt.Equal(t, fresh.Content, msg.Content)
	// Original is untouched
	gt.Equal(t, msg.ID, model.MessageID("msg_original"))
}
