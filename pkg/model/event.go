package model

import "encoding/json"

// EventType discriminates the newline-delimited JSON objects streamed to
// the /generate caller.
type EventType string

const (
	EventTypeToolCall EventType = "tool_call"
	EventTypeResponse EventType = "response"
)

// Event is one streamed generation event: either a tool invocation
// notice or an incremental fragment of the final answer.
type Event struct {
	Type      EventType       `json:"type"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// NewToolCallEvent builds a tool_call event for the given invocation.
func NewToolCallEvent(name string, args json.RawMessage) Event {
	return Event{
		Type:      EventTypeToolCall,
		ToolName:  name,
		Arguments: args,
	}
}

// NewResponseEvent builds a response event carrying one text fragment.
func NewResponseEvent(content string) Event {
	return Event{
		Type:    EventTypeResponse,
		Content: content,
	}
}
