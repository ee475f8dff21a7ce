// Package protocol defines the provider message stream contract and the
// transformer that converts raw messages into semantic stream chunks.
package protocol

import "encoding/json"

// Message kinds emitted by the provider runtime.
const (
	MessageSystem      = "system"
	MessageAssistant   = "assistant"
	MessageUser        = "user"
	MessageStreamEvent = "stream_event"
	MessageResult      = "result"
	MessageError       = "error"
)

// Message subtypes.
const (
	SubtypeInit        = "init"
	SubtypeHookBlocked = "hook_blocked"
)

// Content block kinds.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stream event kinds for incremental delivery.
const (
	EventBlockStart = "content_block_start"
	EventBlockDelta = "content_block_delta"
)

// Message is one discriminated message from the provider stream.
// The JSON shape is the provider's contract; this system only reads it.
type Message struct {
	Type      string        `json:"type"`
	Subtype   string        `json:"subtype,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Message   *InnerMessage `json:"message,omitempty"`
	Event     *StreamEvent  `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
	Result    string        `json:"result,omitempty"`

	// RequestID/Request/Response carry control-channel traffic (hook
	// evaluation, interrupts). Handled by the transport, never by the
	// transformer.
	RequestID string                 `json:"request_id,omitempty"`
	Request   map[string]interface{} `json:"request,omitempty"`
	Response  map[string]interface{} `json:"response,omitempty"`
}

// InnerMessage holds the ordered content blocks of a chat message.
type InnerMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block inside a provider message.
type ContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Thinking  string                 `json:"thinking,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   json.RawMessage        `json:"content,omitempty"`
	IsError   bool                   `json:"is_error,omitempty"`
}

// StreamEvent is the incremental form of a content block.
type StreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
}

// Delta carries an incremental text or thinking fragment.
type Delta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// ResultText flattens a tool_result payload to plain text. The payload
// may be a bare string, or an array of content blocks.
func (b ContentBlock) ResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err == nil {
		var out string
		for _, blk := range blocks {
			if blk.Type == BlockText {
				out += blk.Text
			}
		}
		return out
	}
	return string(b.Content)
}
