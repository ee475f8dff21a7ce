package protocol

import "github.com/google/uuid"

// ChunkKind discriminates semantic stream chunks.
type ChunkKind string

const (
	ChunkText       ChunkKind = "text"
	ChunkThinking   ChunkKind = "thinking"
	ChunkToolUse    ChunkKind = "tool_use"
	ChunkToolResult ChunkKind = "tool_result"
	ChunkBlocked    ChunkKind = "blocked"
	ChunkError      ChunkKind = "error"
	ChunkDone       ChunkKind = "done"
)

// Chunk is one semantic unit derived from a provider message. Chunks
// derived from a single message preserve its content-block order.
type Chunk struct {
	Kind      ChunkKind
	Text      string
	ToolID    string
	ToolName  string
	ToolInput map[string]interface{}
	IsError   bool
}

// ToolRouter observes tool_use/tool_result pairs so results that belong
// to background orchestration are routed instead of surfaced. A true
// return from ObserveToolResult claims the chunk.
type ToolRouter interface {
	ObserveToolUse(id, name string, input map[string]interface{})
	ObserveToolResult(id, content string, isError bool) bool
}

// Transformer converts raw provider messages into chunks. It is
// stateless per message and never fails: unrecognized message types and
// subtypes are ignored.
type Transformer struct {
	// OnSessionID is invoked when a system/init message carries a
	// provider-issued session id.
	OnSessionID func(id string)

	// Router classifies tool pairs for background sub-task tracking.
	// Optional; when nil all tool results are surfaced.
	Router ToolRouter
}

// Transform produces zero or more chunks for one provider message.
func (t *Transformer) Transform(msg *Message) []Chunk {
	if msg == nil {
		return nil
	}

	switch msg.Type {
	case MessageSystem:
		if msg.Subtype == SubtypeInit && msg.SessionID != "" && t.OnSessionID != nil {
			t.OnSessionID(msg.SessionID)
		}
		return nil

	case MessageAssistant:
		return t.transformBlocks(msg.Message)

	case MessageUser:
		if msg.Subtype == SubtypeHookBlocked {
			return t.transformBlocked(msg)
		}
		return t.transformBlocks(msg.Message)

	case MessageStreamEvent:
		return t.transformEvent(msg.Event)

	case MessageError:
		content := msg.Error
		if content == "" {
			content = msg.Result
		}
		return []Chunk{{Kind: ChunkError, Text: content, IsError: true}}

	case MessageResult:
		return []Chunk{{Kind: ChunkDone, Text: msg.Result}}
	}

	// Unknown message kinds are dropped, not surfaced as errors.
	return nil
}

// transformBlocks walks the ordered content blocks of a batched message.
func (t *Transformer) transformBlocks(inner *InnerMessage) []Chunk {
	if inner == nil {
		return nil
	}

	var chunks []Chunk
	for _, block := range inner.Content {
		switch block.Type {
		case BlockThinking:
			chunks = append(chunks, Chunk{Kind: ChunkThinking, Text: block.Thinking})

		case BlockText:
			chunks = append(chunks, Chunk{Kind: ChunkText, Text: block.Text})

		case BlockToolUse:
			id := block.ID
			if id == "" {
				id = "toolu_" + uuid.NewString()
			}
			if t.Router != nil {
				t.Router.ObserveToolUse(id, block.Name, block.Input)
			}
			chunks = append(chunks, Chunk{
				Kind:      ChunkToolUse,
				ToolID:    id,
				ToolName:  block.Name,
				ToolInput: block.Input,
			})

		case BlockToolResult:
			content := block.ResultText()
			if t.Router != nil && t.Router.ObserveToolResult(block.ToolUseID, content, block.IsError) {
				continue
			}
			chunks = append(chunks, Chunk{
				Kind:    ChunkToolResult,
				ToolID:  block.ToolUseID,
				Text:    content,
				IsError: block.IsError,
			})
		}
	}
	return chunks
}

// transformEvent handles the incremental stream_event form.
func (t *Transformer) transformEvent(ev *StreamEvent) []Chunk {
	if ev == nil {
		return nil
	}

	switch ev.Type {
	case EventBlockStart:
		if ev.ContentBlock == nil {
			return nil
		}
		block := *ev.ContentBlock
		switch block.Type {
		case BlockToolUse:
			id := block.ID
			if id == "" {
				id = "toolu_" + uuid.NewString()
			}
			if t.Router != nil {
				t.Router.ObserveToolUse(id, block.Name, block.Input)
			}
			return []Chunk{{
				Kind:      ChunkToolUse,
				ToolID:    id,
				ToolName:  block.Name,
				ToolInput: block.Input,
			}}
		case BlockThinking:
			return []Chunk{{Kind: ChunkThinking, Text: block.Thinking}}
		case BlockText:
			return []Chunk{{Kind: ChunkText, Text: block.Text}}
		}

	case EventBlockDelta:
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case "thinking_delta":
			return []Chunk{{Kind: ChunkThinking, Text: ev.Delta.Thinking}}
		case "text_delta":
			return []Chunk{{Kind: ChunkText, Text: ev.Delta.Text}}
		}
	}
	return nil
}

// transformBlocked converts a hook-denial marker message into a single
// blocked chunk carrying the denied tool id.
func (t *Transformer) transformBlocked(msg *Message) []Chunk {
	chunk := Chunk{Kind: ChunkBlocked, IsError: true}
	if msg.Message != nil {
		for _, block := range msg.Message.Content {
			if block.Type == BlockToolResult {
				chunk.ToolID = block.ToolUseID
				chunk.Text = block.ResultText()
			}
		}
	}
	if chunk.Text == "" {
		chunk.Text = msg.Result
	}
	return []Chunk{chunk}
}
