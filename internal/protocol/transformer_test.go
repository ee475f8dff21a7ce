package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// A single assistant message yields chunks in content-block order.
func TestTransformer_BlockOrder(t *testing.T) {
	tr := &Transformer{}
	msg := &Message{
		Type: MessageAssistant,
		Message: &InnerMessage{
			Role: "assistant",
			Content: []ContentBlock{
				{Type: BlockThinking, Thinking: "a"},
				{Type: BlockText, Text: "b"},
				{Type: BlockToolUse, ID: "t1", Name: ToolBash, Input: map[string]interface{}{"command": "ls"}},
			},
		},
	}

	chunks := tr.Transform(msg)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Kind != ChunkThinking || chunks[0].Text != "a" {
		t.Errorf("chunk 0: expected thinking 'a', got %+v", chunks[0])
	}
	if chunks[1].Kind != ChunkText || chunks[1].Text != "b" {
		t.Errorf("chunk 1: expected text 'b', got %+v", chunks[1])
	}
	if chunks[2].Kind != ChunkToolUse || chunks[2].ToolID != "t1" || chunks[2].ToolName != ToolBash {
		t.Errorf("chunk 2: expected tool_use t1, got %+v", chunks[2])
	}
}

func TestTransformer_SessionIDSideEffect(t *testing.T) {
	var got string
	tr := &Transformer{OnSessionID: func(id string) { got = id }}

	chunks := tr.Transform(&Message{Type: MessageSystem, Subtype: SubtypeInit, SessionID: "sess-1"})
	if len(chunks) != 0 {
		t.Errorf("init message should yield no chunks, got %d", len(chunks))
	}
	if got != "sess-1" {
		t.Errorf("expected session id 'sess-1', got %q", got)
	}
}

func TestTransformer_StreamEvents(t *testing.T) {
	tr := &Transformer{}

	start := &Message{Type: MessageStreamEvent, Event: &StreamEvent{
		Type:         EventBlockStart,
		ContentBlock: &ContentBlock{Type: BlockToolUse, ID: "t2", Name: ToolRead},
	}}
	chunks := tr.Transform(start)
	if len(chunks) != 1 || chunks[0].Kind != ChunkToolUse || chunks[0].ToolID != "t2" {
		t.Fatalf("expected tool_use chunk for block start, got %+v", chunks)
	}

	delta := &Message{Type: MessageStreamEvent, Event: &StreamEvent{
		Type:  EventBlockDelta,
		Delta: &Delta{Type: "text_delta", Text: "par"},
	}}
	chunks = tr.Transform(delta)
	if len(chunks) != 1 || chunks[0].Kind != ChunkText || chunks[0].Text != "par" {
		t.Fatalf("expected text chunk for delta, got %+v", chunks)
	}

	thinking := &Message{Type: MessageStreamEvent, Event: &StreamEvent{
		Type:  EventBlockDelta,
		Delta: &Delta{Type: "thinking_delta", Thinking: "hm"},
	}}
	chunks = tr.Transform(thinking)
	if len(chunks) != 1 || chunks[0].Kind != ChunkThinking || chunks[0].Text != "hm" {
		t.Fatalf("expected thinking chunk for delta, got %+v", chunks)
	}
}

func TestTransformer_UnknownTypesIgnored(t *testing.T) {
	tr := &Transformer{}
	for _, msg := range []*Message{
		nil,
		{Type: "telemetry"},
		{Type: MessageSystem, Subtype: "status"},
		{Type: MessageStreamEvent, Event: &StreamEvent{Type: "content_block_stop"}},
	} {
		if chunks := tr.Transform(msg); len(chunks) != 0 {
			t.Errorf("message %+v should yield no chunks, got %d", msg, len(chunks))
		}
	}
}

func TestTransformer_FallbackToolID(t *testing.T) {
	tr := &Transformer{}
	msg := &Message{
		Type: MessageAssistant,
		Message: &InnerMessage{Content: []ContentBlock{
			{Type: BlockToolUse, Name: ToolGrep},
		}},
	}
	chunks := tr.Transform(msg)
	if len(chunks) != 1 || chunks[0].ToolID == "" {
		t.Fatalf("expected generated tool id, got %+v", chunks)
	}
	if !strings.HasPrefix(chunks[0].ToolID, "toolu_") {
		t.Errorf("generated id should carry toolu_ prefix, got %q", chunks[0].ToolID)
	}
}

func TestTransformer_ErrorAndResult(t *testing.T) {
	tr := &Transformer{}

	chunks := tr.Transform(&Message{Type: MessageError, Error: "boom"})
	if len(chunks) != 1 || chunks[0].Kind != ChunkError || chunks[0].Text != "boom" || !chunks[0].IsError {
		t.Fatalf("expected error chunk, got %+v", chunks)
	}

	chunks = tr.Transform(&Message{Type: MessageResult, Result: "ok"})
	if len(chunks) != 1 || chunks[0].Kind != ChunkDone {
		t.Fatalf("expected done chunk, got %+v", chunks)
	}
}

func TestTransformer_BlockedMessage(t *testing.T) {
	tr := &Transformer{}
	reason, _ := json.Marshal("command blocked")
	msg := &Message{
		Type:    MessageUser,
		Subtype: SubtypeHookBlocked,
		Message: &InnerMessage{Content: []ContentBlock{
			{Type: BlockToolResult, ToolUseID: "t3", IsError: true, Content: reason},
		}},
	}
	chunks := tr.Transform(msg)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 blocked chunk, got %d", len(chunks))
	}
	if chunks[0].Kind != ChunkBlocked || chunks[0].ToolID != "t3" || chunks[0].Text != "command blocked" {
		t.Errorf("unexpected blocked chunk: %+v", chunks[0])
	}
}

// fakeRouter claims tool results for ids it has seen.
type fakeRouter struct {
	uses    []string
	claimed map[string]bool
}

func (r *fakeRouter) ObserveToolUse(id, name string, input map[string]interface{}) {
	r.uses = append(r.uses, id)
}

func (r *fakeRouter) ObserveToolResult(id, content string, isError bool) bool {
	return r.claimed[id]
}

func TestTransformer_RouterClaimsResults(t *testing.T) {
	router := &fakeRouter{claimed: map[string]bool{"task1": true}}
	tr := &Transformer{Router: router}

	use := &Message{Type: MessageAssistant, Message: &InnerMessage{Content: []ContentBlock{
		{Type: BlockToolUse, ID: "task1", Name: ToolTask},
	}}}
	if chunks := tr.Transform(use); len(chunks) != 1 {
		t.Fatalf("tool_use chunks are always surfaced, got %d", len(chunks))
	}
	if len(router.uses) != 1 || router.uses[0] != "task1" {
		t.Fatalf("router should observe tool use, got %v", router.uses)
	}

	payload, _ := json.Marshal(`{"agent_id":"a1"}`)
	result := &Message{Type: MessageUser, Message: &InnerMessage{Content: []ContentBlock{
		{Type: BlockToolResult, ToolUseID: "task1", Content: payload},
		{Type: BlockToolResult, ToolUseID: "other", Content: payload},
	}}}
	chunks := tr.Transform(result)
	if len(chunks) != 1 || chunks[0].ToolID != "other" {
		t.Fatalf("claimed result must be suppressed, unclaimed surfaced; got %+v", chunks)
	}
}

func TestResultText_Shapes(t *testing.T) {
	plain := ContentBlock{Content: json.RawMessage(`"hello"`)}
	if got := plain.ResultText(); got != "hello" {
		t.Errorf("string payload: got %q", got)
	}

	blocks := ContentBlock{Content: json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)}
	if got := blocks.ResultText(); got != "ab" {
		t.Errorf("block array payload: got %q", got)
	}

	var empty ContentBlock
	if got := empty.ResultText(); got != "" {
		t.Errorf("empty payload: got %q", got)
	}
}
