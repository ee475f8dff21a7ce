package recovery

import (
	"errors"
	"strings"
	"testing"

	"github.com/vaultgate/vaultgate/internal/conversation"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

func TestIsRecoverable_Classification(t *testing.T) {
	recoverable := []string{
		"Session expired, please resume",
		"session not found",
		"Invalid Session token",
		"session invalid: aborting",
		"process exited with code 1",
		"the SESSION has Expired upstream",
		"resume failed: connection dropped",
		"resume error: bad handle",
	}
	for _, text := range recoverable {
		if !IsRecoverableText(text) {
			t.Errorf("should be recoverable: %q", text)
		}
	}

	terminal := []string{
		"File not found",
		"rate limit exceeded",
		"network timeout",
		"session", // bare term, no compound partner
		"resume",
		"",
	}
	for _, text := range terminal {
		if IsRecoverableText(text) {
			t.Errorf("should not be recoverable: %q", text)
		}
	}

	if IsRecoverable(nil) {
		t.Error("nil error is not recoverable")
	}
	if !IsRecoverable(errors.New("session expired")) {
		t.Error("error form should classify like its text")
	}
}

func history() []conversation.Turn {
	return []conversation.Turn{
		{Role: conversation.RoleUser, Content: "summarize the notes", ContextFiles: []string{"notes/a.md", "notes/b.md"}},
		{
			Role:           conversation.RoleAssistant,
			Content:        "Here is the summary.",
			ThinkingBlocks: 2,
			ToolCalls: []protocol.ToolCallInfo{
				{Name: protocol.ToolRead, Input: map[string]interface{}{"file_path": "notes/a.md"}, Status: protocol.StatusCompleted, Result: "long file body that must not be replayed"},
				{Name: protocol.ToolBash, Input: map[string]interface{}{"command": "wc -l notes/b.md"}, Status: protocol.StatusError, Result: strings.Repeat("e", 600)},
			},
		},
		{Role: conversation.RoleSystem, Marker: conversation.MarkerInterrupt},
	}
}

func TestRebuildContext_Rendering(t *testing.T) {
	out := RebuildContext(history())

	if !strings.Contains(out, "User: ") || !strings.Contains(out, "Assistant: ") {
		t.Error("role prefixes missing")
	}
	if !strings.Contains(out, "[Context files: notes/a.md, notes/b.md]") {
		t.Error("context file summary missing")
	}
	if !strings.Contains(out, "[Thinking: 2 block(s)") {
		t.Error("thinking summary missing")
	}
	if strings.Contains(out, "long file body") {
		t.Error("successful tool results must not be replayed")
	}
	if !strings.Contains(out, "[Tool Read input=notes/a.md status=completed]") {
		t.Errorf("tool summary line missing:\n%s", out)
	}
	if !strings.Contains(out, "status=error] error: ") {
		t.Error("failed tool calls carry their error")
	}
	// Error results are truncated to 500 chars plus ellipsis.
	if strings.Contains(out, strings.Repeat("e", 501)) {
		t.Error("error result not truncated")
	}
	if !strings.Contains(out, strings.Repeat("e", 500)+"...") {
		t.Error("truncation marker missing")
	}
	if strings.Contains(out, "interrupt") {
		t.Error("marker turns are excluded")
	}
}

func TestBuildRetryPrompt_Idempotent(t *testing.T) {
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "do the thing"},
		{Role: conversation.RoleAssistant, Content: "working"},
	}

	// Last user turn differs: prompt is appended.
	with := BuildRetryPrompt(turns, "do something else")
	if !strings.HasSuffix(with, "do something else") {
		t.Error("new prompt should be appended to the rebuilt context")
	}

	// Last user turn equals the prompt: no duplicate.
	without := BuildRetryPrompt(turns, "do the thing")
	if strings.Count(without, "do the thing") != 1 {
		t.Errorf("prompt duplicated:\n%s", without)
	}
}

func TestRebuildContext_Empty(t *testing.T) {
	out := RebuildContext(nil)
	if out == "" {
		t.Error("even an empty history produces the context preamble")
	}
}
