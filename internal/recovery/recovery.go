// Package recovery classifies session-continuity failures and rebuilds
// a textual context so an expired provider session can be resumed once.
package recovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vaultgate/vaultgate/internal/conversation"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

// recoverablePatterns is an allow-list: retries are reserved for
// session-continuity failures, never general tool or network errors.
var recoverablePatterns = []string{
	"session expired",
	"session not found",
	"invalid session",
	"session invalid",
	"process exited with code",
}

// compoundRules require co-occurrence of terms.
var compoundRules = [][]string{
	{"session", "expired"},
	{"resume", "failed"},
	{"resume", "error"},
}

// IsRecoverable reports whether an error text indicates a lost provider
// session worth one rebuild-and-retry cycle.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return IsRecoverableText(err.Error())
}

// IsRecoverableText classifies raw error text.
func IsRecoverableText(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range recoverablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, rule := range compoundRules {
		all := true
		for _, term := range rule {
			if !strings.Contains(lower, term) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

const resultTruncateLimit = 500

// RebuildContext renders prior turns into a single text block the
// provider can consume as a fresh prompt. Thinking content is never
// replayed; tool results are replayed only for failed calls.
func RebuildContext(turns []conversation.Turn) string {
	var b strings.Builder
	b.WriteString("Previous conversation context (session was restarted):\n\n")

	for _, turn := range turns {
		if turn.Marker != "" || turn.Role == conversation.RoleSystem {
			continue
		}

		switch turn.Role {
		case conversation.RoleUser:
			b.WriteString("User: ")
		case conversation.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}

		if len(turn.ContextFiles) > 0 {
			b.WriteString(fmt.Sprintf("[Context files: %s] ", strings.Join(turn.ContextFiles, ", ")))
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")

		if turn.Role == conversation.RoleAssistant {
			if turn.ThinkingBlocks > 0 {
				b.WriteString(fmt.Sprintf("[Thinking: %d block(s), %s total]\n",
					turn.ThinkingBlocks, turn.ThinkingDuration))
			}
			for _, call := range turn.ToolCalls {
				b.WriteString(summarizeToolCall(call))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// summarizeToolCall renders one compact line per tool call. Successful
// calls omit their result; they are safely re-executable.
func summarizeToolCall(call protocol.ToolCallInfo) string {
	line := fmt.Sprintf("[Tool %s input=%s status=%s]", call.Name, compactInput(call.Input), call.Status)
	if call.Status == protocol.StatusError || call.Status == protocol.StatusBlocked {
		line += " error: " + truncate(call.Result, resultTruncateLimit)
	}
	return line
}

// BuildRetryPrompt appends the original prompt to the rebuilt context,
// unless the last user turn already carries the identical prompt.
func BuildRetryPrompt(turns []conversation.Turn, prompt string) string {
	context := RebuildContext(turns)
	if lastUserContent(turns) == prompt {
		return context
	}
	return context + prompt
}

func lastUserContent(turns []conversation.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == conversation.RoleUser && turns[i].Marker == "" {
			return turns[i].Content
		}
	}
	return ""
}

func compactInput(input map[string]interface{}) string {
	if len(input) == 0 {
		return "{}"
	}
	if cmd, ok := input["command"].(string); ok {
		return truncate(cmd, 120)
	}
	if path := protocol.PathArgument(input); path != "" {
		return path
	}
	parts := make([]string, 0, len(input))
	for k := range input {
		parts = append(parts, k)
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
