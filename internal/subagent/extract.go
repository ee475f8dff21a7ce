package subagent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Agent-id extraction is heuristic by necessity: the runtime reports the
// id inside free-form launch text. Keep every shape behind this one
// function so a structured field can replace it later.
var (
	reAgentIDQuoted = regexp.MustCompile(`"agent_id"\s*:\s*"([^"]+)"`)
	reAgentIDCamel  = regexp.MustCompile(`"agentId"\s*:\s*"([^"]+)"`)
	reAgentIDLoose  = regexp.MustCompile(`(?i)agent[_\s]?id\s*[:=]\s*"?([A-Za-z0-9_-]+)"?`)
	reBareHex       = regexp.MustCompile(`\b[0-9a-f]{8}\b`)
)

const hexScanLimit = 4096

// ExtractAgentID pulls the runtime-issued agent id out of a Task launch
// result. Returns "" when no shape matches.
func ExtractAgentID(text string) string {
	for _, re := range []*regexp.Regexp{reAgentIDQuoted, reAgentIDCamel, reAgentIDLoose} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}

	if id := agentIDFromJSON(text); id != "" {
		return id
	}

	// Last resort: a bare 8-hex token. Bounded to the head of the
	// payload to limit false positives on unrelated hex.
	head := text
	if len(head) > hexScanLimit {
		head = head[:hexScanLimit]
	}
	return reBareHex.FindString(head)
}

func agentIDFromJSON(text string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return ""
	}
	for _, key := range []string{"agent_id", "agentId"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if v, ok := data["agent_id"].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := payload["id"].(string); ok && v != "" {
		return v
	}
	return ""
}

// notReadyStatuses are the status values that mean "poll again later".
var notReadyStatuses = map[string]bool{
	"not_ready":   true,
	"running":     true,
	"pending":     true,
	"in_progress": true,
}

// StillRunning inspects a TaskOutput poll result and reports whether the
// sub-task has not finished yet. It tolerates raw JSON and a one-level
// text envelope (array of text blocks, or a single object with a text
// field). Anything unreadable counts as terminal so a sub-task cannot
// get stuck running forever on a malformed poll.
func StillRunning(content string) bool {
	payload := unwrapEnvelope(content)
	if payload == nil {
		return false
	}

	for _, key := range []string{"retrieval_status", "status"} {
		if v, ok := payload[key].(string); ok {
			if notReadyStatuses[strings.ToLower(v)] {
				return true
			}
		}
	}

	if agents, ok := payload["agents"].(map[string]interface{}); ok {
		for _, entry := range agents {
			agent, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			if v, ok := agent["status"].(string); ok && notReadyStatuses[strings.ToLower(v)] {
				return true
			}
		}
	}
	return false
}

// ExtractResult pulls the human-readable payload out of a terminal poll
// result: the matched agent's result field, else the first agent entry,
// else the raw unwrapped text.
func ExtractResult(content, agentID string) string {
	payload := unwrapEnvelope(content)
	if payload == nil {
		return content
	}

	agents, ok := payload["agents"].(map[string]interface{})
	if ok {
		if entry, ok := agents[agentID].(map[string]interface{}); ok {
			if v, ok := entry["result"].(string); ok && v != "" {
				return v
			}
		}
		for _, e := range agents {
			if entry, ok := e.(map[string]interface{}); ok {
				if v, ok := entry["result"].(string); ok && v != "" {
					return v
				}
			}
		}
	}

	if v, ok := payload["result"].(string); ok && v != "" {
		return v
	}
	return content
}

// unwrapEnvelope decodes a poll payload, peeling at most one wrapping
// layer: an array of text blocks, or a single object carrying the real
// JSON inside a text field. Returns nil when no JSON object is found.
func unwrapEnvelope(content string) map[string]interface{} {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		if inner, ok := obj["text"].(string); ok && looksLikeJSON(inner) {
			var unwrapped map[string]interface{}
			if err := json.Unmarshal([]byte(strings.TrimSpace(inner)), &unwrapped); err == nil {
				return unwrapped
			}
		}
		return obj
	}

	var blocks []map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &blocks); err == nil {
		var joined strings.Builder
		for _, block := range blocks {
			if v, ok := block["text"].(string); ok {
				joined.WriteString(v)
			}
		}
		var unwrapped map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(joined.String())), &unwrapped); err == nil {
			return unwrapped
		}
		return nil
	}

	return nil
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{")
}
