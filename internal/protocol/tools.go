package protocol

// Well-known tool names in the provider runtime.
const (
	ToolBash       = "Bash"
	ToolRead       = "Read"
	ToolGlob       = "Glob"
	ToolGrep       = "Grep"
	ToolWrite      = "Write"
	ToolEdit       = "Edit"
	ToolMultiEdit  = "MultiEdit"
	ToolTask       = "Task"
	ToolTaskOutput = "TaskOutput"
)

// Tool call statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusBlocked   = "blocked"
)

// ToolCallInfo tracks one tool invocation from tool_use to its terminal
// status. Status moves exactly once from running to a terminal value.
type ToolCallInfo struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Status string                 `json:"status"`
	Result string                 `json:"result,omitempty"`
}

// IsTerminalStatus reports whether a tool call status is final.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusError, StatusBlocked:
		return true
	}
	return false
}

// IsReadTool reports whether the tool only reads the filesystem.
func IsReadTool(name string) bool {
	switch name {
	case ToolRead, ToolGlob, ToolGrep:
		return true
	}
	return false
}

// IsWriteTool reports whether the tool writes or edits files.
func IsWriteTool(name string) bool {
	switch name {
	case ToolWrite, ToolEdit, ToolMultiEdit:
		return true
	}
	return false
}

// PathArgument extracts the declared path argument of a file tool.
func PathArgument(input map[string]interface{}) string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// CommandArgument extracts the command text of a shell tool call.
func CommandArgument(input map[string]interface{}) string {
	if v, ok := input["command"].(string); ok {
		return v
	}
	return ""
}
