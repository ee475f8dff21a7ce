// Package logging provides structured, component-scoped logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stderr,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// ToolCall logs a tool invocation. Inputs are not logged to avoid PII.
func (l *Logger) ToolCall(tool, id string) {
	l.Info("tool_call", map[string]interface{}{
		"tool": tool,
		"id":   id,
	})
}

// ToolResult logs a tool completion.
func (l *Logger) ToolResult(tool, id string, isError bool) {
	fields := map[string]interface{}{
		"tool": tool,
		"id":   id,
	}
	if isError {
		l.Warn("tool_error", fields)
	} else {
		l.Debug("tool_result", fields)
	}
}

// SecurityDeny logs a denied tool call.
func (l *Logger) SecurityDeny(tool, check, reason string) {
	l.Warn("security_deny", map[string]interface{}{
		"tool":     tool,
		"check":    check,
		"reason":   reason,
		"security": true,
	})
}

// ApprovalDecision logs the outcome of an approval request.
func (l *Logger) ApprovalDecision(tool, pattern, decision string) {
	l.Info("approval_decision", map[string]interface{}{
		"tool":     tool,
		"pattern":  pattern,
		"decision": decision,
	})
}

// SubagentTransition logs a sub-agent lifecycle transition.
func (l *Logger) SubagentTransition(id, from, to string) {
	l.Info("subagent_transition", map[string]interface{}{
		"subagent": id,
		"from":     from,
		"to":       to,
	})
}

// QueryStart logs the start of a foreground query.
func (l *Logger) QueryStart(conversationID string, resumed bool) {
	l.Info("query_start", map[string]interface{}{
		"conversation": conversationID,
		"resumed":      resumed,
	})
}

// QueryEnd logs the completion of a foreground query.
func (l *Logger) QueryEnd(conversationID string, duration time.Duration, status string) {
	l.Info("query_end", map[string]interface{}{
		"conversation": conversationID,
		"duration":     duration.String(),
		"status":       status,
	})
}

// RecoveryAttempt logs a session-recovery retry.
func (l *Logger) RecoveryAttempt(reason string) {
	l.Warn("session_recovery", map[string]interface{}{
		"reason": reason,
	})
}
