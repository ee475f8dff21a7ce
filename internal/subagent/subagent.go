// Package subagent tracks the lifecycle of sub-tasks launched through
// the Task tool: foreground (sync) tasks that block the turn until
// their result arrives, and background (async) tasks polled later
// through the TaskOutput tool.
package subagent

import (
	"fmt"
	"sync"
	"time"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

// Status is one lifecycle state of a background sub-task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusOrphaned  Status = "orphaned"
)

// IsTerminal reports whether a status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusOrphaned:
		return true
	}
	return false
}

// Mode distinguishes foreground and background sub-tasks.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// Info describes one tracked sub-task.
type Info struct {
	// ID is the originating Task tool_use id.
	ID          string
	Description string
	Mode        Mode
	Status      Status
	// AgentID is the runtime-issued id parsed from the Task result.
	// Async only; sync tasks never leave the foreground flow.
	AgentID string
	// ToolCalls lists the nested tool activity observed while a sync
	// task held the foreground.
	ToolCalls []protocol.ToolCallInfo
	// OutputToolID links the in-flight TaskOutput poll, cleared after
	// each still-running poll so a later poll is a fresh lookup.
	OutputToolID string
	Result       string
	StartedAt    time.Time
	CompletedAt  time.Time
}

const orphanedResult = "sub-task abandoned: the owning conversation ended before it finished"

// Manager is the sub-task state machine. It implements the stream
// transformer's ToolRouter so Task/TaskOutput results feed orchestration
// instead of surfacing as text.
type Manager struct {
	mu      sync.Mutex
	byTask  map[string]*Info // keyed by Task tool_use id
	byAgent map[string]*Info // keyed by runtime agent id, active only
	sync    *Info            // the sync task currently holding the foreground

	// OnTransition fires once per state change with a copy of the
	// record. Optional.
	OnTransition func(Info)

	logger *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New().WithComponent("subagent")
	}
	return &Manager{
		byTask:  make(map[string]*Info),
		byAgent: make(map[string]*Info),
		logger:  logger,
	}
}

// ObserveToolUse registers Task launches, links TaskOutput polls, and
// attributes other tool calls to a foreground sync task in progress.
// Part of the transformer's ToolRouter contract.
func (m *Manager) ObserveToolUse(id, name string, input map[string]interface{}) {
	switch name {
	case protocol.ToolTask:
		background, _ := input["run_in_background"].(bool)
		description, _ := input["description"].(string)
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, exists := m.byTask[id]; exists {
			return
		}
		info := &Info{
			ID:          id,
			Description: description,
		}
		if background {
			info.Mode = ModeAsync
			info.Status = StatusPending
		} else {
			// Sync tasks have no pending phase: the launch is the work.
			info.Mode = ModeSync
			info.Status = StatusRunning
			info.StartedAt = time.Now().UTC()
			m.sync = info
		}
		m.byTask[id] = info
		m.notify(info)

	case protocol.ToolTaskOutput:
		agentID, _ := input["agent_id"].(string)
		if agentID == "" {
			agentID, _ = input["agentId"].(string)
		}
		if agentID == "" {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if info, ok := m.byAgent[agentID]; ok && !info.Status.IsTerminal() {
			info.OutputToolID = id
		}

	default:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sync != nil && m.sync.Status == StatusRunning {
			m.sync.ToolCalls = append(m.sync.ToolCalls, protocol.ToolCallInfo{
				ID:     id,
				Name:   name,
				Input:  input,
				Status: protocol.StatusRunning,
			})
		}
	}
}

// ObserveToolResult consumes Task and TaskOutput results. It returns
// true when the result belongs to a background sub-task and should not
// be surfaced as a tool_result chunk. Sync task results are recorded
// but still surface: they are the foreground tool's output.
func (m *Manager) ObserveToolResult(id, content string, isError bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.byTask[id]; ok {
		if info.Mode == ModeSync {
			m.handleSyncResult(info, content, isError)
			return false
		}
		m.handleLaunchResult(info, content, isError)
		return true
	}
	if m.sync != nil && m.finishNestedCall(m.sync, id, content, isError) {
		return false
	}
	if info := m.findByOutputTool(id); info != nil {
		m.handlePollResult(info, content, isError)
		return true
	}
	// A TaskOutput result whose tool_use linkage was missed: infer the
	// agent id from the payload itself.
	if agentID := ExtractAgentID(content); agentID != "" {
		if info, ok := m.byAgent[agentID]; ok {
			m.handlePollResult(info, content, isError)
			return true
		}
	}
	return false
}

// handleSyncResult finalizes a foreground sub-task from its Task
// result.
func (m *Manager) handleSyncResult(info *Info, content string, isError bool) {
	if info.Status.IsTerminal() {
		m.rejectTransition(info, StatusCompleted)
		return
	}
	info.CompletedAt = time.Now().UTC()
	if m.sync == info {
		m.sync = nil
	}
	if isError {
		m.transition(info, StatusError, content)
		return
	}
	m.transition(info, StatusCompleted, content)
}

// finishNestedCall settles a nested tool call attributed to a sync
// task. The result is never claimed; it surfaces like any tool result.
func (m *Manager) finishNestedCall(info *Info, id, content string, isError bool) bool {
	for i := range info.ToolCalls {
		call := &info.ToolCalls[i]
		if call.ID != id || protocol.IsTerminalStatus(call.Status) {
			continue
		}
		call.Result = content
		if isError {
			call.Status = protocol.StatusError
		} else {
			call.Status = protocol.StatusCompleted
		}
		return true
	}
	return false
}

// handleLaunchResult advances a pending sub-task after its Task result.
func (m *Manager) handleLaunchResult(info *Info, content string, isError bool) {
	if info.Status.IsTerminal() {
		m.rejectTransition(info, StatusRunning)
		return
	}
	if isError {
		m.transition(info, StatusError, content)
		return
	}
	agentID := ExtractAgentID(content)
	if agentID == "" {
		m.transition(info, StatusError, fmt.Sprintf("launch result carries no agent id: %.200s", content))
		return
	}
	info.AgentID = agentID
	info.StartedAt = time.Now().UTC()
	m.byAgent[agentID] = info
	m.transition(info, StatusRunning, "")
}

// handlePollResult advances a running sub-task after a TaskOutput
// result.
func (m *Manager) handlePollResult(info *Info, content string, isError bool) {
	if info.Status.IsTerminal() {
		m.rejectTransition(info, StatusCompleted)
		return
	}

	if StillRunning(content) {
		// Not ready: stay running, forget the poll linkage so the next
		// poll is treated as a fresh lookup.
		info.OutputToolID = ""
		return
	}

	result := ExtractResult(content, info.AgentID)
	info.CompletedAt = time.Now().UTC()
	delete(m.byAgent, info.AgentID)
	if isError {
		m.transition(info, StatusError, result)
		return
	}
	m.transition(info, StatusCompleted, result)
}

// FinalizeAll orphans every non-terminal sub-task at conversation end
// and clears the active indices.
func (m *Manager) FinalizeAll() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orphaned []Info
	for _, info := range m.byTask {
		if info.Status.IsTerminal() {
			continue
		}
		info.CompletedAt = time.Now().UTC()
		m.transition(info, StatusOrphaned, orphanedResult)
		orphaned = append(orphaned, *info)
	}
	m.byAgent = make(map[string]*Info)
	m.sync = nil
	return orphaned
}

// Active returns the number of sub-tasks not yet in a terminal state.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, info := range m.byTask {
		if !info.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Get returns a copy of the record for a Task tool_use id.
func (m *Manager) Get(taskID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.byTask[taskID]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// All returns copies of every tracked record.
func (m *Manager) All() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.byTask))
	for _, info := range m.byTask {
		out = append(out, *info)
	}
	return out
}

func (m *Manager) findByOutputTool(id string) *Info {
	for _, info := range m.byTask {
		if info.OutputToolID != "" && info.OutputToolID == id {
			return info
		}
	}
	return nil
}

// transition moves a record to a new state. Callers hold the lock and
// have already rejected illegal moves.
func (m *Manager) transition(info *Info, to Status, result string) {
	from := info.Status
	info.Status = to
	if result != "" {
		info.Result = result
	}
	m.logger.SubagentTransition(info.ID, string(from), string(to))
	m.notify(info)
}

// rejectTransition logs a duplicate message against a finalized record.
func (m *Manager) rejectTransition(info *Info, attempted Status) {
	m.logger.Warn("subagent transition rejected", map[string]interface{}{
		"subagent":  info.ID,
		"status":    string(info.Status),
		"attempted": string(attempted),
	})
}

func (m *Manager) notify(info *Info) {
	if m.OnTransition != nil {
		m.OnTransition(*info)
	}
}
