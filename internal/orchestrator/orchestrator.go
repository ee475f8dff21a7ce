// Package orchestrator drives one agent session: it owns the cancel
// token, wires the security and approval hooks into the transport,
// pumps the provider stream through the transformer, and recovers an
// expired provider session exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vaultgate/vaultgate/internal/approval"
	"github.com/vaultgate/vaultgate/internal/conversation"
	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
	"github.com/vaultgate/vaultgate/internal/recovery"
	"github.com/vaultgate/vaultgate/internal/security"
	"github.com/vaultgate/vaultgate/internal/subagent"
	"github.com/vaultgate/vaultgate/internal/transport"
)

// Store persists the conversation after each turn.
type Store interface {
	Save(*conversation.Conversation) error
}

// AgentSession orchestrates queries against one provider session.
type AgentSession struct {
	transport transport.Transport
	gate      *security.Gate
	broker    *approval.Broker
	subagents *subagent.Manager
	history   *conversation.Conversation
	store     Store
	logger    *logging.Logger

	// OnChunk receives every surfaced chunk in order.
	OnChunk func(protocol.Chunk)
	// OnSubagent receives one callback per sub-task transition.
	OnSubagent func(subagent.Info)
	// OnSessionID fires when the provider issues or replaces the
	// session id.
	OnSessionID func(id string)

	mu     sync.Mutex
	cancel context.CancelFunc
	active bool
}

// Options bundles the session collaborators.
type Options struct {
	Transport transport.Transport
	Gate      *security.Gate
	Broker    *approval.Broker
	Subagents *subagent.Manager
	History   *conversation.Conversation
	Store     Store
	Logger    *logging.Logger
}

// New wires an agent session together.
func New(opts Options) *AgentSession {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New().WithComponent("orchestrator")
	}
	history := opts.History
	if history == nil {
		history = conversation.New()
	}
	subagents := opts.Subagents
	if subagents == nil {
		subagents = subagent.NewManager(logger.WithComponent("subagent"))
	}

	s := &AgentSession{
		transport: opts.Transport,
		gate:      opts.Gate,
		broker:    opts.Broker,
		subagents: subagents,
		history:   history,
		store:     opts.Store,
		logger:    logger,
	}
	subagents.OnTransition = func(info subagent.Info) {
		if s.OnSubagent != nil {
			s.OnSubagent(info)
		}
	}
	return s
}

// History exposes the conversation for persistence and inspection.
func (s *AgentSession) History() *conversation.Conversation {
	return s.history
}

// Subagents returns a snapshot of every tracked sub-task.
func (s *AgentSession) Subagents() []subagent.Info {
	return s.subagents.All()
}

// SetGate swaps the security gate for subsequent queries. The in-flight
// query keeps the snapshot it started with.
func (s *AgentSession) SetGate(gate *security.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
}

func (s *AgentSession) currentGate() *security.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// Query runs one foreground turn. At most one query may be in flight;
// chunks flow through OnChunk. All failures are normalized: a terminal
// error becomes a single error chunk and Query itself returns nil
// unless the session is busy.
func (s *AgentSession) Query(ctx context.Context, prompt string) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return fmt.Errorf("a query is already in flight")
	}
	queryCtx, cancel := context.WithCancel(ctx)
	s.active = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.active = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	resumed := s.history.SessionID() != ""
	s.logger.QueryStart(s.history.ID, resumed)
	start := time.Now()

	queryCtx, span := startQuerySpan(queryCtx, s.history.ID, resumed)

	s.history.Append(conversation.Turn{
		Role:    conversation.RoleUser,
		Content: prompt,
	})

	status := "ok"
	err := s.runOnce(queryCtx, prompt)
	if err != nil && queryCtx.Err() == nil && recovery.IsRecoverable(err) {
		// Session-continuity failure: rebuild context and retry once.
		s.logger.RecoveryAttempt(err.Error())
		recordRecovery(span, err)
		s.setSessionID("")
		retryPrompt := recovery.BuildRetryPrompt(s.history.Turns(), prompt)
		err = s.runOnce(queryCtx, retryPrompt)
	}

	switch {
	case queryCtx.Err() != nil:
		// User cancellation is not an error.
		status = "cancelled"
		s.history.Append(conversation.Turn{
			Role:   conversation.RoleSystem,
			Marker: conversation.MarkerInterrupt,
		})
	case err != nil:
		status = "error"
		s.emit(protocol.Chunk{Kind: protocol.ChunkError, Text: err.Error(), IsError: true})
	}

	s.persist()
	endQuerySpan(span, status, err)
	s.logger.QueryEnd(s.history.ID, time.Since(start), status)
	return nil
}

// Cancel aborts the in-flight query. It reports whether a query was
// actually in flight.
func (s *AgentSession) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Reset tears the session down: the provider session id is dropped,
// session-scope approvals are cleared, and every live sub-task is
// orphaned.
func (s *AgentSession) Reset() {
	s.Cancel()
	s.setSessionID("")
	if s.broker != nil {
		s.broker.ResetSession()
	}
	s.subagents.FinalizeAll()
	s.history.Append(conversation.Turn{
		Role:   conversation.RoleSystem,
		Marker: conversation.MarkerReset,
	})
	s.persist()
}

// Close releases the transport and orphans remaining sub-tasks.
func (s *AgentSession) Close() error {
	s.Cancel()
	s.subagents.FinalizeAll()
	s.persist()
	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

// turnAccumulator gathers one assistant turn as chunks arrive. Thinking
// time is the gap between a thinking chunk and the chunk before it, so
// the recorded duration covers reasoning, not the whole turn.
type turnAccumulator struct {
	text           strings.Builder
	order          []string
	thinkingBlocks int
	thinkingTime   time.Duration
	lastChunk      time.Time
	done           bool
}

// runOnce executes one transport query and consumes its stream to
// completion.
func (s *AgentSession) runOnce(ctx context.Context, prompt string) error {
	toolCalls := make(map[string]*protocol.ToolCallInfo)
	turn := &turnAccumulator{}

	transformer := &protocol.Transformer{
		OnSessionID: s.setSessionID,
		Router:      s.subagents,
	}

	stream, err := s.transport.Query(ctx, prompt, transport.QueryOptions{
		SessionID:   s.history.SessionID(),
		PreToolUse:  s.preToolHook(),
		PostToolUse: s.postToolHook(toolCalls),
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	interrupted := false
	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				// Issue the interrupt exactly once, then exit cleanly.
				if !interrupted {
					interrupted = true
					s.interruptTransport()
				}
				break
			}
			s.appendAssistantTurn(turn, toolCalls)
			return err
		}

		for _, chunk := range transformer.Transform(msg) {
			s.track(chunk, toolCalls, turn)
			s.emit(chunk)
		}

		if ctx.Err() != nil && !interrupted {
			interrupted = true
			s.interruptTransport()
			break
		}
	}

	s.appendAssistantTurn(turn, toolCalls)
	return nil
}

// track maintains tool-call status and turn metadata per chunk.
func (s *AgentSession) track(chunk protocol.Chunk, toolCalls map[string]*protocol.ToolCallInfo, turn *turnAccumulator) {
	now := time.Now()
	if chunk.Kind == protocol.ChunkThinking && !turn.lastChunk.IsZero() {
		turn.thinkingTime += now.Sub(turn.lastChunk)
	}
	turn.lastChunk = now

	switch chunk.Kind {
	case protocol.ChunkText:
		turn.text.WriteString(chunk.Text)
	case protocol.ChunkThinking:
		turn.thinkingBlocks++
	case protocol.ChunkToolUse:
		s.logger.ToolCall(chunk.ToolName, chunk.ToolID)
		toolCalls[chunk.ToolID] = &protocol.ToolCallInfo{
			ID:     chunk.ToolID,
			Name:   chunk.ToolName,
			Input:  chunk.ToolInput,
			Status: protocol.StatusRunning,
		}
		turn.order = append(turn.order, chunk.ToolID)
	case protocol.ChunkToolResult:
		if call, ok := toolCalls[chunk.ToolID]; ok && !protocol.IsTerminalStatus(call.Status) {
			call.Result = chunk.Text
			if chunk.IsError {
				call.Status = protocol.StatusError
			} else {
				call.Status = protocol.StatusCompleted
			}
			s.logger.ToolResult(call.Name, call.ID, chunk.IsError)
		}
	case protocol.ChunkBlocked:
		if call, ok := toolCalls[chunk.ToolID]; ok && !protocol.IsTerminalStatus(call.Status) {
			call.Status = protocol.StatusBlocked
			call.Result = chunk.Text
		}
	}
}

// preToolHook chains the security gate and the approval broker. The
// gate always runs first; approval is consulted only for shell and
// write tools that passed it.
func (s *AgentSession) preToolHook() transport.HookFunc {
	var hooks []transport.HookFunc
	if gate := s.currentGate(); gate != nil {
		hooks = append(hooks, gate.PreToolUse)
	}
	if s.broker != nil {
		hooks = append(hooks, s.approvalHook())
	}
	return transport.ChainHooks(hooks...)
}

func (s *AgentSession) approvalHook() transport.HookFunc {
	return func(ctx context.Context, in transport.HookInput) (transport.HookOutput, error) {
		if in.ToolName != protocol.ToolBash && !protocol.IsWriteTool(in.ToolName) {
			return transport.Allow(), nil
		}
		if s.broker.IsPreApproved(in.ToolName, in.ToolInput) {
			return transport.Allow(), nil
		}
		description := approval.PatternFor(in.ToolName, in.ToolInput)
		decision, err := s.broker.RequestApproval(ctx, in.ToolName, in.ToolInput, description)
		if err != nil {
			if ctx.Err() != nil {
				return transport.Deny("query interrupted while awaiting approval"), nil
			}
			return transport.Deny(fmt.Sprintf("approval failed: %v", err)), nil
		}
		if decision == approval.DecisionDeny {
			return transport.Deny("user denied this action"), nil
		}
		return transport.Allow(), nil
	}
}

// postToolHook resolves the tool call by id and forwards write-tool
// results to the gate's bookkeeping.
func (s *AgentSession) postToolHook(toolCalls map[string]*protocol.ToolCallInfo) transport.HookFunc {
	return func(ctx context.Context, in transport.HookInput) (transport.HookOutput, error) {
		gate := s.currentGate()
		if gate == nil {
			return transport.Allow(), nil
		}
		if call, ok := toolCalls[in.ToolUseID]; ok {
			in.ToolName = call.Name
			in.ToolInput = call.Input
		}
		return gate.PostToolUse(ctx, in)
	}
}

func (s *AgentSession) appendAssistantTurn(turn *turnAccumulator, toolCalls map[string]*protocol.ToolCallInfo) {
	if turn.done {
		return
	}
	turn.done = true
	if turn.text.Len() == 0 && len(turn.order) == 0 && turn.thinkingBlocks == 0 {
		return
	}

	calls := make([]protocol.ToolCallInfo, 0, len(turn.order))
	for _, id := range turn.order {
		if call, ok := toolCalls[id]; ok {
			calls = append(calls, *call)
		}
	}
	s.history.Append(conversation.Turn{
		Role:             conversation.RoleAssistant,
		Content:          turn.text.String(),
		ToolCalls:        calls,
		ThinkingBlocks:   turn.thinkingBlocks,
		ThinkingDuration: turn.thinkingTime,
	})
}

func (s *AgentSession) setSessionID(id string) {
	s.history.SetSessionID(id)
	if s.OnSessionID != nil {
		s.OnSessionID(id)
	}
}

func (s *AgentSession) emit(chunk protocol.Chunk) {
	if s.OnChunk != nil {
		s.OnChunk(chunk)
	}
}

func (s *AgentSession) interruptTransport() {
	// The query context is already cancelled; use a short detached
	// context so the interrupt itself can still go out.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transport.Interrupt(ctx); err != nil {
		s.logger.Warn("interrupt failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *AgentSession) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.history); err != nil {
		s.logger.Error("conversation save failed", map[string]interface{}{
			"conversation": s.history.ID,
			"error":        err.Error(),
		})
	}
}
