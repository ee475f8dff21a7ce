package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

// scanBufferSize accommodates large single-line messages (a tool result
// can carry a whole file).
const scanBufferSize = 10 * 1024 * 1024

// Process runs the agent runtime CLI as a subprocess in stream-json
// mode: user messages go in on stdin, provider messages come out on
// stdout, and a control channel multiplexed on the same pipes carries
// hook evaluation and interrupts.
type Process struct {
	command string
	args    []string
	logger  *logging.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	interrupted bool

	// scanner lives as long as the process: bytes buffered past one
	// turn's result line belong to the next turn and must not be
	// dropped with a per-turn scanner.
	scanner *bufio.Scanner
}

// NewProcess creates a transport for the given runtime command.
func NewProcess(command string, args []string, logger *logging.Logger) *Process {
	if logger == nil {
		logger = logging.New().WithComponent("transport")
	}
	return &Process{command: command, args: args, logger: logger}
}

// streamInput is the stdin message shape for a user prompt.
type streamInput struct {
	Type      string                `json:"type"`
	SessionID string                `json:"session_id,omitempty"`
	Message   protocol.InnerMessage `json:"message"`
}

// controlResponse answers a provider control_request.
type controlResponse struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"request_id"`
	Response  map[string]interface{} `json:"response"`
}

// Query spawns the runtime (or reuses the live process), writes the
// prompt, and returns the message stream for this turn.
func (p *Process) Query(ctx context.Context, prompt string, opts QueryOptions) (MessageStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureStartedLocked(ctx, opts.SessionID); err != nil {
		return nil, err
	}
	p.interrupted = false

	input := streamInput{
		Type:      "user",
		SessionID: opts.SessionID,
		Message: protocol.InnerMessage{
			Role:    "user",
			Content: []protocol.ContentBlock{{Type: protocol.BlockText, Text: prompt}},
		},
	}
	if err := p.writeLocked(input); err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}

	return &processStream{
		proc:     p,
		scanner:  p.scanner,
		preHook:  opts.PreToolUse,
		postHook: opts.PostToolUse,
	}, nil
}

// Interrupt asks the runtime to stop the in-flight turn. Falls back to
// SIGINT when the control channel is unwritable.
func (p *Process) Interrupt(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	p.interrupted = true

	err := p.writeLocked(map[string]interface{}{
		"type":    "control_request",
		"request": map[string]interface{}{"subtype": "interrupt"},
	})
	if err == nil {
		return nil
	}
	p.logger.Warn("control interrupt failed, signalling process", map[string]interface{}{
		"error": err.Error(),
	})
	return p.cmd.Process.Signal(os.Interrupt)
}

// Close terminates the runtime process.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return nil
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	p.cmd = nil
	p.stdin = nil
	p.scanner = nil
	if err != nil && !p.interrupted {
		return fmt.Errorf("runtime exited: %w", err)
	}
	return nil
}

func (p *Process) ensureStartedLocked(ctx context.Context, sessionID string) error {
	if p.cmd != nil {
		return nil
	}

	args := append([]string(nil), p.args...)
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open runtime stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open runtime stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start runtime %q: %w", p.command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.scanner = newStreamScanner(stdout)
	p.logger.Info("runtime started", map[string]interface{}{
		"command": p.command,
		"pid":     cmd.Process.Pid,
	})
	return nil
}

func newStreamScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
	return scanner
}

func (p *Process) writeLocked(v interface{}) error {
	if p.stdin == nil {
		return fmt.Errorf("runtime not started")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// write sends a JSON line to the runtime, taking the lock.
func (p *Process) write(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(v)
}

// processStream reads messages for one turn, intercepting control
// requests so hooks run inline with the stream.
type processStream struct {
	proc     *Process
	scanner  *bufio.Scanner
	preHook  HookFunc
	postHook HookFunc
	done     bool
}

// Next returns the next provider message. Control requests are handled
// internally: the hook verdict goes back on the control channel, and a
// denial additionally synthesizes a hook_blocked user message so the
// transformer surfaces it as a blocked chunk.
func (s *processStream) Next(ctx context.Context) (*protocol.Message, error) {
	for {
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read runtime stream: %w", err)
			}
			return nil, io.EOF
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.proc.logger.Warn("unparseable runtime message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if msg.Type == "control_request" {
			if blocked := s.handleControl(ctx, &msg); blocked != nil {
				return blocked, nil
			}
			continue
		}

		if msg.Type == protocol.MessageResult {
			s.done = true
		}
		if s.postHook != nil && msg.Type == protocol.MessageUser && msg.Subtype == "" {
			s.runPostHook(ctx, &msg)
		}
		return &msg, nil
	}
}

// handleControl evaluates a can_use_tool request. Returns a synthetic
// hook_blocked message on denial, nil otherwise.
func (s *processStream) handleControl(ctx context.Context, msg *protocol.Message) *protocol.Message {
	subtype, _ := msg.Request["subtype"].(string)
	if subtype != "can_use_tool" {
		return nil
	}

	toolName, _ := msg.Request["tool_name"].(string)
	toolInput, _ := msg.Request["input"].(map[string]interface{})
	toolUseID, _ := msg.Request["tool_use_id"].(string)

	out := Allow()
	if s.preHook != nil {
		verdict, err := s.preHook(ctx, HookInput{ToolName: toolName, ToolInput: toolInput})
		if err != nil {
			// Fail closed on hook failure.
			verdict = Deny(fmt.Sprintf("hook error: %v", err))
		}
		out = verdict
	}

	behavior := DecisionAllow
	if out.Decision == DecisionDeny {
		behavior = DecisionDeny
	}
	response := map[string]interface{}{
		"subtype":  "success",
		"behavior": behavior,
	}
	if behavior == DecisionDeny {
		response["message"] = out.Reason
	}
	if err := s.proc.write(controlResponse{
		Type:      "control_response",
		RequestID: msg.RequestID,
		Response:  response,
	}); err != nil {
		s.proc.logger.Error("control response failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if behavior != DecisionDeny {
		return nil
	}
	reason, _ := json.Marshal(out.Reason)
	return &protocol.Message{
		Type:    protocol.MessageUser,
		Subtype: protocol.SubtypeHookBlocked,
		Message: &protocol.InnerMessage{
			Role: "user",
			Content: []protocol.ContentBlock{{
				Type:      protocol.BlockToolResult,
				ToolUseID: toolUseID,
				IsError:   true,
				Content:   reason,
			}},
		},
	}
}

// runPostHook feeds tool results to the post hook. Post hooks are
// bookkeeping only; their verdicts are ignored.
func (s *processStream) runPostHook(ctx context.Context, msg *protocol.Message) {
	if msg.Message == nil {
		return
	}
	for _, block := range msg.Message.Content {
		if block.Type != protocol.BlockToolResult {
			continue
		}
		_, err := s.postHook(ctx, HookInput{
			ToolUseID:  block.ToolUseID,
			ToolResult: block.ResultText(),
		})
		if err != nil {
			s.proc.logger.Warn("post hook error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func (s *processStream) Close() error {
	s.done = true
	return nil
}
