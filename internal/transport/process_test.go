package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

// scriptedStream builds a processStream reading the given stdout lines,
// with stdin captured for control-response inspection.
func scriptedStream(lines []string, pre, post HookFunc) (*processStream, *bytes.Buffer) {
	logger := logging.New()
	logger.SetOutput(io.Discard)

	stdin := &bytes.Buffer{}
	proc := &Process{logger: logger, stdin: nopWriteCloser{stdin}}
	stream := &processStream{
		proc:     proc,
		scanner:  bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n"))),
		preHook:  pre,
		postHook: post,
	}
	return stream, stdin
}

func TestProcessStream_ResultEndsStream(t *testing.T) {
	stream, _ := scriptedStream([]string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"result","result":"done"}`,
		`{"type":"assistant"}`,
	}, nil, nil)

	msg, err := stream.Next(context.Background())
	if err != nil || msg.Type != protocol.MessageAssistant {
		t.Fatalf("first message: %+v err=%v", msg, err)
	}
	msg, err = stream.Next(context.Background())
	if err != nil || msg.Type != protocol.MessageResult {
		t.Fatalf("result message: %+v err=%v", msg, err)
	}
	// Anything after the result belongs to the next turn.
	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Errorf("stream must end after the result, got %v", err)
	}
}

func TestProcessStream_ControlDenySynthesizesBlock(t *testing.T) {
	deny := func(ctx context.Context, in HookInput) (HookOutput, error) {
		if in.ToolName != protocol.ToolBash {
			t.Errorf("hook saw tool %q", in.ToolName)
		}
		return Deny("blocked by policy"), nil
	}
	stream, stdin := scriptedStream([]string{
		`{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","tool_use_id":"t1","input":{"command":"rm -rf /"}}}`,
		`{"type":"result","result":"done"}`,
	}, deny, nil)

	msg, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Type != protocol.MessageUser || msg.Subtype != protocol.SubtypeHookBlocked {
		t.Fatalf("expected a hook_blocked message, got %+v", msg)
	}
	block := msg.Message.Content[0]
	if block.ToolUseID != "t1" || !block.IsError {
		t.Errorf("blocked block %+v", block)
	}
	if block.ResultText() != "blocked by policy" {
		t.Errorf("blocked reason %q", block.ResultText())
	}

	var resp controlResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &resp); err != nil {
		t.Fatalf("parse control response: %v", err)
	}
	if resp.Type != "control_response" || resp.RequestID != "req-1" {
		t.Errorf("response envelope %+v", resp)
	}
	if resp.Response["behavior"] != DecisionDeny || resp.Response["message"] != "blocked by policy" {
		t.Errorf("response body %+v", resp.Response)
	}
}

func TestProcessStream_ControlAllowIsSilent(t *testing.T) {
	allow := func(ctx context.Context, in HookInput) (HookOutput, error) {
		return Allow(), nil
	}
	stream, stdin := scriptedStream([]string{
		`{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Read","input":{"file_path":"a.txt"}}}`,
		`{"type":"result","result":"done"}`,
	}, allow, nil)

	msg, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Type != protocol.MessageResult {
		t.Errorf("an allowed control request must not surface, got %+v", msg)
	}

	var resp controlResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &resp); err != nil {
		t.Fatalf("parse control response: %v", err)
	}
	if resp.Response["behavior"] != DecisionAllow {
		t.Errorf("response body %+v", resp.Response)
	}
	if _, ok := resp.Response["message"]; ok {
		t.Error("allow responses carry no message")
	}
}

func TestProcessStream_HookErrorFailsClosed(t *testing.T) {
	failing := func(ctx context.Context, in HookInput) (HookOutput, error) {
		return HookOutput{}, io.ErrUnexpectedEOF
	}
	stream, _ := scriptedStream([]string{
		`{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{}}}`,
		`{"type":"result"}`,
	}, failing, nil)

	msg, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Subtype != protocol.SubtypeHookBlocked {
		t.Errorf("hook errors must deny, got %+v", msg)
	}
}

func TestProcessStream_PostHookSeesToolResults(t *testing.T) {
	var seen []string
	post := func(ctx context.Context, in HookInput) (HookOutput, error) {
		seen = append(seen, in.ToolUseID+"="+in.ToolResult)
		return Allow(), nil
	}
	stream, _ := scriptedStream([]string{
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"written"}]}}`,
		`{"type":"result"}`,
	}, nil, post)

	if _, err := stream.Next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(seen) != 1 || seen[0] != "t1=written" {
		t.Errorf("post hook calls %v", seen)
	}
}

// Bytes the scanner buffered past one turn's result line belong to the
// next turn; a second stream over the same process must still see them.
func TestProcessStream_ReadaheadSurvivesTurnBoundary(t *testing.T) {
	logger := logging.New()
	logger.SetOutput(io.Discard)

	stdout := strings.NewReader(strings.Join([]string{
		`{"type":"result","result":"turn one"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"turn two"}]}}`,
		`{"type":"result","result":"turn two"}`,
	}, "\n"))
	proc := &Process{logger: logger, stdin: nopWriteCloser{&bytes.Buffer{}}, scanner: newStreamScanner(stdout)}

	turn1 := &processStream{proc: proc, scanner: proc.scanner}
	if msg, err := turn1.Next(context.Background()); err != nil || msg.Type != protocol.MessageResult {
		t.Fatalf("turn 1 result: %+v err=%v", msg, err)
	}
	if _, err := turn1.Next(context.Background()); err != io.EOF {
		t.Fatalf("turn 1 should drain to EOF, got %v", err)
	}

	turn2 := &processStream{proc: proc, scanner: proc.scanner}
	msg, err := turn2.Next(context.Background())
	if err != nil {
		t.Fatalf("turn 2 messages lost: %v", err)
	}
	if msg.Type != protocol.MessageAssistant {
		t.Fatalf("turn 2 first message: %+v", msg)
	}
	if msg, err := turn2.Next(context.Background()); err != nil || msg.Type != protocol.MessageResult {
		t.Fatalf("turn 2 result: %+v err=%v", msg, err)
	}
}

func TestProcessStream_SkipsGarbageLines(t *testing.T) {
	stream, _ := scriptedStream([]string{
		`not json`,
		``,
		`{"type":"result","result":"ok"}`,
	}, nil, nil)

	msg, err := stream.Next(context.Background())
	if err != nil || msg.Type != protocol.MessageResult {
		t.Errorf("garbage lines must be skipped: %+v err=%v", msg, err)
	}
}
