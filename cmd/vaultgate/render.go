package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vaultgate/vaultgate/internal/orchestrator"
	"github.com/vaultgate/vaultgate/internal/protocol"
	"github.com/vaultgate/vaultgate/internal/subagent"
)

const wrapWidth = 100

// Component color scheme.
var (
	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")). // Gray - reasoning
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue - tool calls

	toolResultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - tool output

	subagentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")) // Magenta - sub-tasks

	blockedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208")) // Orange - security denials

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")) // Red

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green
)

// renderer writes chunks to the terminal as they stream in.
type renderer struct {
	out io.Writer

	// streaming text arrives as deltas; track whether the current
	// line needs a terminating newline before the next card.
	midLine bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

// Chunk renders one stream chunk.
func (r *renderer) Chunk(chunk protocol.Chunk) {
	switch chunk.Kind {
	case protocol.ChunkText:
		fmt.Fprint(r.out, chunk.Text)
		r.midLine = !strings.HasSuffix(chunk.Text, "\n")

	case protocol.ChunkThinking:
		r.breakLine()
		fmt.Fprintln(r.out, thinkingStyle.Render(wordwrap.String("· "+firstLine(chunk.Text), wrapWidth)))

	case protocol.ChunkToolUse:
		r.breakLine()
		fmt.Fprintln(r.out, toolStyle.Render(fmt.Sprintf("→ %s %s", chunk.ToolName, toolArgSummary(chunk))))

	case protocol.ChunkToolResult:
		r.breakLine()
		text := firstLine(chunk.Text)
		if chunk.IsError {
			fmt.Fprintln(r.out, errorStyle.Render("  ✗ "+text))
		} else if text != "" {
			fmt.Fprintln(r.out, toolResultStyle.Render("  ✓ "+text))
		}

	case protocol.ChunkBlocked:
		r.breakLine()
		fmt.Fprintln(r.out, blockedStyle.Render(wordwrap.String("⛔ blocked: "+chunk.Text, wrapWidth)))

	case protocol.ChunkError:
		r.breakLine()
		fmt.Fprintln(r.out, errorStyle.Render(wordwrap.String("error: "+chunk.Text, wrapWidth)))

	case protocol.ChunkDone:
		r.breakLine()
		if chunk.Text != "" {
			fmt.Fprintln(r.out, doneStyle.Render("· "+firstLine(chunk.Text)))
		}
	}
}

// Subagent renders one sub-task transition.
func (r *renderer) Subagent(info subagent.Info) {
	r.breakLine()
	line := fmt.Sprintf("⊕ sub-task %s: %s", shortID(info.ID), info.Status)
	if info.Status == subagent.StatusCompleted && info.Result != "" {
		line += " — " + firstLine(info.Result)
	}
	fmt.Fprintln(r.out, subagentStyle.Render(wordwrap.String(line, wrapWidth)))
}

// SubagentList prints the current sub-task table.
func (r *renderer) SubagentList(session *orchestrator.AgentSession) {
	infos := session.Subagents()
	if len(infos) == 0 {
		fmt.Fprintln(r.out, "No sub-tasks.")
		return
	}
	for _, info := range infos {
		fmt.Fprintln(r.out, subagentStyle.Render(
			fmt.Sprintf("%s  %-9s  %s", shortID(info.ID), info.Status, info.Description)))
	}
}

func (r *renderer) breakLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func toolArgSummary(chunk protocol.Chunk) string {
	if cmd := protocol.CommandArgument(chunk.ToolInput); cmd != "" {
		return firstLine(cmd)
	}
	if path := protocol.PathArgument(chunk.ToolInput); path != "" {
		return path
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "…"
	}
	if len(s) > 160 {
		s = s[:160] + "…"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
