package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vaultgate/vaultgate/internal/approval"
)

// approvalPrompt implements approval.UI with an inline bubbletea
// prompt: allow once, allow always, or deny.
type approvalPrompt struct{}

func newApprovalPrompt() *approvalPrompt {
	return &approvalPrompt{}
}

// Ask blocks on the interactive prompt.
func (p *approvalPrompt) Ask(ctx context.Context, toolName string, input map[string]interface{}, description string) (approval.Decision, error) {
	model := promptModel{
		toolName:    toolName,
		description: description,
		keys:        defaultPromptKeys(),
	}
	program := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return approval.DecisionDeny, err
	}
	result, ok := final.(promptModel)
	if !ok || result.decision == "" {
		return approval.DecisionDeny, nil
	}
	return result.decision, nil
}

type promptKeys struct {
	Allow  key.Binding
	Always key.Binding
	Deny   key.Binding
}

func defaultPromptKeys() promptKeys {
	return promptKeys{
		Allow: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "allow once"),
		),
		Always: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "always allow"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "d", "esc", "ctrl+c"),
			key.WithHelp("n", "deny"),
		),
	}
}

var (
	promptTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("11")) // Yellow

	promptHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray
)

type promptModel struct {
	toolName    string
	description string
	keys        promptKeys
	decision    approval.Decision
}

func (m promptModel) Init() tea.Cmd {
	return nil
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Allow):
		m.decision = approval.DecisionAllow
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Always):
		m.decision = approval.DecisionAllowAlways
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Deny):
		m.decision = approval.DecisionDeny
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	if m.decision != "" {
		return ""
	}
	return fmt.Sprintf("%s\n  %s\n%s\n",
		promptTitleStyle.Render(fmt.Sprintf("⚠ %s wants to run:", m.toolName)),
		m.description,
		promptHelpStyle.Render("[y] allow once  [a] always allow  [n] deny"),
	)
}
