// Package approval tracks human consent for tool calls: session-scoped
// approvals kept in memory and durable approvals persisted by a store.
package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

// Scope says how long an approval lasts.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeAlways  Scope = "always"
)

// Decision is the outcome of an approval request.
type Decision string

const (
	DecisionAllow       Decision = "allow"
	DecisionAllowAlways Decision = "allow-always"
	DecisionDeny        Decision = "deny"
)

// Wildcard matches any input for a tool. Reserved for
// administrator-configured rules; never generated from user consent.
const Wildcard = "*"

// Action is one approved (tool, pattern) pair.
type Action struct {
	ToolName   string    `yaml:"tool"`
	Pattern    string    `yaml:"pattern"`
	ApprovedAt time.Time `yaml:"approved_at"`
	Scope      Scope     `yaml:"scope"`
}

// UI is the external collaborator that asks the human. It may block for
// an unbounded time; implementations must honor ctx.
type UI interface {
	Ask(ctx context.Context, toolName string, input map[string]interface{}, description string) (Decision, error)
}

// Store persists always-scope approvals.
type Store interface {
	Load() ([]Action, error)
	Append(Action) error
}

// Broker mediates approval checks and requests.
type Broker struct {
	mu      sync.Mutex
	session []Action
	durable []Action

	ui     UI
	store  Store
	logger *logging.Logger
}

// NewBroker builds a broker. ui and store may be nil: without a UI every
// non-pre-approved action is denied, and without a store always-scope
// approvals live only for the process lifetime.
func NewBroker(ui UI, store Store, logger *logging.Logger) (*Broker, error) {
	if logger == nil {
		logger = logging.New().WithComponent("approval")
	}
	b := &Broker{ui: ui, store: store, logger: logger}
	if store != nil {
		durable, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load durable approvals: %w", err)
		}
		b.durable = durable
	}
	return b, nil
}

// SetDurable replaces the durable approval set, e.g. after a settings
// reload.
func (b *Broker) SetDurable(actions []Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.durable = append([]Action(nil), actions...)
}

// PatternFor derives the approval pattern for a tool call. Shell
// commands use the exact trimmed command text; file tools use the
// declared path.
func PatternFor(toolName string, input map[string]interface{}) string {
	if toolName == protocol.ToolBash {
		return strings.TrimSpace(protocol.CommandArgument(input))
	}
	return protocol.PathArgument(input)
}

// IsPreApproved reports whether a tool call is covered by an existing
// approval. Shell patterns match exactly; file patterns match by
// prefix, so approving a directory covers its descendants.
func (b *Broker) IsPreApproved(toolName string, input map[string]interface{}) bool {
	pattern := PatternFor(toolName, input)
	if pattern == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range [][]Action{b.session, b.durable} {
		for _, a := range set {
			if a.ToolName != toolName {
				continue
			}
			if matches(toolName, a.Pattern, pattern) {
				return true
			}
		}
	}
	return false
}

func matches(toolName, approved, candidate string) bool {
	if approved == Wildcard {
		return true
	}
	if toolName == protocol.ToolBash {
		return approved == candidate
	}
	if approved == candidate {
		return true
	}
	// Directory approvals cover descendants. "notes/" covers
	// "notes/a.md" but not "other/notes/a.md".
	prefix := approved
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(candidate, prefix)
}

// RequestApproval suspends on the external collaborator and records the
// decision per its scope. With no UI registered it denies: the system
// fails closed in the absence of a decision-maker.
func (b *Broker) RequestApproval(ctx context.Context, toolName string, input map[string]interface{}, description string) (Decision, error) {
	if b.ui == nil {
		b.logger.ApprovalDecision(toolName, PatternFor(toolName, input), "deny_no_ui")
		return DecisionDeny, nil
	}

	decision, err := b.ui.Ask(ctx, toolName, input, description)
	if err != nil {
		if ctx.Err() != nil {
			// Query cancelled while waiting; deny without recording.
			return DecisionDeny, ctx.Err()
		}
		return DecisionDeny, fmt.Errorf("approval prompt: %w", err)
	}

	pattern := PatternFor(toolName, input)
	b.logger.ApprovalDecision(toolName, pattern, string(decision))

	switch decision {
	case DecisionAllow:
		b.Record(toolName, pattern, ScopeSession)
	case DecisionAllowAlways:
		b.Record(toolName, pattern, ScopeAlways)
	}
	return decision, nil
}

// Record adds an approval. Always-scope entries go through the store;
// a store failure keeps the approval in memory and logs.
func (b *Broker) Record(toolName, pattern string, scope Scope) {
	action := Action{
		ToolName:   toolName,
		Pattern:    pattern,
		ApprovedAt: time.Now().UTC(),
		Scope:      scope,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if scope == ScopeAlways {
		b.durable = append(b.durable, action)
		if b.store != nil {
			if err := b.store.Append(action); err != nil {
				b.logger.Error("persist approval failed", map[string]interface{}{
					"tool":  toolName,
					"error": err.Error(),
				})
			}
		}
		return
	}
	b.session = append(b.session, action)
}

// ResetSession clears session-scope approvals. Durable entries survive.
func (b *Broker) ResetSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
}
