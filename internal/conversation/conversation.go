// Package conversation keeps the ordered turn history of one session
// and persists it as JSONL.
package conversation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vaultgate/vaultgate/internal/protocol"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Markers for non-content system turns.
const (
	MarkerInterrupt = "interrupt"
	MarkerReset     = "reset"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Seq       uint64    `json:"seq"`
	Role      string    `json:"role"`
	Marker    string    `json:"marker,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// ContextFiles lists files attached to a user turn.
	ContextFiles []string `json:"context_files,omitempty"`

	// Assistant-turn metadata.
	ToolCalls        []protocol.ToolCallInfo `json:"tool_calls,omitempty"`
	ThinkingBlocks   int                     `json:"thinking_blocks,omitempty"`
	ThinkingDuration time.Duration           `json:"thinking_duration,omitempty"`
}

// Conversation is an append-only turn log with a monotonic sequence
// counter so rebuild order equals arrival order.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	turns      []Turn
	sessionID  string
	seqCounter uint64
}

// New creates an empty conversation with a fresh id.
func New() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Append adds one turn, stamping its sequence and timestamp.
func (c *Conversation) Append(turn Turn) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn.Seq = atomic.AddUint64(&c.seqCounter, 1)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	c.turns = append(c.turns, turn)
	return turn.Seq
}

// Turns returns a copy of the history in arrival order.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

// SetSessionID records the provider-issued session id. An empty id
// invalidates the session.
func (c *Conversation) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the current provider session id, "" when none.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// LastUserContent returns the content of the most recent user turn.
func (c *Conversation) LastUserContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == RoleUser && c.turns[i].Marker == "" {
			return c.turns[i].Content
		}
	}
	return ""
}

// restore rebuilds internal state from loaded turns.
func (c *Conversation) restore(turns []Turn, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = turns
	c.sessionID = sessionID
	if len(turns) > 0 {
		c.seqCounter = turns[len(turns)-1].Seq
	}
}
