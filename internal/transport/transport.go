// Package transport speaks the provider's stream-json protocol over a
// subprocess pipe and exposes the hook points the security layer plugs
// into.
package transport

import (
	"context"

	"github.com/vaultgate/vaultgate/internal/protocol"
)

// MessageStream yields provider messages for one query in arrival
// order.
type MessageStream interface {
	// Next blocks for the next message. Returns io.EOF when the query
	// is complete and the stream is drained.
	Next(ctx context.Context) (*protocol.Message, error)
	Close() error
}

// QueryOptions configures one foreground query.
type QueryOptions struct {
	// SessionID resumes a provider session when non-empty.
	SessionID string
	// PreToolUse runs before every tool execution; a deny verdict
	// blocks the tool.
	PreToolUse HookFunc
	// PostToolUse runs after tool execution for bookkeeping.
	PostToolUse HookFunc
}

// Transport is the connection to the agent runtime.
type Transport interface {
	// Query sends one user prompt and returns the response stream.
	Query(ctx context.Context, prompt string, opts QueryOptions) (MessageStream, error)
	// Interrupt stops the in-flight query without tearing down the
	// runtime.
	Interrupt(ctx context.Context) error
	Close() error
}
