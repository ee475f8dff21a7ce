// Package notify publishes orchestration events to NATS for external
// UI reflection. The publisher is optional and nil-safe; every failure
// is log-and-continue, never a query failure.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
	"github.com/vaultgate/vaultgate/internal/subagent"
)

// Publisher sends orchestration events to a NATS server.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// Connect dials the NATS server. An empty URL returns a nil publisher,
// which all methods accept.
func Connect(url, subjectPrefix string, logger *logging.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.New().WithComponent("notify")
	}
	conn, err := nats.Connect(url,
		nats.Name("vaultgate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subjectPrefix == "" {
		subjectPrefix = "vaultgate"
	}
	logger.Info("notifier connected", map[string]interface{}{"url": url})
	return &Publisher{conn: conn, prefix: subjectPrefix, logger: logger}, nil
}

// SubagentTransition publishes one sub-task state change.
func (p *Publisher) SubagentTransition(info subagent.Info) {
	p.publish(".subagent", map[string]interface{}{
		"id":          info.ID,
		"agent_id":    info.AgentID,
		"status":      string(info.Status),
		"description": info.Description,
	})
}

// TerminalChunk publishes a query-ending chunk (done, error).
func (p *Publisher) TerminalChunk(conversationID string, chunk protocol.Chunk) {
	p.publish(".chunk", map[string]interface{}{
		"conversation": conversationID,
		"kind":         string(chunk.Kind),
		"text":         chunk.Text,
		"is_error":     chunk.IsError,
	})
}

func (p *Publisher) publish(suffix string, payload map[string]interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := p.conn.Publish(p.prefix+suffix, data); err != nil {
		p.logger.Warn("notify publish failed", map[string]interface{}{
			"subject": p.prefix + suffix,
			"error":   err.Error(),
		})
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Drain()
}
