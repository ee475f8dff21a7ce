package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/vaultgate/vaultgate/internal/logging"
	"github.com/vaultgate/vaultgate/internal/protocol"
	"github.com/vaultgate/vaultgate/internal/transport"
)

// Policy is an immutable security snapshot taken per query. Config
// reloads produce a new Policy; an in-flight query keeps the one it
// started with.
type Policy struct {
	Path          PathPolicy
	UnixBlocks    *Blocklist
	WindowsBlocks *Blocklist
}

// Gate composes the blocklist and path confinement into the transport's
// pre/post tool hooks. Every decision is logged; every internal failure
// denies.
type Gate struct {
	policy Policy
	logger *logging.Logger

	// writeHashes records a content hash per written path so a later
	// diff layer can detect external edits. PostToolUse bookkeeping
	// only; never influences a decision.
	mu          sync.Mutex
	writeHashes map[string]string
}

// NewGate creates a gate over an immutable policy snapshot.
func NewGate(policy Policy, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.New().WithComponent("security")
	}
	return &Gate{
		policy:      policy,
		logger:      logger,
		writeHashes: make(map[string]string),
	}
}

// PreToolUse evaluates a tool call before execution. Order is fixed:
// blocklist first, then path confinement, so a blocked command reports
// the blocklist reason even when it also leaves the sandbox.
func (g *Gate) PreToolUse(ctx context.Context, in transport.HookInput) (transport.HookOutput, error) {
	if err := ctx.Err(); err != nil {
		return transport.Deny("query cancelled"), nil
	}

	if in.ToolName == protocol.ToolBash {
		command := protocol.CommandArgument(in.ToolInput)
		if pattern := g.matchBlocklist(command); pattern != "" {
			g.logger.SecurityDeny(in.ToolName, "blocklist", pattern)
			return transport.Deny(fmt.Sprintf("command blocked by blocklist pattern %q", pattern)), nil
		}
		return g.checkCommandPaths(in.ToolName, command), nil
	}

	if protocol.IsReadTool(in.ToolName) || protocol.IsWriteTool(in.ToolName) {
		return g.checkFilePath(in.ToolName, in.ToolInput), nil
	}

	return transport.Allow(), nil
}

// PostToolUse records bookkeeping after a write tool executed. It never
// reverses a pre-hook decision.
func (g *Gate) PostToolUse(ctx context.Context, in transport.HookInput) (transport.HookOutput, error) {
	if protocol.IsWriteTool(in.ToolName) {
		if path := protocol.PathArgument(in.ToolInput); path != "" {
			sum := sha256.Sum256([]byte(in.ToolResult))
			g.mu.Lock()
			g.writeHashes[path] = hex.EncodeToString(sum[:])
			g.mu.Unlock()
		}
	}
	return transport.Allow(), nil
}

// WriteHash returns the recorded content hash for a written path.
func (g *Gate) WriteHash(path string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.writeHashes[path]
	return h, ok
}

// matchBlocklist applies the host platform's list first, then the other
// family's list. A Unix-style shell may be reachable even on a Windows
// host, so both always apply.
func (g *Gate) matchBlocklist(command string) string {
	for _, list := range platformOrder(g.policy.UnixBlocks, g.policy.WindowsBlocks) {
		if pattern := list.Match(command); pattern != "" {
			return pattern
		}
	}
	return ""
}

// checkFilePath confines a file tool's declared path argument.
func (g *Gate) checkFilePath(tool string, input map[string]interface{}) transport.HookOutput {
	path := protocol.PathArgument(input)
	if path == "" {
		g.logger.SecurityDeny(tool, "path", "no path argument")
		return transport.Deny("tool call carries no path argument")
	}

	resolved, err := ResolvePath(path)
	if err != nil {
		// Fail closed: an unresolvable path is never safe.
		g.logger.SecurityDeny(tool, "path", err.Error())
		return transport.Deny(fmt.Sprintf("cannot resolve path %q: %v", path, err))
	}

	access := g.policy.Path.Classify(resolved)
	switch access {
	case AccessVault:
		return transport.Allow()
	case AccessContext:
		if protocol.IsReadTool(tool) {
			return transport.Allow()
		}
		g.logger.SecurityDeny(tool, "path", "context root is read-only")
		return transport.Deny(fmt.Sprintf("%q is inside a read-only context root", path))
	case AccessExport:
		if protocol.IsWriteTool(tool) {
			return transport.Allow()
		}
		g.logger.SecurityDeny(tool, "path", "export root is write-only")
		return transport.Deny(fmt.Sprintf("%q is inside a write-only export root", path))
	default:
		g.logger.SecurityDeny(tool, "path", "outside all roots")
		return transport.Deny(fmt.Sprintf("%q is outside the sandbox", path))
	}
}

// checkCommandPaths scans a shell command for path-looking tokens and
// denies the whole command if any of them leaves the vault. Shell
// commands both read and write, so only the vault classification is
// acceptable for a candidate.
func (g *Gate) checkCommandPaths(tool, command string) transport.HookOutput {
	for _, token := range tokenize(command) {
		if !looksLikePath(token) {
			continue
		}
		resolved, err := ResolvePath(token)
		if err != nil {
			g.logger.SecurityDeny(tool, "path", err.Error())
			return transport.Deny(fmt.Sprintf("cannot resolve path %q in command: %v", token, err))
		}
		if access := g.policy.Path.Classify(resolved); access != AccessVault {
			g.logger.SecurityDeny(tool, "path", fmt.Sprintf("%s access for %q", access, token))
			return transport.Deny(fmt.Sprintf("command references %q outside the sandbox", token))
		}
	}
	return transport.Allow()
}

// tokenize splits a command quote-aware: single and double quotes group
// a token, everything else splits on whitespace.
func tokenize(command string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune
	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// looksLikePath reports whether a command token should be confined: any
// token containing a path separator, a parent-directory segment, or a
// home prefix. Flags and bare words pass untouched.
func looksLikePath(token string) bool {
	if token == "" || strings.HasPrefix(token, "-") {
		return false
	}
	if strings.HasPrefix(token, "~/") || token == "~" {
		return true
	}
	if strings.Contains(token, "..") {
		return true
	}
	return strings.ContainsRune(token, '/') || strings.ContainsRune(token, '\\')
}
