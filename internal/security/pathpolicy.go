// Package security enforces the tool-call sandbox: a platform-scoped
// command blocklist, path confinement against configured roots, and the
// pre/post hook gate that composes them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Access classifies a resolved path against the configured roots.
type Access string

const (
	// AccessDenied means the path is outside every configured root.
	AccessDenied Access = "denied"
	// AccessVault means the path is inside the sandbox root (read+write).
	AccessVault Access = "vault"
	// AccessContext means the path is inside a read-only context root.
	AccessContext Access = "context"
	// AccessExport means the path is inside a write-only export root.
	AccessExport Access = "export"
)

// PathPolicy classifies absolute paths against a sandbox root plus
// optional extra read-only and write-only roots. It is pure decision
// logic with no filesystem access; callers resolve paths first.
type PathPolicy struct {
	VaultRoot    string
	ContextRoots []string
	ExportRoots  []string
}

// NewPathPolicy normalizes all roots to absolute, symlink-resolved
// paths so containment checks compare like with like.
func NewPathPolicy(vaultRoot string, contextRoots, exportRoots []string) PathPolicy {
	policy := PathPolicy{VaultRoot: resolveRoot(vaultRoot)}
	for _, r := range contextRoots {
		policy.ContextRoots = append(policy.ContextRoots, resolveRoot(r))
	}
	for _, r := range exportRoots {
		policy.ExportRoots = append(policy.ExportRoots, resolveRoot(r))
	}
	return policy
}

func resolveRoot(root string) string {
	if root == "" {
		return ""
	}
	if resolved, err := ResolvePath(root); err == nil {
		return resolved
	}
	return lexicalAbs(root)
}

// Classify maps an absolute path to its access classification. The
// vault root wins over context/export roots when they overlap.
func (p PathPolicy) Classify(path string) Access {
	path = lexicalAbs(path)
	if p.VaultRoot != "" && contains(p.VaultRoot, path) {
		return AccessVault
	}
	for _, root := range p.ContextRoots {
		if contains(root, path) {
			return AccessContext
		}
	}
	for _, root := range p.ExportRoots {
		if contains(root, path) {
			return AccessExport
		}
	}
	return AccessDenied
}

// contains reports whether path is root itself or a descendant of it.
func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ResolvePath resolves a candidate path to an absolute, symlink-resolved
// form. When the target does not exist yet it resolves the nearest
// existing ancestor and re-appends the remainder lexically, so a write
// to a new file under a symlinked directory still classifies correctly.
// Any other resolution failure is returned so callers can fail closed.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", path, err)
		}
		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	// Target missing: resolve the deepest existing ancestor.
	dir, rest := abs, ""
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve %q: %w", path, err)
		}
	}
}

func lexicalAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
