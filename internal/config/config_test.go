package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultgate/vaultgate/internal/security"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	if cfg.Sandbox.Root == "" {
		t.Error("sandbox root defaults to the working directory")
	}
	if len(cfg.Security.BlocklistUnix) == 0 || len(cfg.Security.BlocklistWindows) == 0 {
		t.Error("default blocklists must be populated")
	}
	if cfg.Runtime.Command != "claude" {
		t.Errorf("runtime command %q", cfg.Runtime.Command)
	}
	if cfg.Notify.SubjectPrefix != "vaultgate" {
		t.Errorf("notify prefix %q", cfg.Notify.SubjectPrefix)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level %q", cfg.Log.Level)
	}
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vaultgate.toml")
	content := `
[sandbox]
root = "/srv/vault"
context_roots = ["/srv/shared"]
export_roots = ["/srv/out"]

[security]
blocklist_unix = ["shutdown"]

[runtime]
command = "mock-agent"
args = ["--flag"]

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sandbox.Root != "/srv/vault" {
		t.Errorf("root %q", cfg.Sandbox.Root)
	}
	if len(cfg.Sandbox.ContextRoots) != 1 || cfg.Sandbox.ContextRoots[0] != "/srv/shared" {
		t.Errorf("context roots %v", cfg.Sandbox.ContextRoots)
	}
	if len(cfg.Security.BlocklistUnix) != 1 || cfg.Security.BlocklistUnix[0] != "shutdown" {
		t.Errorf("blocklist %v", cfg.Security.BlocklistUnix)
	}
	if cfg.Runtime.Command != "mock-agent" {
		t.Errorf("command %q", cfg.Runtime.Command)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level %q", cfg.Log.Level)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Conversation.Dir == "" {
		t.Error("conversation dir default lost")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("loading a missing file should fail")
	}
}

func TestPolicy_Derivation(t *testing.T) {
	vault := t.TempDir()
	ctxRoot := t.TempDir()

	cfg := New()
	cfg.Sandbox.Root = vault
	cfg.Sandbox.ContextRoots = []string{ctxRoot}
	cfg.Security.BlocklistUnix = []string{"rm -rf /"}

	policy := cfg.Policy()
	if got := policy.Path.Classify(filepath.Join(vault, "f")); got != security.AccessVault {
		t.Errorf("vault path classified %v", got)
	}
	if got := policy.Path.Classify(filepath.Join(ctxRoot, "f")); got != security.AccessContext {
		t.Errorf("context path classified %v", got)
	}
	if policy.UnixBlocks.Match("rm -rf /") == "" {
		t.Error("blocklist not carried into the policy")
	}
}
