// Package config provides configuration loading and live reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/vaultgate/vaultgate/internal/security"
)

// Config represents the vaultgate configuration.
type Config struct {
	Sandbox      SandboxConfig      `toml:"sandbox"`
	Security     SecurityConfig     `toml:"security"`
	Runtime      RuntimeConfig      `toml:"runtime"`
	Conversation ConversationConfig `toml:"conversation"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`
	Notify       NotifyConfig       `toml:"notify"`
	Log          LogConfig          `toml:"log"`
}

// SandboxConfig defines the filesystem boundary for tool calls.
type SandboxConfig struct {
	Root         string   `toml:"root"`          // Read+write vault root
	ContextRoots []string `toml:"context_roots"` // Extra read-only roots
	ExportRoots  []string `toml:"export_roots"`  // Extra write-only roots
}

// SecurityConfig contains blocklists and the approvals file path.
type SecurityConfig struct {
	BlocklistUnix    []string `toml:"blocklist_unix"`
	BlocklistWindows []string `toml:"blocklist_windows"`
	ApprovalsFile    string   `toml:"approvals_file"`
}

// RuntimeConfig describes the agent runtime subprocess.
type RuntimeConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// ConversationConfig contains history persistence settings.
type ConversationConfig struct {
	Dir string `toml:"dir"`
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// NotifyConfig contains the optional NATS notifier settings.
type NotifyConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
}

// New creates a config with defaults. The sandbox root defaults to the
// current working directory.
func New() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Sandbox: SandboxConfig{
			Root: cwd,
		},
		Security: SecurityConfig{
			BlocklistUnix:    security.DefaultUnixBlocklist,
			BlocklistWindows: security.DefaultWindowsBlocklist,
			ApprovalsFile:    filepath.Join(cwd, ".vaultgate", "approvals.yaml"),
		},
		Runtime: RuntimeConfig{
			Command: "claude",
			Args:    []string{"--output-format", "stream-json", "--input-format", "stream-json", "--verbose"},
		},
		Conversation: ConversationConfig{
			Dir: filepath.Join(cwd, ".vaultgate", "conversations"),
		},
		Notify: NotifyConfig{
			SubjectPrefix: "vaultgate",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFile loads configuration from a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads vaultgate.toml from the current directory, falling
// back to pure defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "vaultgate.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// Policy derives the immutable security snapshot used per query.
func (c *Config) Policy() security.Policy {
	return security.Policy{
		Path: security.NewPathPolicy(
			c.Sandbox.Root,
			c.Sandbox.ContextRoots,
			c.Sandbox.ExportRoots,
		),
		UnixBlocks:    security.NewBlocklist(c.Security.BlocklistUnix),
		WindowsBlocks: security.NewBlocklist(c.Security.BlocklistWindows),
	}
}
