// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"1" help:"Start an interactive agent session"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ChatCmd runs the interactive session loop.
type ChatCmd struct {
	Config  string `short:"c" help:"Config file path (default: ./vaultgate.toml)"`
	Resume  string `help:"Conversation id to resume"`
	Sandbox string `help:"Sandbox root (overrides config)"`
	Verbose bool   `short:"v" help:"Debug logging"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
