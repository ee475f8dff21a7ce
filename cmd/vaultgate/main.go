// Package main is the entry point for the vaultgate CLI.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for runtime credentials and endpoints.
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("vaultgate"),
		kong.Description("Sandboxed terminal client for a remote LLM agent runtime."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// Run prints version information.
func (v *VersionCmd) Run() error {
	fmt.Printf("vaultgate version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
