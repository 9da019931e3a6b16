package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imageforge/imageforge-go/ctl/internal/cmd/build"
	"github.com/imageforge/imageforge-go/ctl/internal/config"
)

// Set by the build process using ldflags.
var (
	version   = "unknown"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:   "imageforge",
		Short: "Manage the build ledger and metadata of an immutable-OS image pipeline",
		Long: `imageforge manages the builds.json ledger and the per-build meta.json
documents of an immutable-OS image build root. All writes go through
advisory-locked, merge-aware I/O so independent per-architecture and
per-artifact jobs can safely share one build root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	}
	config.InitGlobalFlags(root)
	root.AddCommand(build.NewCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
