// Package cli implements the command-line driving adapter.
// Commands are thin wrappers over the driving ports; all retrieval and
// generation logic lives in the core services.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
	"github.com/tessera-labs/verso/internal/logger"
)

// version is injected by Execute.
var version = "dev"

// Services wired in by the composition root.
var (
	ingestService driving.IngestService
	askService    driving.AskService
	documentStore driven.DocumentStore
	verboseFlag   bool
	ownerFlag     string

	// warmup rebuilds the in-process indexes for the active owner
	// before any command runs.
	warmup func(ctx context.Context, ownerID string) error
)

var rootCmd = &cobra.Command{
	Use:   "verso",
	Short: "Ask questions about your own documents",
	Long: `Verso ingests documents, indexes them for hybrid retrieval, and
answers questions about them with cited sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verboseFlag)
		if warmup != nil {
			return warmup(cmd.Context(), ownerFlag)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "default", "owner id scoping all operations")
}

// SetServices injects the driving ports used by the commands.
func SetServices(ingest driving.IngestService, ask driving.AskService, store driven.DocumentStore) {
	ingestService = ingest
	askService = ask
	documentStore = store
}

// SetWarmup installs the per-owner index warm-up hook.
func SetWarmup(fn func(ctx context.Context, ownerID string) error) {
	warmup = fn
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.Execute()
}
