package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidentgo/suggestengine/internal/prescan"
	"github.com/evidentgo/suggestengine/internal/wire"
)

var (
	repoFullName string
	forceScan    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path-or-url]",
	Short: "Scan a repository into the code index.",
	Long: `Scans a local git repository or clones a remote one, then syncs its
files into the code index (the suggestion engine's neighbor-exploration
store) in resumable batches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		input := args[0]
		slog.Info("Scanning repository", "input", input, "force", forceScan)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer cleanup()

		manager := prescan.NewManager(app.Cfg, app.Store, app.GitClient, app.Logger)
		scanner := prescan.NewScanner(manager, app.CodeIndex)

		if err := scanner.Scan(ctx, input, forceScan); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		slog.Info("Successfully scanned repository and updated the code index")
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	scanCmd.Flags().StringVar(&repoFullName, "repo-full-name", "", "The full name of the repository (e.g. owner/repo); reserved for future use")
	scanCmd.Flags().BoolVar(&forceScan, "force", false, "Force a full re-scan, ignoring the last saved scan state.")
	rootCmd.AddCommand(scanCmd)
}
