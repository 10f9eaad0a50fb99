package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/faceid/internal/app"
	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "registryctl",
		Short: "Operate the FaceID identity registry from the command line",
		Long: `registryctl runs registry operations directly against the configured
identity store (STORE_TYPE, DATABASE_URL) using the same matching rules as
the HTTP API. Results are printed as JSON on stdout, logs go to stderr.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().Duration("timeout", 30*time.Second, "Deadline for the whole command")

	root.AddCommand(
		newEnrollCmd(),
		newAuthenticateCmd(),
		newGetCmd(),
		newRenameCmd(),
		newDeleteCmd(),
		newStatsCmd(),
		newFingerprintCmd(),
	)

	return root
}

// withRegistry loads configuration, builds the registry and runs fn under the --timeout deadline
func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, registry *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLoggerTo(os.Stderr, cfg.Environment)

	ctx, cancel := context.WithTimeout(cmd.Context(), mustGetDuration(cmd, "timeout"))
	defer cancel()

	registry, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = registry.Close() }()

	return fn(ctx, registry)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readEmbedding loads a JSON array of numbers
func readEmbedding(path string) (domain.Embedding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embedding: %w", err)
	}
	var embedding domain.Embedding
	if err := json.Unmarshal(raw, &embedding); err != nil {
		return nil, fmt.Errorf("parse embedding %s: %w", path, err)
	}
	return embedding, nil
}
