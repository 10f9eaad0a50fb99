package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/faceid/internal/app"
	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

func newEnrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll <unique-id>",
		Short: "Enroll a new identity from a photo or an embedding",
		Long: `Enroll a new identity. The photo is fingerprinted and rejected when
the same photo or a face within tolerance is already enrolled.

Examples:
  registryctl enroll alice --name "Alice" --image alice.jpg
  registryctl enroll alice --name "Alice" --embedding alice.json --fingerprint c3a1f0e29b7d4c18`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := mustGetString(cmd, "name")
			imagePath := mustGetString(cmd, "image")
			embeddingPath := mustGetString(cmd, "embedding")
			fp := domain.Fingerprint(mustGetString(cmd, "fingerprint"))

			if (imagePath == "") == (embeddingPath == "") {
				return errors.New("provide exactly one of --image or --embedding")
			}

			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				var identity *domain.Identity
				if imagePath != "" {
					image, err := os.ReadFile(imagePath)
					if err != nil {
						return fmt.Errorf("read image: %w", err)
					}
					identity, err = registry.Service.EnrollImage(ctx, args[0], name, image)
					if err != nil {
						return err
					}
				} else {
					embedding, err := readEmbedding(embeddingPath)
					if err != nil {
						return err
					}
					identity, err = registry.Service.Enroll(ctx, args[0], name, embedding, fp)
					if err != nil {
						return err
					}
				}
				return printJSON(cmd, identity)
			})
		},
	}

	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("image", "", "Path to the enrollment photo")
	cmd.Flags().String("embedding", "", "Path to a JSON array holding a 128-dimension embedding")
	cmd.Flags().String("fingerprint", "", "Photo fingerprint to store with --embedding")

	return cmd
}

func newAuthenticateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authenticate",
		Short: "Find the enrolled identity closest to a probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath := mustGetString(cmd, "image")
			embeddingPath := mustGetString(cmd, "embedding")
			if (imagePath == "") == (embeddingPath == "") {
				return errors.New("provide exactly one of --image or --embedding")
			}

			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				var match *domain.MatchResult
				if imagePath != "" {
					image, err := os.ReadFile(imagePath)
					if err != nil {
						return fmt.Errorf("read image: %w", err)
					}
					match, err = registry.Service.AuthenticateImage(ctx, image)
					if err != nil {
						return err
					}
				} else {
					embedding, err := readEmbedding(embeddingPath)
					if err != nil {
						return err
					}
					match, err = registry.Service.Authenticate(ctx, embedding)
					if err != nil {
						return err
					}
				}
				if match == nil {
					return domain.ErrNoMatch
				}
				return printJSON(cmd, match)
			})
		},
	}

	cmd.Flags().String("image", "", "Path to the probe photo")
	cmd.Flags().String("embedding", "", "Path to a JSON array holding the probe embedding")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <unique-id>",
		Short: "Show an enrolled identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				identity, err := registry.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, identity)
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <unique-id> <name>",
		Short: "Change an identity's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				identity, err := registry.Service.Rename(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, identity)
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <unique-id>...",
		Short: "Delete identities; unknown ids are ignored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				for _, key := range args {
					if err := registry.Service.Delete(ctx, key); err != nil {
						return fmt.Errorf("delete %s: %w", key, err)
					}
				}
				return printJSON(cmd, map[string]any{"deleted": args})
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many identities are enrolled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, registry *app.App) error {
				stats, err := registry.Service.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}
}
