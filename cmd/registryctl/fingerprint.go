package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/fingerprint"
)

func newFingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint <image>...",
		Short: "Print the perceptual fingerprint of photos",
		Long: `Print the fingerprint the registry stores for each photo. With --compare
and two photos, also print how many of the 64 bits differ.

Examples:
  registryctl fingerprint alice.jpg bob.png
  registryctl fingerprint --compare original.jpg reencoded.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compare, err := cmd.Flags().GetBool("compare")
			if err != nil {
				return err
			}
			if compare && len(args) != 2 {
				return errors.New("--compare needs exactly two images")
			}

			hashes := make([]domain.Fingerprint, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				fp, err := fingerprint.FromBytes(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				hashes = append(hashes, fp)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", fp, path)
			}

			if compare {
				a, _ := fingerprint.Parse(hashes[0])
				b, _ := fingerprint.Parse(hashes[1])
				fmt.Fprintf(cmd.OutOrStdout(), "hamming distance: %d\n", fingerprint.HammingDistance(a, b))
			}
			return nil
		},
	}

	cmd.Flags().Bool("compare", false, "Compare two images")

	return cmd
}
