// internal/cli/hash.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javajoker/provenance-backend/internal/utils"
)

type documentHash struct {
	File string `json:"file"`
	Hash string `json:"hash"`
}

func NewHashDocumentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-document <file>...",
		Short: "Print the Keccak-256 hash recorded on-chain for documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes := make([]documentHash, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				hash, err := utils.Keccak256Reader(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("failed to hash %s: %w", path, err)
				}
				hashes = append(hashes, documentHash{File: path, Hash: hash})
			}

			if opts.Format == "json" {
				return emit(cmd, opts, hashes, "")
			}
			for _, h := range hashes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", h.Hash, h.File)
			}
			return nil
		},
	}
}
