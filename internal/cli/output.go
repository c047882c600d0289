// internal/cli/output.go
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errNoSigner = errors.New("BLOCKCHAIN_PRIVATE_KEY is required to submit transactions")

// emit prints v as indented JSON, or text as-is in text mode.
func emit(cmd *cobra.Command, opts *RootOptions, v interface{}, text string) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

// readDocument loads the file at path, or returns nil for an empty path.
func readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
