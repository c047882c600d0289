// Package cli implements provenancectl, the operator command line for the
// registry contract and its read model.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Env    *Env
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the provenancectl root command. A nil env uses the
// process configuration.
func NewRootCommand(env *Env) *cobra.Command {
	if env == nil {
		env = DefaultEnv()
	}
	opts := &RootOptions{Env: env}

	cmd := &cobra.Command{
		Use:           "provenancectl",
		Short:         "Operate the product provenance registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRegisterProductCommand(opts))
	cmd.AddCommand(NewCreateInvoiceCommand(opts))
	cmd.AddCommand(NewInitiateTransferCommand(opts))
	cmd.AddCommand(NewSignTransferCommand(opts))
	cmd.AddCommand(NewHashDocumentCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
