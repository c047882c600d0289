// internal/cli/ledger.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javajoker/provenance-backend/internal/services"
)

// LedgerOptions holds flags shared by the transaction commands.
type LedgerOptions struct {
	*RootOptions
	NoStorage bool
}

func addLedgerFlags(cmd *cobra.Command, opts *LedgerOptions) {
	cmd.Flags().BoolVar(&opts.NoStorage, "no-storage", false, "record document hashes without uploading the documents")
}

func NewRegisterProductCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	var metadataPath string

	cmd := &cobra.Command{
		Use:   "register-product",
		Short: "Register a product from a metadata JSON file",
		Example: `  provenancectl register-product --metadata watch.json
  provenancectl register-product --metadata watch.json --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(metadataPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", metadataPath, err)
			}
			var meta services.ProductMetadata
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("invalid metadata document: %w", err)
			}

			cfg, err := opts.Env.LoadConfig()
			if err != nil {
				return err
			}
			svc, err := opts.Env.blockchainService(cmd.Context(), cfg, !opts.NoStorage)
			if err != nil {
				return err
			}

			result, err := svc.RegisterProduct(cmd.Context(), &meta)
			if err != nil {
				return err
			}
			return emit(cmd, opts.RootOptions, result, fmt.Sprintf(
				"Registered product %d (metadata %s) in tx %s",
				result.ProductID, result.MetadataHash, result.Receipt.TxHash,
			))
		},
	}

	cmd.Flags().StringVar(&metadataPath, "metadata", "", "path to the product metadata document (required)")
	_ = cmd.MarkFlagRequired("metadata")
	addLedgerFlags(cmd, opts)

	return cmd
}

func NewCreateInvoiceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	var (
		productID    uint64
		buyer        string
		documentPath string
	)

	cmd := &cobra.Command{
		Use:   "create-invoice",
		Short: "Create an invoice selling a product to a buyer",
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := readDocument(documentPath)
			if err != nil {
				return err
			}

			cfg, err := opts.Env.LoadConfig()
			if err != nil {
				return err
			}
			svc, err := opts.Env.blockchainService(cmd.Context(), cfg, !opts.NoStorage)
			if err != nil {
				return err
			}

			record, err := svc.CreateInvoice(cmd.Context(), productID, buyer, document)
			if err != nil {
				return err
			}
			return emit(cmd, opts.RootOptions, record, fmt.Sprintf(
				"Created invoice %d for product %d in tx %s", record.ID, productID, record.Receipt.TxHash,
			))
		},
	}

	cmd.Flags().Uint64Var(&productID, "product-id", 0, "product being sold (required)")
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer wallet address (required)")
	cmd.Flags().StringVar(&documentPath, "document", "", "invoice document to hash and store")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("buyer")
	addLedgerFlags(cmd, opts)

	return cmd
}

func NewInitiateTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	var (
		invoiceID    uint64
		documentPath string
	)

	cmd := &cobra.Command{
		Use:   "initiate-transfer",
		Short: "Open a transfer certificate for an invoice, signed by the seller",
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := readDocument(documentPath)
			if err != nil {
				return err
			}

			cfg, err := opts.Env.LoadConfig()
			if err != nil {
				return err
			}
			svc, err := opts.Env.blockchainService(cmd.Context(), cfg, !opts.NoStorage)
			if err != nil {
				return err
			}

			record, err := svc.InitiateTransfer(cmd.Context(), invoiceID, document)
			if err != nil {
				return err
			}
			return emit(cmd, opts.RootOptions, record, fmt.Sprintf(
				"Initiated certificate %d for invoice %d in tx %s", record.ID, invoiceID, record.Receipt.TxHash,
			))
		},
	}

	cmd.Flags().Uint64Var(&invoiceID, "invoice-id", 0, "invoice to settle (required)")
	cmd.Flags().StringVar(&documentPath, "document", "", "certificate document to hash and store")
	_ = cmd.MarkFlagRequired("invoice-id")
	addLedgerFlags(cmd, opts)

	return cmd
}

func NewSignTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	var certificateID uint64

	cmd := &cobra.Command{
		Use:   "sign-transfer",
		Short: "Sign a transfer certificate as the operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Env.LoadConfig()
			if err != nil {
				return err
			}
			svc, err := opts.Env.blockchainService(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}

			receipt, err := svc.SignTransfer(cmd.Context(), certificateID)
			if err != nil {
				return err
			}
			return emit(cmd, opts.RootOptions, receipt, fmt.Sprintf(
				"Signed certificate %d in tx %s", certificateID, receipt.TxHash,
			))
		},
	}

	cmd.Flags().Uint64Var(&certificateID, "certificate-id", 0, "certificate to sign (required)")
	_ = cmd.MarkFlagRequired("certificate-id")

	return cmd
}
