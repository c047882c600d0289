// internal/cli/sync.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/services"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	ChainID         uint64
	ContractAddress string
	FromBlock       int64 // negative resumes from the stored cursor
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay contract events into the read model",
		Long: `Replay registry events into the read model once and exit.

Without --from-block the pass resumes after the stored cursor of the chain.

Examples:
  provenancectl sync
  provenancectl sync --chain-id 137 --contract 0xabc... --from-block 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.ChainID, "chain-id", 0, "chain to sync (defaults to BLOCKCHAIN_CHAIN_ID)")
	cmd.Flags().StringVar(&opts.ContractAddress, "contract", "", "registry address (defaults to BLOCKCHAIN_CONTRACT_ADDRESS)")
	cmd.Flags().Int64Var(&opts.FromBlock, "from-block", -1, "first block to scan")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := opts.Env.LoadConfig()
	if err != nil {
		return err
	}
	db, err := opts.Env.OpenDB(cfg)
	if err != nil {
		return err
	}

	chainID := opts.ChainID
	if chainID == 0 {
		chainID = cfg.Blockchain.ChainID
	}
	contract := opts.ContractAddress
	if contract == "" {
		contract = cfg.Blockchain.ContractAddress
	}

	var fromBlock *uint64
	if opts.FromBlock >= 0 {
		from := uint64(opts.FromBlock)
		fromBlock = &from
	}

	store := repository.New(db)
	notifier := services.NewNotificationService(store, services.NewMailer(cfg.Email), cfg.Frontend.BaseURL)

	var metadata services.MetadataSource
	if storage, err := opts.Env.OpenStorage(cfg); err == nil {
		metadata = storage
	}

	syncService := services.NewSyncService(store, opts.Env.Chains(cfg), notifier, services.NoopPublisher{}, metadata, cfg.Sync)
	result, err := syncService.Sync(ctx, chainID, contract, fromBlock)
	if err != nil {
		return err
	}

	return emit(cmd, opts.RootOptions, result, fmt.Sprintf(
		"Chain %d: scanned blocks %d-%d, %d changes, %d failed, cursor at %d",
		result.ChainID, result.FromBlock, result.ToBlock, result.SyncedCount, result.FailedCount, result.LastBlock,
	))
}
