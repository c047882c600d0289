// internal/cli/env.go
package cli

import (
	"context"

	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/database"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/services"
)

// Env opens the collaborators commands need. Tests replace the functions
// with in-memory implementations.
type Env struct {
	LoadConfig  func() (*config.Config, error)
	OpenDB      func(cfg *config.Config) (*gorm.DB, error)
	DialLedger  func(ctx context.Context, cfg *config.Config) (ledger.Client, error)
	Chains      func(cfg *config.Config) ledger.Provider
	OpenStorage func(cfg *config.Config) (*services.StorageService, error)
}

func DefaultEnv() *Env {
	return &Env{
		LoadConfig: config.Load,
		OpenDB: func(cfg *config.Config) (*gorm.DB, error) {
			return database.Initialize(cfg.Database)
		},
		DialLedger: func(ctx context.Context, cfg *config.Config) (ledger.Client, error) {
			return ledger.DialEth(ctx, ledger.EthOptions{
				RPCURL:          cfg.Blockchain.RPCURL,
				ChainID:         cfg.Blockchain.ChainID,
				ContractAddress: cfg.Blockchain.ContractAddress,
				PrivateKey:      cfg.Blockchain.PrivateKey,
				CallTimeout:     cfg.Sync.RPCTimeout,
			})
		},
		Chains: func(cfg *config.Config) ledger.Provider {
			return ledger.NewEthProvider(cfg.Blockchain.Endpoints(), cfg.Sync.RPCTimeout)
		},
		OpenStorage: services.NewStorageService,
	}
}

// blockchainService dials the operator account and wraps it for document
// anchoring. Storage is optional; without it only hashes are recorded.
func (e *Env) blockchainService(ctx context.Context, cfg *config.Config, withStorage bool) (*services.BlockchainService, error) {
	client, err := e.DialLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client.From() == "" {
		return nil, errNoSigner
	}

	var storage *services.StorageService
	if withStorage {
		if storage, err = e.OpenStorage(cfg); err != nil {
			return nil, err
		}
	}
	return services.NewBlockchainService(client, storage), nil
}
