// internal/repository/sync_repo.go
package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/provenance-backend/internal/models"
)

// EnsureSyncStatus returns the cursor of chainID, creating it at block 0.
func (s *Store) EnsureSyncStatus(ctx context.Context, chainID uint64, contractAddress string) (*models.SyncStatus, error) {
	err := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chain_id"}}, DoNothing: true}).
		Create(&models.SyncStatus{ChainID: chainID, ContractAddress: strings.ToLower(contractAddress)}).Error
	if err != nil {
		return nil, err
	}
	return s.GetSyncStatus(ctx, chainID)
}

func (s *Store) GetSyncStatus(ctx context.Context, chainID uint64) (*models.SyncStatus, error) {
	var status models.SyncStatus
	if err := s.conn(ctx).First(&status, "chain_id = ?", chainID).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// AdvanceSyncCursor records a finished pass. The stored block only moves
// forward.
func (s *Store) AdvanceSyncCursor(ctx context.Context, chainID, block uint64, at time.Time) error {
	return s.conn(ctx).Model(&models.SyncStatus{}).
		Where("chain_id = ?", chainID).
		Updates(map[string]interface{}{
			"last_sync_block": gorm.Expr("CASE WHEN last_sync_block < ? THEN ? ELSE last_sync_block END", block, block),
			"last_sync_at":    at,
			"last_error":      "",
		}).Error
}

func (s *Store) RecordSyncError(ctx context.Context, chainID uint64, message string, at time.Time) error {
	return s.conn(ctx).Model(&models.SyncStatus{}).
		Where("chain_id = ?", chainID).
		Updates(map[string]interface{}{
			"last_error":    message,
			"last_error_at": at,
		}).Error
}
