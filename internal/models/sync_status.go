// internal/models/sync_status.go
package models

import (
	"time"
)

// SyncStatus is the per-chain replay cursor. LastSyncBlock never decreases.
type SyncStatus struct {
	ChainID         uint64     `json:"chain_id" gorm:"primaryKey;autoIncrement:false"`
	ContractAddress string     `json:"contract_address" gorm:"size:42"`
	LastSyncBlock   uint64     `json:"last_sync_block" gorm:"default:0"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	LastError       string     `json:"last_error,omitempty" gorm:"type:text"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
