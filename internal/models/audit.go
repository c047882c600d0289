// internal/models/audit.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	BaseModel
	Action          AuditAction       `json:"action" gorm:"type:varchar(40);not null;index"`
	Description     string            `json:"description" gorm:"type:text"`
	UserAddress     string            `json:"user_address" gorm:"size:42;index"`
	ProductID       *uint64           `json:"product_id,omitempty" gorm:"index"`
	InvoiceID       *uint64           `json:"invoice_id,omitempty" gorm:"index"`
	TransferID      *uint64           `json:"transfer_id,omitempty" gorm:"index"`
	TransactionHash string            `json:"transaction_hash,omitempty" gorm:"size:66"`
	BlockNumber     uint64            `json:"block_number,omitempty"`
	ChainID         uint64            `json:"chain_id,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
}

type Notification struct {
	BaseModel
	UserAddress string            `json:"user_address" gorm:"size:42;not null;index"`
	Type        NotificationType  `json:"type" gorm:"type:varchar(40);not null"`
	Title       string            `json:"title" gorm:"size:255;not null"`
	Message     string            `json:"message" gorm:"type:text"`
	Data        datatypes.JSONMap `json:"data,omitempty"`
	Read        bool              `json:"read" gorm:"default:false"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
}
