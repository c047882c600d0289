// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is embedded by rows that have no chain-assigned identifier.
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ChainRef records where an entity was observed on the ledger.
type ChainRef struct {
	ContractAddress string `json:"contract_address" gorm:"size:42"`
	ChainID         uint64 `json:"chain_id" gorm:"index"`
	TransactionHash string `json:"transaction_hash" gorm:"size:66"`
	BlockNumber     uint64 `json:"block_number"`
}

// Enums
type ProductStatus string

const (
	ProductStatusActive      ProductStatus = "ACTIVE"
	ProductStatusTransferred ProductStatus = "TRANSFERRED"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

type AuditAction string

const (
	AuditProductRegistered    AuditAction = "PRODUCT_REGISTERED"
	AuditProductUpdated       AuditAction = "PRODUCT_UPDATED"
	AuditInvoiceCreated       AuditAction = "INVOICE_CREATED"
	AuditTransferInitiated    AuditAction = "TRANSFER_INITIATED"
	AuditTransferSigned       AuditAction = "TRANSFER_SIGNED"
	AuditTransferCompleted    AuditAction = "TRANSFER_COMPLETED"
	AuditOwnershipTransferred AuditAction = "OWNERSHIP_TRANSFERRED"
)

type NotificationType string

const (
	NotificationProductRegistered NotificationType = "PRODUCT_REGISTERED"
	NotificationInvoiceReceived   NotificationType = "INVOICE_RECEIVED"
	NotificationTransferPending   NotificationType = "TRANSFER_PENDING"
	NotificationTransferSigned    NotificationType = "TRANSFER_SIGNED"
	NotificationTransferCompleted NotificationType = "TRANSFER_COMPLETED"
)
