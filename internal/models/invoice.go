// internal/models/invoice.go
package models

import (
	"time"
)

type Invoice struct {
	InvoiceID          uint64        `json:"invoice_id" gorm:"primaryKey;autoIncrement:false"`
	ProductID          uint64        `json:"product_id" gorm:"not null;index"`
	Seller             string        `json:"seller" gorm:"size:42;not null"`
	Buyer              string        `json:"buyer" gorm:"size:42;not null"`
	Amount             float64       `json:"amount" gorm:"type:decimal(18,2);default:0"`
	Currency           string        `json:"currency" gorm:"size:10;default:'USD'"`
	Description        string        `json:"description" gorm:"type:text"`
	PaymentTerms       string        `json:"payment_terms" gorm:"size:255"`
	DueDate            *time.Time    `json:"due_date"`
	InvoiceHash        string        `json:"invoice_hash" gorm:"size:255"`
	StorageURI         string        `json:"storage_uri" gorm:"size:512"`
	Status             InvoiceStatus `json:"status" gorm:"type:varchar(20);default:'PENDING'"`
	IsTransferComplete bool          `json:"is_transfer_complete" gorm:"default:false"`
	Timestamp          time.Time     `json:"timestamp"`
	ChainRef
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID;references:ProductID"`
}
