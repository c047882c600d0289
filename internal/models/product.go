// internal/models/product.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type Product struct {
	ProductID             uint64                      `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	Name                  string                      `json:"name" gorm:"size:255"`
	Description           string                      `json:"description" gorm:"type:text"`
	Category              string                      `json:"category" gorm:"size:100"`
	Manufacturer          string                      `json:"manufacturer" gorm:"size:255"`
	Model                 string                      `json:"model" gorm:"size:255"`
	SerialNumber          string                      `json:"serial_number" gorm:"size:255"`
	SKU                   string                      `json:"sku" gorm:"size:100"`
	MetadataHash          string                      `json:"metadata_hash" gorm:"size:255"`
	MetadataURI           string                      `json:"metadata_uri" gorm:"size:512"`
	Images                datatypes.JSONSlice[string] `json:"images"`
	Status                ProductStatus               `json:"status" gorm:"type:varchar(20);default:'ACTIVE'"`
	InitialOwner          string                      `json:"initial_owner" gorm:"size:42;not null"`
	CurrentOwner          string                      `json:"current_owner" gorm:"size:42;not null"`
	RegistrationTimestamp time.Time                   `json:"registration_timestamp"`
	ChainRef
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Invoices  []Invoice             `json:"invoices,omitempty" gorm:"foreignKey:ProductID;references:ProductID"`
	Transfers []TransferCertificate `json:"transfers,omitempty" gorm:"foreignKey:ProductID;references:ProductID"`
	AuditLogs []AuditLog            `json:"audit_logs,omitempty" gorm:"foreignKey:ProductID;references:ProductID"`
}
