// internal/models/transfer.go
package models

import (
	"time"

	"github.com/javajoker/provenance-backend/internal/transfer"
)

// TransferCertificate mirrors the dual-signature record on the ledger.
// IsComplete is kept equal to SellerSigned && BuyerSigned by every writer.
type TransferCertificate struct {
	CertificateID   uint64     `json:"certificate_id" gorm:"primaryKey;autoIncrement:false"`
	ProductID       uint64     `json:"product_id" gorm:"not null;index"`
	InvoiceID       uint64     `json:"invoice_id" gorm:"not null;uniqueIndex"`
	Seller          string     `json:"seller" gorm:"size:42;not null"`
	Buyer           string     `json:"buyer" gorm:"size:42;not null"`
	CertificateHash string     `json:"certificate_hash" gorm:"size:255"`
	StorageURI      string     `json:"storage_uri" gorm:"size:512"`
	SellerSigned    bool       `json:"seller_signed" gorm:"default:false"`
	SellerSignedAt  *time.Time `json:"seller_signed_at"`
	BuyerSigned     bool       `json:"buyer_signed" gorm:"default:false"`
	BuyerSignedAt   *time.Time `json:"buyer_signed_at"`
	IsComplete      bool       `json:"is_complete" gorm:"default:false"`
	CompletedAt     *time.Time `json:"completed_at"`
	Timestamp       time.Time  `json:"timestamp"`
	ChainRef
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID;references:ProductID"`
	Invoice *Invoice `json:"invoice,omitempty" gorm:"foreignKey:InvoiceID;references:InvoiceID"`
}

func (c *TransferCertificate) SignatureState() transfer.State {
	return transfer.State{
		SellerSigned:   c.SellerSigned,
		SellerSignedAt: c.SellerSignedAt,
		BuyerSigned:    c.BuyerSigned,
		BuyerSignedAt:  c.BuyerSignedAt,
		CompletedAt:    c.CompletedAt,
	}
}

// ApplySignatureState copies s onto the row, deriving IsComplete.
func (c *TransferCertificate) ApplySignatureState(s transfer.State) {
	c.SellerSigned = s.SellerSigned
	c.SellerSignedAt = s.SellerSignedAt
	c.BuyerSigned = s.BuyerSigned
	c.BuyerSignedAt = s.BuyerSignedAt
	c.IsComplete = s.Complete()
	c.CompletedAt = s.CompletedAt
}

func (c *TransferCertificate) Phase() transfer.Phase {
	return c.SignatureState().Phase()
}
