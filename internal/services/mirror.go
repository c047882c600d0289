// internal/services/mirror.go
package services

import (
	"time"

	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/transfer"
)

// Row builders shared by the REST mirror writes and the synchronizer. Rows
// are always keyed by the id the ledger assigned.

func chainRef(r ledger.Reader, txHash string, block uint64) models.ChainRef {
	return models.ChainRef{
		ContractAddress: ledger.NormalizeAddress(r.ContractAddress()),
		ChainID:         r.ChainID(),
		TransactionHash: txHash,
		BlockNumber:     block,
	}
}

func invoiceRow(inv *ledger.Invoice, ref models.ChainRef) *models.Invoice {
	return &models.Invoice{
		InvoiceID:          inv.InvoiceID,
		ProductID:          inv.ProductID,
		Seller:             ledger.NormalizeAddress(inv.Seller),
		Buyer:              ledger.NormalizeAddress(inv.Buyer),
		InvoiceHash:        inv.InvoiceHash,
		StorageURI:         inv.StorageURI,
		Status:             models.InvoiceStatusPending,
		IsTransferComplete: inv.IsTransferComplete,
		Timestamp:          inv.Timestamp,
		ChainRef:           ref,
	}
}

// certificateRow builds a certificate whose signature flags follow the
// ledger. Signatures are stamped with at since the ledger keeps no times.
func certificateRow(cert *ledger.Certificate, ref models.ChainRef, at time.Time) *models.TransferCertificate {
	row := &models.TransferCertificate{
		CertificateID:   cert.CertificateID,
		ProductID:       cert.ProductID,
		InvoiceID:       cert.InvoiceID,
		Seller:          ledger.NormalizeAddress(cert.Seller),
		Buyer:           ledger.NormalizeAddress(cert.Buyer),
		CertificateHash: cert.CertificateHash,
		StorageURI:      cert.StorageURI,
		Timestamp:       cert.Timestamp,
		ChainRef:        ref,
	}

	var state transfer.State
	if cert.SellerSigned {
		state, _ = transfer.MarkSigned(state, transfer.PartySeller, at)
	}
	if cert.BuyerSigned {
		state, _ = transfer.MarkSigned(state, transfer.PartyBuyer, at)
	}
	row.ApplySignatureState(state)
	return row
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
