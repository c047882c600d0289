// internal/services/invoice_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type InvoiceService struct {
	store    *repository.Store
	ledger   ledger.Reader
	notifier *NotificationService
	events   EventPublisher
}

// CreateInvoiceRequest mirrors an invoice the caller created on the ledger
// and attaches its off-chain commercial terms.
type CreateInvoiceRequest struct {
	InvoiceID       uint64     `json:"invoice_id" validate:"required,gt=0"`
	Amount          float64    `json:"amount" validate:"gte=0"`
	Currency        string     `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Description     string     `json:"description,omitempty" validate:"max=5000"`
	PaymentTerms    string     `json:"payment_terms,omitempty" validate:"max=255"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	TransactionHash string     `json:"transaction_hash,omitempty" validate:"omitempty,tx_hash"`
	BlockNumber     uint64     `json:"block_number,omitempty"`
}

// ContractInvoice is an invoice as the ledger reports it right now.
type ContractInvoice struct {
	InvoiceID          uint64    `json:"invoice_id"`
	ProductID          uint64    `json:"product_id"`
	Seller             string    `json:"seller"`
	Buyer              string    `json:"buyer"`
	InvoiceHash        string    `json:"invoice_hash"`
	StorageURI         string    `json:"storage_uri"`
	Timestamp          time.Time `json:"timestamp"`
	IsTransferComplete bool      `json:"is_transfer_complete"`
	ChainID            uint64    `json:"chain_id"`
	ContractAddress    string    `json:"contract_address"`
}

func NewInvoiceService(store *repository.Store, reader ledger.Reader, notifier *NotificationService, events EventPublisher) *InvoiceService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &InvoiceService{
		store:    store,
		ledger:   reader,
		notifier: notifier,
		events:   events,
	}
}

// CreateInvoice mirrors a ledger invoice. Only its seller may mirror it; a
// second call refreshes the commercial fields.
func (s *InvoiceService) CreateInvoice(ctx context.Context, caller string, req *CreateInvoiceRequest) (*models.Invoice, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	onChain, err := s.ledger.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, ledgerError(err, "invoice %d not found on ledger", req.InvoiceID)
	}
	if !ledger.SameAddress(onChain.Seller, caller) {
		return nil, apperr.Authorization("only the seller can record invoice %d", req.InvoiceID)
	}

	if _, err := EnsureUsers(ctx, s.store, onChain.Seller, onChain.Buyer); err != nil {
		return nil, err
	}

	invoice := invoiceRow(onChain, chainRef(s.ledger, req.TransactionHash, req.BlockNumber))
	invoice.Amount = req.Amount
	invoice.Currency = strings.ToUpper(req.Currency)
	if invoice.Currency == "" {
		invoice.Currency = "USD"
	}
	invoice.Description = req.Description
	invoice.PaymentTerms = req.PaymentTerms
	invoice.DueDate = req.DueDate
	if invoice.Timestamp.IsZero() {
		invoice.Timestamp = time.Now().UTC()
	}

	var inserted bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		inserted, err = tx.InsertInvoiceIfAbsent(ctx, invoice)
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		if !inserted {
			return tx.UpsertInvoice(ctx, invoice)
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditInvoiceCreated,
			Description:     fmt.Sprintf("Invoice %d created", invoice.InvoiceID),
			UserAddress:     invoice.Seller,
			ProductID:       uint64Ptr(invoice.ProductID),
			InvoiceID:       uint64Ptr(invoice.InvoiceID),
			TransactionHash: req.TransactionHash,
			BlockNumber:     req.BlockNumber,
			ChainID:         invoice.ChainID,
			Metadata: map[string]interface{}{
				"amount":   invoice.Amount,
				"currency": invoice.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		notifyInvoiceReceived(ctx, s.store, s.notifier, invoice)
		publish(ctx, s.events, RoutingInvoiceCreated, InvoiceEvent{
			InvoiceID:  invoice.InvoiceID,
			ProductID:  invoice.ProductID,
			Seller:     invoice.Seller,
			Buyer:      invoice.Buyer,
			ChainID:    invoice.ChainID,
			OccurredAt: time.Now().UTC(),
		})
	}

	return s.GetInvoice(ctx, invoice.InvoiceID)
}

func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID uint64) (*models.Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, storeError(err, "invoice %d not found", invoiceID)
	}
	return invoice, nil
}

// GetContractInvoice reads an invoice directly from the ledger.
func (s *InvoiceService) GetContractInvoice(ctx context.Context, invoiceID uint64) (*ContractInvoice, error) {
	inv, err := s.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, ledgerError(err, "invoice %d not found on ledger", invoiceID)
	}
	return &ContractInvoice{
		InvoiceID:          inv.InvoiceID,
		ProductID:          inv.ProductID,
		Seller:             ledger.NormalizeAddress(inv.Seller),
		Buyer:              ledger.NormalizeAddress(inv.Buyer),
		InvoiceHash:        inv.InvoiceHash,
		StorageURI:         inv.StorageURI,
		Timestamp:          inv.Timestamp,
		IsTransferComplete: inv.IsTransferComplete,
		ChainID:            s.ledger.ChainID(),
		ContractAddress:    ledger.NormalizeAddress(s.ledger.ContractAddress()),
	}, nil
}

func notifyInvoiceReceived(ctx context.Context, store *repository.Store, notifier *NotificationService, invoice *models.Invoice) {
	name := productLabel(ctx, store, invoice.ProductID)
	data := map[string]interface{}{
		"invoice_id":   invoice.InvoiceID,
		"product_id":   invoice.ProductID,
		"product_name": name,
	}
	if invoice.Amount > 0 {
		data["amount"] = invoice.Amount
		data["currency"] = invoice.Currency
	}
	if invoice.TransactionHash != "" {
		data["transaction_hash"] = invoice.TransactionHash
	}
	notifier.Notify(ctx, Notice{
		To:      invoice.Buyer,
		Type:    models.NotificationInvoiceReceived,
		Title:   "New Invoice Received",
		Message: fmt.Sprintf("You have received an invoice for %s", name),
		Data:    data,
	})
}
