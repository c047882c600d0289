// internal/repository/invoice_repo.go
package repository

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/javajoker/provenance-backend/internal/models"
)

// invoiceCommercialColumns are the off-chain fields a mirror write may set.
var invoiceCommercialColumns = []string{
	"amount", "currency", "description", "payment_terms", "due_date", "status", "updated_at",
}

func (s *Store) InsertInvoiceIfAbsent(ctx context.Context, inv *models.Invoice) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "invoice_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(inv)
	return res.RowsAffected == 1, res.Error
}

// UpsertInvoice creates inv or refreshes its commercial fields.
func (s *Store) UpsertInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns(invoiceCommercialColumns),
		}).
		Omit(clause.Associations).
		Create(inv).Error
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.conn(ctx).Preload("Product").First(&invoice, "invoice_id = ?", invoiceID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkInvoiceTransferComplete sets the completion flag once.
func (s *Store) MarkInvoiceTransferComplete(ctx context.Context, invoiceID uint64) (bool, error) {
	res := s.conn(ctx).Model(&models.Invoice{}).
		Where("invoice_id = ? AND is_transfer_complete = ?", invoiceID, false).
		Update("is_transfer_complete", true)
	return res.RowsAffected > 0, res.Error
}

// ListInvoices returns invoices where address is the seller or buyer.
func (s *Store) ListInvoices(ctx context.Context, address, role string, limit int) ([]models.Invoice, error) {
	column := "seller"
	if role == "buyer" {
		column = "buyer"
	}

	var invoices []models.Invoice
	err := s.conn(ctx).Preload("Product").
		Where(column+" = ?", strings.ToLower(address)).
		Order("invoice_id DESC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}
