// internal/repository/transfer_repo.go
package repository

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/transfer"
)

func (s *Store) InsertCertificateIfAbsent(ctx context.Context, cert *models.TransferCertificate) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "certificate_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(cert)
	return res.RowsAffected == 1, res.Error
}

func (s *Store) GetCertificate(ctx context.Context, certificateID uint64) (*models.TransferCertificate, error) {
	var cert models.TransferCertificate
	err := s.conn(ctx).Preload("Product").Preload("Invoice").
		First(&cert, "certificate_id = ?", certificateID).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *Store) GetCertificateByInvoice(ctx context.Context, invoiceID uint64) (*models.TransferCertificate, error) {
	var cert models.TransferCertificate
	if err := s.conn(ctx).First(&cert, "invoice_id = ?", invoiceID).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

// SaveSignatures moves a certificate from before to after. The update only
// applies while the row still holds before, so two writers racing on the
// same signature cannot both succeed.
func (s *Store) SaveSignatures(ctx context.Context, certificateID uint64, before, after transfer.State) (bool, error) {
	res := s.conn(ctx).Model(&models.TransferCertificate{}).
		Where("certificate_id = ? AND seller_signed = ? AND buyer_signed = ? AND is_complete = ?",
			certificateID, before.SellerSigned, before.BuyerSigned, before.Complete()).
		Updates(map[string]interface{}{
			"seller_signed":    after.SellerSigned,
			"seller_signed_at": after.SellerSignedAt,
			"buyer_signed":     after.BuyerSigned,
			"buyer_signed_at":  after.BuyerSignedAt,
			"is_complete":      after.Complete(),
			"completed_at":     after.CompletedAt,
		})
	return res.RowsAffected > 0, res.Error
}

// ListTransfers returns certificates where address is a party, newest first.
func (s *Store) ListTransfers(ctx context.Context, address string, limit int) ([]models.TransferCertificate, error) {
	address = strings.ToLower(address)

	var certs []models.TransferCertificate
	err := s.conn(ctx).Preload("Product").
		Where("seller = ? OR buyer = ?", address, address).
		Order("certificate_id DESC").
		Limit(limit).
		Find(&certs).Error
	return certs, err
}
