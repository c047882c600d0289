// internal/repository/product_repo.go
package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/provenance-backend/internal/models"
)

// productMetadataColumns are the descriptive fields a mirror write may
// overwrite on an existing row. Ownership columns are left to transfers.
var productMetadataColumns = []string{
	"name", "description", "category", "manufacturer", "model",
	"serial_number", "sku", "metadata_uri", "images", "updated_at",
}

type ProductFilter struct {
	Category string
	Owner    string
	Status   models.ProductStatus
	Search   string
}

// InsertProductIfAbsent creates p unless a row with the same product id
// exists. It reports whether a row was written.
func (s *Store) InsertProductIfAbsent(ctx context.Context, p *models.Product) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "product_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(p)
	return res.RowsAffected == 1, res.Error
}

// UpsertProduct creates p or refreshes its descriptive metadata.
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	return s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns(productMetadataColumns),
		}).
		Omit(clause.Associations).
		Create(p).Error
}

func (s *Store) GetProduct(ctx context.Context, productID uint64) (*models.Product, error) {
	var product models.Product
	if err := s.conn(ctx).First(&product, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductDetail loads the product with its invoices, transfers and audit log.
func (s *Store) GetProductDetail(ctx context.Context, productID uint64) (*models.Product, error) {
	var product models.Product
	err := s.conn(ctx).
		Preload("Invoices", func(db *gorm.DB) *gorm.DB { return db.Order("invoice_id DESC") }).
		Preload("Transfers", func(db *gorm.DB) *gorm.DB { return db.Order("certificate_id DESC") }).
		Preload("AuditLogs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC").Limit(50) }).
		First(&product, "product_id = ?", productID).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter ProductFilter, offset, limit int) ([]models.Product, int64, error) {
	query := s.conn(ctx).Model(&models.Product{})

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Owner != "" {
		query = query.Where("current_owner = ?", strings.ToLower(filter.Owner))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(manufacturer) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := query.Order("registration_timestamp DESC, product_id DESC").
		Offset(offset).Limit(limit).
		Find(&products).Error
	return products, total, err
}

func (s *Store) UpdateProductFields(ctx context.Context, productID uint64, updates map[string]interface{}) error {
	return s.conn(ctx).Model(&models.Product{}).
		Where("product_id = ?", productID).
		Updates(updates).Error
}

// SetProductOwner records owner as the current owner of a transferred
// product. It reports whether the row changed.
func (s *Store) SetProductOwner(ctx context.Context, productID uint64, owner string) (bool, error) {
	owner = strings.ToLower(owner)
	res := s.conn(ctx).Model(&models.Product{}).
		Where("product_id = ? AND (current_owner <> ? OR status <> ?)", productID, owner, models.ProductStatusTransferred).
		Updates(map[string]interface{}{
			"current_owner": owner,
			"status":        models.ProductStatusTransferred,
		})
	return res.RowsAffected > 0, res.Error
}

// MoveProductOwner applies an ownership change from one owner to another.
// Rows whose owner is no longer from are left alone so that replaying an
// older transfer cannot undo a newer one.
func (s *Store) MoveProductOwner(ctx context.Context, productID uint64, from, to string) (bool, error) {
	res := s.conn(ctx).Model(&models.Product{}).
		Where("product_id = ? AND current_owner = ?", productID, strings.ToLower(from)).
		Updates(map[string]interface{}{
			"current_owner": strings.ToLower(to),
			"status":        models.ProductStatusTransferred,
		})
	return res.RowsAffected > 0, res.Error
}
