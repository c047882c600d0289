// internal/services/product_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/utils"
)

const auditTrailLimit = 100

type ProductService struct {
	store    *repository.Store
	ledger   ledger.Reader
	notifier *NotificationService
	events   EventPublisher
	metadata MetadataSource
}

// RegisterProductRequest mirrors a product the caller registered on the
// ledger. Descriptive fields are taken from the request.
type RegisterProductRequest struct {
	ProductID       uint64   `json:"product_id" validate:"required,gt=0"`
	Name            string   `json:"name" validate:"required,min=1,max=255"`
	Description     string   `json:"description,omitempty" validate:"max=5000"`
	Category        string   `json:"category,omitempty" validate:"max=100"`
	Manufacturer    string   `json:"manufacturer,omitempty" validate:"max=255"`
	Model           string   `json:"model,omitempty" validate:"max=255"`
	SerialNumber    string   `json:"serial_number,omitempty" validate:"max=255"`
	SKU             string   `json:"sku,omitempty" validate:"max=100"`
	Images          []string `json:"images,omitempty" validate:"omitempty,dive,url"`
	TransactionHash string   `json:"transaction_hash,omitempty" validate:"omitempty,tx_hash"`
	BlockNumber     uint64   `json:"block_number,omitempty"`
}

type UpdateProductRequest struct {
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description  *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category     *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Manufacturer *string  `json:"manufacturer,omitempty" validate:"omitempty,max=255"`
	Model        *string  `json:"model,omitempty" validate:"omitempty,max=255"`
	SerialNumber *string  `json:"serial_number,omitempty" validate:"omitempty,max=255"`
	SKU          *string  `json:"sku,omitempty" validate:"omitempty,max=100"`
	Images       []string `json:"images,omitempty" validate:"omitempty,dive,url"`
}

type ProductListParams struct {
	utils.PaginationParams
	Owner  string               `json:"owner,omitempty" validate:"omitempty,eth_addr"`
	Status models.ProductStatus `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE TRANSFERRED"`
}

// ProductAuditTrail combines the ledger's own counters with the read model's
// audit log of a product.
type ProductAuditTrail struct {
	ProductID     uint64            `json:"product_id"`
	InvoiceCount  uint64            `json:"invoice_count"`
	TransferCount uint64            `json:"transfer_count"`
	InvoiceIDs    []uint64          `json:"invoice_ids"`
	TransferIDs   []uint64          `json:"transfer_ids"`
	Logs          []models.AuditLog `json:"logs"`
}

func NewProductService(store *repository.Store, reader ledger.Reader, notifier *NotificationService, events EventPublisher, metadata MetadataSource) *ProductService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &ProductService{
		store:    store,
		ledger:   reader,
		notifier: notifier,
		events:   events,
		metadata: metadata,
	}
}

func (s *ProductService) ListProducts(ctx context.Context, params ProductListParams) ([]models.Product, utils.PaginationResult, error) {
	if err := utils.ValidateStruct(&params); err != nil {
		return nil, utils.PaginationResult{}, err
	}

	filter := repository.ProductFilter{
		Category: params.Category,
		Owner:    params.Owner,
		Status:   params.Status,
		Search:   strings.TrimSpace(params.Search),
	}
	products, total, err := s.store.ListProducts(ctx, filter, params.Offset(), params.Limit)
	if err != nil {
		return nil, utils.PaginationResult{}, fmt.Errorf("failed to list products: %w", err)
	}

	return products, utils.CreatePaginationResult(products, total, params.PaginationParams), nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID uint64) (*models.Product, error) {
	product, err := s.store.GetProductDetail(ctx, productID)
	if err != nil {
		return nil, storeError(err, "product %d not found", productID)
	}
	return product, nil
}

// RegisterProduct mirrors a product registered on the ledger by caller. A row
// the synchronizer already materialized gets its descriptive fields refreshed.
func (s *ProductService) RegisterProduct(ctx context.Context, caller string, req *RegisterProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	onChain, err := s.ledger.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, ledgerError(err, "product %d not found on ledger", req.ProductID)
	}
	if !ledger.SameAddress(onChain.CurrentOwner, caller) {
		return nil, apperr.Authorization("product %d is not owned by %s", req.ProductID, caller)
	}

	if _, err := EnsureUsers(ctx, s.store, onChain.InitialOwner, onChain.CurrentOwner); err != nil {
		return nil, err
	}

	images := req.Images
	if images == nil {
		images = []string{}
	}
	product := &models.Product{
		ProductID:             req.ProductID,
		Name:                  req.Name,
		Description:           req.Description,
		Category:              req.Category,
		Manufacturer:          req.Manufacturer,
		Model:                 req.Model,
		SerialNumber:          req.SerialNumber,
		SKU:                   req.SKU,
		MetadataHash:          onChain.MetadataHash,
		Images:                images,
		Status:                models.ProductStatusActive,
		InitialOwner:          ledger.NormalizeAddress(onChain.InitialOwner),
		CurrentOwner:          ledger.NormalizeAddress(onChain.CurrentOwner),
		RegistrationTimestamp: onChain.RegistrationTimestamp,
		ChainRef:              chainRef(s.ledger, req.TransactionHash, req.BlockNumber),
	}
	if s.metadata != nil && onChain.MetadataHash != "" {
		product.MetadataURI = s.metadata.URL(onChain.MetadataHash)
	}
	if product.RegistrationTimestamp.IsZero() {
		product.RegistrationTimestamp = time.Now().UTC()
	}

	var inserted bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		inserted, err = tx.InsertProductIfAbsent(ctx, product)
		if err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		if !inserted {
			return tx.UpsertProduct(ctx, product)
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditProductRegistered,
			Description:     fmt.Sprintf("Product %s registered", product.Name),
			UserAddress:     product.InitialOwner,
			ProductID:       uint64Ptr(product.ProductID),
			TransactionHash: req.TransactionHash,
			BlockNumber:     req.BlockNumber,
			ChainID:         product.ChainID,
		})
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		notifyProductRegistered(ctx, s.notifier, product)
		publish(ctx, s.events, RoutingProductRegistered, ProductEvent{
			ProductID:  product.ProductID,
			Owner:      product.CurrentOwner,
			Name:       product.Name,
			ChainID:    product.ChainID,
			OccurredAt: time.Now().UTC(),
		})
	}

	return s.GetProduct(ctx, product.ProductID)
}

// UpdateProduct edits descriptive metadata. Only the current owner per the
// ledger may edit.
func (s *ProductService) UpdateProduct(ctx context.Context, caller string, productID uint64, req *UpdateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, storeError(err, "product %d not found", productID)
	}

	onChain, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return nil, ledgerError(err, "product %d not found on ledger", productID)
	}
	if !ledger.SameAddress(onChain.CurrentOwner, caller) {
		return nil, apperr.Authorization("only the current owner can update product %d", productID)
	}

	updates := make(map[string]interface{})
	set := func(column string, v *string) {
		if v != nil {
			updates[column] = *v
		}
	}
	set("name", req.Name)
	set("description", req.Description)
	set("category", req.Category)
	set("manufacturer", req.Manufacturer)
	set("model", req.Model)
	set("serial_number", req.SerialNumber)
	set("sku", req.SKU)
	if req.Images != nil {
		updates["images"] = datatypes.JSONSlice[string](req.Images)
	}

	if len(updates) == 0 {
		return nil, apperr.Validation("no fields to update")
	}

	fields := make([]string, 0, len(updates))
	for column := range updates {
		fields = append(fields, column)
	}
	sort.Strings(fields)

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.UpdateProductFields(ctx, productID, updates); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:      models.AuditProductUpdated,
			Description: fmt.Sprintf("Product %d metadata updated", productID),
			UserAddress: ledger.NormalizeAddress(caller),
			ProductID:   uint64Ptr(productID),
			ChainID:     s.ledger.ChainID(),
			Metadata:    map[string]interface{}{"fields": fields},
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(ctx, productID)
}

// AuditTrail reads the ledger's invoice and transfer history of a product
// alongside its audit log.
func (s *ProductService) AuditTrail(ctx context.Context, productID uint64) (*ProductAuditTrail, error) {
	trail := &ProductAuditTrail{ProductID: productID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.ledger.GetProductAuditTrail(gctx, productID)
		if err != nil {
			return ledgerError(err, "product %d not found on ledger", productID)
		}
		trail.InvoiceCount = counts.InvoiceCount
		trail.TransferCount = counts.TransferCount
		return nil
	})
	g.Go(func() error {
		invoices, err := s.ledger.GetProductInvoices(gctx, productID)
		if err != nil {
			return ledgerError(err, "product %d not found on ledger", productID)
		}
		trail.InvoiceIDs = make([]uint64, 0, len(invoices))
		for _, inv := range invoices {
			trail.InvoiceIDs = append(trail.InvoiceIDs, inv.InvoiceID)
		}
		return nil
	})
	g.Go(func() error {
		certs, err := s.ledger.GetProductTransfers(gctx, productID)
		if err != nil {
			return ledgerError(err, "product %d not found on ledger", productID)
		}
		trail.TransferIDs = make([]uint64, 0, len(certs))
		for _, cert := range certs {
			trail.TransferIDs = append(trail.TransferIDs, cert.CertificateID)
		}
		return nil
	})
	g.Go(func() error {
		logs, err := s.store.ListProductAuditLogs(gctx, productID, auditTrailLimit)
		if err != nil {
			return fmt.Errorf("failed to load audit logs: %w", err)
		}
		trail.Logs = logs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return trail, nil
}

func notifyProductRegistered(ctx context.Context, notifier *NotificationService, product *models.Product) {
	data := map[string]interface{}{
		"product_id":   product.ProductID,
		"product_name": product.Name,
	}
	if product.TransactionHash != "" {
		data["transaction_hash"] = product.TransactionHash
	}
	notifier.Notify(ctx, Notice{
		To:      product.CurrentOwner,
		Type:    models.NotificationProductRegistered,
		Title:   "Product Registered",
		Message: fmt.Sprintf("%s has been registered on the blockchain", product.Name),
		Data:    data,
	})
}
