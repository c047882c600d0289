// internal/services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/transfer"
	"github.com/javajoker/provenance-backend/internal/utils"
)

// MetadataSource resolves product metadata documents by content hash.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, hash string) (*ProductMetadata, error)
	URL(hash string) string
}

var errConcurrentUpdate = errors.New("row changed concurrently")

// SyncService replays ledger events into the read model. Events are applied
// in (block, log index) order and every handler also tolerates rows that
// have not been materialized yet by reading them from the ledger.
type SyncService struct {
	store    *repository.Store
	provider ledger.Provider
	notifier *NotificationService
	events   EventPublisher
	metadata MetadataSource
	timeout  time.Duration
	maxRange uint64
	now      func() time.Time

	mu      sync.Mutex
	running map[uint64]bool
}

type SyncRequest struct {
	ChainID         uint64  `json:"chain_id" validate:"required"`
	ContractAddress string  `json:"contract_address" validate:"required,eth_addr"`
	FromBlock       *uint64 `json:"from_block,omitempty"`
}

type SyncResult struct {
	ChainID     uint64 `json:"chain_id"`
	FromBlock   uint64 `json:"from_block"`
	ToBlock     uint64 `json:"to_block"`
	SyncedCount int    `json:"synced_count"`
	FailedCount int    `json:"failed_count"`
	LastBlock   uint64 `json:"last_block"`
}

func NewSyncService(
	store *repository.Store,
	provider ledger.Provider,
	notifier *NotificationService,
	events EventPublisher,
	metadata MetadataSource,
	cfg config.SyncConfig,
) *SyncService {
	if events == nil {
		events = NoopPublisher{}
	}
	maxRange := cfg.MaxBlockRange
	if maxRange == 0 {
		maxRange = 5000
	}
	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SyncService{
		store:    store,
		provider: provider,
		notifier: notifier,
		events:   events,
		metadata: metadata,
		timeout:  timeout,
		maxRange: maxRange,
		now:      func() time.Time { return time.Now().UTC() },
		running:  make(map[uint64]bool),
	}
}

func (s *SyncService) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SyncService) acquire(chainID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[chainID] {
		return false
	}
	s.running[chainID] = true
	return true
}

func (s *SyncService) release(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, chainID)
}

// Trigger validates and runs a manual sync.
func (s *SyncService) Trigger(ctx context.Context, req *SyncRequest) (*SyncResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return s.Sync(ctx, req.ChainID, req.ContractAddress, req.FromBlock)
}

// Sync replays events of one chain. Without fromBlock it resumes after the
// stored cursor, or starts at block 0 on the first run. The cursor only
// moves forward and is advanced after every completed block range.
func (s *SyncService) Sync(ctx context.Context, chainID uint64, contractAddress string, fromBlock *uint64) (*SyncResult, error) {
	if !s.acquire(chainID) {
		return nil, apperr.Conflict("a sync of chain %d is already running", chainID)
	}
	defer s.release(chainID)

	reader, err := s.provider.ForChain(ctx, chainID, contractAddress)
	if err != nil {
		if errors.Is(err, ledger.ErrUnsupportedChain) {
			return nil, apperr.Validation("chain %d with contract %s is not configured", chainID, contractAddress)
		}
		return nil, apperr.Upstream(err, "failed to connect to chain %d", chainID)
	}

	status, err := s.store.EnsureSyncStatus(ctx, chainID, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync status: %w", err)
	}

	start := status.LastSyncBlock + 1
	if status.LastSyncAt == nil {
		start = 0
	}
	if fromBlock != nil {
		start = *fromBlock
	}

	log := logrus.WithFields(logrus.Fields{
		"chain_id":   chainID,
		"from_block": start,
	})

	callCtx, cancel := s.call(ctx)
	latest, err := reader.LatestBlock(callCtx)
	cancel()
	if err != nil {
		s.recordFailure(ctx, chainID, err)
		return nil, apperr.Upstream(err, "failed to read latest block of chain %d", chainID)
	}

	result := &SyncResult{
		ChainID:   chainID,
		FromBlock: start,
		ToBlock:   latest,
		LastBlock: status.LastSyncBlock,
	}

	if start > latest {
		// A cursor that never scanned a block stays unstamped so the next
		// default pass still starts at block 0.
		if status.LastSyncAt != nil {
			if err := s.store.AdvanceSyncCursor(ctx, chainID, status.LastSyncBlock, s.now()); err != nil {
				return nil, fmt.Errorf("failed to update sync status: %w", err)
			}
		}
		log.Debug("No new blocks to sync")
		return result, nil
	}

	for lo := start; ; {
		hi := lo + s.maxRange - 1
		if hi > latest || hi < lo {
			hi = latest
		}

		callCtx, cancel := s.call(ctx)
		events, err := reader.Events(callCtx, lo, hi)
		cancel()
		if err != nil {
			s.recordFailure(ctx, chainID, err)
			return nil, apperr.Upstream(err, "failed to fetch events for blocks %d-%d", lo, hi)
		}

		for _, ev := range events {
			changed, err := s.apply(ctx, reader, ev)
			if err != nil {
				result.FailedCount++
				meta := ev.Meta()
				log.WithError(err).WithFields(logrus.Fields{
					"event":     ev.Kind(),
					"block":     meta.BlockNumber,
					"log_index": meta.LogIndex,
					"tx_hash":   meta.TxHash,
				}).Warn("Failed to process ledger event, skipping")
				continue
			}
			if changed {
				result.SyncedCount++
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.store.AdvanceSyncCursor(ctx, chainID, hi, s.now()); err != nil {
			return nil, fmt.Errorf("failed to update sync status: %w", err)
		}

		if hi >= latest {
			break
		}
		lo = hi + 1
	}

	if latest > result.LastBlock {
		result.LastBlock = latest
	}

	log.WithFields(logrus.Fields{
		"to_block":     latest,
		"synced_count": result.SyncedCount,
		"failed_count": result.FailedCount,
	}).Info("Ledger sync completed")

	return result, nil
}

func (s *SyncService) recordFailure(ctx context.Context, chainID uint64, cause error) {
	logrus.WithError(cause).WithField("chain_id", chainID).Error("Ledger sync failed")
	if err := s.store.RecordSyncError(ctx, chainID, cause.Error(), s.now()); err != nil {
		logrus.WithError(err).Warn("Failed to record sync error")
	}
}

func (s *SyncService) Status(ctx context.Context, chainID uint64) (*models.SyncStatus, error) {
	status, err := s.store.GetSyncStatus(ctx, chainID)
	if err != nil {
		return nil, storeError(err, "chain %d has never been synced", chainID)
	}
	return status, nil
}

// Run syncs one chain every interval until ctx is cancelled.
func (s *SyncService) Run(ctx context.Context, interval time.Duration, chainID uint64, contractAddress string) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx, chainID, contractAddress, nil); err != nil && ctx.Err() == nil {
			logrus.WithError(err).WithField("chain_id", chainID).Warn("Scheduled sync failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// apply dispatches one event and reports whether the read model changed.
func (s *SyncService) apply(ctx context.Context, r ledger.Reader, ev ledger.Event) (bool, error) {
	switch e := ev.(type) {
	case ledger.ProductRegistered:
		return s.onProductRegistered(ctx, r, e)
	case ledger.InvoiceCreated:
		return s.onInvoiceCreated(ctx, r, e)
	case ledger.TransferInitiated:
		return s.onTransferInitiated(ctx, r, e)
	case ledger.TransferSigned:
		return s.onTransferSigned(ctx, r, e)
	case ledger.OwnershipTransferred:
		return s.onOwnershipTransferred(ctx, r, e)
	default:
		return false, fmt.Errorf("unsupported event %s", ev.Kind())
	}
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *SyncService) onProductRegistered(ctx context.Context, r ledger.Reader, ev ledger.ProductRegistered) (bool, error) {
	_, err := s.store.GetProduct(ctx, ev.ProductID)
	if found, err := exists(err); found || err != nil {
		return false, err
	}

	product := s.productRow(ctx, r, ev.ProductID, ev.MetadataHash, ev.Owner, ev.Owner, ev.BlockTime)
	product.ChainRef = chainRef(r, ev.TxHash, ev.BlockNumber)
	return s.insertProduct(ctx, product, ev.BlockTime)
}

// productRow builds a product from its metadata document, falling back to
// placeholder values when the document cannot be fetched.
func (s *SyncService) productRow(ctx context.Context, r ledger.Reader, productID uint64, hash, initialOwner, currentOwner string, registered time.Time) *models.Product {
	meta := s.fetchMetadata(ctx, hash)

	name := meta.Name
	if name == "" {
		name = fmt.Sprintf("Product %d", productID)
	}

	product := &models.Product{
		ProductID:             productID,
		Name:                  name,
		Description:           meta.Description,
		Category:              meta.Category,
		Manufacturer:          meta.Manufacturer,
		Model:                 meta.Model,
		SerialNumber:          meta.SerialNumber,
		SKU:                   meta.SKU,
		MetadataHash:          hash,
		Images:                meta.Images,
		Status:                models.ProductStatusActive,
		InitialOwner:          ledger.NormalizeAddress(initialOwner),
		CurrentOwner:          ledger.NormalizeAddress(currentOwner),
		RegistrationTimestamp: registered,
		ChainRef:              chainRef(r, "", 0),
	}
	if s.metadata != nil && hash != "" {
		product.MetadataURI = s.metadata.URL(hash)
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	return product
}

func (s *SyncService) fetchMetadata(ctx context.Context, hash string) *ProductMetadata {
	fallback := &ProductMetadata{Name: "Unknown Product", Category: "Uncategorized"}
	if s.metadata == nil || hash == "" {
		return fallback
	}

	callCtx, cancel := s.call(ctx)
	defer cancel()

	meta, err := s.metadata.FetchMetadata(callCtx, hash)
	if err != nil {
		logrus.WithError(err).WithField("metadata_hash", hash).Warn("Failed to fetch product metadata, using defaults")
		return fallback
	}
	return meta
}

func (s *SyncService) insertProduct(ctx context.Context, product *models.Product, at time.Time) (bool, error) {
	if _, err := s.store.EnsureUser(ctx, product.InitialOwner); err != nil {
		return false, err
	}
	if _, err := s.store.EnsureUser(ctx, product.CurrentOwner); err != nil {
		return false, err
	}

	var inserted bool
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		inserted, err = tx.InsertProductIfAbsent(ctx, product)
		if err != nil || !inserted {
			return err
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditProductRegistered,
			Description:     fmt.Sprintf("Product %s registered", product.Name),
			UserAddress:     product.InitialOwner,
			ProductID:       uint64Ptr(product.ProductID),
			TransactionHash: product.TransactionHash,
			BlockNumber:     product.BlockNumber,
			ChainID:         product.ChainID,
		})
	})
	if err != nil || !inserted {
		return false, err
	}

	notifyProductRegistered(ctx, s.notifier, product)
	publish(ctx, s.events, RoutingProductRegistered, ProductEvent{
		ProductID:  product.ProductID,
		Owner:      product.CurrentOwner,
		Name:       product.Name,
		ChainID:    product.ChainID,
		OccurredAt: at,
	})
	return true, nil
}

func (s *SyncService) onInvoiceCreated(ctx context.Context, r ledger.Reader, ev ledger.InvoiceCreated) (bool, error) {
	_, err := s.store.GetInvoice(ctx, ev.InvoiceID)
	if found, err := exists(err); found || err != nil {
		return false, err
	}

	callCtx, cancel := s.call(ctx)
	onChain, err := r.GetInvoice(callCtx, ev.InvoiceID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to read invoice %d: %w", ev.InvoiceID, err)
	}

	invoice := invoiceRow(onChain, chainRef(r, ev.TxHash, ev.BlockNumber))
	if invoice.Timestamp.IsZero() {
		invoice.Timestamp = ev.BlockTime
	}

	if _, err := EnsureUsers(ctx, s.store, invoice.Seller, invoice.Buyer); err != nil {
		return false, err
	}

	var inserted bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		inserted, err = tx.InsertInvoiceIfAbsent(ctx, invoice)
		if err != nil || !inserted {
			return err
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditInvoiceCreated,
			Description:     fmt.Sprintf("Invoice %d created", invoice.InvoiceID),
			UserAddress:     invoice.Seller,
			ProductID:       uint64Ptr(invoice.ProductID),
			InvoiceID:       uint64Ptr(invoice.InvoiceID),
			TransactionHash: ev.TxHash,
			BlockNumber:     ev.BlockNumber,
			ChainID:         invoice.ChainID,
		})
	})
	if err != nil || !inserted {
		return false, err
	}

	notifyInvoiceReceived(ctx, s.store, s.notifier, invoice)
	publish(ctx, s.events, RoutingInvoiceCreated, InvoiceEvent{
		InvoiceID:  invoice.InvoiceID,
		ProductID:  invoice.ProductID,
		Seller:     invoice.Seller,
		Buyer:      invoice.Buyer,
		ChainID:    invoice.ChainID,
		OccurredAt: ev.BlockTime,
	})
	return true, nil
}

func (s *SyncService) onTransferInitiated(ctx context.Context, r ledger.Reader, ev ledger.TransferInitiated) (bool, error) {
	_, err := s.store.GetCertificate(ctx, ev.CertificateID)
	if found, err := exists(err); found || err != nil {
		return false, err
	}
	return s.materializeCertificate(ctx, r, ev.CertificateID, ev.LogMeta)
}

// materializeCertificate inserts a certificate read from the ledger, with
// the signatures the ledger currently holds, and re-derives completion.
func (s *SyncService) materializeCertificate(ctx context.Context, r ledger.Reader, certificateID uint64, meta ledger.LogMeta) (bool, error) {
	callCtx, cancel := s.call(ctx)
	onChain, err := r.GetTransferCertificate(callCtx, certificateID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to read certificate %d: %w", certificateID, err)
	}

	cert := certificateRow(onChain, chainRef(r, meta.TxHash, meta.BlockNumber), meta.BlockTime)
	if cert.Timestamp.IsZero() {
		cert.Timestamp = meta.BlockTime
	}

	if _, err := EnsureUsers(ctx, s.store, cert.Seller, cert.Buyer); err != nil {
		return false, err
	}

	var inserted bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		inserted, err = tx.InsertCertificateIfAbsent(ctx, cert)
		if err != nil || !inserted {
			return err
		}
		if _, err := deriveCompletion(ctx, tx, cert); err != nil {
			return err
		}
		entry := &models.AuditLog{
			Action:          models.AuditTransferInitiated,
			Description:     fmt.Sprintf("Transfer initiated for product %d", cert.ProductID),
			UserAddress:     cert.Seller,
			ProductID:       uint64Ptr(cert.ProductID),
			InvoiceID:       uint64Ptr(cert.InvoiceID),
			TransferID:      uint64Ptr(cert.CertificateID),
			TransactionHash: meta.TxHash,
			BlockNumber:     meta.BlockNumber,
			ChainID:         cert.ChainID,
		}
		if err := s.notifier.Audit(ctx, tx, entry); err != nil || !cert.IsComplete {
			return err
		}
		completed := *entry
		completed.ID = uuid.Nil
		completed.Action = models.AuditTransferCompleted
		completed.Description = fmt.Sprintf("Product %d ownership transferred to %s", cert.ProductID, cert.Buyer)
		completed.UserAddress = cert.Buyer
		return s.notifier.Audit(ctx, tx, &completed)
	})
	if err != nil || !inserted {
		return false, err
	}

	name := productLabel(ctx, s.store, cert.ProductID)
	data := transferNoticeData(cert, name)
	if cert.IsComplete {
		notifyTransferCompleted(ctx, s.notifier, cert, name, data)
		publish(ctx, s.events, RoutingTransferCompleted, transferEvent(cert, "", meta.BlockTime))
	} else {
		s.notifier.Notify(ctx, Notice{
			To:      cert.Buyer,
			Type:    models.NotificationTransferPending,
			Title:   "Transfer Pending",
			Message: fmt.Sprintf("Please sign the transfer certificate for %s", name),
			Data:    data,
		})
		publish(ctx, s.events, RoutingTransferInitiated, transferEvent(cert, "", meta.BlockTime))
	}
	return true, nil
}

// deriveCompletion applies the effects of a complete certificate to its
// invoice and product. The owner only moves while the seller still holds
// the product.
func deriveCompletion(ctx context.Context, tx *repository.Store, cert *models.TransferCertificate) (bool, error) {
	if !cert.IsComplete {
		return false, nil
	}
	invoiceChanged, err := tx.MarkInvoiceTransferComplete(ctx, cert.InvoiceID)
	if err != nil {
		return false, fmt.Errorf("failed to update invoice %d: %w", cert.InvoiceID, err)
	}
	ownerChanged, err := tx.MoveProductOwner(ctx, cert.ProductID, cert.Seller, cert.Buyer)
	if err != nil {
		return false, fmt.Errorf("failed to update product %d: %w", cert.ProductID, err)
	}
	return invoiceChanged || ownerChanged, nil
}

func (s *SyncService) onTransferSigned(ctx context.Context, r ledger.Reader, ev ledger.TransferSigned) (bool, error) {
	_, err := s.store.GetCertificate(ctx, ev.CertificateID)
	found, err := exists(err)
	if err != nil {
		return false, err
	}
	if !found {
		return s.materializeCertificate(ctx, r, ev.CertificateID, ev.LogMeta)
	}

	var (
		cert      *models.TransferCertificate
		party     transfer.Party
		signed    bool
		completed bool
		derived   bool
	)
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		cert, err = tx.GetCertificate(ctx, ev.CertificateID)
		if err != nil {
			return err
		}

		party = transfer.PartyOf(cert.Seller, cert.Buyer, ev.Signer)
		if party == transfer.PartyNone {
			return fmt.Errorf("signer %s is not a party of certificate %d", ev.Signer, ev.CertificateID)
		}

		before := cert.SignatureState()
		after, changed := transfer.MarkSigned(before, party, ev.BlockTime)
		if ev.IsComplete && !after.Complete() {
			after, _ = transfer.MarkSigned(after, party.Counterparty(), ev.BlockTime)
			changed = true
		}

		if changed {
			saved, err := tx.SaveSignatures(ctx, ev.CertificateID, before, after)
			if err != nil {
				return err
			}
			if !saved {
				return errConcurrentUpdate
			}
			cert.ApplySignatureState(after)
			signed = true
			completed = after.Complete() && !before.Complete()
		}

		derived, err = deriveCompletion(ctx, tx, cert)
		if err != nil || !signed {
			return err
		}

		entry := &models.AuditLog{
			Action:          models.AuditTransferSigned,
			Description:     fmt.Sprintf("Transfer %d signed by %s", ev.CertificateID, party),
			UserAddress:     ledger.NormalizeAddress(ev.Signer),
			ProductID:       uint64Ptr(cert.ProductID),
			InvoiceID:       uint64Ptr(cert.InvoiceID),
			TransferID:      uint64Ptr(cert.CertificateID),
			TransactionHash: ev.TxHash,
			BlockNumber:     ev.BlockNumber,
			ChainID:         cert.ChainID,
			Metadata:        map[string]interface{}{"party": party.String()},
		}
		if completed {
			entry.Action = models.AuditTransferCompleted
			entry.Description = fmt.Sprintf("Product %d ownership transferred to %s", cert.ProductID, cert.Buyer)
		}
		return s.notifier.Audit(ctx, tx, entry)
	})
	if err != nil {
		return false, err
	}

	if signed {
		name := productLabel(ctx, s.store, cert.ProductID)
		data := transferNoticeData(cert, name)
		signer := ledger.NormalizeAddress(ev.Signer)
		if completed {
			notifyTransferCompleted(ctx, s.notifier, cert, name, data)
			publish(ctx, s.events, RoutingTransferCompleted, transferEvent(cert, signer, ev.BlockTime))
		} else {
			to, who := cert.Seller, "Buyer"
			if party == transfer.PartySeller {
				to, who = cert.Buyer, "Seller"
			}
			s.notifier.Notify(ctx, Notice{
				To:      to,
				Type:    models.NotificationTransferSigned,
				Title:   "Transfer Signed",
				Message: fmt.Sprintf("%s has signed the transfer for %s", who, name),
				Data:    data,
			})
			publish(ctx, s.events, RoutingTransferSigned, transferEvent(cert, signer, ev.BlockTime))
		}
	}

	return signed || derived, nil
}

func (s *SyncService) onOwnershipTransferred(ctx context.Context, r ledger.Reader, ev ledger.OwnershipTransferred) (bool, error) {
	from := ledger.NormalizeAddress(ev.From)
	to := ledger.NormalizeAddress(ev.To)

	_, err := s.store.GetProduct(ctx, ev.ProductID)
	found, err := exists(err)
	if err != nil {
		return false, err
	}

	materialized := false
	if !found {
		callCtx, cancel := s.call(ctx)
		onChain, err := r.GetProduct(callCtx, ev.ProductID)
		cancel()
		if err != nil {
			return false, fmt.Errorf("failed to read product %d: %w", ev.ProductID, err)
		}

		product := s.productRow(ctx, r, ev.ProductID, onChain.MetadataHash, onChain.InitialOwner, from, onChain.RegistrationTimestamp)
		if materialized, err = s.insertProduct(ctx, product, ev.BlockTime); err != nil {
			return false, err
		}
	}

	if _, err := EnsureUsers(ctx, s.store, from, to); err != nil {
		return false, err
	}

	var moved bool
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		moved, err = tx.MoveProductOwner(ctx, ev.ProductID, from, to)
		if err != nil || !moved {
			return err
		}
		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditOwnershipTransferred,
			Description:     fmt.Sprintf("Product %d ownership transferred", ev.ProductID),
			UserAddress:     to,
			ProductID:       uint64Ptr(ev.ProductID),
			TransactionHash: ev.TxHash,
			BlockNumber:     ev.BlockNumber,
			ChainID:         r.ChainID(),
			Metadata:        map[string]interface{}{"from": from, "to": to},
		})
	})
	if err != nil {
		return false, err
	}

	return moved || materialized, nil
}
