// internal/services/blockchain_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/utils"
)

// BlockchainService submits registry transactions from the operator account.
// Documents are hashed with Keccak-256 and, when storage is configured,
// uploaded so that the ledger can reference them.
type BlockchainService struct {
	client  ledger.Client
	storage *StorageService
}

type RegisteredProduct struct {
	ProductID    uint64          `json:"product_id"`
	MetadataHash string          `json:"metadata_hash"`
	MetadataURI  string          `json:"metadata_uri,omitempty"`
	Receipt      *ledger.Receipt `json:"receipt"`
}

// LedgerRecord is an invoice or certificate created on the ledger.
type LedgerRecord struct {
	ID           uint64          `json:"id"`
	DocumentHash string          `json:"document_hash"`
	StorageURI   string          `json:"storage_uri,omitempty"`
	Receipt      *ledger.Receipt `json:"receipt"`
}

func NewBlockchainService(client ledger.Client, storage *StorageService) *BlockchainService {
	return &BlockchainService{
		client:  client,
		storage: storage,
	}
}

// RegisterProduct stores the metadata document and registers its hash.
func (s *BlockchainService) RegisterProduct(ctx context.Context, meta *ProductMetadata) (*RegisteredProduct, error) {
	if meta == nil || meta.Name == "" {
		return nil, apperr.Validation("product metadata requires a name")
	}

	doc, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	result := &RegisteredProduct{MetadataHash: utils.Keccak256Hex(doc)}
	if s.storage != nil {
		obj, err := s.storage.Store(ctx, "product-metadata.json", doc)
		if err != nil {
			return nil, err
		}
		result.MetadataHash = obj.Hash
		result.MetadataURI = obj.URL
	}

	id, receipt, err := s.client.RegisterProduct(ctx, result.MetadataHash)
	if err != nil {
		return nil, apperr.Upstream(err, "registerProduct failed")
	}
	result.ProductID = id
	result.Receipt = receipt

	logrus.WithFields(logrus.Fields{
		"product_id": id,
		"tx_hash":    receipt.TxHash,
	}).Info("Product registered on ledger")
	return result, nil
}

func (s *BlockchainService) CreateInvoice(ctx context.Context, productID uint64, buyer string, document []byte) (*LedgerRecord, error) {
	if productID == 0 {
		return nil, apperr.Validation("product id is required")
	}
	if !ledger.IsAddress(buyer) {
		return nil, apperr.Validation("invalid buyer address %q", buyer)
	}
	if ledger.SameAddress(buyer, s.client.From()) {
		return nil, apperr.Validation("buyer cannot be the seller")
	}

	record, err := s.document(ctx, fmt.Sprintf("invoice-%d", productID), document)
	if err != nil {
		return nil, err
	}

	id, receipt, err := s.client.CreateInvoice(ctx, productID, ledger.NormalizeAddress(buyer), record.DocumentHash, record.StorageURI)
	if err != nil {
		return nil, apperr.Upstream(err, "createInvoice failed")
	}
	record.ID = id
	record.Receipt = receipt

	logrus.WithFields(logrus.Fields{
		"invoice_id": id,
		"product_id": productID,
		"tx_hash":    receipt.TxHash,
	}).Info("Invoice created on ledger")
	return record, nil
}

func (s *BlockchainService) InitiateTransfer(ctx context.Context, invoiceID uint64, document []byte) (*LedgerRecord, error) {
	if invoiceID == 0 {
		return nil, apperr.Validation("invoice id is required")
	}

	record, err := s.document(ctx, fmt.Sprintf("certificate-%d", invoiceID), document)
	if err != nil {
		return nil, err
	}

	id, receipt, err := s.client.InitiateTransfer(ctx, invoiceID, record.DocumentHash, record.StorageURI)
	if err != nil {
		return nil, apperr.Upstream(err, "initiateTransfer failed")
	}
	record.ID = id
	record.Receipt = receipt

	logrus.WithFields(logrus.Fields{
		"certificate_id": id,
		"invoice_id":     invoiceID,
		"tx_hash":        receipt.TxHash,
	}).Info("Transfer initiated on ledger")
	return record, nil
}

func (s *BlockchainService) SignTransfer(ctx context.Context, certificateID uint64) (*ledger.Receipt, error) {
	if certificateID == 0 {
		return nil, apperr.Validation("certificate id is required")
	}

	receipt, err := s.client.SignTransfer(ctx, certificateID)
	if err != nil {
		return nil, apperr.Upstream(err, "signTransfer failed")
	}

	logrus.WithFields(logrus.Fields{
		"certificate_id": certificateID,
		"tx_hash":        receipt.TxHash,
	}).Info("Transfer signed on ledger")
	return receipt, nil
}

// document hashes data and uploads it when storage is configured. An empty
// document is recorded with an empty hash.
func (s *BlockchainService) document(ctx context.Context, name string, data []byte) (*LedgerRecord, error) {
	record := &LedgerRecord{}
	if len(data) == 0 {
		return record, nil
	}

	record.DocumentHash = utils.Keccak256Hex(data)
	if s.storage != nil {
		obj, err := s.storage.Store(ctx, name, data)
		if err != nil {
			return nil, err
		}
		record.StorageURI = obj.URL
	}
	return record, nil
}
