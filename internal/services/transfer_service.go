// internal/services/transfer_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/transfer"
	"github.com/javajoker/provenance-backend/internal/utils"
)

// TransferService runs the dual-signature transfer workflow against the read
// model. Permission checks are made against the ledger, and a signature is
// mirrored only once the ledger records it.
type TransferService struct {
	store    *repository.Store
	ledger   ledger.Reader
	notifier *NotificationService
	events   EventPublisher
	now      func() time.Time
}

type InitiateTransferRequest struct {
	CertificateID   uint64 `json:"certificate_id" validate:"required,gt=0"`
	InvoiceID       uint64 `json:"invoice_id" validate:"required,gt=0"`
	TransactionHash string `json:"transaction_hash,omitempty" validate:"omitempty,tx_hash"`
	BlockNumber     uint64 `json:"block_number,omitempty"`
}

type SignTransferRequest struct {
	TransactionHash string `json:"transaction_hash,omitempty" validate:"omitempty,tx_hash"`
}

// TransferView is a certificate with its derived workflow phase.
type TransferView struct {
	*models.TransferCertificate
	Phase transfer.Phase `json:"phase"`
}

func NewTransferService(store *repository.Store, reader ledger.Reader, notifier *NotificationService, events EventPublisher) *TransferService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &TransferService{
		store:    store,
		ledger:   reader,
		notifier: notifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newTransferView(cert *models.TransferCertificate) *TransferView {
	return &TransferView{TransferCertificate: cert, Phase: cert.Phase()}
}

func (s *TransferService) GetTransfer(ctx context.Context, certificateID uint64) (*TransferView, error) {
	cert, err := s.store.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, storeError(err, "transfer certificate %d not found", certificateID)
	}
	return newTransferView(cert), nil
}

// InitiateTransfer mirrors a certificate the seller created on the ledger.
// The certificate starts in the INITIATED phase with the seller's signature.
func (s *TransferService) InitiateTransfer(ctx context.Context, initiator string, req *InitiateTransferRequest) (*TransferView, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	invoice, err := s.ledger.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, ledgerError(err, "invoice %d not found", req.InvoiceID)
	}
	if invoice.IsTransferComplete {
		return nil, apperr.Conflict("transfer for invoice %d is already complete", req.InvoiceID)
	}
	if !ledger.SameAddress(invoice.Seller, initiator) {
		return nil, apperr.Authorization("only the seller of invoice %d can initiate its transfer", req.InvoiceID)
	}

	if _, err := s.store.GetCertificateByInvoice(ctx, req.InvoiceID); err == nil {
		return nil, apperr.Conflict("a transfer certificate already exists for invoice %d", req.InvoiceID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	onChain, err := s.ledger.GetTransferCertificate(ctx, req.CertificateID)
	if err != nil {
		return nil, ledgerError(err, "transfer certificate %d not found on ledger", req.CertificateID)
	}
	if onChain.InvoiceID != req.InvoiceID {
		return nil, apperr.Validation("certificate %d belongs to invoice %d, not %d",
			req.CertificateID, onChain.InvoiceID, req.InvoiceID)
	}

	if _, err := EnsureUsers(ctx, s.store, invoice.Seller, invoice.Buyer); err != nil {
		return nil, err
	}

	now := s.now()
	ref := chainRef(s.ledger, req.TransactionHash, req.BlockNumber)
	cert := certificateRow(onChain, ref, now)
	cert.ApplySignatureState(transfer.Initiated(now))
	if cert.Timestamp.IsZero() {
		cert.Timestamp = now
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		inserted, err := tx.InsertCertificateIfAbsent(ctx, cert)
		if err != nil {
			return fmt.Errorf("failed to create certificate: %w", err)
		}
		if !inserted {
			return apperr.Conflict("transfer certificate %d already exists", req.CertificateID)
		}

		if _, err := tx.InsertInvoiceIfAbsent(ctx, invoiceRow(invoice, chainRef(s.ledger, "", 0))); err != nil {
			return fmt.Errorf("failed to mirror invoice: %w", err)
		}

		return s.notifier.Audit(ctx, tx, &models.AuditLog{
			Action:          models.AuditTransferInitiated,
			Description:     fmt.Sprintf("Transfer initiated for product %d", cert.ProductID),
			UserAddress:     cert.Seller,
			ProductID:       uint64Ptr(cert.ProductID),
			InvoiceID:       uint64Ptr(cert.InvoiceID),
			TransferID:      uint64Ptr(cert.CertificateID),
			TransactionHash: req.TransactionHash,
			BlockNumber:     req.BlockNumber,
			ChainID:         ref.ChainID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterInitiated(ctx, cert, now)
	return s.GetTransfer(ctx, cert.CertificateID)
}

func (s *TransferService) afterInitiated(ctx context.Context, cert *models.TransferCertificate, at time.Time) {
	name := productLabel(ctx, s.store, cert.ProductID)
	s.notifier.Notify(ctx, Notice{
		To:      cert.Buyer,
		Type:    models.NotificationTransferPending,
		Title:   "Transfer Pending",
		Message: fmt.Sprintf("Please sign the transfer certificate for %s", name),
		Data:    transferNoticeData(cert, name),
	})
	publish(ctx, s.events, RoutingTransferInitiated, transferEvent(cert, "", at))
}

// SignTransfer mirrors a signature signer already submitted to the ledger.
// When the ledger shows both signatures the transfer completes: certificate,
// product owner and invoice flag are updated in one transaction.
func (s *TransferService) SignTransfer(ctx context.Context, signer string, certificateID uint64, req *SignTransferRequest) (*TransferView, error) {
	if req == nil {
		req = &SignTransferRequest{}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	cert, err := s.store.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, storeError(err, "transfer certificate %d not found", certificateID)
	}

	onChain, err := s.ledger.GetTransferCertificate(ctx, certificateID)
	if err != nil {
		return nil, ledgerError(err, "transfer certificate %d not found on ledger", certificateID)
	}

	party := transfer.PartyOf(onChain.Seller, onChain.Buyer, signer)
	if party == transfer.PartyNone {
		return nil, apperr.Authorization("only the seller or buyer can sign transfer %d", certificateID)
	}

	now := s.now()
	tr, err := transfer.Sign(cert.SignatureState(), party, now)
	switch {
	case errors.Is(err, transfer.ErrAlreadyComplete):
		return nil, apperr.Authorization("transfer %d is already complete", certificateID)
	case errors.Is(err, transfer.ErrAlreadySigned):
		return nil, apperr.Authorization("the %s has already signed transfer %d", party, certificateID)
	case err != nil:
		return nil, err
	}

	recorded := ledgerSignatures(onChain)
	if !recorded.Signed(party) {
		return nil, apperr.Conflict("the %s's signature on transfer %d is not on the ledger yet", party, certificateID)
	}
	tr = reconcileSignatures(tr, recorded, now)

	seller := ledger.NormalizeAddress(onChain.Seller)
	buyer := ledger.NormalizeAddress(onChain.Buyer)
	signerAddr := ledger.NormalizeAddress(signer)

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		saved, err := tx.SaveSignatures(ctx, certificateID, tr.Before, tr.After)
		if err != nil {
			return fmt.Errorf("failed to save signature: %w", err)
		}
		if !saved {
			return apperr.Conflict("transfer %d was modified concurrently, retry", certificateID)
		}

		entry := &models.AuditLog{
			Action:          models.AuditTransferSigned,
			Description:     fmt.Sprintf("Transfer %d signed by %s", certificateID, party),
			UserAddress:     signerAddr,
			ProductID:       uint64Ptr(cert.ProductID),
			InvoiceID:       uint64Ptr(cert.InvoiceID),
			TransferID:      uint64Ptr(certificateID),
			TransactionHash: req.TransactionHash,
			ChainID:         cert.ChainID,
			Metadata:        map[string]interface{}{"party": party.String()},
		}

		if tr.Completed {
			if _, err := tx.SetProductOwner(ctx, cert.ProductID, buyer); err != nil {
				return fmt.Errorf("failed to update product owner: %w", err)
			}
			if _, err := tx.MarkInvoiceTransferComplete(ctx, cert.InvoiceID); err != nil {
				return fmt.Errorf("failed to update invoice: %w", err)
			}
			entry.Action = models.AuditTransferCompleted
			entry.Description = fmt.Sprintf("Product %d ownership transferred to %s", cert.ProductID, buyer)
			entry.Metadata["from"] = seller
			entry.Metadata["to"] = buyer
		}

		return s.notifier.Audit(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	cert.ApplySignatureState(tr.After)
	s.afterSigned(ctx, cert, tr, signerAddr, now)

	return s.GetTransfer(ctx, certificateID)
}

// ledgerSignatures returns the signature flags the ledger holds for cert.
func ledgerSignatures(cert *ledger.Certificate) transfer.State {
	return transfer.State{SellerSigned: cert.SellerSigned, BuyerSigned: cert.BuyerSigned}
}

// reconcileSignatures rebuilds the outcome of tr from the ledger flags, so a
// mirror row that lags behind the ledger catches up and completion follows
// the ledger alone.
func reconcileSignatures(tr transfer.Transition, recorded transfer.State, at time.Time) transfer.Transition {
	after := tr.Before
	for _, p := range []transfer.Party{transfer.PartySeller, transfer.PartyBuyer} {
		if recorded.Signed(p) {
			after, _ = transfer.MarkSigned(after, p, at)
		}
	}
	tr.After = after
	tr.Completed = after.Complete() && !tr.Before.Complete()
	return tr
}

func (s *TransferService) afterSigned(ctx context.Context, cert *models.TransferCertificate, tr transfer.Transition, signer string, at time.Time) {
	name := productLabel(ctx, s.store, cert.ProductID)
	data := transferNoticeData(cert, name)

	if tr.Completed {
		notifyTransferCompleted(ctx, s.notifier, cert, name, data)
		publish(ctx, s.events, RoutingTransferCompleted, transferEvent(cert, signer, at))
		return
	}

	to := cert.Seller
	who := "Buyer"
	if tr.Party == transfer.PartySeller {
		to = cert.Buyer
		who = "Seller"
	}
	s.notifier.Notify(ctx, Notice{
		To:      to,
		Type:    models.NotificationTransferSigned,
		Title:   "Transfer Signed",
		Message: fmt.Sprintf("%s has signed the transfer for %s", who, name),
		Data:    data,
	})
	publish(ctx, s.events, RoutingTransferSigned, transferEvent(cert, signer, at))
}

// notifyTransferCompleted tells both parties that ownership has moved.
func notifyTransferCompleted(ctx context.Context, notifier *NotificationService, cert *models.TransferCertificate, name string, data map[string]interface{}) {
	notifier.Notify(ctx, Notice{
		To:      cert.Seller,
		Type:    models.NotificationTransferCompleted,
		Title:   "Transfer Complete",
		Message: fmt.Sprintf("Ownership of %s has been transferred", name),
		Data:    data,
	})
	notifier.Notify(ctx, Notice{
		To:      cert.Buyer,
		Type:    models.NotificationTransferCompleted,
		Title:   "Transfer Complete",
		Message: fmt.Sprintf("You are now the owner of %s", name),
		Data:    data,
	})
}

func transferNoticeData(cert *models.TransferCertificate, name string) map[string]interface{} {
	data := map[string]interface{}{
		"certificate_id": cert.CertificateID,
		"product_id":     cert.ProductID,
		"invoice_id":     cert.InvoiceID,
		"product_name":   name,
	}
	if cert.TransactionHash != "" {
		data["transaction_hash"] = cert.TransactionHash
	}
	return data
}

func transferEvent(cert *models.TransferCertificate, signer string, at time.Time) TransferEvent {
	return TransferEvent{
		CertificateID: cert.CertificateID,
		ProductID:     cert.ProductID,
		InvoiceID:     cert.InvoiceID,
		Seller:        cert.Seller,
		Buyer:         cert.Buyer,
		Signer:        signer,
		Phase:         string(cert.Phase()),
		ChainID:       cert.ChainID,
		OccurredAt:    at,
	}
}
