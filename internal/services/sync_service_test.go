package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/models"
)

type stubMetadata map[string]*ProductMetadata

func (m stubMetadata) FetchMetadata(ctx context.Context, hash string) (*ProductMetadata, error) {
	meta, ok := m[hash]
	if !ok {
		return nil, fmt.Errorf("metadata %s: 404 Not Found", hash)
	}
	return meta, nil
}

func (m stubMetadata) URL(hash string) string {
	return "https://gateway.example.com/ipfs/" + hash
}

type SyncServiceTestSuite struct {
	suite.Suite
	*fixture
	sync *SyncService
}

func (suite *SyncServiceTestSuite) SetupTest() {
	suite.fixture = newFixture(suite.T())
	metadata := stubMetadata{
		"bafy-watch": {Name: "Vintage Watch", Category: "Watches", Manufacturer: "Omega"},
	}
	suite.sync = NewSyncService(suite.store, suite.contract, suite.notifier, suite.events, metadata, config.SyncConfig{
		RPCTimeout:    time.Second,
		MaxBlockRange: 2,
	})
}

func (suite *SyncServiceTestSuite) run(fromBlock *uint64) *SyncResult {
	result, err := suite.sync.Sync(suite.ctx, testChainID, suite.contract.ContractAddress(), fromBlock)
	suite.Require().NoError(err)
	return result
}

func (suite *SyncServiceTestSuite) cursor() *models.SyncStatus {
	status, err := suite.sync.Status(suite.ctx, testChainID)
	suite.Require().NoError(err)
	return status
}

// invoiced registers a product and invoices it to the buyer (blocks 1-2).
func (suite *SyncServiceTestSuite) invoiced() (productID, invoiceID uint64) {
	productID, _, err := suite.contract.As(suite.seller).RegisterProduct(suite.ctx, "bafy-watch")
	suite.Require().NoError(err)
	invoiceID, _, err = suite.contract.As(suite.seller).CreateInvoice(suite.ctx, productID, suite.buyer, "0xinvoice", "ipfs://invoice")
	suite.Require().NoError(err)
	return productID, invoiceID
}

// completedSale runs a whole transfer on the ledger (blocks 1-4).
func (suite *SyncServiceTestSuite) completedSale() (productID, invoiceID, certID uint64) {
	productID, invoiceID = suite.invoiced()
	certID, _, err := suite.contract.As(suite.seller).InitiateTransfer(suite.ctx, invoiceID, "0xcertificate", "")
	suite.Require().NoError(err)
	_, err = suite.contract.As(suite.buyer).SignTransfer(suite.ctx, certID)
	suite.Require().NoError(err)
	return productID, invoiceID, certID
}

func (suite *SyncServiceTestSuite) assertTransferred(productID, invoiceID, certID uint64) {
	product, err := suite.store.GetProduct(suite.ctx, productID)
	suite.Require().NoError(err)
	suite.Equal(suite.buyer, product.CurrentOwner)
	suite.Equal(suite.seller, product.InitialOwner)

	invoice, err := suite.store.GetInvoice(suite.ctx, invoiceID)
	suite.Require().NoError(err)
	suite.True(invoice.IsTransferComplete)

	cert, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)
	suite.True(cert.SellerSigned)
	suite.True(cert.BuyerSigned)
	suite.True(cert.IsComplete)
	suite.NotNil(cert.CompletedAt)
}

func (suite *SyncServiceTestSuite) TestSyncMirrorsLedgerStepByStep() {
	productID, invoiceID := suite.invoiced()

	result := suite.run(nil)
	suite.Equal(uint64(0), result.FromBlock)
	suite.Equal(2, result.SyncedCount)
	suite.Equal(uint64(2), result.LastBlock)

	product, err := suite.store.GetProduct(suite.ctx, productID)
	suite.Require().NoError(err)
	suite.Equal("Vintage Watch", product.Name)
	suite.Equal("Watches", product.Category)
	suite.Equal("https://gateway.example.com/ipfs/bafy-watch", product.MetadataURI)
	suite.Equal(suite.seller, product.CurrentOwner)
	suite.Equal(uint64(1), product.BlockNumber)

	certID, _, err := suite.contract.As(suite.seller).InitiateTransfer(suite.ctx, invoiceID, "0xcertificate", "")
	suite.Require().NoError(err)

	result = suite.run(nil)
	suite.Equal(uint64(3), result.FromBlock)
	suite.Equal(1, result.SyncedCount)

	cert, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)
	suite.True(cert.SellerSigned)
	suite.False(cert.BuyerSigned)
	suite.False(cert.IsComplete)

	_, err = suite.contract.As(suite.buyer).SignTransfer(suite.ctx, certID)
	suite.Require().NoError(err)

	result = suite.run(nil)
	suite.Equal(uint64(4), result.FromBlock)
	suite.Equal(1, result.SyncedCount)
	suite.Equal(uint64(4), result.LastBlock)

	suite.assertTransferred(productID, invoiceID, certID)
	suite.Equal(int64(1), suite.auditCount(suite.T(), models.AuditTransferCompleted))

	suite.Equal([]string{
		RoutingProductRegistered,
		RoutingInvoiceCreated,
		RoutingTransferInitiated,
		RoutingTransferCompleted,
	}, suite.events.Keys())
}

func (suite *SyncServiceTestSuite) TestSyncNotifiesParties() {
	suite.withEmail(suite.T(), suite.buyer, "buyer@example.com")
	suite.completedSale()

	suite.run(nil)

	types := map[models.NotificationType]int{}
	for _, n := range suite.notifications(suite.T(), suite.buyer) {
		types[n.Type]++
	}
	suite.Equal(1, types[models.NotificationInvoiceReceived])
	suite.Equal(1, types[models.NotificationTransferCompleted])

	suite.Require().NotEmpty(suite.mailer.Sent)
	suite.Equal("New Invoice Received - Vintage Watch", suite.mailer.Sent[0].Subject)
}

func (suite *SyncServiceTestSuite) TestReplayIsIdempotent() {
	productID, invoiceID, certID := suite.completedSale()

	first := suite.run(nil)
	suite.Equal(3, first.SyncedCount)

	counts := func() []int64 {
		return []int64{
			suite.count(suite.T(), &models.User{}),
			suite.count(suite.T(), &models.Product{}),
			suite.count(suite.T(), &models.Invoice{}),
			suite.count(suite.T(), &models.TransferCertificate{}),
			suite.count(suite.T(), &models.AuditLog{}),
			suite.count(suite.T(), &models.Notification{}),
		}
	}
	before := counts()
	cert, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)

	from := uint64(0)
	replay := suite.run(&from)
	suite.Equal(0, replay.SyncedCount)
	suite.Equal(0, replay.FailedCount)

	suite.Equal(before, counts())
	again, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)
	suite.Equal(cert.SignatureState(), again.SignatureState())
	suite.assertTransferred(productID, invoiceID, certID)
}

func (suite *SyncServiceTestSuite) TestRepeatedSyncWithoutActivityIsNoop() {
	suite.completedSale()
	suite.run(nil)
	cursor := suite.cursor().LastSyncBlock

	for i := 0; i < 2; i++ {
		result := suite.run(nil)
		suite.Equal(0, result.SyncedCount)
		suite.Equal(cursor, result.LastBlock)
		suite.Equal(cursor, suite.cursor().LastSyncBlock)
	}
}

func (suite *SyncServiceTestSuite) TestEmptyFirstPassStillStartsAtGenesis() {
	suite.invoiced()
	latest, err := suite.contract.LatestBlock(suite.ctx)
	suite.Require().NoError(err)

	ahead := latest + 10
	result := suite.run(&ahead)
	suite.Equal(0, result.SyncedCount)
	suite.Nil(suite.cursor().LastSyncAt)

	result = suite.run(nil)
	suite.Equal(uint64(0), result.FromBlock)
	suite.Equal(2, result.SyncedCount)
	suite.Equal(latest, suite.cursor().LastSyncBlock)
	suite.NotNil(suite.cursor().LastSyncAt)
}

func (suite *SyncServiceTestSuite) TestSyncResumesAfterCursor() {
	suite.invoiced()
	suite.run(nil)
	suite.Equal(uint64(2), suite.cursor().LastSyncBlock)
	calls := suite.contract.Calls("Events")

	_, _, err := suite.contract.As(suite.stranger).RegisterProduct(suite.ctx, "bafy-camera")
	suite.Require().NoError(err)

	result := suite.run(nil)
	suite.Equal(uint64(3), result.FromBlock)
	suite.Equal(uint64(3), result.ToBlock)
	suite.Equal(1, result.SyncedCount)
	suite.Equal(calls+1, suite.contract.Calls("Events"))
	suite.Equal(uint64(3), suite.cursor().LastSyncBlock)
}

func (suite *SyncServiceTestSuite) TestSyncScansInChunks() {
	suite.invoiced()
	suite.contract.MineEmptyBlocks(5)

	result := suite.run(nil)
	suite.Equal(uint64(7), result.ToBlock)
	suite.Equal(2, result.SyncedCount)
	// blocks 0-7 in ranges of two
	suite.Equal(4, suite.contract.Calls("Events"))
	suite.Equal(uint64(7), suite.cursor().LastSyncBlock)
}

func (suite *SyncServiceTestSuite) TestCursorNeverDecreases() {
	suite.completedSale()
	suite.run(nil)
	suite.Equal(uint64(4), suite.cursor().LastSyncBlock)

	from := uint64(1)
	result := suite.run(&from)
	suite.Equal(uint64(1), result.FromBlock)
	suite.Equal(uint64(4), result.LastBlock)
	suite.Equal(uint64(4), suite.cursor().LastSyncBlock)
}

func (suite *SyncServiceTestSuite) TestSyncToleratesForwardReferences() {
	productID, _, certID := suite.completedSale()

	// Start after the registration and invoice events.
	from := uint64(3)
	result := suite.run(&from)
	suite.Equal(0, result.FailedCount)

	product, err := suite.store.GetProduct(suite.ctx, productID)
	suite.Require().NoError(err)
	suite.Equal("Vintage Watch", product.Name)
	suite.Equal(suite.seller, product.InitialOwner)
	suite.Equal(suite.buyer, product.CurrentOwner)

	cert, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)
	suite.True(cert.IsComplete)
	suite.Equal(cert.SellerSigned && cert.BuyerSigned, cert.IsComplete)
}

func (suite *SyncServiceTestSuite) TestSignedEventMaterializesMissingCertificate() {
	_, invoiceID, certID := suite.completedSale()

	// Only the TransferSigned and OwnershipTransferred logs of block 4.
	from := uint64(4)
	suite.run(&from)

	cert, err := suite.store.GetCertificate(suite.ctx, certID)
	suite.Require().NoError(err)
	suite.Equal(invoiceID, cert.InvoiceID)
	suite.True(cert.IsComplete)
	suite.Equal(int64(1), suite.auditCount(suite.T(), models.AuditTransferInitiated))
}

func (suite *SyncServiceTestSuite) TestFailingEventIsSkipped() {
	productID, invoiceID := suite.invoiced()
	suite.contract.FailReads("GetInvoice", errors.New("rpc timeout"))

	result := suite.run(nil)
	suite.Equal(1, result.SyncedCount)
	suite.Equal(1, result.FailedCount)
	suite.Equal(uint64(2), suite.cursor().LastSyncBlock)

	_, err := suite.store.GetProduct(suite.ctx, productID)
	suite.NoError(err)
	_, err = suite.store.GetInvoice(suite.ctx, invoiceID)
	suite.Error(err)

	suite.contract.FailReads("GetInvoice", nil)
	from := uint64(0)
	result = suite.run(&from)
	suite.Equal(1, result.SyncedCount)
	_, err = suite.store.GetInvoice(suite.ctx, invoiceID)
	suite.NoError(err)
}

func (suite *SyncServiceTestSuite) TestRangeFailureIsRecorded() {
	suite.invoiced()
	suite.run(nil)

	suite.contract.FailEvents(errors.New("connection refused"))
	_, err := suite.sync.Sync(suite.ctx, testChainID, suite.contract.ContractAddress(), nil)
	suite.ErrorIs(err, apperr.ErrUpstream)

	status := suite.cursor()
	suite.Contains(status.LastError, "connection refused")
	suite.NotNil(status.LastErrorAt)
	suite.Equal(uint64(2), status.LastSyncBlock)

	suite.contract.FailEvents(nil)
	suite.run(nil)
	suite.Empty(suite.cursor().LastError)
}

func (suite *SyncServiceTestSuite) TestMetadataFallback() {
	productID, _, err := suite.contract.As(suite.seller).RegisterProduct(suite.ctx, "bafy-missing")
	suite.Require().NoError(err)

	suite.run(nil)

	product, err := suite.store.GetProduct(suite.ctx, productID)
	suite.Require().NoError(err)
	suite.Equal("Unknown Product", product.Name)
	suite.Equal("Uncategorized", product.Category)
}

func (suite *SyncServiceTestSuite) TestUnsupportedChain() {
	_, err := suite.sync.Sync(suite.ctx, 1, suite.contract.ContractAddress(), nil)
	suite.ErrorIs(err, apperr.ErrValidation)
}

func (suite *SyncServiceTestSuite) TestTriggerValidatesRequest() {
	_, err := suite.sync.Trigger(suite.ctx, &SyncRequest{ChainID: testChainID, ContractAddress: "not-an-address"})
	suite.ErrorIs(err, apperr.ErrValidation)
}

func (suite *SyncServiceTestSuite) TestSyncAfterRESTMirrorChangesNothing() {
	products := NewProductService(suite.store, suite.contract, suite.notifier, suite.events, nil)
	invoices := NewInvoiceService(suite.store, suite.contract, suite.notifier, suite.events)
	transfers := NewTransferService(suite.store, suite.contract, suite.notifier, suite.events)

	productID, invoiceID := suite.invoiced()
	_, err := products.RegisterProduct(suite.ctx, suite.seller, &RegisterProductRequest{ProductID: productID, Name: "Vintage Watch"})
	suite.Require().NoError(err)
	_, err = invoices.CreateInvoice(suite.ctx, suite.seller, &CreateInvoiceRequest{InvoiceID: invoiceID, Amount: 100})
	suite.Require().NoError(err)

	certID, _, err := suite.contract.As(suite.seller).InitiateTransfer(suite.ctx, invoiceID, "0xcertificate", "")
	suite.Require().NoError(err)
	_, err = transfers.InitiateTransfer(suite.ctx, suite.seller, &InitiateTransferRequest{CertificateID: certID, InvoiceID: invoiceID})
	suite.Require().NoError(err)

	_, err = suite.contract.As(suite.buyer).SignTransfer(suite.ctx, certID)
	suite.Require().NoError(err)
	_, err = transfers.SignTransfer(suite.ctx, suite.buyer, certID, nil)
	suite.Require().NoError(err)

	audits := suite.count(suite.T(), &models.AuditLog{})
	published := len(suite.events.Keys())

	result := suite.run(nil)
	suite.Equal(0, result.SyncedCount)
	suite.Equal(0, result.FailedCount)

	suite.assertTransferred(productID, invoiceID, certID)
	suite.Equal(audits, suite.count(suite.T(), &models.AuditLog{}))
	suite.Len(suite.events.Keys(), published)
}

func (suite *SyncServiceTestSuite) TestRunSyncsUntilCancelled() {
	suite.invoiced()

	ctx, cancel := context.WithCancel(suite.ctx)
	done := make(chan struct{})
	go func() {
		suite.sync.Run(ctx, 10*time.Millisecond, testChainID, suite.contract.ContractAddress())
		close(done)
	}()

	suite.Eventually(func() bool {
		status, err := suite.sync.Status(suite.ctx, testChainID)
		return err == nil && status.LastSyncBlock == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		suite.Fail("scheduler did not stop")
	}
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

var _ MetadataSource = stubMetadata(nil)
