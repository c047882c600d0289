// Package ledgertest provides an in-memory product registry with the same
// semantics as the deployed contract. Every write mines one block.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/javajoker/provenance-backend/internal/ledger"
)

// ErrReverted mirrors the RPC error of a failed require().
var ErrReverted = errors.New("execution reverted")

// GenesisTime is the timestamp of block 0; each block adds 12 seconds.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type Contract struct {
	mu sync.Mutex

	chainID uint64
	address string
	block   uint64

	products         map[uint64]*ledger.Product
	invoices         map[uint64]*ledger.Invoice
	certificates     map[uint64]*ledger.Certificate
	certByInvoice    map[uint64]uint64
	productInvoices  map[uint64][]uint64
	productTransfers map[uint64][]uint64

	nextProductID     uint64
	nextInvoiceID     uint64
	nextCertificateID uint64

	events    []ledger.Event
	readFails map[string]error
	eventsErr error
	calls     map[string]int
}

func New(chainID uint64, address string) *Contract {
	return &Contract{
		chainID:           chainID,
		address:           ledger.NormalizeAddress(address),
		products:          make(map[uint64]*ledger.Product),
		invoices:          make(map[uint64]*ledger.Invoice),
		certificates:      make(map[uint64]*ledger.Certificate),
		certByInvoice:     make(map[uint64]uint64),
		productInvoices:   make(map[uint64][]uint64),
		productTransfers:  make(map[uint64][]uint64),
		nextProductID:     1,
		nextInvoiceID:     1,
		nextCertificateID: 1,
		readFails:         make(map[string]error),
		calls:             make(map[string]int),
	}
}

// As returns a writer that signs transactions as from.
func (c *Contract) As(from string) *Session {
	return &Session{Contract: c, from: ledger.NormalizeAddress(from)}
}

// FailReads makes the named read accessor (e.g. "GetInvoice") return err.
// A nil err clears the failure.
func (c *Contract) FailReads(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.readFails, method)
		return
	}
	c.readFails[method] = err
}

// FailEvents makes Events and LatestBlock return err until cleared.
func (c *Contract) FailEvents(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsErr = err
}

// MineEmptyBlocks advances the chain without emitting events.
func (c *Contract) MineEmptyBlocks(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block += n
}

// Calls reports how often a read accessor was invoked.
func (c *Contract) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Contract) BlockTime(block uint64) time.Time {
	return GenesisTime.Add(time.Duration(block) * 12 * time.Second)
}

func (c *Contract) ChainID() uint64 { return c.chainID }

func (c *Contract) ContractAddress() string { return c.address }

// ForChain lets the contract act as its own ledger.Provider.
func (c *Contract) ForChain(_ context.Context, chainID uint64, contractAddress string) (ledger.Reader, error) {
	if chainID != c.chainID || !ledger.SameAddress(contractAddress, c.address) {
		return nil, fmt.Errorf("%w: %d/%s", ledger.ErrUnsupportedChain, chainID, contractAddress)
	}
	return c, nil
}

func (c *Contract) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventsErr != nil {
		return 0, c.eventsErr
	}
	return c.block, nil
}

func (c *Contract) Events(ctx context.Context, from, to uint64) ([]ledger.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["Events"]++
	if c.eventsErr != nil {
		return nil, c.eventsErr
	}

	var out []ledger.Event
	for _, ev := range c.events {
		if b := ev.Meta().BlockNumber; b >= from && b <= to {
			out = append(out, ev)
		}
	}
	ledger.SortEvents(out)
	return out, nil
}

func (c *Contract) read(method string) error {
	c.calls[method]++
	return c.readFails[method]
}

func (c *Contract) GetProduct(ctx context.Context, productID uint64) (*ledger.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := c.products[productID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *Contract) GetInvoice(ctx context.Context, invoiceID uint64) (*ledger.Invoice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetInvoice"); err != nil {
		return nil, err
	}
	inv, ok := c.invoices[invoiceID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (c *Contract) GetTransferCertificate(ctx context.Context, certificateID uint64) (*ledger.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetTransferCertificate"); err != nil {
		return nil, err
	}
	cert, ok := c.certificates[certificateID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

func (c *Contract) GetProductInvoices(ctx context.Context, productID uint64) ([]ledger.Invoice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetProductInvoices"); err != nil {
		return nil, err
	}
	out := make([]ledger.Invoice, 0, len(c.productInvoices[productID]))
	for _, id := range c.productInvoices[productID] {
		out = append(out, *c.invoices[id])
	}
	return out, nil
}

func (c *Contract) GetProductTransfers(ctx context.Context, productID uint64) ([]ledger.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetProductTransfers"); err != nil {
		return nil, err
	}
	out := make([]ledger.Certificate, 0, len(c.productTransfers[productID]))
	for _, id := range c.productTransfers[productID] {
		out = append(out, *c.certificates[id])
	}
	return out, nil
}

func (c *Contract) GetProductAuditTrail(ctx context.Context, productID uint64) (*ledger.AuditTrail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read("GetProductAuditTrail"); err != nil {
		return nil, err
	}
	if _, ok := c.products[productID]; !ok {
		return nil, ledger.ErrNotFound
	}
	return &ledger.AuditTrail{
		InvoiceCount:  uint64(len(c.productInvoices[productID])),
		TransferCount: uint64(len(c.productTransfers[productID])),
	}, nil
}

// mine starts a new block and returns the metadata of its first log.
func (c *Contract) mine() (ledger.LogMeta, *ledger.Receipt) {
	c.block++
	meta := ledger.LogMeta{
		BlockNumber: c.block,
		TxHash:      fmt.Sprintf("0x%064x", c.block),
		BlockTime:   c.BlockTime(c.block),
	}
	return meta, &ledger.Receipt{TxHash: meta.TxHash, BlockNumber: meta.BlockNumber}
}

func reverted(reason string) error {
	return fmt.Errorf("%w: %s", ErrReverted, reason)
}

// Session is a ledger.Client bound to one sending account.
type Session struct {
	*Contract
	from string
}

var _ ledger.Client = (*Session)(nil)

func (s *Session) From() string { return s.from }

func (s *Session) RegisterProduct(ctx context.Context, metadataHash string) (uint64, *ledger.Receipt, error) {
	c := s.Contract
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, receipt := c.mine()
	id := c.nextProductID
	c.nextProductID++
	c.products[id] = &ledger.Product{
		ProductID:             id,
		InitialOwner:          s.from,
		CurrentOwner:          s.from,
		RegistrationTimestamp: meta.BlockTime,
		MetadataHash:          metadataHash,
		IsRegistered:          true,
	}
	c.events = append(c.events, ledger.ProductRegistered{
		LogMeta:      meta,
		ProductID:    id,
		Owner:        s.from,
		MetadataHash: metadataHash,
	})
	return id, receipt, nil
}

func (s *Session) CreateInvoice(ctx context.Context, productID uint64, buyer, invoiceHash, storageURI string) (uint64, *ledger.Receipt, error) {
	c := s.Contract
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return 0, nil, reverted("Product does not exist")
	}
	if p.CurrentOwner != s.from {
		return 0, nil, reverted("Only product owner can create invoice")
	}

	meta, receipt := c.mine()
	id := c.nextInvoiceID
	c.nextInvoiceID++
	buyer = ledger.NormalizeAddress(buyer)
	c.invoices[id] = &ledger.Invoice{
		InvoiceID:   id,
		ProductID:   productID,
		Seller:      s.from,
		Buyer:       buyer,
		InvoiceHash: invoiceHash,
		StorageURI:  storageURI,
		Timestamp:   meta.BlockTime,
	}
	c.productInvoices[productID] = append(c.productInvoices[productID], id)
	c.events = append(c.events, ledger.InvoiceCreated{
		LogMeta:   meta,
		InvoiceID: id,
		ProductID: productID,
		Seller:    s.from,
		Buyer:     buyer,
	})
	return id, receipt, nil
}

func (s *Session) InitiateTransfer(ctx context.Context, invoiceID uint64, certificateHash, storageURI string) (uint64, *ledger.Receipt, error) {
	c := s.Contract
	c.mu.Lock()
	defer c.mu.Unlock()

	inv, ok := c.invoices[invoiceID]
	switch {
	case !ok:
		return 0, nil, reverted("Invoice does not exist")
	case inv.Seller != s.from:
		return 0, nil, reverted("Only seller can initiate transfer")
	case inv.IsTransferComplete:
		return 0, nil, reverted("Transfer already complete")
	}
	if _, exists := c.certByInvoice[invoiceID]; exists {
		return 0, nil, reverted("Transfer already initiated")
	}

	meta, receipt := c.mine()
	id := c.nextCertificateID
	c.nextCertificateID++
	c.certificates[id] = &ledger.Certificate{
		CertificateID:   id,
		ProductID:       inv.ProductID,
		InvoiceID:       invoiceID,
		Seller:          inv.Seller,
		Buyer:           inv.Buyer,
		CertificateHash: certificateHash,
		StorageURI:      storageURI,
		SellerSigned:    true,
		Timestamp:       meta.BlockTime,
	}
	c.certByInvoice[invoiceID] = id
	c.productTransfers[inv.ProductID] = append(c.productTransfers[inv.ProductID], id)
	c.events = append(c.events, ledger.TransferInitiated{
		LogMeta:       meta,
		CertificateID: id,
		ProductID:     inv.ProductID,
		Seller:        inv.Seller,
		Buyer:         inv.Buyer,
	})
	return id, receipt, nil
}

func (s *Session) SignTransfer(ctx context.Context, certificateID uint64) (*ledger.Receipt, error) {
	c := s.Contract
	c.mu.Lock()
	defer c.mu.Unlock()

	cert, ok := c.certificates[certificateID]
	switch {
	case !ok:
		return nil, reverted("Certificate does not exist")
	case cert.IsComplete:
		return nil, reverted("Transfer already complete")
	case s.from == cert.Seller:
		if cert.SellerSigned {
			return nil, reverted("Seller already signed")
		}
		cert.SellerSigned = true
	case s.from == cert.Buyer:
		if cert.BuyerSigned {
			return nil, reverted("Buyer already signed")
		}
		cert.BuyerSigned = true
	default:
		return nil, reverted("Not authorized to sign")
	}

	meta, receipt := c.mine()
	cert.IsComplete = cert.SellerSigned && cert.BuyerSigned
	c.events = append(c.events, ledger.TransferSigned{
		LogMeta:       meta,
		CertificateID: certificateID,
		Signer:        s.from,
		IsComplete:    cert.IsComplete,
	})

	if cert.IsComplete {
		c.products[cert.ProductID].CurrentOwner = cert.Buyer
		c.invoices[cert.InvoiceID].IsTransferComplete = true

		owner := meta
		owner.LogIndex = 1
		c.events = append(c.events, ledger.OwnershipTransferred{
			LogMeta:   owner,
			ProductID: cert.ProductID,
			From:      cert.Seller,
			To:        cert.Buyer,
		})
	}
	return receipt, nil
}
