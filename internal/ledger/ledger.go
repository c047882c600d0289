// Package ledger is the boundary to the product registry contract. Reader and
// Writer are implemented over go-ethereum by EthClient and in memory by
// ledgertest.Contract.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by read accessors for ids the contract does not know.
var ErrNotFound = errors.New("ledger: entity not found")

// SupportedChains lists the networks the registry is deployed on.
var SupportedChains = map[uint64]string{
	1:     "Ethereum Mainnet",
	137:   "Polygon",
	80001: "Polygon Mumbai",
	8453:  "Base",
	84532: "Base Sepolia",
	31337: "Local Hardhat",
}

type Product struct {
	ProductID             uint64
	InitialOwner          string
	CurrentOwner          string
	RegistrationTimestamp time.Time
	MetadataHash          string
	IsRegistered          bool
}

type Invoice struct {
	InvoiceID          uint64
	ProductID          uint64
	Seller             string
	Buyer              string
	InvoiceHash        string
	StorageURI         string
	Timestamp          time.Time
	IsTransferComplete bool
}

type Certificate struct {
	CertificateID   uint64
	ProductID       uint64
	InvoiceID       uint64
	Seller          string
	Buyer           string
	CertificateHash string
	StorageURI      string
	SellerSigned    bool
	BuyerSigned     bool
	Timestamp       time.Time
	IsComplete      bool
}

type AuditTrail struct {
	InvoiceCount  uint64
	TransferCount uint64
}

// Receipt identifies the mined transaction of a write.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

type Reader interface {
	ChainID() uint64
	ContractAddress() string
	LatestBlock(ctx context.Context) (uint64, error)
	// Events returns every registry event in [from, to], ordered by
	// block number and log index.
	Events(ctx context.Context, from, to uint64) ([]Event, error)
	GetProduct(ctx context.Context, productID uint64) (*Product, error)
	GetInvoice(ctx context.Context, invoiceID uint64) (*Invoice, error)
	GetTransferCertificate(ctx context.Context, certificateID uint64) (*Certificate, error)
	GetProductInvoices(ctx context.Context, productID uint64) ([]Invoice, error)
	GetProductTransfers(ctx context.Context, productID uint64) ([]Certificate, error)
	GetProductAuditTrail(ctx context.Context, productID uint64) (*AuditTrail, error)
}

// Writer submits transactions from a single account and waits for them to
// be mined.
type Writer interface {
	From() string
	RegisterProduct(ctx context.Context, metadataHash string) (uint64, *Receipt, error)
	CreateInvoice(ctx context.Context, productID uint64, buyer, invoiceHash, storageURI string) (uint64, *Receipt, error)
	InitiateTransfer(ctx context.Context, invoiceID uint64, certificateHash, storageURI string) (uint64, *Receipt, error)
	SignTransfer(ctx context.Context, certificateID uint64) (*Receipt, error)
}

type Client interface {
	Reader
	Writer
}

// Provider hands out readers for a chain and contract pair.
type Provider interface {
	ForChain(ctx context.Context, chainID uint64, contractAddress string) (Reader, error)
}
