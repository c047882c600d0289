package ledger

import (
	"sort"
	"time"
)

type EventKind string

const (
	KindProductRegistered    EventKind = "ProductRegistered"
	KindInvoiceCreated       EventKind = "InvoiceCreated"
	KindTransferInitiated    EventKind = "TransferInitiated"
	KindTransferSigned       EventKind = "TransferSigned"
	KindOwnershipTransferred EventKind = "OwnershipTransferred"
)

// EventKinds is the set of events the synchronizer subscribes to.
var EventKinds = []EventKind{
	KindProductRegistered,
	KindInvoiceCreated,
	KindTransferInitiated,
	KindTransferSigned,
	KindOwnershipTransferred,
}

// LogMeta locates an event on the chain.
type LogMeta struct {
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
	BlockTime   time.Time
}

func (m LogMeta) Meta() LogMeta { return m }

// Event is one of the typed variants below.
type Event interface {
	Kind() EventKind
	Meta() LogMeta
}

type ProductRegistered struct {
	LogMeta
	ProductID    uint64
	Owner        string
	MetadataHash string
}

func (ProductRegistered) Kind() EventKind { return KindProductRegistered }

type InvoiceCreated struct {
	LogMeta
	InvoiceID uint64
	ProductID uint64
	Seller    string
	Buyer     string
}

func (InvoiceCreated) Kind() EventKind { return KindInvoiceCreated }

type TransferInitiated struct {
	LogMeta
	CertificateID uint64
	ProductID     uint64
	Seller        string
	Buyer         string
}

func (TransferInitiated) Kind() EventKind { return KindTransferInitiated }

type TransferSigned struct {
	LogMeta
	CertificateID uint64
	Signer        string
	IsComplete    bool
}

func (TransferSigned) Kind() EventKind { return KindTransferSigned }

type OwnershipTransferred struct {
	LogMeta
	ProductID uint64
	From      string
	To        string
}

func (OwnershipTransferred) Kind() EventKind { return KindOwnershipTransferred }

// SortEvents orders events chronologically by (block, log index).
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
}
