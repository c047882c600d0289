package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

//go:embed product_registry.abi.json
var registryABIJSON string

var (
	ErrReadOnly         = errors.New("ledger: client has no signing key")
	ErrTxReverted       = errors.New("ledger: transaction reverted")
	ErrUnsupportedChain = errors.New("ledger: unsupported chain")
)

// RegistryABI parses the embedded contract ABI.
func RegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(registryABIJSON))
}

type EthOptions struct {
	RPCURL          string
	ChainID         uint64
	ContractAddress string
	PrivateKey      string
	CallTimeout     time.Duration
	TxTimeout       time.Duration
}

// EthClient talks to the registry contract over JSON-RPC.
type EthClient struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract *bind.BoundContract
	address  common.Address
	chainID  uint64

	callTimeout time.Duration
	txTimeout   time.Duration

	mu   sync.Mutex // serializes nonces
	auth *bind.TransactOpts
	from string
}

func DialEth(ctx context.Context, opts EthOptions) (*EthClient, error) {
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", opts.ContractAddress)
	}

	parsed, err := RegistryABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", opts.RPCURL, err)
	}

	c := &EthClient{
		eth:         eth,
		abi:         parsed,
		address:     common.HexToAddress(opts.ContractAddress),
		chainID:     opts.ChainID,
		callTimeout: opts.CallTimeout,
		txTimeout:   opts.TxTimeout,
	}
	if c.callTimeout <= 0 {
		c.callTimeout = 20 * time.Second
	}
	if c.txTimeout <= 0 {
		c.txTimeout = 2 * time.Minute
	}
	c.contract = bind.NewBoundContract(c.address, parsed, eth, eth, eth)

	idCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	remoteID, err := eth.ChainID(idCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if opts.ChainID != 0 && remoteID.Uint64() != opts.ChainID {
		eth.Close()
		return nil, fmt.Errorf("rpc endpoint serves chain %d, expected %d", remoteID.Uint64(), opts.ChainID)
	}
	c.chainID = remoteID.Uint64()

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, remoteID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("failed to create transactor: %w", err)
		}
		c.auth = auth
		c.from = normalize(auth.From)
	}

	return c, nil
}

func (c *EthClient) Close() {
	c.eth.Close()
}

func (c *EthClient) ChainID() uint64 { return c.chainID }

func (c *EthClient) ContractAddress() string { return normalize(c.address) }

func (c *EthClient) From() string { return c.from }

func (c *EthClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *EthClient) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

func (c *EthClient) Events(ctx context.Context, from, to uint64) ([]Event, error) {
	topics := make([]common.Hash, 0, len(EventKinds))
	for _, kind := range EventKinds {
		topics = append(topics, c.abi.Events[string(kind)].ID)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{topics},
	}

	filterCtx, cancel := c.withTimeout(ctx)
	logs, err := c.eth.FilterLogs(filterCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs %d-%d: %w", from, to, err)
	}

	blockTimes := make(map[uint64]time.Time)
	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}

		blockTime, ok := blockTimes[lg.BlockNumber]
		if !ok {
			blockTime, err = c.blockTime(ctx, lg.BlockNumber)
			if err != nil {
				return nil, err
			}
			blockTimes[lg.BlockNumber] = blockTime
		}

		meta := LogMeta{
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			TxHash:      lg.TxHash.Hex(),
			BlockTime:   blockTime,
		}
		event, err := c.decodeLog(lg, meta)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"chain_id": c.chainID,
				"block":    lg.BlockNumber,
				"tx_hash":  meta.TxHash,
			}).WithError(err).Warn("Skipping undecodable registry log")
			continue
		}
		events = append(events, event)
	}

	SortEvents(events)
	return events, nil
}

func (c *EthClient) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch header %d: %w", number, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// Raw log payloads. Field names follow the ABI argument names.
type (
	productRegisteredLog struct {
		ProductId    *big.Int
		Owner        common.Address
		MetadataHash string
	}
	invoiceCreatedLog struct {
		InvoiceId *big.Int
		ProductId *big.Int
		Seller    common.Address
		Buyer     common.Address
	}
	transferInitiatedLog struct {
		CertificateId *big.Int
		ProductId     *big.Int
		Seller        common.Address
		Buyer         common.Address
	}
	transferSignedLog struct {
		CertificateId *big.Int
		Signer        common.Address
		IsComplete    bool
	}
	ownershipTransferredLog struct {
		ProductId *big.Int
		From      common.Address
		To        common.Address
	}
)

func (c *EthClient) decodeLog(lg types.Log, meta LogMeta) (Event, error) {
	if len(lg.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}
	ev, err := c.abi.EventByID(lg.Topics[0])
	if err != nil {
		return nil, err
	}

	switch EventKind(ev.Name) {
	case KindProductRegistered:
		var raw productRegisteredLog
		if err := c.contract.UnpackLog(&raw, ev.Name, lg); err != nil {
			return nil, err
		}
		id, err := toUint64(raw.ProductId)
		if err != nil {
			return nil, err
		}
		return ProductRegistered{LogMeta: meta, ProductID: id, Owner: normalize(raw.Owner), MetadataHash: raw.MetadataHash}, nil

	case KindInvoiceCreated:
		var raw invoiceCreatedLog
		if err := c.contract.UnpackLog(&raw, ev.Name, lg); err != nil {
			return nil, err
		}
		ids, err := toUint64s(raw.InvoiceId, raw.ProductId)
		if err != nil {
			return nil, err
		}
		return InvoiceCreated{
			LogMeta:   meta,
			InvoiceID: ids[0],
			ProductID: ids[1],
			Seller:    normalize(raw.Seller),
			Buyer:     normalize(raw.Buyer),
		}, nil

	case KindTransferInitiated:
		var raw transferInitiatedLog
		if err := c.contract.UnpackLog(&raw, ev.Name, lg); err != nil {
			return nil, err
		}
		ids, err := toUint64s(raw.CertificateId, raw.ProductId)
		if err != nil {
			return nil, err
		}
		return TransferInitiated{
			LogMeta:       meta,
			CertificateID: ids[0],
			ProductID:     ids[1],
			Seller:        normalize(raw.Seller),
			Buyer:         normalize(raw.Buyer),
		}, nil

	case KindTransferSigned:
		var raw transferSignedLog
		if err := c.contract.UnpackLog(&raw, ev.Name, lg); err != nil {
			return nil, err
		}
		id, err := toUint64(raw.CertificateId)
		if err != nil {
			return nil, err
		}
		return TransferSigned{LogMeta: meta, CertificateID: id, Signer: normalize(raw.Signer), IsComplete: raw.IsComplete}, nil

	case KindOwnershipTransferred:
		var raw ownershipTransferredLog
		if err := c.contract.UnpackLog(&raw, ev.Name, lg); err != nil {
			return nil, err
		}
		id, err := toUint64(raw.ProductId)
		if err != nil {
			return nil, err
		}
		return OwnershipTransferred{LogMeta: meta, ProductID: id, From: normalize(raw.From), To: normalize(raw.To)}, nil
	}

	return nil, fmt.Errorf("unexpected event %s", ev.Name)
}

// Contract structs, in ABI component order.
type (
	productTuple struct {
		ProductId             *big.Int
		InitialOwner          common.Address
		CurrentOwner          common.Address
		RegistrationTimestamp *big.Int
		MetadataHash          string
		IsRegistered          bool
	}
	invoiceTuple struct {
		InvoiceId          *big.Int
		ProductId          *big.Int
		Seller             common.Address
		Buyer              common.Address
		InvoiceHash        string
		LighthouseURI      string
		Timestamp          *big.Int
		IsTransferComplete bool
	}
	certificateTuple struct {
		CertificateId   *big.Int
		ProductId       *big.Int
		InvoiceId       *big.Int
		Seller          common.Address
		Buyer           common.Address
		CertificateHash string
		LighthouseURI   string
		SellerSigned    bool
		BuyerSigned     bool
		Timestamp       *big.Int
		IsComplete      bool
	}
)

func (c *EthClient) call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return fmt.Errorf("%s: %w", method, ErrNotFound)
		}
		return fmt.Errorf("ledger call %s: %w", method, err)
	}
	return nil
}

func (c *EthClient) GetProduct(ctx context.Context, productID uint64) (*Product, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getProduct", new(big.Int).SetUint64(productID)); err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(productTuple)).(*productTuple)
	if !raw.IsRegistered {
		return nil, ErrNotFound
	}
	return &Product{
		ProductID:             productID,
		InitialOwner:          normalize(raw.InitialOwner),
		CurrentOwner:          normalize(raw.CurrentOwner),
		RegistrationTimestamp: unixTime(raw.RegistrationTimestamp),
		MetadataHash:          raw.MetadataHash,
		IsRegistered:          raw.IsRegistered,
	}, nil
}

func (c *EthClient) GetInvoice(ctx context.Context, invoiceID uint64) (*Invoice, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getInvoice", new(big.Int).SetUint64(invoiceID)); err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(invoiceTuple)).(*invoiceTuple)
	if raw.InvoiceId == nil || raw.InvoiceId.Sign() == 0 {
		return nil, ErrNotFound
	}
	return invoiceFromTuple(raw)
}

func (c *EthClient) GetTransferCertificate(ctx context.Context, certificateID uint64) (*Certificate, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getTransferCertificate", new(big.Int).SetUint64(certificateID)); err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new(certificateTuple)).(*certificateTuple)
	if raw.CertificateId == nil || raw.CertificateId.Sign() == 0 {
		return nil, ErrNotFound
	}
	return certificateFromTuple(raw)
}

func (c *EthClient) GetProductInvoices(ctx context.Context, productID uint64) ([]Invoice, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getProductInvoices", new(big.Int).SetUint64(productID)); err != nil {
		return nil, err
	}
	raws := *abi.ConvertType(out[0], new([]invoiceTuple)).(*[]invoiceTuple)

	invoices := make([]Invoice, 0, len(raws))
	for _, raw := range raws {
		inv, err := invoiceFromTuple(raw)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

func (c *EthClient) GetProductTransfers(ctx context.Context, productID uint64) ([]Certificate, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getProductTransfers", new(big.Int).SetUint64(productID)); err != nil {
		return nil, err
	}
	raws := *abi.ConvertType(out[0], new([]certificateTuple)).(*[]certificateTuple)

	certs := make([]Certificate, 0, len(raws))
	for _, raw := range raws {
		cert, err := certificateFromTuple(raw)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *cert)
	}
	return certs, nil
}

func (c *EthClient) GetProductAuditTrail(ctx context.Context, productID uint64) (*AuditTrail, error) {
	var out []interface{}
	if err := c.call(ctx, &out, "getProductAuditTrail", new(big.Int).SetUint64(productID)); err != nil {
		return nil, err
	}
	invoiceCount := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	transferCount := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)

	counts, err := toUint64s(invoiceCount, transferCount)
	if err != nil {
		return nil, err
	}
	return &AuditTrail{InvoiceCount: counts[0], TransferCount: counts[1]}, nil
}

func (c *EthClient) RegisterProduct(ctx context.Context, metadataHash string) (uint64, *Receipt, error) {
	receipt, err := c.transact(ctx, "registerProduct", metadataHash)
	if err != nil {
		return 0, nil, err
	}
	id, err := c.idFromReceipt(receipt, KindProductRegistered)
	return id, toReceipt(receipt), err
}

func (c *EthClient) CreateInvoice(ctx context.Context, productID uint64, buyer, invoiceHash, storageURI string) (uint64, *Receipt, error) {
	if !common.IsHexAddress(buyer) {
		return 0, nil, fmt.Errorf("invalid buyer address %q", buyer)
	}
	receipt, err := c.transact(ctx, "createInvoice",
		new(big.Int).SetUint64(productID), common.HexToAddress(buyer), invoiceHash, storageURI)
	if err != nil {
		return 0, nil, err
	}
	id, err := c.idFromReceipt(receipt, KindInvoiceCreated)
	return id, toReceipt(receipt), err
}

func (c *EthClient) InitiateTransfer(ctx context.Context, invoiceID uint64, certificateHash, storageURI string) (uint64, *Receipt, error) {
	receipt, err := c.transact(ctx, "initiateTransfer",
		new(big.Int).SetUint64(invoiceID), certificateHash, storageURI)
	if err != nil {
		return 0, nil, err
	}
	id, err := c.idFromReceipt(receipt, KindTransferInitiated)
	return id, toReceipt(receipt), err
}

func (c *EthClient) SignTransfer(ctx context.Context, certificateID uint64) (*Receipt, error) {
	receipt, err := c.transact(ctx, "signTransfer", new(big.Int).SetUint64(certificateID))
	if err != nil {
		return nil, err
	}
	return toReceipt(receipt), nil
}

func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	if c.auth == nil {
		return nil, ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger transact %s: %w", method, err)
	}

	logrus.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
	}).Info("Submitted registry transaction")

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrTxReverted)
	}
	return receipt, nil
}

// idFromReceipt reads the first indexed id of the event emitted by a write.
func (c *EthClient) idFromReceipt(receipt *types.Receipt, kind EventKind) (uint64, error) {
	eventID := c.abi.Events[string(kind)].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) < 2 || lg.Topics[0] != eventID {
			continue
		}
		return toUint64(new(big.Int).SetBytes(lg.Topics[1].Bytes()))
	}
	return 0, fmt.Errorf("receipt %s has no %s log", receipt.TxHash.Hex(), kind)
}

func toReceipt(r *types.Receipt) *Receipt {
	return &Receipt{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber.Uint64()}
}

func invoiceFromTuple(raw invoiceTuple) (*Invoice, error) {
	ids, err := toUint64s(raw.InvoiceId, raw.ProductId)
	if err != nil {
		return nil, err
	}
	return &Invoice{
		InvoiceID:          ids[0],
		ProductID:          ids[1],
		Seller:             normalize(raw.Seller),
		Buyer:              normalize(raw.Buyer),
		InvoiceHash:        raw.InvoiceHash,
		StorageURI:         raw.LighthouseURI,
		Timestamp:          unixTime(raw.Timestamp),
		IsTransferComplete: raw.IsTransferComplete,
	}, nil
}

func certificateFromTuple(raw certificateTuple) (*Certificate, error) {
	ids, err := toUint64s(raw.CertificateId, raw.ProductId, raw.InvoiceId)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		CertificateID:   ids[0],
		ProductID:       ids[1],
		InvoiceID:       ids[2],
		Seller:          normalize(raw.Seller),
		Buyer:           normalize(raw.Buyer),
		CertificateHash: raw.CertificateHash,
		StorageURI:      raw.LighthouseURI,
		SellerSigned:    raw.SellerSigned,
		BuyerSigned:     raw.BuyerSigned,
		Timestamp:       unixTime(raw.Timestamp),
		IsComplete:      raw.IsComplete,
	}, nil
}

func toUint64(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("value %v does not fit in uint64", v)
	}
	return v.Uint64(), nil
}

func toUint64s(vs ...*big.Int) ([]uint64, error) {
	out := make([]uint64, len(vs))
	for i, v := range vs {
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
