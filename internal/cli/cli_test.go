package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/ledger/ledgertest"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/testutil"
)

const emptyKeccak = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"

type cliFixture struct {
	db       *gorm.DB
	contract *ledgertest.Contract
	objects  *services.MemoryStore
	seller   string
	buyer    string
	env      *Env
}

func newCLIFixture(t *testing.T) *cliFixture {
	f := &cliFixture{
		db:       testutil.NewDB(t),
		contract: ledgertest.New(31337, testutil.Address(0xc0ffee)),
		objects:  services.NewMemoryStore("https://cdn.test"),
		seller:   testutil.Address(0xa),
		buyer:    testutil.Address(0xb),
	}

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := f.objects.Get(strings.TrimPrefix(r.URL.Path, "/"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(gateway.Close)

	cfg := &config.Config{
		Blockchain: config.BlockchainConfig{
			ChainID:         31337,
			ContractAddress: f.contract.ContractAddress(),
		},
		Sync: config.SyncConfig{RPCTimeout: time.Second, MaxBlockRange: 100},
	}

	f.env = &Env{
		LoadConfig: func() (*config.Config, error) { return cfg, nil },
		OpenDB:     func(*config.Config) (*gorm.DB, error) { return f.db, nil },
		DialLedger: func(context.Context, *config.Config) (ledger.Client, error) {
			return f.contract.As(f.seller), nil
		},
		Chains: func(*config.Config) ledger.Provider { return f.contract },
		OpenStorage: func(*config.Config) (*services.StorageService, error) {
			return services.NewStorageServiceWith(f.objects, 0, gateway.URL), nil
		},
	}
	return f
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCommand(f.env)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHashDocument(t *testing.T) {
	f := newCLIFixture(t)
	path := writeFile(t, "empty.pdf", "")

	out, err := f.run(t, "hash-document", path)
	require.NoError(t, err)
	assert.Equal(t, emptyKeccak+"  "+path+"\n", out)

	out, err = f.run(t, "--format", "json", "hash-document", path)
	require.NoError(t, err)
	var hashes []documentHash
	require.NoError(t, json.Unmarshal([]byte(out), &hashes))
	assert.Equal(t, []documentHash{{File: path, Hash: emptyKeccak}}, hashes)
}

func TestRejectsUnknownFormat(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "--format", "yaml", "hash-document", "x")
	assert.ErrorContains(t, err, "invalid format")
}

func TestSaleThroughCommandsThenSync(t *testing.T) {
	f := newCLIFixture(t)
	metadata := writeFile(t, "watch.json", `{"name":"Vintage Watch","category":"Watches","manufacturer":"Omega"}`)
	invoiceDoc := writeFile(t, "invoice.pdf", "%PDF-1.4 invoice")

	out, err := f.run(t, "--format", "json", "register-product", "--metadata", metadata)
	require.NoError(t, err)
	var registered services.RegisteredProduct
	require.NoError(t, json.Unmarshal([]byte(out), &registered))
	assert.Equal(t, uint64(1), registered.ProductID)
	assert.Equal(t, "https://cdn.test/"+registered.MetadataHash, registered.MetadataURI)

	out, err = f.run(t, "create-invoice", "--product-id", "1", "--buyer", f.buyer, "--document", invoiceDoc)
	require.NoError(t, err)
	assert.Contains(t, out, "Created invoice 1 for product 1")

	out, err = f.run(t, "initiate-transfer", "--invoice-id", "1", "--no-storage")
	require.NoError(t, err)
	assert.Contains(t, out, "Initiated certificate 1 for invoice 1")

	// Buyer countersigns from their own wallet.
	_, err = f.contract.As(f.buyer).SignTransfer(context.Background(), 1)
	require.NoError(t, err)

	out, err = f.run(t, "--format", "json", "sync", "--from-block", "0")
	require.NoError(t, err)
	var result services.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3, result.SyncedCount)
	assert.Zero(t, result.FailedCount)

	var product models.Product
	require.NoError(t, f.db.First(&product, "product_id = ?", 1).Error)
	assert.Equal(t, "Vintage Watch", product.Name)
	assert.Equal(t, "Omega", product.Manufacturer)
	assert.Equal(t, f.buyer, product.CurrentOwner)
	assert.Equal(t, models.ProductStatusTransferred, product.Status)

	var invoice models.Invoice
	require.NoError(t, f.db.First(&invoice, "invoice_id = ?", 1).Error)
	assert.True(t, invoice.IsTransferComplete)
	assert.True(t, strings.HasPrefix(invoice.StorageURI, "https://cdn.test/"))
}

func TestSignTransferRequiresCertificate(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "sign-transfer")
	assert.ErrorContains(t, err, "certificate-id")
}
