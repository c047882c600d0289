// internal/tests/api_test.go
package tests

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/time/rate"

	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/ledger/ledgertest"
	"github.com/javajoker/provenance-backend/internal/middleware"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/router"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/testutil"
)

const chainID = 31337

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Meta    json.RawMessage `json:"meta"`
}

type APITestSuite struct {
	suite.Suite
	ctx      context.Context
	cfg      *config.Config
	store    *repository.Store
	contract *ledgertest.Contract
	events   *services.RecordingPublisher
	router   *gin.Engine

	sellerKey *ecdsa.PrivateKey
	buyerKey  *ecdsa.PrivateKey
	otherKey  *ecdsa.PrivateKey
	seller    string
	buyer     string
	other     string
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize())

	for _, key := range []**ecdsa.PrivateKey{&suite.sellerKey, &suite.buyerKey, &suite.otherKey} {
		k, err := crypto.GenerateKey()
		suite.Require().NoError(err)
		*key = k
	}
	suite.seller = ledger.AddressOf(suite.sellerKey)
	suite.buyer = ledger.AddressOf(suite.buyerKey)
	suite.other = ledger.AddressOf(suite.otherKey)
}

func (suite *APITestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.cfg = &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1},
		Blockchain:  config.BlockchainConfig{ChainID: chainID},
		Sync:        config.SyncConfig{RPCTimeout: time.Second, MaxBlockRange: 100},
		Storage:     config.StorageConfig{MaxUploadSize: 1 << 20},
		Frontend:    config.FrontendConfig{BaseURL: "https://app.example.com"},
	}
	suite.store = repository.New(testutil.NewDB(suite.T()))
	suite.contract = ledgertest.New(chainID, testutil.Address(0xc0ffee))
	suite.events = &services.RecordingPublisher{}

	svc := router.NewServices(router.Dependencies{
		Config:  suite.cfg,
		Store:   suite.store,
		Ledger:  suite.contract,
		Chains:  suite.contract,
		Storage: services.NewStorageServiceWith(services.NewMemoryStore("https://cdn.test"), suite.cfg.Storage.MaxUploadSize, ""),
		Mailer:  &services.MemoryMailer{},
		Events:  suite.events,
	})
	suite.router = router.Initialize(suite.cfg, svc, unlimited())
}

func unlimited() *middleware.Limiters {
	return &middleware.Limiters{
		General: middleware.NewRateLimiter(rate.Inf, 1),
		Auth:    middleware.NewRateLimiter(rate.Inf, 1),
		Upload:  middleware.NewRateLimiter(rate.Inf, 1),
		Sync:    middleware.NewRateLimiter(rate.Inf, 1),
	}
}

func (suite *APITestSuite) do(method, path, token string, body interface{}) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return suite.serve(req)
}

func (suite *APITestSuite) serve(req *http.Request) (int, envelope) {
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (suite *APITestSuite) decode(env envelope, out interface{}) {
	suite.Require().NoError(json.Unmarshal(env.Data, out))
}

func (suite *APITestSuite) login(key *ecdsa.PrivateKey) string {
	message := "Sign in to Product Provenance\nNonce: 7"
	sig, err := ledger.SignMessage(key, message)
	suite.Require().NoError(err)

	code, env := suite.do(http.MethodPost, "/v1/auth", "", map[string]string{
		"address":   ledger.AddressOf(key),
		"message":   message,
		"signature": sig,
	})
	suite.Require().Equal(http.StatusOK, code, env.Error)

	var data struct {
		Token string `json:"token"`
	}
	suite.decode(env, &data)
	suite.Require().NotEmpty(data.Token)
	return data.Token
}

// listed registers a product on the ledger and mirrors it over REST, then
// invoices it to the buyer the same way.
func (suite *APITestSuite) listed(token, name string) (productID, invoiceID uint64) {
	productID, receipt, err := suite.contract.As(suite.seller).RegisterProduct(suite.ctx, "bafy-"+name)
	suite.Require().NoError(err)

	code, env := suite.do(http.MethodPost, "/v1/products", token, map[string]interface{}{
		"product_id":       productID,
		"name":             name,
		"category":         "Watches",
		"transaction_hash": receipt.TxHash,
		"block_number":     receipt.BlockNumber,
	})
	suite.Require().Equal(http.StatusCreated, code, env.Error)

	invoiceID, receipt, err = suite.contract.As(suite.seller).CreateInvoice(suite.ctx, productID, suite.buyer, "0xinvoice", "")
	suite.Require().NoError(err)

	code, env = suite.do(http.MethodPost, "/v1/invoices", token, map[string]interface{}{
		"invoice_id":       invoiceID,
		"amount":           1200.5,
		"currency":         "usd",
		"transaction_hash": receipt.TxHash,
	})
	suite.Require().Equal(http.StatusCreated, code, env.Error)
	return productID, invoiceID
}

func (suite *APITestSuite) initiate(token string, invoiceID uint64) uint64 {
	certID, _, err := suite.contract.As(suite.seller).InitiateTransfer(suite.ctx, invoiceID, "0xcertificate", "")
	suite.Require().NoError(err)

	code, env := suite.do(http.MethodPost, "/v1/transfers", token, map[string]interface{}{
		"certificate_id": certID,
		"invoice_id":     invoiceID,
	})
	suite.Require().Equal(http.StatusCreated, code, env.Error)
	return certID
}

func (suite *APITestSuite) TestHealth() {
	code, _ := suite.do(http.MethodGet, "/health", "", nil)
	suite.Equal(http.StatusOK, code)
}

func (suite *APITestSuite) TestWalletLoginCreatesUser() {
	suite.login(suite.sellerKey)

	code, env := suite.do(http.MethodGet, "/v1/users/"+suite.seller, "", nil)
	suite.Require().Equal(http.StatusOK, code)

	var profile struct {
		User struct {
			Address string `json:"address"`
		} `json:"user"`
	}
	suite.decode(env, &profile)
	suite.Equal(suite.seller, profile.User.Address)
}

func (suite *APITestSuite) TestLoginRejectsForeignSignature() {
	sig, err := ledger.SignMessage(suite.otherKey, "hello")
	suite.Require().NoError(err)

	code, env := suite.do(http.MethodPost, "/v1/auth", "", map[string]string{
		"address":   suite.seller,
		"message":   "hello",
		"signature": sig,
	})
	suite.Equal(http.StatusUnauthorized, code)
	suite.False(env.Success)
	suite.Equal("Invalid signature", env.Error)
}

func (suite *APITestSuite) TestProtectedRoutesRequireToken() {
	code, env := suite.do(http.MethodPost, "/v1/products", "", map[string]interface{}{"product_id": 1, "name": "x"})
	suite.Equal(http.StatusUnauthorized, code)
	suite.Equal("UNAUTHORIZED", env.Code)

	code, _ = suite.do(http.MethodGet, "/v1/notifications", "not-a-jwt", nil)
	suite.Equal(http.StatusUnauthorized, code)
}

func (suite *APITestSuite) TestErrorsAreLocalized() {
	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9")

	code, env := suite.serve(req)
	suite.Equal(http.StatusUnauthorized, code)
	suite.Equal(i18n.T("zh_TW", i18n.KeyAuthRequired), env.Error)
}

func (suite *APITestSuite) TestSaleCompletesOverREST() {
	sellerToken := suite.login(suite.sellerKey)
	buyerToken := suite.login(suite.buyerKey)

	productID, invoiceID := suite.listed(sellerToken, "Vintage Watch")
	certID := suite.initiate(sellerToken, invoiceID)

	code, env := suite.do(http.MethodGet, fmt.Sprintf("/v1/transfers/%d", certID), "", nil)
	suite.Require().Equal(http.StatusOK, code)
	var pending struct {
		SellerSigned bool   `json:"seller_signed"`
		BuyerSigned  bool   `json:"buyer_signed"`
		Phase        string `json:"phase"`
	}
	suite.decode(env, &pending)
	suite.True(pending.SellerSigned)
	suite.False(pending.BuyerSigned)
	suite.Equal("INITIATED", pending.Phase)

	_, err := suite.contract.As(suite.buyer).SignTransfer(suite.ctx, certID)
	suite.Require().NoError(err)

	code, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/transfers/%d/sign", certID), buyerToken, nil)
	suite.Require().Equal(http.StatusOK, code, env.Error)
	var signed struct {
		IsComplete bool   `json:"is_complete"`
		Phase      string `json:"phase"`
	}
	suite.decode(env, &signed)
	suite.True(signed.IsComplete)
	suite.Equal("COMPLETE", signed.Phase)

	code, env = suite.do(http.MethodGet, fmt.Sprintf("/v1/products/%d", productID), "", nil)
	suite.Require().Equal(http.StatusOK, code)
	var product struct {
		CurrentOwner string `json:"current_owner"`
		Status       string `json:"status"`
	}
	suite.decode(env, &product)
	suite.Equal(suite.buyer, product.CurrentOwner)
	suite.Equal("TRANSFERRED", product.Status)

	code, env = suite.do(http.MethodGet, "/v1/notifications?unread_only=true", buyerToken, nil)
	suite.Require().Equal(http.StatusOK, code)
	var inbox services.Inbox
	suite.decode(env, &inbox)
	suite.NotEmpty(inbox.Notifications)
	suite.Equal(int64(len(inbox.Notifications)), inbox.UnreadCount)

	code, _ = suite.do(http.MethodPut, "/v1/notifications/read", buyerToken, nil)
	suite.Require().Equal(http.StatusOK, code)
	code, env = suite.do(http.MethodGet, "/v1/notifications", buyerToken, nil)
	suite.Require().Equal(http.StatusOK, code)
	suite.decode(env, &inbox)
	suite.Zero(inbox.UnreadCount)

	// The synchronizer finds nothing left to mirror.
	code, env = suite.do(http.MethodPost, "/v1/sync", "", map[string]interface{}{
		"chain_id":         chainID,
		"contract_address": suite.contract.ContractAddress(),
	})
	suite.Require().Equal(http.StatusOK, code, env.Error)
	var result services.SyncResult
	suite.decode(env, &result)
	suite.Zero(result.SyncedCount)
	suite.Zero(result.FailedCount)

	code, env = suite.do(http.MethodGet, fmt.Sprintf("/v1/sync/%d", chainID), "", nil)
	suite.Require().Equal(http.StatusOK, code)
	var status struct {
		LastSyncBlock uint64 `json:"last_sync_block"`
	}
	suite.decode(env, &status)
	suite.Equal(result.LastBlock, status.LastSyncBlock)
}

func (suite *APITestSuite) TestStatusMapping() {
	sellerToken := suite.login(suite.sellerKey)
	buyerToken := suite.login(suite.buyerKey)
	otherToken := suite.login(suite.otherKey)
	_, invoiceID := suite.listed(sellerToken, "Camera")
	certID := suite.initiate(sellerToken, invoiceID)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		code   string
	}{
		{"non-party signs", http.MethodPost, fmt.Sprintf("/v1/transfers/%d/sign", certID), otherToken, nil, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{"seller signs twice", http.MethodPost, fmt.Sprintf("/v1/transfers/%d/sign", certID), sellerToken, nil, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{"buyer signature not on ledger", http.MethodPost, fmt.Sprintf("/v1/transfers/%d/sign", certID), buyerToken, nil, http.StatusConflict, "CONFLICT"},
		{"second initiate", http.MethodPost, "/v1/transfers", sellerToken, map[string]interface{}{"certificate_id": certID, "invoice_id": invoiceID}, http.StatusConflict, "CONFLICT"},
		{"unknown product", http.MethodGet, "/v1/products/999", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"malformed id", http.MethodGet, "/v1/products/abc", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/v1/transfers", sellerToken, map[string]interface{}{"certificate_id": certID, "invoice_id": invoiceID, "extra": true}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"short search", http.MethodGet, "/v1/search?q=a", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"foreign profile", http.MethodPut, "/v1/users/" + suite.seller, otherToken, map[string]interface{}{"bio": "hi"}, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{"unsupported chain", http.MethodPost, "/v1/sync", "", map[string]interface{}{"chain_id": 5, "contract_address": suite.contract.ContractAddress()}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"sync never ran", http.MethodGet, "/v1/sync/137", "", nil, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tc := range cases {
		suite.Run(tc.name, func() {
			code, env := suite.do(tc.method, tc.path, tc.token, tc.body)
			suite.Equal(tc.status, code, env.Error)
			suite.False(env.Success)
			suite.Equal(tc.code, env.Code)
		})
	}
}

func (suite *APITestSuite) TestListAndSearchProducts() {
	sellerToken := suite.login(suite.sellerKey)
	suite.listed(sellerToken, "Vintage Watch")
	suite.listed(sellerToken, "Film Camera")

	code, env := suite.do(http.MethodGet, "/v1/products?limit=1&owner="+suite.seller, "", nil)
	suite.Require().Equal(http.StatusOK, code)
	var page []map[string]interface{}
	suite.decode(env, &page)
	suite.Len(page, 1)

	var meta struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	suite.Require().NoError(json.Unmarshal(env.Meta, &meta))
	suite.Equal(int64(2), meta.Pagination.Total)

	code, env = suite.do(http.MethodGet, "/v1/search?q=camera&type=products", "", nil)
	suite.Require().Equal(http.StatusOK, code)
	var results services.SearchResults
	suite.decode(env, &results)
	suite.Require().Len(results.Products, 1)
	suite.Equal("Film Camera", results.Products[0].Name)
	suite.Empty(results.Users)

	code, env = suite.do(http.MethodGet, "/v1/analytics?period=7d", "", nil)
	suite.Require().Equal(http.StatusOK, code, env.Error)
	var summary services.AnalyticsSummary
	suite.decode(env, &summary)
	suite.Equal(int64(2), summary.Totals.Products)
	suite.Equal(int64(2), summary.Totals.Invoices)
}

func (suite *APITestSuite) TestUpload() {
	token := suite.login(suite.sellerKey)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "photo.png")
	suite.Require().NoError(err)
	_, err = part.Write(pngHeader)
	suite.Require().NoError(err)
	suite.Require().NoError(form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	code, env := suite.serve(req)
	suite.Require().Equal(http.StatusCreated, code, env.Error)
	var obj services.StoredObject
	suite.decode(env, &obj)
	suite.NotEmpty(obj.Hash)
	suite.Equal("https://cdn.test/"+obj.Hash, obj.URL)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestRateLimitedRequestsGet429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := middleware.NewRateLimiter(rate.Every(time.Hour), 1)

	r := gin.New()
	r.Use(middleware.I18nMiddleware(), limiter.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d then %d, want 200 then 429", first.Code, second.Code)
	}
	var env envelope
	if err := json.Unmarshal(second.Body.Bytes(), &env); err != nil || env.Code != "RATE_LIMITED" {
		t.Fatalf("unexpected body %s", second.Body.String())
	}
}
