package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/provenance-backend/internal/apperr"
)

func TestKeccak256Hex(t *testing.T) {
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex(nil))

	sum, err := Keccak256Reader(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, Keccak256Hex([]byte("hello")), sum)
	assert.True(t, ValidateDocumentHash([]byte("hello"), sum))
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")

	token, expiresAt, err := GenerateJWT("0xABCDEF0000000000000000000000000000000001", 1)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", claims.Address)

	SetJWTSecret("other-secret")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

type sampleRequest struct {
	Address string `validate:"required,eth_addr"`
	TxHash  string `validate:"omitempty,tx_hash"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sampleRequest{Address: "0x0000000000000000000000000000000000000001"}))

	err := ValidateStruct(&sampleRequest{Address: "nope", TxHash: "0x12"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	details := GetValidationErrors(err)
	require.Len(t, details, 2)
	assert.Equal(t, "address", details[0].Field)
	assert.Equal(t, "eth_addr", details[0].Tag)
	assert.Equal(t, "tx_hash", details[1].Tag)
}

func TestHandleServiceErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperr.Authorization("no"), http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{apperr.NotFound("gone"), http.StatusNotFound, "NOT_FOUND"},
		{apperr.Conflict("dup"), http.StatusConflict, "CONFLICT"},
		{apperr.Upstream(errors.New("rpc"), "ledger unavailable"), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		HandleServiceError(c, tc.err)

		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Contains(t, w.Body.String(), `"success":false`)
		assert.Contains(t, w.Body.String(), `"code":"`+tc.code+`"`)
	}
}
