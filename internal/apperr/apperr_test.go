package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("sign transfer: %w", Conflict("seller has already signed certificate %d", 7))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrAuthorization))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, http.StatusConflict, KindOf(err).HTTPStatus())
	assert.Equal(t, "seller has already signed certificate 7", Message(err))
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Upstream(cause, "ledger unavailable")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusBadGateway, KindOf(err).HTTPStatus())
	assert.Equal(t, "ledger unavailable", Message(err))
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).HTTPStatus())
	assert.Equal(t, "internal server error", Message(err))
}
