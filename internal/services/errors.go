// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
)

// storeError maps a missing row to a NotFound error with the given message.
func storeError(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return fmt.Errorf("database error: %w", err)
}

// ledgerError maps an unknown ledger id to NotFound and anything else to an
// upstream failure.
func ledgerError(err error, format string, args ...interface{}) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Upstream(err, "ledger unavailable")
}
