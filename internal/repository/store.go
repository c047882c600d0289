// internal/repository/store.go
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/database"
)

// Store is the read-model gateway shared by the REST write paths and the
// synchronizer. Every write to a ledger entity is keyed by its chain id and
// safe to repeat.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for ad-hoc read queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn against a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return database.WithTransaction(s.conn(ctx), func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
