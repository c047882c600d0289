package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/provenance-backend/internal/ledger/ledgertest"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/testutil"
)

const testChainID = 31337

// fixture is a migrated read model next to an in-memory registry.
type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	store    *repository.Store
	contract *ledgertest.Contract
	mailer   *MemoryMailer
	events   *RecordingPublisher
	notifier *NotificationService

	seller   string
	buyer    string
	stranger string
}

func newFixture(t testing.TB) *fixture {
	db := testutil.NewDB(t)
	store := repository.New(db)
	mailer := &MemoryMailer{}

	return &fixture{
		ctx:      context.Background(),
		db:       db,
		store:    store,
		contract: ledgertest.New(testChainID, testutil.Address(0xc0ffee)),
		mailer:   mailer,
		events:   &RecordingPublisher{},
		notifier: NewNotificationService(store, mailer, "https://app.example.com"),
		seller:   testutil.Address(0xa),
		buyer:    testutil.Address(0xb),
		stranger: testutil.Address(0xc),
	}
}

// withEmail gives address an email on file so notifications are mailed.
func (f *fixture) withEmail(t testing.TB, address, email string) {
	_, err := f.store.EnsureUser(f.ctx, address)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateUser(f.ctx, address, map[string]interface{}{"email": email}))
}

func (f *fixture) notifications(t testing.TB, address string) []models.Notification {
	list, err := f.store.ListNotifications(f.ctx, address, false, 50)
	require.NoError(t, err)
	return list
}

func (f *fixture) auditCount(t testing.TB, action models.AuditAction) int64 {
	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}

func (f *fixture) count(t testing.TB, model interface{}) int64 {
	var count int64
	require.NoError(t, f.db.Model(model).Count(&count).Error)
	return count
}
