// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
)

const inboxLimit = 50

type NotificationService struct {
	store  *repository.Store
	mailer Mailer
	appURL string
}

// Notice is a single in-app message addressed to one user.
type Notice struct {
	To      string
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

func NewNotificationService(store *repository.Store, mailer Mailer, appURL string) *NotificationService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &NotificationService{
		store:  store,
		mailer: mailer,
		appURL: appURL,
	}
}

// Audit appends an audit row through tx, so callers can make it part of the
// transaction that applied the change.
func (s *NotificationService) Audit(ctx context.Context, tx *repository.Store, entry *models.AuditLog) error {
	if tx == nil {
		tx = s.store
	}
	if err := tx.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log %s: %w", entry.Action, err)
	}
	return nil
}

// Notify stores the notice and emails the recipient when they have an
// address on file. Failures are logged and never returned.
func (s *NotificationService) Notify(ctx context.Context, notice Notice) {
	log := logrus.WithFields(logrus.Fields{
		"user": notice.To,
		"type": notice.Type,
	})

	user, err := s.store.EnsureUser(ctx, notice.To)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve notification recipient")
		return
	}

	n := &models.Notification{
		UserAddress: user.Address,
		Type:        notice.Type,
		Title:       notice.Title,
		Message:     notice.Message,
		Data:        notice.Data,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		log.WithError(err).Warn("Failed to create notification")
		return
	}

	if user.Email == "" {
		return
	}

	email, err := RenderNotificationEmail(s.appURL, n)
	if err != nil {
		log.WithError(err).Warn("Failed to render notification email")
		return
	}
	if err := s.mailer.Send(ctx, user.Email, email.Subject, email.HTML); err != nil {
		log.WithError(err).Warn("Failed to send notification email")
	}
}

func (s *NotificationService) Inbox(ctx context.Context, address string, unreadOnly bool) (*Inbox, error) {
	notifications, err := s.store.ListNotifications(ctx, address, unreadOnly, inboxLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	unread, err := s.store.CountUnreadNotifications(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	return &Inbox{Notifications: notifications, UnreadCount: unread}, nil
}

// MarkRead marks the listed notifications as read, or every unread one when
// ids is empty.
func (s *NotificationService) MarkRead(ctx context.Context, address string, ids []string) (int64, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return 0, apperr.Validation("invalid notification id %q", id)
		}
		parsed = append(parsed, u)
	}

	count, err := s.store.MarkNotificationsRead(ctx, address, parsed, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return count, nil
}

// productLabel returns the display name of a product for notification text.
func productLabel(ctx context.Context, store *repository.Store, productID uint64) string {
	product, err := store.GetProduct(ctx, productID)
	if err != nil || product.Name == "" {
		return fmt.Sprintf("Product #%d", productID)
	}
	return product.Name
}
