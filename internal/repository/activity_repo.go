// internal/repository/activity_repo.go
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/provenance-backend/internal/models"
)

func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.conn(ctx).Create(entry).Error
}

func (s *Store) ListProductAuditLogs(ctx context.Context, productID uint64, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.conn(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (s *Store) CountAuditLogs(ctx context.Context, action models.AuditAction, productID uint64) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.AuditLog{}).
		Where("action = ? AND product_id = ?", action, productID).
		Count(&count).Error
	return count, err
}

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.conn(ctx).Create(n).Error
}

func (s *Store) ListNotifications(ctx context.Context, address string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := s.conn(ctx).Where("user_address = ?", strings.ToLower(address))
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

func (s *Store) CountUnreadNotifications(ctx context.Context, address string) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Notification{}).
		Where("user_address = ? AND read = ?", strings.ToLower(address), false).
		Count(&count).Error
	return count, err
}

// MarkNotificationsRead marks the given notifications of address as read,
// or all of them when ids is empty.
func (s *Store) MarkNotificationsRead(ctx context.Context, address string, ids []uuid.UUID, at time.Time) (int64, error) {
	query := s.conn(ctx).Model(&models.Notification{}).
		Where("user_address = ? AND read = ?", strings.ToLower(address), false)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	res := query.Updates(map[string]interface{}{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
