// internal/repository/user_repo.go
package repository

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/javajoker/provenance-backend/internal/models"
)

// EnsureUser returns the user for address, creating an empty profile when
// none exists yet.
func (s *Store) EnsureUser(ctx context.Context, address string) (*models.User, error) {
	address = strings.ToLower(address)

	err := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).
		Create(&models.User{Address: address}).Error
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, address)
}

func (s *Store) GetUser(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "address = ?", strings.ToLower(address)).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, address string, updates map[string]interface{}) error {
	return s.conn(ctx).Model(&models.User{}).
		Where("address = ?", strings.ToLower(address)).
		Updates(updates).Error
}

// SearchUsers matches query against usernames and address prefixes.
func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var users []models.User
	err := s.conn(ctx).
		Where("LOWER(username) LIKE ? OR address LIKE ?", pattern, strings.ToLower(query)+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
