// internal/models/user.go
package models

import (
	"time"
)

// User is keyed by the lowercase wallet address.
type User struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	Username  string    `json:"username" gorm:"size:50;index"`
	Email     string    `json:"email" gorm:"size:255;index"`
	Bio       string    `json:"bio" gorm:"type:text"`
	Website   string    `json:"website" gorm:"size:255"`
	Avatar    string    `json:"avatar" gorm:"size:255"`
	Verified  bool      `json:"verified" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName prefers the username and falls back to a shortened address.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if len(u.Address) > 10 {
		return u.Address[:6] + "..." + u.Address[len(u.Address)-4:]
	}
	return u.Address
}
