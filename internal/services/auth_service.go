// internal/services/auth_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/utils"
)

type AuthService struct {
	store *repository.Store
	cfg   *config.Config
}

// WalletLoginRequest carries a personal_sign signature of Message by Address.
type WalletLoginRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Message   string `json:"message" validate:"required,max=2048"`
	Signature string `json:"signature" validate:"required"`
}

type AuthResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"` // in seconds
}

func NewAuthService(store *repository.Store, cfg *config.Config) *AuthService {
	return &AuthService{
		store: store,
		cfg:   cfg,
	}
}

// ErrInvalidSignature is returned when the signature does not recover to the
// claimed address.
var ErrInvalidSignature = errors.New("invalid signature")

// Login verifies a wallet signature, find-or-creates the user and issues an
// access token.
func (s *AuthService) Login(ctx context.Context, req *WalletLoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	ok, err := ledger.VerifySignature(req.Address, req.Message, req.Signature)
	if err != nil {
		return nil, apperr.Validation("malformed signature: %v", err)
	}
	if !ok {
		logrus.WithField("address", req.Address).Warn("Wallet signature mismatch")
		return nil, ErrInvalidSignature
	}

	user, err := s.store.EnsureUser(ctx, req.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	token, expiresAt, err := utils.GenerateJWT(user.Address, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &AuthResponse{
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	}, nil
}
