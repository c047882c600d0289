// internal/services/user_service.go
package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/utils"
)

const profileListLimit = 10

type UserService struct {
	store *repository.Store
}

type UpdateUserProfileRequest struct {
	Username *string `json:"username,omitempty" validate:"omitempty,username"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Bio      *string `json:"bio,omitempty" validate:"omitempty,max=500"`
	Website  *string `json:"website,omitempty" validate:"omitempty,url"`
	Avatar   *string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// UserProfile is a user with the activity shown on their profile page.
type UserProfile struct {
	User                *models.User                 `json:"user"`
	OwnedProducts       []models.Product             `json:"owned_products"`
	SentInvoices        []models.Invoice             `json:"sent_invoices"`
	ReceivedInvoices    []models.Invoice             `json:"received_invoices"`
	Transfers           []models.TransferCertificate `json:"transfers"`
	UnreadNotifications []models.Notification        `json:"unread_notifications"`
}

func NewUserService(store *repository.Store) *UserService {
	return &UserService{store: store}
}

// EnsureUsers find-or-creates the users behind addresses concurrently and
// returns them in the same order.
func EnsureUsers(ctx context.Context, store *repository.Store, addresses ...string) ([]*models.User, error) {
	users := make([]*models.User, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			user, err := store.EnsureUser(gctx, address)
			if err != nil {
				return fmt.Errorf("failed to resolve user %s: %w", address, err)
			}
			users[i] = user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserService) GetProfile(ctx context.Context, address string) (*UserProfile, error) {
	if !ledger.IsAddress(address) {
		return nil, apperr.Validation("invalid address %q", address)
	}

	user, err := s.store.GetUser(ctx, address)
	if err != nil {
		return nil, storeError(err, "user %s not found", address)
	}

	profile := &UserProfile{User: user}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, _, err := s.store.ListProducts(gctx, repository.ProductFilter{Owner: user.Address}, 0, profileListLimit)
		profile.OwnedProducts = products
		return err
	})
	g.Go(func() error {
		invoices, err := s.store.ListInvoices(gctx, user.Address, "seller", profileListLimit)
		profile.SentInvoices = invoices
		return err
	})
	g.Go(func() error {
		invoices, err := s.store.ListInvoices(gctx, user.Address, "buyer", profileListLimit)
		profile.ReceivedInvoices = invoices
		return err
	})
	g.Go(func() error {
		transfers, err := s.store.ListTransfers(gctx, user.Address, profileListLimit)
		profile.Transfers = transfers
		return err
	})
	g.Go(func() error {
		notifications, err := s.store.ListNotifications(gctx, user.Address, true, 5)
		profile.UnreadNotifications = notifications
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	return profile, nil
}

// UpdateProfile edits the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, caller, address string, req *UpdateUserProfileRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !ledger.SameAddress(caller, address) {
		return nil, apperr.Authorization("users can only update their own profile")
	}

	if _, err := s.store.EnsureUser(ctx, address); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.Website != nil {
		updates["website"] = *req.Website
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}

	if len(updates) > 0 {
		if err := s.store.UpdateUser(ctx, address, updates); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}

	return s.store.GetUser(ctx, address)
}
