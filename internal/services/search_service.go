// internal/services/search_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
)

const (
	searchMinLength = 2
	searchLimit     = 20
)

type SearchService struct {
	store *repository.Store
}

type SearchResults struct {
	Query    string           `json:"query"`
	Products []models.Product `json:"products"`
	Users    []models.User    `json:"users"`
}

func NewSearchService(store *repository.Store) *SearchService {
	return &SearchService{store: store}
}

// Search looks up products and users. kind is "all", "products" or "users".
func (s *SearchService) Search(ctx context.Context, query, kind string) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if len(query) < searchMinLength {
		return nil, apperr.Validation("search query must be at least %d characters", searchMinLength)
	}
	if kind == "" {
		kind = "all"
	}
	if kind != "all" && kind != "products" && kind != "users" {
		return nil, apperr.Validation("invalid search type %q", kind)
	}

	results := &SearchResults{
		Query:    query,
		Products: []models.Product{},
		Users:    []models.User{},
	}

	g, gctx := errgroup.WithContext(ctx)
	if kind != "users" {
		g.Go(func() error {
			products, _, err := s.store.ListProducts(gctx, repository.ProductFilter{Search: query}, 0, searchLimit)
			if err != nil {
				return fmt.Errorf("failed to search products: %w", err)
			}
			results.Products = products
			return nil
		})
	}
	if kind != "products" {
		g.Go(func() error {
			users, err := s.store.SearchUsers(gctx, query, searchLimit)
			if err != nil {
				return fmt.Errorf("failed to search users: %w", err)
			}
			results.Users = users
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
