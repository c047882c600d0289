// internal/services/analytics_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/javajoker/provenance-backend/internal/apperr"
	"github.com/javajoker/provenance-backend/internal/models"
	"github.com/javajoker/provenance-backend/internal/repository"
)

const recentActivityLimit = 10

// analyticsPeriods maps the accepted period names to their length.
var analyticsPeriods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

type AnalyticsService struct {
	store *repository.Store
	now   func() time.Time
}

type AnalyticsTotals struct {
	Users              int64   `json:"users"`
	Products           int64   `json:"products"`
	Invoices           int64   `json:"invoices"`
	Transfers          int64   `json:"transfers"`
	CompletedTransfers int64   `json:"completed_transfers"`
	InvoiceVolume      float64 `json:"invoice_volume"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type AnalyticsSummary struct {
	Period         string            `json:"period"`
	Since          time.Time         `json:"since"`
	Totals         AnalyticsTotals   `json:"totals"`
	InPeriod       AnalyticsTotals   `json:"in_period"`
	TransferGrowth float64           `json:"transfer_growth"`
	Categories     []CategoryCount   `json:"categories"`
	Statuses       []StatusCount     `json:"statuses"`
	RecentActivity []models.AuditLog `json:"recent_activity"`
}

func NewAnalyticsService(store *repository.Store) *AnalyticsService {
	return &AnalyticsService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Summary aggregates the read model over period ("7d", "30d", "90d", "1y").
func (s *AnalyticsService) Summary(ctx context.Context, period string) (*AnalyticsSummary, error) {
	if period == "" {
		period = "30d"
	}
	length, ok := analyticsPeriods[period]
	if !ok {
		return nil, apperr.Validation("invalid period %q", period)
	}

	now := s.now()
	since := now.Add(-length)
	previous := since.Add(-length)

	summary := &AnalyticsSummary{Period: period, Since: since}

	totals, err := s.totals(ctx, time.Time{}, now)
	if err != nil {
		return nil, err
	}
	summary.Totals = *totals

	inPeriod, err := s.totals(ctx, since, now)
	if err != nil {
		return nil, err
	}
	summary.InPeriod = *inPeriod

	db := s.store.DB().WithContext(ctx)

	// Transfer growth against the preceding period
	var previousTransfers int64
	if err := db.Model(&models.TransferCertificate{}).
		Where("timestamp >= ? AND timestamp < ?", previous, since).
		Count(&previousTransfers).Error; err != nil {
		return nil, fmt.Errorf("failed to count transfers: %w", err)
	}
	if previousTransfers > 0 {
		summary.TransferGrowth = float64(inPeriod.Transfers-previousTransfers) / float64(previousTransfers) * 100
	}

	if err := db.Model(&models.Product{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category").
		Scan(&summary.Categories).Error; err != nil {
		return nil, fmt.Errorf("failed to group products by category: %w", err)
	}

	if err := db.Model(&models.Product{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&summary.Statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to group products by status: %w", err)
	}

	if err := db.Order("created_at DESC").
		Limit(recentActivityLimit).
		Find(&summary.RecentActivity).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}

	if summary.Categories == nil {
		summary.Categories = []CategoryCount{}
	}
	if summary.Statuses == nil {
		summary.Statuses = []StatusCount{}
	}
	return summary, nil
}

// totals counts entities whose ledger timestamp falls in [from, to]. A zero
// from counts everything.
func (s *AnalyticsService) totals(ctx context.Context, from, to time.Time) (*AnalyticsTotals, error) {
	db := s.store.DB().WithContext(ctx)
	totals := &AnalyticsTotals{}

	counts := []struct {
		model    interface{}
		column   string
		dest     *int64
		complete bool
	}{
		{&models.User{}, "created_at", &totals.Users, false},
		{&models.Product{}, "registration_timestamp", &totals.Products, false},
		{&models.Invoice{}, "timestamp", &totals.Invoices, false},
		{&models.TransferCertificate{}, "timestamp", &totals.Transfers, false},
		{&models.TransferCertificate{}, "completed_at", &totals.CompletedTransfers, true},
	}

	for _, c := range counts {
		query := db.Model(c.model)
		if !from.IsZero() {
			query = query.Where(c.column+" >= ? AND "+c.column+" <= ?", from, to)
		}
		if c.complete {
			query = query.Where("is_complete = ?", true)
		}
		if err := query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.column, err)
		}
	}

	volume := db.Model(&models.Invoice{}).Select("COALESCE(SUM(amount), 0)")
	if !from.IsZero() {
		volume = volume.Where("timestamp >= ? AND timestamp <= ?", from, to)
	}
	if err := volume.Scan(&totals.InvoiceVolume).Error; err != nil {
		return nil, fmt.Errorf("failed to sum invoice volume: %w", err)
	}

	return totals, nil
}
