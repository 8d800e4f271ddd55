package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/cartiva/pricing-api/internal/domain"
)

// RepositoryError lets callers classify persistence failures without depending on
// a concrete backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// DiscountRepository exposes read access to stored discounts.
type DiscountRepository interface {
	// FindByID returns a discount by identifier, including soft-deleted ones.
	FindByID(ctx context.Context, id string) (domain.Discount, error)
	// FindByCode returns the non-deleted coupon carrying the given code.
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	// ListActiveSales returns active, non-deleted discounts without a code.
	ListActiveSales(ctx context.Context) ([]domain.Discount, error)
}

// UsageCounts is a point-in-time snapshot of redemption counters for a set of
// discounts, scoped to one user where a user id was supplied.
type UsageCounts struct {
	// Total maps discount id to its global redemption count.
	Total map[string]int64
	// ByUser maps discount id to the requesting user's redemption count.
	ByUser map[string]int64
}

// Uses implements domain.UsageReader.
func (c UsageCounts) Uses(discountID string) int64 {
	return c.Total[discountID]
}

// UsesBy implements domain.UsageReader.
func (c UsageCounts) UsesBy(discountID, userID string) int64 {
	if userID == "" {
		return 0
	}
	return c.ByUser[discountID]
}

// UsageCap captures the counter limits a discount carried at evaluation time.
// A zero limit means the corresponding cap is not set.
type UsageCap struct {
	DiscountID     string
	MaxUses        int64
	MaxUsesPerUser int64
}

// ApplicationCommit is the atomic unit persisted when an order is placed:
// every application record from the evaluation plus the caps that must still
// hold at commit time.
type ApplicationCommit struct {
	OrderID     string
	UserID      string
	CommittedAt time.Time
	Records     []domain.ApplicationRecord
	Caps        []UsageCap
}

// CapExceededError reports which discount's usage cap blocked a commit.
// Backends classify it as a conflict.
type CapExceededError struct {
	DiscountID string
	PerUser    bool
}

// Error implements the error interface.
func (e *CapExceededError) Error() string {
	scope := "global"
	if e.PerUser {
		scope = "per-user"
	}
	return fmt.Sprintf("discount %s: %s usage cap exceeded", e.DiscountID, scope)
}

// UsageRepository persists redemption counters and application records.
// Commit runs in a single transaction: if any cap no longer holds, nothing
// is written and ErrCapExceeded-classified conflict is returned.
type UsageRepository interface {
	// Counts loads current counters for the given discounts. userID may be empty.
	Counts(ctx context.Context, discountIDs []string, userID string) (UsageCounts, error)
	// Commit atomically re-checks caps, increments counters and writes records.
	Commit(ctx context.Context, commit ApplicationCommit) error
}

// ApplicationRecordRepository reads back persisted application records.
type ApplicationRecordRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.ApplicationRecord, error)
	DeleteByOrder(ctx context.Context, orderID string) error
}

// CatalogProduct is the slice of catalog data price banding needs.
type CatalogProduct struct {
	ID string
	// SetIDs holds every product set the product belongs to, ancestors included.
	SetIDs []string
	// Prices maps currency code to the configured initial band.
	Prices map[string]domain.PriceBand
}

// CatalogRepository exposes the catalog facts the pricing engine consumes.
// The catalog itself is owned by another system; this repository is read-only.
type CatalogRepository interface {
	Product(ctx context.Context, id string) (CatalogProduct, error)
	// ListProductIDs returns every known product id.
	ListProductIDs(ctx context.Context) ([]string, error)
	// ListProductIDsInSets returns ids of products in any of the sets or their
	// descendant sets.
	ListProductIDsInSets(ctx context.Context, setIDs []string) ([]string, error)
}

// PriceBandRepository persists recalculated price bands per product.
type PriceBandRepository interface {
	// Get returns the stored bands for a product keyed by currency.
	Get(ctx context.Context, productID string) (map[string]domain.PriceBand, error)
	// Save replaces the stored bands for a product.
	Save(ctx context.Context, productID string, bands map[string]domain.PriceBand) error
}
