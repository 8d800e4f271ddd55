package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/repositories"
)

// ActiveSaleSnapshot is an immutable view of the sales that currently affect
// catalog price bands: active, time-eligible right now, and carrying no
// conditions other than time conditions. Readers must not mutate it.
type ActiveSaleSnapshot struct {
	Version uint64
	BuiltAt time.Time
	// Sales are sorted in application order (priority, creation time, id).
	Sales []domain.Discount
	ids   map[string]struct{}
}

// Contains reports whether the snapshot includes the given sale.
func (s *ActiveSaleSnapshot) Contains(discountID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[discountID]
	return ok
}

// IDs returns the snapshot's sale ids.
func (s *ActiveSaleSnapshot) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Sales))
	for _, d := range s.Sales {
		out = append(out, d.ID)
	}
	return out
}

// ActiveSaleCache holds the current snapshot behind an atomic pointer, so the
// pricing hot path reads a fully built view without locking while the sweeper
// rebuilds in the background.
type ActiveSaleCache struct {
	discounts repositories.DiscountRepository
	clock     func() time.Time
	logger    *zap.Logger

	// rebuildMu serializes rebuilds so a slower build started earlier cannot
	// overwrite a newer snapshot. Readers never take it.
	rebuildMu sync.Mutex
	version   atomic.Uint64
	current   atomic.Pointer[ActiveSaleSnapshot]
}

// ActiveSaleCacheDeps wires the cache's collaborators.
type ActiveSaleCacheDeps struct {
	Discounts repositories.DiscountRepository
	Clock     func() time.Time
	Logger    *zap.Logger
}

// NewActiveSaleCache builds an empty cache. Readers see an empty snapshot
// until the first Rebuild completes.
func NewActiveSaleCache(deps ActiveSaleCacheDeps) (*ActiveSaleCache, error) {
	if deps.Discounts == nil {
		return nil, ErrDiscountRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ActiveSaleCache{
		discounts: deps.Discounts,
		clock:     clock,
		logger:    logger,
	}
	c.current.Store(&ActiveSaleSnapshot{ids: map[string]struct{}{}})
	return c, nil
}

// Snapshot returns the current view. Never nil, possibly empty.
func (c *ActiveSaleCache) Snapshot() *ActiveSaleSnapshot {
	return c.current.Load()
}

// Rebuild recomputes the snapshot from storage and swaps it in atomically.
// On a repository failure the previous snapshot stays in place. Concurrent
// rebuilds are serialized; the periodic sweep and the manual trigger can race.
func (c *ActiveSaleCache) Rebuild(ctx context.Context) (*ActiveSaleSnapshot, error) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	sales, err := c.discounts.ListActiveSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("active sale cache: list sales: %w", err)
	}
	now := c.clock().UTC()

	eligible := make([]domain.Discount, 0, len(sales))
	ids := make(map[string]struct{}, len(sales))
	for _, d := range sales {
		ok, err := saleAffectsBands(d, now)
		if err != nil {
			c.logger.Warn("sale excluded from band snapshot",
				zap.String("discount_id", d.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		eligible = append(eligible, d)
		ids[d.ID] = struct{}{}
	}
	sortDiscounts(eligible)

	snap := &ActiveSaleSnapshot{
		Version: c.version.Add(1),
		BuiltAt: now,
		Sales:   eligible,
		ids:     ids,
	}
	c.current.Store(snap)
	c.logger.Debug("active sale snapshot rebuilt",
		zap.Uint64("version", snap.Version),
		zap.Int("sales", len(eligible)),
	)
	return snap, nil
}

// saleAffectsBands reports whether a sale participates in price bands: it must
// be active, carry only time-based conditions, and those conditions must hold
// right now. Sales gated on users, carts or usage are cart-dependent and never
// enter band math.
func saleAffectsBands(d domain.Discount, now time.Time) (bool, error) {
	if !d.Active || d.IsDeleted() || !d.IsSale() {
		return false, nil
	}
	for _, group := range d.ConditionGroups {
		for _, cond := range group.Conditions {
			switch cond.Kind {
			case domain.ConditionDateBetween, domain.ConditionTimeBetween, domain.ConditionWeekdayIn:
			default:
				return false, nil
			}
		}
	}
	return EvaluateGroups(domain.EvaluationContext{Now: now}, d.ID, d.ConditionGroups)
}
