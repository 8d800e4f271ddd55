package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
)

// SweeperDeps wires the sweep loop's collaborators.
type SweeperDeps struct {
	Cache    *ActiveSaleCache
	Bands    *PriceBandService
	Logger   *zap.Logger
	Interval time.Duration
}

// Sweeper periodically rebuilds the active-sale snapshot and refreshes price
// bands for products whose sales entered or left the snapshot. Time-bounded
// sales cross their boundaries without any write, so polling is what turns
// those boundaries into band updates.
type Sweeper struct {
	cache    *ActiveSaleCache
	bands    *PriceBandService
	logger   *zap.Logger
	interval time.Duration
}

const defaultSweepInterval = time.Minute

// NewSweeper validates dependencies and builds the sweeper.
func NewSweeper(deps SweeperDeps) (*Sweeper, error) {
	if deps.Cache == nil {
		return nil, errors.New("sweeper: active sale cache is required")
	}
	if deps.Bands == nil {
		return nil, errors.New("sweeper: price band service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		cache:    deps.Cache,
		bands:    deps.Bands,
		logger:   logger,
		interval: interval,
	}, nil
}

// Run sweeps once immediately, then on every tick until the context ends.
// Individual sweep failures are logged and the loop keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep rebuilds the snapshot and recalculates bands for every sale that
// appeared in or disappeared from it.
func (s *Sweeper) Sweep(ctx context.Context) error {
	previous := s.cache.Snapshot()
	next, err := s.cache.Rebuild(ctx)
	if err != nil {
		return err
	}

	changed := diffSnapshots(previous, next)
	if len(changed) == 0 {
		return nil
	}
	s.logger.Info("active sales changed, refreshing price bands",
		zap.Int("changed", len(changed)),
		zap.Uint64("snapshot_version", next.Version),
	)

	var firstErr error
	for _, sale := range changed {
		if err := s.bands.RecalculateForSale(ctx, sale); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// diffSnapshots returns the sales present in exactly one of the snapshots.
func diffSnapshots(previous, next *ActiveSaleSnapshot) []domain.Discount {
	var changed []domain.Discount
	for _, sale := range next.Sales {
		if !previous.Contains(sale.ID) {
			changed = append(changed, sale)
		}
	}
	if previous != nil {
		for _, sale := range previous.Sales {
			if !next.Contains(sale.ID) {
				changed = append(changed, sale)
			}
		}
	}
	return changed
}
