package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/platform/events"
	"github.com/cartiva/pricing-api/internal/repositories"
)

// PriceBandServiceDeps wires the band recalculator's collaborators.
type PriceBandServiceDeps struct {
	Catalog   repositories.CatalogRepository
	Bands     repositories.PriceBandRepository
	Cache     *ActiveSaleCache
	Publisher events.Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
	NewID     func() string
}

// PriceBandService maintains the cached per-product price envelopes the
// catalog displays. Recalculation runs off the active-sale snapshot so a
// rebuild in flight never produces a half-old, half-new band.
type PriceBandService struct {
	catalog   repositories.CatalogRepository
	bands     repositories.PriceBandRepository
	cache     *ActiveSaleCache
	publisher events.Publisher
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPriceBandService validates dependencies and builds the service.
func NewPriceBandService(deps PriceBandServiceDeps) (*PriceBandService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("price band service: catalog repository is required")
	}
	if deps.Bands == nil {
		return nil, errors.New("price band service: band repository is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("price band service: active sale cache is required")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &PriceBandService{
		catalog:   deps.Catalog,
		bands:     deps.Bands,
		cache:     deps.Cache,
		publisher: publisher,
		logger:    logger,
		clock:     clock,
		newID:     newID,
	}, nil
}

// Bands returns the stored bands for a product keyed by currency.
func (s *PriceBandService) Bands(ctx context.Context, productID string) (map[string]domain.PriceBand, error) {
	return s.bands.Get(ctx, productID)
}

// Recalculate recomputes a product's bands from its initial prices and the
// current active-sale snapshot, then persists them. Concurrent calls for the
// same product serialize; a failure leaves the stored bands untouched.
func (s *PriceBandService) Recalculate(ctx context.Context, productID string) (map[string]domain.PriceBand, error) {
	lock := s.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("price band service: load product %s: %w", productID, err)
	}
	if len(product.Prices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPriceBandUnavailable, productID)
	}

	snap := s.cache.Snapshot()
	now := s.clock().UTC()

	bands := make(map[string]domain.PriceBand, len(product.Prices))
	for code, initial := range product.Prices {
		band := domain.PriceBand{
			ProductID:  productID,
			Currency:   code,
			Base:       initial.Base,
			MinInitial: initial.MinInitial,
			MaxInitial: initial.MaxInitial,
			Min:        initial.MinInitial,
			Max:        initial.MaxInitial,
			UpdatedAt:  now,
		}
		for _, sale := range snap.Sales {
			if sale.TargetType != domain.TargetProducts {
				continue
			}
			if !LineTargetApplies(sale, productID, product.SetIDs) {
				continue
			}
			if sale.Percentage == nil {
				if _, ok := sale.AmountFor(code); !ok {
					continue
				}
			}
			minReduced, err := reduceOnce(sale, domain.Money{Amount: band.Min, Currency: code})
			if err != nil {
				return nil, fmt.Errorf("price band service: sale %s: %w", sale.ID, err)
			}
			maxReduced, err := reduceOnce(sale, domain.Money{Amount: band.Max, Currency: code})
			if err != nil {
				return nil, fmt.Errorf("price band service: sale %s: %w", sale.ID, err)
			}
			band.Min = minReduced.Amount
			band.Max = maxReduced.Amount
		}
		bands[code] = band
	}

	if err := s.bands.Save(ctx, productID, bands); err != nil {
		return nil, fmt.Errorf("price band service: save bands for %s: %w", productID, err)
	}

	s.publishRecalculated(ctx, productID, bands, now)
	return bands, nil
}

// RecalculateForSale refreshes every product a sale can touch. Used when a
// sale is created, updated, deleted, or crosses a time boundary.
func (s *PriceBandService) RecalculateForSale(ctx context.Context, sale domain.Discount) error {
	productIDs, err := s.affectedProducts(ctx, sale)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range productIDs {
		if _, err := s.Recalculate(ctx, id); err != nil {
			if errors.Is(err, ErrPriceBandUnavailable) {
				continue
			}
			s.logger.Error("price band recalculation failed",
				zap.String("product_id", id),
				zap.String("discount_id", sale.ID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// affectedProducts resolves which products a sale's targets cover. A block
// list can exempt anything, so it conservatively affects the whole catalog.
func (s *PriceBandService) affectedProducts(ctx context.Context, sale domain.Discount) ([]string, error) {
	if sale.TargetType != domain.TargetProducts {
		return nil, nil
	}
	if !sale.TargetIsAllowList {
		ids, err := s.catalog.ListProductIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("price band service: list products: %w", err)
		}
		return ids, nil
	}

	seen := map[string]struct{}{}
	var out []string
	var setIDs []string
	for _, ref := range sale.TargetRefs {
		switch ref.Kind {
		case domain.TargetRefProduct:
			if _, ok := seen[ref.ID]; !ok {
				seen[ref.ID] = struct{}{}
				out = append(out, ref.ID)
			}
		case domain.TargetRefProductSet:
			setIDs = append(setIDs, ref.ID)
		}
	}
	if len(setIDs) > 0 {
		ids, err := s.catalog.ListProductIDsInSets(ctx, setIDs)
		if err != nil {
			return nil, fmt.Errorf("price band service: resolve set products: %w", err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *PriceBandService) publishRecalculated(ctx context.Context, productID string, bands map[string]domain.PriceBand, now time.Time) {
	currencies := make([]string, 0, len(bands))
	for code := range bands {
		currencies = append(currencies, code)
	}
	sort.Strings(currencies)
	err := s.publisher.PublishPriceBandRecalculated(ctx, events.PriceBandRecalculated{
		EventID:    s.newID(),
		ProductID:  productID,
		Currencies: currencies,
		OccurredAt: now,
	})
	if err != nil {
		s.logger.Warn("price band event publish failed",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
}

func (s *PriceBandService) productLock(productID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = map[string]*sync.Mutex{}
	}
	lock, ok := s.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[productID] = lock
	}
	return lock
}
