package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/cartiva/pricing-api/internal/domain"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
)

const priceBandsCollection = "price_bands"

type priceBandDocument struct {
	ProductID string                    `firestore:"productId"`
	Bands     map[string]priceBandEntry `firestore:"bands"`
	UpdatedAt time.Time                 `firestore:"updatedAt"`
}

type priceBandEntry struct {
	Base       int64 `firestore:"base"`
	MinInitial int64 `firestore:"minInitial"`
	MaxInitial int64 `firestore:"maxInitial"`
	Min        int64 `firestore:"min"`
	Max        int64 `firestore:"max"`
}

// PriceBandRepository implements repositories.PriceBandRepository on Firestore.
// One document per product keeps the multi-currency band replace atomic.
type PriceBandRepository struct {
	bands *pfirestore.BaseRepository[priceBandDocument]
}

// NewPriceBandRepository constructs a Firestore-backed price band repository.
func NewPriceBandRepository(provider *pfirestore.Provider) (*PriceBandRepository, error) {
	if provider == nil {
		return nil, errors.New("price band repository requires firestore provider")
	}
	return &PriceBandRepository{
		bands: pfirestore.NewBaseRepository[priceBandDocument](provider, priceBandsCollection),
	}, nil
}

// Get returns the stored bands for a product keyed by currency.
func (r *PriceBandRepository) Get(ctx context.Context, productID string) (map[string]domain.PriceBand, error) {
	doc, err := r.bands.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.PriceBand, len(doc.Data.Bands))
	for code, entry := range doc.Data.Bands {
		out[code] = domain.PriceBand{
			ProductID:  productID,
			Currency:   code,
			Base:       entry.Base,
			MinInitial: entry.MinInitial,
			MaxInitial: entry.MaxInitial,
			Min:        entry.Min,
			Max:        entry.Max,
			UpdatedAt:  doc.Data.UpdatedAt,
		}
	}
	return out, nil
}

// Save replaces the stored bands for a product in a single write.
func (r *PriceBandRepository) Save(ctx context.Context, productID string, bands map[string]domain.PriceBand) error {
	doc := priceBandDocument{
		ProductID: productID,
		Bands:     make(map[string]priceBandEntry, len(bands)),
	}
	for code, band := range bands {
		doc.Bands[code] = priceBandEntry{
			Base:       band.Base,
			MinInitial: band.MinInitial,
			MaxInitial: band.MaxInitial,
			Min:        band.Min,
			Max:        band.Max,
		}
		if band.UpdatedAt.After(doc.UpdatedAt) {
			doc.UpdatedAt = band.UpdatedAt
		}
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	return r.bands.Set(ctx, productID, doc)
}
