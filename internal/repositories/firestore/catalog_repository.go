package firestore

import (
	"context"
	"errors"
	"sort"

	"cloud.google.com/go/firestore"

	"github.com/cartiva/pricing-api/internal/domain"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
	"github.com/cartiva/pricing-api/internal/repositories"
)

const productsCollection = "products"

// array-contains-any accepts at most this many values per query.
const setQueryChunkSize = 10

type productDocument struct {
	// SetIDs include ancestor sets, expanded when the catalog syncs.
	SetIDs []string                        `firestore:"setIds,omitempty"`
	Prices map[string]productPriceDocument `firestore:"prices"`
}

type productPriceDocument struct {
	Base       int64 `firestore:"base"`
	MinInitial int64 `firestore:"minInitial"`
	MaxInitial int64 `firestore:"maxInitial"`
}

// CatalogRepository implements repositories.CatalogRepository on the product
// documents mirrored from the catalog system. It is strictly read-only.
type CatalogRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// Product returns the catalog slice for one product.
func (r *CatalogRepository) Product(ctx context.Context, id string) (repositories.CatalogProduct, error) {
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return repositories.CatalogProduct{}, err
	}
	product := repositories.CatalogProduct{
		ID:     doc.ID,
		SetIDs: doc.Data.SetIDs,
		Prices: make(map[string]domain.PriceBand, len(doc.Data.Prices)),
	}
	for code, price := range doc.Data.Prices {
		product.Prices[code] = domain.PriceBand{
			ProductID:  doc.ID,
			Currency:   code,
			Base:       price.Base,
			MinInitial: price.MinInitial,
			MaxInitial: price.MaxInitial,
		}
	}
	return product, nil
}

// ListProductIDs returns every known product id.
func (r *CatalogRepository) ListProductIDs(ctx context.Context) ([]string, error) {
	docs, err := r.products.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListProductIDsInSets returns ids of products in any of the given sets.
// Descendant membership needs no extra walk because product documents carry
// ancestor set ids.
func (r *CatalogRepository) ListProductIDsInSets(ctx context.Context, setIDs []string) ([]string, error) {
	if len(setIDs) == 0 {
		return nil, nil
	}
	seen := map[string]struct{}{}
	var ids []string
	for start := 0; start < len(setIDs); start += setQueryChunkSize {
		end := start + setQueryChunkSize
		if end > len(setIDs) {
			end = len(setIDs)
		}
		chunk := setIDs[start:end]
		docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("setIds", "array-contains-any", chunk)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if _, ok := seen[doc.ID]; !ok {
				seen[doc.ID] = struct{}{}
				ids = append(ids, doc.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
