package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	"github.com/cartiva/pricing-api/internal/domain"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
)

// ApplicationRecordRepository reads and prunes persisted application records.
// Writes happen through the usage repository's commit transaction.
type ApplicationRecordRepository struct {
	records *pfirestore.BaseRepository[applicationRecordDocument]
}

// NewApplicationRecordRepository constructs a Firestore-backed record repository.
func NewApplicationRecordRepository(provider *pfirestore.Provider) (*ApplicationRecordRepository, error) {
	if provider == nil {
		return nil, errors.New("application record repository requires firestore provider")
	}
	return &ApplicationRecordRepository{
		records: pfirestore.NewBaseRepository[applicationRecordDocument](provider, recordsCollection),
	}, nil
}

// ListByOrder returns every record written for an order, oldest first.
func (r *ApplicationRecordRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ApplicationRecord, error) {
	docs, err := r.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ApplicationRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.ApplicationRecord{
			ID:         doc.ID,
			DiscountID: doc.Data.DiscountID,
			TargetID:   doc.Data.TargetID,
			TargetType: domain.ApplicationTargetType(doc.Data.TargetType),
			AppliedAmount: domain.Money{
				Amount:   doc.Data.Amount,
				Currency: doc.Data.Currency,
			},
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return out, nil
}

// DeleteByOrder removes an order's records, for when an order is cancelled
// before its counters matter or is repriced from scratch.
func (r *ApplicationRecordRepository) DeleteByOrder(ctx context.Context, orderID string) error {
	docs, err := r.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := r.records.Delete(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}
