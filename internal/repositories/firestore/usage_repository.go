package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartiva/pricing-api/internal/domain"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
	"github.com/cartiva/pricing-api/internal/repositories"
)

const (
	usageCollection   = "discount_usage"
	recordsCollection = "application_records"
)

type usageDocument struct {
	DiscountID string    `firestore:"discountId"`
	UserID     string    `firestore:"userId"`
	Uses       int64     `firestore:"uses"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type applicationRecordDocument struct {
	OrderID    string    `firestore:"orderId"`
	UserID     string    `firestore:"userId,omitempty"`
	DiscountID string    `firestore:"discountId"`
	TargetID   string    `firestore:"targetId"`
	TargetType string    `firestore:"targetType"`
	Amount     int64     `firestore:"amount"`
	Currency   string    `firestore:"currency"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// UsageRepository implements repositories.UsageRepository on Firestore. The
// global counter lives on the discount document itself; per-user counters are
// separate documents keyed by discount and user.
type UsageRepository struct {
	provider  *pfirestore.Provider
	discounts *pfirestore.BaseRepository[discountDocument]
	usage     *pfirestore.BaseRepository[usageDocument]
	records   *pfirestore.BaseRepository[applicationRecordDocument]
	clock     func() time.Time
}

// NewUsageRepository constructs a Firestore-backed usage repository.
func NewUsageRepository(provider *pfirestore.Provider) (*UsageRepository, error) {
	if provider == nil {
		return nil, errors.New("usage repository requires firestore provider")
	}
	return &UsageRepository{
		provider:  provider,
		discounts: pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection),
		usage:     pfirestore.NewBaseRepository[usageDocument](provider, usageCollection),
		records:   pfirestore.NewBaseRepository[applicationRecordDocument](provider, recordsCollection),
		clock:     time.Now,
	}, nil
}

// Counts loads the current global and per-user counters for the given discounts.
func (r *UsageRepository) Counts(ctx context.Context, discountIDs []string, userID string) (repositories.UsageCounts, error) {
	counts := repositories.UsageCounts{
		Total:  make(map[string]int64, len(discountIDs)),
		ByUser: make(map[string]int64, len(discountIDs)),
	}
	for _, id := range discountIDs {
		doc, err := r.discounts.Get(ctx, id)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return repositories.UsageCounts{}, err
		}
		counts.Total[id] = doc.Data.Uses

		if strings.TrimSpace(userID) == "" {
			continue
		}
		usageDoc, err := r.usage.Get(ctx, usageDocID(id, userID))
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return repositories.UsageCounts{}, err
		}
		counts.ByUser[id] = usageDoc.Data.Uses
	}
	return counts, nil
}

// Commit atomically re-checks caps, increments counters and writes every
// application record. Any cap violation aborts the transaction: either the
// whole order's usage commits, or none of it does.
func (r *UsageRepository) Commit(ctx context.Context, commit repositories.ApplicationCommit) error {
	if len(commit.Records) == 0 {
		return nil
	}
	now := commit.CommittedAt
	if now.IsZero() {
		now = r.clock().UTC()
	}
	discountIDs := distinctDiscountIDs(commit.Records)
	caps := make(map[string]repositories.UsageCap, len(commit.Caps))
	for _, limit := range commit.Caps {
		caps[limit.DiscountID] = limit
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pending struct {
			discountRef *firestore.DocumentRef
			usageRef    *firestore.DocumentRef
			uses        int64
			userUses    int64
			userExists  bool
		}

		// Firestore transactions require every read before the first write.
		reads := make(map[string]*pending, len(discountIDs))
		for _, id := range discountIDs {
			ref, err := r.discounts.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			doc, err := r.discounts.Decode(snap)
			if err != nil {
				return fmt.Errorf("decode discount %s: %w", id, err)
			}
			state := &pending{discountRef: ref, uses: doc.Uses}

			if strings.TrimSpace(commit.UserID) != "" {
				usageRef, err := r.usage.DocumentRef(ctx, usageDocID(id, commit.UserID))
				if err != nil {
					return err
				}
				state.usageRef = usageRef
				usageSnap, err := tx.Get(usageRef)
				switch status.Code(err) {
				case codes.NotFound:
				case codes.OK:
					var usageDoc usageDocument
					if err := usageSnap.DataTo(&usageDoc); err != nil {
						return fmt.Errorf("decode usage %s: %w", usageRef.ID, err)
					}
					state.userUses = usageDoc.Uses
					state.userExists = true
				default:
					return err
				}
			}
			reads[id] = state
		}

		for _, id := range discountIDs {
			state := reads[id]
			if limit, ok := caps[id]; ok {
				if limit.MaxUses > 0 && state.uses >= limit.MaxUses {
					return &repositories.CapExceededError{DiscountID: id}
				}
				if limit.MaxUsesPerUser > 0 {
					if strings.TrimSpace(commit.UserID) == "" {
						return &repositories.CapExceededError{DiscountID: id, PerUser: true}
					}
					if state.userUses >= limit.MaxUsesPerUser {
						return &repositories.CapExceededError{DiscountID: id, PerUser: true}
					}
				}
			}

			if err := tx.Update(state.discountRef, []firestore.Update{
				{Path: "uses", Value: state.uses + 1},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
			if state.usageRef != nil {
				doc := usageDocument{
					DiscountID: id,
					UserID:     commit.UserID,
					Uses:       state.userUses + 1,
					UpdatedAt:  now,
				}
				if state.userExists {
					if err := tx.Set(state.usageRef, doc, firestore.MergeAll); err != nil {
						return err
					}
				} else if err := tx.Create(state.usageRef, doc); err != nil {
					return err
				}
			}
		}

		for _, record := range commit.Records {
			ref, err := r.records.DocumentRef(ctx, record.ID)
			if err != nil {
				return err
			}
			if err := tx.Create(ref, applicationRecordDocument{
				OrderID:    commit.OrderID,
				UserID:     commit.UserID,
				DiscountID: record.DiscountID,
				TargetID:   record.TargetID,
				TargetType: string(record.TargetType),
				Amount:     record.AppliedAmount.Amount,
				Currency:   record.AppliedAmount.Currency,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func usageDocID(discountID, userID string) string {
	return discountID + "_" + userID
}

func distinctDiscountIDs(records []domain.ApplicationRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, record := range records {
		if _, ok := seen[record.DiscountID]; ok {
			continue
		}
		seen[record.DiscountID] = struct{}{}
		out = append(out, record.DiscountID)
	}
	return out
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
