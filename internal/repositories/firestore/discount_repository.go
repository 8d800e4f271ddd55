package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/cartiva/pricing-api/internal/domain"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
)

const discountsCollection = "discounts"

type discountDocument struct {
	Name              string                   `firestore:"name"`
	Description       string                   `firestore:"description,omitempty"`
	Active            bool                     `firestore:"active"`
	Percentage        *int64                   `firestore:"percentage,omitempty"`
	Amounts           map[string]int64         `firestore:"amounts,omitempty"`
	Priority          int                      `firestore:"priority"`
	Code              string                   `firestore:"code"`
	TargetType        string                   `firestore:"targetType"`
	TargetIsAllowList bool                     `firestore:"targetIsAllowList"`
	TargetRefs        []targetRefDocument      `firestore:"targetRefs,omitempty"`
	ConditionGroups   []conditionGroupDocument `firestore:"conditionGroups,omitempty"`
	Uses              int64                    `firestore:"uses"`
	Deleted           bool                     `firestore:"deleted"`
	CreatedAt         time.Time                `firestore:"createdAt"`
	UpdatedAt         time.Time                `firestore:"updatedAt"`
	DeletedAt         *time.Time               `firestore:"deletedAt,omitempty"`
}

type targetRefDocument struct {
	Kind string `firestore:"kind"`
	ID   string `firestore:"id"`
}

type conditionGroupDocument struct {
	ID         string              `firestore:"id,omitempty"`
	Conditions []conditionDocument `firestore:"conditions,omitempty"`
}

type conditionDocument struct {
	ID            string           `firestore:"id,omitempty"`
	Kind          string           `firestore:"kind"`
	MinValues     map[string]int64 `firestore:"minValues,omitempty"`
	MaxValues     map[string]int64 `firestore:"maxValues,omitempty"`
	IncludesTaxes bool             `firestore:"includesTaxes,omitempty"`
	IsInRange     bool             `firestore:"isInRange,omitempty"`
	MemberIDs     []string         `firestore:"memberIds,omitempty"`
	IsAllowList   bool             `firestore:"isAllowList,omitempty"`
	Start         *time.Time       `firestore:"start,omitempty"`
	End           *time.Time       `firestore:"end,omitempty"`
	WeekdayMask   int64            `firestore:"weekdayMask,omitempty"`
	MaxUses       int64            `firestore:"maxUses,omitempty"`
	MinCount      *int64           `firestore:"minCount,omitempty"`
	MaxCount      *int64           `firestore:"maxCount,omitempty"`
}

// DiscountRepository implements repositories.DiscountRepository backed by Firestore.
type DiscountRepository struct {
	provider  *pfirestore.Provider
	discounts *pfirestore.BaseRepository[discountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		provider:  provider,
		discounts: pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection),
	}, nil
}

// FindByID returns the discount stored under id, soft-deleted ones included.
func (r *DiscountRepository) FindByID(ctx context.Context, id string) (domain.Discount, error) {
	doc, err := r.discounts.Get(ctx, id)
	if err != nil {
		return domain.Discount{}, err
	}
	return decodeDiscount(doc.ID, doc.Data), nil
}

// FindByCode returns the non-deleted coupon carrying code. Codes are unique
// among non-deleted coupons; the first hit wins.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Discount{}, pfirestore.WrapError("discounts.find_by_code", errors.New("coupon code is required"))
	}
	docs, err := r.discounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).
			Where("deleted", "==", false).
			Limit(1)
	})
	if err != nil {
		return domain.Discount{}, err
	}
	if len(docs) == 0 {
		return domain.Discount{}, pfirestore.NotFoundError("discounts.find_by_code", fmt.Sprintf("no coupon with code %q", trimmed))
	}
	return decodeDiscount(docs[0].ID, docs[0].Data), nil
}

// ListActiveSales returns every active, non-deleted discount without a code.
func (r *DiscountRepository) ListActiveSales(ctx context.Context) ([]domain.Discount, error) {
	docs, err := r.discounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", "").
			Where("active", "==", true).
			Where("deleted", "==", false)
	})
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Discount, 0, len(docs))
	for _, doc := range docs {
		sales = append(sales, decodeDiscount(doc.ID, doc.Data))
	}
	return sales, nil
}

func decodeDiscount(id string, doc discountDocument) domain.Discount {
	d := domain.Discount{
		ID:                id,
		Name:              doc.Name,
		Description:       doc.Description,
		Active:            doc.Active,
		Priority:          doc.Priority,
		TargetType:        domain.TargetType(doc.TargetType),
		TargetIsAllowList: doc.TargetIsAllowList,
		Uses:              doc.Uses,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
		DeletedAt:         doc.DeletedAt,
	}
	if doc.Percentage != nil {
		pct := domain.Percentage(*doc.Percentage)
		d.Percentage = &pct
	}
	if len(doc.Amounts) > 0 {
		d.Amounts = make(map[string]domain.Money, len(doc.Amounts))
		for code, amount := range doc.Amounts {
			d.Amounts[code] = domain.Money{Amount: amount, Currency: code}
		}
	}
	if code := strings.TrimSpace(doc.Code); code != "" {
		d.Code = &code
	}
	for _, ref := range doc.TargetRefs {
		d.TargetRefs = append(d.TargetRefs, domain.TargetRef{
			Kind: domain.TargetRefKind(ref.Kind),
			ID:   ref.ID,
		})
	}
	for _, group := range doc.ConditionGroups {
		decoded := domain.ConditionGroup{ID: group.ID}
		for _, cond := range group.Conditions {
			decoded.Conditions = append(decoded.Conditions, decodeCondition(cond))
		}
		d.ConditionGroups = append(d.ConditionGroups, decoded)
	}
	return d
}

func decodeCondition(doc conditionDocument) domain.Condition {
	cond := domain.Condition{
		ID:            doc.ID,
		Kind:          domain.ConditionKind(doc.Kind),
		IncludesTaxes: doc.IncludesTaxes,
		IsInRange:     doc.IsInRange,
		MemberIDs:     doc.MemberIDs,
		IsAllowList:   doc.IsAllowList,
		Start:         doc.Start,
		End:           doc.End,
		WeekdayMask:   uint8(doc.WeekdayMask),
		MaxUses:       doc.MaxUses,
	}
	if len(doc.MinValues) > 0 {
		cond.MinValues = make(map[string]domain.Money, len(doc.MinValues))
		for code, amount := range doc.MinValues {
			cond.MinValues[code] = domain.Money{Amount: amount, Currency: code}
		}
	}
	if len(doc.MaxValues) > 0 {
		cond.MaxValues = make(map[string]domain.Money, len(doc.MaxValues))
		for code, amount := range doc.MaxValues {
			cond.MaxValues[code] = domain.Money{Amount: amount, Currency: code}
		}
	}
	if doc.MinCount != nil {
		v := int(*doc.MinCount)
		cond.MinCount = &v
	}
	if doc.MaxCount != nil {
		v := int(*doc.MaxCount)
		cond.MaxCount = &v
	}
	return cond
}
