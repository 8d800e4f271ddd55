package domain

import (
	"time"
)

// TargetType is the dimension of an order a discount reduces.
type TargetType string

const (
	// TargetOrderValue reduces the whole order value after line and shipping passes.
	TargetOrderValue TargetType = "order_value"
	// TargetProducts reduces individual order lines matching the discount's target refs.
	TargetProducts TargetType = "products"
	// TargetShippingPrice reduces the computed shipping charge.
	TargetShippingPrice TargetType = "shipping_price"
	// TargetCheapestProduct reduces only the single cheapest qualifying line.
	TargetCheapestProduct TargetType = "cheapest_product"
)

// TargetRefKind tags the explicit union of things a discount can be associated with.
type TargetRefKind string

const (
	// TargetRefProduct associates a discount with a single product.
	TargetRefProduct TargetRefKind = "product"
	// TargetRefProductSet associates a discount with a product set (descendants included).
	TargetRefProductSet TargetRefKind = "product_set"
	// TargetRefShippingMethod associates a discount with a shipping method.
	TargetRefShippingMethod TargetRefKind = "shipping_method"
)

// TargetRef names one product, product set or shipping method a discount targets.
// The kind tag replaces the generic foreign-key-plus-type pairing so target matching
// can be checked exhaustively.
type TargetRef struct {
	Kind TargetRefKind
	ID   string
}

// Discount is a sale (automatic, no code) or a coupon (requires a code).
// Exactly one of Percentage or Amounts is set.
type Discount struct {
	ID          string
	Name        string
	Description string
	Active      bool

	// Percentage, when non-nil, is the reduction in hundredths of a percent.
	Percentage *Percentage
	// Amounts, when non-empty, maps currency code to a fixed reduction.
	Amounts map[string]Money

	// Priority orders stacking: lower applies first.
	Priority int

	// Code is nil for sales and a unique non-empty string for coupons.
	Code *string

	TargetType TargetType
	// TargetIsAllowList interprets TargetRefs as the only eligible targets (true)
	// or the only excluded targets (false).
	TargetIsAllowList bool
	TargetRefs        []TargetRef

	ConditionGroups []ConditionGroup

	// Uses is the global redemption counter, maintained by the usage service.
	Uses int64

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsCoupon reports whether the discount requires an explicit code.
func (d Discount) IsCoupon() bool {
	return d.Code != nil && *d.Code != ""
}

// IsSale reports whether the discount applies automatically.
func (d Discount) IsSale() bool { return !d.IsCoupon() }

// IsDeleted reports whether the discount has been soft-deleted.
func (d Discount) IsDeleted() bool { return d.DeletedAt != nil }

// AmountFor returns the fixed reduction for the given currency, if defined.
func (d Discount) AmountFor(currencyCode string) (Money, bool) {
	if len(d.Amounts) == 0 {
		return Money{}, false
	}
	m, ok := d.Amounts[currencyCode]
	return m, ok
}

// ConditionGroup is an AND-set of conditions. A discount's groups are OR'd together;
// a discount with zero groups always matches.
type ConditionGroup struct {
	ID         string
	Conditions []Condition
}

// ApplicationTargetType qualifies what an ApplicationRecord was applied to.
type ApplicationTargetType string

const (
	// ApplicationTargetOrder records a reduction applied to the whole order value.
	ApplicationTargetOrder ApplicationTargetType = "order"
	// ApplicationTargetOrderLine records a reduction applied to one order line.
	ApplicationTargetOrderLine ApplicationTargetType = "order_line"
	// ApplicationTargetShipping records a reduction applied to the shipping charge.
	ApplicationTargetShipping ApplicationTargetType = "shipping"
)

// ApplicationRecord is the immutable audit trail entry written when a discount is
// applied. AppliedAmount is the actual reduction, which may be smaller than the
// discount's nominal amount when clamped at zero.
type ApplicationRecord struct {
	ID            string
	DiscountID    string
	TargetID      string
	TargetType    ApplicationTargetType
	AppliedAmount Money
	CreatedAt     time.Time
}

// PriceBand is the cached per-product, per-currency price envelope used for catalog
// display. The *_initial fields reflect pricing before any sale; Min/Max reflect
// pricing after all currently-active unconditioned sales.
type PriceBand struct {
	ProductID  string
	Currency   string
	Base       int64
	MinInitial int64
	MaxInitial int64
	Min        int64
	Max        int64
	UpdatedAt  time.Time
}
