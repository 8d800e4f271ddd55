package domain

import (
	"time"
)

// ConditionKind enumerates the closed set of condition types the evaluator understands.
type ConditionKind string

const (
	// ConditionOrderValue gates on the order's value range per currency.
	ConditionOrderValue ConditionKind = "order_value"
	// ConditionUserIn gates on the acting user's identity.
	ConditionUserIn ConditionKind = "user_in"
	// ConditionUserInRole gates on the acting user's roles.
	ConditionUserInRole ConditionKind = "user_in_role"
	// ConditionProductIn gates on the products present in the cart.
	ConditionProductIn ConditionKind = "product_in"
	// ConditionProductInSet gates on product-set membership, transitively.
	ConditionProductInSet ConditionKind = "product_in_set"
	// ConditionDateBetween gates on the calendar date of the evaluation.
	ConditionDateBetween ConditionKind = "date_between"
	// ConditionTimeBetween gates on the time of day, wrapping at midnight.
	ConditionTimeBetween ConditionKind = "time_between"
	// ConditionWeekdayIn gates on the weekday via a 7-bit mask, Monday = bit 0.
	ConditionWeekdayIn ConditionKind = "weekday_in"
	// ConditionMaxUses caps the discount's global redemption count.
	ConditionMaxUses ConditionKind = "max_uses"
	// ConditionMaxUsesPerUser caps redemptions per acting identity.
	ConditionMaxUsesPerUser ConditionKind = "max_uses_per_user"
	// ConditionCartLength gates on the number of distinct order lines.
	ConditionCartLength ConditionKind = "cart_length"
	// ConditionCouponsCount gates on the number of coupons redeemed together.
	ConditionCouponsCount ConditionKind = "coupons_count"
)

// Condition is the tagged union over all condition kinds. Only the fields relevant
// to Kind are populated; the evaluator switches exhaustively on Kind.
type Condition struct {
	ID   string
	Kind ConditionKind

	// ORDER_VALUE: per-currency inclusive bounds, absent = unbounded on that side.
	MinValues     map[string]Money
	MaxValues     map[string]Money
	IncludesTaxes bool
	// IsInRange applies to ORDER_VALUE, DATE_BETWEEN and TIME_BETWEEN:
	// true means "match when inside the range", false negates.
	IsInRange bool

	// USER_IN / USER_IN_ROLE / PRODUCT_IN / PRODUCT_IN_SET: member ids plus list polarity.
	MemberIDs   []string
	IsAllowList bool

	// DATE_BETWEEN / TIME_BETWEEN bounds. For TIME_BETWEEN only the clock component
	// of Start/End is meaningful and the range wraps midnight when End < Start.
	Start *time.Time
	End   *time.Time

	// WEEKDAY_IN: bit i set means weekday i is active, Monday = 0 .. Sunday = 6.
	WeekdayMask uint8

	// MAX_USES / MAX_USES_PER_USER cap.
	MaxUses int64

	// CART_LENGTH / COUPONS_COUNT inclusive bounds, nil = unbounded.
	MinCount *int
	MaxCount *int
}

// WeekdayBit maps a time.Weekday onto the Monday-first bit convention.
func WeekdayBit(day time.Weekday) uint8 {
	// time.Weekday has Sunday = 0; shift so Monday = bit 0 and Sunday = bit 6.
	return uint8((int(day) + 6) % 7)
}

// WeekdayMaskFromBools packs a Monday-first boolean array into a 7-bit mask.
func WeekdayMaskFromBools(days [7]bool) uint8 {
	var mask uint8
	for i, active := range days {
		if active {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// WeekdayMaskToBools unpacks a 7-bit mask into the Monday-first boolean array.
func WeekdayMaskToBools(mask uint8) [7]bool {
	var days [7]bool
	for i := range days {
		days[i] = mask&(1<<uint(i)) != 0
	}
	return days
}

// Identity names the acting user for an evaluation. The zero value is anonymous.
type Identity struct {
	UserID  string
	RoleIDs []string
}

// IsAnonymous reports whether no authenticated user is acting.
func (i Identity) IsAnonymous() bool { return i.UserID == "" }

// UsageReader exposes current redemption counters to usage conditions.
// Implementations must be side-effect free; evaluation never increments.
type UsageReader interface {
	Uses(discountID string) int64
	UsesBy(discountID, userID string) int64
}

// EvaluationContext carries every fact conditions test against. It is assembled by
// the calling layer (order creation, pre-validation) and is immutable during a run.
type EvaluationContext struct {
	Now      time.Time
	Identity Identity

	// Order value per currency, with and without taxes.
	ValueWithTaxes    map[string]Money
	ValueWithoutTaxes map[string]Money
	Currency          string

	// ProductIDs and ProductSetIDs cover every line in the cart; set ids already
	// include ancestors so set-membership checks stay O(1) here.
	ProductIDs    map[string]struct{}
	ProductSetIDs map[string]struct{}

	LineCount   int
	CouponCount int

	Usage UsageReader
}

// Value returns the order value in the context currency honouring the taxes flag.
func (c EvaluationContext) Value(includeTaxes bool) (Money, bool) {
	source := c.ValueWithoutTaxes
	if includeTaxes {
		source = c.ValueWithTaxes
	}
	if source == nil {
		return Money{}, false
	}
	m, ok := source[c.Currency]
	return m, ok
}
