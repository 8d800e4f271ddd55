package services

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscountRepositoryMissing indicates the discount repository dependency is absent.
	ErrDiscountRepositoryMissing = errors.New("discount service: repository is not configured")
	// ErrUnknownConditionKind signals a stored condition whose kind the evaluator does not
	// understand. The owning discount is treated as non-matching; other discounts proceed.
	ErrUnknownConditionKind = errors.New("discount service: unknown condition kind")
	// ErrUsageCapExceeded is returned when the transactional increment finds a cap
	// already reached. Coupons surface it as CouponNotApplicableError; sales skip.
	ErrUsageCapExceeded = errors.New("discount service: usage cap exceeded")
	// ErrDiscountNotFound indicates no discount exists for the provided id or code.
	ErrDiscountNotFound = errors.New("discount service: discount not found")
	// ErrPriceBandUnavailable indicates a product has no base price to recalculate from.
	ErrPriceBandUnavailable = errors.New("price band service: product has no base price")
	// ErrRecordsUnavailable indicates no application record repository is configured.
	ErrRecordsUnavailable = errors.New("redemption service: application records are not configured")
)

// NonMatchReason explains why a discount did not apply during an evaluation.
type NonMatchReason string

const (
	// ReasonNotFound means no discount exists for the supplied code.
	ReasonNotFound NonMatchReason = "not_found"
	// ReasonInactive means the discount is switched off or soft-deleted.
	ReasonInactive NonMatchReason = "inactive"
	// ReasonConditionsUnmet means no condition group evaluated true.
	ReasonConditionsUnmet NonMatchReason = "conditions_unmet"
	// ReasonUsageCapReached means a MAX_USES or MAX_USES_PER_USER cap blocked the discount.
	ReasonUsageCapReached NonMatchReason = "usage_cap_reached"
	// ReasonCurrencyUnsupported means the discount defines no amount for the order currency.
	ReasonCurrencyUnsupported NonMatchReason = "currency_unsupported"
	// ReasonMalformed means the stored discount data could not be evaluated.
	ReasonMalformed NonMatchReason = "malformed"
)

// CouponNotApplicableError aborts order evaluation when an explicitly supplied coupon
// code cannot be applied. Sales never produce this error; they are skipped silently.
type CouponNotApplicableError struct {
	Code   string
	Reason NonMatchReason
}

// Error implements the error interface.
func (e *CouponNotApplicableError) Error() string {
	return fmt.Sprintf("coupon %q not applicable: %s", e.Code, e.Reason)
}

// IsCouponNotApplicable reports whether err is a coupon rejection and returns it.
func IsCouponNotApplicable(err error) (*CouponNotApplicableError, bool) {
	var cErr *CouponNotApplicableError
	if errors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}
