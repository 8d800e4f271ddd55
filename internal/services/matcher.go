package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/platform/requestctx"
)

// MatchResult is the outcome of checking one discount against a context.
// Reason is meaningful only when Matched is false.
type MatchResult struct {
	Matched bool
	Reason  NonMatchReason
}

// Matcher decides whether a discount's state, currency support and condition
// groups permit it to apply. Target applicability is a separate, per-target
// check because one discount can touch some lines and not others.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher builds a matcher. A nil logger falls back to a no-op logger.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Matches evaluates discount state and condition groups against the context.
// A condition of unknown kind makes only this discount non-matching; the
// incident is logged and evaluation of other discounts continues.
func (m *Matcher) Matches(ctx context.Context, d domain.Discount, ec domain.EvaluationContext) MatchResult {
	if !d.Active || d.IsDeleted() {
		return MatchResult{Reason: ReasonInactive}
	}
	if d.Percentage == nil {
		if _, ok := d.AmountFor(ec.Currency); !ok {
			return MatchResult{Reason: ReasonCurrencyUnsupported}
		}
	}
	ok, err := EvaluateGroups(ec, d.ID, d.ConditionGroups)
	if err != nil {
		m.loggerFor(ctx).Warn("discount has an unevaluable condition, treating as non-matching",
			zap.String("discount_id", d.ID),
			zap.Error(err),
		)
		return MatchResult{Reason: ReasonMalformed}
	}
	if !ok {
		return MatchResult{Reason: ReasonConditionsUnmet}
	}
	return MatchResult{Matched: true}
}

func (m *Matcher) loggerFor(ctx context.Context) *zap.Logger {
	if l := requestctx.Logger(ctx); l != requestctx.NoopLogger() {
		return l
	}
	return m.logger
}

// LineTargetApplies reports whether a PRODUCTS or CHEAPEST_PRODUCT discount
// covers the given line. setIDs must already include ancestor sets.
func LineTargetApplies(d domain.Discount, productID string, setIDs []string) bool {
	member := false
	for _, ref := range d.TargetRefs {
		switch ref.Kind {
		case domain.TargetRefProduct:
			if ref.ID == productID {
				member = true
			}
		case domain.TargetRefProductSet:
			for _, setID := range setIDs {
				if ref.ID == setID {
					member = true
					break
				}
			}
		}
		if member {
			break
		}
	}
	if d.TargetIsAllowList {
		return member
	}
	return !member
}

// ShippingTargetApplies reports whether a SHIPPING_PRICE discount covers the
// given shipping method.
func ShippingTargetApplies(d domain.Discount, shippingMethodID string) bool {
	member := false
	for _, ref := range d.TargetRefs {
		if ref.Kind == domain.TargetRefShippingMethod && ref.ID == shippingMethodID {
			member = true
			break
		}
	}
	if d.TargetIsAllowList {
		return member
	}
	return !member
}
