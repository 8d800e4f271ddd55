package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/repositories"
)

// OrderLineInput is one cart line as the ordering flow sees it.
// ProductSetIDs must already include ancestor sets.
type OrderLineInput struct {
	ID            string
	ProductID     string
	ProductSetIDs []string
	Quantity      int
	UnitPrice     domain.Money
}

// OrderEvaluationInput carries everything one pricing run needs. The engine
// performs no catalog or tax lookups of its own.
type OrderEvaluationInput struct {
	OrderID          string
	Currency         string
	Identity         domain.Identity
	Lines            []OrderLineInput
	ShippingMethodID string
	ShippingPrice    domain.Money
	// TaxTotal is the tax charged on the undiscounted order, used only for
	// ORDER_VALUE conditions that compare tax-inclusive values.
	TaxTotal    domain.Money
	CouponCodes []string
}

// LineEvaluation is the priced outcome for one order line.
type LineEvaluation struct {
	LineID       string
	ProductID    string
	Original     domain.Money
	Final        domain.Money
	Applications []domain.ApplicationRecord
}

// ShippingEvaluation is the priced outcome for the shipping charge.
type ShippingEvaluation struct {
	Original     domain.Money
	Final        domain.Money
	Applications []domain.ApplicationRecord
}

// OrderEvaluation is the full result of one pricing run. It is a pure value;
// nothing is persisted until the order flow commits it.
type OrderEvaluation struct {
	OrderID  string
	Currency string

	Lines             []LineEvaluation
	Shipping          ShippingEvaluation
	OrderApplications []domain.ApplicationRecord

	// Subtotal is the undiscounted sum of all lines, shipping excluded.
	Subtotal domain.Money
	// Total is the payable amount after every pass, shipping included.
	Total domain.Money
	// TotalDiscount is the sum of every applied reduction.
	TotalDiscount domain.Money

	// AppliedDiscounts lists ids of discounts that produced at least one
	// application record, in application order.
	AppliedDiscounts []string
	// Caps are the usage limits that must still hold when the order commits.
	Caps []repositories.UsageCap

	EvaluatedAt time.Time
}

// Records flattens every application record in the evaluation.
func (e OrderEvaluation) Records() []domain.ApplicationRecord {
	var out []domain.ApplicationRecord
	for _, line := range e.Lines {
		out = append(out, line.Applications...)
	}
	out = append(out, e.Shipping.Applications...)
	out = append(out, e.OrderApplications...)
	return out
}

// PricingEngineDeps wires the pricing engine's collaborators.
type PricingEngineDeps struct {
	Discounts repositories.DiscountRepository
	Usage     repositories.UsageRepository
	Logger    *zap.Logger
	Clock     func() time.Time
	// NewID mints application record ids. Defaults to ULID.
	NewID func() string
}

// PricingEngine evaluates sales and coupons against an order and produces the
// reduced prices plus the application trail. Evaluation itself never writes.
type PricingEngine struct {
	discounts repositories.DiscountRepository
	usage     repositories.UsageRepository
	matcher   *Matcher
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string
}

// NewPricingEngine validates dependencies and builds the engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Discounts == nil {
		return nil, ErrDiscountRepositoryMissing
	}
	if deps.Usage == nil {
		return nil, fmt.Errorf("pricing engine: usage repository is required")
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
	return &PricingEngine{
		discounts: deps.Discounts,
		usage:     deps.Usage,
		matcher:   NewMatcher(logger),
		logger:    logger,
		clock:     clock,
		newID:     newID,
	}, nil
}

// EvaluateOrder runs the full pricing pipeline: load candidates, match, then
// apply in four passes (lines, cheapest line, shipping, order value), each
// pass compounding in priority order. A coupon that cannot apply aborts the
// whole evaluation with CouponNotApplicableError; sales that cannot apply are
// skipped silently.
func (e *PricingEngine) EvaluateOrder(ctx context.Context, input OrderEvaluationInput) (OrderEvaluation, error) {
	now := e.clock().UTC()

	currency, err := domain.NormalizeCurrency(input.Currency)
	if err != nil {
		return OrderEvaluation{}, err
	}
	if err := checkInputCurrencies(input, currency); err != nil {
		return OrderEvaluation{}, err
	}

	if input.ShippingPrice.Currency == "" {
		input.ShippingPrice.Currency = currency
	}
	ec := buildContext(now, currency, input)

	matched, caps, err := e.matchCandidates(ctx, input, ec)
	if err != nil {
		return OrderEvaluation{}, err
	}

	eval := OrderEvaluation{
		OrderID:     input.OrderID,
		Currency:    currency,
		EvaluatedAt: now,
		Caps:        caps,
	}

	lines := make([]*lineState, len(input.Lines))
	for i, in := range input.Lines {
		qty := in.Quantity
		if qty < 1 {
			qty = 1
		}
		unit := in.UnitPrice
		if unit.Currency == "" {
			unit.Currency = currency
		}
		lines[i] = &lineState{
			input:        in,
			quantity:     qty,
			unit:         unit,
			cheapestUnit: unit,
			total:        domain.Money{Amount: unit.Amount * int64(qty), Currency: currency},
		}
	}

	applied := newAppliedSet()
	if err := e.applyLinePass(now, lines, matched[domain.TargetProducts], applied); err != nil {
		return OrderEvaluation{}, err
	}
	if err := e.applyCheapestPass(now, lines, matched[domain.TargetCheapestProduct], applied); err != nil {
		return OrderEvaluation{}, err
	}

	shipping := ShippingEvaluation{Original: input.ShippingPrice, Final: input.ShippingPrice}
	if err := e.applyShippingPass(now, input, &shipping, matched[domain.TargetShippingPrice], applied); err != nil {
		return OrderEvaluation{}, err
	}

	subtotal := domain.Money{Currency: currency}
	running := domain.Money{Currency: currency}
	for _, line := range lines {
		original := domain.Money{Amount: line.input.UnitPrice.Amount * int64(line.quantity), Currency: currency}
		subtotal.Amount += original.Amount
		running.Amount += line.total.Amount
		eval.Lines = append(eval.Lines, LineEvaluation{
			LineID:       line.input.ID,
			ProductID:    line.input.ProductID,
			Original:     original,
			Final:        line.total,
			Applications: line.applications,
		})
	}
	running.Amount += shipping.Final.Amount

	orderApps, total, err := e.applyOrderPass(input.OrderID, now, running, matched[domain.TargetOrderValue], applied)
	if err != nil {
		return OrderEvaluation{}, err
	}

	eval.Shipping = shipping
	eval.OrderApplications = orderApps
	eval.Subtotal = subtotal
	eval.Total = total
	eval.TotalDiscount = domain.Money{
		Amount:   subtotal.Amount + input.ShippingPrice.Amount - total.Amount,
		Currency: currency,
	}
	eval.AppliedDiscounts = applied.ordered
	eval.Caps = filterCaps(caps, applied)
	return eval, nil
}

type lineState struct {
	input    OrderLineInput
	quantity int
	unit     domain.Money
	// cheapestUnit is the running price of the single unit the
	// cheapest-product pass discounts, so stacked discounts there compound
	// the same way per-line discounts do on unit.
	cheapestUnit domain.Money
	total        domain.Money
	applications []domain.ApplicationRecord
}

type appliedSet struct {
	seen    map[string]struct{}
	ordered []string
}

func newAppliedSet() *appliedSet {
	return &appliedSet{seen: map[string]struct{}{}}
}

func (s *appliedSet) add(discountID string) {
	if _, ok := s.seen[discountID]; ok {
		return
	}
	s.seen[discountID] = struct{}{}
	s.ordered = append(s.ordered, discountID)
}

func buildContext(now time.Time, currency string, input OrderEvaluationInput) domain.EvaluationContext {
	productIDs := make(map[string]struct{}, len(input.Lines))
	setIDs := map[string]struct{}{}
	// Coupon codes are deduplicated before lookup, so the count has to be of
	// distinct codes too.
	codes := map[string]struct{}{}
	for _, code := range input.CouponCodes {
		codes[code] = struct{}{}
	}
	var lineSum int64
	for _, line := range input.Lines {
		productIDs[line.ProductID] = struct{}{}
		for _, setID := range line.ProductSetIDs {
			setIDs[setID] = struct{}{}
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		lineSum += line.UnitPrice.Amount * int64(qty)
	}
	withoutTaxes := lineSum + input.ShippingPrice.Amount
	withTaxes := withoutTaxes + input.TaxTotal.Amount

	return domain.EvaluationContext{
		Now:      now,
		Identity: input.Identity,
		ValueWithoutTaxes: map[string]domain.Money{
			currency: {Amount: withoutTaxes, Currency: currency},
		},
		ValueWithTaxes: map[string]domain.Money{
			currency: {Amount: withTaxes, Currency: currency},
		},
		Currency:      currency,
		ProductIDs:    productIDs,
		ProductSetIDs: setIDs,
		LineCount:     len(input.Lines),
		CouponCount:   len(codes),
	}
}

// matchCandidates loads active sales plus the requested coupons, attaches a
// usage snapshot, and returns the matched discounts bucketed by target type.
func (e *PricingEngine) matchCandidates(ctx context.Context, input OrderEvaluationInput, ec domain.EvaluationContext) (map[domain.TargetType][]domain.Discount, []repositories.UsageCap, error) {
	sales, err := e.discounts.ListActiveSales(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pricing engine: list sales: %w", err)
	}

	coupons := make([]domain.Discount, 0, len(input.CouponCodes))
	seenCodes := map[string]struct{}{}
	for _, code := range input.CouponCodes {
		if _, dup := seenCodes[code]; dup {
			continue
		}
		seenCodes[code] = struct{}{}
		coupon, err := e.discounts.FindByCode(ctx, code)
		if err != nil {
			if isNotFound(err) {
				return nil, nil, &CouponNotApplicableError{Code: code, Reason: ReasonNotFound}
			}
			return nil, nil, fmt.Errorf("pricing engine: find coupon %q: %w", code, err)
		}
		coupons = append(coupons, coupon)
	}

	candidates := make([]domain.Discount, 0, len(sales)+len(coupons))
	candidates = append(candidates, sales...)
	candidates = append(candidates, coupons...)

	ec.Usage, err = e.usageSnapshot(ctx, candidates, input.Identity)
	if err != nil {
		return nil, nil, err
	}

	matched := map[domain.TargetType][]domain.Discount{}
	var caps []repositories.UsageCap
	for _, d := range candidates {
		result := e.matcher.Matches(ctx, d, ec)
		if !result.Matched {
			if d.IsCoupon() {
				return nil, nil, &CouponNotApplicableError{Code: *d.Code, Reason: result.Reason}
			}
			e.logger.Debug("sale skipped",
				zap.String("discount_id", d.ID),
				zap.String("reason", string(result.Reason)),
			)
			continue
		}
		matched[d.TargetType] = append(matched[d.TargetType], d)
		if limit, ok := capFor(d); ok {
			caps = append(caps, limit)
		}
	}
	for _, bucket := range matched {
		sortDiscounts(bucket)
	}
	return matched, caps, nil
}

// usageSnapshot preloads redemption counters for candidates carrying usage
// conditions, so condition evaluation itself stays free of I/O.
func (e *PricingEngine) usageSnapshot(ctx context.Context, candidates []domain.Discount, identity domain.Identity) (domain.UsageReader, error) {
	var ids []string
	for _, d := range candidates {
		if _, ok := capFor(d); ok {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return repositories.UsageCounts{}, nil
	}
	counts, err := e.usage.Counts(ctx, ids, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("pricing engine: load usage counters: %w", err)
	}
	return counts, nil
}

func (e *PricingEngine) applyLinePass(now time.Time, lines []*lineState, discounts []domain.Discount, applied *appliedSet) error {
	for _, d := range discounts {
		for _, line := range lines {
			if !LineTargetApplies(d, line.input.ProductID, line.input.ProductSetIDs) {
				continue
			}
			reducedUnit, err := reduceOnce(d, line.unit)
			if err != nil {
				return err
			}
			perUnit := line.unit.Amount - reducedUnit.Amount
			lineReduction := perUnit * int64(line.quantity)
			line.unit = reducedUnit
			line.cheapestUnit = reducedUnit
			line.total.Amount -= lineReduction
			line.applications = append(line.applications, domain.ApplicationRecord{
				ID:            e.newID(),
				DiscountID:    d.ID,
				TargetID:      line.input.ID,
				TargetType:    domain.ApplicationTargetOrderLine,
				AppliedAmount: domain.Money{Amount: lineReduction, Currency: line.total.Currency},
				CreatedAt:     now,
			})
			applied.add(d.ID)
		}
	}
	return nil
}

// applyCheapestPass reduces exactly one unit of the qualifying line with the
// lowest current unit price. Ties resolve to the earliest line.
func (e *PricingEngine) applyCheapestPass(now time.Time, lines []*lineState, discounts []domain.Discount, applied *appliedSet) error {
	for _, d := range discounts {
		var cheapest *lineState
		for _, line := range lines {
			if !LineTargetApplies(d, line.input.ProductID, line.input.ProductSetIDs) {
				continue
			}
			if cheapest == nil || line.cheapestUnit.Amount < cheapest.cheapestUnit.Amount {
				cheapest = line
			}
		}
		if cheapest == nil {
			e.logger.Debug("cheapest-product discount has no qualifying line", zap.String("discount_id", d.ID))
			continue
		}
		reducedUnit, err := reduceOnce(d, cheapest.cheapestUnit)
		if err != nil {
			return err
		}
		reduction := cheapest.cheapestUnit.Amount - reducedUnit.Amount
		if reduction > cheapest.total.Amount {
			reduction = cheapest.total.Amount
		}
		cheapest.cheapestUnit = reducedUnit
		cheapest.total.Amount -= reduction
		cheapest.applications = append(cheapest.applications, domain.ApplicationRecord{
			ID:            e.newID(),
			DiscountID:    d.ID,
			TargetID:      cheapest.input.ID,
			TargetType:    domain.ApplicationTargetOrderLine,
			AppliedAmount: domain.Money{Amount: reduction, Currency: cheapest.total.Currency},
			CreatedAt:     now,
		})
		applied.add(d.ID)
	}
	return nil
}

func (e *PricingEngine) applyShippingPass(now time.Time, input OrderEvaluationInput, shipping *ShippingEvaluation, discounts []domain.Discount, applied *appliedSet) error {
	for _, d := range discounts {
		if !ShippingTargetApplies(d, input.ShippingMethodID) {
			continue
		}
		reduced, err := reduceOnce(d, shipping.Final)
		if err != nil {
			return err
		}
		reduction := shipping.Final.Amount - reduced.Amount
		shipping.Final = reduced
		shipping.Applications = append(shipping.Applications, domain.ApplicationRecord{
			ID:            e.newID(),
			DiscountID:    d.ID,
			TargetID:      input.ShippingMethodID,
			TargetType:    domain.ApplicationTargetShipping,
			AppliedAmount: domain.Money{Amount: reduction, Currency: shipping.Final.Currency},
			CreatedAt:     now,
		})
		applied.add(d.ID)
	}
	return nil
}

func (e *PricingEngine) applyOrderPass(orderID string, now time.Time, running domain.Money, discounts []domain.Discount, applied *appliedSet) ([]domain.ApplicationRecord, domain.Money, error) {
	var records []domain.ApplicationRecord
	for _, d := range discounts {
		reduced, err := reduceOnce(d, running)
		if err != nil {
			return nil, domain.Money{}, err
		}
		reduction := running.Amount - reduced.Amount
		running = reduced
		records = append(records, domain.ApplicationRecord{
			ID:            e.newID(),
			DiscountID:    d.ID,
			TargetID:      orderID,
			TargetType:    domain.ApplicationTargetOrder,
			AppliedAmount: domain.Money{Amount: reduction, Currency: running.Currency},
			CreatedAt:     now,
		})
		applied.add(d.ID)
	}
	return records, running, nil
}

// reduceOnce returns price after applying the discount once, clamped at zero.
func reduceOnce(d domain.Discount, price domain.Money) (domain.Money, error) {
	if d.Percentage != nil {
		reduction, err := price.PercentageOf(*d.Percentage)
		if err != nil {
			return domain.Money{}, fmt.Errorf("discount %s: %w", d.ID, err)
		}
		return price.Sub(reduction)
	}
	amount, ok := d.AmountFor(price.Currency)
	if !ok {
		// Matching already rejected unsupported currencies; stale data lands here.
		return domain.Money{}, fmt.Errorf("discount %s: %w for %s", d.ID, domain.ErrCurrencyMismatch, price.Currency)
	}
	return price.Sub(amount)
}

// sortDiscounts orders a bucket for compounding: priority first (lower wins),
// then creation time, then id for a total order.
func sortDiscounts(discounts []domain.Discount) {
	sort.SliceStable(discounts, func(i, j int) bool {
		a, b := discounts[i], discounts[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func capFor(d domain.Discount) (repositories.UsageCap, bool) {
	limit := repositories.UsageCap{DiscountID: d.ID}
	found := false
	for _, group := range d.ConditionGroups {
		for _, cond := range group.Conditions {
			switch cond.Kind {
			case domain.ConditionMaxUses:
				limit.MaxUses = cond.MaxUses
				found = true
			case domain.ConditionMaxUsesPerUser:
				limit.MaxUsesPerUser = cond.MaxUses
				found = true
			}
		}
	}
	return limit, found
}

func filterCaps(caps []repositories.UsageCap, applied *appliedSet) []repositories.UsageCap {
	var out []repositories.UsageCap
	for _, limit := range caps {
		if _, ok := applied.seen[limit.DiscountID]; ok {
			out = append(out, limit)
		}
	}
	return out
}

func checkInputCurrencies(input OrderEvaluationInput, currency string) error {
	for _, line := range input.Lines {
		if line.UnitPrice.Currency != "" && line.UnitPrice.Currency != currency {
			return fmt.Errorf("line %s: %w", line.ID, domain.ErrCurrencyMismatch)
		}
	}
	if input.ShippingPrice.Currency != "" && input.ShippingPrice.Currency != currency {
		return fmt.Errorf("shipping price: %w", domain.ErrCurrencyMismatch)
	}
	return nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
