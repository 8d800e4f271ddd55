package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/repositories"
)

type fakeDiscountRepo struct {
	sales   []domain.Discount
	byCode  map[string]domain.Discount
	listErr error
}

func (f *fakeDiscountRepo) FindByID(ctx context.Context, id string) (domain.Discount, error) {
	for _, d := range f.sales {
		if d.ID == id {
			return d, nil
		}
	}
	for _, d := range f.byCode {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Discount{}, &notFoundErr{}
}

func (f *fakeDiscountRepo) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	if d, ok := f.byCode[code]; ok {
		return d, nil
	}
	return domain.Discount{}, &notFoundErr{}
}

func (f *fakeDiscountRepo) ListActiveSales(ctx context.Context) ([]domain.Discount, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sales, nil
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string       { return "not found" }
func (e *notFoundErr) IsNotFound() bool    { return true }
func (e *notFoundErr) IsConflict() bool    { return false }
func (e *notFoundErr) IsUnavailable() bool { return false }

type fakeUsageRepo struct {
	counts  repositories.UsageCounts
	commits []repositories.ApplicationCommit
}

func (f *fakeUsageRepo) Counts(ctx context.Context, ids []string, userID string) (repositories.UsageCounts, error) {
	return f.counts, nil
}

func (f *fakeUsageRepo) Commit(ctx context.Context, commit repositories.ApplicationCommit) error {
	f.commits = append(f.commits, commit)
	return nil
}

func testEngine(t *testing.T, discounts *fakeDiscountRepo, usage *fakeUsageRepo) *PricingEngine {
	t.Helper()
	if usage == nil {
		usage = &fakeUsageRepo{}
	}
	seq := 0
	engine, err := NewPricingEngine(PricingEngineDeps{
		Discounts: discounts,
		Usage:     usage,
		Clock:     func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("rec-%03d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func pct(p domain.Percentage) *domain.Percentage { return &p }

func strPtr(s string) *string { return &s }

func TestEvaluateOrderAppliesPercentagePerUnit(t *testing.T) {
	sale := domain.Discount{
		ID:         "sale-35",
		Name:       "spring sale",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(35, 0)),
		TargetType: domain.TargetProducts,
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{sale}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-1",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID:        "line-1",
			ProductID: "prod-1",
			Quantity:  2,
			UnitPrice: domain.MustMoney(558875, "USD"),
		}},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}

	// 35% of 558875 is 195606.25, rounded half up to 195606 per unit.
	wantFinal := int64((558875 - 195606) * 2)
	if got := eval.Lines[0].Final.Amount; got != wantFinal {
		t.Errorf("line final = %d, want %d", got, wantFinal)
	}
	if got := eval.TotalDiscount.Amount; got != 195606*2 {
		t.Errorf("total discount = %d, want %d", got, 195606*2)
	}
	apps := eval.Lines[0].Applications
	if len(apps) != 1 {
		t.Fatalf("applications = %d, want 1", len(apps))
	}
	if apps[0].AppliedAmount.Amount != 195606*2 {
		t.Errorf("applied amount = %d, want %d", apps[0].AppliedAmount.Amount, 195606*2)
	}
	if apps[0].TargetType != domain.ApplicationTargetOrderLine {
		t.Errorf("target type = %s, want order_line", apps[0].TargetType)
	}
}

func TestEvaluateOrderCompoundsInPriorityOrder(t *testing.T) {
	// Priority 1: 50% off order. Priority 2: 1000 off order. Compounding means
	// the fixed amount applies to the already-halved total.
	half := domain.Discount{
		ID:         "sale-half",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(50, 0)),
		Priority:   1,
		TargetType: domain.TargetOrderValue,
	}
	tenOff := domain.Discount{
		ID:         "sale-ten",
		Active:     true,
		Amounts:    map[string]domain.Money{"USD": domain.MustMoney(1000, "USD")},
		Priority:   2,
		TargetType: domain.TargetOrderValue,
	}
	// Listed out of order on purpose.
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{tenOff, half}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-2",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(10000, "USD"),
		}},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}

	if got := eval.Total.Amount; got != 4000 {
		t.Errorf("total = %d, want 4000", got)
	}
	if len(eval.OrderApplications) != 2 {
		t.Fatalf("order applications = %d, want 2", len(eval.OrderApplications))
	}
	if eval.OrderApplications[0].DiscountID != "sale-half" {
		t.Errorf("first applied = %s, want sale-half", eval.OrderApplications[0].DiscountID)
	}
	if eval.AppliedDiscounts[0] != "sale-half" || eval.AppliedDiscounts[1] != "sale-ten" {
		t.Errorf("applied order = %v", eval.AppliedDiscounts)
	}
}

func TestEvaluateOrderUnknownCouponAborts(t *testing.T) {
	engine := testEngine(t, &fakeDiscountRepo{byCode: map[string]domain.Discount{}}, nil)

	_, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-3",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
		CouponCodes: []string{"NOPE"},
	})
	cErr, ok := IsCouponNotApplicable(err)
	if !ok {
		t.Fatalf("err = %v, want CouponNotApplicableError", err)
	}
	if cErr.Code != "NOPE" || cErr.Reason != ReasonNotFound {
		t.Errorf("got code=%q reason=%q", cErr.Code, cErr.Reason)
	}
}

func TestEvaluateOrderFifteenPercentCouponOnHundred(t *testing.T) {
	coupon := domain.Discount{
		ID:         "coupon-fifteen",
		Code:       strPtr("SAVE15"),
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(15, 0)),
		TargetType: domain.TargetOrderValue,
	}
	engine := testEngine(t, &fakeDiscountRepo{byCode: map[string]domain.Discount{"SAVE15": coupon}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-15",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(10000, "USD"),
		}},
		ShippingPrice: domain.MustMoney(600, "USD"),
		CouponCodes:   []string{"SAVE15"},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}

	// 100.00 minus 15% plus 6.00 shipping.
	if eval.Subtotal.Amount != 10000 {
		t.Errorf("subtotal = %d, want 10000", eval.Subtotal.Amount)
	}
	if eval.TotalDiscount.Amount != 1500 {
		t.Errorf("total discount = %d, want 1500", eval.TotalDiscount.Amount)
	}
	if eval.Total.Amount != 9100 {
		t.Errorf("total = %d, want 9100", eval.Total.Amount)
	}
	if len(eval.OrderApplications) != 1 || eval.OrderApplications[0].DiscountID != "coupon-fifteen" {
		t.Fatalf("order applications = %+v, want one for coupon-fifteen", eval.OrderApplications)
	}
	if eval.OrderApplications[0].AppliedAmount.Amount != 1500 {
		t.Errorf("applied amount = %d, want 1500", eval.OrderApplications[0].AppliedAmount.Amount)
	}
	if len(eval.AppliedDiscounts) != 1 || eval.AppliedDiscounts[0] != "coupon-fifteen" {
		t.Errorf("applied discounts = %v, want [coupon-fifteen]", eval.AppliedDiscounts)
	}
}

func TestEvaluateOrderRepeatedCouponCodeCountsOnce(t *testing.T) {
	// A repeated code is looked up once, so it must count once for
	// COUPONS_COUNT conditions too.
	coupon := domain.Discount{
		ID:         "coupon-solo",
		Code:       strPtr("SOLO"),
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(10, 0)),
		TargetType: domain.TargetOrderValue,
		ConditionGroups: []domain.ConditionGroup{{
			Conditions: []domain.Condition{{
				Kind: domain.ConditionCouponsCount, MaxCount: intPtr(1),
			}},
		}},
	}
	engine := testEngine(t, &fakeDiscountRepo{byCode: map[string]domain.Discount{"SOLO": coupon}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-16",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
		CouponCodes: []string{"SOLO", "SOLO"},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if len(eval.OrderApplications) != 1 {
		t.Fatalf("order applications = %d, want 1", len(eval.OrderApplications))
	}
	if eval.Total.Amount != 4500 {
		t.Errorf("total = %d, want 4500", eval.Total.Amount)
	}
}

func TestEvaluateOrderCouponConditionFailureAbortsSaleSkips(t *testing.T) {
	minOrder := domain.Condition{
		Kind:      domain.ConditionOrderValue,
		MinValues: map[string]domain.Money{"USD": domain.MustMoney(100000, "USD")},
		IsInRange: true,
	}
	failingSale := domain.Discount{
		ID:              "sale-big-orders",
		Active:          true,
		Percentage:      pct(domain.PercentFromBasis(10, 0)),
		TargetType:      domain.TargetOrderValue,
		ConditionGroups: []domain.ConditionGroup{{Conditions: []domain.Condition{minOrder}}},
	}
	coupon := domain.Discount{
		ID:              "coupon-big-orders",
		Active:          true,
		Percentage:      pct(domain.PercentFromBasis(10, 0)),
		Code:            strPtr("BIG10"),
		TargetType:      domain.TargetOrderValue,
		ConditionGroups: []domain.ConditionGroup{{Conditions: []domain.Condition{minOrder}}},
	}
	repo := &fakeDiscountRepo{
		sales:  []domain.Discount{failingSale},
		byCode: map[string]domain.Discount{"BIG10": coupon},
	}
	engine := testEngine(t, repo, nil)

	input := OrderEvaluationInput{
		OrderID:  "order-4",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
	}

	// Sale alone: evaluation succeeds with no reductions.
	eval, err := engine.EvaluateOrder(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluateOrder without coupon: %v", err)
	}
	if eval.Total.Amount != 5000 {
		t.Errorf("total = %d, want 5000", eval.Total.Amount)
	}
	if len(eval.AppliedDiscounts) != 0 {
		t.Errorf("applied = %v, want none", eval.AppliedDiscounts)
	}

	// Same conditions on an explicit coupon: evaluation aborts.
	input.CouponCodes = []string{"BIG10"}
	_, err = engine.EvaluateOrder(context.Background(), input)
	cErr, ok := IsCouponNotApplicable(err)
	if !ok {
		t.Fatalf("err = %v, want CouponNotApplicableError", err)
	}
	if cErr.Reason != ReasonConditionsUnmet {
		t.Errorf("reason = %q, want conditions_unmet", cErr.Reason)
	}
}

func TestEvaluateOrderCheapestProductAppliesOnce(t *testing.T) {
	sale := domain.Discount{
		ID:         "sale-cheapest",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(100, 0)),
		TargetType: domain.TargetCheapestProduct,
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{sale}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-5",
		Currency: "USD",
		Lines: []OrderLineInput{
			{ID: "line-1", ProductID: "prod-a", Quantity: 1, UnitPrice: domain.MustMoney(8000, "USD")},
			{ID: "line-2", ProductID: "prod-b", Quantity: 3, UnitPrice: domain.MustMoney(2000, "USD")},
		},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}

	// One unit of the cheapest line goes free, the other two stay.
	if got := eval.Lines[1].Final.Amount; got != 4000 {
		t.Errorf("cheapest line final = %d, want 4000", got)
	}
	if got := eval.Lines[0].Final.Amount; got != 8000 {
		t.Errorf("other line final = %d, want 8000", got)
	}
	if got := eval.Total.Amount; got != 12000 {
		t.Errorf("total = %d, want 12000", got)
	}
}

func TestEvaluateOrderCheapestDiscountsCompound(t *testing.T) {
	// The second discount applies to the unit price the first one already
	// reduced, not to the original.
	first := domain.Discount{
		ID:         "sale-half-a",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(50, 0)),
		Priority:   1,
		TargetType: domain.TargetCheapestProduct,
	}
	second := domain.Discount{
		ID:         "sale-half-b",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(50, 0)),
		Priority:   2,
		TargetType: domain.TargetCheapestProduct,
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{second, first}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-6",
		Currency: "USD",
		Lines: []OrderLineInput{
			{ID: "line-1", ProductID: "prod-a", Quantity: 1, UnitPrice: domain.MustMoney(10000, "USD")},
		},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}

	// 10000 -> 5000 -> 2500.
	if got := eval.Lines[0].Final.Amount; got != 2500 {
		t.Errorf("line final = %d, want 2500", got)
	}
	apps := eval.Lines[0].Applications
	if len(apps) != 2 {
		t.Fatalf("applications = %d, want 2", len(apps))
	}
	if apps[0].AppliedAmount.Amount != 5000 || apps[1].AppliedAmount.Amount != 2500 {
		t.Errorf("applied amounts = %d then %d, want 5000 then 2500",
			apps[0].AppliedAmount.Amount, apps[1].AppliedAmount.Amount)
	}
}

func TestEvaluateOrderShippingTargetedByMethod(t *testing.T) {
	freeShipping := domain.Discount{
		ID:                "sale-free-ship",
		Active:            true,
		Percentage:        pct(domain.PercentFromBasis(100, 0)),
		TargetType:        domain.TargetShippingPrice,
		TargetIsAllowList: true,
		TargetRefs: []domain.TargetRef{
			{Kind: domain.TargetRefShippingMethod, ID: "express"},
		},
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{freeShipping}}, nil)

	base := OrderEvaluationInput{
		OrderID:  "order-6",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
		ShippingPrice: domain.MustMoney(1500, "USD"),
	}

	base.ShippingMethodID = "standard"
	eval, err := engine.EvaluateOrder(context.Background(), base)
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if eval.Shipping.Final.Amount != 1500 {
		t.Errorf("standard shipping final = %d, want 1500", eval.Shipping.Final.Amount)
	}

	base.ShippingMethodID = "express"
	eval, err = engine.EvaluateOrder(context.Background(), base)
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if eval.Shipping.Final.Amount != 0 {
		t.Errorf("express shipping final = %d, want 0", eval.Shipping.Final.Amount)
	}
	if eval.Total.Amount != 5000 {
		t.Errorf("total = %d, want 5000", eval.Total.Amount)
	}
}

func TestEvaluateOrderAmountClampsAtZero(t *testing.T) {
	bigOff := domain.Discount{
		ID:         "sale-100-off",
		Active:     true,
		Amounts:    map[string]domain.Money{"USD": domain.MustMoney(100000, "USD")},
		TargetType: domain.TargetOrderValue,
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{bigOff}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-7",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(1000, "USD"),
		}},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if eval.Total.Amount != 0 {
		t.Errorf("total = %d, want 0", eval.Total.Amount)
	}
	// Applied amount records the actual reduction, not the nominal 100000.
	if got := eval.OrderApplications[0].AppliedAmount.Amount; got != 1000 {
		t.Errorf("applied = %d, want 1000", got)
	}
}

func TestEvaluateOrderUsageCapSkipsSale(t *testing.T) {
	capped := domain.Discount{
		ID:         "sale-capped",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(10, 0)),
		TargetType: domain.TargetOrderValue,
		ConditionGroups: []domain.ConditionGroup{{
			Conditions: []domain.Condition{{Kind: domain.ConditionMaxUses, MaxUses: 5}},
		}},
	}
	usage := &fakeUsageRepo{counts: repositories.UsageCounts{
		Total: map[string]int64{"sale-capped": 5},
	}}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{capped}}, usage)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-8",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if len(eval.AppliedDiscounts) != 0 {
		t.Errorf("applied = %v, want none", eval.AppliedDiscounts)
	}
	if eval.Total.Amount != 5000 {
		t.Errorf("total = %d, want 5000", eval.Total.Amount)
	}
}

func TestEvaluateOrderCarriesCapsForAppliedDiscounts(t *testing.T) {
	coupon := domain.Discount{
		ID:         "coupon-limited",
		Active:     true,
		Percentage: pct(domain.PercentFromBasis(10, 0)),
		Code:       strPtr("LIMITED"),
		TargetType: domain.TargetOrderValue,
		ConditionGroups: []domain.ConditionGroup{{
			Conditions: []domain.Condition{
				{Kind: domain.ConditionMaxUses, MaxUses: 100},
				{Kind: domain.ConditionMaxUsesPerUser, MaxUses: 1},
			},
		}},
	}
	usage := &fakeUsageRepo{counts: repositories.UsageCounts{
		Total:  map[string]int64{"coupon-limited": 7},
		ByUser: map[string]int64{"coupon-limited": 0},
	}}
	engine := testEngine(t, &fakeDiscountRepo{byCode: map[string]domain.Discount{"LIMITED": coupon}}, usage)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-9",
		Currency: "USD",
		Identity: domain.Identity{UserID: "user-1"},
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
		CouponCodes: []string{"LIMITED"},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if len(eval.Caps) != 1 {
		t.Fatalf("caps = %d, want 1", len(eval.Caps))
	}
	if eval.Caps[0].DiscountID != "coupon-limited" || eval.Caps[0].MaxUses != 100 || eval.Caps[0].MaxUsesPerUser != 1 {
		t.Errorf("cap = %+v", eval.Caps[0])
	}
}

func TestEvaluateOrderCurrencyChecks(t *testing.T) {
	engine := testEngine(t, &fakeDiscountRepo{}, nil)

	_, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-10",
		Currency: "XQZ",
	})
	if !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("invalid currency err = %v", err)
	}

	_, err = engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-11",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "EUR"),
		}},
	})
	if !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Errorf("mixed currency err = %v", err)
	}
}

func TestEvaluateOrderCouponWithoutCurrencyAmountAborts(t *testing.T) {
	coupon := domain.Discount{
		ID:         "coupon-eur-only",
		Active:     true,
		Amounts:    map[string]domain.Money{"EUR": domain.MustMoney(500, "EUR")},
		Code:       strPtr("EURONLY"),
		TargetType: domain.TargetOrderValue,
	}
	engine := testEngine(t, &fakeDiscountRepo{byCode: map[string]domain.Discount{"EURONLY": coupon}}, nil)

	_, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-12",
		Currency: "USD",
		Lines: []OrderLineInput{{
			ID: "line-1", ProductID: "prod-1", Quantity: 1,
			UnitPrice: domain.MustMoney(5000, "USD"),
		}},
		CouponCodes: []string{"EURONLY"},
	})
	cErr, ok := IsCouponNotApplicable(err)
	if !ok {
		t.Fatalf("err = %v, want CouponNotApplicableError", err)
	}
	if cErr.Reason != ReasonCurrencyUnsupported {
		t.Errorf("reason = %q, want currency_unsupported", cErr.Reason)
	}
}

func TestEvaluateOrderTargetAllowList(t *testing.T) {
	sale := domain.Discount{
		ID:                "sale-targeted",
		Active:            true,
		Percentage:        pct(domain.PercentFromBasis(50, 0)),
		TargetType:        domain.TargetProducts,
		TargetIsAllowList: true,
		TargetRefs: []domain.TargetRef{
			{Kind: domain.TargetRefProductSet, ID: "set-stamps"},
		},
	}
	engine := testEngine(t, &fakeDiscountRepo{sales: []domain.Discount{sale}}, nil)

	eval, err := engine.EvaluateOrder(context.Background(), OrderEvaluationInput{
		OrderID:  "order-13",
		Currency: "USD",
		Lines: []OrderLineInput{
			{ID: "line-1", ProductID: "prod-a", ProductSetIDs: []string{"set-stamps"}, Quantity: 1, UnitPrice: domain.MustMoney(4000, "USD")},
			{ID: "line-2", ProductID: "prod-b", ProductSetIDs: []string{"set-ink"}, Quantity: 1, UnitPrice: domain.MustMoney(4000, "USD")},
		},
	})
	if err != nil {
		t.Fatalf("EvaluateOrder: %v", err)
	}
	if eval.Lines[0].Final.Amount != 2000 {
		t.Errorf("targeted line final = %d, want 2000", eval.Lines[0].Final.Amount)
	}
	if eval.Lines[1].Final.Amount != 4000 {
		t.Errorf("untargeted line final = %d, want 4000", eval.Lines[1].Final.Amount)
	}
}
