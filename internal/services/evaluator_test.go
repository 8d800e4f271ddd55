package services

import (
	"errors"
	"testing"
	"time"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/repositories"
)

func baseContext() domain.EvaluationContext {
	return domain.EvaluationContext{
		// A Monday at noon.
		Now:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Currency: "USD",
		ValueWithoutTaxes: map[string]domain.Money{
			"USD": domain.MustMoney(10000, "USD"),
		},
		ValueWithTaxes: map[string]domain.Money{
			"USD": domain.MustMoney(11000, "USD"),
		},
		ProductIDs:    map[string]struct{}{"prod-a": {}},
		ProductSetIDs: map[string]struct{}{"set-1": {}, "set-parent": {}},
		LineCount:     2,
		CouponCount:   1,
	}
}

func timeAt(hour, minute int) *time.Time {
	t := time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
	return &t
}

func intPtr(n int) *int { return &n }

func TestEvaluateConditionOrderValue(t *testing.T) {
	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{
			name: "inside inclusive bounds",
			cond: domain.Condition{
				Kind:      domain.ConditionOrderValue,
				MinValues: map[string]domain.Money{"USD": domain.MustMoney(10000, "USD")},
				MaxValues: map[string]domain.Money{"USD": domain.MustMoney(20000, "USD")},
				IsInRange: true,
			},
			want: true,
		},
		{
			name: "below min",
			cond: domain.Condition{
				Kind:      domain.ConditionOrderValue,
				MinValues: map[string]domain.Money{"USD": domain.MustMoney(10001, "USD")},
				IsInRange: true,
			},
			want: false,
		},
		{
			name: "negated range",
			cond: domain.Condition{
				Kind:      domain.ConditionOrderValue,
				MinValues: map[string]domain.Money{"USD": domain.MustMoney(10001, "USD")},
				IsInRange: false,
			},
			want: true,
		},
		{
			name: "missing currency bound is unbounded",
			cond: domain.Condition{
				Kind:      domain.ConditionOrderValue,
				MinValues: map[string]domain.Money{"EUR": domain.MustMoney(99999, "EUR")},
				IsInRange: true,
			},
			want: true,
		},
		{
			name: "tax inclusive value",
			cond: domain.Condition{
				Kind:          domain.ConditionOrderValue,
				MinValues:     map[string]domain.Money{"USD": domain.MustMoney(10500, "USD")},
				IncludesTaxes: true,
				IsInRange:     true,
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(baseContext(), "d1", tt.cond)
			if err != nil {
				t.Fatalf("EvaluateCondition: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionUserMembership(t *testing.T) {
	ec := baseContext()
	ec.Identity = domain.Identity{UserID: "user-1", RoleIDs: []string{"vip"}}

	allow := domain.Condition{Kind: domain.ConditionUserIn, MemberIDs: []string{"user-1"}, IsAllowList: true}
	if got, _ := EvaluateCondition(ec, "d1", allow); !got {
		t.Error("allow list with member should match")
	}
	block := allow
	block.IsAllowList = false
	if got, _ := EvaluateCondition(ec, "d1", block); got {
		t.Error("block list with member should not match")
	}

	role := domain.Condition{Kind: domain.ConditionUserInRole, MemberIDs: []string{"vip", "staff"}, IsAllowList: true}
	if got, _ := EvaluateCondition(ec, "d1", role); !got {
		t.Error("role allow list should match")
	}

	// Anonymous users are never members, so a block list matches them.
	anon := baseContext()
	if got, _ := EvaluateCondition(anon, "d1", allow); got {
		t.Error("anonymous should not match user allow list")
	}
	if got, _ := EvaluateCondition(anon, "d1", block); !got {
		t.Error("anonymous should match user block list")
	}
}

func TestEvaluateConditionProductMembership(t *testing.T) {
	ec := baseContext()

	inCart := domain.Condition{Kind: domain.ConditionProductIn, MemberIDs: []string{"prod-a"}, IsAllowList: true}
	if got, _ := EvaluateCondition(ec, "d1", inCart); !got {
		t.Error("product in cart should match allow list")
	}
	notInCart := domain.Condition{Kind: domain.ConditionProductIn, MemberIDs: []string{"prod-z"}, IsAllowList: true}
	if got, _ := EvaluateCondition(ec, "d1", notInCart); got {
		t.Error("absent product should not match allow list")
	}

	// Ancestor sets are pre-expanded on the context.
	inSet := domain.Condition{Kind: domain.ConditionProductInSet, MemberIDs: []string{"set-parent"}, IsAllowList: true}
	if got, _ := EvaluateCondition(ec, "d1", inSet); !got {
		t.Error("ancestor set should match allow list")
	}
	blockSet := domain.Condition{Kind: domain.ConditionProductInSet, MemberIDs: []string{"set-other"}, IsAllowList: false}
	if got, _ := EvaluateCondition(ec, "d1", blockSet); !got {
		t.Error("unrelated set block list should match")
	}
}

func TestEvaluateConditionDateBetween(t *testing.T) {
	ec := baseContext()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	inside := domain.Condition{Kind: domain.ConditionDateBetween, Start: &start, End: &end, IsInRange: true}
	if got, _ := EvaluateCondition(ec, "d1", inside); !got {
		t.Error("date inside window should match")
	}

	past := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	expired := domain.Condition{Kind: domain.ConditionDateBetween, Start: &start, End: &past, IsInRange: true}
	if got, _ := EvaluateCondition(ec, "d1", expired); got {
		t.Error("expired window should not match")
	}

	openEnded := domain.Condition{Kind: domain.ConditionDateBetween, Start: &start, IsInRange: true}
	if got, _ := EvaluateCondition(ec, "d1", openEnded); !got {
		t.Error("open-ended window should match")
	}
}

func TestEvaluateConditionTimeBetween(t *testing.T) {
	ec := baseContext() // 12:00

	lunch := domain.Condition{Kind: domain.ConditionTimeBetween, Start: timeAt(11, 0), End: timeAt(14, 0), IsInRange: true}
	if got, _ := EvaluateCondition(ec, "d1", lunch); !got {
		t.Error("noon should be inside 11:00-14:00")
	}

	night := domain.Condition{Kind: domain.ConditionTimeBetween, Start: timeAt(22, 0), End: timeAt(6, 0), IsInRange: true}
	if got, _ := EvaluateCondition(ec, "d1", night); got {
		t.Error("noon should be outside the wrapped 22:00-06:00 window")
	}
	ec.Now = time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	if got, _ := EvaluateCondition(ec, "d1", night); !got {
		t.Error("23:30 should be inside the wrapped window")
	}
	ec.Now = time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	if got, _ := EvaluateCondition(ec, "d1", night); !got {
		t.Error("05:00 should be inside the wrapped window")
	}
}

func TestEvaluateConditionWeekdayIn(t *testing.T) {
	ec := baseContext() // Monday

	monday := domain.Condition{
		Kind:        domain.ConditionWeekdayIn,
		WeekdayMask: domain.WeekdayMaskFromBools([7]bool{true, false, false, false, false, false, false}),
	}
	if got, _ := EvaluateCondition(ec, "d1", monday); !got {
		t.Error("Monday mask should match a Monday")
	}

	weekend := domain.Condition{
		Kind:        domain.ConditionWeekdayIn,
		WeekdayMask: domain.WeekdayMaskFromBools([7]bool{false, false, false, false, false, true, true}),
	}
	if got, _ := EvaluateCondition(ec, "d1", weekend); got {
		t.Error("weekend mask should not match a Monday")
	}
	ec.Now = time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC) // Sunday
	if got, _ := EvaluateCondition(ec, "d1", weekend); !got {
		t.Error("weekend mask should match a Sunday")
	}

	// Mask order is Monday first, so bits 1, 4 and 5 are Tue, Fri, Sat.
	midweek := domain.Condition{
		Kind:        domain.ConditionWeekdayIn,
		WeekdayMask: domain.WeekdayMaskFromBools([7]bool{false, true, false, false, true, true, false}),
	}
	for _, tc := range []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), true},  // Tuesday
		{time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), false}, // Wednesday
		{time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC), true},  // Friday
		{time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), true},  // Saturday
	} {
		ec.Now = tc.day
		if got, _ := EvaluateCondition(ec, "d1", midweek); got != tc.want {
			t.Errorf("%s: match = %v, want %v", tc.day.Weekday(), got, tc.want)
		}
	}
}

func TestEvaluateConditionUsageCaps(t *testing.T) {
	ec := baseContext()
	ec.Identity = domain.Identity{UserID: "user-1"}
	ec.Usage = repositories.UsageCounts{
		Total:  map[string]int64{"d1": 9},
		ByUser: map[string]int64{"d1": 1},
	}

	global := domain.Condition{Kind: domain.ConditionMaxUses, MaxUses: 10}
	if got, _ := EvaluateCondition(ec, "d1", global); !got {
		t.Error("9 of 10 uses should still match")
	}
	global.MaxUses = 9
	if got, _ := EvaluateCondition(ec, "d1", global); got {
		t.Error("9 of 9 uses should not match")
	}

	perUser := domain.Condition{Kind: domain.ConditionMaxUsesPerUser, MaxUses: 1}
	if got, _ := EvaluateCondition(ec, "d1", perUser); got {
		t.Error("1 of 1 per-user uses should not match")
	}
	perUser.MaxUses = 2
	if got, _ := EvaluateCondition(ec, "d1", perUser); !got {
		t.Error("1 of 2 per-user uses should match")
	}

	// Per-user caps cannot be attributed to anonymous users.
	ec.Identity = domain.Identity{}
	if got, _ := EvaluateCondition(ec, "d1", perUser); got {
		t.Error("anonymous should fail per-user cap")
	}
}

func TestEvaluateConditionCounts(t *testing.T) {
	ec := baseContext() // 2 lines, 1 coupon

	cart := domain.Condition{Kind: domain.ConditionCartLength, MinCount: intPtr(2), MaxCount: intPtr(5)}
	if got, _ := EvaluateCondition(ec, "d1", cart); !got {
		t.Error("2 lines should satisfy [2,5]")
	}
	cart.MinCount = intPtr(3)
	if got, _ := EvaluateCondition(ec, "d1", cart); got {
		t.Error("2 lines should fail [3,5]")
	}

	coupons := domain.Condition{Kind: domain.ConditionCouponsCount, MaxCount: intPtr(1)}
	if got, _ := EvaluateCondition(ec, "d1", coupons); !got {
		t.Error("1 coupon should satisfy max 1")
	}
	coupons.MaxCount = intPtr(0)
	if got, _ := EvaluateCondition(ec, "d1", coupons); got {
		t.Error("1 coupon should fail max 0")
	}
}

func TestEvaluateConditionUnknownKind(t *testing.T) {
	_, err := EvaluateCondition(baseContext(), "d1", domain.Condition{Kind: "telepathy"})
	if !errors.Is(err, ErrUnknownConditionKind) {
		t.Errorf("err = %v, want ErrUnknownConditionKind", err)
	}
}

func TestEvaluateGroupsOrOfAnds(t *testing.T) {
	ec := baseContext()
	pass := domain.Condition{Kind: domain.ConditionCartLength, MinCount: intPtr(1)}
	fail := domain.Condition{Kind: domain.ConditionCartLength, MinCount: intPtr(99)}

	got, err := EvaluateGroups(ec, "d1", []domain.ConditionGroup{
		{Conditions: []domain.Condition{pass, fail}},
		{Conditions: []domain.Condition{pass, pass}},
	})
	if err != nil {
		t.Fatalf("EvaluateGroups: %v", err)
	}
	if !got {
		t.Error("second group passing should satisfy the OR")
	}

	got, err = EvaluateGroups(ec, "d1", []domain.ConditionGroup{
		{Conditions: []domain.Condition{pass, fail}},
	})
	if err != nil {
		t.Fatalf("EvaluateGroups: %v", err)
	}
	if got {
		t.Error("one failing condition should fail its AND group")
	}

	got, err = EvaluateGroups(ec, "d1", nil)
	if err != nil {
		t.Fatalf("EvaluateGroups: %v", err)
	}
	if !got {
		t.Error("no groups should match unconditionally")
	}
}
