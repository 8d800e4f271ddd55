package services

import (
	"fmt"
	"time"

	"github.com/cartiva/pricing-api/internal/domain"
)

// EvaluateCondition decides whether a single condition holds for the given
// context. Evaluation is pure: every fact it needs is already present on the
// context, no I/O happens here. The discount id is needed for usage caps.
func EvaluateCondition(ec domain.EvaluationContext, discountID string, cond domain.Condition) (bool, error) {
	switch cond.Kind {
	case domain.ConditionOrderValue:
		return evalOrderValue(ec, cond), nil
	case domain.ConditionUserIn:
		return evalMembership(cond, userMember(ec, cond)), nil
	case domain.ConditionUserInRole:
		return evalMembership(cond, roleMember(ec, cond)), nil
	case domain.ConditionProductIn:
		return evalMembership(cond, anyMember(ec.ProductIDs, cond.MemberIDs)), nil
	case domain.ConditionProductInSet:
		return evalMembership(cond, anyMember(ec.ProductSetIDs, cond.MemberIDs)), nil
	case domain.ConditionDateBetween:
		return evalDateBetween(ec, cond), nil
	case domain.ConditionTimeBetween:
		return evalTimeBetween(ec, cond), nil
	case domain.ConditionWeekdayIn:
		bit := domain.WeekdayBit(ec.Now.Weekday())
		return cond.WeekdayMask&(1<<bit) != 0, nil
	case domain.ConditionMaxUses:
		if ec.Usage == nil {
			return false, nil
		}
		return ec.Usage.Uses(discountID) < cond.MaxUses, nil
	case domain.ConditionMaxUsesPerUser:
		// Without a user identity the cap cannot be attributed, so it fails.
		if ec.Usage == nil || ec.Identity.IsAnonymous() {
			return false, nil
		}
		return ec.Usage.UsesBy(discountID, ec.Identity.UserID) < cond.MaxUses, nil
	case domain.ConditionCartLength:
		return evalCountRange(ec.LineCount, cond), nil
	case domain.ConditionCouponsCount:
		return evalCountRange(ec.CouponCount, cond), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownConditionKind, cond.Kind)
	}
}

// EvaluateGroups applies the two-level boolean structure: groups combine with
// OR, conditions inside a group with AND. A discount with no groups matches
// unconditionally.
func EvaluateGroups(ec domain.EvaluationContext, discountID string, groups []domain.ConditionGroup) (bool, error) {
	if len(groups) == 0 {
		return true, nil
	}
	for _, group := range groups {
		ok, err := evaluateGroup(ec, discountID, group)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evaluateGroup(ec domain.EvaluationContext, discountID string, group domain.ConditionGroup) (bool, error) {
	if len(group.Conditions) == 0 {
		return true, nil
	}
	for _, cond := range group.Conditions {
		ok, err := EvaluateCondition(ec, discountID, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalOrderValue(ec domain.EvaluationContext, cond domain.Condition) bool {
	value, ok := ec.Value(cond.IncludesTaxes)
	if !ok {
		return false
	}
	inside := true
	if minBound, bounded := cond.MinValues[ec.Currency]; bounded {
		if value.Amount < minBound.Amount {
			inside = false
		}
	}
	if maxBound, bounded := cond.MaxValues[ec.Currency]; bounded && inside {
		if value.Amount > maxBound.Amount {
			inside = false
		}
	}
	return inside == cond.IsInRange
}

// evalMembership applies the allow/block polarity shared by the membership
// kinds: allow lists match members, block lists match non-members.
func evalMembership(cond domain.Condition, member bool) bool {
	if cond.IsAllowList {
		return member
	}
	return !member
}

func userMember(ec domain.EvaluationContext, cond domain.Condition) bool {
	if ec.Identity.IsAnonymous() {
		return false
	}
	for _, id := range cond.MemberIDs {
		if id == ec.Identity.UserID {
			return true
		}
	}
	return false
}

func roleMember(ec domain.EvaluationContext, cond domain.Condition) bool {
	if len(ec.Identity.RoleIDs) == 0 {
		return false
	}
	roles := make(map[string]struct{}, len(ec.Identity.RoleIDs))
	for _, role := range ec.Identity.RoleIDs {
		roles[role] = struct{}{}
	}
	for _, id := range cond.MemberIDs {
		if _, ok := roles[id]; ok {
			return true
		}
	}
	return false
}

func anyMember(present map[string]struct{}, memberIDs []string) bool {
	for _, id := range memberIDs {
		if _, ok := present[id]; ok {
			return true
		}
	}
	return false
}

func evalDateBetween(ec domain.EvaluationContext, cond domain.Condition) bool {
	now := ec.Now
	inside := true
	if cond.Start != nil && now.Before(*cond.Start) {
		inside = false
	}
	if cond.End != nil && now.After(*cond.End) {
		inside = false
	}
	return inside == cond.IsInRange
}

// evalTimeBetween compares only the time-of-day component. A window whose end
// precedes its start wraps past midnight.
func evalTimeBetween(ec domain.EvaluationContext, cond domain.Condition) bool {
	now := secondsOfDay(ec.Now)
	start := 0
	if cond.Start != nil {
		start = secondsOfDay(*cond.Start)
	}
	end := 24*3600 - 1
	if cond.End != nil {
		end = secondsOfDay(*cond.End)
	}
	var inside bool
	if start <= end {
		inside = now >= start && now <= end
	} else {
		inside = now >= start || now <= end
	}
	return inside == cond.IsInRange
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func evalCountRange(count int, cond domain.Condition) bool {
	if cond.MinCount != nil && count < *cond.MinCount {
		return false
	}
	if cond.MaxCount != nil && count > *cond.MaxCount {
		return false
	}
	return true
}
