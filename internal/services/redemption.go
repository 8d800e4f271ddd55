package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/platform/events"
	"github.com/cartiva/pricing-api/internal/repositories"
)

// RedeemabilityResult is a non-binding hint on whether a coupon would apply.
// The authoritative check happens again inside the order commit transaction.
type RedeemabilityResult struct {
	DiscountID string
	Code       string
	Redeemable bool
	Reason     NonMatchReason
}

// RedemptionServiceDeps wires the redemption service's collaborators.
type RedemptionServiceDeps struct {
	Discounts repositories.DiscountRepository
	Usage     repositories.UsageRepository
	// Records is optional; without it the application trail endpoints report
	// records as unavailable.
	Records   repositories.ApplicationRecordRepository
	Publisher events.Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
	NewID     func() string
}

// RedemptionService answers pre-checkout redeemability questions and commits
// the usage side effects of a placed order.
type RedemptionService struct {
	discounts repositories.DiscountRepository
	usage     repositories.UsageRepository
	records   repositories.ApplicationRecordRepository
	matcher   *Matcher
	publisher events.Publisher
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string
}

// NewRedemptionService validates dependencies and builds the service.
func NewRedemptionService(deps RedemptionServiceDeps) (*RedemptionService, error) {
	if deps.Discounts == nil {
		return nil, ErrDiscountRepositoryMissing
	}
	if deps.Usage == nil {
		return nil, errors.New("redemption service: usage repository is required")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
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
	return &RedemptionService{
		discounts: deps.Discounts,
		usage:     deps.Usage,
		records:   deps.Records,
		matcher:   NewMatcher(logger),
		publisher: publisher,
		logger:    logger,
		clock:     clock,
		newID:     newID,
	}, nil
}

// FindByCode returns the coupon carrying the given code.
func (s *RedemptionService) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	d, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return domain.Discount{}, fmt.Errorf("%w: code %q", ErrDiscountNotFound, code)
		}
		return domain.Discount{}, fmt.Errorf("redemption service: find code %q: %w", code, err)
	}
	return d, nil
}

// IsRedeemable checks a coupon code against the supplied context. The context
// may be partial (no cart yet); absent facts fail their conditions rather
// than erroring, matching how a full evaluation would treat them.
func (s *RedemptionService) IsRedeemable(ctx context.Context, code string, ec domain.EvaluationContext) (RedeemabilityResult, error) {
	d, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return RedeemabilityResult{Code: code, Reason: ReasonNotFound}, nil
		}
		return RedeemabilityResult{}, fmt.Errorf("redemption service: find code %q: %w", code, err)
	}

	if ec.Now.IsZero() {
		ec.Now = s.clock().UTC()
	}
	if ec.Usage == nil {
		counts, err := s.usage.Counts(ctx, []string{d.ID}, ec.Identity.UserID)
		if err != nil {
			return RedeemabilityResult{}, fmt.Errorf("redemption service: load usage counters: %w", err)
		}
		ec.Usage = counts
	}

	result := s.matcher.Matches(ctx, d, ec)
	return RedeemabilityResult{
		DiscountID: d.ID,
		Code:       code,
		Redeemable: result.Matched,
		Reason:     result.Reason,
	}, nil
}

// CommitOrder persists the usage side of a finished evaluation atomically:
// caps are re-checked, counters incremented and application records written
// in one transaction. If any cap no longer holds nothing is written and the
// offending discount surfaces as ErrUsageCapExceeded. The applied event is
// published after a successful commit; publish failures are logged only.
func (s *RedemptionService) CommitOrder(ctx context.Context, eval OrderEvaluation, identity domain.Identity) error {
	records := eval.Records()
	if len(records) == 0 {
		return nil
	}
	commit := repositories.ApplicationCommit{
		OrderID:     eval.OrderID,
		UserID:      identity.UserID,
		CommittedAt: s.clock().UTC(),
		Records:     records,
		Caps:        eval.Caps,
	}
	if err := s.usage.Commit(ctx, commit); err != nil {
		var capErr *repositories.CapExceededError
		if errors.As(err, &capErr) {
			return fmt.Errorf("%w: discount %s", ErrUsageCapExceeded, capErr.DiscountID)
		}
		return fmt.Errorf("redemption service: commit order %s: %w", eval.OrderID, err)
	}

	err := s.publisher.PublishDiscountApplied(ctx, events.DiscountApplied{
		EventID:       s.newID(),
		OrderID:       eval.OrderID,
		UserID:        identity.UserID,
		DiscountIDs:   eval.AppliedDiscounts,
		Currency:      eval.Currency,
		TotalDiscount: eval.TotalDiscount.Amount,
		OccurredAt:    commit.CommittedAt,
	})
	if err != nil {
		s.logger.Warn("discount applied event publish failed",
			zap.String("order_id", eval.OrderID),
			zap.Error(err),
		)
	}
	return nil
}

// OrderApplications returns the application trail written for an order,
// oldest first.
func (s *RedemptionService) OrderApplications(ctx context.Context, orderID string) ([]domain.ApplicationRecord, error) {
	if s.records == nil {
		return nil, ErrRecordsUnavailable
	}
	records, err := s.records.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("redemption service: list applications for order %s: %w", orderID, err)
	}
	return records, nil
}

// ReleaseOrder deletes an order's application records, for orders cancelled
// or repriced before their counters matter. Usage counters are left as they
// are; they only bound future redemptions.
func (s *RedemptionService) ReleaseOrder(ctx context.Context, orderID string) error {
	if s.records == nil {
		return ErrRecordsUnavailable
	}
	if err := s.records.DeleteByOrder(ctx, orderID); err != nil {
		return fmt.Errorf("redemption service: release order %s: %w", orderID, err)
	}
	return nil
}
