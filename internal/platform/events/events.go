package events

import (
	"context"
	"time"
)

// DiscountApplied is emitted after an order's discount applications commit.
type DiscountApplied struct {
	EventID       string    `json:"event_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id,omitempty"`
	DiscountIDs   []string  `json:"discount_ids"`
	Currency      string    `json:"currency"`
	TotalDiscount int64     `json:"total_discount"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PriceBandRecalculated is emitted after a product's price bands are rewritten.
type PriceBandRecalculated struct {
	EventID    string    `json:"event_id"`
	ProductID  string    `json:"product_id"`
	Currencies []string  `json:"currencies"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits pricing domain events. Publishing is best-effort from the
// caller's point of view: a failed publish is logged, never rolled back into
// the business operation.
type Publisher interface {
	PublishDiscountApplied(ctx context.Context, event DiscountApplied) error
	PublishPriceBandRecalculated(ctx context.Context, event PriceBandRecalculated) error
}

// NoopPublisher drops every event. Used when publishing is disabled.
type NoopPublisher struct{}

// PublishDiscountApplied implements Publisher.
func (NoopPublisher) PublishDiscountApplied(ctx context.Context, event DiscountApplied) error {
	return nil
}

// PublishPriceBandRecalculated implements Publisher.
func (NoopPublisher) PublishPriceBandRecalculated(ctx context.Context, event PriceBandRecalculated) error {
	return nil
}
