package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubPublisher publishes pricing events to Cloud Pub/Sub topics.
type PubSubPublisher struct {
	discountTopic  *pubsub.Topic
	priceBandTopic *pubsub.Topic
	timeout        time.Duration
	logger         *zap.Logger
	marshal        func(any) ([]byte, error)
}

// PubSubPublisherDeps wires the publisher's topics and settings.
type PubSubPublisherDeps struct {
	DiscountTopic  *pubsub.Topic
	PriceBandTopic *pubsub.Topic
	// PublishTimeout bounds the wait on publish confirmation. Zero means
	// no extra bound beyond the caller's context.
	PublishTimeout time.Duration
	Logger         *zap.Logger
}

// NewPubSubPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubPublisher(deps PubSubPublisherDeps) (*PubSubPublisher, error) {
	if deps.DiscountTopic == nil {
		return nil, errors.New("pubsub publisher: discount topic is required")
	}
	if deps.PriceBandTopic == nil {
		return nil, errors.New("pubsub publisher: price band topic is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubPublisher{
		discountTopic:  deps.DiscountTopic,
		priceBandTopic: deps.PriceBandTopic,
		timeout:        deps.PublishTimeout,
		logger:         logger,
		marshal:        json.Marshal,
	}, nil
}

// PublishDiscountApplied emits a discount application message.
func (p *PubSubPublisher) PublishDiscountApplied(ctx context.Context, event DiscountApplied) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "currency", event.Currency)
	attrs["totalDiscount"] = strconv.FormatInt(event.TotalDiscount, 10)
	return p.publish(ctx, p.discountTopic, "discount applied", event, attrs)
}

// PublishPriceBandRecalculated emits a price band refresh message.
func (p *PubSubPublisher) PublishPriceBandRecalculated(ctx context.Context, event PriceBandRecalculated) error {
	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "productId", event.ProductID)
	return p.publish(ctx, p.priceBandTopic, "price band recalculated", event, attrs)
}

func (p *PubSubPublisher) publish(ctx context.Context, topic *pubsub.Topic, kind string, payload any, attrs map[string]string) error {
	if p == nil || topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	p.logger.Debug("event published",
		zap.String("kind", kind),
		zap.String("message_id", id),
	)
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
