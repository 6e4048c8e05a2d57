package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/mercantia/api/internal/domain"
)

// PubSubCheckoutPublisher publishes checkout milestone events to a Pub/Sub topic.
type PubSubCheckoutPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCheckoutPublisher constructs a Pub/Sub backed checkout event publisher.
func NewPubSubCheckoutPublisher(topic *pubsub.Topic) (*PubSubCheckoutPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub checkout publisher: topic is required")
	}
	return &PubSubCheckoutPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type checkoutEventMessage struct {
	Type       string    `json:"type"`
	BuyerID    string    `json:"buyerId"`
	IntentID   string    `json:"intentId,omitempty"`
	OrderID    string    `json:"orderId,omitempty"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publish enqueues the checkout event on the configured topic.
func (p *PubSubCheckoutPublisher) Publish(ctx context.Context, event domain.CheckoutEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub checkout publisher: not initialised")
	}
	if strings.TrimSpace(event.Type) == "" {
		return errors.New("pubsub checkout publisher: event type is required")
	}

	data, err := p.marshal(checkoutEventMessage{
		Type:       event.Type,
		BuyerID:    event.BuyerID,
		IntentID:   event.IntentID,
		OrderID:    event.OrderID,
		Amount:     event.Amount,
		Currency:   event.Currency,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "buyerId", event.BuyerID)
	setAttr(attrs, "intentId", event.IntentID)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "currency", event.Currency)
	if event.Amount > 0 {
		attrs["amount"] = strconv.FormatInt(event.Amount, 10)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish checkout event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
