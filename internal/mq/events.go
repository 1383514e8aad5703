package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/merchforge/apiserver/types"
)

// OrderEvents publishes and consumes order lifecycle events on one channel.
type OrderEvents struct {
	mq      *MQ
	channel string
}

func NewOrderEvents(m *MQ, channel string) *OrderEvents {
	return &OrderEvents{mq: m, channel: channel}
}

// Publish encodes event as JSON and sends it. Events of the same order share
// an ordering key.
func (e *OrderEvents) Publish(ctx context.Context, event types.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	_, err = e.mq.Publish(ctx, e.channel, data, map[string]string{
		AttrContentType: "application/json",
		AttrEventType:   event.Type,
		AttrOrderingKey: event.OrderNumber,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Consume blocks delivering decoded events to handle until ctx is cancelled.
// Payloads that do not decode are acknowledged and skipped through onInvalid.
func (e *OrderEvents) Consume(ctx context.Context, handle func(context.Context, types.OrderEvent) error, onInvalid func(Message, error)) error {
	return e.mq.Subscribe(ctx, e.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeOrderEvent(msg)
		if err != nil {
			if onInvalid != nil {
				onInvalid(msg, err)
			}
			return nil
		}
		return handle(ctx, event)
	})
}

// DecodeOrderEvent parses the JSON body of msg.
func DecodeOrderEvent(msg Message) (types.OrderEvent, error) {
	var event types.OrderEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.OrderEvent{}, fmt.Errorf("decode order event %s: %w", msg.ID, err)
	}
	if event.Type == "" || event.OrderNumber == "" {
		return types.OrderEvent{}, fmt.Errorf("decode order event %s: missing type or order number", msg.ID)
	}
	return event, nil
}
