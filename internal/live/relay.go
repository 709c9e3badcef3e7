package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foodshare/apiserver/internal/mq"
	"github.com/foodshare/apiserver/types"
	"go.uber.org/zap"
)

const attrEventType = "event_type"

// Relay publishes post events to a broker channel and feeds events read
// back from that channel into the local hub. With a relay in place every
// instance's hub sees every instance's events.
type Relay struct {
	mq      *mq.MQ
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRelay(broker *mq.MQ, channel string, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{mq: broker, channel: channel, hub: hub, log: log}
}

// Publish sends the event to the broker. Local delivery happens when the
// event comes back through Run.
func (r *Relay) Publish(ctx context.Context, event types.PostEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}
	if _, err := r.mq.Publish(ctx, r.channel, data, map[string]string{attrEventType: string(event.Type)}); err != nil {
		return fmt.Errorf("publish post event: %w", err)
	}
	return nil
}

// Run consumes the broker channel until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	err := r.mq.Subscribe(ctx, r.channel, func(ctx context.Context, msg mq.Message) error {
		var event types.PostEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// acked, not nacked: redelivery would never decode either
			r.log.Warn("dropping malformed post event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return r.hub.Publish(ctx, event)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
