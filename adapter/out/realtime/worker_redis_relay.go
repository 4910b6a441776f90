package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"booking_server/core/domain"
	"booking_server/core/port/out"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// eventChannelPrefix namespaces per-business pub/sub channels: sync:events:{businessID}.
const eventChannelPrefix = "sync:events:"

// relayedEvent is the pub/sub wire form; RealtimeEvent hides BusinessID from JSON.
type relayedEvent struct {
	BusinessID string               `json:"business_id"`
	Event      *domain.RealtimeEvent `json:"event"`
}

// RedisNotifier publishes operator events for the Relay of every API instance.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, event *domain.RealtimeEvent) error {
	if event == nil || event.BusinessID == "" {
		return nil
	}
	data, err := json.Marshal(&relayedEvent{BusinessID: event.BusinessID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.client.Publish(ctx, eventChannelPrefix+event.BusinessID, data).Err()
}

// Relay forwards events published by any process into the local SSE adapter.
type Relay struct {
	client *redis.Client
	sse    *SSEAdapter
	log    zerolog.Logger
}

func NewRelay(client *redis.Client, sse *SSEAdapter, log zerolog.Logger) *Relay {
	return &Relay{
		client: client,
		sse:    sse,
		log:    log.With().Str("component", "event_relay").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer sub.Close()

	r.log.Info().Str("pattern", eventChannelPrefix+"*").Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	var relayed relayedEvent
	if err := json.Unmarshal([]byte(msg.Payload), &relayed); err != nil || relayed.Event == nil {
		r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
		return
	}
	businessID := relayed.BusinessID
	if businessID == "" {
		businessID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
	}
	relayed.Event.BusinessID = businessID
	_ = r.sse.Push(ctx, businessID, relayed.Event)
}

var _ out.OperatorNotifier = (*RedisNotifier)(nil)
