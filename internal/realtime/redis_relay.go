package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/model"
)

const relayPrefix = "seat-events"

// RedisRelay publishes events on a per-trip Redis channel and, through Run,
// feeds every instance's hub from the same channels.  With the relay
// enabled the HubSink is not registered; the local hub hears its own
// events back from Redis.
type RedisRelay struct {
	rdb *redis.Client
	hub *Hub
	log *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, log: log.With(zap.String("component", "redis_relay"))}
}

func (r *RedisRelay) Name() string { return "redis" }

func relayChannel(tripID uint64) string {
	return fmt.Sprintf("%s:%d", relayPrefix, tripID)
}

// Deliver publishes ev on the trip channel.
func (r *RedisRelay) Deliver(ctx context.Context, ev model.SeatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel(ev.TripID), payload).Err()
}

// Run subscribes to every trip channel and republishes into the hub until
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, relayPrefix+":*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev model.SeatEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("malformed relay payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.hub.Publish(ev)
		}
	}
}
