package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ClaireBookworm/friendsradio/internal/metrics"
)

const broadcastChannel = "broadcast"

// Bus is the fan-out channel all components publish through. Every event is
// delivered to local clients via the hub; with a Redis client configured it
// is also relayed through the "broadcast" pub/sub channel so other instances
// serving the same room stay in sync. Delivery is best effort: no acks, no
// redelivery, disconnected clients resync on reconnect.
type Bus struct {
	hub *Hub
	rdb *redis.Client
	ctx context.Context
	id  string // instance id, used to skip our own relayed messages
}

func NewBus(ctx context.Context, hub *Hub, rdb *redis.Client) *Bus {
	return &Bus{
		hub: hub,
		rdb: rdb,
		ctx: ctx,
		id:  uuid.NewString(),
	}
}

// Broadcast fans one event out to every connected client except exclude.
func (b *Bus) Broadcast(event string, payload any, exclude string) {
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
	b.hub.BroadcastEvent(event, payload, exclude)

	if b.rdb == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("radio: marshal %s event: %v", event, err)
		return
	}
	data, err := json.Marshal(Event{Type: event, Payload: raw, Src: b.id})
	if err != nil {
		log.Printf("radio: marshal %s envelope: %v", event, err)
		return
	}
	if err := b.rdb.Publish(b.ctx, broadcastChannel, string(data)).Err(); err != nil {
		log.Printf("radio: publish event: %v", err)
	}
}

// RunRedisSubscriber relays events published by other instances into the
// local hub. Blocks until the context is cancelled; no-op without Redis.
func (b *Bus) RunRedisSubscriber() {
	if b.rdb == nil {
		return
	}
	sub := b.rdb.Subscribe(b.ctx, broadcastChannel)
	defer sub.Close()

	ch := sub.Channel()
	for msg := range ch {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			log.Printf("radio: bad relayed event: %v", err)
			continue
		}
		if evt.Src == b.id {
			continue // our own publish, already delivered locally
		}
		b.hub.Send([]byte(msg.Payload), "")
	}
}
