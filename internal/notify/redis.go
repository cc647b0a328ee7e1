package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel all registry events go out on.
const Channel = "credanchor.events"

// envelope is the wire format for a published event.
type envelope struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// RedisBus publishes events over Redis pub/sub. Subscribers that are not
// connected at publish time miss the event; that is acceptable for this
// bus (at-most-once, best-effort).
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus creates a RedisBus talking to the given Redis address.
func NewRedisBus(addr, password string, db int, logger *zap.Logger) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBus{client: client, logger: logger}
}

// Publish implements Bus. Delivery runs in its own goroutine with a short
// timeout so a slow broker cannot stall request handling; failures are
// logged and dropped.
func (b *RedisBus) Publish(_ context.Context, event string, payload map[string]string) {
	body, err := json.Marshal(envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		b.logger.Error("notify: marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.client.Publish(ctx, Channel, body).Err(); err != nil {
			b.logger.Warn("notify: publish failed (dropped)",
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}()
}

// Ping checks broker reachability. Used by the health monitor.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
