package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultInvalidationChannel = "fitos:tenant:invalidate"

// InvalidationMessage is the payload published for every registry change.
type InvalidationMessage struct {
	TenantID string    `json:"tenant_id"`
	Origin   string    `json:"origin"`
	SentAt   time.Time `json:"sent_at"`
}

// InvalidateFunc drops local cache state for one tenant.
type InvalidateFunc func(tenantID string)

// InvalidationBus fans tenant invalidations out to every process sharing the
// Redis channel. Messages a bus published itself are not delivered back to it.
type InvalidationBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

func NewInvalidationBus(client *redis.Client, channel string, logger *zap.Logger) *InvalidationBus {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &InvalidationBus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logging.OrNop(logger),
	}
}

func (b *InvalidationBus) Channel() string { return b.channel }

// InvalidateTenant publishes tenantID on the channel.
func (b *InvalidationBus) InvalidateTenant(ctx context.Context, tenantID string) error {
	payload, err := json.Marshal(InvalidationMessage{TenantID: tenantID, Origin: b.origin, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation for tenant %s: %w", tenantID, err)
	}
	return nil
}

// Subscribe delivers invalidations from other processes to fn until ctx is
// done. It returns once the subscription is confirmed by the server, with the
// receive loop running in the background; the returned channel is closed when
// the loop exits.
func (b *InvalidationBus) Subscribe(ctx context.Context, fn InvalidateFunc) (<-chan struct{}, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.handle(msg.Payload, fn)
			}
		}
	}()

	b.logger.Info("subscribed to tenant invalidations", zap.String("channel", b.channel))
	return done, nil
}

func (b *InvalidationBus) handle(payload string, fn InvalidateFunc) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.TenantID == "" {
		b.logger.Warn("ignoring malformed invalidation message", zap.String("payload", payload), zap.Error(err))
		return
	}
	if msg.Origin == b.origin {
		return
	}
	b.logger.Debug("tenant invalidation received", zap.String("tenant_id", msg.TenantID), zap.String("origin", msg.Origin))
	fn(msg.TenantID)
}

// Ping reports whether Redis is reachable.
func (b *InvalidationBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}
