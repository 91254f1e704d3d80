package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Group domain.GroupID `json:"group"`
	Event domain.Event   `json:"event"`
}

// RedisHub shares groups across server instances. Publish goes through redis
// and every instance, this one included, delivers to its local subscribers.
type RedisHub struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *Hub
	prefix string
	logger *zap.Logger
	done   chan struct{}
}

func NewRedisHub(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger) (*RedisHub, error) {
	prefix = strings.TrimSuffix(prefix, ":")
	pubsub := client.PSubscribe(ctx, prefix+":*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s:*: %w", prefix, err)
	}

	h := &RedisHub{
		client: client,
		pubsub: pubsub,
		local:  NewHub(logger),
		prefix: prefix,
		logger: logger,
		done:   make(chan struct{}),
	}
	go h.run()
	return h, nil
}

func (h *RedisHub) channel(group domain.GroupID) string {
	return h.prefix + ":" + string(group)
}

func (h *RedisHub) run() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.logger.Warn("discarding malformed broadcast", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		h.local.Publish(context.Background(), env.Group, env.Event)
	}
}

func (h *RedisHub) Subscribe(group domain.GroupID, sub domain.Subscriber) error {
	return h.local.Subscribe(group, sub)
}

func (h *RedisHub) Unsubscribe(group domain.GroupID, subscriberID string) error {
	return h.local.Unsubscribe(group, subscriberID)
}

func (h *RedisHub) Publish(ctx context.Context, group domain.GroupID, event domain.Event) error {
	payload, err := json.Marshal(envelope{Group: group, Event: event})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := h.client.Publish(ctx, h.channel(group), payload).Err(); err != nil {
		return fmt.Errorf("%w: failed to publish to redis: %w", domain.ErrTransient, err)
	}
	return nil
}

func (h *RedisHub) SubscriberCount(group domain.GroupID) int {
	return h.local.SubscriberCount(group)
}

func (h *RedisHub) Stats() Stats {
	return h.local.Stats()
}

func (h *RedisHub) Close() error {
	err := h.pubsub.Close()
	<-h.done
	h.local.Close()
	return err
}
