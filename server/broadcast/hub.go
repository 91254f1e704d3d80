package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

type Stats struct {
	Groups      int
	Subscribers int
	Delivered   int64
	Dropped     int64
}

// Hub fans events out to the subscribers of a group within this process.
// Delivery never blocks: a subscriber whose outbox is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	groups map[domain.GroupID]map[string]domain.Subscriber
	logger *zap.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[domain.GroupID]map[string]domain.Subscriber),
		logger: logger,
	}
}

func (h *Hub) Subscribe(group domain.GroupID, sub domain.Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, exists := h.groups[group]
	if !exists {
		subs = make(map[string]domain.Subscriber)
		h.groups[group] = subs
	}
	subs[sub.ID()] = sub
	return nil
}

func (h *Hub) Unsubscribe(group domain.GroupID, subscriberID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, exists := h.groups[group]
	if !exists {
		return nil
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(h.groups, group)
	}
	return nil
}

func (h *Hub) Publish(_ context.Context, group domain.GroupID, event domain.Event) error {
	h.mu.RLock()
	subs := make([]domain.Subscriber, 0, len(h.groups[group]))
	for _, sub := range h.groups[group] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.Deliver(event) {
			h.delivered.Add(1)
			continue
		}
		h.dropped.Add(1)
		h.logger.Warn("dropping event for slow subscriber",
			zap.String("group", string(group)),
			zap.String("subscriber", sub.ID()),
			zap.String("type", string(event.Type)),
		)
	}
	return nil
}

func (h *Hub) SubscriberCount(group domain.GroupID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups = make(map[domain.GroupID]map[string]domain.Subscriber)
	return nil
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Groups:    len(h.groups),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
	for _, subs := range h.groups {
		stats.Subscribers += len(subs)
	}
	return stats
}
