package usecase

import (
	"context"
	"fmt"

	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

// Relay routes typing indicators, read receipts and call signaling. It never
// persists anything; observers see what it delivered.
type Relay struct {
	presence  *domain.PresenceRegistry
	hub       domain.Broadcaster
	observers []SignalObserver
	logger    *zap.Logger
}

func NewRelay(presence *domain.PresenceRegistry, hub domain.Broadcaster, logger *zap.Logger, observers ...SignalObserver) *Relay {
	return &Relay{
		presence:  presence,
		hub:       hub,
		observers: observers,
		logger:    logger,
	}
}

// Route delivers req from a member of room. Direct signals to a user who is
// not online in the same room are dropped without telling the sender.
func (r *Relay) Route(ctx context.Context, room domain.RoomID, from domain.Identity, req domain.Request) error {
	switch req.Type {
	case domain.RequestTyping:
		return r.hub.Publish(ctx, domain.RoomGroup(room), domain.NewTypingEvent(room, from, req.Typing()))
	case domain.RequestReadReceipt:
		return r.hub.Publish(ctx, domain.RoomGroup(room), domain.NewReadReceiptEvent(room, from, req.MessageID))
	case domain.RequestCallOffer, domain.RequestCallAnswer, domain.RequestICECandidate, domain.RequestCallEnd:
		target := req.Target()
		if target == "" || !r.presence.IsOnline(target, room) {
			r.logger.Debug("dropping signal for unknown recipient",
				zap.String("room_id", room.String()),
				zap.String("user", from.ID.String()),
				zap.String("target", target.String()),
				zap.String("type", string(req.Type)),
			)
			return nil
		}
		if err := r.hub.Publish(ctx, domain.MemberGroup(room, target), domain.NewSignalEvent(room, from, target, req)); err != nil {
			return err
		}
		for _, o := range r.observers {
			o.SignalDelivered(ctx, room, from, target, req)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q cannot be relayed", domain.ErrUnknownType, req.Type)
	}
}

// MemberLeft tells observers that user has no connection left in room.
func (r *Relay) MemberLeft(ctx context.Context, room domain.RoomID, user domain.UserID) {
	if r.presence.IsOnline(user, room) {
		return
	}
	for _, o := range r.observers {
		o.MemberLeft(ctx, room, user)
	}
}
