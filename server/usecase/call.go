package usecase

import (
	"context"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

// CallLog keeps the history of calls from the signals the relay delivered.
// An offer rings, an answer connects and call_end or the departure of either
// peer ends the call.
type CallLog struct {
	store  CallStore
	logger *zap.Logger
	now    func() time.Time
}

func NewCallLog(store CallStore, logger *zap.Logger, opts ...CallLogOption) *CallLog {
	l := &CallLog{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type CallLogOption func(*CallLog)

func WithCallClock(now func() time.Time) CallLogOption {
	return func(l *CallLog) {
		l.now = now
	}
}

func (l *CallLog) SignalDelivered(ctx context.Context, room domain.RoomID, from domain.Identity, target domain.UserID, req domain.Request) {
	var err error
	switch req.Type {
	case domain.RequestCallOffer:
		err = l.ring(ctx, room, from.ID, target, req.CallType)
	case domain.RequestCallAnswer:
		err = l.update(ctx, room, from.ID, target, func(c *domain.Call) bool { return c.Answer(from.ID, l.now()) })
	case domain.RequestCallEnd:
		err = l.update(ctx, room, from.ID, target, func(c *domain.Call) bool { return c.End(from.ID, l.now()) })
	}
	if err != nil {
		l.logger.Warn("failed to record call",
			zap.String("room_id", room.String()),
			zap.String("user", from.ID.String()),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
}

// ring records a new call unless one is already active between the peers;
// a second offer then renegotiates the same call.
func (l *CallLog) ring(ctx context.Context, room domain.RoomID, caller, receiver domain.UserID, callType string) error {
	active, err := l.store.ActiveCalls(ctx, room, caller)
	if err != nil {
		return err
	}
	for _, c := range active {
		if c.Involves(caller, receiver) {
			return nil
		}
	}
	typ, err := domain.ParseCallType(callType)
	if err != nil {
		return err
	}
	_, err = l.store.CreateCall(ctx, domain.NewCall(room, caller, receiver, typ, l.now()))
	return err
}

// update applies change to the newest active call between the peers.
func (l *CallLog) update(ctx context.Context, room domain.RoomID, from, peer domain.UserID, change func(*domain.Call) bool) error {
	active, err := l.store.ActiveCalls(ctx, room, from)
	if err != nil {
		return err
	}
	for _, c := range active {
		if !c.Involves(from, peer) {
			continue
		}
		if !change(&c) {
			return nil
		}
		return l.store.UpdateCall(ctx, c)
	}
	return nil
}

// MemberLeft ends every active call of user in room, as if user hung up.
func (l *CallLog) MemberLeft(ctx context.Context, room domain.RoomID, user domain.UserID) {
	active, err := l.store.ActiveCalls(ctx, room, user)
	if err != nil {
		l.logger.Warn("failed to load active calls", zap.String("room_id", room.String()), zap.String("user", user.String()), zap.Error(err))
		return
	}
	for _, c := range active {
		if !c.End(user, l.now()) {
			continue
		}
		if err := l.store.UpdateCall(ctx, c); err != nil {
			l.logger.Warn("failed to end call", zap.String("call_id", string(c.ID)), zap.Error(err))
		}
	}
}

// History lists the calls who made or received, newest first.
func (l *CallLog) History(ctx context.Context, who domain.UserID, limit int) ([]domain.Call, error) {
	return l.store.ListCalls(ctx, who, limit)
}
