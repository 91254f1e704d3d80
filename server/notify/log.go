package notify

import (
	"context"

	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

// LogNotifier only logs notices. It is used when no brokers are configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendInvitationNotice(_ context.Context, inv domain.Invitation, room domain.Room) error {
	n.logger.Info("invitation created",
		zap.String("invitation_id", inv.ID),
		zap.String("room_id", room.ID.String()),
		zap.String("room", room.Name),
		zap.String("invitee", inv.Invitee.String()),
		zap.Time("expires_at", inv.ExpiresAt),
	)
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
