package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

// InviteResult carries the stored invitation. NotificationErr is set when the
// invitation was stored but the notice could not be dispatched.
type InviteResult struct {
	Invitation      domain.Invitation
	NotificationErr error
}

// InviteUser invites an email address to a room on behalf of an admin.
func (c *Coordinator) InviteUser(ctx context.Context, id domain.RoomID, inviter domain.Identity, email string) (InviteResult, error) {
	room, err := c.adminRoom(ctx, id, inviter)
	if err != nil {
		return InviteResult{}, err
	}
	invitee := domain.NewUserID(email)
	if invitee == "" || !strings.Contains(string(invitee), "@") {
		return InviteResult{}, fmt.Errorf("%w: invalid email %q", domain.ErrInvalidRequest, email)
	}
	if room.IsMember(invitee) {
		return InviteResult{}, fmt.Errorf("%w: %s", domain.ErrAlreadyMember, invitee)
	}

	inv := domain.NewInvitation(id, inviter.ID, invitee, uuid.NewString(), c.now())
	inv, err = c.invitations.CreateInvitation(ctx, inv)
	if err != nil {
		return InviteResult{}, err
	}

	result := InviteResult{Invitation: inv}
	if err := c.notifier.SendInvitationNotice(ctx, inv, room); err != nil {
		c.logger.Warn("failed to dispatch invitation notice",
			zap.String("room_id", id.String()),
			zap.String("invitation_id", inv.ID),
			zap.Error(err),
		)
		result.NotificationErr = fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return result, nil
}

// AcceptInvitation adds who to the invited room and announces it with a
// system message.
func (c *Coordinator) AcceptInvitation(ctx context.Context, token string, who domain.Identity) (domain.Room, error) {
	inv, err := c.pendingInvitation(ctx, token, who)
	if err != nil {
		return domain.Room{}, err
	}
	if err := c.invitations.AcceptInvitation(ctx, inv); err != nil {
		return domain.Room{}, err
	}

	room, err := c.rooms.GetRoom(ctx, inv.RoomID)
	if err != nil {
		return domain.Room{}, err
	}
	system := domain.Message{
		RoomID:     room.ID,
		Sender:     who.ID,
		SenderName: who.Name(),
		Content:    who.Name() + " joined",
		Kind:       domain.KindSystem,
	}
	if _, err := c.appendAndPublish(ctx, system); err != nil {
		c.logger.Warn("failed to post join notice", zap.String("room_id", room.ID.String()), zap.Error(err))
	}
	return room, nil
}

// DeclineInvitation marks the invitation declined. Declining a decided
// invitation is a no-op.
func (c *Coordinator) DeclineInvitation(ctx context.Context, token string, who domain.Identity) error {
	inv, err := c.pendingInvitation(ctx, token, who)
	if err != nil {
		if errors.Is(err, domain.ErrInvitationAlreadyDecided) {
			return nil
		}
		return err
	}
	if err := c.invitations.DeclineInvitation(ctx, inv); err != nil && !errors.Is(err, domain.ErrInvitationAlreadyDecided) {
		return err
	}
	return nil
}

func (c *Coordinator) pendingInvitation(ctx context.Context, token string, who domain.Identity) (domain.Invitation, error) {
	inv, err := c.invitations.GetInvitationByToken(ctx, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	if inv.Invitee != who.ID {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if inv.Decided() {
		return domain.Invitation{}, fmt.Errorf("%w: already %s", domain.ErrInvitationAlreadyDecided, inv.Status())
	}
	if inv.Expired(c.now()) {
		return domain.Invitation{}, domain.ErrInvitationExpired
	}
	return inv, nil
}
