package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "team", "private", 0)

	_, err := env.coord.InviteUser(ctx, room.ID, bob, "carol@example.com")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized), "only admins invite")

	_, err = env.coord.InviteUser(ctx, room.ID, alice, "not-an-email")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))

	_, err = env.coord.InviteUser(ctx, room.ID, alice, "Alice@Example.com")
	assert.True(t, errors.Is(err, domain.ErrAlreadyMember))

	res, err := env.coord.InviteUser(ctx, room.ID, alice, "Bob@Example.com")
	require.NoError(t, err)
	assert.NoError(t, res.NotificationErr)
	assert.Equal(t, bob.ID, res.Invitation.Invitee)
	assert.NotEmpty(t, res.Invitation.Token)
	assert.Equal(t, env.clock.Now().Add(domain.InvitationTTL), res.Invitation.ExpiresAt)
	assert.Len(t, env.notifier.notice, 1)

	_, err = env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	assert.True(t, errors.Is(err, domain.ErrDuplicateInvitation))
}

func TestInviteUserNotificationFailureKeepsInvitation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "team", "private", 0)
	env.notifier.err = errors.New("broker unavailable")

	res, err := env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	require.NoError(t, err)
	require.Error(t, res.NotificationErr)
	assert.Equal(t, domain.KindTransient, domain.KindOf(res.NotificationErr))

	stored, err := env.repo.GetInvitationByToken(ctx, res.Invitation.Token)
	require.NoError(t, err)
	assert.False(t, stored.Decided())
}

func TestAcceptInvitation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "team", "private", 0)
	sub := newFakeSubscriber("a")
	_, _, err := env.coord.Join(ctx, room.ID, alice, sub)
	require.NoError(t, err)

	res, err := env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	require.NoError(t, err)
	token := res.Invitation.Token

	_, err = env.coord.AcceptInvitation(ctx, token, carol)
	assert.True(t, errors.Is(err, domain.ErrInvitationNotFound), "another user's token")
	_, err = env.coord.AcceptInvitation(ctx, "unknown", bob)
	assert.True(t, errors.Is(err, domain.ErrInvitationNotFound))

	joined, err := env.coord.AcceptInvitation(ctx, token, bob)
	require.NoError(t, err)
	assert.True(t, joined.IsParticipant(bob.ID))

	notice := sub.next(t, domain.EventChatMessage)
	assert.Equal(t, domain.KindSystem, notice.Kind)
	assert.Equal(t, "Bob joined", notice.Message)

	// the second accept fails and changes nothing
	_, err = env.coord.AcceptInvitation(ctx, token, bob)
	assert.True(t, errors.Is(err, domain.ErrInvitationAlreadyDecided))
	stored, err := env.repo.GetInvitationByToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, stored.Accepted)
	assert.False(t, stored.Declined)

	room, err = env.coord.GetRoom(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, room.Participants, 2)
}

func TestExpiredInvitationScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "private-1", "private", 0)

	res, err := env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	require.NoError(t, err)

	env.clock.Advance(8 * 24 * time.Hour)
	_, err = env.coord.AcceptInvitation(ctx, res.Invitation.Token, bob)
	assert.True(t, errors.Is(err, domain.ErrInvitationExpired))

	err = env.coord.DeclineInvitation(ctx, res.Invitation.Token, bob)
	assert.True(t, errors.Is(err, domain.ErrInvitationExpired))

	got, err := env.repo.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.IsMember(bob.ID))

	_, _, err = env.coord.Join(ctx, room.ID, bob, newFakeSubscriber("b"))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestDeclineInvitation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "team", "private", 0)

	res, err := env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, env.coord.DeclineInvitation(ctx, res.Invitation.Token, bob))
	require.NoError(t, env.coord.DeclineInvitation(ctx, res.Invitation.Token, bob), "declining twice is a no-op")

	_, err = env.coord.AcceptInvitation(ctx, res.Invitation.Token, bob)
	assert.True(t, errors.Is(err, domain.ErrInvitationAlreadyDecided))

	// a declined invitation no longer blocks a new one
	_, err = env.coord.InviteUser(ctx, room.ID, alice, "bob@example.com")
	require.NoError(t, err)
}
