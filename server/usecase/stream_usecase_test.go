package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type servedSession struct {
	transport *fakeTransport
	done      chan error
}

func (e *testEnv) serve(t *testing.T, who domain.Identity, roomRef string) *servedSession {
	t.Helper()
	s := &servedSession{transport: newFakeTransport(), done: make(chan error, 1)}
	go func() {
		s.done <- e.manager.Serve(context.Background(), s.transport, who, roomRef)
	}()
	return s
}

func (s *servedSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func TestSessionRejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, alice, "general", "public", 0)

	s := env.serve(t, domain.Anonymous(), "general")
	ev := s.transport.next(t, domain.EventError)
	assert.True(t, ev.Fatal)
	assert.Equal(t, "unauthorized", ev.Code)

	err := s.wait(t)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.True(t, s.transport.isClosed())
	assert.Equal(t, 0, env.presence.OnlineCount("general"))
}

func TestSessionRejectsUnknownRoomAndNonMember(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, alice, "secret", "private", 0)

	tests := []struct {
		name    string
		room    string
		code    string
		wantErr error
	}{
		{"unknown room", "missing", "room_not_found", domain.ErrRoomNotFound},
		{"not a member", "secret", "unauthorized", domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := env.serve(t, bob, tt.room)
			ev := s.transport.next(t, domain.EventError)
			assert.True(t, ev.Fatal)
			assert.Equal(t, tt.code, ev.Code)
			assert.True(t, errors.Is(s.wait(t), tt.wantErr))
		})
	}
	assert.Equal(t, 0, env.manager.Stats().ActiveSessions)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "general", "public", 0)

	_, _, err := env.coord.Join(ctx, room.ID, alice, newFakeSubscriber("alice-observer"))
	require.NoError(t, err)
	_, err = env.coord.PostMessage(ctx, room.ID, alice, usecase.PostParams{Content: "before bob"})
	require.NoError(t, err)

	s := env.serve(t, bob, "general")
	joined := s.transport.next(t, domain.EventUserJoined)
	assert.Equal(t, bob.ID, joined.Sender)
	assert.Equal(t, 2, *joined.OnlineCount)

	history := s.transport.next(t, domain.EventHistory)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "before bob", history.Messages[0].Content)

	s.transport.send(t, `{"type":"ping"}`)
	s.transport.next(t, domain.EventPong)

	s.transport.send(t, `{"type":`)
	bad := s.transport.next(t, domain.EventError)
	assert.False(t, bad.Fatal)
	assert.Equal(t, "invalid_request", bad.Code)

	s.transport.send(t, `{"type":"dance"}`)
	unknown := s.transport.next(t, domain.EventError)
	assert.Equal(t, "unknown_type", unknown.Code)

	s.transport.send(t, `{"type":"message","message":"  "}`)
	empty := s.transport.next(t, domain.EventError)
	assert.Equal(t, "empty_content", empty.Code)

	s.transport.send(t, `{"type":"message","message":"hello"}`)
	chat := s.transport.next(t, domain.EventChatMessage)
	assert.Equal(t, "hello", chat.Message)
	assert.Equal(t, bob.ID, chat.Sender)

	s.transport.send(t, `{"type":"leave"}`)
	require.NoError(t, s.wait(t))
	assert.True(t, s.transport.isClosed())
	assert.False(t, env.presence.IsOnline(bob.ID, room.ID))
	assert.Equal(t, 1, env.hub.SubscriberCount(domain.RoomGroup(room.ID)))
	assert.Equal(t, 0, env.manager.Stats().ActiveSessions)
	assert.Equal(t, int64(1), env.manager.Stats().TotalSessions)
}

func TestSessionClosesOnTransportEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "general", "public", 0)
	observer := newFakeSubscriber("observer")
	_, _, err := env.coord.Join(ctx, room.ID, alice, observer)
	require.NoError(t, err)

	s := env.serve(t, bob, string(room.ID))
	s.transport.next(t, domain.EventHistory)

	s.transport.Close(0, "")
	require.NoError(t, s.wait(t))

	left := observer.next(t, domain.EventUserLeft)
	assert.Equal(t, bob.ID, left.Sender)
	assert.Equal(t, 1, *left.OnlineCount)
}

func TestSessionEndsWhenRoomCloses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "general", "public", 0)

	s := env.serve(t, bob, "general")
	s.transport.next(t, domain.EventHistory)

	require.NoError(t, env.coord.DeactivateRoom(ctx, room.ID, alice))
	s.transport.next(t, domain.EventRoomClosed)
	require.NoError(t, s.wait(t))
	assert.False(t, env.presence.IsOnline(bob.ID, room.ID))
}

func TestSessionRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, alice, "general", "public", 0)

	s := env.serve(t, bob, "general")
	s.transport.next(t, domain.EventHistory)

	burst := usecase.DefaultSessionConfig().Burst
	for i := 0; i < burst+5; i++ {
		s.transport.send(t, `{"type":"typing"}`)
	}
	limited := s.transport.next(t, domain.EventError)
	assert.Equal(t, "rate_limited", limited.Code)
	assert.False(t, limited.Fatal)

	s.transport.Close(0, "")
	require.NoError(t, s.wait(t))
}

func TestSessionShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, alice, "general", "public", 0)

	s := env.serve(t, bob, "general")
	s.transport.next(t, domain.EventHistory)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Shutdown(ctx))
	require.NoError(t, s.wait(t))

	// new sessions are refused once shutdown started
	late := env.serve(t, carol, "general")
	ev := late.transport.next(t, domain.EventError)
	assert.Equal(t, "unavailable", ev.Code)
	assert.True(t, errors.Is(late.wait(t), domain.ErrTransient))
}

func TestSessionClosesSlowConsumer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "general", "public", 0)
	_, _, err := env.coord.Join(ctx, room.ID, alice, newFakeSubscriber("alice-observer"))
	require.NoError(t, err)

	s := env.serve(t, bob, "general")
	s.transport.next(t, domain.EventHistory)
	s.transport.stall()

	flood := usecase.DefaultSessionConfig().OutboxSize + 16
	for i := 0; i < flood; i++ {
		_, err := env.coord.PostMessage(ctx, room.ID, alice, usecase.PostParams{Content: fmt.Sprintf("message %d", i)})
		require.NoError(t, err)
	}
	require.NoError(t, env.coord.DeactivateRoom(ctx, room.ID, alice))

	require.NoError(t, s.wait(t))
	assert.Equal(t, usecase.CloseTryAgainLater, s.transport.code())
	assert.False(t, env.presence.IsOnline(bob.ID, room.ID))
	assert.Equal(t, 1, env.hub.SubscriberCount(domain.RoomGroup(room.ID)))
	assert.Equal(t, 0, env.hub.SubscriberCount(domain.MemberGroup(room.ID, bob.ID)))
}

func TestSessionRefusesDeliveryAfterClose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	room := env.createRoom(t, alice, "general", "public", 0)

	s := env.serve(t, bob, "general")
	s.transport.next(t, domain.EventHistory)
	subs := env.hub.subscribers()
	require.Len(t, subs, 1)

	s.transport.send(t, `{"type":"leave"}`)
	require.NoError(t, s.wait(t))
	for s.transport.pending() {
		<-s.transport.out
	}

	require.NoError(t, env.hub.Publish(ctx, domain.RoomGroup(room.ID), domain.NewPongEvent()))
	require.NoError(t, env.hub.Publish(ctx, domain.MemberGroup(room.ID, bob.ID), domain.NewPongEvent()))
	assert.False(t, subs[0].Deliver(domain.NewPongEvent()))
	assert.False(t, s.transport.pending())
}

func TestSessionSignalsKeepOrder(t *testing.T) {
	env := newTestEnv(t)
	env.createRoom(t, alice, "general", "public", 0)

	caller := env.serve(t, alice, "general")
	caller.transport.next(t, domain.EventHistory)
	callee := env.serve(t, bob, "general")
	callee.transport.next(t, domain.EventHistory)

	const n = 30
	for i := 0; i < n; i++ {
		caller.transport.send(t, fmt.Sprintf(`{"type":"ice_candidate","target_id":%q,"candidate":{"seq":%d}}`, bob.ID, i))
	}
	for i := 0; i < n; i++ {
		ev := callee.transport.next(t, domain.EventICECandidate)
		assert.Equal(t, alice.ID, ev.Sender)
		assert.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, i), string(ev.Candidate))
	}

	caller.transport.Close(0, "")
	callee.transport.Close(0, "")
	require.NoError(t, caller.wait(t))
	require.NoError(t, callee.wait(t))
}
