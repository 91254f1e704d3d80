package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, now func() time.Time) *Repository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if now == nil {
		now = time.Now
	}
	return NewRepositoryWithClock(db, now)
}

func createRoom(t *testing.T, r *Repository, name string, roomType domain.RoomType) domain.Room {
	t.Helper()
	room, err := domain.NewRoom(name, roomType, "owner@example.com", "", 0)
	require.NoError(t, err)
	room, err = r.CreateRoom(context.Background(), room)
	require.NoError(t, err)
	return room
}

func TestCreateAndResolveRoom(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, nil)

	room := createRoom(t, r, "general", domain.RoomTypePublic)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, int64(1), room.LegacyID)

	got, err := r.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", got.Name)
	assert.Equal(t, []domain.UserID{"owner@example.com"}, got.Participants)
	assert.Equal(t, []domain.UserID{"owner@example.com"}, got.Admins)

	for _, ref := range []string{string(room.ID), strconv.FormatInt(room.LegacyID, 10), "general"} {
		id, err := r.Resolve(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, room.ID, id)
	}

	_, err = r.Resolve(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrRoomNotFound))

	// names that look like ids still resolve by name
	numeric := createRoom(t, r, "2024", domain.RoomTypePublic)
	id, err := r.Resolve(ctx, "2024")
	require.NoError(t, err)
	assert.Equal(t, numeric.ID, id)

	// the seq lookup wins when both match
	id, err = r.Resolve(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, room.ID, id)

	_, err = r.CreateRoom(ctx, room)
	assert.True(t, errors.Is(err, domain.ErrDuplicateRoom))

	// same name, different type is allowed
	createRoom(t, r, "general", domain.RoomTypePrivate)
}

func TestRoomMembership(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, nil)
	room := createRoom(t, r, "team", domain.RoomTypePrivate)

	require.NoError(t, r.AddParticipant(ctx, room.ID, "p@example.com"))
	err := r.AddParticipant(ctx, room.ID, "p@example.com")
	assert.True(t, errors.Is(err, domain.ErrAlreadyMember))

	require.NoError(t, r.AddAdmin(ctx, room.ID, "p@example.com"))
	got, err := r.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin("p@example.com"))

	require.NoError(t, r.RemoveParticipant(ctx, room.ID, "p@example.com"))
	got, err = r.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.IsMember("p@example.com"), "removal drops admin rights too")

	require.NoError(t, r.RenameRoom(ctx, room.ID, "renamed"))
	require.NoError(t, r.SetActive(ctx, room.ID, false))
	got, err = r.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.False(t, got.Active)

	rooms, err := r.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestAppendAssignsIncreasingTimestamps(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := newTestRepository(t, func() time.Time { return frozen })
	room := createRoom(t, r, "general", domain.RoomTypePublic)

	var prev domain.Message
	for i := 0; i < 5; i++ {
		m, err := r.Append(ctx, domain.Message{RoomID: room.ID, Sender: "a@example.com", Content: fmt.Sprint(i), Kind: domain.KindText})
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)
		if i > 0 {
			assert.True(t, m.CreatedAt.After(prev.CreatedAt), "timestamps must be strictly increasing")
			assert.NotEqual(t, prev.ID, m.ID)
		}
		prev = m
	}
}

func TestTailSinceCursor(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := newTestRepository(t, func() time.Time { return frozen })
	room := createRoom(t, r, "general", domain.RoomTypePublic)

	const n = 12
	var appended []domain.Message
	for i := 0; i < n; i++ {
		m, err := r.Append(ctx, domain.Message{RoomID: room.ID, Sender: "a@example.com", Content: fmt.Sprint(i), Kind: domain.KindText})
		require.NoError(t, err)
		appended = append(appended, m)
	}

	const k = 4
	got, err := r.TailSince(ctx, room.ID, appended[k-1].CreatedAt, 0, "b@example.com")
	require.NoError(t, err)
	require.Len(t, got, n-k)
	for i, m := range got {
		assert.Equal(t, appended[k+i].ID, m.ID)
	}

	// paging with the last timestamp as cursor neither skips nor repeats
	var paged []domain.Message
	cursor := time.Time{}
	for {
		page, err := r.TailSince(ctx, room.ID, cursor, 5, "b@example.com")
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		cursor = page[len(page)-1].CreatedAt
	}
	require.Len(t, paged, n)
	for i := range paged {
		assert.Equal(t, appended[i].ID, paged[i].ID)
	}
}

func TestRecentBeforeAndHide(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, nil)
	room := createRoom(t, r, "general", domain.RoomTypePublic)

	var ids []domain.MessageID
	for i := 0; i < 5; i++ {
		m, err := r.Append(ctx, domain.Message{RoomID: room.ID, Sender: "a@example.com", Content: fmt.Sprintf("msg %d", i), Kind: domain.KindText})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	recent, err := r.RecentBefore(ctx, room.ID, time.Time{}, 3, "b@example.com")
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[2:], []domain.MessageID{recent[0].ID, recent[1].ID, recent[2].ID})

	require.NoError(t, r.Hide(ctx, ids[4], "b@example.com"))
	require.NoError(t, r.Hide(ctx, ids[4], "b@example.com"))

	recent, err = r.RecentBefore(ctx, room.ID, time.Time{}, 3, "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, ids[1:4], []domain.MessageID{recent[0].ID, recent[1].ID, recent[2].ID})

	// other viewers still see it
	recent, err = r.RecentBefore(ctx, room.ID, time.Time{}, 1, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, ids[4], recent[0].ID)

	err = r.Hide(ctx, "nope", "b@example.com")
	assert.True(t, errors.Is(err, domain.ErrMessageNotFound))
}

func TestEditAndSearch(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t, nil)
	room := createRoom(t, r, "general", domain.RoomTypePublic)

	m, err := r.Append(ctx, domain.Message{RoomID: room.ID, Sender: "a@example.com", Content: "helo", Kind: domain.KindText})
	require.NoError(t, err)
	_, err = r.Append(ctx, domain.Message{RoomID: room.ID, Sender: "a@example.com", Content: "bye", Kind: domain.KindText})
	require.NoError(t, err)

	edited, err := r.Edit(ctx, m.ID, "hello")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "hello", edited.Content)
	assert.Equal(t, m.CreatedAt, edited.CreatedAt)

	found, err := r.Search(ctx, room.ID, "^hel+o$", 0, "a@example.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, m.ID, found[0].ID)
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := newTestRepository(t, func() time.Time { return now })
	room := createRoom(t, r, "team", domain.RoomTypePrivate)

	inv := domain.NewInvitation(room.ID, "owner@example.com", "guest@example.com", "tok-1", now)
	inv, err := r.CreateInvitation(ctx, inv)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)

	_, err = r.CreateInvitation(ctx, domain.NewInvitation(room.ID, "owner@example.com", "guest@example.com", "tok-2", now))
	assert.True(t, errors.Is(err, domain.ErrDuplicateInvitation))

	got, err := r.GetInvitationByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, now.Add(domain.InvitationTTL), got.ExpiresAt)

	require.NoError(t, r.AcceptInvitation(ctx, got))
	err = r.AcceptInvitation(ctx, got)
	assert.True(t, errors.Is(err, domain.ErrInvitationAlreadyDecided))
	err = r.DeclineInvitation(ctx, got)
	assert.True(t, errors.Is(err, domain.ErrInvitationAlreadyDecided))

	joined, err := r.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, joined.IsParticipant("guest@example.com"))

	// a decided invitation no longer blocks a new one
	_, err = r.CreateInvitation(ctx, domain.NewInvitation(room.ID, "owner@example.com", "guest@example.com", "tok-3", now))
	require.NoError(t, err)

	_, err = r.GetInvitationByToken(ctx, "unknown")
	assert.True(t, errors.Is(err, domain.ErrInvitationNotFound))
}

func TestExpiredInvitationDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := newTestRepository(t, func() time.Time { return now })
	room := createRoom(t, r, "team", domain.RoomTypePrivate)

	_, err := r.CreateInvitation(ctx, domain.NewInvitation(room.ID, "owner@example.com", "guest@example.com", "old", now))
	require.NoError(t, err)

	later := now.Add(domain.InvitationTTL + time.Minute)
	_, err = r.CreateInvitation(ctx, domain.NewInvitation(room.ID, "owner@example.com", "guest@example.com", "new", later))
	require.NoError(t, err)
}

func TestCallLifecycle(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := newTestRepository(t, nil)
	room := createRoom(t, r, "general", domain.RoomTypePublic)

	call, err := r.CreateCall(ctx, domain.NewCall(room.ID, "a@example.com", "b@example.com", domain.CallVideo, start))
	require.NoError(t, err)
	assert.NotEmpty(t, call.ID)

	active, err := r.ActiveCalls(ctx, room.ID, "b@example.com")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, call.ID, active[0].ID)
	assert.Nil(t, active[0].AnsweredAt)

	require.True(t, call.Answer("b@example.com", start.Add(time.Second)))
	require.NoError(t, r.UpdateCall(ctx, call))
	require.True(t, call.End("a@example.com", start.Add(time.Minute)))
	require.NoError(t, r.UpdateCall(ctx, call))

	active, err = r.ActiveCalls(ctx, room.ID, "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = r.CreateCall(ctx, domain.NewCall(room.ID, "b@example.com", "c@example.com", domain.CallAudio, start.Add(time.Hour)))
	require.NoError(t, err)

	calls, err := r.ListCalls(ctx, "b@example.com", 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, domain.UserID("c@example.com"), calls[0].Receiver)
	done := calls[1]
	assert.Equal(t, domain.CallCompleted, done.Status)
	assert.Equal(t, domain.CallVideo, done.Type)
	require.NotNil(t, done.AnsweredAt)
	require.NotNil(t, done.EndedAt)
	assert.True(t, done.EndedAt.Equal(start.Add(time.Minute)))
	assert.Equal(t, time.Minute, done.Duration)

	calls, err = r.ListCalls(ctx, "c@example.com", 0)
	require.NoError(t, err)
	assert.Len(t, calls, 1)

	call.ID = "missing"
	assert.Error(t, r.UpdateCall(ctx, call))
}
