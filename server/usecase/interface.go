package usecase

import (
	"context"
	"io"
	"time"

	"github.com/ponyo877/huddle/server/domain"
)

type RoomDirectory interface {
	CreateRoom(ctx context.Context, room domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	Resolve(ctx context.Context, ref string) (domain.RoomID, error)
	AddParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error
	RemoveParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error
	AddAdmin(ctx context.Context, id domain.RoomID, user domain.UserID) error
	RenameRoom(ctx context.Context, id domain.RoomID, name string) error
	SetActive(ctx context.Context, id domain.RoomID, active bool) error
}

type MessageLog interface {
	Append(ctx context.Context, msg domain.Message) (domain.Message, error)
	Get(ctx context.Context, id domain.MessageID) (domain.Message, error)
	TailSince(ctx context.Context, room domain.RoomID, cursor time.Time, limit int, viewer domain.UserID) ([]domain.Message, error)
	RecentBefore(ctx context.Context, room domain.RoomID, before time.Time, limit int, viewer domain.UserID) ([]domain.Message, error)
	Search(ctx context.Context, room domain.RoomID, pattern string, limit int, viewer domain.UserID) ([]domain.Message, error)
	Edit(ctx context.Context, id domain.MessageID, content string) (domain.Message, error)
	Hide(ctx context.Context, id domain.MessageID, user domain.UserID) error
}

type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv domain.Invitation) (domain.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (domain.Invitation, error)
	AcceptInvitation(ctx context.Context, inv domain.Invitation) error
	DeclineInvitation(ctx context.Context, inv domain.Invitation) error
}

type CallStore interface {
	CreateCall(ctx context.Context, call domain.Call) (domain.Call, error)
	UpdateCall(ctx context.Context, call domain.Call) error
	ActiveCalls(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.Call, error)
	ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.Call, error)
}

// SignalObserver is told about direct signals the relay delivered and about
// members whose last connection left a room.
type SignalObserver interface {
	SignalDelivered(ctx context.Context, room domain.RoomID, from domain.Identity, target domain.UserID, req domain.Request)
	MemberLeft(ctx context.Context, room domain.RoomID, user domain.UserID)
}

type Notifier interface {
	SendInvitationNotice(ctx context.Context, inv domain.Invitation, room domain.Room) error
}

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Transport is one client connection, framed as JSON objects. ReadFrame
// wraps domain.ErrInvalidRequest when a frame arrived but could not be
// decoded; the connection stays usable.
type Transport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close(code int, reason string) error
	Remote() string
}

// Close codes passed to Transport.Close. They follow the websocket numbering.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseTryAgainLater   = 1013
)
