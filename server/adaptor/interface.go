package adaptor

import (
	"context"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/usecase"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// SessionServer runs one room connection over a transport.
type SessionServer interface {
	Serve(ctx context.Context, t usecase.Transport, who domain.Identity, roomRef string) error
}

// CallHistory serves the call log.
type CallHistory interface {
	History(ctx context.Context, who domain.UserID, limit int) ([]domain.Call, error)
}

type Usecase interface {
	ResolveRoom(ctx context.Context, ref string) (domain.RoomID, error)
	CreateRoom(ctx context.Context, creator domain.Identity, p usecase.CreateRoomParams) (domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID, viewer domain.UserID) (domain.Room, error)
	ListRooms(ctx context.Context, viewer domain.UserID) ([]domain.Room, error)
	RenameRoom(ctx context.Context, id domain.RoomID, actor domain.Identity, name string) error
	DeactivateRoom(ctx context.Context, id domain.RoomID, actor domain.Identity) error
	AddParticipant(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error
	RemoveParticipant(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error
	PromoteAdmin(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error
	OnlineUsers(ctx context.Context, id domain.RoomID, viewer domain.UserID) ([]domain.UserID, error)
	Tail(ctx context.Context, id domain.RoomID, viewer domain.UserID, cursor time.Time, limit int) ([]domain.Message, error)
	Recent(ctx context.Context, id domain.RoomID, viewer domain.UserID, before time.Time, limit int) ([]domain.Message, error)
	Search(ctx context.Context, id domain.RoomID, viewer domain.UserID, pattern string, limit int) ([]domain.Message, error)
	EditMessage(ctx context.Context, id domain.RoomID, editor domain.Identity, messageID domain.MessageID, content string) (domain.Message, error)
	HideMessage(ctx context.Context, id domain.RoomID, user domain.UserID, messageID domain.MessageID) error
	InviteUser(ctx context.Context, id domain.RoomID, inviter domain.Identity, email string) (usecase.InviteResult, error)
	AcceptInvitation(ctx context.Context, token string, who domain.Identity) (domain.Room, error)
	DeclineInvitation(ctx context.Context, token string, who domain.Identity) error
	UserLoggedOut(ctx context.Context, who domain.Identity) []domain.RoomID
}
