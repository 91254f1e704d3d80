package domain

import "errors"

var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrRoomNotFound             = errors.New("room not found")
	ErrMessageNotFound          = errors.New("message not found")
	ErrInvitationNotFound       = errors.New("invitation not found")
	ErrDuplicateRoom            = errors.New("room already exists")
	ErrDuplicateInvitation      = errors.New("an active invitation already exists")
	ErrAlreadyMember            = errors.New("user is already a member")
	ErrRoomFull                 = errors.New("room is full")
	ErrInvitationAlreadyDecided = errors.New("invitation already decided")
	ErrInvitationExpired        = errors.New("invitation expired")
	ErrEmptyContent             = errors.New("message content is empty")
	ErrInvalidReply             = errors.New("reply target is not in this room")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrUnknownType              = errors.New("unknown frame type")
	ErrRateLimited              = errors.New("rate limited")
	ErrTransient                = errors.New("temporarily unavailable")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindExpired
	KindInvalid
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindInvalid:
		return "invalid"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

var errorTable = []struct {
	err  error
	kind ErrorKind
	code string
}{
	{ErrUnauthorized, KindUnauthorized, "unauthorized"},
	{ErrRoomNotFound, KindNotFound, "room_not_found"},
	{ErrMessageNotFound, KindNotFound, "message_not_found"},
	{ErrInvitationNotFound, KindNotFound, "invitation_not_found"},
	{ErrDuplicateRoom, KindConflict, "duplicate_room"},
	{ErrDuplicateInvitation, KindConflict, "duplicate_invitation"},
	{ErrAlreadyMember, KindConflict, "already_member"},
	{ErrRoomFull, KindConflict, "room_full"},
	{ErrInvitationAlreadyDecided, KindConflict, "invitation_already_decided"},
	{ErrInvitationExpired, KindExpired, "invitation_expired"},
	{ErrEmptyContent, KindInvalid, "empty_content"},
	{ErrInvalidReply, KindInvalid, "invalid_reply"},
	{ErrUnknownType, KindInvalid, "unknown_type"},
	{ErrRateLimited, KindInvalid, "rate_limited"},
	{ErrInvalidRequest, KindInvalid, "invalid_request"},
	{ErrTransient, KindTransient, "unavailable"},
}

// KindOf classifies err. Errors that match no sentinel are internal.
func KindOf(err error) ErrorKind {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}

// CodeOf returns the wire code sent to clients in error frames and REST bodies.
func CodeOf(err error) string {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
