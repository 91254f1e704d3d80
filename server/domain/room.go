package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultRoomCapacity = 50
	MaxRoomNameLength   = 100
)

type RoomID string

func (id RoomID) String() string {
	return string(id)
}

type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
	RoomTypeGroup   RoomType = "group"
)

func ParseRoomType(s string) (RoomType, error) {
	switch t := RoomType(strings.ToLower(strings.TrimSpace(s))); t {
	case RoomTypePublic, RoomTypePrivate, RoomTypeGroup:
		return t, nil
	case "":
		return RoomTypePublic, nil
	default:
		return "", fmt.Errorf("%w: unknown room type %q", ErrInvalidRequest, s)
	}
}

type Room struct {
	ID           RoomID    `json:"id"`
	LegacyID     int64     `json:"legacy_id"`
	Name         string    `json:"name"`
	Type         RoomType  `json:"type"`
	Creator      UserID    `json:"creator"`
	Description  string    `json:"description,omitempty"`
	Active       bool      `json:"active"`
	Capacity     int       `json:"capacity"`
	Participants []UserID  `json:"participants"`
	Admins       []UserID  `json:"admins"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewRoom(name string, roomType RoomType, creator UserID, description string, capacity int) (Room, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoomName(name); err != nil {
		return Room{}, err
	}
	if creator == "" {
		return Room{}, fmt.Errorf("%w: room creator is required", ErrInvalidRequest)
	}
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return Room{
		Name:         name,
		Type:         roomType,
		Creator:      creator,
		Description:  strings.TrimSpace(description),
		Active:       true,
		Capacity:     capacity,
		Participants: []UserID{creator},
		Admins:       []UserID{creator},
	}, nil
}

func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: room name is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return fmt.Errorf("%w: room name exceeds %d characters", ErrInvalidRequest, MaxRoomNameLength)
	}
	return nil
}

func (r Room) IsParticipant(user UserID) bool {
	return slices.Contains(r.Participants, user)
}

func (r Room) IsAdmin(user UserID) bool {
	return user == r.Creator || slices.Contains(r.Admins, user)
}

// IsMember reports whether user is the creator, an admin or a participant.
func (r Room) IsMember(user UserID) bool {
	return r.IsAdmin(user) || r.IsParticipant(user)
}

// CanJoin is true for everyone in a public room and for members otherwise.
func (r Room) CanJoin(user UserID) bool {
	if user == "" {
		return false
	}
	if r.Type == RoomTypePublic {
		return true
	}
	return r.IsMember(user)
}
