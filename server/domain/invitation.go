package domain

import "time"

const InvitationTTL = 7 * 24 * time.Hour

type Invitation struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	Inviter   UserID    `json:"inviter"`
	Invitee   UserID    `json:"invitee"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  bool      `json:"accepted"`
	Declined  bool      `json:"declined"`
	CreatedAt time.Time `json:"created_at"`
}

func NewInvitation(room RoomID, inviter, invitee UserID, token string, now time.Time) Invitation {
	return Invitation{
		RoomID:    room,
		Inviter:   inviter,
		Invitee:   invitee,
		Token:     token,
		ExpiresAt: now.Add(InvitationTTL),
		CreatedAt: now,
	}
}

func (i Invitation) Decided() bool {
	return i.Accepted || i.Declined
}

func (i Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Active invitations block a second invitation for the same room and invitee.
func (i Invitation) Active(now time.Time) bool {
	return !i.Decided() && !i.Expired(now)
}

func (i Invitation) Status() string {
	switch {
	case i.Accepted:
		return "accepted"
	case i.Declined:
		return "declined"
	default:
		return "pending"
	}
}
