package domain

import "strings"

// UserID is the normalized (trimmed, lower-case) email of a user.
type UserID string

func NewUserID(email string) UserID {
	return UserID(strings.ToLower(strings.TrimSpace(email)))
}

func (id UserID) String() string {
	return string(id)
}

type Identity struct {
	ID          UserID
	Email       string
	DisplayName string
}

func Anonymous() Identity {
	return Identity{}
}

func NewIdentity(email, displayName string) Identity {
	return Identity{
		ID:          NewUserID(email),
		Email:       strings.TrimSpace(email),
		DisplayName: strings.TrimSpace(displayName),
	}
}

func (i Identity) IsAuthenticated() bool {
	return i.ID != ""
}

// Name is the display name, falling back to the email.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}
