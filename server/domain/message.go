package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxMessageLength = 5000

type MessageID string

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

func ParseMessageKind(s string) (MessageKind, error) {
	switch k := MessageKind(s); k {
	case "":
		return KindText, nil
	case KindText, KindImage, KindFile, KindSystem:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown message kind %q", ErrInvalidRequest, s)
	}
}

type Message struct {
	ID         MessageID   `json:"id"`
	RoomID     RoomID      `json:"room_id"`
	Sender     UserID      `json:"sender"`
	SenderName string      `json:"display_name"`
	Content    string      `json:"message"`
	Kind       MessageKind `json:"kind"`
	ReplyTo    MessageID   `json:"reply_to,omitempty"`
	ImageURL   string      `json:"image_url,omitempty"`
	FileURL    string      `json:"file_url,omitempty"`
	Edited     bool        `json:"edited,omitempty"`
	CreatedAt  time.Time   `json:"timestamp"`
}

func (m Message) HasAttachment() bool {
	return m.ImageURL != "" || m.FileURL != ""
}

// Validate checks the content rules that do not depend on other messages.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" && !m.HasAttachment() {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(m.Content) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidRequest, MaxMessageLength)
	}
	return nil
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
