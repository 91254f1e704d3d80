package domain

import "context"

// GroupID names a fan-out group: every connection of a room, or every
// connection of one user in a room.
type GroupID string

func RoomGroup(room RoomID) GroupID {
	return GroupID("room." + string(room))
}

func MemberGroup(room RoomID, user UserID) GroupID {
	return GroupID("member." + string(room) + "." + string(user))
}

type Subscriber interface {
	ID() string
	// Deliver must not block. It returns false when the event was dropped.
	Deliver(event Event) bool
}

type Broadcaster interface {
	Subscribe(group GroupID, sub Subscriber) error
	Unsubscribe(group GroupID, subscriberID string) error
	Publish(ctx context.Context, group GroupID, event Event) error
	SubscriberCount(group GroupID) int
	Close() error
}
