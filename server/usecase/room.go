package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ponyo877/huddle/server/domain"
)

type CreateRoomParams struct {
	Name        string
	Type        string
	Description string
	Capacity    int
}

// CreateRoom creates a room owned by creator, who becomes its first admin.
func (c *Coordinator) CreateRoom(ctx context.Context, creator domain.Identity, p CreateRoomParams) (domain.Room, error) {
	if !creator.IsAuthenticated() {
		return domain.Room{}, fmt.Errorf("%w: anonymous users cannot create rooms", domain.ErrUnauthorized)
	}
	roomType, err := domain.ParseRoomType(p.Type)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := domain.NewRoom(p.Name, roomType, creator.ID, p.Description, p.Capacity)
	if err != nil {
		return domain.Room{}, err
	}
	return c.rooms.CreateRoom(ctx, room)
}

// GetRoom returns the room if viewer may see it.
func (c *Coordinator) GetRoom(ctx context.Context, id domain.RoomID, viewer domain.UserID) (domain.Room, error) {
	return c.viewableRoom(ctx, id, viewer)
}

// ListRooms returns the active rooms viewer may join.
func (c *Coordinator) ListRooms(ctx context.Context, viewer domain.UserID) ([]domain.Room, error) {
	rooms, err := c.rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		if c.CanJoin(room, viewer) {
			visible = append(visible, room)
		}
	}
	return visible, nil
}

func (c *Coordinator) AddParticipant(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error {
	if _, err := c.adminRoom(ctx, id, actor); err != nil {
		return err
	}
	if user == "" {
		return fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}
	return c.rooms.AddParticipant(ctx, id, user)
}

// RemoveParticipant removes user from the room and ends their live sessions
// unless the room is public.
func (c *Coordinator) RemoveParticipant(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error {
	room, err := c.adminRoom(ctx, id, actor)
	if err != nil {
		return err
	}
	if user == room.Creator {
		return fmt.Errorf("%w: the room creator cannot be removed", domain.ErrInvalidRequest)
	}
	if err := c.rooms.RemoveParticipant(ctx, id, user); err != nil {
		return err
	}
	if room.Type != domain.RoomTypePublic {
		c.publish(ctx, domain.MemberGroup(id, user), domain.NewSessionEndedEvent(id, "removed from room"))
	}
	return nil
}

func (c *Coordinator) PromoteAdmin(ctx context.Context, id domain.RoomID, actor domain.Identity, user domain.UserID) error {
	if _, err := c.adminRoom(ctx, id, actor); err != nil {
		return err
	}
	if user == "" {
		return fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}
	return c.rooms.AddAdmin(ctx, id, user)
}

func (c *Coordinator) RenameRoom(ctx context.Context, id domain.RoomID, actor domain.Identity, name string) error {
	if _, err := c.adminRoom(ctx, id, actor); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := domain.ValidateRoomName(name); err != nil {
		return err
	}
	return c.rooms.RenameRoom(ctx, id, name)
}

// DeactivateRoom closes the room. Connected sessions receive room_closed and end.
func (c *Coordinator) DeactivateRoom(ctx context.Context, id domain.RoomID, actor domain.Identity) error {
	if _, err := c.adminRoom(ctx, id, actor); err != nil {
		return err
	}
	if err := c.rooms.SetActive(ctx, id, false); err != nil {
		return err
	}
	c.publish(ctx, domain.RoomGroup(id), domain.NewRoomClosedEvent(id, actor))
	return nil
}

func (c *Coordinator) adminRoom(ctx context.Context, id domain.RoomID, actor domain.Identity) (domain.Room, error) {
	room, err := c.rooms.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if !room.IsAdmin(actor.ID) {
		return domain.Room{}, fmt.Errorf("%w: %s is not an admin of room %s", domain.ErrUnauthorized, actor.ID, id)
	}
	return room, nil
}
