package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

// Coordinator owns room membership, live connections and message posting.
type Coordinator struct {
	rooms       RoomDirectory
	messages    MessageLog
	invitations InvitationStore
	presence    *domain.PresenceRegistry
	hub         domain.Broadcaster
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	live map[domain.RoomID]*liveRoom
}

// liveRoom holds the open connections of a room, keyed by user then session.
// Its mutex serializes the capacity check with registration.
type liveRoom struct {
	mu       sync.Mutex
	sessions map[domain.UserID]map[string]struct{}
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(
	rooms RoomDirectory,
	messages MessageLog,
	invitations InvitationStore,
	presence *domain.PresenceRegistry,
	hub domain.Broadcaster,
	notifier Notifier,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		rooms:       rooms,
		messages:    messages,
		invitations: invitations,
		presence:    presence,
		hub:         hub,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		live:        make(map[domain.RoomID]*liveRoom),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lockLiveRoom returns the live entry of room, creating it, with its mutex
// held. Entries are removed by Leave once empty, so a fetched entry is only
// usable while it is still the current one.
func (c *Coordinator) lockLiveRoom(id domain.RoomID) *liveRoom {
	for {
		c.mu.Lock()
		r, exists := c.live[id]
		if !exists {
			r = &liveRoom{sessions: make(map[domain.UserID]map[string]struct{})}
			c.live[id] = r
		}
		c.mu.Unlock()

		r.mu.Lock()
		if c.isLive(id, r) {
			return r
		}
		r.mu.Unlock()
	}
}

func (c *Coordinator) isLive(id domain.RoomID, r *liveRoom) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live[id] == r
}

// pruneLiveRoom drops an empty entry. The caller holds r.mu.
func (c *Coordinator) pruneLiveRoom(id domain.RoomID, r *liveRoom) {
	if len(r.sessions) > 0 {
		return
	}
	c.mu.Lock()
	if c.live[id] == r {
		delete(c.live, id)
	}
	c.mu.Unlock()
}

// LiveRoomCount is the number of rooms with at least one open connection.
func (c *Coordinator) LiveRoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// ResolveRoom turns an external room reference into a RoomID.
func (c *Coordinator) ResolveRoom(ctx context.Context, ref string) (domain.RoomID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: room is required", domain.ErrInvalidRequest)
	}
	return c.rooms.Resolve(ctx, ref)
}

// CanJoin reports whether user may join room.
func (c *Coordinator) CanJoin(room domain.Room, user domain.UserID) bool {
	return room.CanJoin(user)
}

// Join registers a connection of who in room and announces it. A second
// connection of an online user does not count against capacity.
func (c *Coordinator) Join(ctx context.Context, id domain.RoomID, who domain.Identity, sub domain.Subscriber) (domain.Room, int, error) {
	room, err := c.rooms.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, 0, err
	}
	if !room.Active {
		return domain.Room{}, 0, fmt.Errorf("%w: room %s is inactive", domain.ErrUnauthorized, id)
	}
	if !c.CanJoin(room, who.ID) {
		return domain.Room{}, 0, fmt.Errorf("%w: %s may not join room %s", domain.ErrUnauthorized, who.ID, id)
	}

	lr := c.lockLiveRoom(id)
	conns := lr.sessions[who.ID]
	if len(conns) == 0 && len(lr.sessions) >= room.Capacity {
		c.pruneLiveRoom(id, lr)
		lr.mu.Unlock()
		return domain.Room{}, 0, fmt.Errorf("%w: %d of %d", domain.ErrRoomFull, len(lr.sessions), room.Capacity)
	}
	if err := c.hub.Subscribe(domain.RoomGroup(id), sub); err != nil {
		c.pruneLiveRoom(id, lr)
		lr.mu.Unlock()
		return domain.Room{}, 0, fmt.Errorf("failed to subscribe to room %s: %w", id, err)
	}
	if err := c.hub.Subscribe(domain.MemberGroup(id, who.ID), sub); err != nil {
		c.hub.Unsubscribe(domain.RoomGroup(id), sub.ID())
		c.pruneLiveRoom(id, lr)
		lr.mu.Unlock()
		return domain.Room{}, 0, fmt.Errorf("failed to subscribe to member group: %w", err)
	}
	if conns == nil {
		conns = make(map[string]struct{})
		lr.sessions[who.ID] = conns
	}
	conns[sub.ID()] = struct{}{}
	c.presence.Add(who.ID, id)
	count := c.presence.OnlineCount(id)
	lr.mu.Unlock()

	c.publish(ctx, domain.RoomGroup(id), domain.NewJoinEvent(id, who, count))
	return room, count, nil
}

// Leave deregisters one connection. Presence goes offline, and user_left is
// announced, only when the user's last connection in the room leaves.
func (c *Coordinator) Leave(ctx context.Context, id domain.RoomID, who domain.Identity, subscriberID string) (int, error) {
	c.mu.Lock()
	lr, exists := c.live[id]
	c.mu.Unlock()
	if !exists {
		return c.presence.OnlineCount(id), nil
	}
	lr.mu.Lock()
	conns := lr.sessions[who.ID]
	if _, exists := conns[subscriberID]; !exists {
		lr.mu.Unlock()
		return c.presence.OnlineCount(id), nil
	}
	delete(conns, subscriberID)
	if err := c.hub.Unsubscribe(domain.RoomGroup(id), subscriberID); err != nil {
		c.logger.Warn("failed to unsubscribe from room group", zap.String("room_id", id.String()), zap.Error(err))
	}
	if err := c.hub.Unsubscribe(domain.MemberGroup(id, who.ID), subscriberID); err != nil {
		c.logger.Warn("failed to unsubscribe from member group", zap.String("room_id", id.String()), zap.Error(err))
	}
	wentOffline := false
	if len(conns) == 0 {
		delete(lr.sessions, who.ID)
		wentOffline = c.presence.Remove(who.ID, id)
	}
	count := c.presence.OnlineCount(id)
	c.pruneLiveRoom(id, lr)
	lr.mu.Unlock()

	if wentOffline {
		c.publish(ctx, domain.RoomGroup(id), domain.NewLeaveEvent(id, who, count))
	}
	return count, nil
}

// Touch refreshes the presence heartbeat of who in room.
func (c *Coordinator) Touch(id domain.RoomID, who domain.UserID) {
	c.presence.Heartbeat(who, id)
}

type PostParams struct {
	Content  string
	Kind     string
	ReplyTo  domain.MessageID
	ImageURL string
	FileURL  string
}

// PostMessage appends a message from an online sender and broadcasts it.
func (c *Coordinator) PostMessage(ctx context.Context, id domain.RoomID, sender domain.Identity, p PostParams) (domain.Message, error) {
	kind, err := domain.ParseMessageKind(p.Kind)
	if err != nil {
		return domain.Message{}, err
	}
	if kind == domain.KindSystem {
		return domain.Message{}, fmt.Errorf("%w: system messages cannot be posted", domain.ErrInvalidRequest)
	}
	if !c.presence.IsOnline(sender.ID, id) {
		return domain.Message{}, fmt.Errorf("%w: %s is not online in room %s", domain.ErrUnauthorized, sender.ID, id)
	}

	msg := domain.Message{
		RoomID:     id,
		Sender:     sender.ID,
		SenderName: sender.Name(),
		Content:    p.Content,
		Kind:       kind,
		ReplyTo:    p.ReplyTo,
		ImageURL:   p.ImageURL,
		FileURL:    p.FileURL,
	}
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	if msg.ReplyTo != "" {
		parent, err := c.messages.Get(ctx, msg.ReplyTo)
		if err != nil {
			if errors.Is(err, domain.ErrMessageNotFound) {
				return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrInvalidReply, msg.ReplyTo)
			}
			return domain.Message{}, fmt.Errorf("failed to get reply target: %w", err)
		}
		if parent.RoomID != id {
			return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrInvalidReply, msg.ReplyTo)
		}
	}

	return c.appendAndPublish(ctx, msg)
}

func (c *Coordinator) appendAndPublish(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg, err := c.messages.Append(ctx, msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: failed to append message: %w", domain.ErrTransient, err)
	}
	c.publish(ctx, domain.RoomGroup(msg.RoomID), domain.NewChatMessageEvent(msg))
	return msg, nil
}

// EditMessage replaces the content of a message. Only its sender may edit it.
func (c *Coordinator) EditMessage(ctx context.Context, id domain.RoomID, editor domain.Identity, messageID domain.MessageID, content string) (domain.Message, error) {
	msg, err := c.messageInRoom(ctx, id, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.Sender != editor.ID || msg.Kind == domain.KindSystem {
		return domain.Message{}, fmt.Errorf("%w: only the sender may edit a message", domain.ErrUnauthorized)
	}
	msg.Content = content
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	edited, err := c.messages.Edit(ctx, messageID, content)
	if err != nil {
		return domain.Message{}, err
	}
	c.publish(ctx, domain.RoomGroup(id), domain.NewMessageEditedEvent(edited))
	return edited, nil
}

// HideMessage hides a message for user only.
func (c *Coordinator) HideMessage(ctx context.Context, id domain.RoomID, user domain.UserID, messageID domain.MessageID) error {
	if _, err := c.viewableRoom(ctx, id, user); err != nil {
		return err
	}
	if _, err := c.messageInRoom(ctx, id, messageID); err != nil {
		return err
	}
	return c.messages.Hide(ctx, messageID, user)
}

// Tail returns messages after cursor for a viewer allowed in the room.
func (c *Coordinator) Tail(ctx context.Context, id domain.RoomID, viewer domain.UserID, cursor time.Time, limit int) ([]domain.Message, error) {
	if _, err := c.viewableRoom(ctx, id, viewer); err != nil {
		return nil, err
	}
	return c.messages.TailSince(ctx, id, cursor, limit, viewer)
}

// Recent returns the newest messages before before (zero means now).
func (c *Coordinator) Recent(ctx context.Context, id domain.RoomID, viewer domain.UserID, before time.Time, limit int) ([]domain.Message, error) {
	if _, err := c.viewableRoom(ctx, id, viewer); err != nil {
		return nil, err
	}
	return c.messages.RecentBefore(ctx, id, before, limit, viewer)
}

// Search matches message content against a regular expression.
func (c *Coordinator) Search(ctx context.Context, id domain.RoomID, viewer domain.UserID, pattern string, limit int) ([]domain.Message, error) {
	if _, err := c.viewableRoom(ctx, id, viewer); err != nil {
		return nil, err
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("%w: bad pattern: %v", domain.ErrInvalidRequest, err)
	}
	return c.messages.Search(ctx, id, pattern, limit, viewer)
}

// OnlineUsers lists who is online in the room.
func (c *Coordinator) OnlineUsers(ctx context.Context, id domain.RoomID, viewer domain.UserID) ([]domain.UserID, error) {
	if _, err := c.viewableRoom(ctx, id, viewer); err != nil {
		return nil, err
	}
	return c.presence.OnlineUsers(id), nil
}

// UserLoggedOut marks user offline everywhere and ends their live sessions.
func (c *Coordinator) UserLoggedOut(ctx context.Context, who domain.Identity) []domain.RoomID {
	rooms := c.presence.MarkUserOffline(who.ID)
	for _, id := range rooms {
		c.publish(ctx, domain.MemberGroup(id, who.ID), domain.NewSessionEndedEvent(id, "logged out"))
		c.publish(ctx, domain.RoomGroup(id), domain.NewLeaveEvent(id, who, c.presence.OnlineCount(id)))
	}
	return rooms
}

func (c *Coordinator) viewableRoom(ctx context.Context, id domain.RoomID, viewer domain.UserID) (domain.Room, error) {
	room, err := c.rooms.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	if !c.CanJoin(room, viewer) {
		return domain.Room{}, fmt.Errorf("%w: %s may not view room %s", domain.ErrUnauthorized, viewer, id)
	}
	return room, nil
}

func (c *Coordinator) messageInRoom(ctx context.Context, id domain.RoomID, messageID domain.MessageID) (domain.Message, error) {
	msg, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.RoomID != id {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	return msg, nil
}

// publish delivers event after the state it describes is committed. Failures
// are logged; clients recover missed messages through Tail.
func (c *Coordinator) publish(ctx context.Context, group domain.GroupID, event domain.Event) {
	if err := c.hub.Publish(ctx, group, event); err != nil {
		c.logger.Warn("failed to publish event",
			zap.String("group", string(group)),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
