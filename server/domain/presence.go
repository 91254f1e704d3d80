package domain

import (
	"slices"
	"sync"
	"time"
)

type PresenceEntry struct {
	UserID   UserID    `json:"user_id"`
	RoomID   RoomID    `json:"room_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
	JoinedAt time.Time `json:"joined_at"`
}

// PresenceRegistry tracks who is online in each room. Entries are never
// deleted; leaving only marks them offline.
type PresenceRegistry struct {
	mu    sync.RWMutex
	rooms map[RoomID]*presenceRoom
	now   func() time.Time
}

type presenceRoom struct {
	mu      sync.Mutex
	entries map[UserID]*PresenceEntry
	online  int
}

func NewPresenceRegistry() *PresenceRegistry {
	return NewPresenceRegistryWithClock(time.Now)
}

func NewPresenceRegistryWithClock(now func() time.Time) *PresenceRegistry {
	return &PresenceRegistry{
		rooms: make(map[RoomID]*presenceRoom),
		now:   now,
	}
}

func (p *PresenceRegistry) room(id RoomID, create bool) *presenceRoom {
	p.mu.RLock()
	r, exists := p.rooms[id]
	p.mu.RUnlock()
	if exists || !create {
		return r
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if r, exists = p.rooms[id]; !exists {
		r = &presenceRoom{entries: make(map[UserID]*PresenceEntry)}
		p.rooms[id] = r
	}
	return r
}

// Add marks user online in room. Adding an online user only refreshes last_seen.
func (p *PresenceRegistry) Add(user UserID, room RoomID) PresenceEntry {
	r := p.room(room, true)
	now := p.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[user]
	if !exists {
		e = &PresenceEntry{UserID: user, RoomID: room}
		r.entries[user] = e
	}
	if !e.Online {
		e.Online = true
		e.JoinedAt = now
		r.online++
	}
	e.LastSeen = now
	return *e
}

// Remove marks user offline and reports whether the entry changed.
func (p *PresenceRegistry) Remove(user UserID, room RoomID) bool {
	r := p.room(room, false)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[user]
	if !exists || !e.Online {
		return false
	}
	e.Online = false
	e.LastSeen = p.now()
	r.online--
	return true
}

// Heartbeat refreshes last_seen of an online entry. Offline entries are left alone.
func (p *PresenceRegistry) Heartbeat(user UserID, room RoomID) bool {
	r := p.room(room, false)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[user]
	if !exists || !e.Online {
		return false
	}
	e.LastSeen = p.now()
	return true
}

func (p *PresenceRegistry) OnlineCount(room RoomID) int {
	r := p.room(room, false)
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// OnlineUsers returns the online users of room sorted by id.
func (p *PresenceRegistry) OnlineUsers(room RoomID) []UserID {
	r := p.room(room, false)
	if r == nil {
		return []UserID{}
	}

	r.mu.Lock()
	users := make([]UserID, 0, r.online)
	for id, e := range r.entries {
		if e.Online {
			users = append(users, id)
		}
	}
	r.mu.Unlock()

	slices.Sort(users)
	return users
}

func (p *PresenceRegistry) IsOnline(user UserID, room RoomID) bool {
	e, exists := p.Entry(user, room)
	return exists && e.Online
}

func (p *PresenceRegistry) Entry(user UserID, room RoomID) (PresenceEntry, bool) {
	r := p.room(room, false)
	if r == nil {
		return PresenceEntry{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[user]
	if !exists {
		return PresenceEntry{}, false
	}
	return *e, true
}

// MarkUserOffline flips every online entry of user and returns the affected rooms.
func (p *PresenceRegistry) MarkUserOffline(user UserID) []RoomID {
	p.mu.RLock()
	ids := make([]RoomID, 0, len(p.rooms))
	for id := range p.rooms {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	var affected []RoomID
	for _, id := range ids {
		if p.Remove(user, id) {
			affected = append(affected, id)
		}
	}
	slices.Sort(affected)
	return affected
}
