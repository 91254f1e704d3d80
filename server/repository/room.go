package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/ponyo877/huddle/server/domain"
)

func (r *Repository) CreateRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	r.mu.Lock()
	now := r.now()
	id, err := r.newID(now)
	r.mu.Unlock()
	if err != nil {
		return domain.Room{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO rooms (id, name, type, creator, description, capacity, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	res, err := tx.ExecContext(ctx, query, id, room.Name, string(room.Type), string(room.Creator), room.Description, room.Capacity, boolToInt(room.Active), toNanos(now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Room{}, fmt.Errorf("%w: %s room %q", domain.ErrDuplicateRoom, room.Type, room.Name)
		}
		return domain.Room{}, fmt.Errorf("failed to insert room '%s': %w", room.Name, err)
	}
	legacyID, err := res.LastInsertId()
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to read room row id: %w", err)
	}

	query = "INSERT INTO room_members (room_id, user_id, is_admin, added_at) VALUES (?, ?, 1, ?)"
	if _, err := tx.ExecContext(ctx, query, id, string(room.Creator), toNanos(now)); err != nil {
		return domain.Room{}, fmt.Errorf("failed to insert room creator: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Room{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	room.ID = domain.RoomID(id)
	room.LegacyID = legacyID
	room.CreatedAt = fromNanos(toNanos(now))
	room.Participants = []domain.UserID{room.Creator}
	room.Admins = []domain.UserID{room.Creator}
	return room, nil
}

func (r *Repository) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	query := "SELECT seq, id, name, type, creator, description, capacity, active, created_at FROM rooms WHERE id = ?"
	room, err := scanRoom(r.db.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
		}
		return domain.Room{}, fmt.Errorf("failed to query room %s: %w", id, err)
	}
	if err := r.loadMembers(ctx, &room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// ListRooms returns active rooms in creation order.
func (r *Repository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	query := "SELECT seq, id, name, type, creator, description, capacity, active, created_at FROM rooms WHERE active = 1 ORDER BY seq"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rooms: %w", err)
	}
	rows.Close()

	for i := range rooms {
		if err := r.loadMembers(ctx, &rooms[i]); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

// Resolve maps an external reference to a RoomID: a ULID, a legacy numeric
// id, or a room name. A reference that looks like an id but matches none
// falls back to the name lookup.
func (r *Repository) Resolve(ctx context.Context, ref string) (domain.RoomID, error) {
	type lookup struct {
		query string
		arg   any
	}
	var lookups []lookup
	if _, err := ulid.ParseStrict(ref); err == nil {
		lookups = append(lookups, lookup{"SELECT id FROM rooms WHERE id = ?", ref})
	}
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
		lookups = append(lookups, lookup{"SELECT id FROM rooms WHERE seq = ?", n})
	}
	lookups = append(lookups, lookup{"SELECT id FROM rooms WHERE name = ? ORDER BY seq LIMIT 1", ref})

	for _, l := range lookups {
		var id string
		err := r.db.QueryRowContext(ctx, l.query, l.arg).Scan(&id)
		if err == nil {
			return domain.RoomID(id), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to resolve room %q: %w", ref, err)
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrRoomNotFound, ref)
}

func (r *Repository) AddParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error {
	if _, err := r.GetRoom(ctx, id); err != nil {
		return err
	}
	query := "INSERT INTO room_members (room_id, user_id, is_admin, added_at) VALUES (?, ?, 0, ?)"
	if _, err := r.db.ExecContext(ctx, query, string(id), string(user), toNanos(r.now())); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyMember, user)
		}
		return fmt.Errorf("failed to add participant %s to room %s: %w", user, id, err)
	}
	return nil
}

// RemoveParticipant also drops admin rights since both live on the member row.
func (r *Repository) RemoveParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error {
	query := "DELETE FROM room_members WHERE room_id = ? AND user_id = ?"
	res, err := r.db.ExecContext(ctx, query, string(id), string(user))
	if err != nil {
		return fmt.Errorf("failed to remove participant %s from room %s: %w", user, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s is not a participant", domain.ErrInvalidRequest, user)
	}
	return nil
}

func (r *Repository) AddAdmin(ctx context.Context, id domain.RoomID, user domain.UserID) error {
	if _, err := r.GetRoom(ctx, id); err != nil {
		return err
	}
	query := `INSERT INTO room_members (room_id, user_id, is_admin, added_at) VALUES (?, ?, 1, ?)
		ON CONFLICT (room_id, user_id) DO UPDATE SET is_admin = 1`
	if _, err := r.db.ExecContext(ctx, query, string(id), string(user), toNanos(r.now())); err != nil {
		return fmt.Errorf("failed to promote %s in room %s: %w", user, id, err)
	}
	return nil
}

func (r *Repository) RenameRoom(ctx context.Context, id domain.RoomID, name string) error {
	query := "UPDATE rooms SET name = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, name, string(id))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", domain.ErrDuplicateRoom, name)
		}
		return fmt.Errorf("failed to rename room %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return nil
}

func (r *Repository) SetActive(ctx context.Context, id domain.RoomID, active bool) error {
	query := "UPDATE rooms SET active = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, boolToInt(active), string(id))
	if err != nil {
		return fmt.Errorf("failed to update room %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		room              domain.Room
		id, name, creator string
		roomType          string
		active            int
		createdAt         int64
	)
	if err := row.Scan(&room.LegacyID, &id, &name, &roomType, &creator, &room.Description, &room.Capacity, &active, &createdAt); err != nil {
		return domain.Room{}, err
	}
	room.ID = domain.RoomID(id)
	room.Name = name
	room.Type = domain.RoomType(roomType)
	room.Creator = domain.UserID(creator)
	room.Active = active == 1
	room.CreatedAt = fromNanos(createdAt)
	return room, nil
}

func (r *Repository) loadMembers(ctx context.Context, room *domain.Room) error {
	query := "SELECT user_id, is_admin FROM room_members WHERE room_id = ? ORDER BY added_at, user_id"
	rows, err := r.db.QueryContext(ctx, query, string(room.ID))
	if err != nil {
		return fmt.Errorf("failed to query members of room %s: %w", room.ID, err)
	}
	defer rows.Close()

	room.Participants = []domain.UserID{}
	room.Admins = []domain.UserID{}
	for rows.Next() {
		var user string
		var admin int
		if err := rows.Scan(&user, &admin); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		room.Participants = append(room.Participants, domain.UserID(user))
		if admin == 1 {
			room.Admins = append(room.Admins, domain.UserID(user))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over members of room %s: %w", room.ID, err)
	}
	return nil
}
