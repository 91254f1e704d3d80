package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ponyo877/huddle/server/domain"
)

const messageColumns = "m.id, m.room_id, m.sender, m.sender_name, m.content, m.kind, m.reply_to, m.image_url, m.file_url, m.edited, m.created_at"

const notHidden = "NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?)"

// Append assigns the id and timestamp. Timestamps are strictly increasing per
// room: a timestamp that does not move past the room's last one is bumped by 1ns.
func (r *Repository) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int64
	query := "SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE room_id = ?"
	if err := tx.QueryRowContext(ctx, query, string(msg.RoomID)).Scan(&last); err != nil {
		return domain.Message{}, fmt.Errorf("failed to query last timestamp for room %s: %w", msg.RoomID, err)
	}
	now := r.now()
	ts := toNanos(now)
	if ts <= last {
		ts = last + 1
	}
	id, err := r.newID(now)
	if err != nil {
		return domain.Message{}, err
	}

	query = `INSERT INTO messages (id, room_id, sender, sender_name, content, kind, reply_to, image_url, file_url, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	if _, err := tx.ExecContext(ctx, query, id, string(msg.RoomID), string(msg.Sender), msg.SenderName, msg.Content,
		string(msg.Kind), string(msg.ReplyTo), msg.ImageURL, msg.FileURL, ts); err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message for room %s: %w", msg.RoomID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	msg.ID = domain.MessageID(id)
	msg.CreatedAt = fromNanos(ts)
	msg.Edited = false
	return msg, nil
}

func (r *Repository) Get(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages m WHERE m.id = ?"
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
		}
		return domain.Message{}, fmt.Errorf("failed to query message %s: %w", id, err)
	}
	return msg, nil
}

// TailSince returns up to limit messages newer than cursor, oldest first.
// Passing the last returned timestamp as the next cursor never skips or repeats.
func (r *Repository) TailSince(ctx context.Context, room domain.RoomID, cursor time.Time, limit int, viewer domain.UserID) ([]domain.Message, error) {
	var after int64
	if !cursor.IsZero() {
		after = toNanos(cursor)
	}
	query := "SELECT " + messageColumns + " FROM messages m WHERE m.room_id = ? AND m.created_at > ? AND " + notHidden +
		" ORDER BY m.created_at, m.seq LIMIT ?"
	return r.listMessages(ctx, query, string(room), after, string(viewer), domain.ClampLimit(limit))
}

// RecentBefore returns the newest limit messages older than before (zero means
// now), oldest first.
func (r *Repository) RecentBefore(ctx context.Context, room domain.RoomID, before time.Time, limit int, viewer domain.UserID) ([]domain.Message, error) {
	var until int64 = 1<<63 - 1
	if !before.IsZero() {
		until = toNanos(before)
	}
	query := "SELECT " + messageColumns + " FROM messages m WHERE m.room_id = ? AND m.created_at < ? AND " + notHidden +
		" ORDER BY m.created_at DESC, m.seq DESC LIMIT ?"
	messages, err := r.listMessages(ctx, query, string(room), until, string(viewer), domain.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// Search matches content against a regular expression, oldest first.
func (r *Repository) Search(ctx context.Context, room domain.RoomID, pattern string, limit int, viewer domain.UserID) ([]domain.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages m WHERE m.room_id = ? AND m.content REGEXP ? AND " + notHidden +
		" ORDER BY m.created_at LIMIT ?"
	messages, err := r.listMessages(ctx, query, string(room), pattern, string(viewer), domain.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to execute search in room %s for query '%s': %w", room, pattern, err)
	}
	return messages, nil
}

func (r *Repository) Edit(ctx context.Context, id domain.MessageID, content string) (domain.Message, error) {
	query := "UPDATE messages SET content = ?, edited = 1 WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, content, string(id))
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to update message %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
	}
	return r.Get(ctx, id)
}

// Hide removes a message from user's view only. Hiding twice is a no-op.
func (r *Repository) Hide(ctx context.Context, id domain.MessageID, user domain.UserID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	query := "INSERT OR IGNORE INTO message_hidden (message_id, user_id) VALUES (?, ?)"
	if _, err := r.db.ExecContext(ctx, query, string(id), string(user)); err != nil {
		return fmt.Errorf("failed to hide message %s: %w", id, err)
	}
	return nil
}

func (r *Repository) listMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		m                               domain.Message
		id, room, sender, kind, replyTo string
		edited                          int
		createdAt                       int64
	)
	if err := row.Scan(&id, &room, &sender, &m.SenderName, &m.Content, &kind, &replyTo, &m.ImageURL, &m.FileURL, &edited, &createdAt); err != nil {
		return domain.Message{}, err
	}
	m.ID = domain.MessageID(id)
	m.RoomID = domain.RoomID(room)
	m.Sender = domain.UserID(sender)
	m.Kind = domain.MessageKind(kind)
	m.ReplyTo = domain.MessageID(replyTo)
	m.Edited = edited == 1
	m.CreatedAt = fromNanos(createdAt)
	return m, nil
}
