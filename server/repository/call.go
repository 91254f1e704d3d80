package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ponyo877/huddle/server/domain"
)

const callColumns = "id, room_id, caller, receiver, call_type, status, started_at, answered_at, ended_at, duration"

func (r *Repository) CreateCall(ctx context.Context, call domain.Call) (domain.Call, error) {
	r.mu.Lock()
	id, err := r.newID(call.StartedAt)
	r.mu.Unlock()
	if err != nil {
		return domain.Call{}, err
	}

	query := "INSERT INTO calls (" + callColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0)"
	if _, err := r.db.ExecContext(ctx, query, id, string(call.RoomID), string(call.Caller), string(call.Receiver),
		string(call.Type), string(call.Status), toNanos(call.StartedAt)); err != nil {
		return domain.Call{}, fmt.Errorf("failed to insert call: %w", err)
	}
	call.ID = domain.CallID(id)
	call.StartedAt = fromNanos(toNanos(call.StartedAt))
	return call, nil
}

// UpdateCall stores the status and end of call.
func (r *Repository) UpdateCall(ctx context.Context, call domain.Call) error {
	query := "UPDATE calls SET status = ?, answered_at = ?, ended_at = ?, duration = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, string(call.Status), optionalNanos(call.AnsweredAt), optionalNanos(call.EndedAt),
		int64(call.Duration), string(call.ID))
	if err != nil {
		return fmt.Errorf("failed to update call %s: %w", call.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update call %s: not found", call.ID)
	}
	return nil
}

// ActiveCalls returns the ringing or ongoing calls of user in room, newest first.
func (r *Repository) ActiveCalls(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.Call, error) {
	query := "SELECT " + callColumns + " FROM calls WHERE room_id = ? AND (caller = ? OR receiver = ?) AND status IN (?, ?)" +
		" ORDER BY started_at DESC, seq DESC"
	return r.listCalls(ctx, query, string(room), string(user), string(user), string(domain.CallInitiated), string(domain.CallOngoing))
}

// ListCalls returns the calls user made or received, newest first.
func (r *Repository) ListCalls(ctx context.Context, user domain.UserID, limit int) ([]domain.Call, error) {
	query := "SELECT " + callColumns + " FROM calls WHERE caller = ? OR receiver = ? ORDER BY started_at DESC, seq DESC LIMIT ?"
	return r.listCalls(ctx, query, string(user), string(user), domain.ClampLimit(limit))
}

func (r *Repository) listCalls(ctx context.Context, query string, args ...any) ([]domain.Call, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	calls := []domain.Call{}
	for rows.Next() {
		var (
			c                                      domain.Call
			id, room, caller, receiver, typ, state string
			started, answered, ended, duration     int64
		)
		if err := rows.Scan(&id, &room, &caller, &receiver, &typ, &state, &started, &answered, &ended, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		c.ID = domain.CallID(id)
		c.RoomID = domain.RoomID(room)
		c.Caller = domain.UserID(caller)
		c.Receiver = domain.UserID(receiver)
		c.Type = domain.CallType(typ)
		c.Status = domain.CallStatus(state)
		c.StartedAt = fromNanos(started)
		c.AnsweredAt = nanosOrNil(answered)
		c.EndedAt = nanosOrNil(ended)
		c.Duration = time.Duration(duration)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over calls: %w", err)
	}
	return calls, nil
}

func optionalNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return toNanos(*t)
}

func nanosOrNil(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := fromNanos(n)
	return &t
}
