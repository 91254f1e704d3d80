package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ponyo877/huddle/server/domain"
)

const invitationColumns = "id, room_id, inviter, invitee, token, expires_at, accepted, declined, created_at"

// CreateInvitation stores inv unless an active invitation for the same room
// and invitee exists. The check and the insert share one transaction.
func (r *Repository) CreateInvitation(ctx context.Context, inv domain.Invitation) (domain.Invitation, error) {
	r.mu.Lock()
	id, err := r.newID(inv.CreatedAt)
	r.mu.Unlock()
	if err != nil {
		return domain.Invitation{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	query := "SELECT COUNT(*) FROM invitations WHERE room_id = ? AND invitee = ? AND accepted = 0 AND declined = 0 AND expires_at > ?"
	if err := tx.QueryRowContext(ctx, query, string(inv.RoomID), string(inv.Invitee), toNanos(inv.CreatedAt)).Scan(&active); err != nil {
		return domain.Invitation{}, fmt.Errorf("failed to query invitations: %w", err)
	}
	if active > 0 {
		return domain.Invitation{}, fmt.Errorf("%w: %s in room %s", domain.ErrDuplicateInvitation, inv.Invitee, inv.RoomID)
	}

	query = "INSERT INTO invitations (" + invitationColumns + ") VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)"
	if _, err := tx.ExecContext(ctx, query, id, string(inv.RoomID), string(inv.Inviter), string(inv.Invitee), inv.Token,
		toNanos(inv.ExpiresAt), toNanos(inv.CreatedAt)); err != nil {
		return domain.Invitation{}, fmt.Errorf("failed to insert invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	inv.ID = id
	inv.ExpiresAt = fromNanos(toNanos(inv.ExpiresAt))
	inv.CreatedAt = fromNanos(toNanos(inv.CreatedAt))
	return inv, nil
}

func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (domain.Invitation, error) {
	query := "SELECT " + invitationColumns + " FROM invitations WHERE token = ?"
	var (
		inv                    domain.Invitation
		room, inviter, invitee string
		expiresAt, createdAt   int64
		accepted, declined     int
	)
	err := r.db.QueryRowContext(ctx, query, token).Scan(&inv.ID, &room, &inviter, &invitee, &inv.Token, &expiresAt, &accepted, &declined, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invitation{}, domain.ErrInvitationNotFound
		}
		return domain.Invitation{}, fmt.Errorf("failed to query invitation: %w", err)
	}
	inv.RoomID = domain.RoomID(room)
	inv.Inviter = domain.UserID(inviter)
	inv.Invitee = domain.UserID(invitee)
	inv.ExpiresAt = fromNanos(expiresAt)
	inv.CreatedAt = fromNanos(createdAt)
	inv.Accepted = accepted == 1
	inv.Declined = declined == 1
	return inv, nil
}

// AcceptInvitation marks the invitation accepted and adds the invitee as a
// participant in one transaction.
func (r *Repository) AcceptInvitation(ctx context.Context, inv domain.Invitation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "UPDATE invitations SET accepted = 1 WHERE id = ? AND accepted = 0 AND declined = 0"
	res, err := tx.ExecContext(ctx, query, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to accept invitation %s: %w", inv.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrInvitationAlreadyDecided
	}

	query = "INSERT INTO room_members (room_id, user_id, is_admin, added_at) VALUES (?, ?, 0, ?) ON CONFLICT (room_id, user_id) DO NOTHING"
	if _, err := tx.ExecContext(ctx, query, string(inv.RoomID), string(inv.Invitee), toNanos(r.now())); err != nil {
		return fmt.Errorf("failed to add participant %s: %w", inv.Invitee, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) DeclineInvitation(ctx context.Context, inv domain.Invitation) error {
	query := "UPDATE invitations SET declined = 1 WHERE id = ? AND accepted = 0 AND declined = 0"
	res, err := r.db.ExecContext(ctx, query, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to decline invitation %s: %w", inv.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrInvitationAlreadyDecided
	}
	return nil
}
