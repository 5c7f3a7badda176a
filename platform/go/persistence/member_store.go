package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MemberRecord is a workspace membership joined with the identity it points
// at.
type MemberRecord struct {
	UserID      uuid.UUID
	Email       string
	DisplayName *string
	AvatarURL   *string
	Role        string
	JoinedAt    time.Time
}

// MemberStore provides access to workspace_members in the core schema.
type MemberStore struct {
	db *CoreDB
}

func NewMemberStore(db *CoreDB) *MemberStore {
	if db == nil {
		panic("member store requires core db")
	}
	return &MemberStore{db: db}
}

// ListMembers returns the roster ordered owner first, then admins, then the
// rest alphabetically by email.
func (s *MemberStore) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]MemberRecord, error) {
	var members []MemberRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT u.id, u.email, u.display_name, u.avatar_url, wm.role, wm.joined_at
            FROM workspace_members wm
            JOIN app_users u ON u.id = wm.user_id
            WHERE wm.workspace_id = $1
            ORDER BY wm.role = 'owner' DESC, wm.role = 'admin' DESC, u.email ASC
        `, workspaceID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m MemberRecord
			if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.AvatarURL, &m.Role, &m.JoinedAt); err != nil {
				return err
			}
			members = append(members, m)
		}
		return rows.Err()
	})
	return members, err
}

// GetRole returns the identity's role in the workspace, or ErrNotFound when
// the identity does not belong to it.
func (s *MemberStore) GetRole(ctx context.Context, workspaceID uuid.UUID, email string) (string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}

	var role string
	err = s.db.WithCore(ctx, func(tx pgx.Tx) error {
		scanErr := tx.QueryRow(ctx, `
            SELECT wm.role
            FROM workspace_members wm
            JOIN app_users u ON u.id = wm.user_id
            WHERE wm.workspace_id = $1 AND u.email = $2
        `, workspaceID, normalized).Scan(&role)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return scanErr
	})
	if err != nil {
		return "", err
	}
	return role, nil
}

// Remove deletes a membership. Only the owner may remove members, and the
// owner membership itself is immutable. Both checks happen inside the same
// transaction as the delete.
func (s *MemberStore) Remove(ctx context.Context, workspaceID uuid.UUID, targetEmail, actingEmail string) error {
	target, err := NormalizeEmail(targetEmail)
	if err != nil {
		return err
	}
	acting, err := NormalizeEmail(actingEmail)
	if err != nil {
		return err
	}

	return s.db.WithCore(ctx, func(tx pgx.Tx) error {
		actingRole, err := roleTx(ctx, tx, workspaceID, acting)
		if err != nil {
			return err
		}
		if actingRole != "owner" {
			return ErrNotOwner
		}

		targetRole, err := roleTx(ctx, tx, workspaceID, target)
		if err != nil {
			return err
		}
		if targetRole == "owner" {
			return ErrOwnerImmutable
		}

		_, err = tx.Exec(ctx, `
            DELETE FROM workspace_members wm
            USING app_users u
            WHERE wm.workspace_id = $1 AND wm.user_id = u.id AND u.email = $2
        `, workspaceID, target)
		if err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		return nil
	})
}

func roleTx(ctx context.Context, tx pgx.Tx, workspaceID uuid.UUID, email string) (string, error) {
	var role string
	err := tx.QueryRow(ctx, `
        SELECT wm.role
        FROM workspace_members wm
        JOIN app_users u ON u.id = wm.user_id
        WHERE wm.workspace_id = $1 AND u.email = $2
    `, workspaceID, email).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return role, nil
}
