package persistence

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// inviteCodeAttempts bounds the unique-code generation loop.
const inviteCodeAttempts = 5

// InviteRecord is one row of workspace_invites. InvitedByEmail resolves the
// invited_by identity reference when the inviter is known.
type InviteRecord struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	Email          string
	InviteCode     string
	InvitedBy      *uuid.UUID
	InvitedByEmail *string
	ExpiresAt      *time.Time
	AcceptedAt     *time.Time
	CreatedAt      time.Time
}

// CreateInviteParams describes one invitation. ExpiresInDays == 0 means the
// invite never expires.
type CreateInviteParams struct {
	WorkspaceID    uuid.UUID
	Email          string
	InvitedByEmail string
	ExpiresInDays  int
}

// AcceptInviteParams identifies the caller redeeming a code.
type AcceptInviteParams struct {
	Code        string
	Email       string
	DisplayName *string
	SubjectID   *string
}

// AcceptResult reports where the accepted invite points.
type AcceptResult struct {
	WorkspaceID uuid.UUID
	Slug        string
	SchemaName  string
	Role        string
}

// InviteStore provides access to workspace_invites in the core schema.
type InviteStore struct {
	db *CoreDB
}

func NewInviteStore(db *CoreDB) *InviteStore {
	if db == nil {
		panic("invite store requires core db")
	}
	return &InviteStore{db: db}
}

// Create issues an invitation. Existing members get ErrAlreadyMember; a live
// pending invite for the same address is returned as-is instead of minting a
// duplicate.
func (s *InviteStore) Create(ctx context.Context, p CreateInviteParams) (InviteRecord, error) {
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return InviteRecord{}, err
	}

	var rec InviteRecord
	err = s.db.WithCore(ctx, func(tx pgx.Tx) error {
		var one int
		memberErr := tx.QueryRow(ctx, `
            SELECT 1
            FROM workspace_members wm
            JOIN app_users u ON u.id = wm.user_id
            WHERE wm.workspace_id = $1 AND u.email = $2
        `, p.WorkspaceID, email).Scan(&one)
		if memberErr == nil {
			return ErrAlreadyMember
		}
		if !errors.Is(memberErr, pgx.ErrNoRows) {
			return memberErr
		}

		existing, findErr := liveInviteTx(ctx, tx, p.WorkspaceID, email)
		if findErr == nil {
			rec = existing
			return nil
		}
		if !errors.Is(findErr, ErrNotFound) {
			return findErr
		}

		var invitedBy *uuid.UUID
		var invitedByEmail *string
		if inviterEmail, normErr := NormalizeEmail(p.InvitedByEmail); normErr == nil {
			inviter, idErr := ensureIdentityTx(ctx, tx, inviterEmail, nil, nil)
			if idErr != nil {
				return idErr
			}
			invitedBy = &inviter.ID
			invitedByEmail = &inviterEmail
		}

		var expiresAt *time.Time
		if p.ExpiresInDays > 0 {
			t := time.Now().UTC().Add(time.Duration(p.ExpiresInDays) * 24 * time.Hour)
			expiresAt = &t
		}

		for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
			code := newInviteCode()
			row := tx.QueryRow(ctx, `
                INSERT INTO workspace_invites (workspace_id, email, invite_code, invited_by, expires_at)
                VALUES ($1, $2, $3, $4, $5)
                ON CONFLICT (invite_code) DO NOTHING
                RETURNING id, workspace_id, email, invite_code, invited_by,
                    expires_at, accepted_at, created_at
            `, p.WorkspaceID, email, code, invitedBy, expiresAt)

			scanErr := row.Scan(
				&rec.ID, &rec.WorkspaceID, &rec.Email, &rec.InviteCode,
				&rec.InvitedBy, &rec.ExpiresAt, &rec.AcceptedAt, &rec.CreatedAt,
			)
			if scanErr == nil {
				rec.InvitedByEmail = invitedByEmail
				return nil
			}
			if !errors.Is(scanErr, pgx.ErrNoRows) {
				return fmt.Errorf("insert invite: %w", scanErr)
			}
			// Code collision: DO NOTHING swallowed the row. Try a fresh one.
		}
		return ErrInviteCodeExhausted
	})
	if err != nil {
		return InviteRecord{}, err
	}
	return rec, nil
}

// liveInviteTx finds a pending, unexpired invite for the address.
func liveInviteTx(ctx context.Context, tx pgx.Tx, workspaceID uuid.UUID, email string) (InviteRecord, error) {
	var rec InviteRecord
	err := tx.QueryRow(ctx, `
        SELECT i.id, i.workspace_id, i.email, i.invite_code, i.invited_by,
            inviter.email, i.expires_at, i.accepted_at, i.created_at
        FROM workspace_invites i
        LEFT JOIN app_users inviter ON inviter.id = i.invited_by
        WHERE i.workspace_id = $1 AND i.email = $2 AND i.accepted_at IS NULL
            AND (i.expires_at IS NULL OR i.expires_at > NOW())
        ORDER BY i.created_at DESC
        LIMIT 1
    `, workspaceID, email).Scan(
		&rec.ID, &rec.WorkspaceID, &rec.Email, &rec.InviteCode,
		&rec.InvitedBy, &rec.InvitedByEmail, &rec.ExpiresAt, &rec.AcceptedAt, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return InviteRecord{}, ErrNotFound
	}
	if err != nil {
		return InviteRecord{}, err
	}
	return rec, nil
}

// Accept redeems a code for the caller. The checks run in order: unknown
// code, address mismatch, expiry. Accepting twice is safe: the membership
// insert is idempotent and accepted_at keeps its first value.
func (s *InviteStore) Accept(ctx context.Context, p AcceptInviteParams) (AcceptResult, error) {
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return AcceptResult{}, err
	}

	var result AcceptResult
	err = s.db.WithCore(ctx, func(tx pgx.Tx) error {
		var (
			inviteID    uuid.UUID
			inviteEmail string
			expiresAt   *time.Time
		)
		scanErr := tx.QueryRow(ctx, `
            SELECT i.id, i.email, i.expires_at, w.id, w.slug, w.schema_name
            FROM workspace_invites i
            JOIN workspaces w ON w.id = i.workspace_id
            WHERE i.invite_code = $1
        `, p.Code).Scan(&inviteID, &inviteEmail, &expiresAt, &result.WorkspaceID, &result.Slug, &result.SchemaName)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if scanErr != nil {
			return scanErr
		}

		if inviteEmail != email {
			return ErrEmailMismatch
		}
		if expiresAt != nil && expiresAt.Before(time.Now().UTC()) {
			return ErrInviteExpired
		}

		identity, idErr := ensureIdentityTx(ctx, tx, email, p.DisplayName, p.SubjectID)
		if idErr != nil {
			return idErr
		}

		if _, execErr := tx.Exec(ctx, `
            INSERT INTO workspace_members (workspace_id, user_id, role)
            VALUES ($1, $2, 'member')
            ON CONFLICT (workspace_id, user_id) DO NOTHING
        `, result.WorkspaceID, identity.ID); execErr != nil {
			return fmt.Errorf("insert membership: %w", execErr)
		}

		if _, execErr := tx.Exec(ctx, `
            UPDATE workspace_invites
            SET accepted_at = COALESCE(accepted_at, $2)
            WHERE id = $1
        `, inviteID, time.Now().UTC()); execErr != nil {
			return fmt.Errorf("stamp invite: %w", execErr)
		}

		result.Role = "member"
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return result, nil
}

// ListForWorkspace returns the workspace's invites newest first.
func (s *InviteStore) ListForWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]InviteRecord, error) {
	var records []InviteRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT i.id, i.workspace_id, i.email, i.invite_code, i.invited_by,
                inviter.email, i.expires_at, i.accepted_at, i.created_at
            FROM workspace_invites i
            LEFT JOIN app_users inviter ON inviter.id = i.invited_by
            WHERE i.workspace_id = $1
            ORDER BY i.created_at DESC
        `, workspaceID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rec InviteRecord
			if err := rows.Scan(
				&rec.ID, &rec.WorkspaceID, &rec.Email, &rec.InviteCode,
				&rec.InvitedBy, &rec.InvitedByEmail, &rec.ExpiresAt, &rec.AcceptedAt, &rec.CreatedAt,
			); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// newInviteCode returns a short URL-safe code, 8 characters from 6 random
// bytes.
func newInviteCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
