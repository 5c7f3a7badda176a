package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdentityRecord represents a row in the app_users table. Identities are
// keyed by normalized email and shared across workspaces.
type IdentityRecord struct {
	ID          uuid.UUID  `db:"id"`
	Email       string     `db:"email"`
	DisplayName *string    `db:"display_name"`
	SubjectID   *string    `db:"subject_id"`
	AvatarURL   *string    `db:"avatar_url"`
	CreatedAt   time.Time  `db:"created_at"`
}

// ErrEmailRequired indicates an identity operation received an empty email.
var ErrEmailRequired = errors.New("email is required")

// NormalizeEmail lowercases and trims the address. Two identities are the
// same iff their normalized emails match.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrEmailRequired
	}
	return email, nil
}

// IdentityStore upserts and reads identity rows in the directory schema.
type IdentityStore struct {
	db *CoreDB
}

func NewIdentityStore(db *CoreDB) *IdentityStore {
	if db == nil {
		panic("identity store requires core db")
	}
	return &IdentityStore{db: db}
}

// Ensure upserts the identity for email (create on first sight). Display name
// and subject id only overwrite NULLs already stored, never clobber.
func (s *IdentityStore) Ensure(ctx context.Context, email string, displayName, subjectID *string) (IdentityRecord, error) {
	var rec IdentityRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		var txErr error
		rec, txErr = ensureIdentityTx(ctx, tx, email, displayName, subjectID)
		return txErr
	})
	return rec, err
}

// ensureIdentityTx is the transactional upsert shared by every operation that
// needs an identity mid-flight (workspace creation, invite acceptance).
func ensureIdentityTx(ctx context.Context, tx pgx.Tx, email string, displayName, subjectID *string) (IdentityRecord, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return IdentityRecord{}, err
	}

	row := tx.QueryRow(ctx, `
        INSERT INTO app_users (email, display_name, subject_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (email) DO UPDATE
        SET
            display_name = COALESCE(EXCLUDED.display_name, app_users.display_name),
            subject_id = COALESCE(EXCLUDED.subject_id, app_users.subject_id)
        RETURNING id, email, display_name, subject_id, avatar_url, created_at
    `, normalized, displayName, subjectID)

	var rec IdentityRecord
	if err := row.Scan(&rec.ID, &rec.Email, &rec.DisplayName, &rec.SubjectID, &rec.AvatarURL, &rec.CreatedAt); err != nil {
		return IdentityRecord{}, err
	}
	return rec, nil
}
