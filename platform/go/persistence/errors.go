package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced by the directory stores. Repositories translate
// these into domain errors at the service boundary.
var (
	// ErrNotFound indicates the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidSlug indicates a requested slug survived normalization empty.
	ErrInvalidSlug = errors.New("invalid slug")
	// ErrSlugConflict indicates the workspace slug is already taken.
	ErrSlugConflict = errors.New("workspace slug already exists")
	// ErrSchemaConflict indicates the generated schema name collided.
	ErrSchemaConflict = errors.New("workspace schema name already exists")
	// ErrAlreadyMember indicates the invited email already holds a membership.
	ErrAlreadyMember = errors.New("email already has a membership")
	// ErrEmailMismatch indicates the accepting email differs from the invited one.
	ErrEmailMismatch = errors.New("invite email mismatch")
	// ErrInviteExpired indicates the invite is past its expiry timestamp.
	ErrInviteExpired = errors.New("invite expired")
	// ErrNotOwner indicates the acting member lacks the owner role.
	ErrNotOwner = errors.New("acting member is not an owner")
	// ErrOwnerImmutable indicates an attempt to remove an owner membership.
	ErrOwnerImmutable = errors.New("owner membership cannot be removed")
	// ErrInviteCodeExhausted indicates code generation kept colliding.
	ErrInviteCodeExhausted = errors.New("could not allocate a unique invite code")
)

// isUniqueViolation reports whether err is a Postgres unique violation,
// optionally narrowed to a specific constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || strings.EqualFold(pgErr.ConstraintName, constraint)
}
