package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// WorkspaceRecord represents a directory row joined with its owner identity.
type WorkspaceRecord struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	SchemaName  string    `db:"schema_name"`
	Description *string   `db:"description"`
	ThemeColor  *string   `db:"theme_color"`
	IconURL     *string   `db:"icon_url"`
	OwnerID     uuid.UUID `db:"owner_id"`
	OwnerEmail  string    `db:"owner_email"`
	OwnerName   *string   `db:"owner_name"`
	// MemberRole is populated by caller-scoped listings only.
	MemberRole *string   `db:"member_role"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// WorkspaceStats carries the per-schema usage counters attached to listings.
type WorkspaceStats struct {
	FilesCount        int
	AppointmentsCount int
}

// CreateWorkspaceParams captures everything needed to insert a workspace and
// its owner membership in one transaction.
type CreateWorkspaceParams struct {
	Name         string
	OwnerEmail   string
	OwnerName    *string
	SlugHint     *string
	Description  *string
	ThemeColor   *string
	IconURL      *string
	SchemaPrefix string
}

// UpdateWorkspaceParams lists the mutable directory fields; nil leaves a
// field untouched.
type UpdateWorkspaceParams struct {
	Name        *string
	Description *string
	ThemeColor  *string
	IconURL     *string
}

const workspaceColumns = `
    w.id, w.name, w.slug, w.schema_name, w.description, w.theme_color,
    w.icon_url, w.owner_id, u.email, u.display_name, w.created_at, w.updated_at`

// WorkspaceStore provides access to the workspaces directory table.
type WorkspaceStore struct {
	db *CoreDB
}

func NewWorkspaceStore(db *CoreDB) *WorkspaceStore {
	if db == nil {
		panic("workspace store requires core db")
	}
	return &WorkspaceStore{db: db}
}

// CreateWithOwner upserts the owner identity, derives a unique slug and
// schema name, inserts the directory row, and records the owner membership,
// all inside one transaction. Uniqueness is ultimately enforced by the
// storage constraints: a losing racer gets ErrSlugConflict/ErrSchemaConflict.
func (s *WorkspaceStore) CreateWithOwner(ctx context.Context, p CreateWorkspaceParams) (WorkspaceRecord, error) {
	var rec WorkspaceRecord

	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		owner, err := ensureIdentityTx(ctx, tx, p.OwnerEmail, p.OwnerName, nil)
		if err != nil {
			return err
		}

		slug, err := resolveSlug(ctx, tx, p, owner.Email)
		if err != nil {
			return err
		}

		schemaName, err := resolveSchemaName(ctx, tx, p.SchemaPrefix, slug)
		if err != nil {
			return err
		}

		theme := p.ThemeColor
		if theme == nil || strings.TrimSpace(*theme) == "" {
			def := "#6c47ff"
			theme = &def
		}

		row := tx.QueryRow(ctx, `
            INSERT INTO workspaces (name, slug, schema_name, description, owner_id, theme_color, icon_url)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING id, name, slug, schema_name, description, theme_color, icon_url,
                owner_id, created_at, updated_at
        `, p.Name, slug, schemaName, p.Description, owner.ID, theme, p.IconURL)

		if err := row.Scan(
			&rec.ID, &rec.Name, &rec.Slug, &rec.SchemaName, &rec.Description,
			&rec.ThemeColor, &rec.IconURL, &rec.OwnerID, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return mapWorkspaceInsertError(err)
		}
		rec.OwnerEmail = owner.Email
		rec.OwnerName = owner.DisplayName

		if _, err := tx.Exec(ctx, `
            INSERT INTO workspace_members (workspace_id, user_id, role)
            VALUES ($1, $2, 'owner')
            ON CONFLICT (workspace_id, user_id) DO NOTHING
        `, rec.ID, owner.ID); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}

		return nil
	})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return rec, nil
}

// resolveSlug applies the derivation chain: explicit hint (conflict is fatal),
// otherwise name -> owner email local part -> random token, suffixed until
// unique within the current transaction's view.
func resolveSlug(ctx context.Context, tx pgx.Tx, p CreateWorkspaceParams, ownerEmail string) (string, error) {
	if p.SlugHint != nil && strings.TrimSpace(*p.SlugHint) != "" {
		slug := workspace.Slugify(*p.SlugHint)
		if slug == "" {
			return "", ErrInvalidSlug
		}
		taken, err := slugTaken(ctx, tx, slug)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrSlugConflict
		}
		return slug, nil
	}

	base := workspace.Slugify(p.Name)
	if base == "" {
		if at := strings.IndexByte(ownerEmail, '@'); at > 0 {
			base = workspace.Slugify(ownerEmail[:at])
		}
	}
	if base == "" {
		base = workspace.RandomToken(3)
	}

	slug := base
	for suffix := 2; ; suffix++ {
		taken, err := slugTaken(ctx, tx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}
}

func slugTaken(ctx context.Context, tx pgx.Tx, slug string) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, "SELECT 1 FROM workspaces WHERE slug = $1", slug).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe slug: %w", err)
	}
	return true, nil
}

// resolveSchemaName combines prefix, slug fragment, and a short random token,
// retrying on the unlikely collision.
func resolveSchemaName(ctx context.Context, tx pgx.Tx, prefix, slug string) (string, error) {
	for {
		candidate := workspace.BuildSchemaName(prefix, slug, workspace.RandomToken(2))
		var one int
		err := tx.QueryRow(ctx, "SELECT 1 FROM workspaces WHERE schema_name = $1", candidate).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe schema name: %w", err)
		}
	}
}

func mapWorkspaceInsertError(err error) error {
	switch {
	case isUniqueViolation(err, "workspaces_slug_key"):
		return ErrSlugConflict
	case isUniqueViolation(err, "workspaces_schema_name_key"):
		return ErrSchemaConflict
	default:
		return fmt.Errorf("insert workspace: %w", err)
	}
}

// GetByID fetches one workspace joined with its owner.
func (s *WorkspaceStore) GetByID(ctx context.Context, id uuid.UUID) (WorkspaceRecord, error) {
	var rec WorkspaceRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            SELECT`+workspaceColumns+`
            FROM workspaces w
            JOIN app_users u ON u.id = w.owner_id
            WHERE w.id = $1
        `, id)
		return scanWorkspace(row, &rec)
	})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return rec, nil
}

// GetByKey resolves a workspace by slug OR schema name, supporting both
// pretty and canonical addressing.
func (s *WorkspaceStore) GetByKey(ctx context.Context, key string) (WorkspaceRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return WorkspaceRecord{}, ErrNotFound
	}

	var rec WorkspaceRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            SELECT`+workspaceColumns+`
            FROM workspaces w
            JOIN app_users u ON u.id = w.owner_id
            WHERE w.slug = $1 OR w.schema_name = $1
            LIMIT 1
        `, key)
		return scanWorkspace(row, &rec)
	})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return rec, nil
}

// ListAll returns every workspace ordered by creation time ascending.
func (s *WorkspaceStore) ListAll(ctx context.Context) ([]WorkspaceRecord, error) {
	var records []WorkspaceRecord
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT`+workspaceColumns+`
            FROM workspaces w
            JOIN app_users u ON u.id = w.owner_id
            ORDER BY w.created_at ASC
        `)
		if err != nil {
			return err
		}
		defer rows.Close()
		records, err = collectWorkspaces(rows, false)
		return err
	})
	return records, err
}

// ListForEmail returns the workspaces the identity belongs to, with the
// caller's role attached, ordered by creation time ascending.
func (s *WorkspaceStore) ListForEmail(ctx context.Context, email string) ([]WorkspaceRecord, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var records []WorkspaceRecord
	err = s.db.WithCore(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT`+workspaceColumns+`, wm.role
            FROM workspace_members wm
            JOIN workspaces w ON w.id = wm.workspace_id
            JOIN app_users u ON u.id = w.owner_id
            JOIN app_users m ON m.id = wm.user_id
            WHERE m.email = $1
            ORDER BY w.created_at ASC
        `, normalized)
		if err != nil {
			return err
		}
		defer rows.Close()
		records, err = collectWorkspaces(rows, true)
		return err
	})
	return records, err
}

// FirstForEmail returns the oldest workspace the identity belongs to.
func (s *WorkspaceStore) FirstForEmail(ctx context.Context, email string) (WorkspaceRecord, error) {
	records, err := s.ListForEmail(ctx, email)
	if err != nil {
		return WorkspaceRecord{}, err
	}
	if len(records) == 0 {
		return WorkspaceRecord{}, ErrNotFound
	}
	return records[0], nil
}

// Update changes only the supplied fields and bumps updated_at.
func (s *WorkspaceStore) Update(ctx context.Context, id uuid.UUID, p UpdateWorkspaceParams) (WorkspaceRecord, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	appendSet := func(column string, value *string) {
		if value == nil {
			return
		}
		trimmed := strings.TrimSpace(*value)
		args = append(args, trimmed)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendSet("name", p.Name)
	appendSet("description", p.Description)
	appendSet("theme_color", p.ThemeColor)
	appendSet("icon_url", p.IconURL)

	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
        UPDATE workspaces
        SET %s, updated_at = NOW()
        WHERE id = $%d
        RETURNING id
    `, strings.Join(sets, ", "), len(args))

	var updatedID uuid.UUID
	err := s.db.WithCore(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, args...).Scan(&updatedID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return s.GetByID(ctx, updatedID)
}

// Delete removes the directory row; memberships and invites go with it via
// FK cascade. Returns the removed record or ErrNotFound.
func (s *WorkspaceStore) Delete(ctx context.Context, id uuid.UUID) (WorkspaceRecord, error) {
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return WorkspaceRecord{}, err
	}

	err = s.db.WithCore(ctx, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, "DELETE FROM workspaces WHERE id = $1", id)
		return execErr
	})
	if err != nil {
		return WorkspaceRecord{}, err
	}
	return rec, nil
}

// Stats counts the rows in a workspace's files and appointments tables.
// Callers treat failures as non-fatal (the schema may not be provisioned yet).
func (s *WorkspaceStore) Stats(ctx context.Context, schemaName string) (WorkspaceStats, error) {
	var stats WorkspaceStats
	err := s.db.WithSchema(ctx, schemaName, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM files").Scan(&stats.FilesCount); err != nil {
			return err
		}
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM appointments").Scan(&stats.AppointmentsCount)
	})
	if err != nil {
		return WorkspaceStats{}, err
	}
	return stats, nil
}

func scanWorkspace(row pgx.Row, rec *WorkspaceRecord) error {
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Slug, &rec.SchemaName, &rec.Description,
		&rec.ThemeColor, &rec.IconURL, &rec.OwnerID, &rec.OwnerEmail,
		&rec.OwnerName, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func collectWorkspaces(rows pgx.Rows, withRole bool) ([]WorkspaceRecord, error) {
	var records []WorkspaceRecord
	for rows.Next() {
		var rec WorkspaceRecord
		dest := []any{
			&rec.ID, &rec.Name, &rec.Slug, &rec.SchemaName, &rec.Description,
			&rec.ThemeColor, &rec.IconURL, &rec.OwnerID, &rec.OwnerEmail,
			&rec.OwnerName, &rec.CreatedAt, &rec.UpdatedAt,
		}
		if withRole {
			dest = append(dest, &rec.MemberRole)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
