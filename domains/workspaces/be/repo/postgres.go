package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	"github.com/vetflow-labs/vetflow/platform/go/persistence"
)

// PostgresRepository implements the workspace repository on the shared
// persistence layer.
type PostgresRepository struct {
	store        *persistence.WorkspaceStore
	schemaPrefix string
}

// NewPostgresRepository constructs a repository backed by WorkspaceStore.
// schemaPrefix feeds schema name derivation for new workspaces.
func NewPostgresRepository(store *persistence.WorkspaceStore, schemaPrefix string) *PostgresRepository {
	if store == nil {
		panic("workspace store is required")
	}
	if schemaPrefix == "" {
		schemaPrefix = "ws"
	}
	return &PostgresRepository{store: store, schemaPrefix: schemaPrefix}
}

func (r *PostgresRepository) CreateWithOwner(ctx context.Context, input service.CreateInput) (service.Workspace, error) {
	rec, err := r.store.CreateWithOwner(ctx, persistence.CreateWorkspaceParams{
		Name:         input.Name,
		OwnerEmail:   input.OwnerEmail,
		OwnerName:    input.OwnerName,
		SlugHint:     input.SlugHint,
		Description:  input.Description,
		ThemeColor:   input.ThemeColor,
		IconURL:      input.IconURL,
		SchemaPrefix: r.schemaPrefix,
	})
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (service.Workspace, error) {
	rec, err := r.store.GetByKey(ctx, key)
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]service.Workspace, error) {
	recs, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return toServiceWorkspaces(recs), nil
}

func (r *PostgresRepository) ListForEmail(ctx context.Context, email string) ([]service.Workspace, error) {
	recs, err := r.store.ListForEmail(ctx, email)
	if err != nil {
		return nil, mapError(err)
	}
	return toServiceWorkspaces(recs), nil
}

func (r *PostgresRepository) FirstForEmail(ctx context.Context, email string) (service.Workspace, error) {
	rec, err := r.store.FirstForEmail(ctx, email)
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.Workspace, error) {
	rec, err := r.store.Update(ctx, id, persistence.UpdateWorkspaceParams{
		Name:        input.Name,
		Description: input.Description,
		ThemeColor:  input.ThemeColor,
		IconURL:     input.IconURL,
	})
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	rec, err := r.store.Delete(ctx, id)
	if err != nil {
		return service.Workspace{}, mapError(err)
	}
	return toServiceWorkspace(rec), nil
}

func (r *PostgresRepository) Stats(ctx context.Context, schemaName string) (service.Stats, error) {
	stats, err := r.store.Stats(ctx, schemaName)
	if err != nil {
		return service.Stats{}, err
	}
	return service.Stats{Files: stats.FilesCount, Appointments: stats.AppointmentsCount}, nil
}

func toServiceWorkspace(rec persistence.WorkspaceRecord) service.Workspace {
	return service.Workspace{
		ID:          rec.ID,
		Name:        rec.Name,
		Slug:        rec.Slug,
		SchemaName:  rec.SchemaName,
		Description: rec.Description,
		ThemeColor:  rec.ThemeColor,
		IconURL:     rec.IconURL,
		OwnerEmail:  rec.OwnerEmail,
		OwnerName:   rec.OwnerName,
		Role:        rec.MemberRole,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Provisioned: true,
	}
}

func toServiceWorkspaces(recs []persistence.WorkspaceRecord) []service.Workspace {
	out := make([]service.Workspace, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceWorkspace(rec))
	}
	return out
}

func mapError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrInvalidSlug):
		return service.ErrInvalidSlug
	case errors.Is(err, persistence.ErrSlugConflict):
		return service.ErrSlugConflict
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
