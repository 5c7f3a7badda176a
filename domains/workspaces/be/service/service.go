package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/platform/go/webhook"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("workspace not found")
	ErrInvalidSlug        = errors.New("supplied slug has no usable characters")
	ErrSlugConflict       = errors.New("workspace slug already exists")
	ErrNameRequired       = errors.New("workspace name is required")
	ErrProvisioningFailed = errors.New("workspace schema provisioning failed")
	ErrNotOwner           = errors.New("only the workspace owner may do this")
	ErrSchemaGuard        = errors.New("schema name outside the managed prefix")
)

// Workspace is the domain model for one practice workspace.
type Workspace struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	SchemaName  string
	Description *string
	ThemeColor  *string
	IconURL     *string
	OwnerEmail  string
	OwnerName   *string
	// Role is the caller's membership role; set on caller-scoped reads only.
	Role      *string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Stats is attached best-effort; nil when counting was skipped or failed.
	Stats *Stats
	// Provisioned is false when the directory row exists but the schema
	// could not be prepared.
	Provisioned bool
}

// Stats carries usage counters from the workspace schema.
type Stats struct {
	Files        int
	Appointments int
}

// CreateInput represents the request to create a workspace.
type CreateInput struct {
	Name        string
	OwnerEmail  string
	OwnerName   *string
	SlugHint    *string
	Description *string
	ThemeColor  *string
	IconURL     *string
}

// UpdateInput lists mutable fields; nil leaves a field alone.
type UpdateInput struct {
	Name        *string
	Description *string
	ThemeColor  *string
	IconURL     *string
}

// Repository abstracts the workspace directory.
type Repository interface {
	CreateWithOwner(ctx context.Context, input CreateInput) (Workspace, error)
	GetByID(ctx context.Context, id uuid.UUID) (Workspace, error)
	GetByKey(ctx context.Context, key string) (Workspace, error)
	ListAll(ctx context.Context) ([]Workspace, error)
	ListForEmail(ctx context.Context, email string) ([]Workspace, error)
	FirstForEmail(ctx context.Context, email string) (Workspace, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Workspace, error)
	Delete(ctx context.Context, id uuid.UUID) (Workspace, error)
	Stats(ctx context.Context, schemaName string) (Stats, error)
}

// Provisioner prepares and removes per-workspace schemas.
type Provisioner interface {
	EnsureWorkspaceSchema(ctx context.Context, schemaName string) error
	DropWorkspaceSchema(ctx context.Context, schemaName string) error
}

// Config carries the service knobs.
type Config struct {
	// SchemaPrefix guards destructive DDL: only schemas under it are ever
	// dropped.
	SchemaPrefix string
	// AutoCreateDefault creates a personal workspace for identities that
	// have none.
	AutoCreateDefault bool
}

// Service provides workspace directory and lifecycle operations.
type Service struct {
	repo     Repository
	prov     Provisioner
	notifier *webhook.Notifier
	logger   *zap.Logger
	cfg      Config
}

// New constructs a Service with required dependencies.
func New(repo Repository, prov Provisioner, notifier *webhook.Notifier, logger *zap.Logger, cfg Config) *Service {
	if repo == nil {
		panic("workspaces repo is required")
	}
	if prov == nil {
		panic("workspaces provisioner is required")
	}
	if notifier == nil {
		panic("webhook notifier is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.SchemaPrefix == "" {
		cfg.SchemaPrefix = "ws"
	}
	return &Service{repo: repo, prov: prov, notifier: notifier, logger: logger, cfg: cfg}
}

// Create inserts the directory entry and then provisions its schema. The
// directory commit and the DDL are deliberately separate transactions: a
// provisioning failure leaves the workspace registered and is reported as
// ErrProvisioningFailed alongside the created record, so a later retry can
// finish the job without re-deriving names.
func (s *Service) Create(ctx context.Context, input CreateInput) (Workspace, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Workspace{}, ErrNameRequired
	}

	ws, err := s.repo.CreateWithOwner(ctx, input)
	if err != nil {
		return Workspace{}, err
	}
	ws.Provisioned = true

	if err := s.prov.EnsureWorkspaceSchema(ctx, ws.SchemaName); err != nil {
		s.logger.Error("workspace schema provisioning failed",
			zap.String("workspace_slug", ws.Slug),
			zap.String("schema_name", ws.SchemaName),
			zap.Error(err))
		ws.Provisioned = false
		return ws, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	s.notifier.Notify("workspace.created", map[string]interface{}{
		"workspace_id":   ws.ID.String(),
		"workspace_slug": ws.Slug,
		"owner_email":    ws.OwnerEmail,
	})

	return ws, nil
}

// Reprovision re-applies the schema assets for an existing workspace.
func (s *Service) Reprovision(ctx context.Context, id uuid.UUID) (Workspace, error) {
	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Workspace{}, err
	}
	if err := s.prov.EnsureWorkspaceSchema(ctx, ws.SchemaName); err != nil {
		return ws, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	ws.Provisioned = true
	return ws, nil
}

// Get returns a workspace by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Workspace, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByKey resolves a workspace by slug or schema name.
func (s *Service) GetByKey(ctx context.Context, key string) (Workspace, error) {
	return s.repo.GetByKey(ctx, key)
}

// ListForIdentity returns the caller's workspaces, oldest first, with usage
// stats attached where counting succeeds.
func (s *Service) ListForIdentity(ctx context.Context, email string, withStats bool) ([]Workspace, error) {
	list, err := s.repo.ListForEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if withStats {
		s.attachStats(ctx, list)
	}
	return list, nil
}

// ListAll returns every workspace. Service-to-service use only.
func (s *Service) ListAll(ctx context.Context, withStats bool) ([]Workspace, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if withStats {
		s.attachStats(ctx, list)
	}
	return list, nil
}

func (s *Service) attachStats(ctx context.Context, list []Workspace) {
	for i := range list {
		stats, err := s.repo.Stats(ctx, list[i].SchemaName)
		if err != nil {
			// Counting is decoration; an unprovisioned schema must not
			// break the listing.
			s.logger.Debug("workspace stats unavailable",
				zap.String("schema_name", list[i].SchemaName),
				zap.Error(err))
			continue
		}
		stat := stats
		list[i].Stats = &stat
	}
}

// Update modifies the mutable directory fields. Only the owner may update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, actingEmail string, input UpdateInput) (Workspace, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Workspace{}, err
	}
	if !strings.EqualFold(current.OwnerEmail, strings.TrimSpace(actingEmail)) {
		return Workspace{}, ErrNotOwner
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return Workspace{}, ErrNameRequired
	}
	return s.repo.Update(ctx, id, input)
}

// Delete removes the workspace directory entry and, when dropSchema is set,
// its schema. The schema prefix guard keeps a corrupted directory row from
// ever dropping shared schemas. A failed drop is logged, not surfaced: the
// directory delete already happened and the orphan schema is harmless.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actingEmail string, dropSchema bool) (Workspace, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Workspace{}, err
	}
	if !strings.EqualFold(current.OwnerEmail, strings.TrimSpace(actingEmail)) {
		return Workspace{}, ErrNotOwner
	}

	if dropSchema && !workspace.HasSchemaPrefix(current.SchemaName, s.cfg.SchemaPrefix) {
		return Workspace{}, ErrSchemaGuard
	}

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return Workspace{}, err
	}

	if dropSchema {
		if err := s.prov.DropWorkspaceSchema(ctx, removed.SchemaName); err != nil {
			s.logger.Error("workspace schema drop failed",
				zap.String("schema_name", removed.SchemaName),
				zap.Error(err))
		}
	}

	s.notifier.Notify("workspace.deleted", map[string]interface{}{
		"workspace_id":   removed.ID.String(),
		"workspace_slug": removed.Slug,
	})

	return removed, nil
}

// EnsureDefaultForIdentity returns the identity's oldest workspace, creating
// a personal one first when auto-creation is enabled and none exists.
func (s *Service) EnsureDefaultForIdentity(ctx context.Context, email string, displayName *string) (Workspace, error) {
	ws, err := s.repo.FirstForEmail(ctx, email)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Workspace{}, err
	}
	if !s.cfg.AutoCreateDefault {
		return Workspace{}, ErrNotFound
	}

	name := defaultWorkspaceName(email, displayName)
	return s.Create(ctx, CreateInput{
		Name:       name,
		OwnerEmail: email,
		OwnerName:  displayName,
	})
}

func defaultWorkspaceName(email string, displayName *string) string {
	if displayName != nil && strings.TrimSpace(*displayName) != "" {
		return strings.TrimSpace(*displayName)
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return "My Practice"
}

// ResolveSpace returns the lightweight workspace handle middleware binds to
// the request context.
func (s *Service) ResolveSpace(ctx context.Context, key string) (workspace.Space, error) {
	ws, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return workspace.Space{}, err
	}
	return workspace.Space{
		WorkspaceID: ws.ID,
		Slug:        ws.Slug,
		SchemaName:  ws.SchemaName,
	}, nil
}
