package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// MemoryRepository is a simple in-memory implementation suitable for tests
// and early development. It reproduces the slug and schema name derivation
// the Postgres store performs.
type MemoryRepository struct {
	mu           sync.RWMutex
	byID         map[uuid.UUID]service.Workspace
	bySlug       map[string]uuid.UUID
	members      map[uuid.UUID][]string // workspace id -> member emails, index 0 is the owner
	stats        map[string]service.Stats
	schemaPrefix string
	seq          int
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository(schemaPrefix string) *MemoryRepository {
	if schemaPrefix == "" {
		schemaPrefix = "ws"
	}
	return &MemoryRepository{
		byID:         make(map[uuid.UUID]service.Workspace),
		bySlug:       make(map[string]uuid.UUID),
		members:      make(map[uuid.UUID][]string),
		stats:        make(map[string]service.Stats),
		schemaPrefix: schemaPrefix,
	}
}

// SetStats seeds the counters Stats reports for a schema.
func (r *MemoryRepository) SetStats(schemaName string, stats service.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[schemaName] = stats
}

func (r *MemoryRepository) CreateWithOwner(ctx context.Context, input service.CreateInput) (service.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(input.OwnerEmail))

	var slug string
	if input.SlugHint != nil && strings.TrimSpace(*input.SlugHint) != "" {
		slug = workspace.Slugify(*input.SlugHint)
		if slug == "" {
			return service.Workspace{}, service.ErrInvalidSlug
		}
		if _, taken := r.bySlug[slug]; taken {
			return service.Workspace{}, service.ErrSlugConflict
		}
	} else {
		base := workspace.Slugify(input.Name)
		if base == "" {
			if at := strings.IndexByte(email, '@'); at > 0 {
				base = workspace.Slugify(email[:at])
			}
		}
		if base == "" {
			base = workspace.RandomToken(3)
		}
		slug = base
		for suffix := 2; ; suffix++ {
			if _, taken := r.bySlug[slug]; !taken {
				break
			}
			slug = fmt.Sprintf("%s-%d", base, suffix)
		}
	}

	r.seq++
	now := time.Now().UTC()
	ws := service.Workspace{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        slug,
		SchemaName:  workspace.BuildSchemaName(r.schemaPrefix, slug, fmt.Sprintf("%04x", r.seq)),
		Description: input.Description,
		ThemeColor:  input.ThemeColor,
		IconURL:     input.IconURL,
		OwnerEmail:  email,
		OwnerName:   input.OwnerName,
		CreatedAt:   now,
		UpdatedAt:   now,
		Provisioned: true,
	}

	r.byID[ws.ID] = ws
	r.bySlug[ws.Slug] = ws.ID
	r.members[ws.ID] = []string{email}
	return ws, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.byID[id]
	if !ok {
		return service.Workspace{}, service.ErrNotFound
	}
	return ws, nil
}

func (r *MemoryRepository) GetByKey(ctx context.Context, key string) (service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.bySlug[key]; ok {
		return r.byID[id], nil
	}
	for _, ws := range r.byID {
		if ws.SchemaName == key {
			return ws, nil
		}
	}
	return service.Workspace{}, service.ErrNotFound
}

func (r *MemoryRepository) ListAll(ctx context.Context) ([]service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Workspace, 0, len(r.byID))
	for _, ws := range r.byID {
		items = append(items, ws)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) ListForEmail(ctx context.Context, email string) ([]service.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	var items []service.Workspace
	for id, emails := range r.members {
		for i, member := range emails {
			if member != email {
				continue
			}
			ws := r.byID[id]
			role := "member"
			if i == 0 {
				role = "owner"
			}
			ws.Role = &role
			items = append(items, ws)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) FirstForEmail(ctx context.Context, email string) (service.Workspace, error) {
	items, err := r.ListForEmail(ctx, email)
	if err != nil {
		return service.Workspace{}, err
	}
	if len(items) == 0 {
		return service.Workspace{}, service.ErrNotFound
	}
	return items[0], nil
}

func (r *MemoryRepository) Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.byID[id]
	if !ok {
		return service.Workspace{}, service.ErrNotFound
	}

	if input.Name != nil {
		ws.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		ws.Description = input.Description
	}
	if input.ThemeColor != nil {
		ws.ThemeColor = input.ThemeColor
	}
	if input.IconURL != nil {
		ws.IconURL = input.IconURL
	}
	ws.UpdatedAt = time.Now().UTC()

	r.byID[id] = ws
	return ws, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) (service.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.byID[id]
	if !ok {
		return service.Workspace{}, service.ErrNotFound
	}

	delete(r.byID, id)
	delete(r.bySlug, ws.Slug)
	delete(r.members, id)
	return ws, nil
}

func (r *MemoryRepository) Stats(ctx context.Context, schemaName string) (service.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[schemaName]
	if !ok {
		return service.Stats{}, fmt.Errorf("schema %q not provisioned", schemaName)
	}
	return stats, nil
}

// AddMember registers an extra member email. Test helper.
func (r *MemoryRepository) AddMember(id uuid.UUID, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = append(r.members[id], strings.ToLower(strings.TrimSpace(email)))
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
