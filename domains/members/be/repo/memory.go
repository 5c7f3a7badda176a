package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetflow-labs/vetflow/domains/members/be/service"
)

// MemoryRepository is an in-memory implementation for tests and early
// development. Workspaces are registered up front with their owner; invites
// follow the same live-invite-reuse and idempotent-accept rules the Postgres
// store enforces.
type MemoryRepository struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]memWorkspace
	invites    map[string]*memInvite // keyed by code
	seq        int
}

type memWorkspace struct {
	slug       string
	schemaName string
	roles      map[string]string // email -> role
	joined     map[string]time.Time
}

type memInvite struct {
	id          uuid.UUID
	workspaceID uuid.UUID
	email       string
	code        string
	invitedBy   string
	expiresAt   *time.Time
	acceptedAt  *time.Time
	createdAt   time.Time
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		workspaces: make(map[uuid.UUID]memWorkspace),
		invites:    make(map[string]*memInvite),
	}
}

// RegisterWorkspace seeds a workspace with its owner membership.
func (r *MemoryRepository) RegisterWorkspace(id uuid.UUID, slug, schemaName, ownerEmail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces[id] = memWorkspace{
		slug:       slug,
		schemaName: schemaName,
		roles:      map[string]string{normalize(ownerEmail): "owner"},
		joined:     map[string]time.Time{normalize(ownerEmail): time.Now().UTC()},
	}
}

// SetRole sets a member role directly. Test helper.
func (r *MemoryRepository) SetRole(id uuid.UUID, email, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := r.workspaces[id]
	ws.roles[normalize(email)] = role
	ws.joined[normalize(email)] = time.Now().UTC()
}

func (r *MemoryRepository) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]service.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return nil, service.ErrNotFound
	}

	members := make([]service.Member, 0, len(ws.roles))
	for email, role := range ws.roles {
		members = append(members, service.Member{
			Email:    email,
			Role:     role,
			JoinedAt: ws.joined[email],
		})
	}
	sort.Slice(members, func(i, j int) bool {
		rank := func(role string) int {
			switch role {
			case "owner":
				return 0
			case "admin":
				return 1
			default:
				return 2
			}
		}
		if rank(members[i].Role) != rank(members[j].Role) {
			return rank(members[i].Role) < rank(members[j].Role)
		}
		return members[i].Email < members[j].Email
	})
	return members, nil
}

func (r *MemoryRepository) GetRole(ctx context.Context, workspaceID uuid.UUID, email string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return "", service.ErrNotFound
	}
	role, ok := ws.roles[normalize(email)]
	if !ok {
		return "", service.ErrNotFound
	}
	return role, nil
}

func (r *MemoryRepository) Remove(ctx context.Context, workspaceID uuid.UUID, targetEmail, actingEmail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[workspaceID]
	if !ok {
		return service.ErrNotFound
	}

	actingRole, ok := ws.roles[normalize(actingEmail)]
	if !ok {
		return service.ErrNotFound
	}
	if actingRole != "owner" {
		return service.ErrNotOwner
	}

	target := normalize(targetEmail)
	targetRole, ok := ws.roles[target]
	if !ok {
		return service.ErrNotFound
	}
	if targetRole == "owner" {
		return service.ErrOwnerImmutable
	}

	delete(ws.roles, target)
	delete(ws.joined, target)
	return nil
}

func (r *MemoryRepository) CreateInvite(ctx context.Context, input service.CreateInviteInput) (service.Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[input.WorkspaceID]
	if !ok {
		return service.Invite{}, service.ErrNotFound
	}

	email := normalize(input.Email)
	if email == "" {
		return service.Invite{}, service.ErrEmailRequired
	}
	if _, member := ws.roles[email]; member {
		return service.Invite{}, service.ErrAlreadyMember
	}

	now := time.Now().UTC()
	for _, inv := range r.invites {
		if inv.workspaceID == input.WorkspaceID && inv.email == email && inv.acceptedAt == nil &&
			(inv.expiresAt == nil || inv.expiresAt.After(now)) {
			return toServiceMemInvite(inv), nil
		}
	}

	r.seq++
	inv := &memInvite{
		id:          uuid.New(),
		workspaceID: input.WorkspaceID,
		email:       email,
		code:        fmt.Sprintf("code-%04d", r.seq),
		invitedBy:   normalize(input.InvitedBy),
		createdAt:   now,
	}
	if input.ExpiresInDays > 0 {
		t := now.Add(time.Duration(input.ExpiresInDays) * 24 * time.Hour)
		inv.expiresAt = &t
	}
	r.invites[inv.code] = inv
	return toServiceMemInvite(inv), nil
}

// ExpireInvite backdates an invite. Test helper.
func (r *MemoryRepository) ExpireInvite(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.invites[code]; ok {
		past := time.Now().UTC().Add(-time.Hour)
		inv.expiresAt = &past
	}
}

func (r *MemoryRepository) AcceptInvite(ctx context.Context, input service.AcceptInput) (service.AcceptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invites[strings.TrimSpace(input.Code)]
	if !ok {
		return service.AcceptResult{}, service.ErrNotFound
	}
	if inv.email != normalize(input.Email) {
		return service.AcceptResult{}, service.ErrEmailMismatch
	}
	if inv.expiresAt != nil && inv.expiresAt.Before(time.Now().UTC()) {
		return service.AcceptResult{}, service.ErrInviteExpired
	}

	ws := r.workspaces[inv.workspaceID]
	if _, member := ws.roles[inv.email]; !member {
		ws.roles[inv.email] = "member"
		ws.joined[inv.email] = time.Now().UTC()
	}
	if inv.acceptedAt == nil {
		now := time.Now().UTC()
		inv.acceptedAt = &now
	}

	return service.AcceptResult{
		WorkspaceID: inv.workspaceID,
		Slug:        ws.slug,
		SchemaName:  ws.schemaName,
		Role:        "member",
	}, nil
}

func (r *MemoryRepository) ListInvites(ctx context.Context, workspaceID uuid.UUID) ([]service.Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.Invite
	for _, inv := range r.invites {
		if inv.workspaceID == workspaceID {
			out = append(out, toServiceMemInvite(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func toServiceMemInvite(inv *memInvite) service.Invite {
	out := service.Invite{
		ID:         inv.id,
		Email:      inv.email,
		InviteCode: inv.code,
		ExpiresAt:  inv.expiresAt,
		AcceptedAt: inv.acceptedAt,
		CreatedAt:  inv.createdAt,
	}
	if inv.invitedBy != "" {
		out.InvitedBy = &inv.invitedBy
	}
	return out
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
