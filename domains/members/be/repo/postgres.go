package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vetflow-labs/vetflow/domains/members/be/service"
	"github.com/vetflow-labs/vetflow/platform/go/persistence"
)

// PostgresRepository implements the members repository on the shared
// persistence layer.
type PostgresRepository struct {
	members *persistence.MemberStore
	invites *persistence.InviteStore
}

// NewPostgresRepository constructs a repository backed by the member and
// invite stores.
func NewPostgresRepository(members *persistence.MemberStore, invites *persistence.InviteStore) *PostgresRepository {
	if members == nil {
		panic("member store is required")
	}
	if invites == nil {
		panic("invite store is required")
	}
	return &PostgresRepository{members: members, invites: invites}
}

func (r *PostgresRepository) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]service.Member, error) {
	recs, err := r.members.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]service.Member, 0, len(recs))
	for _, rec := range recs {
		out = append(out, service.Member{
			Email:       rec.Email,
			DisplayName: rec.DisplayName,
			AvatarURL:   rec.AvatarURL,
			Role:        rec.Role,
			JoinedAt:    rec.JoinedAt,
		})
	}
	return out, nil
}

func (r *PostgresRepository) GetRole(ctx context.Context, workspaceID uuid.UUID, email string) (string, error) {
	role, err := r.members.GetRole(ctx, workspaceID, email)
	if err != nil {
		return "", mapError(err)
	}
	return role, nil
}

func (r *PostgresRepository) Remove(ctx context.Context, workspaceID uuid.UUID, targetEmail, actingEmail string) error {
	return mapError(r.members.Remove(ctx, workspaceID, targetEmail, actingEmail))
}

func (r *PostgresRepository) CreateInvite(ctx context.Context, input service.CreateInviteInput) (service.Invite, error) {
	rec, err := r.invites.Create(ctx, persistence.CreateInviteParams{
		WorkspaceID:    input.WorkspaceID,
		Email:          input.Email,
		InvitedByEmail: input.InvitedBy,
		ExpiresInDays:  input.ExpiresInDays,
	})
	if err != nil {
		return service.Invite{}, mapError(err)
	}
	return toServiceInvite(rec), nil
}

func (r *PostgresRepository) AcceptInvite(ctx context.Context, input service.AcceptInput) (service.AcceptResult, error) {
	result, err := r.invites.Accept(ctx, persistence.AcceptInviteParams{
		Code:        input.Code,
		Email:       input.Email,
		DisplayName: input.DisplayName,
		SubjectID:   input.SubjectID,
	})
	if err != nil {
		return service.AcceptResult{}, mapError(err)
	}
	return service.AcceptResult{
		WorkspaceID: result.WorkspaceID,
		Slug:        result.Slug,
		SchemaName:  result.SchemaName,
		Role:        result.Role,
	}, nil
}

func (r *PostgresRepository) ListInvites(ctx context.Context, workspaceID uuid.UUID) ([]service.Invite, error) {
	recs, err := r.invites.ListForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]service.Invite, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceInvite(rec))
	}
	return out, nil
}

func toServiceInvite(rec persistence.InviteRecord) service.Invite {
	return service.Invite{
		ID:         rec.ID,
		Email:      rec.Email,
		InviteCode: rec.InviteCode,
		InvitedBy:  rec.InvitedByEmail,
		ExpiresAt:  rec.ExpiresAt,
		AcceptedAt: rec.AcceptedAt,
		CreatedAt:  rec.CreatedAt,
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrAlreadyMember):
		return service.ErrAlreadyMember
	case errors.Is(err, persistence.ErrEmailMismatch):
		return service.ErrEmailMismatch
	case errors.Is(err, persistence.ErrInviteExpired):
		return service.ErrInviteExpired
	case errors.Is(err, persistence.ErrNotOwner):
		return service.ErrNotOwner
	case errors.Is(err, persistence.ErrOwnerImmutable):
		return service.ErrOwnerImmutable
	case errors.Is(err, persistence.ErrEmailRequired):
		return service.ErrEmailRequired
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
