package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/platform/go/webhook"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyMember  = errors.New("identity is already a member")
	ErrEmailMismatch  = errors.New("invite was issued for a different address")
	ErrInviteExpired  = errors.New("invite has expired")
	ErrNotOwner       = errors.New("only the workspace owner may remove members")
	ErrNotPrivileged  = errors.New("owner or admin role required")
	ErrOwnerImmutable = errors.New("the owner membership cannot be removed")
	ErrEmailRequired  = errors.New("email is required")
)

// Member is one row of a workspace roster.
type Member struct {
	Email       string
	DisplayName *string
	AvatarURL   *string
	Role        string
	JoinedAt    time.Time
}

// Invite is a pending or redeemed invitation.
type Invite struct {
	ID         uuid.UUID
	Email      string
	InviteCode string
	InvitedBy  *string
	ExpiresAt  *time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// CreateInviteInput describes one invitation request. InvitedBy is filled by
// the service from the authorized caller.
type CreateInviteInput struct {
	WorkspaceID uuid.UUID
	Email       string
	InvitedBy   string
	// ExpiresInDays == 0 means the invite never expires.
	ExpiresInDays int
}

// AcceptInput identifies the caller redeeming a code.
type AcceptInput struct {
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

// Repository abstracts membership and invite persistence.
type Repository interface {
	ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]Member, error)
	GetRole(ctx context.Context, workspaceID uuid.UUID, email string) (string, error)
	Remove(ctx context.Context, workspaceID uuid.UUID, targetEmail, actingEmail string) error
	CreateInvite(ctx context.Context, input CreateInviteInput) (Invite, error)
	AcceptInvite(ctx context.Context, input AcceptInput) (AcceptResult, error)
	ListInvites(ctx context.Context, workspaceID uuid.UUID) ([]Invite, error)
}

// Service provides roster and invitation operations.
type Service struct {
	repo     Repository
	notifier *webhook.Notifier
	logger   *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, notifier *webhook.Notifier, logger *zap.Logger) *Service {
	if repo == nil {
		panic("members repo is required")
	}
	if notifier == nil {
		panic("webhook notifier is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// ListMembers returns the roster, owner first.
func (s *Service) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]Member, error) {
	return s.repo.ListMembers(ctx, workspaceID)
}

// GetRole returns the identity's role, or ErrNotFound for non-members.
func (s *Service) GetRole(ctx context.Context, workspaceID uuid.UUID, email string) (string, error) {
	return s.repo.GetRole(ctx, workspaceID, email)
}

// RoleInSpace adapts GetRole to the middleware's space-based signature.
func (s *Service) RoleInSpace(ctx context.Context, space workspace.Space, email string) (string, error) {
	return s.repo.GetRole(ctx, space.WorkspaceID, email)
}

// Invite issues an invitation. Only owners and admins may invite. Inviting a
// current member fails; re-inviting an address with a live pending invite
// returns that invite unchanged.
func (s *Service) Invite(ctx context.Context, actingEmail string, input CreateInviteInput) (Invite, error) {
	if strings.TrimSpace(input.Email) == "" {
		return Invite{}, ErrEmailRequired
	}

	role, err := s.repo.GetRole(ctx, input.WorkspaceID, actingEmail)
	if err != nil {
		return Invite{}, err
	}
	if role != "owner" && role != "admin" {
		return Invite{}, ErrNotPrivileged
	}

	input.InvitedBy = actingEmail
	invite, err := s.repo.CreateInvite(ctx, input)
	if err != nil {
		return Invite{}, err
	}

	s.notifier.Notify("invite.created", map[string]interface{}{
		"workspace_id": input.WorkspaceID.String(),
		"email":        invite.Email,
		"invite_code":  invite.InviteCode,
	})

	return invite, nil
}

// Accept redeems an invite code for the authenticated caller. Accepting the
// same invite twice is harmless.
func (s *Service) Accept(ctx context.Context, input AcceptInput) (AcceptResult, error) {
	input.Code = strings.TrimSpace(input.Code)
	if input.Code == "" {
		return AcceptResult{}, ErrNotFound
	}

	result, err := s.repo.AcceptInvite(ctx, input)
	if err != nil {
		return AcceptResult{}, err
	}

	s.notifier.Notify("invite.accepted", map[string]interface{}{
		"workspace_id":   result.WorkspaceID.String(),
		"workspace_slug": result.Slug,
		"email":          strings.ToLower(strings.TrimSpace(input.Email)),
	})

	return result, nil
}

// Remove deletes a membership. Only the owner may remove, and the owner
// membership itself is immutable.
func (s *Service) Remove(ctx context.Context, workspaceID uuid.UUID, targetEmail, actingEmail string) error {
	if err := s.repo.Remove(ctx, workspaceID, targetEmail, actingEmail); err != nil {
		return err
	}

	s.notifier.Notify("member.removed", map[string]interface{}{
		"workspace_id": workspaceID.String(),
		"email":        strings.ToLower(strings.TrimSpace(targetEmail)),
	})
	return nil
}

// ListInvites returns the workspace's invites, newest first.
func (s *Service) ListInvites(ctx context.Context, workspaceID uuid.UUID) ([]Invite, error) {
	return s.repo.ListInvites(ctx, workspaceID)
}
