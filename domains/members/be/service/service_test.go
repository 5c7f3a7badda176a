package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/members/be/repo"
	"github.com/vetflow-labs/vetflow/domains/members/be/service"
	"github.com/vetflow-labs/vetflow/platform/go/webhook"
)

func newService(t *testing.T) (*service.Service, *repo.MemoryRepository, uuid.UUID) {
	t.Helper()

	r := repo.NewMemoryRepository()
	wsID := uuid.New()
	r.RegisterWorkspace(wsID, "patitas", "ws_patitas_a1b2", "owner@example.com")

	s := service.New(r, webhook.NewNotifier("", zap.NewNop()), zap.NewNop())
	return s, r, wsID
}

func TestInviteAndAccept(t *testing.T) {
	s, _, wsID := newService(t)
	ctx := context.Background()

	invite, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID:   wsID,
		Email:         "Vet@Example.com",
		ExpiresInDays: 7,
	})
	require.NoError(t, err)
	require.Equal(t, "vet@example.com", invite.Email)
	require.NotNil(t, invite.ExpiresAt)
	require.NotNil(t, invite.InvitedBy)
	require.Equal(t, "owner@example.com", *invite.InvitedBy)

	// Wrong address is rejected before anything is written.
	_, err = s.Accept(ctx, service.AcceptInput{Code: invite.InviteCode, Email: "other@example.com"})
	require.ErrorIs(t, err, service.ErrEmailMismatch)

	result, err := s.Accept(ctx, service.AcceptInput{Code: invite.InviteCode, Email: "vet@example.com"})
	require.NoError(t, err)
	require.Equal(t, wsID, result.WorkspaceID)
	require.Equal(t, "patitas", result.Slug)
	require.Equal(t, "member", result.Role)

	role, err := s.GetRole(ctx, wsID, "vet@example.com")
	require.NoError(t, err)
	require.Equal(t, "member", role)
}

func TestAcceptTwiceIsHarmless(t *testing.T) {
	s, _, wsID := newService(t)
	ctx := context.Background()

	invite, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.NoError(t, err)

	first, err := s.Accept(ctx, service.AcceptInput{Code: invite.InviteCode, Email: "vet@example.com"})
	require.NoError(t, err)

	second, err := s.Accept(ctx, service.AcceptInput{Code: invite.InviteCode, Email: "vet@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.WorkspaceID, second.WorkspaceID)

	members, err := s.ListMembers(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestInvitePermissions(t *testing.T) {
	s, r, wsID := newService(t)
	ctx := context.Background()

	// Non-members cannot invite.
	_, err := s.Invite(ctx, "stranger@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.ErrorIs(t, err, service.ErrNotFound)

	// Plain members cannot invite either.
	r.SetRole(wsID, "member@example.com", "member")
	_, err = s.Invite(ctx, "member@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.ErrorIs(t, err, service.ErrNotPrivileged)

	// Admins can.
	r.SetRole(wsID, "admin@example.com", "admin")
	_, err = s.Invite(ctx, "admin@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.NoError(t, err)
}

func TestInviteExistingMemberFails(t *testing.T) {
	s, r, wsID := newService(t)
	ctx := context.Background()

	r.SetRole(wsID, "vet@example.com", "member")
	_, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.ErrorIs(t, err, service.ErrAlreadyMember)
}

func TestLiveInviteIsReused(t *testing.T) {
	s, _, wsID := newService(t)
	ctx := context.Background()

	first, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.NoError(t, err)

	second, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID: wsID,
		Email:       "vet@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, first.InviteCode, second.InviteCode)
}

func TestExpiredInviteRejected(t *testing.T) {
	s, r, wsID := newService(t)
	ctx := context.Background()

	invite, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID:   wsID,
		Email:         "vet@example.com",
		ExpiresInDays: 1,
	})
	require.NoError(t, err)

	r.ExpireInvite(invite.InviteCode)
	_, err = s.Accept(ctx, service.AcceptInput{Code: invite.InviteCode, Email: "vet@example.com"})
	require.ErrorIs(t, err, service.ErrInviteExpired)
}

func TestZeroExpiryNeverExpires(t *testing.T) {
	s, _, wsID := newService(t)
	ctx := context.Background()

	invite, err := s.Invite(ctx, "owner@example.com", service.CreateInviteInput{
		WorkspaceID:   wsID,
		Email:         "vet@example.com",
		ExpiresInDays: 0,
	})
	require.NoError(t, err)
	require.Nil(t, invite.ExpiresAt)
}

func TestRemoveMemberRules(t *testing.T) {
	s, r, wsID := newService(t)
	ctx := context.Background()

	r.SetRole(wsID, "vet@example.com", "member")

	// Non-owners cannot remove.
	err := s.Remove(ctx, wsID, "owner@example.com", "vet@example.com")
	require.ErrorIs(t, err, service.ErrNotOwner)

	// The owner membership is immutable, even to the owner.
	err = s.Remove(ctx, wsID, "owner@example.com", "owner@example.com")
	require.ErrorIs(t, err, service.ErrOwnerImmutable)

	err = s.Remove(ctx, wsID, "vet@example.com", "owner@example.com")
	require.NoError(t, err)

	_, err = s.GetRole(ctx, wsID, "vet@example.com")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestListMembersOrdering(t *testing.T) {
	s, r, wsID := newService(t)
	ctx := context.Background()

	r.SetRole(wsID, "zoe@example.com", "member")
	r.SetRole(wsID, "ana@example.com", "member")
	r.SetRole(wsID, "admin@example.com", "admin")

	members, err := s.ListMembers(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, members, 4)
	require.Equal(t, "owner", members[0].Role)
	require.Equal(t, "admin", members[1].Role)
	require.Equal(t, "ana@example.com", members[2].Email)
	require.Equal(t, "zoe@example.com", members[3].Email)
}
