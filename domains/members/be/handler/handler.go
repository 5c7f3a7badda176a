package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/members/be/service"
	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	"github.com/vetflow-labs/vetflow/platform/go/httpjson"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// Handler exposes roster and invitation endpoints.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("members service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterWorkspaceRoutes adds the roster and invite endpoints to a
// space-bound workspace subtree.
func (h *Handler) RegisterWorkspaceRoutes(r chi.Router) {
	r.Get("/members", h.listMembers)
	r.Delete("/members/{email}", h.removeMember)
	r.Get("/invites", h.listInvites)
	r.Post("/invites", h.createInvite)
}

// AcceptRoutes returns the unscoped invite redemption endpoint. It lives
// outside the workspace subtree: the caller does not know the workspace yet,
// only the code.
func (h *Handler) AcceptRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/accept", h.acceptInvite)
	return r
}

type memberResponse struct {
	Email       string    `json:"email"`
	DisplayName *string   `json:"displayName,omitempty"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return
	}

	members, err := h.svc.ListMembers(r.Context(), space.WorkspaceID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			Email:       m.Email,
			DisplayName: m.DisplayName,
			AvatarURL:   m.AvatarURL,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	space, creds, ok := h.requireMemberContext(w, r)
	if !ok {
		return
	}

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Validation error", "member email is required")
		return
	}

	if err := h.svc.Remove(r.Context(), space.WorkspaceID, email, creds.Email); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	InviteCode string     `json:"inviteCode"`
	InvitedBy  *string    `json:"invitedBy,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toInviteResponse(inv service.Invite) inviteResponse {
	return inviteResponse{
		ID:         inv.ID.String(),
		Email:      inv.Email,
		InviteCode: inv.InviteCode,
		InvitedBy:  inv.InvitedBy,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
}

func (h *Handler) listInvites(w http.ResponseWriter, r *http.Request) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return
	}

	invites, err := h.svc.ListInvites(r.Context(), space.WorkspaceID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]inviteResponse, 0, len(invites))
	for _, inv := range invites {
		out = append(out, toInviteResponse(inv))
	}
	httpjson.Write(w, http.StatusOK, out)
}

type createInviteRequest struct {
	Email string `json:"email"`
	// ExpiresInDays omitted or 0 means the invite never expires.
	ExpiresInDays int `json:"expiresInDays,omitempty"`
}

func (h *Handler) createInvite(w http.ResponseWriter, r *http.Request) {
	space, creds, ok := h.requireMemberContext(w, r)
	if !ok {
		return
	}

	var body createInviteRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	invite, err := h.svc.Invite(r.Context(), creds.Email, service.CreateInviteInput{
		WorkspaceID:   space.WorkspaceID,
		Email:         body.Email,
		ExpiresInDays: body.ExpiresInDays,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toInviteResponse(invite))
}

type acceptRequest struct {
	Code string `json:"code"`
}

type acceptResponse struct {
	WorkspaceID string `json:"workspaceId"`
	Slug        string `json:"slug"`
	SchemaName  string `json:"schemaName"`
	Role        string `json:"role"`
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	var body acceptRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	var subjectID *string
	if creds.SubjectID != "" {
		subjectID = &creds.SubjectID
	}

	result, err := h.svc.Accept(r.Context(), service.AcceptInput{
		Code:        body.Code,
		Email:       creds.Email,
		DisplayName: creds.DisplayName,
		SubjectID:   subjectID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, acceptResponse{
		WorkspaceID: result.WorkspaceID.String(),
		Slug:        result.Slug,
		SchemaName:  result.SchemaName,
		Role:        result.Role,
	})
}

func (h *Handler) requireMemberContext(w http.ResponseWriter, r *http.Request) (workspace.Space, *platformauth.UserCredentials, bool) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return workspace.Space{}, nil, false
	}
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return workspace.Space{}, nil, false
	}
	return space, creds, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "not found")
	case errors.Is(err, service.ErrAlreadyMember):
		httpjson.WriteProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, service.ErrEmailMismatch), errors.Is(err, service.ErrInviteExpired):
		httpjson.WriteProblem(w, http.StatusGone, "Invite unusable", err.Error())
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrNotPrivileged),
		errors.Is(err, service.ErrOwnerImmutable):
		httpjson.WriteProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, service.ErrEmailRequired):
		httpjson.WriteProblem(w, http.StatusBadRequest, "Validation error", err.Error())
	default:
		h.logger.Error("membership operation failed", zap.Error(err))
		httpjson.WriteProblem(w, http.StatusInternalServerError, "Internal error", "internal error")
	}
}
