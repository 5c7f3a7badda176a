package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	"github.com/vetflow-labs/vetflow/platform/go/auth/devtoken"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

type stubResolver struct {
	spaces map[string]workspace.Space
}

func (s *stubResolver) ResolveSpace(ctx context.Context, key string) (workspace.Space, error) {
	space, ok := s.spaces[key]
	if !ok {
		return workspace.Space{}, errors.New("not found")
	}
	return space, nil
}

type stubRoles struct {
	roles map[string]string // email -> role
}

func (s *stubRoles) GetRole(ctx context.Context, space workspace.Space, email string) (string, error) {
	role, ok := s.roles[email]
	if !ok {
		return "", errors.New("no membership")
	}
	return role, nil
}

func newSpaceRouter(t *testing.T, cfg WorkspaceSpaceConfig) (*chi.Mux, workspace.Space) {
	t.Helper()

	space := workspace.Space{Slug: "clinica", SchemaName: "ws_clinica_a1b2"}
	resolver := &stubResolver{spaces: map[string]workspace.Space{
		"clinica":         space,
		"ws_clinica_a1b2": space,
	}}
	roles := &stubRoles{roles: map[string]string{"member@example.com": "member"}}

	r := chi.NewRouter()
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil))
	r.Route("/api/workspaces/{key}", func(r chi.Router) {
		r.Use(WithWorkspaceSpace(resolver, roles, cfg))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			bound, ok := workspace.FromContext(req.Context())
			require.True(t, ok)
			_, _ = w.Write([]byte(bound.SchemaName))
		})
	})
	return r, space
}

func bearer(t *testing.T, email string) string {
	t.Helper()
	token, err := devtoken.BuildUnsignedToken(devtoken.Params{SubjectID: "user_1", Email: email}, 0)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestWorkspaceSpaceBindsForMember(t *testing.T) {
	r, space := newSpaceRouter(t, WorkspaceSpaceConfig{AuthRequired: true})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/clinica/", nil)
	req.Header.Set("Authorization", bearer(t, "member@example.com"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, space.SchemaName, resp.Body.String())
}

func TestWorkspaceSpaceHidesExistenceFromNonMembers(t *testing.T) {
	r, _ := newSpaceRouter(t, WorkspaceSpaceConfig{AuthRequired: true})

	// Unknown workspace key.
	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ghost/", nil)
	req.Header.Set("Authorization", bearer(t, "member@example.com"))
	unknown := httptest.NewRecorder()
	r.ServeHTTP(unknown, req)
	require.Equal(t, http.StatusNotFound, unknown.Code)

	// Real workspace, caller without a role: indistinguishable from above.
	req = httptest.NewRequest(http.MethodGet, "/api/workspaces/clinica/", nil)
	req.Header.Set("Authorization", bearer(t, "outsider@example.com"))
	outsider := httptest.NewRecorder()
	r.ServeHTTP(outsider, req)
	require.Equal(t, http.StatusNotFound, outsider.Code)
}

func TestWorkspaceSpaceRequiresAuth(t *testing.T) {
	r, _ := newSpaceRouter(t, WorkspaceSpaceConfig{AuthRequired: true})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/clinica/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestWorkspaceSpaceServiceKeyBypassesMembership(t *testing.T) {
	r, space := newSpaceRouter(t, WorkspaceSpaceConfig{AuthRequired: true, ServiceAPIKey: "svc-secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/clinica/", nil)
	req.Header.Set("X-API-Key", "svc-secret")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, space.SchemaName, resp.Body.String())
}

func TestWorkspaceSpaceAuthDisabled(t *testing.T) {
	r, _ := newSpaceRouter(t, WorkspaceSpaceConfig{AuthRequired: false})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_clinica_a1b2/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestWorkspaceSpaceDefaultSchemaFallback(t *testing.T) {
	resolver := &stubResolver{spaces: map[string]workspace.Space{}}
	roles := &stubRoles{}

	r := chi.NewRouter()
	r.Use(WithWorkspaceSpace(resolver, roles, WorkspaceSpaceConfig{DefaultSchema: "public"}))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(workspace.SchemaOrDefault(req.Context(), "missing")))
	})

	// No {key} parameter and no X-Workspace header: the fallback schema is
	// bound instead of leaving the request unscoped.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "public", resp.Body.String())
}

func TestWorkspaceSpaceNoKeyUnboundWithoutDefault(t *testing.T) {
	resolver := &stubResolver{spaces: map[string]workspace.Space{}}
	roles := &stubRoles{}

	r := chi.NewRouter()
	r.Use(WithWorkspaceSpace(resolver, roles, WorkspaceSpaceConfig{}))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, bound := workspace.FromContext(req.Context())
		require.False(t, bound)
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNoContent, resp.Code)
}
