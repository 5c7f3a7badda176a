package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/workspaces/be/handler"
	"github.com/vetflow-labs/vetflow/domains/workspaces/be/repo"
	"github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	"github.com/vetflow-labs/vetflow/platform/go/auth/devtoken"
	platformmw "github.com/vetflow-labs/vetflow/platform/go/middleware"
	"github.com/vetflow-labs/vetflow/platform/go/webhook"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

type noopProvisioner struct{}

func (noopProvisioner) EnsureWorkspaceSchema(ctx context.Context, schemaName string) error { return nil }
func (noopProvisioner) DropWorkspaceSchema(ctx context.Context, schemaName string) error  { return nil }

// repoRoles adapts the memory repository's membership view to the middleware.
type repoRoles struct {
	repo *repo.MemoryRepository
}

func (r repoRoles) GetRole(ctx context.Context, space workspace.Space, email string) (string, error) {
	list, err := r.repo.ListForEmail(ctx, email)
	if err != nil {
		return "", err
	}
	for _, ws := range list {
		if ws.ID == space.WorkspaceID && ws.Role != nil {
			return *ws.Role, nil
		}
	}
	return "", errors.New("no membership")
}

func newTestRouter(t *testing.T) (*chi.Mux, *repo.MemoryRepository) {
	t.Helper()

	memRepo := repo.NewMemoryRepository("ws")
	svc := service.New(memRepo, noopProvisioner{}, webhook.NewNotifier("", zap.NewNop()), zap.NewNop(), service.Config{})
	h := handler.New(svc, zap.NewNop())

	spaceMW := platformmw.WithWorkspaceSpace(svc, repoRoles{repo: memRepo}, platformmw.WorkspaceSpaceConfig{
		AuthRequired: true,
	})

	r := chi.NewRouter()
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil))
	r.Use(platformmw.RequestTrace)
	r.Mount("/api/workspaces", h.Routes(spaceMW))
	return r, memRepo
}

func bearer(t *testing.T, email string) string {
	t.Helper()
	token, err := devtoken.BuildUnsignedToken(devtoken.Params{SubjectID: "user_" + email, Email: email}, 0)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, router http.Handler, method, path, email string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if email != "" {
		req.Header.Set("Authorization", bearer(t, email))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateAndGetWorkspace(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{
		"name": "Clinica San Rafael",
	})
	require.Equal(t, http.StatusCreated, created.Code)

	var ws map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ws))
	require.Equal(t, "clinica-san-rafael", ws["slug"])
	require.Equal(t, true, ws["provisioned"])
	require.Equal(t, "/api/workspaces/clinica-san-rafael", created.Header().Get("Location"))

	got := doJSON(t, router, http.MethodGet, "/api/workspaces/clinica-san-rafael/", "owner@example.com", nil)
	require.Equal(t, http.StatusOK, got.Code)

	// Non-members get a 404, not a 403.
	hidden := doJSON(t, router, http.MethodGet, "/api/workspaces/clinica-san-rafael/", "outsider@example.com", nil)
	require.Equal(t, http.StatusNotFound, hidden.Code)
}

func TestCreateRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/workspaces/", "", map[string]interface{}{
		"name": "Patitas",
	})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateWithTakenSlugHintConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{
		"name": "Patitas",
		"slug": "patitas",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{
		"name": "Other",
		"slug": "patitas",
	})
	require.Equal(t, http.StatusConflict, second.Code)
}

func TestListIsCallerScoped(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/workspaces/", "a@example.com", map[string]interface{}{"name": "A Clinic"})
	doJSON(t, router, http.MethodPost, "/api/workspaces/", "b@example.com", map[string]interface{}{"name": "B Clinic"})

	resp := doJSON(t, router, http.MethodGet, "/api/workspaces/", "a@example.com", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "a-clinic", list[0]["slug"])
	require.Equal(t, "owner", list[0]["role"])
}

func TestListIncludesStatsWhenRequested(t *testing.T) {
	router, memRepo := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/workspaces/", "a@example.com", map[string]interface{}{"name": "A Clinic"})
	require.Equal(t, http.StatusCreated, created.Code)

	var ws map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ws))
	memRepo.SetStats(ws["schemaName"].(string), service.Stats{Files: 3, Appointments: 7})

	plain := doJSON(t, router, http.MethodGet, "/api/workspaces/", "a@example.com", nil)
	require.Equal(t, http.StatusOK, plain.Code)
	var withoutStats []map[string]interface{}
	require.NoError(t, json.Unmarshal(plain.Body.Bytes(), &withoutStats))
	require.NotContains(t, withoutStats[0], "stats")

	resp := doJSON(t, router, http.MethodGet, "/api/workspaces/?include_stats=1", "a@example.com", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)
	stats, ok := list[0]["stats"].(map[string]interface{})
	require.True(t, ok)
	require.EqualValues(t, 3, stats["files"])
	require.EqualValues(t, 7, stats["appointments"])
}

func TestUpdateIsOwnerOnly(t *testing.T) {
	router, memRepo := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{"name": "Patitas"})
	require.Equal(t, http.StatusCreated, created.Code)

	var ws map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ws))

	// Add a plain member; they can see but not rename.
	list, err := memRepo.ListAll(context.Background())
	require.NoError(t, err)
	memRepo.AddMember(list[0].ID, "member@example.com")

	denied := doJSON(t, router, http.MethodPatch, "/api/workspaces/patitas/", "member@example.com", map[string]interface{}{
		"name": "Hijacked",
	})
	require.Equal(t, http.StatusForbidden, denied.Code)

	renamed := doJSON(t, router, http.MethodPatch, "/api/workspaces/patitas/", "owner@example.com", map[string]interface{}{
		"name": "Patitas Felices",
	})
	require.Equal(t, http.StatusOK, renamed.Code)

	var updated map[string]interface{}
	require.NoError(t, json.Unmarshal(renamed.Body.Bytes(), &updated))
	require.Equal(t, "Patitas Felices", updated["name"])
}

func TestDeleteRequiresConfirmPhrase(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{"name": "Patitas"})
	require.Equal(t, http.StatusCreated, created.Code)

	wrong := doJSON(t, router, http.MethodDelete, "/api/workspaces/patitas/", "owner@example.com", map[string]interface{}{
		"confirm": "not-the-slug",
	})
	require.Equal(t, http.StatusBadRequest, wrong.Code)

	right := doJSON(t, router, http.MethodDelete, "/api/workspaces/patitas/", "owner@example.com", map[string]interface{}{
		"confirm": "patitas",
	})
	require.Equal(t, http.StatusOK, right.Code)

	gone := doJSON(t, router, http.MethodGet, "/api/workspaces/patitas/", "owner@example.com", nil)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestEnsureDefaultDisabledByDefault(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/workspaces/default", "new@example.com", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return "https://objects.example/" + key, nil
}

func (m *memObjects) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestIconUploadAndRedirect(t *testing.T) {
	memRepo := repo.NewMemoryRepository("ws")
	svc := service.New(memRepo, noopProvisioner{}, webhook.NewNotifier("", zap.NewNop()), zap.NewNop(), service.Config{})
	objects := newMemObjects()
	h := handler.New(svc, zap.NewNop()).WithIconStore(objects, "vetflow-assets")

	spaceMW := platformmw.WithWorkspaceSpace(svc, repoRoles{repo: memRepo}, platformmw.WorkspaceSpaceConfig{
		AuthRequired: true,
	})
	router := chi.NewRouter()
	router.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil))
	router.Use(platformmw.RequestTrace)
	router.Mount("/api/workspaces", h.Routes(spaceMW))

	created := doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{"name": "Patitas"})
	require.Equal(t, http.StatusCreated, created.Code)

	var ws map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ws))
	schemaName, _ := ws["schemaName"].(string)
	require.NotEmpty(t, schemaName)

	req := httptest.NewRequest(http.MethodPut, "/api/workspaces/patitas/icon", bytes.NewReader([]byte("png-bytes")))
	req.Header.Set("Authorization", bearer(t, "owner@example.com"))
	req.Header.Set("Content-Type", "image/png")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	objectPath := "workspaces/" + schemaName + "/branding/icon"
	var uploaded map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &uploaded))
	require.Equal(t, "https://objects.example/"+objectPath, uploaded["url"])
	require.Equal(t, []byte("png-bytes"), objects.data[objectPath])

	redirect := doJSON(t, router, http.MethodGet, "/api/workspaces/patitas/icon", "owner@example.com", nil)
	require.Equal(t, http.StatusFound, redirect.Code)
	require.Equal(t, "https://signed.example/"+objectPath, redirect.Header().Get("Location"))
}

func TestIconWithoutStorageIsNotImplemented(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/workspaces/", "owner@example.com", map[string]interface{}{"name": "Patitas"})
	resp := doJSON(t, router, http.MethodGet, "/api/workspaces/patitas/icon", "owner@example.com", nil)
	require.Equal(t, http.StatusNotImplemented, resp.Code)
}
