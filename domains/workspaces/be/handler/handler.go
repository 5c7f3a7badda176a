package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/workspaces/be/service"
	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	"github.com/vetflow-labs/vetflow/platform/go/httpjson"
	"github.com/vetflow-labs/vetflow/platform/go/requesttrace"
	platformstorage "github.com/vetflow-labs/vetflow/platform/go/storage"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// Handler exposes the workspace directory and lifecycle over HTTP.
type Handler struct {
	svc     *service.Service
	logger  *zap.Logger
	objects platformstorage.ObjectStore
	bucket  string
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("workspaces service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// WithIconStore enables the workspace icon endpoints, backed by the given
// object store and bucket. Without it those endpoints answer 501.
func (h *Handler) WithIconStore(store platformstorage.ObjectStore, bucket string) *Handler {
	h.objects = store
	h.bucket = bucket
	return h
}

// Routes mounts the workspace endpoints. spaceMW must resolve the {key}
// route parameter and enforce membership before key-scoped handlers run.
// keyScoped callbacks register additional routes inside the space-bound
// subtree, so other domains can hang their endpoints off the same key.
func (h *Handler) Routes(spaceMW func(http.Handler) http.Handler, keyScoped ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/default", h.ensureDefault)
	r.Route("/{key}", func(r chi.Router) {
		r.Use(spaceMW)
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/reprovision", h.reprovision)
		r.Put("/icon", h.uploadIcon)
		r.Get("/icon", h.icon)
		for _, register := range keyScoped {
			register(r)
		}
	})
	return r
}

type workspaceResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	SchemaName  string         `json:"schemaName"`
	Description *string        `json:"description,omitempty"`
	ThemeColor  *string        `json:"themeColor,omitempty"`
	IconURL     *string        `json:"iconUrl,omitempty"`
	OwnerEmail  string         `json:"ownerEmail"`
	OwnerName   *string        `json:"ownerName,omitempty"`
	Role        *string        `json:"role,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Provisioned bool           `json:"provisioned"`
	Stats       *statsResponse `json:"stats,omitempty"`
}

type statsResponse struct {
	Files        int `json:"files"`
	Appointments int `json:"appointments"`
}

func toResponse(ws service.Workspace) workspaceResponse {
	resp := workspaceResponse{
		ID:          ws.ID.String(),
		Name:        ws.Name,
		Slug:        ws.Slug,
		SchemaName:  ws.SchemaName,
		Description: ws.Description,
		ThemeColor:  ws.ThemeColor,
		IconURL:     ws.IconURL,
		OwnerEmail:  ws.OwnerEmail,
		OwnerName:   ws.OwnerName,
		Role:        ws.Role,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
		Provisioned: ws.Provisioned,
	}
	if ws.Stats != nil {
		resp.Stats = &statsResponse{Files: ws.Stats.Files, Appointments: ws.Stats.Appointments}
	}
	return resp
}

func toResponses(list []service.Workspace) []workspaceResponse {
	out := make([]workspaceResponse, 0, len(list))
	for _, ws := range list {
		out = append(out, toResponse(ws))
	}
	return out
}

// list returns the caller's workspaces. Service-key callers get the full
// directory instead.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	withStats := statsRequested(r.URL.Query().Get("include_stats"))

	if audit, ok := requesttrace.FromContext(r.Context()); ok && audit.ActorKind == requesttrace.ActorKindService {
		list, err := h.svc.ListAll(r.Context(), withStats)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpjson.Write(w, http.StatusOK, toResponses(list))
		return
	}

	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	list, err := h.svc.ListForIdentity(r.Context(), creds.Email, withStats)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponses(list))
}

func statsRequested(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type createRequest struct {
	Name        string  `json:"name"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	ThemeColor  *string `json:"themeColor,omitempty"`
	IconURL     *string `json:"iconUrl,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	var body createRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ws, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:        body.Name,
		OwnerEmail:  creds.Email,
		OwnerName:   creds.DisplayName,
		SlugHint:    body.Slug,
		Description: body.Description,
		ThemeColor:  body.ThemeColor,
		IconURL:     body.IconURL,
	})
	if err != nil && !errors.Is(err, service.ErrProvisioningFailed) {
		h.respondError(w, err)
		return
	}

	// A provisioning failure still created the directory entry; the
	// response carries provisioned=false so the client can retry later.
	w.Header().Set("Location", "/api/workspaces/"+ws.Slug)
	httpjson.Write(w, http.StatusCreated, toResponse(ws))
}

func (h *Handler) ensureDefault(w http.ResponseWriter, r *http.Request) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	ws, err := h.svc.EnsureDefaultForIdentity(r.Context(), creds.Email, creds.DisplayName)
	if err != nil && !errors.Is(err, service.ErrProvisioningFailed) {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(ws))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return
	}

	ws, err := h.svc.Get(r.Context(), space.WorkspaceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(ws))
}

type updateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ThemeColor  *string `json:"themeColor,omitempty"`
	IconURL     *string `json:"iconUrl,omitempty"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	space, creds, ok := h.requireMemberContext(w, r)
	if !ok {
		return
	}

	var body updateRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ws, err := h.svc.Update(r.Context(), space.WorkspaceID, creds.Email, service.UpdateInput{
		Name:        body.Name,
		Description: body.Description,
		ThemeColor:  body.ThemeColor,
		IconURL:     body.IconURL,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(ws))
}

type deleteRequest struct {
	// Confirm must equal the workspace slug; a guard against fat-fingered
	// deletes of the wrong workspace.
	Confirm    string `json:"confirm"`
	DropSchema *bool  `json:"dropSchema,omitempty"`
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	space, creds, ok := h.requireMemberContext(w, r)
	if !ok {
		return
	}

	var body deleteRequest
	if err := httpjson.Decode(r, &body); err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if body.Confirm != space.Slug {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Confirmation mismatch",
			"confirm must match the workspace slug")
		return
	}

	dropSchema := true
	if body.DropSchema != nil {
		dropSchema = *body.DropSchema
	}

	removed, err := h.svc.Delete(r.Context(), space.WorkspaceID, creds.Email, dropSchema)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toResponse(removed))
}

func (h *Handler) reprovision(w http.ResponseWriter, r *http.Request) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return
	}

	ws, err := h.svc.Reprovision(r.Context(), space.WorkspaceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusAccepted, toResponse(ws))
}

const maxIconBytes = 5 << 20

const iconObjectKey = "branding/icon"

func (h *Handler) uploadIcon(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.requireMemberContext(w, r); !ok {
		return
	}
	space, _ := workspace.FromContext(r.Context())

	if h.objects == nil {
		httpjson.WriteProblem(w, http.StatusNotImplemented, "Storage disabled",
			"object storage is not configured")
		return
	}

	location, err := platformstorage.ResolveObjectLocation(space, h.bucket, iconObjectKey)
	if err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Validation error", err.Error())
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/json") {
		contentType = "image/png"
	}

	body := http.MaxBytesReader(w, r.Body, maxIconBytes)
	url, err := h.objects.Put(r.Context(), location.FullPath, contentType, body)
	if err != nil {
		h.logger.Error("icon upload failed", zap.String("path", location.FullPath), zap.Error(err))
		httpjson.WriteProblem(w, http.StatusBadGateway, "Storage error", "icon upload failed")
		return
	}
	httpjson.Write(w, http.StatusOK, iconUploadResponse{URL: url})
}

type iconUploadResponse struct {
	URL string `json:"url"`
}

// icon redirects to a short-lived signed URL for the stored icon.
func (h *Handler) icon(w http.ResponseWriter, r *http.Request) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return
	}

	if h.objects == nil {
		httpjson.WriteProblem(w, http.StatusNotImplemented, "Storage disabled",
			"object storage is not configured")
		return
	}

	location, err := platformstorage.ResolveObjectLocation(space, h.bucket, iconObjectKey)
	if err != nil {
		httpjson.WriteProblem(w, http.StatusBadRequest, "Validation error", err.Error())
		return
	}

	url, err := h.objects.SignedURL(r.Context(), location.FullPath, 15*time.Minute)
	if err != nil {
		h.logger.Error("icon URL signing failed", zap.String("path", location.FullPath), zap.Error(err))
		httpjson.WriteProblem(w, http.StatusBadGateway, "Storage error", "icon lookup failed")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// requireMemberContext pulls the bound space and the acting user. Mutating
// endpoints need both; service-key calls carry no identity and are rejected.
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
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
	case errors.Is(err, service.ErrSlugConflict):
		httpjson.WriteProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, service.ErrInvalidSlug), errors.Is(err, service.ErrNameRequired):
		httpjson.WriteProblem(w, http.StatusBadRequest, "Validation error", err.Error())
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrSchemaGuard):
		httpjson.WriteProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, service.ErrProvisioningFailed):
		httpjson.WriteProblem(w, http.StatusBadGateway, "Provisioning failed", err.Error())
	default:
		h.logger.Error("workspace operation failed", zap.Error(err))
		httpjson.WriteProblem(w, http.StatusInternalServerError, "Internal error", "internal error")
	}
}
