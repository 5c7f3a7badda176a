package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vetflow-labs/vetflow/domains/channels/be/evolution"
	"github.com/vetflow-labs/vetflow/platform/go/httpjson"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// Handler exposes the messaging-channel endpoints. Each workspace owns at
// most one channel instance, keyed by its schema name.
type Handler struct {
	client *evolution.Client
	logger *zap.Logger
}

func New(client *evolution.Client, logger *zap.Logger) *Handler {
	if client == nil {
		panic("evolution client is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{client: client, logger: logger}
}

// Routes mounts the channel endpoints. spaceMW resolves {key} and enforces
// workspace membership.
func (h *Handler) Routes(spaceMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/{key}", func(r chi.Router) {
		r.Use(spaceMW)
		r.Get("/", h.status)
		r.Post("/", h.connect)
		r.Delete("/", h.disconnect)
	})
	return r
}

type statusResponse struct {
	InstanceName string         `json:"instanceName"`
	Connected    bool           `json:"connected"`
	Known        bool           `json:"known"`
	State        string         `json:"state,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	space, ok := h.requireSpace(w, r)
	if !ok {
		return
	}

	status, err := h.client.Status(r.Context(), space.SchemaName)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, statusResponse{
		InstanceName: space.SchemaName,
		Connected:    status.Connected,
		Known:        status.Known,
		State:        status.State,
		Details:      status.Details,
	})
}

type connectResponse struct {
	InstanceName     string `json:"instanceName"`
	Created          bool   `json:"created"`
	AlreadyConnected bool   `json:"alreadyConnected"`
	QRBase64         string `json:"qrBase64,omitempty"`
	QRDataURL        string `json:"qrDataUrl,omitempty"`
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	space, ok := h.requireSpace(w, r)
	if !ok {
		return
	}

	result, err := h.client.Connect(r.Context(), space.SchemaName)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := connectResponse{
		InstanceName:     result.InstanceName,
		Created:          result.Created,
		AlreadyConnected: result.AlreadyConnected,
		QRBase64:         result.QRBase64,
	}
	if result.QRBase64 != "" {
		resp.QRDataURL = "data:image/png;base64," + result.QRBase64
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	space, ok := h.requireSpace(w, r)
	if !ok {
		return
	}

	if err := h.client.DeleteInstance(r.Context(), space.SchemaName); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireSpace(w http.ResponseWriter, r *http.Request) (workspace.Space, bool) {
	space, ok := workspace.FromContext(r.Context())
	if !ok {
		httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
		return workspace.Space{}, false
	}
	return space, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, evolution.ErrNotConfigured) {
		httpjson.WriteProblem(w, http.StatusNotImplemented, "Channels disabled",
			"messaging channel integration is not configured")
		return
	}
	var apiErr *evolution.APIError
	if errors.As(err, &apiErr) {
		h.logger.Warn("channel operation failed", zap.Error(err))
		httpjson.WriteProblem(w, http.StatusBadGateway, "Channel provider error", apiErr.Detail)
		return
	}
	h.logger.Error("channel operation failed", zap.Error(err))
	httpjson.WriteProblem(w, http.StatusInternalServerError, "Internal error", "internal error")
}
