package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
	"github.com/vetflow-labs/vetflow/platform/go/httpjson"
	platformlogging "github.com/vetflow-labs/vetflow/platform/go/logging"
	"github.com/vetflow-labs/vetflow/platform/go/requesttrace"
	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// SpaceResolver turns a workspace key (slug or schema name) into a Space.
type SpaceResolver interface {
	ResolveSpace(ctx context.Context, key string) (workspace.Space, error)
}

// RoleLookup answers whether an identity belongs to a workspace, and as what.
type RoleLookup interface {
	GetRole(ctx context.Context, space workspace.Space, email string) (string, error)
}

// WorkspaceSpaceConfig configures WithWorkspaceSpace.
type WorkspaceSpaceConfig struct {
	// AuthRequired gates membership checks; disable for local setups
	// without an identity provider.
	AuthRequired bool
	// ServiceAPIKey lets backend automation bypass membership checks.
	// Empty disables service access.
	ServiceAPIKey string
	// DefaultSchema is bound to requests that carry no workspace key.
	// Empty leaves them unbound.
	DefaultSchema string
}

// WithWorkspaceSpace resolves the workspace addressed by the request and
// binds it to the context. The key comes from the {key} route parameter or
// the X-Workspace header. Requests without a key fall back to the configured
// default schema, or pass through unbound when none is set.
//
// Membership is checked for authenticated callers. A caller with no role in
// the workspace gets the same 404 an unknown key gets, so probing for
// workspace existence yields nothing.
func WithWorkspaceSpace(resolver SpaceResolver, roles RoleLookup, cfg WorkspaceSpaceConfig) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("workspace middleware requires a resolver")
	}
	if roles == nil {
		panic("workspace middleware requires a role lookup")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(chi.URLParam(r, "key"))
			if key == "" {
				key = strings.TrimSpace(r.Header.Get("X-Workspace"))
			}
			if key == "" {
				schema := workspace.SchemaOrDefault(r.Context(), cfg.DefaultSchema)
				if _, bound := workspace.FromContext(r.Context()); !bound && schema != "" {
					r = r.WithContext(workspace.WithSpace(r.Context(), workspace.Space{SchemaName: schema}))
				}
				next.ServeHTTP(w, r)
				return
			}

			space, err := resolver.ResolveSpace(r.Context(), key)
			if err != nil {
				httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
				return
			}

			if platformauth.ServiceKeyMatches(r, cfg.ServiceAPIKey) {
				ctx := requesttrace.IntoContext(r.Context(), requesttrace.Service(""))
				next.ServeHTTP(w, r.WithContext(workspace.WithSpace(ctx, space)))
				return
			}

			if cfg.AuthRequired {
				creds, ok := platformauth.UserFromContext(r.Context())
				if !ok || creds == nil {
					httpjson.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
					return
				}

				if _, err := roles.GetRole(r.Context(), space, creds.Email); err != nil {
					// Same answer as an unknown key.
					logger := platformlogging.FromRequest(r, nil)
					if logger != nil {
						logger.Debug("workspace access denied",
							zap.String("workspace_slug", space.Slug),
							zap.String("email", creds.Email))
					}
					httpjson.WriteProblem(w, http.StatusNotFound, "Not found", "workspace not found")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(workspace.WithSpace(r.Context(), space)))
		})
	}
}
