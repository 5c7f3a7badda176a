package workspace

import (
	"context"

	"github.com/google/uuid"
)

// Space captures the resolved workspace routing metadata for a request.
// Middleware attaches it to the context once the workspace key has been
// resolved and authorized; data access code reads it back to pick the
// schema every query runs against.
type Space struct {
	WorkspaceID uuid.UUID
	Slug        string
	SchemaName  string
}

type ctxKey struct{}

// WithSpace returns a derived context carrying the workspace Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, ctxKey{}, space)
}

// FromContext extracts the workspace Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	space, ok := ctx.Value(ctxKey{}).(Space)
	return space, ok
}

// SchemaOrDefault returns the schema bound to the request, or fallback when
// the request is not workspace-scoped (legacy endpoints).
func SchemaOrDefault(ctx context.Context, fallback string) string {
	if space, ok := FromContext(ctx); ok && space.SchemaName != "" {
		return space.SchemaName
	}
	return fallback
}
