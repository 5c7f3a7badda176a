package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/vetflow-labs/vetflow/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "VETFLOW_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindService   ActorKind = "service"
)

// AuditInfo captures request-scoped metadata needed for traceability.
// SubjectID and Email are set only when ActorKind is user. RequestID is
// optional but encouraged.
type AuditInfo struct {
	ActorKind ActorKind
	SubjectID *string
	Email     *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an
// anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo from authenticated user credentials and
// a request ID. Returns an error when creds are nil or missing a subject.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.SubjectID == "" {
		return AuditInfo{}, errors.New("subject id is required to build audit info")
	}

	email := creds.Email
	return AuditInfo{
		ActorKind: ActorKindUser,
		SubjectID: &creds.SubjectID,
		Email:     &email,
		RequestID: requestID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests (e.g., invite
// acceptance before first login) where no user ID exists yet.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// Service builds an AuditInfo for service-to-service calls authenticated by
// API key.
func Service(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindService, RequestID: requestID}
}
