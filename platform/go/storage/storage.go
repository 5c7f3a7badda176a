package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/vetflow-labs/vetflow/platform/go/workspace"
)

// ObjectStore is the blob interface handlers depend on. Put reports the
// canonical URL of the stored object.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectLocation describes where a blob lives.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveObjectLocation combines the workspace prefix and a logical key into
// a bucket/path pair. Objects are namespaced under the schema name, which is
// unique per workspace and survives slug renames:
//
//	workspaces/<schema_name>/<logical key>
func ResolveObjectLocation(space workspace.Space, bucket string, logicalKey string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("bucket is required")
	}

	key := SanitizeObjectKey(logicalKey)
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("logical key is required")
	}

	if space.SchemaName == "" {
		return ObjectLocation{}, fmt.Errorf("workspace schema name is missing")
	}

	fullPath := "workspaces/" + space.SchemaName + "/" + key
	return ObjectLocation{Bucket: bucket, FullPath: fullPath}, nil
}

var objectKeyUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// SanitizeObjectKey normalizes a caller-supplied key: leading slashes and
// parent-directory segments are stripped, unsafe characters collapse to a
// single dash.
func SanitizeObjectKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")

	parts := strings.Split(key, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, objectKeyUnsafe.ReplaceAllString(part, "-"))
	}
	return strings.Join(kept, "/")
}
