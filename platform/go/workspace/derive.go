package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var slugCleanup = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts an arbitrary name to a URL-safe slug. Returns "" when
// nothing survives the cleanup; callers pick the next fallback source.
func Slugify(value string) string {
	slug := slugCleanup.ReplaceAllString(strings.ToLower(value), "-")
	return strings.Trim(slug, "-")
}

// SchemaFragment converts a kebab-case slug into the snake_case fragment
// embedded in schema names.
func SchemaFragment(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// BuildSchemaName returns `{prefix}_{slugFragment}_{suffix}`, the canonical
// physical namespace for one workspace.
func BuildSchemaName(prefix, slug, suffix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ws"
	}
	return prefix + "_" + SchemaFragment(slug) + "_" + suffix
}

// RandomToken returns n random bytes hex-encoded (2n characters).
func RandomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// HasSchemaPrefix reports whether schemaName belongs to the configured
// workspace namespace family. Lifecycle uses it as the guard before any
// DROP SCHEMA, so shared or unrelated schemas are never dropped.
func HasSchemaPrefix(schemaName, prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ws"
	}
	return strings.HasPrefix(schemaName, prefix+"_")
}
