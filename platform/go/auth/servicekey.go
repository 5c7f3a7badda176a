package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ServiceKeyMatches reports whether the request carries the configured
// service API key, either as X-API-Key or as "Authorization: ApiKey <key>".
// An empty configured key disables service access entirely.
func ServiceKeyMatches(r *http.Request, configured string) bool {
	if configured == "" {
		return false
	}

	presented := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if presented == "" {
		authHeader := r.Header.Get("Authorization")
		const prefix = "ApiKey "
		if len(authHeader) >= len(prefix) && strings.EqualFold(authHeader[:len(prefix)], prefix) {
			presented = strings.TrimSpace(authHeader[len(prefix):])
		}
	}
	if presented == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
