package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params captures the claims required to mint an unsigned JWT for local and
// CI environments. All fields come from the caller; no environment variables
// are read so the builder stays deterministic for tooling.
type Params struct {
	SubjectID string        // sub claim (required)
	Email     string        // email claim (required)
	Name      string        // display name (optional but recommended)
	ImageURL  string        // avatar URL (optional)
	Issuer    string        // optional override; defaults to http://localhost
	ExpiresIn time.Duration // relative expiry; default 1h if zero
}

// BuildUnsignedToken returns a JWT string with alg "none" and no signature.
// The payload mirrors a Clerk session token shape so it flows through the
// auth middleware when AUTH_PROVIDER=dev. A zero expiresIn falls back to
// Params.ExpiresIn, then to one hour.
func BuildUnsignedToken(p Params, expiresIn time.Duration) (string, error) {
	if strings.TrimSpace(p.SubjectID) == "" {
		return "", errors.New("subjectID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	now := time.Now().UTC()

	if expiresIn == 0 {
		expiresIn = p.ExpiresIn
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "http://localhost"
	}

	payload := map[string]interface{}{
		"iss":   issuer,
		"sub":   p.SubjectID,
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
		"email": p.Email,
	}
	if p.Name != "" {
		payload["name"] = p.Name
	}
	if p.ImageURL != "" {
		payload["image_url"] = p.ImageURL
	}

	header := map[string]interface{}{
		"alg": "none",
		"typ": "JWT",
	}

	headerSegment, err := encodeSegment(header)
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
