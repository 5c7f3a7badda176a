package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type jwksFixture struct {
	key    *rsa.PrivateKey
	kid    string
	server *httptest.Server
	hits   atomic.Int64
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key, kid: "test-key-1"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		doc := map[string]interface{}{
			"keys": []map[string]string{{
				"kid": f.kid,
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) signToken(t *testing.T, issuer string, kid string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   "user_2abc",
		"email": "vet@example.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func TestClerkVerifierAcceptsSignedToken(t *testing.T) {
	f := newJWKSFixture(t)
	verifier := NewClerkVerifier(f.server.URL, f.server.Client())

	claims, err := verifier.Verify(context.Background(), f.signToken(t, f.server.URL, f.kid))
	require.NoError(t, err)
	require.Equal(t, "vet@example.com", claims["email"])

	// Second verification reuses the cached key set.
	_, err = verifier.Verify(context.Background(), f.signToken(t, f.server.URL, f.kid))
	require.NoError(t, err)
	require.Equal(t, int64(1), f.hits.Load())
}

func TestClerkVerifierRefetchesOnUnknownKid(t *testing.T) {
	f := newJWKSFixture(t)
	verifier := NewClerkVerifier(f.server.URL, f.server.Client())

	// Warm the cache under the old kid.
	_, err := verifier.Verify(context.Background(), f.signToken(t, f.server.URL, f.kid))
	require.NoError(t, err)

	// Rotate the key id; the verifier must invalidate and retry once.
	f.kid = "test-key-2"
	_, err = verifier.Verify(context.Background(), f.signToken(t, f.server.URL, f.kid))
	require.NoError(t, err)
	require.Equal(t, int64(2), f.hits.Load())
}

func TestClerkVerifierRejectsWrongIssuer(t *testing.T) {
	f := newJWKSFixture(t)
	verifier := NewClerkVerifier(f.server.URL, f.server.Client())

	_, err := verifier.Verify(context.Background(), f.signToken(t, "https://other-issuer.example", f.kid))
	require.Error(t, err)
}

func TestClerkVerifierReportsUnavailableJWKS(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	f := newJWKSFixture(t)
	verifier := NewClerkVerifier(down.URL, down.Client())

	_, err := verifier.Verify(context.Background(), f.signToken(t, down.URL, f.kid))
	require.Error(t, err)
	var unavailable *VerifierUnavailableError
	require.ErrorAs(t, err, &unavailable)
}
