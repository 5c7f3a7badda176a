package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vetflow-labs/vetflow/platform/go/auth/devtoken"
)

func TestDefaultCredentialExtractor(t *testing.T) {
	testCases := []struct {
		name      string
		claims    map[string]interface{}
		wantEmail string
		wantErr   bool
	}{
		{
			name: "standard claims",
			claims: map[string]interface{}{
				"sub":   "user_2abc",
				"email": "Vet@Example.com",
				"name":  "Dra. Gomez",
			},
			wantEmail: "vet@example.com",
		},
		{
			name: "email_address alias",
			claims: map[string]interface{}{
				"sub":           "user_2abc",
				"email_address": "vet@example.com",
			},
			wantEmail: "vet@example.com",
		},
		{
			name: "primary_email alias",
			claims: map[string]interface{}{
				"sub":           "user_2abc",
				"primary_email": "vet@example.com",
			},
			wantEmail: "vet@example.com",
		},
		{
			name:    "no email claim",
			claims:  map[string]interface{}{"sub": "user_2abc"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := DefaultCredentialExtractor(tc.claims)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantEmail, creds.Email)
		})
	}
}

func TestExtractJWTToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, found := ExtractJWTToken(r)
	require.False(t, found)

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	token, found := ExtractJWTToken(r)
	require.True(t, found)
	require.Equal(t, "abc.def.ghi", token)
}

func TestJWTMiddlewareWithDevToken(t *testing.T) {
	token, err := devtoken.BuildUnsignedToken(devtoken.Params{
		SubjectID: "user_dev1",
		Email:     "dev@example.com",
		Name:      "Dev User",
	}, 0)
	require.NoError(t, err)

	var captured *UserCredentials
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, captured)
	require.Equal(t, "dev@example.com", captured.Email)
	require.Equal(t, "user_dev1", captured.SubjectID)
}

func TestJWTMiddlewarePassesThroughWithoutToken(t *testing.T) {
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := UserFromContext(r.Context())
		require.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTMiddlewareRejectsBadToken(t *testing.T) {
	verify := func(ctx context.Context, token string) (map[string]interface{}, error) {
		return nil, context.DeadlineExceeded
	}
	handler := JWT(verify, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServiceKeyMatches(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, ServiceKeyMatches(r, "secret"))
	require.False(t, ServiceKeyMatches(r, ""))

	r.Header.Set("X-API-Key", "secret")
	require.True(t, ServiceKeyMatches(r, "secret"))
	require.False(t, ServiceKeyMatches(r, "other"))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("Authorization", "ApiKey secret")
	require.True(t, ServiceKeyMatches(r2, "secret"))
}
