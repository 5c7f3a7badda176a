package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifierDeliversEvent(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
	}))
	defer server.Close()

	n := NewNotifier(server.URL, zap.NewNop())
	require.True(t, n.Enabled())

	n.Notify("workspace.created", map[string]interface{}{
		"workspace_slug": "clinica-san-rafael",
	})

	select {
	case body := <-received:
		require.Equal(t, "workspace.created", body["event"])
		require.Equal(t, "clinica-san-rafael", body["workspace_slug"])
		require.NotEmpty(t, body["occurred_at"])
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestNotifierDisabledWithoutURL(t *testing.T) {
	n := NewNotifier("", zap.NewNop())
	require.False(t, n.Enabled())
	// Must not panic or spawn work.
	n.Notify("workspace.created", nil)
}
