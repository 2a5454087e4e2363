package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testbot/internal/notify"
)

func TestWebhookNotifier(t *testing.T) {
	status := http.StatusOK
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(notify.WebhookConfig{URL: srv.URL})
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "u1", notify.Payload{Kind: notify.KindRawResult, Text: "3/5"}))
	assert.Equal(t, "u1", got["recipient"])
	assert.Equal(t, "raw_result", got["kind"])
	assert.Equal(t, "3/5", got["text"])

	status = http.StatusBadRequest
	err := n.Notify(ctx, "u1", notify.Payload{Kind: notify.KindRawResult})
	require.Error(t, err)
	assert.True(t, notify.IsPermanent(err))

	status = http.StatusBadGateway
	err = n.Notify(ctx, "u1", notify.Payload{Kind: notify.KindRawResult})
	require.Error(t, err)
	assert.False(t, notify.IsPermanent(err))
}

func TestWebhookNotifierClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	n := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:          srv.URL + "/hook",
		TokenURL:     srv.URL + "/token",
		ClientID:     "bot",
		ClientSecret: "secret",
	})
	assert.NoError(t, n.Notify(context.Background(), "u1", notify.Payload{Kind: notify.KindNewUser}))
}
