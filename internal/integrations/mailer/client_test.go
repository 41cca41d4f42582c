package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meliseller/internal/domain"
)

func TestSendPostsMessage(t *testing.T) {
	var got message
	var idempotency, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotency = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, APIKey: "key-1", From: "bot@shop.test", To: "a@shop.test, b@shop.test", Timeout: time.Second})
	err := c.Send(context.Background(), domain.Digest{
		RunID:    "run-42",
		Subject:  "Weekly summary",
		Markdown: "📊 **SUMMARY**\nTotal: $1.000 ARS",
	})
	require.NoError(t, err)

	assert.Equal(t, "run-42", idempotency)
	assert.Equal(t, "Bearer key-1", auth)
	assert.Equal(t, "bot@shop.test", got.From)
	assert.Equal(t, []string{"a@shop.test", "b@shop.test"}, got.To)
	assert.Equal(t, "Weekly summary", got.Subject)
	assert.Contains(t, got.HTML, "<strong>SUMMARY</strong>")
	assert.Contains(t, got.HTML, "<br")
	assert.Contains(t, got.Text, "**SUMMARY**")
}

func TestSendDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream error"))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, From: "bot@shop.test", To: "a@shop.test"})
	err := c.Send(context.Background(), domain.Digest{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "upstream error")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSendDisabledIsNoop(t *testing.T) {
	c := NewClient(Config{})
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Send(context.Background(), domain.Digest{RunID: "run-1"}))
}
