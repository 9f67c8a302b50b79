package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnnounceRelay/internal/config"
)

func testConfig(endpoint, key string) config.GenerationConfig {
	cfg := config.Default().Generation
	cfg.Endpoint = endpoint
	cfg.APIKey = key
	return cfg
}

func TestAnnouncerMessagesAPI(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  Launch day — mainnet is live – go  "}]}`))
	}))
	defer srv.Close()

	a := NewAnnouncer(testConfig(srv.URL+"/v1/messages", "secret"), srv.Client())
	out, err := a.Generate(context.Background(), "Protocol X launched", "hype")
	require.NoError(t, err)
	assert.Equal(t, "Launch day - mainnet is live - go", out)

	assert.Contains(t, got["system"], "Tone: hype")
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}

func TestAnnouncerChatCompletionsAPI(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Announcement"}}]}`))
	}))
	defer srv.Close()

	a := NewAnnouncer(testConfig(srv.URL+"/v1/chat/completions", "secret"), srv.Client())
	out, err := a.Generate(context.Background(), "topic", "")
	require.NoError(t, err)
	assert.Equal(t, "Announcement", out)
}

func TestAnnouncerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case "/empty":
			_, _ = w.Write([]byte(`{"content":[]}`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"content":[{"text":"late"}]}`))
		}
	}))
	defer srv.Close()

	_, err := NewAnnouncer(testConfig(srv.URL+"/fail", "k"), srv.Client()).Generate(context.Background(), "t", "")
	assert.ErrorContains(t, err, "503")

	_, err = NewAnnouncer(testConfig(srv.URL+"/empty", "k"), srv.Client()).Generate(context.Background(), "t", "")
	assert.ErrorContains(t, err, "no text")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewAnnouncer(testConfig(srv.URL+"/slow", "k"), srv.Client()).Generate(ctx, "t", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnnouncerDisabledWithoutKey(t *testing.T) {
	t.Parallel()

	a := NewAnnouncer(testConfig("https://example.invalid/v1/messages", ""), nil)
	assert.False(t, a.Enabled())
	out, err := a.Generate(context.Background(), "bridge upgrade", "")
	require.NoError(t, err)
	assert.Equal(t, "[AI disabled] Announcement about: bridge upgrade", out)
}
