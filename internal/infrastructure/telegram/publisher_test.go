package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnnounceRelay/internal/config"
)

func TestPublisherSendsMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "-100123", r.PostForm.Get("chat_id"))
		assert.Equal(t, "hello", r.PostForm.Get("text"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := NewPublisher(config.TelegramConfig{BotToken: "tok", APIBase: srv.URL + "/", MessagesPerSecond: 100}, srv.Client())
	assert.Equal(t, "telegram", p.Platform())
	require.NoError(t, p.Publish(context.Background(), "-100123", "hello"))
}

func TestPublisherReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	p := NewPublisher(config.TelegramConfig{BotToken: "tok", APIBase: srv.URL, MessagesPerSecond: 100}, srv.Client())
	err := p.Publish(context.Background(), "42", "hello")
	assert.ErrorContains(t, err, "chat not found")
}

func TestPublisherMisconfigured(t *testing.T) {
	t.Parallel()

	p := NewPublisher(config.TelegramConfig{APIBase: "https://api.telegram.org"}, nil)
	assert.Error(t, p.Publish(context.Background(), "42", "hello"))
}

func TestPublisherUsesSendTimeout(t *testing.T) {
	t.Parallel()

	p := NewPublisher(config.TelegramConfig{APIBase: "https://api.telegram.org", SendTimeout: 3 * time.Second}, nil)
	assert.Equal(t, 3*time.Second, p.client.Timeout)

	p = NewPublisher(config.TelegramConfig{APIBase: "https://api.telegram.org"}, nil)
	assert.Equal(t, 10*time.Second, p.client.Timeout)
}
