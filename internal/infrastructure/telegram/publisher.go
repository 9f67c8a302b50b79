package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"AnnounceRelay/internal/config"
	"AnnounceRelay/internal/ports"
)

// Platform is the destination prefix routed to this publisher.
const Platform = "telegram"

// Publisher sends announcements to Telegram chats via the bot API.
type Publisher struct {
	botToken string
	apiBase  string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher builds a publisher paced at cfg.MessagesPerSecond. A nil client gets one
// bounded by cfg.SendTimeout.
func NewPublisher(cfg config.TelegramConfig, client *http.Client) *Publisher {
	if client == nil {
		timeout := cfg.SendTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Publisher{
		botToken: cfg.BotToken,
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Platform implements ports.Publisher.
func (p *Publisher) Platform() string { return Platform }

// Publish posts plain text to chatID.
func (p *Publisher) Publish(ctx context.Context, chatID, text string) error {
	if p.botToken == "" || chatID == "" || p.client == nil {
		return fmt.Errorf("telegram publisher misconfigured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", p.apiBase, p.botToken)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode != http.StatusOK || !body.OK {
		if body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}
