package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"AnnounceRelay/internal/config"
	"AnnounceRelay/internal/ports"
)

const anthropicVersion = "2023-06-01"

// Announcer implements ports.Generator against an Anthropic messages endpoint or an
// OpenAI-compatible chat completions endpoint, chosen by the endpoint path.
type Announcer struct {
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ ports.Generator = (*Announcer)(nil)

// NewAnnouncer builds a client from configuration. The per-call deadline comes from the caller's context.
func NewAnnouncer(cfg config.GenerationConfig, httpClient *http.Client) *Announcer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout + cfg.Timeout/2}
	}
	return &Announcer{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

// Enabled reports whether an API key is configured.
func (a *Announcer) Enabled() bool {
	return a != nil && a.apiKey != ""
}

// Generate asks the model for a finished announcement. Without an API key it returns a
// marked placeholder so the rest of the pipeline can still be exercised.
func (a *Announcer) Generate(ctx context.Context, sourceText, style string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("announcer is nil")
	}
	if !a.Enabled() {
		return "[AI disabled] Announcement about: " + sourceText, nil
	}

	req, err := a.newRequest(ctx, sourceText, SystemPrompt(style))
	if err != nil {
		return "", err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generation api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded completion
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}

	reply := StripDashes(decoded.text())
	if reply == "" {
		return "", fmt.Errorf("generation api returned no text")
	}
	return reply, nil
}

func (a *Announcer) newRequest(ctx context.Context, sourceText, system string) (*http.Request, error) {
	openAI := strings.Contains(a.endpoint, "/chat/completions")

	payload := map[string]any{
		"model":       a.model,
		"max_tokens":  a.maxTokens,
		"temperature": a.temperature,
	}
	if openAI {
		payload["messages"] = []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": sourceText},
		}
	} else {
		payload["system"] = system
		payload["messages"] = []map[string]string{
			{"role": "user", "content": sourceText},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if openAI {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	} else {
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	}
	return req, nil
}

// completion accepts both the messages shape (content[].text) and the chat completions
// shape (choices[].message.content).
type completion struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c completion) text() string {
	var parts []string
	for _, block := range c.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if len(c.Choices) > 0 {
		return c.Choices[0].Message.Content
	}
	return ""
}

var dashReplacer = strings.NewReplacer("—", "-", "–", "-")

// StripDashes replaces em and en dashes with hyphens and trims the result.
func StripDashes(s string) string {
	return strings.TrimSpace(dashReplacer.Replace(s))
}

// SystemPrompt frames the model as a community manager writing in the given tone.
func SystemPrompt(style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		style = config.FallbackStyle
	}
	return strings.Join([]string{
		"You are a sharp Discord community manager. Tone: " + style,
		"",
		"Rewrite source posts into SHORT, punchy Discord announcements. Every word earns its place.",
		"",
		"FORMAT (6-10 lines max):",
		"1. HOOK: one bold line that grabs attention.",
		"2. FACTS: 2-3 short lines with the key info. Fragments, arrows and numbers are fine.",
		"3. LINK: \"Thread:\" followed by the URL if one is provided. Skip it otherwise.",
		"4. CLOSE: a short call to action.",
		"",
		"RULES:",
		"- Aim for under 150 words.",
		"- Never repeat the same hook or structure twice.",
		"- No em dashes or en dashes. Use hyphens, commas, colons.",
		"- Use real facts and numbers from the source. No filler.",
		"- NEVER ask for more info. NEVER say \"I'm ready to help\" or \"Could you provide\".",
		"- Output must ALWAYS be a finished announcement, never a question.",
	}, "\n")
}
