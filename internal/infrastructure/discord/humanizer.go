package discord

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"AnnounceRelay/internal/config"
)

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// Humanizer makes bot posts look typed: a random pause and an occasional trailing emoji.
type Humanizer struct {
	minDelay    time.Duration
	maxDelay    time.Duration
	emojiChance float64
	emojis      []string
	float       func() float64
}

// NewHumanizer builds a humanizer from config.
func NewHumanizer(cfg config.HumanizeConfig) *Humanizer {
	return &Humanizer{
		minDelay:    cfg.MinDelay,
		maxDelay:    cfg.MaxDelay,
		emojiChance: cfg.EmojiChance,
		emojis:      cfg.EmojiSet,
		float:       rand.Float64,
	}
}

// Text collapses runs of blank lines and maybe appends an emoji.
func (h *Humanizer) Text(text string) string {
	out := strings.TrimSpace(extraNewlines.ReplaceAllString(text, "\n\n"))
	if h == nil || len(h.emojis) == 0 {
		return out
	}
	if h.float() < h.emojiChance {
		out += " " + h.emojis[int(h.float()*float64(len(h.emojis)))%len(h.emojis)]
	}
	return out
}

// Delay picks a pause in [minDelay, maxDelay].
func (h *Humanizer) Delay() time.Duration {
	if h == nil {
		return 0
	}
	if h.maxDelay <= h.minDelay {
		return h.minDelay
	}
	return h.minDelay + time.Duration(h.float()*float64(h.maxDelay-h.minDelay))
}

// Wait sleeps for Delay or until ctx is done.
func (h *Humanizer) Wait(ctx context.Context) error {
	d := h.Delay()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
