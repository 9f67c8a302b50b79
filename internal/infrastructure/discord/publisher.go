package discord

import (
	"context"
	"fmt"
	"unicode/utf8"

	"AnnounceRelay/internal/ports"
)

// Platform is the destination prefix routed to this publisher.
const Platform = "discord"

const maxMessageLength = 2000

// Publisher posts announcements into Discord channels.
type Publisher struct {
	session   Session
	humanizer *Humanizer
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher wires a session and an optional humanizer.
func NewPublisher(session Session, humanizer *Humanizer) *Publisher {
	return &Publisher{session: session, humanizer: humanizer}
}

// Platform implements ports.Publisher.
func (p *Publisher) Platform() string { return Platform }

// Publish shows a typing indicator, waits a human-like pause, then sends the text.
func (p *Publisher) Publish(ctx context.Context, channelID, text string) error {
	if p.session == nil {
		return fmt.Errorf("discord client not ready")
	}
	if err := p.session.ChannelTyping(channelID); err != nil {
		return fmt.Errorf("typing in %s: %w", channelID, err)
	}
	if p.humanizer != nil {
		if err := p.humanizer.Wait(ctx); err != nil {
			return err
		}
	}

	content := clip(p.humanizer.Text(text), maxMessageLength)
	if _, err := p.session.ChannelMessageSend(channelID, content, discordgoContext(ctx)); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	return nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
