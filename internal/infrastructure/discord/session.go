package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session is the slice of the discordgo REST client this package relies on.
type Session interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

var _ Session = (*discordgo.Session)(nil)

// Gateway owns the bot's websocket connection.
type Gateway struct {
	session  *discordgo.Session
	guildIDs []string
	logger   *slog.Logger
	started  time.Time
}

// NewGateway prepares a bot session; nothing is opened until Start.
func NewGateway(token string, guildIDs []string, logger *slog.Logger) (*Gateway, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{session: s, guildIDs: guildIDs, logger: logger}, nil
}

// Session exposes the REST client for publishers and notifiers.
func (g *Gateway) Session() Session {
	return g.session
}

// BotUserID is empty until the gateway reports ready.
func (g *Gateway) BotUserID() string {
	if g.session.State == nil || g.session.State.User == nil {
		return ""
	}
	return g.session.State.User.ID
}

// Latency reports the last heartbeat round-trip.
func (g *Gateway) Latency() time.Duration {
	return g.session.HeartbeatLatency()
}

// Uptime is measured from Start.
func (g *Gateway) Uptime() time.Duration {
	if g.started.IsZero() {
		return 0
	}
	return time.Since(g.started)
}

// Start registers handlers, connects, and registers slash commands once ready.
func (g *Gateway) Start(ctx context.Context, commands *CommandHandler) error {
	g.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		g.logger.Info("discord bot ready", "bot", r.User.Username)
		if commands == nil {
			return
		}
		if err := RegisterCommands(s, r.User.ID, g.guildIDs, commands.Definitions(), g.logger); err != nil {
			g.logger.Error("slash command registration failed", "error", err)
		}
	})
	if commands != nil {
		g.session.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
			commands.Handle(ctx, ic.Interaction)
		})
	}

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	g.started = time.Now()
	g.logger.Info("discord gateway started")
	return nil
}

// Close disconnects the websocket.
func (g *Gateway) Close() error {
	return g.session.Close()
}
