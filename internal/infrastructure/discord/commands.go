package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"AnnounceRelay/internal/domain"
)

// Operations is what the command surface needs from the pipeline coordinator.
type Operations interface {
	IsOperator(actorID string) bool
	Resolve(ctx context.Context, id string, action domain.Action, actorID string) (domain.Resolution, error)
	Redraft(ctx context.Context, actorID string) (domain.PendingApproval, domain.RecentItem, error)
	Announce(ctx context.Context, actorID, topic string) (domain.PendingApproval, error)
	SetReviewRequired(actorID string, on bool) error
	SetAutonomousMode(actorID string, on bool) error
	SetKillSwitch(actorID string, engaged bool) error
	SetStyle(ctx context.Context, actorID, style string) error
	Status() domain.Status
}

// CommandOptions configures the slash command surface.
type CommandOptions struct {
	QueryChannelID   string
	AnnounceChannels []string
	MaxInputLength   int
	BotUserID        func() string
	Latency          func() time.Duration
	Uptime           func() time.Duration
}

// CommandHandler answers slash commands and review buttons.
type CommandHandler struct {
	session Session
	ops     Operations
	opts    CommandOptions
	logger  *slog.Logger
}

func NewCommandHandler(session Session, ops Operations, opts CommandOptions, logger *slog.Logger) *CommandHandler {
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = 1500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{session: session, ops: ops, opts: opts, logger: logger}
}

var onOffChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "on", Value: "on"},
	{Name: "off", Value: "off"},
}

func onOffOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "state",
		Description: description,
		Required:    true,
		Choices:     onOffChoices,
	}
}

// Commands lists the slash commands registered with Discord.
func Commands(maxInput int) []*discordgo.ApplicationCommand {
	minCount := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "announce",
			Description: "Generate an announcement draft from a topic",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "topic",
				Description: "Announcement topic or text to rewrite",
				Required:    true,
				MaxLength:   maxInput,
			}},
		},
		{Name: "draft", Description: "Re-draft an announcement from the last inbound post"},
		{
			Name:        "approve",
			Description: "Toggle whether inbound posts require review before publishing",
			Options:     []*discordgo.ApplicationCommandOption{onOffOption("on = require review, off = auto-post")},
		},
		{
			Name:        "autopost",
			Description: "Toggle autonomous scheduled posting",
			Options:     []*discordgo.ApplicationCommandOption{onOffOption("on = post topics on a schedule")},
		},
		{
			Name:        "killswitch",
			Description: "Engage or clear the kill switch for autonomous posting",
			Options:     []*discordgo.ApplicationCommandOption{onOffOption("on = stop all autonomous posting")},
		},
		{
			Name:        "style",
			Description: "Set the tone used for generated announcements",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "tone",
				Description: "Style directive",
				Required:    true,
				MaxLength:   maxInput,
			}},
		},
		{Name: "status", Description: "Show current bot status"},
		{Name: "help", Description: "Show all available commands and what they do"},
		{Name: "ping", Description: "Check if the bot is alive and responsive"},
		{
			Name:        "delete",
			Description: "Delete the last N bot messages from announce channels",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "count",
				Description: "Number of bot messages to delete (1-10)",
				Required:    true,
				MinValue:    &minCount,
				MaxValue:    10,
			}},
		},
	}
}

// RegisterCommands overwrites guild commands (and clears global ones) or, without guilds,
// registers globally.
func RegisterCommands(s Session, appID string, guildIDs []string, cmds []*discordgo.ApplicationCommand, logger *slog.Logger) error {
	if len(guildIDs) == 0 {
		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", cmds); err != nil {
			return fmt.Errorf("register global commands: %w", err)
		}
		logger.Info("global slash commands registered", "commands", len(cmds))
		return nil
	}

	for _, guildID := range guildIDs {
		if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
			return fmt.Errorf("register commands for guild %s: %w", guildID, err)
		}
		logger.Info("guild slash commands registered", "commands", len(cmds), "guild", guildID)
	}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		return fmt.Errorf("clear global commands: %w", err)
	}
	return nil
}

// Definitions returns the commands this handler answers.
func (h *CommandHandler) Definitions() []*discordgo.ApplicationCommand {
	return Commands(h.opts.MaxInputLength)
}

// Handle dispatches one interaction. Errors are reported to the invoking user.
func (h *CommandHandler) Handle(ctx context.Context, i *discordgo.Interaction) {
	var err error
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		err = h.handleButton(ctx, i)
	case discordgo.InteractionApplicationCommand:
		err = h.handleCommand(ctx, i)
	default:
		return
	}
	if err != nil {
		h.logger.Error("interaction handler failed", "error", err)
	}
}

func (h *CommandHandler) handleButton(ctx context.Context, i *discordgo.Interaction) error {
	customID := i.MessageComponentData().CustomID
	var (
		id     string
		action domain.Action
	)
	switch {
	case strings.HasPrefix(customID, approvePrefix):
		id, action = strings.TrimPrefix(customID, approvePrefix), domain.ActionPublish
	case strings.HasPrefix(customID, rejectPrefix):
		id, action = strings.TrimPrefix(customID, rejectPrefix), domain.ActionDiscard
	default:
		return nil
	}

	actor := actorID(i)
	if !h.ops.IsOperator(actor) {
		return h.reply(i, "Unauthorized.")
	}

	// publishing waits on humanized sends, so acknowledge first
	if err := h.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		return fmt.Errorf("defer button: %w", err)
	}

	res, err := h.ops.Resolve(ctx, id, action, actor)
	var content string
	switch {
	case errors.Is(err, domain.ErrNotFound):
		content = "This review has expired or was already handled."
	case errors.Is(err, domain.ErrUnauthorized):
		content = "Unauthorized."
	case err != nil:
		content = "Failed: " + err.Error()
	case action == domain.ActionDiscard:
		content = "Rejected and discarded."
	default:
		content = fmt.Sprintf("Posted to %d channel(s).", res.ChannelsPosted)
	}
	return h.edit(i, content, true)
}

func (h *CommandHandler) handleCommand(ctx context.Context, i *discordgo.Interaction) error {
	data := i.ApplicationCommandData()
	if q := h.opts.QueryChannelID; q != "" && i.ChannelID != q {
		return h.reply(i, fmt.Sprintf("Use slash commands in <#%s> only.", q))
	}

	actor := actorID(i)
	switch data.Name {
	case "help":
		return h.reply(i, helpText)
	case "ping":
		return h.reply(i, h.pingText())
	}

	if !h.ops.IsOperator(actor) {
		return h.reply(i, "Unauthorized.")
	}

	switch data.Name {
	case "announce":
		topic := stringOption(data, "topic")
		if n := len([]rune(topic)); n == 0 || n > h.opts.MaxInputLength {
			return h.reply(i, fmt.Sprintf("Topic must be 1-%d characters.", h.opts.MaxInputLength))
		}
		if err := h.deferReply(i); err != nil {
			return err
		}
		pa, err := h.ops.Announce(ctx, actor, topic)
		return h.edit(i, draftReply(pa, err, ""), false)

	case "draft":
		if err := h.deferReply(i); err != nil {
			return err
		}
		pa, recent, err := h.ops.Redraft(ctx, actor)
		if errors.Is(err, domain.ErrNoRecentItem) {
			return h.edit(i, "No inbound posts received yet. Wait for one to reach the webhook, then try again.", false)
		}
		return h.edit(i, draftReply(pa, err, receivedAgo(recent.ReceivedAt)), false)

	case "approve":
		on := stringOption(data, "state") == "on"
		if err := h.ops.SetReviewRequired(actor, on); err != nil {
			return h.reply(i, err.Error())
		}
		if on {
			return h.reply(i, "Approval gate **ON**. Inbound posts will be sent here for review before publishing.")
		}
		return h.reply(i, "Approval gate **OFF**. Inbound posts will auto-publish to announce channels.")

	case "autopost":
		on := stringOption(data, "state") == "on"
		if err := h.ops.SetAutonomousMode(actor, on); err != nil {
			if errors.Is(err, domain.ErrKillSwitchEngaged) {
				return h.reply(i, "Kill switch is engaged. Clear it with `/killswitch off` first.")
			}
			return h.reply(i, err.Error())
		}
		return h.reply(i, fmt.Sprintf("Autonomous posting **%s**.", onOff(on)))

	case "killswitch":
		on := stringOption(data, "state") == "on"
		if err := h.ops.SetKillSwitch(actor, on); err != nil {
			return h.reply(i, err.Error())
		}
		if on {
			return h.reply(i, "Kill switch **ENGAGED**. Autonomous posting is off.")
		}
		return h.reply(i, "Kill switch cleared. Autonomous posting stays off until `/autopost on`.")

	case "style":
		if err := h.ops.SetStyle(ctx, actor, stringOption(data, "tone")); err != nil {
			return h.reply(i, "Style not saved: "+err.Error())
		}
		return h.reply(i, "Style updated.")

	case "status":
		return h.reply(i, h.statusText(h.ops.Status()))

	case "delete":
		count := int(intOption(data, "count"))
		if count < 1 || count > 10 {
			return h.reply(i, "Count must be between 1 and 10.")
		}
		if err := h.deferReply(i); err != nil {
			return err
		}
		return h.edit(i, h.deleteRecent(ctx, count), false)
	}
	return h.reply(i, "Unknown command.")
}

// deleteRecent removes up to count bot messages per announce channel.
func (h *CommandHandler) deleteRecent(ctx context.Context, count int) string {
	if len(h.opts.AnnounceChannels) == 0 {
		return "No announce channels configured."
	}
	botID := ""
	if h.opts.BotUserID != nil {
		botID = h.opts.BotUserID()
	}

	deleted := 0
	for _, channelID := range h.opts.AnnounceChannels {
		msgs, err := h.session.ChannelMessages(channelID, 50, "", "", "", discordgoContext(ctx))
		if err != nil {
			h.logger.Error("fetch messages failed", "channel", channelID, "error", err)
			continue
		}
		removed := 0
		for _, m := range msgs {
			if removed == count {
				break
			}
			if m.Author == nil || m.Author.ID != botID {
				continue
			}
			if err := h.session.ChannelMessageDelete(channelID, m.ID, discordgoContext(ctx)); err != nil {
				h.logger.Error("delete from channel failed", "channel", channelID, "error", err)
				continue
			}
			removed++
		}
		deleted += removed
	}
	return fmt.Sprintf("Deleted %d bot message(s) across %d channel(s).", deleted, len(h.opts.AnnounceChannels))
}

func (h *CommandHandler) statusText(st domain.Status) string {
	review := "OFF (auto-publish)"
	if st.ReviewRequired {
		review = "ON (review before publish)"
	}
	query := "not configured"
	if h.opts.QueryChannelID != "" {
		query = "<#" + h.opts.QueryChannelID + ">"
	}
	lines := []string{
		"**Approval gate:** " + review,
		fmt.Sprintf("**Pending reviews:** %d", st.PendingApprovals),
		fmt.Sprintf("**Recent fingerprints:** %d", st.Fingerprints),
		"**Autonomous posting:** " + onOff(st.AutonomousMode),
		"**Kill switch:** " + onOff(st.KillSwitchEngaged),
		fmt.Sprintf("**Topics:** %d (next #%d)", st.ConfiguredTopics, st.NextTopicCursor),
		"**Style:** " + st.Style,
		"**Query channel:** " + query,
		fmt.Sprintf("**Destinations:** %d", st.Destinations),
		"**Last inbound post:** " + stamp(st.LastInboundAt),
		"**Last autonomous post:** " + stamp(st.LastAutoPublishAt),
	}
	if st.ShadowMode {
		lines = append(lines, "**Shadow mode:** ON (inbound posts are stored only)")
	}
	return strings.Join(lines, "\n")
}

func (h *CommandHandler) pingText() string {
	var uptime, latency time.Duration
	if h.opts.Uptime != nil {
		uptime = h.opts.Uptime()
	}
	if h.opts.Latency != nil {
		latency = h.opts.Latency()
	}
	return fmt.Sprintf("Pong. Uptime: %s. WS latency: %dms.", uptime.Truncate(time.Second), latency.Milliseconds())
}

func (h *CommandHandler) reply(i *discordgo.Interaction, content string) error {
	return h.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (h *CommandHandler) deferReply(i *discordgo.Interaction) error {
	return h.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (h *CommandHandler) edit(i *discordgo.Interaction, content string, clearComponents bool) error {
	edit := &discordgo.WebhookEdit{Content: &content}
	if clearComponents {
		edit.Components = &[]discordgo.MessageComponent{}
	}
	_, err := h.session.InteractionResponseEdit(i, edit)
	return err
}

const helpText = `**Bot Commands Guide**

**Announcements**
` + "`/announce topic:`" + ` - Generate a draft from a topic (review buttons appear in the command channel)
` + "`/draft`" + ` - Re-draft from the last inbound post
` + "`/delete count:`" + ` - Delete last N bot messages from announce channels
` + "`/style tone:`" + ` - Change the tone of generated announcements

**Gates**
` + "`/approve on|off`" + ` - Require review for inbound posts, or auto-publish
` + "`/autopost on|off`" + ` - Toggle autonomous scheduled posts
` + "`/killswitch on|off`" + ` - Emergency stop for autonomous posting

**Info**
` + "`/status`" + ` - Show bot status
` + "`/ping`" + ` - Check if bot is alive
` + "`/help`" + ` - This message`

func draftReply(pa domain.PendingApproval, err error, received string) string {
	switch {
	case errors.Is(err, domain.ErrMetaResponse):
		return "Blocked: generation produced a meta/help response instead of an announcement. Try again with more specific input."
	case errors.Is(err, domain.ErrGenerationTimedOut):
		return "Generation timed out. Try again."
	case err != nil:
		return "Generation failed: " + err.Error()
	}
	head := "**Draft**"
	if received != "" {
		head = fmt.Sprintf("**Draft from last inbound post** (received %s)", received)
	}
	return fmt.Sprintf("%s queued as `%s`:\n%s\n\nUse the Post/Reject buttons in the command channel.", head, pa.ID, clip(pa.GeneratedText, reviewPreviewLength))
}

func receivedAgo(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	ago := time.Since(at)
	if ago < time.Hour {
		return fmt.Sprintf("%dm ago", int(ago.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(ago.Hours()))
}

func actorID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, o := range data.Options {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(o.StringValue())
		}
	}
	return ""
}

func intOption(data discordgo.ApplicationCommandInteractionData, name string) int64 {
	for _, o := range data.Options {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionInteger {
			return o.IntValue()
		}
	}
	return 0
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.UTC().Format(time.RFC3339)
}
