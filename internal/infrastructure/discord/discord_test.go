package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnnounceRelay/internal/config"
	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/logging"
)

type sentMessage struct {
	channel string
	content string
	complex *discordgo.MessageSend
}

type fakeSession struct {
	mu         sync.Mutex
	typing     []string
	sent       []sentMessage
	responses  []*discordgo.InteractionResponse
	edits      []string
	deleted    []string
	history    map[string][]*discordgo.Message
	overwrites map[string]int
	sendErr    error
}

func newFakeSession() *fakeSession {
	return &fakeSession{history: map[string][]*discordgo.Message{}, overwrites: map[string]int{}}
}

func (f *fakeSession) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, channelID)
	return nil
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channel: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: channelID, content: data.Content, complex: data})
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessages(channelID string, _ int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[channelID], nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if edit.Content != nil {
		f.edits = append(f.edits, *edit.Content)
	}
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ApplicationCommandBulkOverwrite(_, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overwrites[guildID] = len(cmds)
	return cmds, nil
}

func (f *fakeSession) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 || f.responses[len(f.responses)-1].Data == nil {
		return ""
	}
	return f.responses[len(f.responses)-1].Data.Content
}

func (f *fakeSession) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

type fakeOps struct {
	resolved   []string
	resolveErr error
	killErr    error
	review     *bool
	status     domain.Status
}

func (o *fakeOps) IsOperator(id string) bool { return id == "admin" }

func (o *fakeOps) Resolve(_ context.Context, id string, action domain.Action, _ string) (domain.Resolution, error) {
	if o.resolveErr != nil {
		return domain.Resolution{}, o.resolveErr
	}
	o.resolved = append(o.resolved, string(action)+":"+id)
	return domain.Resolution{ID: id, Action: action, ChannelsPosted: 2}, nil
}

func (o *fakeOps) Redraft(context.Context, string) (domain.PendingApproval, domain.RecentItem, error) {
	return domain.PendingApproval{}, domain.RecentItem{}, domain.ErrNoRecentItem
}

func (o *fakeOps) Announce(_ context.Context, _, topic string) (domain.PendingApproval, error) {
	return domain.PendingApproval{ID: "m-1", GeneratedText: "About " + topic}, nil
}

func (o *fakeOps) SetReviewRequired(_ string, on bool) error {
	o.review = &on
	return nil
}

func (o *fakeOps) SetAutonomousMode(string, bool) error { return o.killErr }
func (o *fakeOps) SetKillSwitch(string, bool) error     { return nil }
func (o *fakeOps) SetStyle(context.Context, string, string) error {
	return nil
}
func (o *fakeOps) Status() domain.Status { return o.status }

func command(name, channel, user string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: channel,
		Member:    &discordgo.Member{User: &discordgo.User{ID: user}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func button(customID, user string) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: user},
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func strOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func newHandler(s *fakeSession, ops *fakeOps) *CommandHandler {
	return NewCommandHandler(s, ops, CommandOptions{
		QueryChannelID:   "query",
		AnnounceChannels: []string{"c1", "c2"},
		MaxInputLength:   20,
		BotUserID:        func() string { return "bot" },
	}, logging.Discard())
}

func TestHumanizerText(t *testing.T) {
	t.Parallel()

	h := NewHumanizer(config.HumanizeConfig{EmojiChance: 0.5, EmojiSet: []string{"🚀", "🔥"}})
	h.float = func() float64 { return 0.1 }
	assert.Equal(t, "a\n\nb 🚀", h.Text("a\n\n\n\nb  "))

	h.float = func() float64 { return 0.9 }
	assert.Equal(t, "a\n\nb", h.Text("a\n\n\nb"))

	h = NewHumanizer(config.HumanizeConfig{MinDelay: time.Second, MaxDelay: 3 * time.Second})
	h.float = func() float64 { return 0.5 }
	assert.Equal(t, 2*time.Second, h.Delay())
}

func TestPublisherTypesThenSends(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	p := NewPublisher(s, NewHumanizer(config.HumanizeConfig{}))

	require.NoError(t, p.Publish(context.Background(), "c1", strings.Repeat("x", 2100)))
	assert.Equal(t, []string{"c1"}, s.typing)
	require.Len(t, s.sent, 1)
	assert.Len(t, s.sent[0].content, maxMessageLength)

	s.sendErr = errors.New("missing access")
	assert.ErrorContains(t, p.Publish(context.Background(), "c2", "hi"), "missing access")
}

func TestReviewNotifierSendsButtons(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	n := NewReviewNotifier(s, "query", logging.Discard())

	err := n.NotifyReview(context.Background(), domain.PendingApproval{
		ID: "w-1", GeneratedText: "Launch!", SourceURL: "https://x.com/a/status/1", Origin: domain.OriginWebhook,
	})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	assert.Equal(t, "query", msg.channel)
	assert.Contains(t, msg.content, "Launch!")
	assert.Contains(t, msg.content, "Source: https://x.com/a/status/1")

	row, ok := msg.complex.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	yes := row.Components[0].(discordgo.Button)
	no := row.Components[1].(discordgo.Button)
	assert.Equal(t, "approval_yes_w-1", yes.CustomID)
	assert.Equal(t, "approval_no_w-1", no.CustomID)

	assert.NoError(t, NewReviewNotifier(s, "", nil).NotifyReview(context.Background(), domain.PendingApproval{ID: "x"}))
	assert.Len(t, s.sent, 1)
}

func TestButtonResolvesApproval(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	ops := &fakeOps{}
	h := newHandler(s, ops)

	h.Handle(context.Background(), button("approval_yes_w-1", "admin"))
	assert.Equal(t, []string{"publish:w-1"}, ops.resolved)
	assert.Equal(t, "Posted to 2 channel(s).", s.lastEdit())

	h.Handle(context.Background(), button("approval_no_w-2", "admin"))
	assert.Equal(t, "Rejected and discarded.", s.lastEdit())

	ops.resolveErr = domain.ErrNotFound
	h.Handle(context.Background(), button("approval_yes_w-1", "admin"))
	assert.Equal(t, "This review has expired or was already handled.", s.lastEdit())

	h.Handle(context.Background(), button("approval_yes_w-3", "stranger"))
	assert.Equal(t, "Unauthorized.", s.lastReply())
	assert.Len(t, ops.resolved, 2)
}

func TestCommandChannelRestrictionAndAuth(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	ops := &fakeOps{}
	h := newHandler(s, ops)

	h.Handle(context.Background(), command("status", "general", "admin"))
	assert.Equal(t, "Use slash commands in <#query> only.", s.lastReply())

	h.Handle(context.Background(), command("status", "query", "stranger"))
	assert.Equal(t, "Unauthorized.", s.lastReply())

	h.Handle(context.Background(), command("help", "query", "stranger"))
	assert.Contains(t, s.lastReply(), "/killswitch")

	h.Handle(context.Background(), command("approve", "query", "admin", strOpt("state", "off")))
	require.NotNil(t, ops.review)
	assert.False(t, *ops.review)
	assert.Contains(t, s.lastReply(), "OFF")

	ops.killErr = domain.ErrKillSwitchEngaged
	h.Handle(context.Background(), command("autopost", "query", "admin", strOpt("state", "on")))
	assert.Contains(t, s.lastReply(), "Kill switch is engaged")
}

func TestAnnounceAndDraftCommands(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	h := newHandler(s, &fakeOps{})

	h.Handle(context.Background(), command("announce", "query", "admin", strOpt("topic", strings.Repeat("x", 21))))
	assert.Equal(t, "Topic must be 1-20 characters.", s.lastReply())

	h.Handle(context.Background(), command("announce", "query", "admin", strOpt("topic", "staking")))
	assert.Contains(t, s.lastEdit(), "`m-1`")
	assert.Contains(t, s.lastEdit(), "About staking")

	h.Handle(context.Background(), command("draft", "query", "admin"))
	assert.Contains(t, s.lastEdit(), "No inbound posts received yet")
}

func TestDeleteRemovesOnlyBotMessages(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	s.history["c1"] = []*discordgo.Message{
		{ID: "1", Author: &discordgo.User{ID: "bot"}},
		{ID: "2", Author: &discordgo.User{ID: "human"}},
		{ID: "3", Author: &discordgo.User{ID: "bot"}},
		{ID: "4", Author: &discordgo.User{ID: "bot"}},
	}
	h := newHandler(s, &fakeOps{})

	h.Handle(context.Background(), command("delete", "query", "admin",
		&discordgo.ApplicationCommandInteractionDataOption{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(2)}))

	assert.Equal(t, []string{"c1/1", "c1/3"}, s.deleted)
	assert.Equal(t, "Deleted 2 bot message(s) across 2 channel(s).", s.lastEdit())
}

func TestRegisterCommands(t *testing.T) {
	t.Parallel()
	s := newFakeSession()
	cmds := Commands(1500)

	require.NoError(t, RegisterCommands(s, "app", []string{"g1", "g2"}, cmds, logging.Discard()))
	assert.Equal(t, map[string]int{"g1": len(cmds), "g2": len(cmds), "": 0}, s.overwrites)

	s = newFakeSession()
	require.NoError(t, RegisterCommands(s, "app", nil, cmds, logging.Discard()))
	assert.Equal(t, map[string]int{"": len(cmds)}, s.overwrites)
}
