package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/ports"
)

const (
	approvePrefix = "approval_yes_"
	rejectPrefix  = "approval_no_"

	reviewPreviewLength = 1800
)

// ReviewNotifier posts pending approvals to the operator channel with Post/Reject buttons.
type ReviewNotifier struct {
	session   Session
	channelID string
	logger    *slog.Logger
}

var _ ports.ReviewNotifier = (*ReviewNotifier)(nil)

func NewReviewNotifier(session Session, channelID string, logger *slog.Logger) *ReviewNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewNotifier{session: session, channelID: channelID, logger: logger}
}

// NotifyReview is a no-op without a configured channel; operators can still resolve by id.
func (n *ReviewNotifier) NotifyReview(ctx context.Context, pa domain.PendingApproval) error {
	if n.session == nil || n.channelID == "" {
		return nil
	}

	content := fmt.Sprintf("**%s for review** (`%s`):\n%s", reviewTitle(pa.Origin), pa.ID, clip(pa.GeneratedText, reviewPreviewLength))
	if pa.SourceURL != "" {
		content += "\n\nSource: " + pa.SourceURL
	}

	_, err := n.session.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{
		Content:    content,
		Components: reviewButtons(pa.ID),
	}, discordgoContext(ctx))
	if err != nil {
		return fmt.Errorf("send review to %s: %w", n.channelID, err)
	}
	n.logger.Info("approval review sent to command channel", "approval_id", pa.ID, "channel", n.channelID)
	return nil
}

func reviewButtons(id string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Post", Style: discordgo.SuccessButton, CustomID: approvePrefix + id},
			discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: rejectPrefix + id},
		}},
	}
}

func reviewTitle(origin domain.Origin) string {
	switch origin {
	case domain.OriginOperator:
		return "Draft"
	case domain.OriginScheduler:
		return "Scheduled post"
	default:
		return "Webhook post"
	}
}

func discordgoContext(ctx context.Context) discordgo.RequestOption {
	return discordgo.WithContext(ctx)
}
