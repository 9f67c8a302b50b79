package ports

import (
	"context"
	"time"

	"AnnounceRelay/internal/domain"
)

// Generator turns raw source text into announcement prose given a style directive.
type Generator interface {
	Generate(ctx context.Context, sourceText, style string) (string, error)
}

// Publisher delivers final text to a single destination on one chat platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, destinationID, text string) error
}

// ReviewNotifier shows a pending approval to operators with Publish/Discard actions.
type ReviewNotifier interface {
	NotifyReview(ctx context.Context, approval domain.PendingApproval) error
}

// StyleStore remembers the operator-tunable style directive.
type StyleStore interface {
	LoadStyle(ctx context.Context) (string, bool, error)
	SaveStyle(ctx context.Context, style string) error
}

// PublicationLog keeps an audit trail of dispatch attempts.
type PublicationLog interface {
	RecordPublication(ctx context.Context, pub domain.Publication) error
	RecentPublications(ctx context.Context, limit uint64) ([]domain.Publication, error)
}

// Scheduler drives a job at a fixed cadence without overlapping runs.
type Scheduler interface {
	Start(ctx context.Context, job func(context.Context, time.Time)) error
	Stop(ctx context.Context) error
}
