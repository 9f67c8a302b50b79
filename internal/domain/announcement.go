package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Origin tells where a candidate entered the pipeline.
type Origin string

const (
	OriginWebhook   Origin = "webhook"
	OriginScheduler Origin = "scheduler"
	OriginOperator  Origin = "operator"
)

// InboundCandidate is a piece of source text eligible for transformation into an announcement.
type InboundCandidate struct {
	SourceText string
	SourceURL  string
	Origin     Origin
	ReceivedAt time.Time
}

// Fingerprint is the digest of normalized source text used by the duplicate window.
type Fingerprint string

// FingerprintOf hashes the trimmed, case-folded text.
func FingerprintOf(text string) Fingerprint {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// PendingApproval is a generated announcement waiting for an operator decision.
type PendingApproval struct {
	ID            string
	SourceText    string
	GeneratedText string
	SourceURL     string
	Origin        Origin
	CreatedAt     time.Time
}

// Action is an operator decision on a pending approval.
type Action string

const (
	ActionPublish Action = "publish"
	ActionDiscard Action = "discard"
)

// OutcomeStatus enumerates terminal answers of the pipeline for a single candidate.
type OutcomeStatus string

const (
	StatusStored        OutcomeStatus = "stored"
	StatusPendingReview OutcomeStatus = "pending_review"
	StatusPosted        OutcomeStatus = "posted"
)

// Outcome is what a caller learns after submitting a candidate.
type Outcome struct {
	Status         OutcomeStatus
	ApprovalID     string
	Preview        string
	GeneratedText  string
	ChannelsPosted int
}

// Resolution reports the effect of resolving a pending approval.
type Resolution struct {
	ID             string
	Action         Action
	ChannelsPosted int
}

// Publication is an audit record of one dispatch attempt.
type Publication struct {
	Origin     Origin
	ApprovalID string
	Text       string
	SourceURL  string
	Delivered  int
	Targets    int
	CreatedAt  time.Time
}

// RecentItem is the single-slot memory of the latest valid inbound item.
type RecentItem struct {
	Text       string
	URL        string
	ReceivedAt time.Time
}

// Status is a read-only snapshot for operators.
type Status struct {
	ReviewRequired    bool
	AutonomousMode    bool
	KillSwitchEngaged bool
	ShadowMode        bool
	PendingApprovals  int
	Fingerprints      int
	Destinations      int
	ConfiguredTopics  int
	NextTopicCursor   int
	Style             string
	LastAcceptedAt    time.Time
	LastAutoPublishAt time.Time
	LastInboundAt     time.Time
}
