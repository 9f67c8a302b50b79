package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"AnnounceRelay/internal/admission"
	"AnnounceRelay/internal/approval"
	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/gate"
	"AnnounceRelay/internal/metrics"
	"AnnounceRelay/internal/ports"
)

const previewLength = 200

// Dispatcher delivers final text to every configured destination and reports the count.
type Dispatcher interface {
	Dispatch(ctx context.Context, text, sourceURL string) int
}

// Settings carries the tunables the coordinator needs at construction time.
type Settings struct {
	ReviewRequired    bool
	Shadow            bool
	GenerationTimeout time.Duration
	DefaultStyle      string
	MaxOperatorInput  int
	Operators         []string

	AutopilotEnabled  bool
	AutopilotCooldown time.Duration
	Topics            []string
}

// PipelineDeps wires the gates, ledger and driven adapters into the coordinator.
type PipelineDeps struct {
	Gate         *gate.ContentGate
	Admission    *admission.Controller
	Ledger       *approval.Ledger
	Dispatcher   Dispatcher
	Generator    ports.Generator
	Reviews      ports.ReviewNotifier
	Styles       ports.StyleStore
	Publications ports.PublicationLog
	Destinations int
	Logger       *slog.Logger
	Now          func() time.Time
	Settings     Settings
}

// PipelineCoordinator owns all process-wide pipeline state: admission, the approval ledger,
// operator modes and the autonomous scheduler state. One instance is shared by the inbound
// handler, the operator surfaces and the scheduler.
type PipelineCoordinator struct {
	gate         *gate.ContentGate
	admission    *admission.Controller
	ledger       *approval.Ledger
	dispatcher   Dispatcher
	generator    ports.Generator
	reviews      ports.ReviewNotifier
	styles       ports.StyleStore
	publications ports.PublicationLog
	destinations int
	logger       *slog.Logger
	now          func() time.Time

	generationTimeout time.Duration
	maxOperatorInput  int
	operators         map[string]struct{}
	shadow            bool
	topics            []string
	autoCooldown      time.Duration

	mu                sync.Mutex
	reviewRequired    bool
	style             string
	recent            *domain.RecentItem
	autonomousMode    bool
	killSwitch        bool
	lastAutoPublishAt time.Time
	topicCursor       int
}

// NewPipelineCoordinator constructs the coordinator. Missing optional collaborators are tolerated.
func NewPipelineCoordinator(deps PipelineDeps) *PipelineCoordinator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := deps.Settings
	if s.GenerationTimeout <= 0 {
		s.GenerationTimeout = 10 * time.Second
	}
	if s.MaxOperatorInput <= 0 {
		s.MaxOperatorInput = 1500
	}
	if s.AutopilotCooldown <= 0 {
		s.AutopilotCooldown = time.Hour
	}

	ops := make(map[string]struct{}, len(s.Operators))
	for _, id := range s.Operators {
		if id = strings.TrimSpace(id); id != "" {
			ops[id] = struct{}{}
		}
	}

	return &PipelineCoordinator{
		gate:              deps.Gate,
		admission:         deps.Admission,
		ledger:            deps.Ledger,
		dispatcher:        deps.Dispatcher,
		generator:         deps.Generator,
		reviews:           deps.Reviews,
		styles:            deps.Styles,
		publications:      deps.Publications,
		destinations:      deps.Destinations,
		logger:            logger,
		now:               now,
		generationTimeout: s.GenerationTimeout,
		maxOperatorInput:  s.MaxOperatorInput,
		operators:         ops,
		shadow:            s.Shadow,
		topics:            append([]string(nil), s.Topics...),
		autoCooldown:      s.AutopilotCooldown,
		reviewRequired:    s.ReviewRequired,
		style:             s.DefaultStyle,
		autonomousMode:    s.AutopilotEnabled,
	}
}

// RestoreStyle loads a persisted style directive, keeping the default when none is stored.
func (p *PipelineCoordinator) RestoreStyle(ctx context.Context) {
	if p.styles == nil {
		return
	}
	saved, ok, err := p.styles.LoadStyle(ctx)
	if err != nil {
		p.logger.Warn("style memory load failed", "error", err)
		return
	}
	if !ok || strings.TrimSpace(saved) == "" {
		return
	}
	p.mu.Lock()
	p.style = saved
	p.mu.Unlock()
	p.logger.Info("style memory restored")
}

// IsOperator reports whether actorID is on the operator allow-list.
func (p *PipelineCoordinator) IsOperator(actorID string) bool {
	_, ok := p.operators[actorID]
	return ok
}

// SubmitInbound runs an inbound payload through every gate and either stores it, queues it
// for review or publishes it.
func (p *PipelineCoordinator) SubmitInbound(ctx context.Context, payload gate.Payload) (domain.Outcome, error) {
	candidate, err := p.gate.Check(payload, p.now())
	if err != nil {
		p.count(domain.OriginWebhook, err)
		return domain.Outcome{}, err
	}

	p.mu.Lock()
	p.recent = &domain.RecentItem{Text: candidate.SourceText, URL: candidate.SourceURL, ReceivedAt: candidate.ReceivedAt}
	reviewRequired := p.reviewRequired
	p.mu.Unlock()

	if _, err := p.admission.Admit(candidate.SourceText); err != nil {
		p.count(domain.OriginWebhook, err)
		return domain.Outcome{}, err
	}

	if p.shadow {
		metrics.Admissions.WithLabelValues(string(domain.OriginWebhook), string(domain.StatusStored)).Inc()
		return domain.Outcome{Status: domain.StatusStored}, nil
	}

	// the caller going away must not abandon an admitted candidate halfway
	ctx = context.WithoutCancel(ctx)

	outcome, err := p.process(ctx, candidate, reviewRequired)
	p.count(domain.OriginWebhook, err, outcome.Status)
	return outcome, err
}

// process generates, safety-checks and routes an admitted candidate.
func (p *PipelineCoordinator) process(ctx context.Context, c domain.InboundCandidate, reviewRequired bool) (domain.Outcome, error) {
	generated, err := p.generate(ctx, composeRewrite(c.SourceText, c.SourceURL))
	if err != nil {
		p.admission.Release(c.SourceText)
		p.logger.Error("announcement generation failed", "origin", c.Origin, "error", err)
		return domain.Outcome{}, err
	}

	if err := gate.CheckOutput(generated); err != nil {
		p.logger.Warn("generation returned a meta response instead of an announcement; blocked",
			"origin", c.Origin, "preview", truncate(generated, previewLength))
		return domain.Outcome{}, err
	}

	if reviewRequired {
		pa := p.queue(ctx, c.SourceText, generated, c.SourceURL, c.Origin)
		return domain.Outcome{
			Status:        domain.StatusPendingReview,
			ApprovalID:    pa.ID,
			Preview:       truncate(generated, previewLength),
			GeneratedText: generated,
		}, nil
	}

	posted := p.publish(ctx, c.Origin, "", generated, c.SourceURL)
	return domain.Outcome{
		Status:         domain.StatusPosted,
		GeneratedText:  generated,
		ChannelsPosted: posted,
	}, nil
}

// Resolve applies an operator decision to a pending approval. Dispatch failures are reported
// through the returned count; the entry is deleted either way.
func (p *PipelineCoordinator) Resolve(ctx context.Context, id string, action domain.Action, actorID string) (domain.Resolution, error) {
	if !p.IsOperator(actorID) {
		return domain.Resolution{}, fmt.Errorf("%w: %s is not an operator", domain.ErrUnauthorized, actorID)
	}
	if action != domain.ActionPublish && action != domain.ActionDiscard {
		return domain.Resolution{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidPayload, action)
	}

	pa, err := p.ledger.Claim(id)
	if err != nil {
		return domain.Resolution{}, err
	}
	defer func() {
		p.ledger.Finish(id)
		metrics.PendingApprovals.Set(float64(p.ledger.Len()))
	}()

	res := domain.Resolution{ID: id, Action: action}
	if action == domain.ActionDiscard {
		p.logger.Info("approval discarded", "approval_id", id, "actor", actorID)
		return res, nil
	}

	res.ChannelsPosted = p.publish(context.WithoutCancel(ctx), pa.Origin, id, pa.GeneratedText, pa.SourceURL)
	p.logger.Info("approval published", "approval_id", id, "actor", actorID, "channels", res.ChannelsPosted)
	return res, nil
}

// Redraft regenerates an announcement from the most recent inbound item and queues it for review.
func (p *PipelineCoordinator) Redraft(ctx context.Context, actorID string) (domain.PendingApproval, domain.RecentItem, error) {
	if !p.IsOperator(actorID) {
		return domain.PendingApproval{}, domain.RecentItem{}, domain.ErrUnauthorized
	}
	p.mu.Lock()
	recent := p.recent
	p.mu.Unlock()
	if recent == nil || recent.Text == "" {
		return domain.PendingApproval{}, domain.RecentItem{}, domain.ErrNoRecentItem
	}

	pa, err := p.draft(ctx, recent.Text, composeSource(recent.Text, recent.URL), recent.URL)
	return pa, *recent, err
}

// Announce generates an announcement from an operator-supplied topic and queues it for review.
func (p *PipelineCoordinator) Announce(ctx context.Context, actorID, topic string) (domain.PendingApproval, error) {
	if !p.IsOperator(actorID) {
		return domain.PendingApproval{}, domain.ErrUnauthorized
	}
	topic = strings.TrimSpace(topic)
	if n := utf8.RuneCountInString(topic); n == 0 || n > p.maxOperatorInput {
		return domain.PendingApproval{}, fmt.Errorf("%w: topic must be 1-%d characters", domain.ErrInvalidPayload, p.maxOperatorInput)
	}
	return p.draft(ctx, topic, topic, "")
}

func (p *PipelineCoordinator) draft(ctx context.Context, sourceText, prompt, sourceURL string) (domain.PendingApproval, error) {
	generated, err := p.generate(context.WithoutCancel(ctx), prompt)
	if err != nil {
		p.count(domain.OriginOperator, err)
		return domain.PendingApproval{}, err
	}
	if err := gate.CheckOutput(generated); err != nil {
		p.count(domain.OriginOperator, err)
		return domain.PendingApproval{}, err
	}
	pa := p.queue(ctx, sourceText, generated, sourceURL, domain.OriginOperator)
	metrics.Admissions.WithLabelValues(string(domain.OriginOperator), string(domain.StatusPendingReview)).Inc()
	return pa, nil
}

// SetReviewRequired toggles review mode.
func (p *PipelineCoordinator) SetReviewRequired(actorID string, on bool) error {
	if !p.IsOperator(actorID) {
		return domain.ErrUnauthorized
	}
	p.mu.Lock()
	p.reviewRequired = on
	p.mu.Unlock()
	p.logger.Info("review mode changed", "review_required", on, "actor", actorID)
	return nil
}

// SetAutonomousMode toggles autonomous posting; enabling is refused while the kill switch is engaged.
func (p *PipelineCoordinator) SetAutonomousMode(actorID string, on bool) error {
	if !p.IsOperator(actorID) {
		return domain.ErrUnauthorized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if on && p.killSwitch {
		return fmt.Errorf("%w: clear the kill switch before enabling autonomous mode", domain.ErrKillSwitchEngaged)
	}
	p.autonomousMode = on
	p.logger.Info("autonomous mode changed", "autonomous", on, "actor", actorID)
	return nil
}

// SetKillSwitch engages or clears the kill switch. Engaging also turns autonomous mode off,
// clearing does not turn it back on.
func (p *PipelineCoordinator) SetKillSwitch(actorID string, engaged bool) error {
	if !p.IsOperator(actorID) {
		return domain.ErrUnauthorized
	}
	p.mu.Lock()
	p.killSwitch = engaged
	if engaged {
		p.autonomousMode = false
	}
	p.mu.Unlock()
	p.logger.Warn("kill switch changed", "engaged", engaged, "actor", actorID)
	return nil
}

// SetStyle replaces the style directive and persists it when a store is configured.
func (p *PipelineCoordinator) SetStyle(ctx context.Context, actorID, style string) error {
	if !p.IsOperator(actorID) {
		return domain.ErrUnauthorized
	}
	style = strings.TrimSpace(style)
	if n := utf8.RuneCountInString(style); n == 0 || n > p.maxOperatorInput {
		return fmt.Errorf("%w: style must be 1-%d characters", domain.ErrInvalidPayload, p.maxOperatorInput)
	}
	p.mu.Lock()
	p.style = style
	p.mu.Unlock()

	if p.styles != nil {
		if err := p.styles.SaveStyle(ctx, style); err != nil {
			return fmt.Errorf("persist style: %w", err)
		}
	}
	return nil
}

// Status returns a read-only snapshot.
func (p *PipelineCoordinator) Status() domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := domain.Status{
		ReviewRequired:    p.reviewRequired,
		AutonomousMode:    p.autonomousMode,
		KillSwitchEngaged: p.killSwitch,
		ShadowMode:        p.shadow,
		PendingApprovals:  p.ledger.Len(),
		Fingerprints:      p.admission.Tracked(),
		Destinations:      p.destinations,
		ConfiguredTopics:  len(p.topics),
		NextTopicCursor:   p.topicCursor,
		Style:             p.style,
		LastAcceptedAt:    p.admission.LastAcceptedAt(),
		LastAutoPublishAt: p.lastAutoPublishAt,
	}
	if p.recent != nil {
		st.LastInboundAt = p.recent.ReceivedAt
	}
	return st
}

// Pending lists approvals awaiting a decision.
func (p *PipelineCoordinator) Pending() []domain.PendingApproval {
	return p.ledger.Pending()
}

// generate calls the collaborator once, bounded by the generation timeout. A late result
// is discarded.
func (p *PipelineCoordinator) generate(ctx context.Context, source string) (string, error) {
	if p.generator == nil {
		return "", fmt.Errorf("%w: no generator configured", domain.ErrGenerationFailed)
	}
	style := p.currentStyle()

	ctx, cancel := context.WithTimeout(ctx, p.generationTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		text, err := p.generator.Generate(ctx, source, style)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				metrics.GenerationDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
				return "", fmt.Errorf("%w after %s", domain.ErrGenerationTimedOut, p.generationTimeout)
			}
			metrics.GenerationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, r.err)
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			metrics.GenerationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return "", fmt.Errorf("%w: empty response", domain.ErrGenerationFailed)
		}
		metrics.GenerationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		return text, nil
	case <-ctx.Done():
		metrics.GenerationDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", domain.ErrGenerationTimedOut, p.generationTimeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, ctx.Err())
	}
}

func (p *PipelineCoordinator) queue(ctx context.Context, sourceText, generated, sourceURL string, origin domain.Origin) domain.PendingApproval {
	pa := p.ledger.Create(sourceText, generated, sourceURL, origin)
	metrics.PendingApprovals.Set(float64(p.ledger.Len()))
	p.logger.Info("announcement queued for approval", "approval_id", pa.ID, "origin", origin)

	if p.reviews != nil {
		if err := p.reviews.NotifyReview(ctx, pa); err != nil {
			p.logger.Error("failed to send approval review", "approval_id", pa.ID, "error", err)
		}
	}
	return pa
}

func (p *PipelineCoordinator) publish(ctx context.Context, origin domain.Origin, approvalID, text, sourceURL string) int {
	if p.dispatcher == nil {
		p.logger.Warn("no dispatcher configured; cannot post")
		return 0
	}
	posted := p.dispatcher.Dispatch(ctx, text, sourceURL)
	p.logger.Info("announcement dispatched", "origin", origin, "approval_id", approvalID, "channels", posted)

	if p.publications != nil {
		err := p.publications.RecordPublication(ctx, domain.Publication{
			Origin:     origin,
			ApprovalID: approvalID,
			Text:       text,
			SourceURL:  sourceURL,
			Delivered:  posted,
			Targets:    p.destinations,
			CreatedAt:  p.now(),
		})
		if err != nil {
			p.logger.Error("record publication failed", "error", err)
		}
	}
	return posted
}

func (p *PipelineCoordinator) currentStyle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.style
}

func (p *PipelineCoordinator) count(origin domain.Origin, err error, status ...domain.OutcomeStatus) {
	outcome := outcomeLabel(err)
	if err == nil && len(status) > 0 {
		outcome = string(status[0])
	}
	metrics.Admissions.WithLabelValues(string(origin), outcome).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, domain.ErrMissingQualifyingLink):
		return "missing_link"
	case errors.Is(err, domain.ErrThrottled):
		return "throttled"
	case errors.Is(err, domain.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, domain.ErrGenerationTimedOut):
		return "generation_timeout"
	case errors.Is(err, domain.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, domain.ErrMetaResponse):
		return "meta_response"
	default:
		return "error"
	}
}

// composeRewrite frames inbound text for the generator.
func composeRewrite(text, url string) string {
	return "Rewrite this for Discord:\n\n" + composeSource(text, url)
}

func composeSource(text, url string) string {
	if url == "" {
		return text
	}
	return text + "\n\nOriginal post URL: " + url
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
