package usecase

import (
	"context"
	"errors"
	"time"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/gate"
	"AnnounceRelay/internal/metrics"
)

// TickResult describes what one autonomous tick did.
type TickResult string

const (
	TickDisabled  TickResult = "disabled"
	TickKilled    TickResult = "kill_switch"
	TickCooldown  TickResult = "cooldown"
	TickNoTopics  TickResult = "no_topics"
	TickThrottled TickResult = "throttled"
	TickFailed    TickResult = "failed"
	TickBlocked   TickResult = "blocked"
	TickAborted   TickResult = "aborted"
	TickPosted    TickResult = "posted"
)

// Tick runs one autonomous evaluation at now. Candidates go through admission, generation and
// the output check like any inbound item, then straight to dispatch.
func (p *PipelineCoordinator) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	result, err := p.tick(ctx, now)
	metrics.SchedulerTicks.WithLabelValues(string(result)).Inc()
	return result, err
}

func (p *PipelineCoordinator) tick(ctx context.Context, now time.Time) (TickResult, error) {
	p.mu.Lock()
	switch {
	case p.killSwitch:
		p.mu.Unlock()
		return TickKilled, nil
	case !p.autonomousMode:
		p.mu.Unlock()
		return TickDisabled, nil
	case !p.lastAutoPublishAt.IsZero() && now.Sub(p.lastAutoPublishAt) < p.autoCooldown:
		p.mu.Unlock()
		return TickCooldown, nil
	case len(p.topics) == 0:
		p.mu.Unlock()
		return TickNoTopics, nil
	}
	topic := p.topics[p.topicCursor%len(p.topics)]
	p.mu.Unlock()

	if _, err := p.admission.Admit(topic); err != nil {
		p.count(domain.OriginScheduler, err)
		if errors.Is(err, domain.ErrThrottled) || errors.Is(err, domain.ErrDuplicate) {
			return TickThrottled, nil
		}
		return TickFailed, err
	}

	p.mu.Lock()
	p.topicCursor = (p.topicCursor + 1) % len(p.topics)
	p.mu.Unlock()

	candidate := domain.InboundCandidate{SourceText: topic, Origin: domain.OriginScheduler, ReceivedAt: now}
	generated, err := p.generate(ctx, "Write an announcement about:\n\n"+topic)
	if err != nil {
		p.admission.Release(candidate.SourceText)
		p.count(domain.OriginScheduler, err)
		return TickFailed, err
	}
	if err := gate.CheckOutput(generated); err != nil {
		p.count(domain.OriginScheduler, err)
		return TickBlocked, err
	}

	// an operator may have stopped autonomy while generation was in flight
	p.mu.Lock()
	if p.killSwitch || !p.autonomousMode {
		p.mu.Unlock()
		p.logger.Warn("autonomous post abandoned after generation", "topic", topic)
		return TickAborted, nil
	}
	p.lastAutoPublishAt = now
	p.mu.Unlock()

	posted := p.publish(context.WithoutCancel(ctx), domain.OriginScheduler, "", generated, "")
	p.count(domain.OriginScheduler, nil, domain.StatusPosted)
	p.logger.Info("autonomous announcement posted", "topic", topic, "channels", posted)
	return TickPosted, nil
}
