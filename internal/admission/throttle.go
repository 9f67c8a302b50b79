package admission

import (
	"time"

	"AnnounceRelay/internal/domain"
)

// Throttle is the single shared cooldown gate. It is not safe for concurrent use on its own;
// Controller serializes access.
type Throttle struct {
	cooldown       time.Duration
	lastAcceptedAt time.Time
}

// NewThrottle creates a throttle with the given cooldown.
func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{cooldown: cooldown}
}

// Check reports the remaining wait without touching state.
func (t *Throttle) Check(now time.Time) error {
	if t.lastAcceptedAt.IsZero() {
		return nil
	}
	elapsed := now.Sub(t.lastAcceptedAt)
	if elapsed < t.cooldown {
		return &domain.ThrottledError{Remaining: t.cooldown - elapsed}
	}
	return nil
}

// Mark records an accepted admission. It is never rolled back.
func (t *Throttle) Mark(now time.Time) {
	t.lastAcceptedAt = now
}

// LastAcceptedAt returns the time of the last accepted admission.
func (t *Throttle) LastAcceptedAt() time.Time {
	return t.lastAcceptedAt
}
