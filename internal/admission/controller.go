package admission

import (
	"fmt"
	"sync"
	"time"

	"AnnounceRelay/internal/domain"
)

// Controller owns the process-wide admission state. Every decision is taken and registered
// under one lock before the caller reaches any blocking call, so concurrent arrivals are
// totally ordered.
type Controller struct {
	mu       sync.Mutex
	throttle *Throttle
	window   *Window
	now      func() time.Time
}

// NewController wires a throttle and a dedup window; now may be nil.
func NewController(cooldown, dedupeWindow time.Duration, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		throttle: NewThrottle(cooldown),
		window:   NewWindow(dedupeWindow),
		now:      now,
	}
}

// Admit runs the throttle and duplicate checks for text and, on success, registers both
// the fingerprint and the accepted timestamp.
//
// An attempt that clears the cooldown stamps the throttle before the duplicate lookup, so a
// late resubmission still starts a new cooldown. Content that is both throttled and already
// seen is reported as Duplicate.
func (c *Controller) Admit(text string) (domain.Fingerprint, error) {
	fp := domain.FingerprintOf(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	seen := c.window.Seen(fp, now)
	if err := c.throttle.Check(now); err != nil {
		if seen {
			return "", c.duplicate()
		}
		return "", err
	}

	c.throttle.Mark(now)
	if seen {
		return "", c.duplicate()
	}
	c.window.Insert(fp, now)
	return fp, nil
}

func (c *Controller) duplicate() error {
	return fmt.Errorf("%w: identical content was submitted within the last %s", domain.ErrDuplicate, c.window.ttl)
}

// Release forgets the fingerprint of text so the same content can be retried. The throttle
// is left untouched.
func (c *Controller) Release(text string) {
	fp := domain.FingerprintOf(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.Remove(fp)
}

// LastAcceptedAt returns the timestamp of the last admitted candidate.
func (c *Controller) LastAcceptedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttle.LastAcceptedAt()
}

// Tracked returns the number of fingerprints currently inside the window.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.purge(c.now())
	return c.window.Len()
}
