package domain

import (
	"errors"
	"fmt"
	"time"
)

// Gate and pipeline failures. Every one of them is scoped to a single candidate.
var (
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrMissingQualifyingLink = errors.New("missing qualifying link")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrThrottled             = errors.New("throttled")
	ErrDuplicate             = errors.New("duplicate")
	ErrGenerationFailed      = errors.New("generation failed")
	ErrGenerationTimedOut    = fmt.Errorf("%w: timed out", ErrGenerationFailed)
	ErrMetaResponse          = errors.New("meta response detected")
	ErrNotFound              = errors.New("not found")
	ErrKillSwitchEngaged     = errors.New("kill switch engaged")
	ErrNoRecentItem          = errors.New("no recent item")
)

// ThrottledError reports how long the caller has to wait before the next admission.
type ThrottledError struct {
	Remaining time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled: retry in %s", e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrThrottled) match.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}
