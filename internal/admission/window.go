package admission

import (
	"time"

	"AnnounceRelay/internal/domain"
)

// Window is the duplicate suppression table keyed by fingerprint. Expired entries are purged
// lazily before every lookup, so an aged-out entry can never cause a false duplicate.
type Window struct {
	ttl     time.Duration
	entries map[domain.Fingerprint]time.Time
}

// NewWindow creates a suppression window of the given duration.
func NewWindow(ttl time.Duration) *Window {
	return &Window{ttl: ttl, entries: map[domain.Fingerprint]time.Time{}}
}

// Seen purges expired entries and reports whether fp is still inside the window.
func (w *Window) Seen(fp domain.Fingerprint, now time.Time) bool {
	w.purge(now)
	_, ok := w.entries[fp]
	return ok
}

// Insert registers fp at now.
func (w *Window) Insert(fp domain.Fingerprint, now time.Time) {
	w.entries[fp] = now
}

// Remove forgets fp.
func (w *Window) Remove(fp domain.Fingerprint) {
	delete(w.entries, fp)
}

// Len returns the number of live entries as of the last purge.
func (w *Window) Len() int {
	return len(w.entries)
}

func (w *Window) purge(now time.Time) {
	cutoff := now.Add(-w.ttl)
	for fp, insertedAt := range w.entries {
		if !insertedAt.After(cutoff) {
			delete(w.entries, fp)
		}
	}
}
