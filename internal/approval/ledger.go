package approval

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AnnounceRelay/internal/domain"
)

type entry struct {
	approval domain.PendingApproval
	claimed  bool
}

// Ledger maps review identifiers to pending candidates. An entry is claimed by exactly one
// resolver and deleted once that resolver finishes, so it can never be resolved twice.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	newID   func(domain.Origin) string
}

// NewLedger creates an empty ledger. A ttl of zero keeps pending entries until resolved.
func NewLedger(ttl time.Duration, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		entries: map[string]*entry{},
		ttl:     ttl,
		now:     now,
		newID:   newApprovalID,
	}
}

// Create stores a new pending approval and returns it.
func (l *Ledger) Create(sourceText, generatedText, sourceURL string, origin domain.Origin) domain.PendingApproval {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newID(origin)
	for _, exists := l.entries[id]; exists; _, exists = l.entries[id] {
		id = l.newID(origin)
	}

	pa := domain.PendingApproval{
		ID:            id,
		SourceText:    sourceText,
		GeneratedText: generatedText,
		SourceURL:     sourceURL,
		Origin:        origin,
		CreatedAt:     l.now(),
	}
	l.entries[id] = &entry{approval: pa}
	return pa
}

// Claim hands the entry to a single resolver. Unknown, expired, already claimed and already
// resolved ids are all reported as not found.
func (l *Ledger) Claim(id string) (domain.PendingApproval, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeExpired()
	e, ok := l.entries[id]
	if !ok || e.claimed {
		return domain.PendingApproval{}, fmt.Errorf("%w: review %s has expired or was already handled", domain.ErrNotFound, id)
	}
	e.claimed = true
	return e.approval, nil
}

// Finish deletes a claimed entry.
func (l *Ledger) Finish(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Pending lists unclaimed entries, oldest first.
func (l *Ledger) Pending() []domain.PendingApproval {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeExpired()
	out := make([]domain.PendingApproval, 0, len(l.entries))
	for _, e := range l.entries {
		if e.claimed {
			continue
		}
		out = append(out, e.approval)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len counts entries that are not yet deleted, including ones being resolved.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purgeExpired()
	return len(l.entries)
}

// purgeExpired drops unclaimed entries older than the ttl. Must hold l.mu.
func (l *Ledger) purgeExpired() {
	if l.ttl <= 0 {
		return
	}
	cutoff := l.now().Add(-l.ttl)
	for id, e := range l.entries {
		if !e.claimed && e.approval.CreatedAt.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

func newApprovalID(origin domain.Origin) string {
	prefix := "w"
	switch origin {
	case domain.OriginOperator:
		prefix = "m"
	case domain.OriginScheduler:
		prefix = "a"
	}
	return prefix + "-" + uuid.Must(uuid.NewV7()).String()
}
