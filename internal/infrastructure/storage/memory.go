package storage

import (
	"context"
	"sync"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/ports"
)

// MemoryStore is the in-process fallback used when no database is configured. Contents are
// lost on restart.
type MemoryStore struct {
	mu           sync.Mutex
	style        string
	hasStyle     bool
	publications []domain.Publication
	capacity     int
}

var (
	_ ports.StyleStore     = (*MemoryStore)(nil)
	_ ports.PublicationLog = (*MemoryStore)(nil)
)

// NewMemoryStore keeps at most capacity publications.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryStore{capacity: capacity}
}

func (m *MemoryStore) LoadStyle(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style, m.hasStyle, nil
}

func (m *MemoryStore) SaveStyle(_ context.Context, style string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style, m.hasStyle = style, true
	return nil
}

func (m *MemoryStore) RecordPublication(_ context.Context, pub domain.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publications = append(m.publications, pub)
	if over := len(m.publications) - m.capacity; over > 0 {
		m.publications = append([]domain.Publication(nil), m.publications[over:]...)
	}
	return nil
}

// RecentPublications returns the newest records first.
func (m *MemoryStore) RecentPublications(_ context.Context, limit uint64) ([]domain.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.publications)
	if limit > 0 && uint64(n) > limit {
		n = int(limit)
	}
	out := make([]domain.Publication, 0, n)
	for i := len(m.publications) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.publications[i])
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }
