package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnnounceRelay/internal/domain"
)

func TestStyleQueries(t *testing.T) {
	t.Parallel()

	query, args, err := loadStyleQuery().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT value FROM relay_settings WHERE key = $1", query)
	assert.Equal(t, []any{StyleKey}, args)

	query, args, err = saveStyleQuery("hype").ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO relay_settings (key,value) VALUES ($1,$2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()",
		query)
	assert.Equal(t, []any{StyleKey, "hype"}, args)
}

func TestPublicationQueries(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.May, 1, 8, 0, 0, 0, time.UTC)
	query, args, err := insertPublicationQuery(domain.Publication{
		Origin: domain.OriginWebhook, ApprovalID: "w-1", Text: "hi", Delivered: 2, Targets: 3, CreatedAt: at,
	}).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO relay_publications (origin,approval_id,body,source_url,delivered,targets,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)",
		query)
	assert.Equal(t, []any{"webhook", "w-1", "hi", "", 2, 3, at}, args)

	query, _, err = recentPublicationsQuery(0).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT origin, approval_id, body, source_url, delivered, targets, created_at FROM relay_publications ORDER BY created_at DESC, id DESC LIMIT 20",
		query)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore(2)

	_, ok, err := m.LoadStyle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SaveStyle(ctx, "calm"))
	style, ok, err := m.LoadStyle(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "calm", style)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, m.RecordPublication(ctx, domain.Publication{Text: text}))
	}
	recent, err := m.RecentPublications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Text)
	assert.Equal(t, "b", recent[1].Text)

	recent, err = m.RecentPublications(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
