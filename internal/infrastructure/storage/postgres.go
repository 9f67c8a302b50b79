package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/ports"
)

// StyleKey is the settings row holding the style directive.
const StyleKey = "style:memory"

const schema = `
CREATE TABLE IF NOT EXISTS relay_settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS relay_publications (
    id          BIGSERIAL PRIMARY KEY,
    origin      TEXT NOT NULL,
    approval_id TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL,
    source_url  TEXT NOT NULL DEFAULT '',
    delivered   INTEGER NOT NULL,
    targets     INTEGER NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS relay_publications_created_at_idx ON relay_publications (created_at DESC);`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps the style directive and the publication log in Postgres.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ports.StyleStore     = (*PostgresStore)(nil)
	_ ports.PublicationLog = (*PostgresStore)(nil)
)

// OpenPostgres opens a lib/pq connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadStyle returns the stored directive; ok is false when nothing was saved yet.
func (s *PostgresStore) LoadStyle(ctx context.Context) (string, bool, error) {
	query, args, err := loadStyleQuery().ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build style query: %w", err)
	}

	var style string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&style)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load style: %w", err)
	}
	return style, true, nil
}

// SaveStyle upserts the directive.
func (s *PostgresStore) SaveStyle(ctx context.Context, style string) error {
	query, args, err := saveStyleQuery(style).ToSql()
	if err != nil {
		return fmt.Errorf("build style upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save style: %w", err)
	}
	return nil
}

// RecordPublication appends one dispatch attempt.
func (s *PostgresStore) RecordPublication(ctx context.Context, pub domain.Publication) error {
	query, args, err := insertPublicationQuery(pub).ToSql()
	if err != nil {
		return fmt.Errorf("build publication insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

// RecentPublications returns the newest records first.
func (s *PostgresStore) RecentPublications(ctx context.Context, limit uint64) ([]domain.Publication, error) {
	query, args, err := recentPublicationsQuery(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build publications query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}

	var out []domain.Publication
	for rows.Next() {
		var (
			pub    domain.Publication
			origin string
		)
		if err := rows.Scan(&origin, &pub.ApprovalID, &pub.Text, &pub.SourceURL, &pub.Delivered, &pub.Targets, &pub.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		pub.Origin = domain.Origin(origin)
		out = append(out, pub)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

// Ping reports database reachability for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func loadStyleQuery() sq.SelectBuilder {
	return psql.Select("value").From("relay_settings").Where(sq.Eq{"key": StyleKey})
}

func saveStyleQuery(style string) sq.InsertBuilder {
	return psql.Insert("relay_settings").
		Columns("key", "value").
		Values(StyleKey, style).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()")
}

func insertPublicationQuery(pub domain.Publication) sq.InsertBuilder {
	return psql.Insert("relay_publications").
		Columns("origin", "approval_id", "body", "source_url", "delivered", "targets", "created_at").
		Values(string(pub.Origin), pub.ApprovalID, pub.Text, pub.SourceURL, pub.Delivered, pub.Targets, pub.CreatedAt)
}

func recentPublicationsQuery(limit uint64) sq.SelectBuilder {
	if limit == 0 {
		limit = 20
	}
	return psql.Select("origin", "approval_id", "body", "source_url", "delivered", "targets", "created_at").
		From("relay_publications").
		OrderBy("created_at DESC", "id DESC").
		Limit(limit)
}
