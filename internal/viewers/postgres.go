package viewers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of *pgxpool.Pool used by Postgres.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Counter stored in the viewer_counts table. Each change is a
// single upsert, so concurrent processes never lose an increment.
type Postgres struct {
	db     querier
	pool   *pgxpool.Pool
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ Counter = (*Postgres)(nil)

const createViewerCounts = `
CREATE TABLE IF NOT EXISTS viewer_counts (
    key        TEXT PRIMARY KEY,
    n          BIGINT NOT NULL DEFAULT 0,
    expires_at TIMESTAMPTZ NOT NULL
)`

// upsertViewerCount adds $2 to the counter, starting from zero when the row
// is absent or expired, flooring at zero and sliding the expiry to $3.
const upsertViewerCount = `
INSERT INTO viewer_counts (key, n, expires_at)
VALUES ($1, GREATEST($2::BIGINT, 0), $3)
ON CONFLICT (key) DO UPDATE SET
    n = GREATEST(
        CASE WHEN viewer_counts.expires_at <= $4 THEN 0 ELSE viewer_counts.n END + $2::BIGINT,
        0),
    expires_at = EXCLUDED.expires_at`

// NewPostgres connects a pool to databaseURL and checks it is reachable.
func NewPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	p := newPostgres(pool, logger)
	p.pool = pool
	return p, nil
}

func newPostgres(db querier, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, ttl: TTL, now: time.Now, logger: logger}
}

// EnsureSchema creates the backing table if it does not exist. Safe to run
// from several processes at once.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createViewerCounts); err != nil {
		return fmt.Errorf("create viewer_counts: %w", err)
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, eventID string) {
	if err := p.change(ctx, eventID, 1); err != nil {
		p.logger.Warn("viewers: increment failed", "event", eventID, "err", err)
	}
}

func (p *Postgres) Remove(ctx context.Context, eventID string) {
	if err := p.change(ctx, eventID, -1); err != nil {
		p.logger.Warn("viewers: decrement failed", "event", eventID, "err", err)
	}
}

func (p *Postgres) change(ctx context.Context, eventID string, delta int64) error {
	now := p.now()
	_, err := p.db.Exec(ctx, upsertViewerCount, Key(eventID), delta, now.Add(p.ttl), now)
	return err
}

func (p *Postgres) Count(ctx context.Context, eventID string) int64 {
	var n int64
	err := p.db.QueryRow(ctx,
		`SELECT n FROM viewer_counts WHERE key = $1 AND expires_at > $2`,
		Key(eventID), p.now(),
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0
	}
	if err != nil {
		p.logger.Warn("viewers: read failed", "event", eventID, "err", err)
		return 0
	}
	return max(0, n)
}

// PurgeExpired deletes expired counters.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM viewer_counts WHERE expires_at <= $1`, p.now())
	if err != nil {
		return 0, fmt.Errorf("purge viewer counts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool, if this counter opened one.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
