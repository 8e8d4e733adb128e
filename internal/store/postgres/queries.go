package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/liveqa/internal/codec"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// liveClause restricts a query to rows whose TTL has not passed at the
// epoch-seconds value bound to the given placeholder.
func liveClause(param string) string {
	return `(ttl IS NULL OR ttl > ` + param + `)`
}

func queryGetRecord(ctx context.Context, db executor, key string, now int64) (*model.Record, error) {
	var item []byte
	err := db.QueryRowContext(ctx,
		`SELECT item FROM event_records WHERE key = $1 AND `+liveClause("$2"),
		key, now,
	).Scan(&item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", key, err)
	}
	return codec.Unmarshal(item)
}

// queryInsertRecord creates a record at version 0. A live row under the same
// key wins; an expired one is overwritten.
func queryInsertRecord(ctx context.Context, db executor, rec *model.Record, now int64) error {
	item, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	key := store.Key(rec.Token())
	res, err := db.ExecContext(ctx, `
		INSERT INTO event_records (key, format, v, item, ttl, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key) DO UPDATE SET
			format = EXCLUDED.format,
			v = EXCLUDED.v,
			item = EXCLUDED.item,
			ttl = EXCLUDED.ttl,
			updated_at = EXCLUDED.updated_at
		WHERE event_records.ttl IS NOT NULL AND event_records.ttl <= $6`,
		key, int64(codec.CurrentFormat), int64(rec.Version), item, nullInt64(rec.TTL), now,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}
	if n == 0 {
		return store.ErrExists
	}
	return nil
}

// queryUpdateRecord replaces the row at rec.Version-1. When nothing matches,
// a follow-up probe tells a missing row from a lost race.
func queryUpdateRecord(ctx context.Context, db executor, rec *model.Record, now int64) error {
	item, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	key := store.Key(rec.Token())
	res, err := db.ExecContext(ctx, `
		UPDATE event_records
		SET format = $3, v = $4, item = $5, ttl = $6, updated_at = now()
		WHERE key = $1 AND v = $2 AND `+liveClause("$7"),
		key, int64(rec.Version-1), int64(codec.CurrentFormat), int64(rec.Version), item, nullInt64(rec.TTL), now,
	)
	if err != nil {
		return fmt.Errorf("update record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record %s: %w", key, err)
	}
	if n > 0 {
		return nil
	}

	exists, err := queryRecordExists(ctx, db, key, now)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConcurrency
}

func queryRecordExists(ctx context.Context, db executor, key string, now int64) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM event_records WHERE key = $1 AND `+liveClause("$2"),
		key, now,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe record %s: %w", key, err)
	}
	return true, nil
}

func queryPurgeExpired(ctx context.Context, db executor, now int64) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM event_records WHERE ttl IS NOT NULL AND ttl <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired records: %w", err)
	}
	return res.RowsAffected()
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
