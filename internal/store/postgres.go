package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	seq        BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	user_id    TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL,
	action     TEXT NOT NULL,
	score      INTEGER NOT NULL DEFAULT 0,
	details    JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS activity_log_created_at_idx ON activity_log (created_at DESC);
`

// Postgres stores the activity log in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pool, verifies it and creates the schema.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Postgres{pool: pool, now: time.Now}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the activity log table when it does not exist.
func (db *Postgres) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create activity log schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *Postgres) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Append inserts rec and returns it with its sequence number.
func (db *Postgres) Append(ctx context.Context, rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}
	rec = prepare(rec, db.now)

	err := db.pool.QueryRow(ctx,
		`INSERT INTO activity_log (created_at, user_id, mode, action, score, details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		rec.Timestamp, rec.UserID, rec.Mode, rec.Action, rec.Score, []byte(rec.Details),
	).Scan(&rec.Seq)
	if err != nil {
		return Record{}, fmt.Errorf("failed to append activity record: %w", err)
	}

	return rec, nil
}

// Recent returns up to limit records, newest first.
func (db *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT seq, created_at, user_id, mode, action, score, details
		 FROM activity_log
		 ORDER BY seq DESC
		 LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec     Record
			details []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.Timestamp, &rec.UserID, &rec.Mode, &rec.Action, &rec.Score, &details); err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		rec.Details = details
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity records: %w", err)
	}

	return records, nil
}

// Prune deletes records created before the given time.
func (db *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM activity_log WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity records: %w", err)
	}
	return tag.RowsAffected(), nil
}
