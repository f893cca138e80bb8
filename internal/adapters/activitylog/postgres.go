package activitylog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
)

// Schema is the DDL for the cadence_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS cadence_log (
    id                BIGSERIAL    PRIMARY KEY,
    participant_id    INTEGER      NOT NULL,
    session_id        TEXT         NOT NULL,
    ts                TIMESTAMPTZ  NOT NULL,
    elapsed_time_sec  INTEGER      NOT NULL,
    cadence_spm       INTEGER      NOT NULL,
    baseline_cadence  INTEGER      NOT NULL,
    cadence_deviation INTEGER      NOT NULL,
    cadence_state     TEXT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cadence_log_session
    ON cadence_log (session_id, id);
`

const insertRecord = `
INSERT INTO cadence_log (
    participant_id, session_id, ts, elapsed_time_sec,
    cadence_spm, baseline_cadence, cadence_deviation, cadence_state
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

// DB is the subset of *pgxpool.Pool used by PostgresWriter.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresWriter appends rows to the cadence_log table. The pool is shared
// across sessions, so Close does not close it.
type PostgresWriter struct {
	db DB
}

// NewPostgresWriter wraps db.
func NewPostgresWriter(db DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// OpenPool connects to dsn and verifies the connection.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("activitylog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("activitylog: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the cadence_log table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("activitylog: migrate: %w", err)
	}
	return nil
}

// PostgresFactory hands out writers sharing db.
func PostgresFactory(db DB) Factory {
	return func(context.Context, model.Session) (Writer, error) {
		return NewPostgresWriter(db), nil
	}
}

// Append inserts one row.
func (p *PostgresWriter) Append(ctx context.Context, r model.Record) error {
	_, err := p.db.Exec(ctx, insertRecord,
		r.ParticipantID, r.SessionID, r.Timestamp, r.ElapsedSec,
		r.Cadence, r.Baseline, r.Deviation, r.State,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %w", ErrWriteFailed, err)
	}
	return nil
}

// Close is a no-op; the pool outlives individual sessions.
func (p *PostgresWriter) Close() error { return nil }
