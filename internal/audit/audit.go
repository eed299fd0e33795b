// Package audit is a best-effort, non-authoritative sink for job and task
// history, realized in SPEC_FULL.md 4.7. It is never consulted by the
// scheduler to reconstruct state — spec.md's Non-goals explicitly exclude
// durable scheduler-restart recovery — it exists so an operator can later
// answer "what happened to job X". Grounded on the teacher's
// control_plane/store/postgres.go connection-pool setup.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Sink writes audit events to Postgres. A nil *Sink is valid and simply
// drops every event, so flowmr runs without a configured audit_dsn.
type Sink struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// New connects to dsn and ensures the audit table exists. Pass an empty
// dsn to get a no-op sink.
func New(ctx context.Context, dsn string, log *logrus.Entry) (*Sink, error) {
	if dsn == "" {
		return nil, nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS flowmr_task_events (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			task_kind TEXT NOT NULL,
			task_index INT NOT NULL,
			attempt_id TEXT,
			stage TEXT NOT NULL,
			detail TEXT,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, err
	}

	return &Sink{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordTaskEvent appends one row. Failures are logged and swallowed: a
// broken audit sink must never fail the scheduler operation that triggered
// it (SPEC_FULL.md 4.7).
func (s *Sink) RecordTaskEvent(ctx context.Context, jobID, kind string, index int, attemptID, stage, detail string) {
	if s == nil || s.pool == nil {
		return
	}
	const q = `INSERT INTO flowmr_task_events (job_id, task_kind, task_index, attempt_id, stage, detail) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.pool.Exec(ctx, q, jobID, kind, index, attemptID, stage, detail); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("audit: failed to record task event")
		}
	}
}
