// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore PostgreSQL 实现：jobs + job_runs 两张表，供 API 与 Worker 共享。
// 认领走 UPDATE … WHERE id = (SELECT … FOR UPDATE SKIP LOCKED)，
// 多 worker 并发下同一任务至多被一个进程拿到。
//
// 建表语句：
//
//	CREATE TABLE jobs (
//	    id           TEXT PRIMARY KEY,
//	    type         TEXT NOT NULL,
//	    entity_id    TEXT NOT NULL DEFAULT '',
//	    payload      JSONB,
//	    status       TEXT NOT NULL,
//	    priority     INT NOT NULL DEFAULT 0,
//	    attempts     INT NOT NULL DEFAULT 0,
//	    max_attempts INT NOT NULL DEFAULT 3,
//	    dedupe_key   TEXT NOT NULL DEFAULT '',
//	    run_at       TIMESTAMPTZ,
//	    locked_by    TEXT NOT NULL DEFAULT '',
//	    result       TEXT NOT NULL DEFAULT '',
//	    error        TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    started_at   TIMESTAMPTZ,
//	    completed_at TIMESTAMPTZ,
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX jobs_claim_idx ON jobs (status, run_at, priority, created_at);
//	CREATE INDEX jobs_dedupe_idx ON jobs (dedupe_key) WHERE status IN ('pending','running','waiting');
//	CREATE TABLE job_runs (
//	    id          TEXT PRIMARY KEY,
//	    job_id      TEXT NOT NULL REFERENCES jobs(id),
//	    worker_id   TEXT NOT NULL DEFAULT '',
//	    attempt     INT NOT NULL DEFAULT 0,
//	    outcome     TEXT NOT NULL,
//	    error       TEXT NOT NULL DEFAULT '',
//	    started_at  TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL
//	);
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的任务存储
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool}, nil
}

// Close 关闭连接池
func (s *pgStore) Close() {
	s.pool.Close()
}

const jobColumns = `id, type, entity_id, payload, status, priority, attempts, max_attempts,
	dedupe_key, run_at, locked_by, result, error, created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var status string
	var payload []byte
	var runAt, startedAt, completedAt *time.Time
	err := row.Scan(&j.ID, &j.Type, &j.EntityID, &payload, &status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.DedupeKey, &runAt, &j.LockedBy, &j.Result,
		&j.Error, &j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	if len(payload) > 0 {
		j.Payload = make([]byte, len(payload))
		copy(j.Payload, payload)
	}
	if runAt != nil {
		j.RunAt = *runAt
	}
	if startedAt != nil {
		j.StartedAt = *startedAt
	}
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	return j, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *pgStore) Enqueue(ctx context.Context, j Job) (Job, error) {
	if j.DedupeKey != "" {
		row := s.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs
			 WHERE dedupe_key = $1 AND status IN ('pending','running','waiting')
			 LIMIT 1`, j.DedupeKey)
		existing, err := scanJob(row)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Job{}, err
		}
	}
	if j.ID == "" {
		j.ID = "job-" + uuid.New().String()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 3
	}
	payload := j.Payload
	if payload == nil {
		payload = []byte("null")
	}
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, type, entity_id, payload, status, priority, attempts, max_attempts,
		 dedupe_key, run_at, locked_by, result, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		j.ID, j.Type, j.EntityID, payload, string(j.Status), j.Priority, j.Attempts,
		j.MaxAttempts, j.DedupeKey, nullTime(j.RunAt), j.LockedBy, j.Result, j.Error,
		j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (s *pgStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (s *pgStore) Claim(ctx context.Context, workerID string, now time.Time) (Job, bool, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', locked_by = $1, started_at = $2, updated_at = $2
		 WHERE id = (
		     SELECT id FROM jobs
		     WHERE (status = 'pending' AND (run_at IS NULL OR run_at <= $2))
		        OR (status = 'waiting' AND run_at <= $2)
		     ORDER BY priority DESC, created_at ASC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		workerID, now)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}
	return j, true, nil
}

func (s *pgStore) Update(ctx context.Context, j Job) error {
	payload := j.Payload
	if payload == nil {
		payload = []byte("null")
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs SET type = $1, entity_id = $2, payload = $3, status = $4, priority = $5,
		 attempts = $6, max_attempts = $7, dedupe_key = $8, run_at = $9, locked_by = $10,
		 result = $11, error = $12, started_at = $13, completed_at = $14, updated_at = now()
		 WHERE id = $15 AND status NOT IN ('completed','failed','cancelled')`,
		j.Type, j.EntityID, payload, string(j.Status), j.Priority, j.Attempts,
		j.MaxAttempts, j.DedupeKey, nullTime(j.RunAt), j.LockedBy, j.Result, j.Error,
		nullTime(j.StartedAt), nullTime(j.CompletedAt), j.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, j.ID); errors.Is(getErr, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return ErrTerminal
	}
	return nil
}

func (s *pgStore) RequestCancel(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status NOT IN ('completed','failed','cancelled')`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return ErrTerminal
	}
	return nil
}

func (s *pgStore) ListByEntity(ctx context.Context, entityID string) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE entity_id = $1 ORDER BY created_at`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *pgStore) ListDeadLetters(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'failed' ORDER BY updated_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *pgStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status IN ('pending', 'waiting')`).Scan(&n)
	return n, err
}

func (s *pgStore) ReclaimOrphans(ctx context.Context, leaseTTL time.Duration, now time.Time) (int, error) {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', locked_by = '', updated_at = $1
		 WHERE status = 'running' AND updated_at < $2`,
		now, now.Add(-leaseTTL))
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (s *pgStore) AppendRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = "run-" + uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_runs (id, job_id, worker_id, attempt, outcome, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.JobID, run.WorkerID, run.Attempt, run.Outcome, run.Error,
		run.StartedAt, run.FinishedAt)
	return err
}

func (s *pgStore) ListRuns(ctx context.Context, jobID string) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, worker_id, attempt, outcome, error, started_at, finished_at
		 FROM job_runs WHERE job_id = $1 ORDER BY started_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.JobID, &r.WorkerID, &r.Attempt, &r.Outcome,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
