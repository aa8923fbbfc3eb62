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

package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore PostgreSQL 实现。
//
// 建表语句：
//
//	CREATE TABLE anchors (
//	    id            TEXT PRIMARY KEY,
//	    entity_id     TEXT NOT NULL,
//	    network       TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    attempts      INT NOT NULL DEFAULT 0,
//	    witness_hash  TEXT NOT NULL DEFAULT '',
//	    tx_ref        TEXT NOT NULL DEFAULT '',
//	    submitted_at  TIMESTAMPTZ,
//	    next_retry_at TIMESTAMPTZ,
//	    metadata      JSONB,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (entity_id, network)
//	);
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的锚定记录存储
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

const recordColumns = `id, entity_id, network, status, attempts, witness_hash, tx_ref,
	submitted_at, next_retry_at, metadata, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var network, status string
	var submittedAt, nextRetryAt *time.Time
	var metadata []byte
	err := row.Scan(&rec.ID, &rec.EntityID, &network, &status, &rec.Attempts,
		&rec.WitnessHash, &rec.TxRef, &submittedAt, &nextRetryAt, &metadata,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Network = Network(network)
	rec.Status = Status(status)
	if submittedAt != nil {
		rec.SubmittedAt = *submittedAt
	}
	if nextRetryAt != nil {
		rec.NextRetryAt = *nextRetryAt
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &rec.Metadata)
	}
	return rec, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *pgStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = "anc-" + uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return Record{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO anchors (id, entity_id, network, status, attempts, witness_hash, tx_ref,
		 submitted_at, next_retry_at, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.EntityID, string(rec.Network), string(rec.Status), rec.Attempts,
		rec.WitnessHash, rec.TxRef, nullableTime(rec.SubmittedAt), nullableTime(rec.NextRetryAt),
		metadata, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *pgStore) Get(ctx context.Context, entityID string, network Network) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM anchors WHERE entity_id = $1 AND network = $2`,
		entityID, string(network))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *pgStore) Update(ctx context.Context, rec Record) error {
	rec.UpdatedAt = time.Now()
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE anchors SET status = $1, attempts = $2, witness_hash = $3, tx_ref = $4,
		 submitted_at = $5, next_retry_at = $6, metadata = $7, updated_at = $8
		 WHERE entity_id = $9 AND network = $10`,
		string(rec.Status), rec.Attempts, rec.WitnessHash, rec.TxRef,
		nullableTime(rec.SubmittedAt), nullableTime(rec.NextRetryAt), metadata, rec.UpdatedAt,
		rec.EntityID, string(rec.Network))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) ListByEntity(ctx context.Context, entityID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM anchors WHERE entity_id = $1 ORDER BY network`,
		entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *pgStore) ListDue(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM anchors
		 WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
		 ORDER BY next_retry_at NULLS FIRST
		 LIMIT $2`,
		string(StatusSubmitted), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
