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

package eventlog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"notary-platform/pkg/proof"
)

// pgStore PostgreSQL 实现：document_entities + document_events 两张表。
// 追加是 CAS：仅当当前 max(version) = expectedVersion 时插入，
// (entity_id, version) 唯一索引兜底并发竞争。
//
// 建表语句：
//
//	CREATE TABLE document_entities (
//	    id           TEXT PRIMARY KEY,
//	    source_hash  TEXT NOT NULL DEFAULT '',
//	    witness_hash TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE document_events (
//	    id         BIGSERIAL PRIMARY KEY,
//	    entity_id  TEXT NOT NULL REFERENCES document_entities(id),
//	    version    INT NOT NULL,
//	    kind       TEXT NOT NULL,
//	    payload    JSONB,
//	    source     TEXT NOT NULL DEFAULT '',
//	    at         TIMESTAMPTZ NOT NULL,
//	    prev_hash  TEXT NOT NULL DEFAULT '',
//	    hash       TEXT NOT NULL DEFAULT '',
//	    UNIQUE (entity_id, version)
//	);
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的事件存储
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

// Close 关闭连接池（可选，用于优雅退出）
func (s *pgStore) Close() {
	s.pool.Close()
}

func (s *pgStore) CreateEntity(ctx context.Context, entity DocumentEntity) error {
	if entity.ID == "" {
		return errors.New("eventlog: entity id required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_entities (id, source_hash, witness_hash) VALUES ($1, $2, $3)`,
		entity.ID, entity.SourceHash, entity.WitnessHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEntityExists
		}
		return err
	}
	return nil
}

func (s *pgStore) GetEntity(ctx context.Context, entityID string) (DocumentEntity, error) {
	var entity DocumentEntity
	err := s.pool.QueryRow(ctx,
		`SELECT id, source_hash, witness_hash FROM document_entities WHERE id = $1`,
		entityID).Scan(&entity.ID, &entity.SourceHash, &entity.WitnessHash)
	if err != nil {
		if errNoRows(err) {
			return DocumentEntity{}, ErrEntityNotFound
		}
		return DocumentEntity{}, err
	}
	events, _, err := s.ListEvents(ctx, entityID)
	if err != nil {
		return DocumentEntity{}, err
	}
	entity.Events = events
	return entity, nil
}

func (s *pgStore) ListEvents(ctx context.Context, entityID string) ([]Event, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, kind, payload, source, at, prev_hash, hash
		 FROM document_events WHERE entity_id = $1 ORDER BY version`,
		entityID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		var id int64
		var kindStr string
		var payload []byte
		if err := rows.Scan(&id, &e.EntityID, &kindStr, &payload, &e.Source, &e.At, &e.PrevHash, &e.Hash); err != nil {
			return nil, 0, err
		}
		e.ID = strconv.FormatInt(id, 10)
		e.Kind = Kind(kindStr)
		if len(payload) > 0 {
			e.Payload = make([]byte, len(payload))
			copy(e.Payload, payload)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return events, len(events), nil
}

func (s *pgStore) Append(ctx context.Context, entityID string, expectedVersion int, event Event, opts AppendOptions) (int, error) {
	var witnessHash string
	err := s.pool.QueryRow(ctx,
		`SELECT witness_hash FROM document_entities WHERE id = $1`, entityID).Scan(&witnessHash)
	if err != nil {
		if errNoRows(err) {
			return 0, ErrEntityNotFound
		}
		return 0, err
	}

	prior, cur, err := s.ListEvents(ctx, entityID)
	if err != nil {
		return 0, err
	}
	if cur != expectedVersion {
		return 0, ErrVersionMismatch
	}
	if err := ValidateAppend(witnessHash, prior, event, opts); err != nil {
		return 0, err
	}

	event.EntityID = entityID
	if event.At.IsZero() {
		event.At = time.Now()
	}
	// TIMESTAMPTZ 只存微秒；先截断再哈希，读回重算才能对上
	event.At = event.At.Truncate(time.Microsecond)
	var prevHash string
	if len(prior) > 0 {
		prevHash = prior[len(prior)-1].Hash
	}
	event.PrevHash = prevHash
	event.Hash = proof.ComputeEventHash(toProofEvent(event))

	payload := event.Payload
	if payload == nil {
		payload = []byte("null")
	}
	newVersion := expectedVersion + 1
	_, err = s.pool.Exec(ctx,
		`INSERT INTO document_events (entity_id, version, kind, payload, source, at, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entityID, newVersion, string(event.Kind), payload, event.Source, event.At, event.PrevHash, event.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrVersionMismatch
		}
		return 0, err
	}
	return newVersion, nil
}

func (s *pgStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM document_entities ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func errNoRows(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}
