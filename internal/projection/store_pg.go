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

package projection

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore PostgreSQL 实现。
//
// 建表语句：
//
//	CREATE TABLE projections (
//	    entity_id           TEXT PRIMARY KEY,
//	    overall_status      TEXT NOT NULL,
//	    has_polygon_anchor  BOOLEAN NOT NULL DEFAULT FALSE,
//	    has_bitcoin_anchor  BOOLEAN NOT NULL DEFAULT FALSE,
//	    timestamp_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
//	    artifact_ref        TEXT NOT NULL DEFAULT '',
//	    download_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
//	    cancelled           BOOLEAN NOT NULL DEFAULT FALSE,
//	    rebuilt_at          TIMESTAMPTZ NOT NULL
//	);
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的读模型存储
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

func (s *pgStore) Put(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projections (entity_id, overall_status, has_polygon_anchor, has_bitcoin_anchor,
		 timestamp_confirmed, artifact_ref, download_enabled, cancelled, rebuilt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (entity_id) DO UPDATE SET
		     overall_status = $2, has_polygon_anchor = $3, has_bitcoin_anchor = $4,
		     timestamp_confirmed = $5, artifact_ref = $6, download_enabled = $7,
		     cancelled = $8, rebuilt_at = $9`,
		row.EntityID, string(row.OverallStatus), row.HasPolygonAnchor, row.HasBitcoinAnchor,
		row.TimestampConfirmed, row.ArtifactRef, row.DownloadEnabled, row.Cancelled, row.RebuiltAt)
	return err
}

func (s *pgStore) Get(ctx context.Context, entityID string) (Row, error) {
	var row Row
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id, overall_status, has_polygon_anchor, has_bitcoin_anchor,
		 timestamp_confirmed, artifact_ref, download_enabled, cancelled, rebuilt_at
		 FROM projections WHERE entity_id = $1`, entityID).
		Scan(&row.EntityID, &status, &row.HasPolygonAnchor, &row.HasBitcoinAnchor,
			&row.TimestampConfirmed, &row.ArtifactRef, &row.DownloadEnabled, &row.Cancelled, &row.RebuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		return Row{}, err
	}
	row.OverallStatus = OverallStatus(status)
	return row, nil
}

func (s *pgStore) Delete(ctx context.Context, entityID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projections WHERE entity_id = $1`, entityID)
	return err
}
