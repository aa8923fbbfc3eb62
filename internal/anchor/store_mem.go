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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore 内存实现；key 为 entityID + "/" + network
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore 创建内存版锚定记录存储
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func key(entityID string, network Network) string {
	return entityID + "/" + string(network)
}

func copyRecord(rec Record) Record {
	out := rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (s *memoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.EntityID, rec.Network)
	if _, ok := s.records[k]; ok {
		return Record{}, ErrDuplicate
	}
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
	s.records[k] = copyRecord(rec)
	return copyRecord(rec), nil
}

func (s *memoryStore) Get(ctx context.Context, entityID string, network Network) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key(entityID, network)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *memoryStore) Update(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.EntityID, rec.Network)
	if _, ok := s.records[k]; !ok {
		return ErrNotFound
	}
	rec.UpdatedAt = time.Now()
	s.records[k] = copyRecord(rec)
	return nil
}

func (s *memoryStore) ListByEntity(ctx context.Context, entityID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.EntityID == entityID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out, nil
}

func (s *memoryStore) ListDue(ctx context.Context, limit int) ([]Record, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.IsTerminal() {
			continue
		}
		if rec.Status != StatusSubmitted {
			continue
		}
		if !IsRetryDue(rec, now) {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
