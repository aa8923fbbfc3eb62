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
	"sync"
)

// ErrNotFound 投影行不存在
var ErrNotFound = errors.New("projection: row not found")

// Store 读模型存储；Put 整行替换
type Store interface {
	Put(ctx context.Context, row Row) error
	Get(ctx context.Context, entityID string) (Row, error)
	Delete(ctx context.Context, entityID string) error
}

// memoryStore 内存实现
type memoryStore struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryStore 创建内存版读模型存储
func NewMemoryStore() Store {
	return &memoryStore{rows: make(map[string]Row)}
}

func (s *memoryStore) Put(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.EntityID] = row
	return nil
}

func (s *memoryStore) Get(ctx context.Context, entityID string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[entityID]
	if !ok {
		return Row{}, ErrNotFound
	}
	return row, nil
}

func (s *memoryStore) Delete(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, entityID)
	return nil
}
