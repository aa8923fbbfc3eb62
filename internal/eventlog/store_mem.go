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
	"sync"
	"time"

	"github.com/google/uuid"

	"notary-platform/pkg/proof"
)

// memoryStore 内存实现：每实体互斥锁 + 版本检查串行化追加
type memoryStore struct {
	mu       sync.RWMutex
	entities map[string]*memEntity
}

type memEntity struct {
	mu     sync.Mutex
	entity DocumentEntity
}

// NewMemoryStore 创建内存版事件存储
func NewMemoryStore() Store {
	return &memoryStore{entities: make(map[string]*memEntity)}
}

func (s *memoryStore) CreateEntity(ctx context.Context, entity DocumentEntity) error {
	if entity.ID == "" {
		entity.ID = "doc-" + uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.ID]; ok {
		return ErrEntityExists
	}
	entity.Events = nil
	s.entities[entity.ID] = &memEntity{entity: entity}
	return nil
}

func (s *memoryStore) get(entityID string) (*memEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.entities[entityID]
	return me, ok
}

func (s *memoryStore) GetEntity(ctx context.Context, entityID string) (DocumentEntity, error) {
	me, ok := s.get(entityID)
	if !ok {
		return DocumentEntity{}, ErrEntityNotFound
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	return copyEntity(me.entity), nil
}

func (s *memoryStore) ListEvents(ctx context.Context, entityID string) ([]Event, int, error) {
	me, ok := s.get(entityID)
	if !ok {
		return nil, 0, ErrEntityNotFound
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	events := copyEvents(me.entity.Events)
	return events, len(events), nil
}

func (s *memoryStore) Append(ctx context.Context, entityID string, expectedVersion int, event Event, opts AppendOptions) (int, error) {
	me, ok := s.get(entityID)
	if !ok {
		return 0, ErrEntityNotFound
	}

	me.mu.Lock()
	defer me.mu.Unlock()
	current := me.entity.Events
	if len(current) != expectedVersion {
		return 0, ErrVersionMismatch
	}
	if err := ValidateAppend(me.entity.WitnessHash, current, event, opts); err != nil {
		return 0, err
	}

	if event.ID == "" {
		event.ID = "ev-" + uuid.New().String()
	}
	event.EntityID = entityID
	if event.At.IsZero() {
		event.At = time.Now()
	}
	// TIMESTAMPTZ 只存微秒，入链前统一截断，两种存储的哈希才一致
	event.At = event.At.Truncate(time.Microsecond)
	if len(event.Payload) > 0 {
		p := make([]byte, len(event.Payload))
		copy(p, event.Payload)
		event.Payload = p
	}

	var prevHash string
	if len(current) > 0 {
		prevHash = current[len(current)-1].Hash
	}
	event.PrevHash = prevHash
	event.Hash = proof.ComputeEventHash(toProofEvent(event))

	me.entity.Events = append(current, event)
	return len(me.entity.Events), nil
}

func (s *memoryStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entities))
	for id := range s.entities {
		out = append(out, id)
	}
	return out, nil
}

func copyEvents(events []Event) []Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]Event, len(events))
	for i := range events {
		e := events[i]
		if len(e.Payload) > 0 {
			p := make([]byte, len(e.Payload))
			copy(p, e.Payload)
			e.Payload = p
		}
		out[i] = e
	}
	return out
}

func copyEntity(entity DocumentEntity) DocumentEntity {
	out := entity
	out.Events = copyEvents(entity.Events)
	return out
}
