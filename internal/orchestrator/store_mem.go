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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore 内存实现：单互斥锁即是认领的原子性来源
type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
	runs map[string][]Run
}

// NewMemoryStore 创建内存版任务存储
func NewMemoryStore() Store {
	return &memoryStore{
		jobs: make(map[string]Job),
		runs: make(map[string][]Run),
	}
}

func (s *memoryStore) Enqueue(ctx context.Context, j Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.DedupeKey != "" {
		for _, existing := range s.jobs {
			if existing.DedupeKey == j.DedupeKey && !existing.Status.IsTerminal() {
				return existing, nil
			}
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
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID] = j
	return j, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (s *memoryStore) Claim(ctx context.Context, workerID string, now time.Time) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []Job
	for _, j := range s.jobs {
		switch j.Status {
		case StatusPending:
			if !j.RunAt.IsZero() && j.RunAt.After(now) {
				continue
			}
		case StatusWaiting:
			if j.RunAt.After(now) {
				continue
			}
		default:
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return Job{}, false, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	j := candidates[0]
	j.Status = StatusRunning
	j.LockedBy = workerID
	j.StartedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID] = j
	return j, true, nil
}

func (s *memoryStore) Update(ctx context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[j.ID]
	if !ok {
		return ErrJobNotFound
	}
	if existing.Status.IsTerminal() {
		return ErrTerminal
	}
	j.UpdatedAt = time.Now()
	s.jobs[j.ID] = j
	return nil
}

func (s *memoryStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now()
	j.Status = StatusCancelled
	j.CompletedAt = now
	j.UpdatedAt = now
	s.jobs[id] = j
	return nil
}

func (s *memoryStore) ListByEntity(ctx context.Context, entityID string) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.EntityID == entityID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *memoryStore) ListDeadLetters(ctx context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == StatusFailed {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) CountPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == StatusPending || j.Status == StatusWaiting {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ReclaimOrphans(ctx context.Context, leaseTTL time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for id, j := range s.jobs {
		if j.Status != StatusRunning {
			continue
		}
		if now.Sub(j.UpdatedAt) < leaseTTL {
			continue
		}
		j.Status = StatusPending
		j.LockedBy = ""
		j.UpdatedAt = now
		s.jobs[id] = j
		reclaimed++
	}
	return reclaimed, nil
}

func (s *memoryStore) AppendRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = "run-" + uuid.New().String()
	}
	s.runs[run.JobID] = append(s.runs[run.JobID], run)
	return nil
}

func (s *memoryStore) ListRuns(ctx context.Context, jobID string) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := s.runs[jobID]
	out := make([]Run, len(runs))
	copy(out, runs)
	return out, nil
}
