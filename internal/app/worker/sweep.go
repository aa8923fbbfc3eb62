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

package worker

import (
	"context"
	"encoding/json"
	"time"

	"notary-platform/internal/anchor"
	"notary-platform/internal/authority"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
	"notary-platform/pkg/log"
	"notary-platform/pkg/metrics"
)

// anchorDueBatch 每轮巡检最多处理的到期锚定记录数
const anchorDueBatch = 100

// Sweeper 决策巡检：对每个实体跑决策阶梯补发任务，
// 并给重试到期的锚定记录排确认任务。幂等靠 DedupeKey，漏一轮下一轮补上。
type Sweeper struct {
	events  eventlog.Store
	jobs    orchestrator.Store
	anchors anchor.Store
	logger  *log.Logger
}

// NewSweeper 创建巡检器
func NewSweeper(events eventlog.Store, jobs orchestrator.Store, anchors anchor.Store, logger *log.Logger) *Sweeper {
	return &Sweeper{events: events, jobs: jobs, anchors: anchors, logger: logger}
}

// SweepOnce 跑一轮巡检，返回本轮入队的任务数
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	enqueued, err := s.sweepDecisions(ctx)
	if err != nil {
		return enqueued, err
	}
	n, err := s.sweepDueAnchors(ctx)
	if depth, derr := s.jobs.CountPending(ctx); derr == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
	return enqueued + n, err
}

// sweepDecisions 对全部实体跑决策阶梯
func (s *Sweeper) sweepDecisions(ctx context.Context) (int, error) {
	ids, err := s.events.ListEntityIDs(ctx)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, id := range ids {
		events, _, err := s.events.ListEvents(ctx, id)
		if err != nil {
			s.logw("sweep: list events failed", "entity_id", id, "error", err)
			continue
		}
		requested := projection.RequestedNetworks(events)
		decision := authority.DecideNextJobs(events, authority.Protection{RequestedNetworks: requested})
		authority.LogNextJobs(s.logger, id, decision, events)
		for _, spec := range decision.Jobs {
			if err := s.enqueueSpec(ctx, id, spec); err != nil {
				s.logw("sweep: enqueue failed", "entity_id", id, "job_type", spec.Type, "error", err)
				continue
			}
			enqueued++
		}
	}
	return enqueued, nil
}

// sweepDueAnchors 为重试到期的锚定记录补确认任务
func (s *Sweeper) sweepDueAnchors(ctx context.Context) (int, error) {
	due, err := s.anchors.ListDue(ctx, anchorDueBatch)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, rec := range due {
		spec := authority.JobSpec{Type: JobConfirmAnchor, Network: string(rec.Network)}
		if err := s.enqueueSpec(ctx, rec.EntityID, spec); err != nil {
			s.logw("sweep: enqueue confirm failed", "entity_id", rec.EntityID, "network", rec.Network, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *Sweeper) enqueueSpec(ctx context.Context, entityID string, spec authority.JobSpec) error {
	var payload []byte
	if spec.Network != "" {
		b, err := json.Marshal(anchorJobPayload{Network: spec.Network})
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := s.jobs.Enqueue(ctx, orchestrator.Job{
		Type:      spec.Type,
		EntityID:  entityID,
		Payload:   payload,
		Status:    orchestrator.StatusPending,
		DedupeKey: orchestrator.DedupeKeyFor(spec.Type, entityID, spec.Network),
	})
	return err
}

// RunLoop 周期巡检，ctx 取消后退出
func (s *Sweeper) RunLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logw("sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) logw(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
