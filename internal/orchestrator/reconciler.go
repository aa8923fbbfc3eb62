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
	"fmt"
	"time"

	"notary-platform/internal/eventlog"
	"notary-platform/pkg/log"
	"notary-platform/pkg/metrics"
	"notary-platform/pkg/tracing"
)

const (
	defaultBackoff  = 30 * time.Second
	defaultLeaseTTL = 5 * time.Minute
)

// Reconciler 单次驱动器：认领一个任务、核对目标实体、执行、回写。
// panic 与 error 都在循环边界吸收，循环本身永不崩溃。
type Reconciler struct {
	jobs     Store
	events   eventlog.Store
	registry *Registry
	logger   *log.Logger
	workerID string
	backoff  time.Duration
	leaseTTL time.Duration
}

// ReconcilerOptions Reconciler 构造参数
type ReconcilerOptions struct {
	WorkerID string
	Backoff  time.Duration // waiting 重试间隔；<=0 用默认 30s
	LeaseTTL time.Duration // running 租约；<=0 用默认 5m
}

// NewReconciler 创建 Reconciler
func NewReconciler(jobs Store, events eventlog.Store, registry *Registry, logger *log.Logger, opts ReconcilerOptions) *Reconciler {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	leaseTTL := opts.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	return &Reconciler{
		jobs:     jobs,
		events:   events,
		registry: registry,
		logger:   logger,
		workerID: opts.WorkerID,
		backoff:  backoff,
		leaseTTL: leaseTTL,
	}
}

// ReconcileOnce 认领并处理一个任务；无任务可做返回 false
func (r *Reconciler) ReconcileOnce(ctx context.Context) (bool, error) {
	tickStart := time.Now()
	defer func() {
		metrics.ReconcileTickDurationSeconds.Observe(time.Since(tickStart).Seconds())
	}()

	if reclaimed, err := r.jobs.ReclaimOrphans(ctx, r.leaseTTL, time.Now()); err != nil {
		r.logw("orphan reclaim failed", "error", err)
	} else if reclaimed > 0 {
		r.logw("reclaimed orphan jobs", "count", reclaimed)
	}

	j, ok, err := r.jobs.Claim(ctx, r.workerID, time.Now())
	if err != nil {
		metrics.ClaimTotal.WithLabelValues("false").Inc()
		return false, err
	}
	if !ok {
		metrics.ClaimTotal.WithLabelValues("false").Inc()
		return false, nil
	}
	metrics.ClaimTotal.WithLabelValues("true").Inc()

	r.process(ctx, j)
	return true, nil
}

// process 单任务处理；所有失败路径都落回任务行，不向上抛
func (r *Reconciler) process(ctx context.Context, j Job) {
	ctx, span := tracing.StartJobSpan(ctx, j.ID, j.Type)
	defer span.End()

	// 目标实体缺失或已终止 → 幂等丢弃
	if j.EntityID != "" {
		discard, reason := r.targetGone(ctx, j)
		if discard {
			now := time.Now()
			j.Status = StatusCompleted
			j.Result = "noop: " + reason
			j.CompletedAt = now
			r.finish(ctx, j, Run{Outcome: "completed", StartedAt: now, FinishedAt: now})
			return
		}
	}

	exec, ok := r.registry.Lookup(j.Type)
	if !ok {
		// 配置错误，不重试
		now := time.Now()
		j.Status = StatusFailed
		j.Error = fmt.Sprintf("no executor registered for job type %q", j.Type)
		j.CompletedAt = now
		r.finish(ctx, j, Run{Outcome: "failed", Error: j.Error, StartedAt: now, FinishedAt: now})
		metrics.JobFailTotal.WithLabelValues(j.Type).Inc()
		return
	}

	j.Attempts++
	started := time.Now()
	result, execErr := r.runGuarded(ctx, exec, j)
	finished := time.Now()
	metrics.JobDuration.WithLabelValues(j.Type).Observe(finished.Sub(started).Seconds())

	run := Run{JobID: j.ID, WorkerID: r.workerID, Attempt: j.Attempts, StartedAt: started, FinishedAt: finished}

	switch {
	case execErr != nil:
		run.Error = execErr.Error()
		if j.Attempts < j.MaxAttempts {
			retryIn := r.backoff
			j.Status = StatusWaiting
			j.RunAt = finished.Add(retryIn)
			j.Error = execErr.Error()
			run.Outcome = "waiting"
		} else {
			j.Status = StatusFailed
			j.Error = execErr.Error()
			j.CompletedAt = finished
			run.Outcome = "failed"
			metrics.JobFailTotal.WithLabelValues(j.Type).Inc()
		}
	case result.Status == StatusWaiting:
		retryIn := result.RetryIn
		if retryIn <= 0 {
			retryIn = r.backoff
		}
		j.Status = StatusWaiting
		j.RunAt = finished.Add(retryIn)
		j.Result = result.Output
		run.Outcome = "waiting"
	case result.Status == StatusFailed:
		j.Status = StatusFailed
		j.Error = result.Output
		j.CompletedAt = finished
		run.Outcome = "failed"
		metrics.JobFailTotal.WithLabelValues(j.Type).Inc()
	default:
		j.Status = StatusCompleted
		j.Result = result.Output
		j.CompletedAt = finished
		run.Outcome = "completed"
	}

	r.finish(ctx, j, run)
}

// runGuarded 执行器调用边界：panic 转 error，任务绝不卡死在 running
func (r *Reconciler) runGuarded(ctx context.Context, exec Executor, j Job) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panic: %v", rec)
		}
	}()
	return exec(ctx, j)
}

// targetGone 目标实体是否缺失或已终止
func (r *Reconciler) targetGone(ctx context.Context, j Job) (bool, string) {
	events, _, err := r.events.ListEvents(ctx, j.EntityID)
	if err != nil {
		if errors.Is(err, eventlog.ErrEntityNotFound) {
			return true, "target entity missing"
		}
		// 读失败视为瞬态，交给执行器自己处理
		return false, ""
	}
	if eventlog.HasKind(events, eventlog.KindDocumentCancelled) {
		return true, "target entity cancelled"
	}
	return false, ""
}

func (r *Reconciler) finish(ctx context.Context, j Job, run Run) {
	run.JobID = j.ID
	if run.WorkerID == "" {
		run.WorkerID = r.workerID
	}
	if err := r.jobs.Update(ctx, j); err != nil {
		r.logw("job result writeback failed", "job_id", j.ID, "status", string(j.Status), "error", err)
	}
	if err := r.jobs.AppendRun(ctx, run); err != nil {
		r.logw("job run audit append failed", "job_id", j.ID, "error", err)
	}
	metrics.JobTotal.WithLabelValues(j.Type, string(j.Status)).Inc()
	r.logw("job processed", "job_id", j.ID, "type", j.Type, "status", string(j.Status),
		"attempts", j.Attempts, "error", j.Error)
}

func (r *Reconciler) logw(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

// RunLoop 持续 reconcile 直至 ctx 取消；无任务时按 idle 间隔休眠
func (r *Reconciler) RunLoop(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		idle = 2 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		did, err := r.ReconcileOnce(ctx)
		if err != nil {
			r.logw("reconcile pass failed", "error", err)
		}
		if !did {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
		}
	}
}
