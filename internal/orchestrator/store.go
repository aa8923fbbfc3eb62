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
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("orchestrator: job not found")
	// ErrTerminal 任务已处于吸收态，不可再变更
	ErrTerminal = errors.New("orchestrator: job in terminal state")
)

// Store 任务队列存储。Claim 必须原子：同一任务至多一个认领者。
type Store interface {
	// Enqueue 入队；DedupeKey 与某个非终态任务重合时返回已有任务（幂等入队）
	Enqueue(ctx context.Context, j Job) (Job, error)
	// Get 按 ID 查找
	Get(ctx context.Context, id string) (Job, error)
	// Claim 原子认领一个到期的待执行任务（pending 或 RunAt 已到的 waiting），
	// 置 running 并记录认领者；无可认领任务返回 ok=false
	Claim(ctx context.Context, workerID string, now time.Time) (Job, bool, error)
	// Update 整行替换（执行结果回写）；吸收态行拒绝更新
	Update(ctx context.Context, j Job) error
	// RequestCancel 任一非吸收态 → cancelled；已吸收返回 ErrTerminal
	RequestCancel(ctx context.Context, id string) error
	// ListByEntity 返回该实体的全部任务
	ListByEntity(ctx context.Context, entityID string) ([]Job, error)
	// ListDeadLetters 返回最终失败的任务（运维排查面）
	ListDeadLetters(ctx context.Context, limit int) ([]Job, error)
	// CountPending 返回待执行任务数（pending + waiting，供队列深度指标）
	CountPending(ctx context.Context) (int, error)
	// ReclaimOrphans 把 running 且超过租约未更新的任务放回 pending，返回回收条数
	ReclaimOrphans(ctx context.Context, leaseTTL time.Duration, now time.Time) (int, error)
	// AppendRun 追加一条执行审计记录
	AppendRun(ctx context.Context, run Run) error
	// ListRuns 返回该任务的执行审计（按时间序）
	ListRuns(ctx context.Context, jobID string) ([]Run, error)
}
