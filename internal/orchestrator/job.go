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

import "time"

// Status 任务状态；completed / failed / cancelled 为吸收态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal 是否吸收态
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job 队列任务实体；真正的事实在事件日志里，Job 只是驱动副作用的工单
type Job struct {
	ID          string
	Type        string // 执行器注册名，如 run_tsa / submit_anchor_polygon
	EntityID    string
	Payload     []byte // JSON，按 Type 语义定义
	Status      Status
	Priority    int
	Attempts    int
	MaxAttempts int
	DedupeKey   string // type + entity + 判别参数；非终态任务内去重
	RunAt       time.Time
	LockedBy    string
	Result      string
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	UpdatedAt   time.Time
}

// Run 单次执行审计记录
type Run struct {
	ID         string
	JobID      string
	WorkerID   string
	Attempt    int
	Outcome    string // completed | failed | waiting | panic
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// DedupeKeyFor 组装去重键；discriminator 区分同类型同实体的不同子任务（如链名）
func DedupeKeyFor(jobType, entityID, discriminator string) string {
	key := jobType + "/" + entityID
	if discriminator != "" {
		key += "/" + discriminator
	}
	return key
}
