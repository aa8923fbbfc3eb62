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
	"sync"
	"time"
)

// Result 执行器返回的处理结果
type Result struct {
	Status  Status        // completed | failed | waiting
	Output  string        // 结果摘要，回写 Job.Result
	RetryIn time.Duration // Status=waiting 时的再调度间隔；0 用 Reconciler 默认 backoff
}

// Executor 任务执行器；返回 error 表示瞬态失败，可按次数重试
type Executor func(ctx context.Context, j Job) (Result, error)

// Registry 执行器注册表；新增任务类型 = 注册一个执行器
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register 注册执行器；同名覆盖
func (r *Registry) Register(jobType string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[jobType] = exec
}

// Lookup 查找执行器
func (r *Registry) Lookup(jobType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[jobType]
	return exec, ok
}

// Types 返回全部已注册类型（无序）
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}
