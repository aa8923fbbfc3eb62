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

package http

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"notary-platform/internal/eventlog"
	"notary-platform/internal/orchestrator"
)

// enqueueJobRequest 手工入队请求（运维面；常规任务由 Worker 决策巡检派生）
type enqueueJobRequest struct {
	Type     string          `json:"type"`
	EntityID string          `json:"entity_id"`
	Network  string          `json:"network"`
	Payload  json.RawMessage `json:"payload"`
	Priority int             `json:"priority"`
}

// jobView Job 的对外视图
type jobView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	EntityID    string `json:"entity_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	RunAt       string `json:"run_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toJobView(j orchestrator.Job) jobView {
	return jobView{
		ID:          j.ID,
		Type:        j.Type,
		EntityID:    j.EntityID,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Result:      j.Result,
		Error:       j.Error,
		RunAt:       formatTime(j.RunAt),
		CreatedAt:   formatTime(j.CreatedAt),
		CompletedAt: formatTime(j.CompletedAt),
	}
}

// EnqueueJob 入队一个任务；DedupeKey 命中非终态任务时幂等返回已有任务
// POST /api/jobs
func (h *Handler) EnqueueJob(c context.Context, ctx *app.RequestContext) {
	var req enqueueJobRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Type == "" || req.EntityID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "type and entity_id are required"})
		return
	}
	if _, err := h.events.GetEntity(c, req.EntityID); err != nil {
		if errors.Is(err, eventlog.ErrEntityNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "document not found"})
			return
		}
		h.serverError(c, ctx, "load entity", err)
		return
	}
	payload := []byte(req.Payload)
	if len(payload) == 0 && req.Network != "" {
		payload, _ = json.Marshal(map[string]string{"network": req.Network})
	}
	j, err := h.jobs.Enqueue(c, orchestrator.Job{
		Type:      req.Type,
		EntityID:  req.EntityID,
		Payload:   payload,
		Status:    orchestrator.StatusPending,
		Priority:  req.Priority,
		DedupeKey: orchestrator.DedupeKeyFor(req.Type, req.EntityID, req.Network),
	})
	if err != nil {
		h.serverError(c, ctx, "enqueue job", err)
		return
	}
	ctx.JSON(consts.StatusCreated, toJobView(j))
}

// GetJob 按 ID 查询任务
// GET /api/jobs/:id
func (h *Handler) GetJob(c context.Context, ctx *app.RequestContext) {
	j, err := h.jobs.Get(c, ctx.Param("id"))
	if err != nil {
		h.jobError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, toJobView(j))
}

// CancelJob 请求取消任务；已吸收态返回 409
// POST /api/jobs/:id/cancel
func (h *Handler) CancelJob(c context.Context, ctx *app.RequestContext) {
	err := h.jobs.RequestCancel(c, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrTerminal) {
			ctx.JSON(consts.StatusConflict, map[string]string{"error": "job already terminal"})
			return
		}
		h.jobError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"status": "cancelled"})
}

// ListEntityJobs 返回实体的全部任务
// GET /api/documents/:id/jobs
func (h *Handler) ListEntityJobs(c context.Context, ctx *app.RequestContext) {
	jobs, err := h.jobs.ListByEntity(c, ctx.Param("id"))
	if err != nil {
		h.serverError(c, ctx, "list jobs", err)
		return
	}
	out := make([]jobView, len(jobs))
	for i, j := range jobs {
		out[i] = toJobView(j)
	}
	ctx.JSON(consts.StatusOK, map[string]any{"jobs": out})
}

// ListJobRuns 返回任务的执行审计记录
// GET /api/jobs/:id/runs
func (h *Handler) ListJobRuns(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if _, err := h.jobs.Get(c, id); err != nil {
		h.jobError(c, ctx, err)
		return
	}
	runs, err := h.jobs.ListRuns(c, id)
	if err != nil {
		h.serverError(c, ctx, "list runs", err)
		return
	}
	out := make([]map[string]any, len(runs))
	for i, r := range runs {
		out[i] = map[string]any{
			"id":          r.ID,
			"worker_id":   r.WorkerID,
			"attempt":     r.Attempt,
			"outcome":     r.Outcome,
			"error":       r.Error,
			"started_at":  formatTime(r.StartedAt),
			"finished_at": formatTime(r.FinishedAt),
		}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"runs": out})
}

// ListDeadLetters 返回最终失败的任务
// GET /api/jobs/dead-letters
func (h *Handler) ListDeadLetters(c context.Context, ctx *app.RequestContext) {
	jobs, err := h.jobs.ListDeadLetters(c, 100)
	if err != nil {
		h.serverError(c, ctx, "list dead letters", err)
		return
	}
	out := make([]jobView, len(jobs))
	for i, j := range jobs {
		out[i] = toJobView(j)
	}
	ctx.JSON(consts.StatusOK, map[string]any{"jobs": out})
}

func (h *Handler) jobError(c context.Context, ctx *app.RequestContext, err error) {
	if errors.Is(err, orchestrator.ErrJobNotFound) {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	h.serverError(c, ctx, "load job", err)
}
