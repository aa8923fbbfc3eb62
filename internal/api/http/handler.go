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

// Package http HTTP API：事件日志是唯一事实源，这里只做读写编排
package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"notary-platform/internal/anchor"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
	"notary-platform/pkg/log"
	"notary-platform/pkg/metrics"
)

// Handler HTTP 请求处理器
type Handler struct {
	events    eventlog.Store
	jobs      orchestrator.Store
	anchors   anchor.Store
	rows      projection.Store
	rebuilder *projection.Rebuilder
	mode      eventlog.Mode
	logger    *log.Logger
}

// NewHandler 创建处理器
func NewHandler(events eventlog.Store, jobs orchestrator.Store, anchors anchor.Store, rows projection.Store, mode eventlog.Mode, logger *log.Logger) *Handler {
	h := &Handler{
		events:  events,
		jobs:    jobs,
		anchors: anchors,
		rows:    rows,
		mode:    mode,
		logger:  logger,
	}
	if events != nil && rows != nil {
		h.rebuilder = projection.NewRebuilder(events, rows)
	}
	return h
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Metrics Prometheus 指标导出
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
