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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"notary-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler      *Handler
	middleware   *middleware.Middleware
	rateLimitRPS int
	adminToken   string
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetRateLimitRPS 全局限流；<=0 不限
func (r *Router) SetRateLimitRPS(rps int) {
	r.rateLimitRPS = rps
}

// SetAdminToken 管理面令牌；空则管理接口返回 503
func (r *Router) SetAdminToken(token string) {
	r.adminToken = token
}

// Build 构建 Hertz Server 并挂载路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	hertzOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(hertzOpts...)

	h.Use(r.middleware.CORS())
	if r.rateLimitRPS > 0 {
		h.Use(r.middleware.RateLimit(r.rateLimitRPS))
	}

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	documents := api.Group("/documents")
	{
		documents.POST("", r.handler.CreateDocument)
		documents.GET("/:id", r.handler.GetDocument)
		documents.POST("/:id/events", r.handler.AppendEvent)
		documents.POST("/:id/cancel", r.handler.CancelDocument)
		documents.GET("/:id/projection", r.handler.GetProjection)
		documents.POST("/:id/projection/rebuild", r.handler.RebuildProjection)
		documents.GET("/:id/verify", r.handler.VerifyDocument)
		documents.GET("/:id/export", r.handler.ExportEvidence)
		documents.GET("/:id/anchors", r.handler.ListAnchors)
		documents.GET("/:id/jobs", r.handler.ListEntityJobs)
	}

	jobs := api.Group("/jobs")
	{
		jobs.POST("", r.handler.EnqueueJob)
		jobs.GET("/dead-letters", r.handler.ListDeadLetters)
		jobs.GET("/:id", r.handler.GetJob)
		jobs.POST("/:id/cancel", r.handler.CancelJob)
		jobs.GET("/:id/runs", r.handler.ListJobRuns)
	}

	admin := api.Group("/admin", r.middleware.AdminAuth(r.adminToken))
	{
		admin.POST("/anchors/repair", r.handler.RepairAnchors)
		admin.POST("/documents/:id/decision/shadow", r.handler.ShadowDecision)
	}

	return h
}
