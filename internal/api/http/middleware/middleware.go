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

package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// Middleware 中间件管理器
type Middleware struct {
	allowOrigins []string
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// SetAllowOrigins 限定 CORS 允许来源；空则放行全部
func (m *Middleware) SetAllowOrigins(origins []string) {
	m.allowOrigins = origins
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		origin := "*"
		if len(m.allowOrigins) > 0 {
			origin = strings.Join(m.allowOrigins, ", ")
		}
		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
		ctx.Header("Access-Control-Max-Age", "86400")

		if string(ctx.Method()) == "OPTIONS" {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}

// AdminAuth 管理面令牌校验；token 为空时管理接口整体关闭
func (m *Middleware) AdminAuth(token string) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if token == "" {
			ctx.AbortWithStatusJSON(consts.StatusServiceUnavailable, map[string]string{
				"error": "admin endpoints disabled",
			})
			return
		}
		if string(ctx.GetHeader("X-Admin-Token")) != token {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, map[string]string{
				"error": "invalid admin token",
			})
			return
		}
		ctx.Next(c)
	}
}

// RateLimit 速率限制中间件；rps<=0 不限流
func (m *Middleware) RateLimit(rps int) app.HandlerFunc {
	if rps <= 0 {
		return func(c context.Context, ctx *app.RequestContext) {
			ctx.Next(c)
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	return func(c context.Context, ctx *app.RequestContext) {
		if !limiter.Allow() {
			ctx.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}
		ctx.Next(c)
	}
}
