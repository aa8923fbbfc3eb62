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

// Package gateway 外部协作方客户端：TSA、锚定链、证明包构建、通知派发。
// 所有执行器的副作用都经由这里，幂等性在各客户端自身保证。
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"notary-platform/pkg/secrets"
	"notary-platform/pkg/tracing"
)

// TSAToken 时间戳签发结果；stamped_at 线上格式为 RFC3339
type TSAToken struct {
	TokenB64  string    `json:"token_b64"`
	Authority string    `json:"authority"`
	StampedAt time.Time `json:"stamped_at"`
}

// TSAClient 可信时间戳服务客户端
type TSAClient struct {
	endpoint string
	client   *resty.Client
	limiter  *rate.Limiter
	creds    secrets.Store
}

// TSAClientOptions TSAClient 构造参数
type TSAClientOptions struct {
	Endpoint string
	Timeout  time.Duration // <=0 用默认 30s
	QPS      float64       // <=0 不限流
	Burst    int           // <=0 用默认 1
}

// NewTSAClient 创建 TSA 客户端；API key 从 creds 按需取，不落配置
func NewTSAClient(opts TSAClientOptions, creds secrets.Store) *TSAClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	var limiter *rate.Limiter
	if opts.QPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.QPS), burst)
	}
	return &TSAClient{endpoint: opts.Endpoint, client: client, limiter: limiter, creds: creds}
}

// Stamp 为见证哈希签发可信时间戳
func (c *TSAClient) Stamp(ctx context.Context, witnessHash string) (TSAToken, error) {
	ctx, span := tracing.StartGatewaySpan(ctx, "tsa", "stamp")
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return TSAToken{}, err
		}
	}

	apiKey, err := c.creds.Get(ctx, secrets.KeyTSAAPIKey)
	if err != nil {
		return TSAToken{}, fmt.Errorf("tsa credential: %w", err)
	}

	var token TSAToken
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(map[string]string{"witness_hash": witnessHash}).
		SetResult(&token).
		Post(c.endpoint + "/stamp")
	if err != nil {
		return TSAToken{}, fmt.Errorf("tsa request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return TSAToken{}, fmt.Errorf("tsa stamp failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	if token.TokenB64 == "" {
		return TSAToken{}, fmt.Errorf("tsa stamp returned empty token")
	}
	return token, nil
}
