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

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"notary-platform/internal/anchor"
	"notary-platform/pkg/secrets"
	"notary-platform/pkg/tracing"
)

// Receipt 链上回执；confirmed_at 线上格式为 RFC3339，pending 时为零值
type Receipt struct {
	Status      string    `json:"status"` // confirmed | pending | not_found
	TxRef       string    `json:"tx_ref"`
	BlockHeight int64     `json:"block_height"`
	BlockHash   string    `json:"block_hash"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// AnchorClient 单链锚定客户端
type AnchorClient struct {
	network  anchor.Network
	endpoint string
	client   *resty.Client
	creds    secrets.Store
	credKey  string
}

// AnchorClientOptions AnchorClient 构造参数
type AnchorClientOptions struct {
	Network  anchor.Network
	Endpoint string
	Timeout  time.Duration // <=0 用默认 30s
}

// NewAnchorClient 创建锚定链客户端
func NewAnchorClient(opts AnchorClientOptions, creds secrets.Store) (*AnchorClient, error) {
	var credKey string
	switch opts.Network {
	case anchor.NetworkPolygon:
		credKey = secrets.KeyPolygonAPIKey
	case anchor.NetworkBitcoin:
		credKey = secrets.KeyBitcoinAPIKey
	default:
		return nil, fmt.Errorf("gateway: unsupported anchor network %q", opts.Network)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)
	return &AnchorClient{
		network:  opts.Network,
		endpoint: opts.Endpoint,
		client:   client,
		creds:    creds,
		credKey:  credKey,
	}, nil
}

// Network 客户端对应的链
func (c *AnchorClient) Network() anchor.Network {
	return c.network
}

// Submit 提交见证哈希上链，返回交易引用
func (c *AnchorClient) Submit(ctx context.Context, witnessHash string) (string, error) {
	ctx, span := tracing.StartGatewaySpan(ctx, string(c.network), "anchor.submit")
	defer span.End()

	apiKey, err := c.creds.Get(ctx, c.credKey)
	if err != nil {
		return "", fmt.Errorf("%s credential: %w", c.network, err)
	}

	var result struct {
		TxRef string `json:"tx_ref"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(map[string]string{"witness_hash": witnessHash}).
		SetResult(&result).
		Post(c.endpoint + "/anchors")
	if err != nil {
		return "", fmt.Errorf("%s submit: %w", c.network, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("%s submit failed: status %d: %s", c.network, resp.StatusCode(), resp.String())
	}
	if result.TxRef == "" {
		return "", fmt.Errorf("%s submit returned empty tx_ref", c.network)
	}
	return result.TxRef, nil
}

// GetReceipt 查询交易回执；网络侧未收录返回 status=not_found，不报错
func (c *AnchorClient) GetReceipt(ctx context.Context, txRef string) (Receipt, error) {
	ctx, span := tracing.StartGatewaySpan(ctx, string(c.network), "anchor.receipt")
	defer span.End()

	apiKey, err := c.creds.Get(ctx, c.credKey)
	if err != nil {
		return Receipt{}, fmt.Errorf("%s credential: %w", c.network, err)
	}

	var receipt Receipt
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetResult(&receipt).
		Get(c.endpoint + "/anchors/" + txRef)
	if err != nil {
		return Receipt{}, fmt.Errorf("%s receipt: %w", c.network, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Receipt{Status: "not_found", TxRef: txRef}, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return Receipt{}, fmt.Errorf("%s receipt failed: status %d: %s", c.network, resp.StatusCode(), resp.String())
	}
	if receipt.TxRef == "" {
		receipt.TxRef = txRef
	}
	return receipt, nil
}
