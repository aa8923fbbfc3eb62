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
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"notary-platform/pkg/log"
)

// Message 待派发通知
type Message struct {
	Recipient string
	EventType string // 如 signer.link / change.requested
	Workflow  string
	Subject   string
	Body      string
}

// IdempotencyKey 收件人 + 事件类型 + 工作流 的 sha256；同一意图只发一次
func (m Message) IdempotencyKey() string {
	sum := sha256.Sum256([]byte(m.Recipient + "|" + m.EventType + "|" + m.Workflow))
	return "notify:" + hex.EncodeToString(sum[:])
}

// DedupeStore 幂等键存储；MarkOnce 原子置位，已存在返回 false。
// Release 撤销置位，发送失败时归还幂等键给下次重试。
type DedupeStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// memoryDedupe 进程内实现，供测试与单机部署
type memoryDedupe struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupe 创建内存去重存储
func NewMemoryDedupe() DedupeStore {
	return &memoryDedupe{seen: make(map[string]time.Time)}
}

func (d *memoryDedupe) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if expiry, ok := d.seen[key]; ok && expiry.After(now) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

func (d *memoryDedupe) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// redisDedupe 多实例部署用 Redis SETNX 去重
type redisDedupe struct {
	client *redis.Client
}

// NewRedisDedupe 创建 Redis 去重存储
func NewRedisDedupe(addr, password string, db int) DedupeStore {
	return &redisDedupe{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (d *redisDedupe) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), ttl).Result()
}

func (d *redisDedupe) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, key).Err()
}

// Sender 真正把通知送出去的后端（邮件、webhook……）
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher 通知派发：先抢幂等键再发送，重复意图静默丢弃
type Dispatcher struct {
	sender Sender
	dedupe DedupeStore
	ttl    time.Duration
	logger *log.Logger
}

// NewDispatcher 创建派发器；ttl<=0 用默认 72h
func NewDispatcher(sender Sender, dedupe DedupeStore, ttl time.Duration, logger *log.Logger) *Dispatcher {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Dispatcher{sender: sender, dedupe: dedupe, ttl: ttl, logger: logger}
}

// Dispatch 派发通知；返回是否实际发送
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (bool, error) {
	key := msg.IdempotencyKey()
	first, err := d.dedupe.MarkOnce(ctx, key, d.ttl)
	if err != nil {
		return false, err
	}
	if !first {
		if d.logger != nil {
			d.logger.Debug("notification deduped", "key", key, "recipient", msg.Recipient, "event", msg.EventType)
		}
		return false, nil
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		// 发送失败必须归还幂等键，否则重试会被自己挡住、通知永久丢失
		if relErr := d.dedupe.Release(ctx, key); relErr != nil && d.logger != nil {
			d.logger.Warn("dedupe key release failed", "key", key, "error", relErr)
		}
		return false, err
	}
	if d.logger != nil {
		d.logger.Info("notification sent", "recipient", msg.Recipient, "event", msg.EventType, "workflow", msg.Workflow)
	}
	return true, nil
}
