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

package anchor

import (
	"context"
	"errors"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("anchor: record not found")
	// ErrDuplicate 每 (实体, 链) 至多一条记录
	ErrDuplicate = errors.New("anchor: record already exists for entity and network")
)

// Store 锚定记录存储
type Store interface {
	// Create 登记新记录；(EntityID, Network) 冲突返回 ErrDuplicate
	Create(ctx context.Context, rec Record) (Record, error)
	// Get 按 (实体, 链) 查找；不存在返回 ErrNotFound
	Get(ctx context.Context, entityID string, network Network) (Record, error)
	// Update 整行替换；不存在返回 ErrNotFound
	Update(ctx context.Context, rec Record) error
	// ListByEntity 返回该实体全部记录
	ListByEntity(ctx context.Context, entityID string) ([]Record, error)
	// ListDue 返回重试已到期且未终态的记录（供确认巡检）
	ListDue(ctx context.Context, limit int) ([]Record, error)
}
