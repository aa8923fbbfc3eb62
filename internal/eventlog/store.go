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

package eventlog

import (
	"context"
	"errors"

	"notary-platform/pkg/proof"
)

var (
	// ErrEntityNotFound 实体不存在
	ErrEntityNotFound = errors.New("eventlog: entity not found")
	// ErrVersionMismatch Append 时当前 version 与 expectedVersion 不一致
	ErrVersionMismatch = errors.New("eventlog: version mismatch on append")
	// ErrEntityExists CreateEntity 时 ID 已被占用
	ErrEntityExists = errors.New("eventlog: entity already exists")
)

// Store 文档事件存储：每实体一条事件流，版本化追加是唯一写路径
type Store interface {
	// CreateEntity 登记一个新文档实体（无事件）；ID 冲突返回 ErrEntityExists
	CreateEntity(ctx context.Context, entity DocumentEntity) error
	// GetEntity 返回实体（含全部事件，按序）；不存在返回 ErrEntityNotFound
	GetEntity(ctx context.Context, entityID string) (DocumentEntity, error)
	// ListEvents 返回该实体的完整事件列表（按序）及当前 version（事件条数）
	ListEvents(ctx context.Context, entityID string) ([]Event, int, error)
	// Append 仅当 expectedVersion 等于当前 version 时校验并追加，返回 newVersion；
	// 版本不一致返回 ErrVersionMismatch，校验失败返回 *RejectError
	Append(ctx context.Context, entityID string, expectedVersion int, event Event, opts AppendOptions) (newVersion int, err error)
	// ListEntityIDs 返回全部实体 ID（供 reconcile 巡检与投影重建）
	ListEntityIDs(ctx context.Context) ([]string, error)
}

// toProofEvent 转换为 proof chain 的哈希输入形态
func toProofEvent(e Event) proof.Event {
	return proof.Event{
		ID:       e.ID,
		EntityID: e.EntityID,
		Kind:     string(e.Kind),
		Payload:  string(e.Payload),
		At:       e.At,
		PrevHash: e.PrevHash,
		Hash:     e.Hash,
	}
}

// ToProofEvents 批量转换，供证明包导出使用
func ToProofEvents(events []Event) []proof.Event {
	out := make([]proof.Event, len(events))
	for i, e := range events {
		out[i] = toProofEvent(e)
	}
	return out
}
