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

package projection

import (
	"context"
	"encoding/json"
	"time"

	"notary-platform/internal/eventlog"
	"notary-platform/pkg/metrics"
)

func unmarshalPayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// RequestedNetworks 从 document.protected.requested 的 payload 取出所需锚定链
func RequestedNetworks(events []eventlog.Event) []string {
	e, ok := eventlog.LastOfKind(events, eventlog.KindProtectedRequested)
	if !ok {
		return nil
	}
	var p struct {
		Networks []string `json:"networks"`
	}
	if err := unmarshalPayload(e.Payload, &p); err != nil {
		return nil
	}
	return p.Networks
}

// Rebuilder 从事件日志整行重建读模型
type Rebuilder struct {
	events eventlog.Store
	rows   Store
}

// NewRebuilder 创建 Rebuilder
func NewRebuilder(events eventlog.Store, rows Store) *Rebuilder {
	return &Rebuilder{events: events, rows: rows}
}

// Rebuild 重放单实体事件流并整行替换投影
func (r *Rebuilder) Rebuild(ctx context.Context, entityID string) (Row, error) {
	events, _, err := r.events.ListEvents(ctx, entityID)
	if err != nil {
		return Row{}, err
	}
	row := Derive(entityID, events, RequestedNetworks(events))
	row.RebuiltAt = time.Now()
	if err := r.rows.Put(ctx, row); err != nil {
		return Row{}, err
	}
	metrics.ProjectionRebuildTotal.Inc()
	return row, nil
}

// RebuildAll 重建全部实体；返回重建条数，单实体失败中断并报错
func (r *Rebuilder) RebuildAll(ctx context.Context) (int, error) {
	ids, err := r.events.ListEntityIDs(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if _, err := r.Rebuild(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
