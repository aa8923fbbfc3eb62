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
	"testing"
	"time"
)

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec, err := s.Create(ctx, Record{EntityID: "doc-1", Network: NetworkPolygon, WitnessHash: "wh-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.Status != StatusQueued {
		t.Fatalf("默认值未填充: %+v", rec)
	}

	if _, err := s.Create(ctx, Record{EntityID: "doc-1", Network: NetworkPolygon}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("期望 ErrDuplicate，got %v", err)
	}
	// 另一条链允许
	if _, err := s.Create(ctx, Record{EntityID: "doc-1", Network: NetworkBitcoin}); err != nil {
		t.Fatalf("bitcoin Create: %v", err)
	}

	got, err := s.Get(ctx, "doc-1", NetworkPolygon)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("Get: %+v err=%v", got, err)
	}

	got.Status = StatusSubmitted
	got.TxRef = "0xabc"
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = s.Get(ctx, "doc-1", NetworkPolygon)
	if got.Status != StatusSubmitted || got.TxRef != "0xabc" {
		t.Fatalf("更新未生效: %+v", got)
	}

	if err := s.Update(ctx, Record{EntityID: "doc-x", Network: NetworkPolygon}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}

	recs, err := s.ListByEntity(ctx, "doc-1")
	if err != nil || len(recs) != 2 {
		t.Fatalf("ListByEntity: %d err=%v", len(recs), err)
	}
}

func TestMemoryStore_ListDue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	mk := func(entity string, network Network, status Status, next time.Time) {
		rec, err := s.Create(ctx, Record{EntityID: entity, Network: network, Status: status})
		if err != nil {
			t.Fatalf("Create %s: %v", entity, err)
		}
		rec.Status = status
		rec.NextRetryAt = next
		if err := s.Update(ctx, rec); err != nil {
			t.Fatalf("Update %s: %v", entity, err)
		}
	}

	mk("doc-due", NetworkPolygon, StatusSubmitted, now.Add(-time.Minute))
	mk("doc-later", NetworkPolygon, StatusSubmitted, now.Add(time.Hour))
	mk("doc-confirmed", NetworkPolygon, StatusConfirmed, now.Add(-time.Minute))
	mk("doc-queued", NetworkPolygon, StatusQueued, time.Time{})

	due, err := s.ListDue(ctx, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].EntityID != "doc-due" {
		t.Fatalf("got %+v", due)
	}

	// 终态与未提交的不进巡检
	for _, rec := range due {
		if rec.IsTerminal() || rec.Status != StatusSubmitted {
			t.Errorf("非法巡检对象: %+v", rec)
		}
	}
}
