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
	"sync"
	"testing"
	"time"

	"notary-platform/pkg/proof"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s := NewMemoryStore()
	err := s.CreateEntity(context.Background(), DocumentEntity{
		ID:          "doc-1",
		SourceHash:  "sh-1",
		WitnessHash: testWitness,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	return s
}

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Append(ctx, "doc-1", 0, evt(KindProtectedRequested, `{}`), AppendOptions{Mode: ModePermissive})
	if err != nil || v != 1 {
		t.Fatalf("Append #1: v=%d err=%v", v, err)
	}
	v, err = s.Append(ctx, "doc-1", 1, evt(KindTSAConfirmed, `{"witness_hash":"wh-abc123","token_b64":"dG9r"}`), AppendOptions{Mode: ModePermissive})
	if err != nil || v != 2 {
		t.Fatalf("Append #2: v=%d err=%v", v, err)
	}

	events, version, err := s.ListEvents(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if version != 2 || len(events) != 2 {
		t.Fatalf("version=%d len=%d", version, len(events))
	}
	if events[0].Kind != KindProtectedRequested || events[1].Kind != KindTSAConfirmed {
		t.Errorf("事件顺序错乱: %v %v", events[0].Kind, events[1].Kind)
	}
	if events[0].ID == "" || events[0].Hash == "" {
		t.Errorf("追加后应填充 ID 与 hash: %+v", events[0])
	}
	if events[1].PrevHash != events[0].Hash {
		t.Errorf("hash chain 断裂: prev=%q want %q", events[1].PrevHash, events[0].Hash)
	}
	if err := proof.ValidateChain(ToProofEvents(events)); err != nil {
		t.Errorf("ValidateChain: %v", err)
	}
}

func TestMemoryStore_AppendTruncatesAtToMicroseconds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := evt(KindProtectedRequested, `{}`)
	e.At = time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC)
	if _, err := s.Append(ctx, "doc-1", 0, e, AppendOptions{Mode: ModePermissive}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, _, err := s.ListEvents(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if got := events[0].At; got.Nanosecond()%1000 != 0 {
		t.Fatalf("At 未截断到微秒: %v", got)
	}
	// TIMESTAMPTZ 只存微秒；截断后的时间戳重算哈希必须与入链时一致
	if h := proof.ComputeEventHash(ToProofEvents(events)[0]); h != events[0].Hash {
		t.Fatalf("微秒往返后哈希漂移: %s != %s", h, events[0].Hash)
	}
}

func TestMemoryStore_VersionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "doc-1", 3, evt(KindProtectedRequested, `{}`), AppendOptions{Mode: ModePermissive}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("期望 ErrVersionMismatch，got %v", err)
	}
	// 拒绝不改变日志
	_, version, err := s.ListEvents(ctx, "doc-1")
	if err != nil || version != 0 {
		t.Fatalf("version=%d err=%v", version, err)
	}
}

func TestMemoryStore_RejectLeavesLogUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "doc-1", 0, evt(KindArtifactCompleted, `{}`), AppendOptions{Mode: ModePermissive}); err == nil {
		t.Fatal("期望校验拒绝")
	}
	_, version, _ := s.ListEvents(ctx, "doc-1")
	if version != 0 {
		t.Fatalf("拒绝后日志应不变，version=%d", version)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, _, err := s.ListEvents(ctx, "doc-missing"); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("got %v", err)
	}
	if err := s.CreateEntity(ctx, DocumentEntity{ID: "doc-1"}); !errors.Is(err, ErrEntityExists) {
		t.Fatalf("got %v", err)
	}
}

func TestMemoryStore_ConcurrentAppendSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Append(ctx, "doc-1", 0,
				Event{Kind: KindProtectedRequested, Payload: []byte(`{}`), At: time.Now()},
				AppendOptions{Mode: ModePermissive})
			results[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		if _, isReject := AsReject(err); !errors.Is(err, ErrVersionMismatch) && !isReject {
			t.Errorf("非预期错误: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("同一 expectedVersion 下应恰有一个写者成功，got %d", wins)
	}
	_, version, _ := s.ListEvents(ctx, "doc-1")
	if version != 1 {
		t.Fatalf("version=%d", version)
	}
}
