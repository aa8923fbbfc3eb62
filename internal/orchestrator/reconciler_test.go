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

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notary-platform/internal/eventlog"
)

func newTestReconciler(t *testing.T, registry *Registry) (*Reconciler, Store, eventlog.Store) {
	t.Helper()
	jobs := NewMemoryStore()
	events := eventlog.NewMemoryStore()
	r := NewReconciler(jobs, events, registry, nil, ReconcilerOptions{
		WorkerID: "w-test",
		Backoff:  time.Minute,
	})
	return r, jobs, events
}

func seedEntity(t *testing.T, events eventlog.Store, entityID string, kinds ...eventlog.Kind) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, events.CreateEntity(ctx, eventlog.DocumentEntity{ID: entityID, WitnessHash: "wh-1"}))
	for i, kind := range kinds {
		_, err := events.Append(ctx, entityID, i,
			eventlog.Event{Kind: kind, Payload: []byte(`{}`), At: time.Now()},
			eventlog.AppendOptions{Mode: eventlog.ModePermissive})
		require.NoError(t, err)
	}
}

func TestReconcileOnce_NoJobs(t *testing.T) {
	r, _, _ := newTestReconciler(t, NewRegistry())
	did, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, did)
}

func TestReconcileOnce_HappyPath(t *testing.T) {
	registry := NewRegistry()
	executed := false
	registry.Register("run_tsa", func(ctx context.Context, j Job) (Result, error) {
		executed = true
		return Result{Status: StatusCompleted, Output: "stamped"}, nil
	})
	r, jobs, events := newTestReconciler(t, registry)
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "run_tsa", EntityID: "doc-1"})
	did, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.True(t, did)
	assert.True(t, executed)

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "stamped", got.Result)
	assert.False(t, got.CompletedAt.IsZero())
	assert.Equal(t, 1, got.Attempts)

	runs, _ := jobs.ListRuns(context.Background(), j.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Outcome)
}

func TestReconcileOnce_MissingTargetIsNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Register("run_tsa", func(ctx context.Context, j Job) (Result, error) {
		t.Fatal("缺失目标不应执行")
		return Result{}, nil
	})
	r, jobs, _ := newTestReconciler(t, registry)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "run_tsa", EntityID: "doc-ghost"})
	did, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.True(t, did)

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Contains(t, got.Result, "noop")
}

func TestReconcileOnce_CancelledTargetIsNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Register("submit_anchor", func(ctx context.Context, j Job) (Result, error) {
		t.Fatal("已取消实体不应执行")
		return Result{}, nil
	})
	r, jobs, events := newTestReconciler(t, registry)
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested, eventlog.KindDocumentCancelled)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "submit_anchor", EntityID: "doc-1"})
	_, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Contains(t, got.Result, "cancelled")
}

func TestReconcileOnce_UnregisteredTypeFailsImmediately(t *testing.T) {
	r, jobs, events := newTestReconciler(t, NewRegistry())
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "no_such_type", EntityID: "doc-1", MaxAttempts: 5})
	_, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusFailed, got.Status, "配置错误不重试")
	assert.Contains(t, got.Error, "no executor registered")
	assert.Equal(t, 0, got.Attempts)
}

func TestReconcileOnce_TransientErrorGoesWaitingThenFailed(t *testing.T) {
	registry := NewRegistry()
	registry.Register("flaky", func(ctx context.Context, j Job) (Result, error) {
		return Result{}, errors.New("network down")
	})
	r, jobs, events := newTestReconciler(t, registry)
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "flaky", EntityID: "doc-1", MaxAttempts: 2})

	// 第一次：waiting + backoff
	_, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.True(t, got.RunAt.After(time.Now()), "RunAt 应排到未来")
	assert.Equal(t, 1, got.Attempts)

	// RunAt 未到时不可认领
	did, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, did)

	// 把 RunAt 拨回过去，第二次失败后到达 MaxAttempts → failed
	got.RunAt = time.Now().Add(-time.Second)
	require.NoError(t, jobs.Update(context.Background(), got))
	_, err = r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	got, _ = jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "network down")

	runs, _ := jobs.ListRuns(context.Background(), j.ID)
	require.Len(t, runs, 2)
	assert.Equal(t, "waiting", runs[0].Outcome)
	assert.Equal(t, "failed", runs[1].Outcome)
}

func TestReconcileOnce_PanicCaught(t *testing.T) {
	registry := NewRegistry()
	registry.Register("bomb", func(ctx context.Context, j Job) (Result, error) {
		panic("kaboom")
	})
	r, jobs, events := newTestReconciler(t, registry)
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "bomb", EntityID: "doc-1", MaxAttempts: 1})
	_, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err, "panic 不得击穿循环")

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "executor panic")
}

func TestReconcileOnce_ExecutorRequestsWaiting(t *testing.T) {
	registry := NewRegistry()
	registry.Register("poll", func(ctx context.Context, j Job) (Result, error) {
		return Result{Status: StatusWaiting, Output: "receipt pending", RetryIn: 10 * time.Minute}, nil
	})
	r, jobs, events := newTestReconciler(t, registry)
	seedEntity(t, events, "doc-1", eventlog.KindProtectedRequested)

	j, _ := jobs.Enqueue(context.Background(), Job{Type: "poll", EntityID: "doc-1", MaxAttempts: 10})
	_, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)

	got, _ := jobs.Get(context.Background(), j.ID)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Equal(t, "receipt pending", got.Result)
	assert.True(t, got.RunAt.After(time.Now().Add(9*time.Minute)))
}
