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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notary-platform/internal/anchor"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/gateway"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
)

type fakeTSA struct {
	token gateway.TSAToken
	err   error
	calls int
}

func (f *fakeTSA) Stamp(ctx context.Context, witnessHash string) (gateway.TSAToken, error) {
	f.calls++
	return f.token, f.err
}

type fakeChain struct {
	txRef      string
	submitErr  error
	receipt    gateway.Receipt
	receiptErr error
	submits    int
}

func (f *fakeChain) Submit(ctx context.Context, witnessHash string) (string, error) {
	f.submits++
	return f.txRef, f.submitErr
}

func (f *fakeChain) GetReceipt(ctx context.Context, txRef string) (gateway.Receipt, error) {
	return f.receipt, f.receiptErr
}

type fixture struct {
	execs   *Executors
	events  eventlog.Store
	jobs    orchestrator.Store
	anchors anchor.Store
	tsa     *fakeTSA
	polygon *fakeChain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := eventlog.NewMemoryStore()
	jobs := orchestrator.NewMemoryStore()
	anchors := anchor.NewMemoryStore()
	rows := projection.NewMemoryStore()
	tsa := &fakeTSA{token: gateway.TSAToken{TokenB64: "dG9rZW4=", Authority: "tsa.test", StampedAt: time.Now()}}
	polygon := &fakeChain{txRef: "0xabc", receipt: gateway.Receipt{Status: "pending"}}
	execs := NewExecutors(ExecutorDeps{
		Events:      events,
		Jobs:        jobs,
		Anchors:     anchors,
		Projections: projection.NewRebuilder(events, rows),
		TSA:         tsa,
		Chains:      map[anchor.Network]AnchorGateway{anchor.NetworkPolygon: polygon},
		Builder:     gateway.NewArtifactBuilder(t.TempDir(), "test"),
		Notifier:    gateway.NewDispatcher(&recordingSender{}, gateway.NewMemoryDedupe(), time.Hour, nil),
		Mode:        eventlog.ModePermissive,
	})
	return &fixture{execs: execs, events: events, jobs: jobs, anchors: anchors, tsa: tsa, polygon: polygon}
}

type recordingSender struct {
	sent []gateway.Message
}

func (s *recordingSender) Send(ctx context.Context, msg gateway.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (f *fixture) seed(t *testing.T, entityID string, payloads map[eventlog.Kind]string, kinds ...eventlog.Kind) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.events.CreateEntity(ctx, eventlog.DocumentEntity{ID: entityID, WitnessHash: "wh-1"}))
	for i, kind := range kinds {
		payload := payloads[kind]
		if payload == "" {
			payload = "{}"
		}
		_, err := f.events.Append(ctx, entityID, i,
			eventlog.Event{Kind: kind, Payload: []byte(payload), At: time.Now()},
			eventlog.AppendOptions{Mode: eventlog.ModePermissive})
		require.NoError(t, err)
	}
}

var tsaPayload = map[eventlog.Kind]string{
	eventlog.KindProtectedRequested: `{"networks":["polygon"]}`,
	eventlog.KindTSAConfirmed:       `{"witness_hash":"wh-1","token_b64":"dG9rZW4="}`,
}

func anchorJob(entityID, network string) orchestrator.Job {
	payload, _ := json.Marshal(anchorJobPayload{Network: network})
	return orchestrator.Job{EntityID: entityID, Payload: payload}
}

func TestRunTimestamp_AppendsFact(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested)

	res, err := f.execs.RunTimestamp(context.Background(), orchestrator.Job{EntityID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)
	assert.Equal(t, 1, f.tsa.calls)

	entity, err := f.events.GetEntity(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, eventlog.HasKind(entity.Events, eventlog.KindTSAConfirmed))
	ev, _ := eventlog.LastOfKind(entity.Events, eventlog.KindTSAConfirmed)
	assert.Equal(t, "wh-1", eventlog.PayloadWitnessHash(ev))
	assert.Equal(t, "dG9rZW4=", eventlog.PayloadProofToken(ev))
}

func TestRunTimestamp_NoopWhenAlreadyConfirmed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	res, err := f.execs.RunTimestamp(context.Background(), orchestrator.Job{EntityID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)
	assert.Contains(t, res.Output, "noop")
	assert.Equal(t, 0, f.tsa.calls)
}

func TestRunTimestamp_StampFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested)
	f.tsa.err = errors.New("tsa unavailable")

	_, err := f.execs.RunTimestamp(context.Background(), orchestrator.Job{EntityID: "doc-1"})
	require.Error(t, err)

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	assert.False(t, eventlog.HasKind(entity.Events, eventlog.KindTSAConfirmed))
}

func TestSubmitAnchor_CreatesRecordAndFact(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	res, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)
	assert.Equal(t, 1, f.polygon.submits)

	rec, err := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusSubmitted, rec.Status)
	assert.Equal(t, "0xabc", rec.TxRef)
	assert.False(t, rec.NextRetryAt.IsZero())

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	assert.True(t, eventlog.HasKind(entity.Events, eventlog.KindAnchorSubmitted))
}

func TestSubmitAnchor_NoopWhenAlreadySubmitted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	_, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	res, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Contains(t, res.Output, "noop")
	assert.Equal(t, 1, f.polygon.submits)
}

func TestSubmitAnchor_UnknownNetworkFailsHard(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	res, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "dogecoin"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusFailed, res.Status)
}

func TestSubmitAnchor_RecoversRecentOrphan(t *testing.T) {
	f := newFixture(t)
	payloads := map[eventlog.Kind]string{
		eventlog.KindProtectedRequested: `{"networks":["polygon"]}`,
		eventlog.KindTSAConfirmed:       tsaPayload[eventlog.KindTSAConfirmed],
		eventlog.KindAnchorSubmitted:    `{"network":"polygon","witness_hash":"wh-1","tx_ref":"0xlost"}`,
	}
	// 日志有提交痕迹，但锚定记录不存在（孤儿）
	f.seed(t, "doc-1", payloads,
		eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed, eventlog.KindAnchorSubmitted)

	res, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)
	assert.Equal(t, 1, f.polygon.submits, "窗口内的孤儿应重新上链")

	rec, err := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	require.NoError(t, err)
	assert.Equal(t, anchor.StatusSubmitted, rec.Status)
}

func TestSubmitAnchor_StaleOrphanLeftToAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.events.CreateEntity(ctx, eventlog.DocumentEntity{ID: "doc-1", WitnessHash: "wh-1"}))
	old := time.Now().Add(-48 * time.Hour)
	seedEvents := []eventlog.Event{
		{Kind: eventlog.KindProtectedRequested, Payload: []byte(`{"networks":["polygon"]}`), At: old},
		{Kind: eventlog.KindTSAConfirmed, Payload: []byte(tsaPayload[eventlog.KindTSAConfirmed]), At: old.Add(time.Minute)},
		{Kind: eventlog.KindAnchorSubmitted, Payload: []byte(`{"network":"polygon","witness_hash":"wh-1","tx_ref":"0xlost"}`), At: old.Add(2 * time.Minute)},
	}
	for i, ev := range seedEvents {
		_, err := f.events.Append(ctx, "doc-1", i, ev, eventlog.AppendOptions{Mode: eventlog.ModePermissive})
		require.NoError(t, err)
	}

	res, err := f.execs.SubmitAnchor(ctx, anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)
	assert.Contains(t, res.Output, "orphan")
	assert.Zero(t, f.polygon.submits, "修复窗口之外不自动重新上链")

	_, err = f.anchors.Get(ctx, "doc-1", anchor.NetworkPolygon)
	assert.ErrorIs(t, err, anchor.ErrNotFound)
}

func TestConfirmAnchor_Confirmed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)
	_, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)

	confirmedAt := time.Now().UTC()
	f.polygon.receipt = gateway.Receipt{Status: "confirmed", TxRef: "0xabc", ConfirmedAt: confirmedAt}

	res, err := f.execs.ConfirmAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)

	rec, _ := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	assert.Equal(t, anchor.StatusConfirmed, rec.Status)
	assert.Equal(t, 1, rec.Attempts)

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	ev, ok := eventlog.LastOfKind(entity.Events, eventlog.KindAnchorConfirmed)
	require.True(t, ok)
	assert.Equal(t, "polygon", eventlog.AnchorNetwork(ev))
	assert.False(t, eventlog.AnchorConfirmedAt(ev).IsZero())
}

func TestConfirmAnchor_PendingSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)
	_, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)

	res, err := f.execs.ConfirmAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusWaiting, res.Status)
	assert.Greater(t, res.RetryIn, time.Duration(0))

	rec, _ := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	assert.Equal(t, anchor.StatusSubmitted, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.False(t, rec.NextRetryAt.IsZero())
}

func TestConfirmAnchor_TimeoutByMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)
	_, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)

	rec, _ := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	rec.Attempts = anchor.PolygonPolicy.MaxAttempts
	require.NoError(t, f.anchors.Update(context.Background(), rec))

	res, err := f.execs.ConfirmAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)

	rec, _ = f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	assert.Equal(t, anchor.StatusTimedOut, rec.Status)

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	ev, ok := eventlog.LastOfKind(entity.Events, eventlog.KindAnchorTimeout)
	require.True(t, ok)
	var body map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.Equal(t, "max_attempts", body["reason"])
}

func TestConfirmAnchor_TimeoutByElapsed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)
	_, err := f.execs.SubmitAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)

	rec, _ := f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	rec.SubmittedAt = time.Now().UTC().Add(-(anchor.PolygonPolicy.Timeout + time.Minute))
	require.NoError(t, f.anchors.Update(context.Background(), rec))

	res, err := f.execs.ConfirmAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)

	rec, _ = f.anchors.Get(context.Background(), "doc-1", anchor.NetworkPolygon)
	assert.Equal(t, anchor.StatusTimedOut, rec.Status)

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	ev, ok := eventlog.LastOfKind(entity.Events, eventlog.KindAnchorTimeout)
	require.True(t, ok)
	var body map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.Equal(t, "elapsed", body["reason"])
}

func TestConfirmAnchor_NoRecordIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	res, err := f.execs.ConfirmAnchor(context.Background(), anchorJob("doc-1", "polygon"))
	require.NoError(t, err)
	assert.Contains(t, res.Output, "noop")
}

func TestBuildArtifact_AppendsFactAndEnqueuesNotice(t *testing.T) {
	f := newFixture(t)
	payloads := map[eventlog.Kind]string{
		eventlog.KindProtectedRequested: `{"networks":["polygon"],"notify_email":"owner@example.com"}`,
		eventlog.KindTSAConfirmed:       tsaPayload[eventlog.KindTSAConfirmed],
		eventlog.KindAnchorConfirmed:    fmt.Sprintf(`{"network":"polygon","witness_hash":"wh-1","confirmed_at":%q}`, time.Now().UTC().Add(time.Minute).Format(time.RFC3339)),
	}
	f.seed(t, "doc-1", payloads,
		eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed, eventlog.KindAnchorConfirmed)

	res, err := f.execs.BuildArtifact(context.Background(), orchestrator.Job{EntityID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, res.Status)

	entity, _ := f.events.GetEntity(context.Background(), "doc-1")
	ev, ok := eventlog.LastOfKind(entity.Events, eventlog.KindArtifactCompleted)
	require.True(t, ok)
	var body map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.NotEmpty(t, body["artifact_ref"])

	pending, err := f.jobs.ListByEntity(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, JobNotify, pending[0].Type)
}

func TestBuildArtifact_NoopWhenAnchorsIncomplete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "doc-1", tsaPayload, eventlog.KindProtectedRequested, eventlog.KindTSAConfirmed)

	res, err := f.execs.BuildArtifact(context.Background(), orchestrator.Job{EntityID: "doc-1"})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "noop")
}

func TestNotify_SendsOnceThenDedupes(t *testing.T) {
	f := newFixture(t)
	msg := gateway.Message{Recipient: "owner@example.com", EventType: "document.certified", Workflow: "doc-1"}
	payload, _ := json.Marshal(msg)
	j := orchestrator.Job{EntityID: "doc-1", Payload: payload}

	res, err := f.execs.Notify(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Output)

	res, err = f.execs.Notify(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, "deduped", res.Output)
}
