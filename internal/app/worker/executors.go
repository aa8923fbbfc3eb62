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

// Package worker Worker 进程装配：执行器、决策巡检与调和循环
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notary-platform/internal/anchor"
	"notary-platform/internal/authority"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/gateway"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
	"notary-platform/pkg/log"
	"notary-platform/pkg/metrics"
)

// TimestampAuthority 可信时间戳签发方
type TimestampAuthority interface {
	Stamp(ctx context.Context, witnessHash string) (gateway.TSAToken, error)
}

// AnchorGateway 单条链的提交与回执查询
type AnchorGateway interface {
	Submit(ctx context.Context, witnessHash string) (string, error)
	GetReceipt(ctx context.Context, txRef string) (gateway.Receipt, error)
}

// EvidenceBuilder 证明包构建
type EvidenceBuilder interface {
	Build(ctx context.Context, entity eventlog.DocumentEntity) (gateway.Artifact, error)
}

// anchorJobPayload submit_anchor / confirm_anchor 的任务参数
type anchorJobPayload struct {
	Network string `json:"network"`
}

// Executors 持有执行器依赖；事实只进事件日志，副作用状态进各自 store
type Executors struct {
	events      eventlog.Store
	jobs        orchestrator.Store
	anchors     anchor.Store
	projections *projection.Rebuilder
	tsa         TimestampAuthority
	chains      map[anchor.Network]AnchorGateway
	policies    map[anchor.Network]anchor.Policy
	builder     EvidenceBuilder
	notifier    *gateway.Dispatcher
	mode        eventlog.Mode
	logger      *log.Logger
}

// ExecutorDeps Executors 构造参数
type ExecutorDeps struct {
	Events      eventlog.Store
	Jobs        orchestrator.Store
	Anchors     anchor.Store
	Projections *projection.Rebuilder
	TSA         TimestampAuthority
	Chains      map[anchor.Network]AnchorGateway
	Policies    map[anchor.Network]anchor.Policy
	Builder     EvidenceBuilder
	Notifier    *gateway.Dispatcher
	Mode        eventlog.Mode
	Logger      *log.Logger
}

// NewExecutors 创建执行器集合
func NewExecutors(deps ExecutorDeps) *Executors {
	policies := deps.Policies
	if policies == nil {
		policies = map[anchor.Network]anchor.Policy{
			anchor.NetworkPolygon: anchor.PolygonPolicy,
			anchor.NetworkBitcoin: anchor.BitcoinPolicy,
		}
	}
	return &Executors{
		events:      deps.Events,
		jobs:        deps.Jobs,
		anchors:     deps.Anchors,
		projections: deps.Projections,
		tsa:         deps.TSA,
		chains:      deps.Chains,
		policies:    policies,
		builder:     deps.Builder,
		notifier:    deps.Notifier,
		mode:        deps.Mode,
		logger:      deps.Logger,
	}
}

// RegisterAll 注册全部执行器
func (e *Executors) RegisterAll(reg *orchestrator.Registry) {
	reg.Register(authority.JobRunTimestamp, e.RunTimestamp)
	reg.Register(authority.JobSubmitAnchor, e.SubmitAnchor)
	reg.Register(JobConfirmAnchor, e.ConfirmAnchor)
	reg.Register(authority.JobBuildArtifact, e.BuildArtifact)
	reg.Register(JobNotify, e.Notify)
}

// Worker 自产的任务类型（决策阶梯之外）
const (
	JobConfirmAnchor = "confirm_anchor"
	JobNotify        = "notify"
)

// orphanRecentWindow 孤儿锚定自动修复窗口；更早的文档走管理面修复
const orphanRecentWindow = 24 * time.Hour

// lastAnchorStatus 该链在事件流里最后已知的网络侧状态；无痕迹返回空串
func lastAnchorStatus(events []eventlog.Event, network string) string {
	status := ""
	for _, ev := range events {
		if eventlog.AnchorNetwork(ev) != network {
			continue
		}
		switch ev.Kind {
		case eventlog.KindAnchorSubmitted, eventlog.KindAnchorPending:
			status = "pending"
		case eventlog.KindAnchorConfirmed:
			status = "confirmed"
		case eventlog.KindAnchorFailed:
			status = "failed"
		case eventlog.KindAnchorTimeout:
			status = "timeout"
		}
	}
	return status
}

// docCreatedAt 文档登记时刻，取首个事件的记录时间
func docCreatedAt(entity eventlog.DocumentEntity) time.Time {
	if len(entity.Events) == 0 {
		return time.Time{}
	}
	return entity.Events[0].At
}

// appendFact 版本化追加一条事实。并发追加者用 CAS 重试；
// Unique 规则判定的重复视为已有人写入同一事实，按幂等成功处理。
func (e *Executors) appendFact(ctx context.Context, entityID string, ev eventlog.Event) error {
	opts := eventlog.AppendOptions{Mode: e.mode}
	for i := 0; i < 3; i++ {
		_, version, err := e.events.ListEvents(ctx, entityID)
		if err != nil {
			return err
		}
		_, err = e.events.Append(ctx, entityID, version, ev, opts)
		if err == nil {
			metrics.AppendTotal.WithLabelValues(string(ev.Kind)).Inc()
			return nil
		}
		if errors.Is(err, eventlog.ErrVersionMismatch) {
			continue
		}
		var rej *eventlog.RejectError
		if errors.As(err, &rej) {
			metrics.AppendRejectTotal.WithLabelValues(string(rej.Reason)).Inc()
			if rej.Reason == eventlog.RejectKindDuplicate {
				return nil
			}
		}
		return err
	}
	return eventlog.ErrVersionMismatch
}

// refreshProjection 事实落盘后刷新读模型；失败只记日志，不影响任务结果
func (e *Executors) refreshProjection(ctx context.Context, entityID string) {
	if e.projections == nil {
		return
	}
	if _, err := e.projections.Rebuild(ctx, entityID); err != nil && e.logger != nil {
		e.logger.Warn("projection refresh failed", "entity_id", entityID, "error", err)
	}
}

// RunTimestamp run_tsa：为见证哈希取可信时间戳并追加 tsa.confirmed
func (e *Executors) RunTimestamp(ctx context.Context, j orchestrator.Job) (orchestrator.Result, error) {
	entity, err := e.events.GetEntity(ctx, j.EntityID)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if !authority.ShouldRunTimestamp(entity.Events) {
		authority.LogRationale(e.logger, j.EntityID, "run_timestamp", false, "timestamp already confirmed or not requested", entity.Events)
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: timestamp not needed"}, nil
	}
	token, err := e.tsa.Stamp(ctx, entity.WitnessHash)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("tsa stamp: %w", err)
	}
	payload, err := json.Marshal(map[string]string{
		"witness_hash": entity.WitnessHash,
		"token_b64":    token.TokenB64,
		"authority":    token.Authority,
		"stamped_at":   token.StampedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return orchestrator.Result{}, err
	}
	ev := eventlog.Event{
		EntityID: j.EntityID,
		Kind:     eventlog.KindTSAConfirmed,
		Payload:  payload,
		Source:   "worker",
		At:       time.Now().UTC(),
	}
	if err := e.appendFact(ctx, j.EntityID, ev); err != nil {
		return orchestrator.Result{}, err
	}
	e.refreshProjection(ctx, j.EntityID)
	return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "tsa confirmed"}, nil
}

// SubmitAnchor submit_anchor：把见证哈希提交到指定链并追加 anchor.submitted
func (e *Executors) SubmitAnchor(ctx context.Context, j orchestrator.Job) (orchestrator.Result, error) {
	var p anchorJobPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return orchestrator.Result{Status: orchestrator.StatusFailed, Output: "invalid payload: " + err.Error()}, nil
	}
	network := anchor.Network(p.Network)
	gw, ok := e.chains[network]
	if !ok {
		return orchestrator.Result{Status: orchestrator.StatusFailed, Output: fmt.Sprintf("network %q not configured", p.Network)}, nil
	}
	entity, err := e.events.GetEntity(ctx, j.EntityID)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if !authority.ShouldSubmitAnchor(entity.Events, p.Network) {
		authority.LogRationale(e.logger, j.EntityID, "submit_anchor", false, "anchor already confirmed or preconditions missing", entity.Events)
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: anchor not needed"}, nil
	}

	now := time.Now().UTC()
	rec, err := e.anchors.Get(ctx, j.EntityID, network)
	switch {
	case errors.Is(err, anchor.ErrNotFound):
		// 日志已有上链痕迹但记录丢失（孤儿锚定）：只在修复窗口内重新提交，
		// 窗口之外交给管理面修复，避免给陈年文档重复上链
		if last := lastAnchorStatus(entity.Events, p.Network); last != "" {
			in := authority.OrphanAnchorInput{
				CreatedAt:          docCreatedAt(entity),
				RecentWindow:       orphanRecentWindow,
				LastNetworkStatus:  last,
				AnchorRecordExists: false,
				Now:                now,
			}
			if !authority.ShouldRecoverOrphanAnchor(in) {
				authority.LogRationale(e.logger, j.EntityID, "recover_orphan_anchor", false, "orphan anchor outside recovery window", entity.Events)
				return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: orphan anchor outside recovery window"}, nil
			}
			authority.LogRationale(e.logger, j.EntityID, "recover_orphan_anchor", true, "resubmitting orphan anchor", entity.Events)
		}
		rec, err = e.anchors.Create(ctx, anchor.Record{
			EntityID:    j.EntityID,
			Network:     network,
			Status:      anchor.StatusQueued,
			WitnessHash: entity.WitnessHash,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil && !errors.Is(err, anchor.ErrDuplicate) {
			return orchestrator.Result{}, err
		}
	case err != nil:
		return orchestrator.Result{}, err
	}
	// 提交前先查记录：已有在途或终态记录就不再重复上链
	if rec.Status == anchor.StatusSubmitted || rec.IsTerminal() {
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: anchor already " + string(rec.Status)}, nil
	}

	txRef, err := gw.Submit(ctx, entity.WitnessHash)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("anchor submit %s: %w", network, err)
	}
	policy := e.policyFor(network)
	rec = anchor.ProjectSubmitted(rec, policy, txRef, now)
	if err := e.anchors.Update(ctx, rec); err != nil {
		return orchestrator.Result{}, err
	}

	payload, err := json.Marshal(map[string]string{
		"network":      p.Network,
		"witness_hash": entity.WitnessHash,
		"tx_ref":       txRef,
	})
	if err != nil {
		return orchestrator.Result{}, err
	}
	ev := eventlog.Event{
		EntityID: j.EntityID,
		Kind:     eventlog.KindAnchorSubmitted,
		Payload:  payload,
		Source:   "worker",
		At:       now,
	}
	if err := e.appendFact(ctx, j.EntityID, ev); err != nil {
		return orchestrator.Result{}, err
	}
	e.refreshProjection(ctx, j.EntityID)
	return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "submitted tx " + txRef}, nil
}

// ConfirmAnchor confirm_anchor：查询回执；确认则追加 anchor.confirmed，
// 超时则追加 anchor.timeout，否则按策略排期下次重试
func (e *Executors) ConfirmAnchor(ctx context.Context, j orchestrator.Job) (orchestrator.Result, error) {
	var p anchorJobPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return orchestrator.Result{Status: orchestrator.StatusFailed, Output: "invalid payload: " + err.Error()}, nil
	}
	network := anchor.Network(p.Network)
	gw, ok := e.chains[network]
	if !ok {
		return orchestrator.Result{Status: orchestrator.StatusFailed, Output: fmt.Sprintf("network %q not configured", p.Network)}, nil
	}
	rec, err := e.anchors.Get(ctx, j.EntityID, network)
	if err != nil {
		if errors.Is(err, anchor.ErrNotFound) {
			return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: no anchor record"}, nil
		}
		return orchestrator.Result{}, err
	}
	if rec.IsTerminal() {
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: anchor already " + string(rec.Status)}, nil
	}

	entity, err := e.events.GetEntity(ctx, j.EntityID)
	if err != nil {
		return orchestrator.Result{}, err
	}
	cancelled := eventlog.HasKind(entity.Events, eventlog.KindDocumentCancelled)

	now := time.Now().UTC()
	policy := e.policyFor(network)
	attempt := rec.Attempts + 1
	metrics.AnchorConfirmAttempts.WithLabelValues(string(network)).Inc()

	receipt, err := gw.GetReceipt(ctx, rec.TxRef)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("anchor receipt %s: %w", network, err)
	}

	in := authority.ConfirmAnchorInput{
		Cancelled:     cancelled,
		ReceiptStatus: receipt.Status,
		Attempts:      rec.Attempts,
		Policy:        policy,
	}
	if authority.ShouldConfirmAnchor(in) {
		confirmedAt := receipt.ConfirmedAt
		if confirmedAt.IsZero() {
			confirmedAt = now
		}
		rec.Status = anchor.StatusConfirmed
		rec.Attempts = attempt
		rec.UpdatedAt = now
		if err := e.anchors.Update(ctx, rec); err != nil {
			return orchestrator.Result{}, err
		}
		payload, err := json.Marshal(map[string]string{
			"network":      p.Network,
			"tx_ref":       rec.TxRef,
			"witness_hash": rec.WitnessHash,
			"confirmed_at": confirmedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return orchestrator.Result{}, err
		}
		ev := eventlog.Event{
			EntityID: j.EntityID,
			Kind:     eventlog.KindAnchorConfirmed,
			Payload:  payload,
			Source:   "worker",
			At:       now,
		}
		if err := e.appendFact(ctx, j.EntityID, ev); err != nil {
			return orchestrator.Result{}, err
		}
		e.refreshProjection(ctx, j.EntityID)
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "anchor confirmed"}, nil
	}

	verdict := anchor.EvaluateTimeout(rec, policy, attempt, now)
	if verdict.TimedOut {
		metrics.AnchorTimeoutTotal.WithLabelValues(string(network), string(verdict.Reason)).Inc()
		rec.Status = anchor.StatusTimedOut
		rec.Attempts = attempt
		rec.UpdatedAt = now
		if err := e.anchors.Update(ctx, rec); err != nil {
			return orchestrator.Result{}, err
		}
		payload, err := json.Marshal(map[string]string{
			"network":     p.Network,
			"tx_ref":      rec.TxRef,
			"reason":      string(verdict.Reason),
			"pending_age": verdict.PendingAge.String(),
		})
		if err != nil {
			return orchestrator.Result{}, err
		}
		ev := eventlog.Event{
			EntityID: j.EntityID,
			Kind:     eventlog.KindAnchorTimeout,
			Payload:  payload,
			Source:   "worker",
			At:       now,
		}
		if err := e.appendFact(ctx, j.EntityID, ev); err != nil {
			return orchestrator.Result{}, err
		}
		e.refreshProjection(ctx, j.EntityID)
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "anchor timed out: " + string(verdict.Reason)}, nil
	}

	rec = anchor.ProjectRetry(rec, policy, attempt, now)
	if err := e.anchors.Update(ctx, rec); err != nil {
		return orchestrator.Result{}, err
	}
	retryIn := rec.NextRetryAt.Sub(now)
	if retryIn <= 0 {
		retryIn = time.Minute
	}
	return orchestrator.Result{
		Status:  orchestrator.StatusWaiting,
		Output:  fmt.Sprintf("receipt %s, retry in %s", receipt.Status, retryIn),
		RetryIn: retryIn,
	}, nil
}

// BuildArtifact build_artifact：导出证明包并追加 artifact.completed
func (e *Executors) BuildArtifact(ctx context.Context, j orchestrator.Job) (orchestrator.Result, error) {
	entity, err := e.events.GetEntity(ctx, j.EntityID)
	if err != nil {
		return orchestrator.Result{}, err
	}
	requested := projection.RequestedNetworks(entity.Events)
	if !authority.ShouldBuildArtifact(entity.Events, requested) {
		authority.LogRationale(e.logger, j.EntityID, "build_artifact", false, "anchors incomplete or artifact exists", entity.Events)
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "noop: artifact not ready"}, nil
	}
	art, err := e.builder.Build(ctx, entity)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("build artifact: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"witness_hash": entity.WitnessHash,
		"artifact_ref": art.Ref,
		"content_hash": art.ContentHash,
		"size":         art.Size,
	})
	if err != nil {
		return orchestrator.Result{}, err
	}
	now := time.Now().UTC()
	ev := eventlog.Event{
		EntityID: j.EntityID,
		Kind:     eventlog.KindArtifactCompleted,
		Payload:  payload,
		Source:   "worker",
		At:       now,
	}
	if err := e.appendFact(ctx, j.EntityID, ev); err != nil {
		return orchestrator.Result{}, err
	}
	e.refreshProjection(ctx, j.EntityID)
	e.enqueueCompletionNotice(ctx, entity)
	return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "artifact " + art.Ref}, nil
}

// enqueueCompletionNotice 证明包完成后给请求方排一条通知；收件人缺失则跳过
func (e *Executors) enqueueCompletionNotice(ctx context.Context, entity eventlog.DocumentEntity) {
	req, ok := eventlog.LastOfKind(entity.Events, eventlog.KindProtectedRequested)
	if !ok {
		return
	}
	var body struct {
		NotifyEmail string `json:"notify_email"`
	}
	if err := json.Unmarshal(req.Payload, &body); err != nil || body.NotifyEmail == "" {
		return
	}
	msg := gateway.Message{
		Recipient: body.NotifyEmail,
		EventType: "document.certified",
		Workflow:  entity.ID,
		Subject:   "Document certified",
		Body:      "Your document has been notarized and the evidence package is ready for download.",
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, err = e.jobs.Enqueue(ctx, orchestrator.Job{
		Type:      JobNotify,
		EntityID:  entity.ID,
		Payload:   payload,
		Status:    orchestrator.StatusPending,
		DedupeKey: orchestrator.DedupeKeyFor(JobNotify, entity.ID, msg.EventType),
	})
	if err != nil && e.logger != nil {
		e.logger.Warn("enqueue completion notice failed", "entity_id", entity.ID, "error", err)
	}
}

// Notify notify：派发通知，幂等键由 Dispatcher 去重
func (e *Executors) Notify(ctx context.Context, j orchestrator.Job) (orchestrator.Result, error) {
	var msg gateway.Message
	if err := json.Unmarshal(j.Payload, &msg); err != nil {
		return orchestrator.Result{Status: orchestrator.StatusFailed, Output: "invalid payload: " + err.Error()}, nil
	}
	sent, err := e.notifier.Dispatch(ctx, msg)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("notify dispatch: %w", err)
	}
	if !sent {
		return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "deduped"}, nil
	}
	return orchestrator.Result{Status: orchestrator.StatusCompleted, Output: "sent"}, nil
}

func (e *Executors) policyFor(network anchor.Network) anchor.Policy {
	if p, ok := e.policies[network]; ok {
		return p
	}
	p, _ := anchor.PolicyFor(network)
	return p
}
