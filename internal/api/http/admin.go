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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"notary-platform/internal/anchor"
	"notary-platform/internal/authority"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/projection"
)

// repairCandidate 缺失确认事实的锚定记录
type repairCandidate struct {
	EntityID string `json:"entity_id"`
	Network  string `json:"network"`
	TxRef    string `json:"tx_ref"`
	Repaired bool   `json:"repaired"`
}

// RepairAnchors 修复：锚定记录已 confirmed 但事件流缺 anchor.confirmed 事实时幂等补发。
// dry_run=true 只报告不写入。
// POST /api/admin/anchors/repair?dry_run=true
func (h *Handler) RepairAnchors(c context.Context, ctx *app.RequestContext) {
	dryRun := ctx.Query("dry_run") == "true"

	ids, err := h.events.ListEntityIDs(c)
	if err != nil {
		h.serverError(c, ctx, "list entities", err)
		return
	}

	checked := 0
	var candidates []repairCandidate
	for _, id := range ids {
		records, err := h.anchors.ListByEntity(c, id)
		if err != nil {
			h.serverError(c, ctx, "list anchors", err)
			return
		}
		events, _, err := h.events.ListEvents(c, id)
		if err != nil {
			h.serverError(c, ctx, "list events", err)
			return
		}
		for _, rec := range records {
			if rec.Status != anchor.StatusConfirmed {
				continue
			}
			checked++
			if hasConfirmedFact(events, string(rec.Network)) {
				continue
			}
			cand := repairCandidate{EntityID: id, Network: string(rec.Network), TxRef: rec.TxRef}
			if !dryRun {
				repaired, err := h.appendConfirmedFact(c, rec)
				if err != nil {
					h.serverError(c, ctx, "repair anchor fact", err)
					return
				}
				cand.Repaired = repaired
			}
			candidates = append(candidates, cand)
		}
	}

	ctx.JSON(consts.StatusOK, map[string]any{
		"dry_run":    dryRun,
		"checked":    checked,
		"missing":    len(candidates),
		"candidates": candidates,
	})
}

// hasConfirmedFact 事件流里是否已有该链的确认事实
func hasConfirmedFact(events []eventlog.Event, network string) bool {
	for _, e := range events {
		if e.Kind == eventlog.KindAnchorConfirmed && eventlog.AnchorNetwork(e) == network {
			return true
		}
	}
	return false
}

// appendConfirmedFact 按 Worker 确认路径同样的载荷形态补发事实；重复视为已修复
func (h *Handler) appendConfirmedFact(c context.Context, rec anchor.Record) (bool, error) {
	payload, err := json.Marshal(map[string]string{
		"network":      string(rec.Network),
		"tx_ref":       rec.TxRef,
		"witness_hash": rec.WitnessHash,
		"confirmed_at": rec.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	for i := 0; i < 3; i++ {
		_, version, err := h.events.ListEvents(c, rec.EntityID)
		if err != nil {
			return false, err
		}
		// 事件记录时刻取记录的确认时点，补发的事实才能通过时序因果校验
		_, err = h.events.Append(c, rec.EntityID, version, eventlog.Event{
			Kind:    eventlog.KindAnchorConfirmed,
			Payload: payload,
			Source:  "admin-repair",
			At:      rec.UpdatedAt.UTC(),
		}, eventlog.AppendOptions{Mode: h.mode})
		if err == nil {
			if h.rebuilder != nil {
				_, _ = h.rebuilder.Rebuild(c, rec.EntityID)
			}
			return true, nil
		}
		if errors.Is(err, eventlog.ErrVersionMismatch) {
			continue
		}
		var rej *eventlog.RejectError
		if errors.As(err, &rej) && rej.Reason == eventlog.RejectKindDuplicate {
			return true, nil
		}
		return false, err
	}
	return false, eventlog.ErrVersionMismatch
}

// shadowDecisionRequest 外部提案的任务集合
type shadowDecisionRequest struct {
	Jobs []struct {
		Type    string `json:"type"`
		Network string `json:"network"`
	} `json:"jobs"`
}

// ShadowDecision 影子对账：外部提案与权威决策阶梯比对，差异落日志并返回
// POST /api/admin/documents/:id/decision/shadow
func (h *Handler) ShadowDecision(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	var req shadowDecisionRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	events, _, err := h.events.ListEvents(c, id)
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}

	canonical := authority.DecideNextJobs(events, authority.Protection{
		RequestedNetworks: projection.RequestedNetworks(events),
	})
	proposed := make([]authority.JobSpec, len(req.Jobs))
	for i, j := range req.Jobs {
		proposed[i] = authority.JobSpec{Type: j.Type, Network: j.Network}
	}
	diffs := authority.ShadowCompare(proposed, canonical)
	authority.LogShadowCompare(h.logger, id, diffs, canonical)

	canonicalJobs := make([]map[string]string, len(canonical.Jobs))
	for i, j := range canonical.Jobs {
		canonicalJobs[i] = map[string]string{"type": j.Type, "network": j.Network}
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"canonical":     canonicalJobs,
		"reason":        canonical.Reason,
		"discrepancies": diffs,
		"matched":       len(diffs) == 0,
	})
}
