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
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"notary-platform/internal/eventlog"
	"notary-platform/internal/projection"
	"notary-platform/pkg/metrics"
	"notary-platform/pkg/proof"
)

// createDocumentRequest 创建文档保护请求
type createDocumentRequest struct {
	ID          string   `json:"id"`
	SourceHash  string   `json:"source_hash"`
	WitnessHash string   `json:"witness_hash"`
	Networks    []string `json:"networks"`
	NotifyEmail string   `json:"notify_email"`
	Source      string   `json:"source"`
}

// eventView 事件的对外视图
type eventView struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Source   string          `json:"source,omitempty"`
	At       string          `json:"at"`
	PrevHash string          `json:"prev_hash,omitempty"`
	Hash     string          `json:"hash"`
}

func toEventViews(events []eventlog.Event) []eventView {
	out := make([]eventView, len(events))
	for i, e := range events {
		out[i] = eventView{
			ID:       e.ID,
			Kind:     string(e.Kind),
			Payload:  json.RawMessage(e.Payload),
			Source:   e.Source,
			At:       e.At.UTC().Format(time.RFC3339Nano),
			PrevHash: e.PrevHash,
			Hash:     e.Hash,
		}
	}
	return out
}

// CreateDocument 登记文档实体并追加保护请求事件
// POST /api/documents
func (h *Handler) CreateDocument(c context.Context, ctx *app.RequestContext) {
	var req createDocumentRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.WitnessHash == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "witness_hash is required"})
		return
	}
	if len(req.Networks) == 0 {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "at least one anchor network is required"})
		return
	}
	id := req.ID
	if id == "" {
		id = "doc-" + uuid.New().String()
	}

	entity := eventlog.DocumentEntity{ID: id, SourceHash: req.SourceHash, WitnessHash: req.WitnessHash}
	if err := h.events.CreateEntity(c, entity); err != nil {
		if errors.Is(err, eventlog.ErrEntityExists) {
			ctx.JSON(consts.StatusConflict, map[string]string{"error": "document already exists"})
			return
		}
		h.serverError(c, ctx, "create entity", err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"networks":     req.Networks,
		"notify_email": req.NotifyEmail,
		"source_hash":  req.SourceHash,
	})
	if err != nil {
		h.serverError(c, ctx, "marshal request payload", err)
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	version, err := h.events.Append(c, id, 0, eventlog.Event{
		Kind:    eventlog.KindProtectedRequested,
		Payload: payload,
		Source:  source,
		At:      time.Now().UTC(),
	}, eventlog.AppendOptions{Mode: h.mode})
	if err != nil {
		h.serverError(c, ctx, "append protection request", err)
		return
	}
	metrics.AppendTotal.WithLabelValues(string(eventlog.KindProtectedRequested)).Inc()

	ctx.JSON(consts.StatusCreated, map[string]any{
		"id":      id,
		"version": version,
	})
}

// GetDocument 返回实体与完整事件流
// GET /api/documents/:id
func (h *Handler) GetDocument(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	entity, err := h.events.GetEntity(c, id)
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"id":           entity.ID,
		"source_hash":  entity.SourceHash,
		"witness_hash": entity.WitnessHash,
		"version":      len(entity.Events),
		"events":       toEventViews(entity.Events),
	})
}

// appendEventRequest 追加事件请求
type appendEventRequest struct {
	Kind            string          `json:"kind"`
	Payload         json.RawMessage `json:"payload"`
	Source          string          `json:"source"`
	At              string          `json:"at"`
	ExpectedVersion int             `json:"expected_version"`
}

// AppendEvent 版本化追加单条事件；校验拒绝返回 422，版本冲突返回 409
// POST /api/documents/:id/events
func (h *Handler) AppendEvent(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	var req appendEventRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	at := time.Now().UTC()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "at must be RFC3339"})
			return
		}
		at = parsed
	}
	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	version, err := h.events.Append(c, id, req.ExpectedVersion, eventlog.Event{
		Kind:    eventlog.Kind(req.Kind),
		Payload: payload,
		Source:  req.Source,
		At:      at,
	}, eventlog.AppendOptions{Mode: h.mode})
	if err != nil {
		switch {
		case errors.Is(err, eventlog.ErrEntityNotFound):
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "document not found"})
		case errors.Is(err, eventlog.ErrVersionMismatch):
			ctx.JSON(consts.StatusConflict, map[string]string{"error": "version mismatch"})
		default:
			var rej *eventlog.RejectError
			if errors.As(err, &rej) {
				metrics.AppendRejectTotal.WithLabelValues(string(rej.Reason)).Inc()
				ctx.JSON(consts.StatusUnprocessableEntity, map[string]string{
					"error":  rej.Error(),
					"reason": string(rej.Reason),
				})
				return
			}
			h.serverError(c, ctx, "append event", err)
		}
		return
	}
	metrics.AppendTotal.WithLabelValues(req.Kind).Inc()
	ctx.JSON(consts.StatusOK, map[string]any{"version": version})
}

// CancelDocument 追加取消事实；取消后决策层不再派生任何任务
// POST /api/documents/:id/cancel
func (h *Handler) CancelDocument(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	for i := 0; i < 3; i++ {
		_, version, err := h.events.ListEvents(c, id)
		if err != nil {
			h.entityError(c, ctx, err)
			return
		}
		_, err = h.events.Append(c, id, version, eventlog.Event{
			Kind:    eventlog.KindDocumentCancelled,
			Payload: []byte(`{}`),
			Source:  "api",
			At:      time.Now().UTC(),
		}, eventlog.AppendOptions{Mode: h.mode})
		if err == nil {
			metrics.AppendTotal.WithLabelValues(string(eventlog.KindDocumentCancelled)).Inc()
			ctx.JSON(consts.StatusOK, map[string]string{"status": "cancelled"})
			return
		}
		if errors.Is(err, eventlog.ErrVersionMismatch) {
			continue
		}
		var rej *eventlog.RejectError
		if errors.As(err, &rej) && rej.Reason == eventlog.RejectKindDuplicate {
			ctx.JSON(consts.StatusOK, map[string]string{"status": "cancelled"})
			return
		}
		h.serverError(c, ctx, "append cancel", err)
		return
	}
	ctx.JSON(consts.StatusConflict, map[string]string{"error": "version mismatch"})
}

// GetProjection 读模型查询；行缺失时按事件流即时重建
// GET /api/documents/:id/projection
func (h *Handler) GetProjection(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	row, err := h.rows.Get(c, id)
	if errors.Is(err, projection.ErrNotFound) {
		row, err = h.rebuilder.Rebuild(c, id)
	}
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, projectionView(row))
}

// RebuildProjection 丢弃并从事件流重建读模型行
// POST /api/documents/:id/projection/rebuild
func (h *Handler) RebuildProjection(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	row, err := h.rebuilder.Rebuild(c, id)
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, projectionView(row))
}

func projectionView(row projection.Row) map[string]any {
	return map[string]any{
		"entity_id":           row.EntityID,
		"overall_status":      string(row.OverallStatus),
		"has_polygon_anchor":  row.HasPolygonAnchor,
		"has_bitcoin_anchor":  row.HasBitcoinAnchor,
		"timestamp_confirmed": row.TimestampConfirmed,
		"artifact_ref":        row.ArtifactRef,
		"download_enabled":    row.DownloadEnabled,
		"cancelled":           row.Cancelled,
		"rebuilt_at":          row.RebuiltAt.UTC().Format(time.RFC3339),
	}
}

// VerifyDocument 校验事件流哈希链
// GET /api/documents/:id/verify
func (h *Handler) VerifyDocument(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	entity, err := h.events.GetEntity(c, id)
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}
	chainErr := proof.ValidateChain(eventlog.ToProofEvents(entity.Events))
	resp := map[string]any{
		"entity_id":   entity.ID,
		"event_count": len(entity.Events),
		"chain_valid": chainErr == nil,
	}
	if chainErr != nil {
		resp["chain_error"] = chainErr.Error()
	}
	ctx.JSON(consts.StatusOK, resp)
}

// ExportEvidence 导出证据包（ZIP）
// GET /api/documents/:id/export
func (h *Handler) ExportEvidence(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	entity, err := h.events.GetEntity(c, id)
	if err != nil {
		h.entityError(c, ctx, err)
		return
	}
	zipData, err := proof.ExportEvidenceZip(entity.ID, entity.WitnessHash,
		eventlog.ToProofEvents(entity.Events), proof.ExportOptions{GeneratedBy: "notary-platform"})
	if err != nil {
		h.serverError(c, ctx, "export evidence", err)
		return
	}
	filename := fmt.Sprintf("document-%s-evidence-%s.zip", id, time.Now().Format("20060102-150405"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	ctx.Data(consts.StatusOK, "application/zip", zipData)
}

// ListAnchors 返回实体全部锚定记录
// GET /api/documents/:id/anchors
func (h *Handler) ListAnchors(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	recs, err := h.anchors.ListByEntity(c, id)
	if err != nil {
		h.serverError(c, ctx, "list anchors", err)
		return
	}
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = map[string]any{
			"network":       string(rec.Network),
			"status":        string(rec.Status),
			"attempts":      rec.Attempts,
			"tx_ref":        rec.TxRef,
			"submitted_at":  formatTime(rec.SubmittedAt),
			"next_retry_at": formatTime(rec.NextRetryAt),
			"metadata":      rec.Metadata,
		}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"anchors": out})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *Handler) entityError(c context.Context, ctx *app.RequestContext, err error) {
	if errors.Is(err, eventlog.ErrEntityNotFound) {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	h.serverError(c, ctx, "load entity", err)
}

func (h *Handler) serverError(c context.Context, ctx *app.RequestContext, op string, err error) {
	hlog.CtxErrorf(c, "%s failed: %v", op, err)
	ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
}
