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

// Package projection 读模型：由事件流推导、可随时删除重建。
// 只有 Rebuild 路径写投影；任何读侧接口都不落私货。
package projection

import (
	"time"

	"notary-platform/internal/eventlog"
)

// OverallStatus 文档总体状态阶梯
type OverallStatus string

const (
	StatusPending   OverallStatus = "pending"
	StatusProtected OverallStatus = "protected"
	StatusAnchoring OverallStatus = "anchoring"
	StatusCertified OverallStatus = "certified"
	StatusCompleted OverallStatus = "completed"
	StatusCancelled OverallStatus = "cancelled"
	StatusFailed    OverallStatus = "failed"
)

// Row 单实体读模型行
type Row struct {
	EntityID           string
	OverallStatus      OverallStatus
	HasPolygonAnchor   bool
	HasBitcoinAnchor   bool
	TimestampConfirmed bool
	ArtifactRef        string
	DownloadEnabled    bool
	Cancelled          bool
	RebuiltAt          time.Time // 仅运维参考，不参与确定性比较
}

// Derived 去掉 RebuiltAt 的确定性比较视图
func (r Row) Derived() Row {
	r.RebuiltAt = time.Time{}
	return r
}

// Derive 从事件流推导读模型；纯函数，两次推导同一事件流结果逐字段一致
func Derive(entityID string, events []eventlog.Event, requestedNetworks []string) Row {
	row := Row{EntityID: entityID, OverallStatus: StatusPending}
	if len(events) == 0 {
		return row
	}

	anchorsFailed := false
	tsaFailed := false
	for _, e := range events {
		switch e.Kind {
		case eventlog.KindTSAConfirmed:
			row.TimestampConfirmed = true
		case eventlog.KindTSAFailed:
			tsaFailed = true
		case eventlog.KindAnchorConfirmed:
			switch eventlog.AnchorNetwork(e) {
			case "polygon":
				row.HasPolygonAnchor = true
			case "bitcoin":
				row.HasBitcoinAnchor = true
			}
		case eventlog.KindAnchorTimeout, eventlog.KindAnchorFailed:
			anchorsFailed = true
		case eventlog.KindArtifactCompleted:
			var p struct {
				ArtifactRef string `json:"artifact_ref"`
			}
			if err := unmarshalPayload(e.Payload, &p); err == nil {
				row.ArtifactRef = p.ArtifactRef
			}
		case eventlog.KindDocumentCancelled:
			row.Cancelled = true
		}
	}

	hasArtifact := eventlog.HasKind(events, eventlog.KindArtifactCompleted)
	allAnchors := allRequested(row, requestedNetworks)

	// 阶梯推导；cancelled / failed 压过进行中的阶段
	switch {
	case row.Cancelled:
		row.OverallStatus = StatusCancelled
	case hasArtifact:
		row.OverallStatus = StatusCompleted
	case anchorsFailed || (tsaFailed && !row.TimestampConfirmed):
		row.OverallStatus = StatusFailed
	case row.TimestampConfirmed && allAnchors:
		row.OverallStatus = StatusCertified
	case row.TimestampConfirmed && len(requestedNetworks) > 0:
		row.OverallStatus = StatusAnchoring
	case row.TimestampConfirmed:
		row.OverallStatus = StatusProtected
	default:
		row.OverallStatus = StatusPending
	}

	row.DownloadEnabled = hasArtifact && !row.Cancelled
	return row
}

func allRequested(row Row, requestedNetworks []string) bool {
	if len(requestedNetworks) == 0 {
		return false
	}
	for _, network := range requestedNetworks {
		switch network {
		case "polygon":
			if !row.HasPolygonAnchor {
				return false
			}
		case "bitcoin":
			if !row.HasBitcoinAnchor {
				return false
			}
		default:
			return false
		}
	}
	return true
}
