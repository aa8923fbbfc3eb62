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
	"encoding/json"
	"time"
)

// Kind 事件类型（闭合词表，见 rules.go）
type Kind string

const (
	KindProtectedRequested Kind = "document.protected.requested"
	KindTSAConfirmed       Kind = "tsa.confirmed"
	KindTSAFailed          Kind = "tsa.failed"
	KindAnchorSubmitted    Kind = "anchor.submitted"
	KindAnchorPending      Kind = "anchor.pending"
	KindAnchorConfirmed    Kind = "anchor.confirmed"
	KindAnchorFailed       Kind = "anchor.failed"
	KindAnchorTimeout      Kind = "anchor.timeout"
	KindArtifactCompleted  Kind = "artifact.completed"
	KindDocumentCancelled  Kind = "document.cancelled"
	KindChangeRequested    Kind = "workflow.change.requested"
	KindChangeResponded    Kind = "workflow.change.responded"
)

// Event 单条不可变事件；文档的真实形态是事件流
type Event struct {
	ID       string    // 单条事件唯一 ID；Append 时为空可由实现生成
	EntityID string    // 所属文档实体 ID
	Kind     Kind      // 事件类型
	Payload  []byte    // JSON，由各 Kind 语义定义
	Source   string    // 来源标识，仅供审计展示
	At       time.Time // 事件发生时刻，入栈前必须可从 RFC3339 解析
	PrevHash string    // proof chain：上一事件哈希
	Hash     string    // proof chain：本事件哈希
}

// DocumentEntity 文档实体：事件流 + 见证哈希
type DocumentEntity struct {
	ID          string
	SourceHash  string
	WitnessHash string // 首个引用它的事件之后不可变
	Events      []Event
}

// anchorPayload 锚定类事件共同的 payload 字段
type anchorPayload struct {
	Network     string `json:"network"`
	WitnessHash string `json:"witness_hash,omitempty"`
	ConfirmedAt string `json:"confirmed_at,omitempty"`
	TxRef       string `json:"tx_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// tsaPayload tsa.confirmed 的 payload 字段
type tsaPayload struct {
	WitnessHash string `json:"witness_hash"`
	TokenB64    string `json:"token_b64"`
	Authority   string `json:"authority,omitempty"`
}

// artifactPayload artifact.completed 的 payload 字段
type artifactPayload struct {
	WitnessHash string `json:"witness_hash"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// AnchorNetwork 解析锚定类事件的 network 字段；非锚定事件或解析失败返回空串
func AnchorNetwork(e Event) string {
	var p anchorPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	return p.Network
}

// AnchorConfirmedAt 解析 anchor.confirmed 的确认时刻；缺失或不可解析返回零值
func AnchorConfirmedAt(e Event) time.Time {
	var p anchorPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return time.Time{}
	}
	if p.ConfirmedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, p.ConfirmedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PayloadWitnessHash 解析事件 payload 中的 witness_hash 字段；缺失返回空串
func PayloadWitnessHash(e Event) string {
	var p struct {
		WitnessHash string `json:"witness_hash"`
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	return p.WitnessHash
}

// PayloadProofToken 解析事件 payload 中的 token_b64 字段；缺失返回空串
func PayloadProofToken(e Event) string {
	var p struct {
		TokenB64 string `json:"token_b64"`
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	return p.TokenB64
}

// HasKind 事件流中是否存在指定 Kind
func HasKind(events []Event, kind Kind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// LastOfKind 返回最后一条指定 Kind 的事件；不存在时 ok=false
func LastOfKind(events []Event, kind Kind) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return events[i], true
		}
	}
	return Event{}, false
}
