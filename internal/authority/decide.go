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

// Package authority 纯决策层：输入事件流与参数，输出布尔或任务清单。
// 决策不做 I/O、不读时钟（时间一律由调用方传入）、缺证据时回答「还不做」而非报错；
// 完成证据严格压过意图，证据缺失不等于失败。
package authority

import (
	"strings"
	"time"

	"notary-platform/internal/eventlog"
)

// ShouldRunTimestamp 已请求保护且尚无可信时间戳时需要跑 TSA
func ShouldRunTimestamp(events []eventlog.Event) bool {
	if !eventlog.HasKind(events, eventlog.KindProtectedRequested) {
		return false
	}
	return !eventlog.HasKind(events, eventlog.KindTSAConfirmed)
}

// hasValidConfirmedAnchor 指定链是否已有有效确认。
// 有效确认要求：链匹配、payload 带 confirmed_at、且 confirmed_at 不早于事件记录时刻
// （时序因果：确认时间不可能先于记录它的事件本身）。
func hasValidConfirmedAnchor(events []eventlog.Event, network string) bool {
	for _, e := range events {
		if e.Kind != eventlog.KindAnchorConfirmed {
			continue
		}
		if eventlog.AnchorNetwork(e) != network {
			continue
		}
		confirmedAt := eventlog.AnchorConfirmedAt(e)
		if confirmedAt.IsZero() {
			continue
		}
		if confirmedAt.Before(e.At.Truncate(time.Second)) {
			continue
		}
		return true
	}
	return false
}

// ShouldSubmitAnchor 指定链是否需要提交锚定
func ShouldSubmitAnchor(events []eventlog.Event, network string) bool {
	if eventlog.HasKind(events, eventlog.KindDocumentCancelled) {
		return false
	}
	if !eventlog.HasKind(events, eventlog.KindTSAConfirmed) {
		return false
	}
	return !hasValidConfirmedAnchor(events, network)
}

// ShouldConfirmAnchor 是否把一次成功回执落为确认事实
func ShouldConfirmAnchor(in ConfirmAnchorInput) bool {
	if in.Cancelled {
		return false
	}
	if in.ReceiptStatus != "confirmed" {
		return false
	}
	return in.Attempts+1 <= in.Policy.MaxAttempts
}

// ShouldBuildArtifact 全部所需锚定已确认且尚无证明包时构建
func ShouldBuildArtifact(events []eventlog.Event, requestedNetworks []string) bool {
	if eventlog.HasKind(events, eventlog.KindDocumentCancelled) {
		return false
	}
	if !eventlog.HasKind(events, eventlog.KindTSAConfirmed) {
		return false
	}
	if eventlog.HasKind(events, eventlog.KindArtifactCompleted) {
		return false
	}
	for _, network := range requestedNetworks {
		if !hasValidConfirmedAnchor(events, network) {
			return false
		}
	}
	return true
}

// ShouldRequestChanges 仅工作流所有者可在 active 工作流上发起变更，且不可叠加未答复的请求
func ShouldRequestChanges(in ChangeInput) bool {
	if in.Actor == "" || in.Actor != in.Owner {
		return false
	}
	if in.WorkflowStatus != "active" {
		return false
	}
	return !in.OpenChangeRequest
}

// ShouldRespondChanges 仅对方可答复，且必须有未答复的请求
func ShouldRespondChanges(in ChangeInput) bool {
	if in.Actor == "" || in.Actor != in.Counterparty {
		return false
	}
	if in.WorkflowStatus != "active" {
		return false
	}
	return in.OpenChangeRequest
}

// ShouldCancelWorkflow 仅所有者可取消 active 工作流
func ShouldCancelWorkflow(in CancelInput) bool {
	if in.Actor == "" || in.Actor != in.Owner {
		return false
	}
	return in.WorkflowStatus == "active"
}

// signerTerminal 签署人终态集合
func signerTerminal(status string) bool {
	switch status {
	case "signed", "declined", "cancelled":
		return true
	}
	return false
}

// ShouldConfirmIdentity 签署人身份确认前置条件全量检查
func ShouldConfirmIdentity(in IdentityInput) bool {
	if !in.SignerExists {
		return false
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return false
	}
	if !in.RecipientAccepted || !in.LoggingAccepted {
		return false
	}
	if signerTerminal(in.SignerStatus) {
		return false
	}
	return !in.NameConfirmed
}

// ShouldNotifySignerLink 新签署人进入可签状态且从未通知过时发送签署链接
func ShouldNotifySignerLink(in NotifyInput) bool {
	if in.Op != "insert" {
		return false
	}
	if in.SignerStatus != "invited" && in.SignerStatus != "ready_to_sign" {
		return false
	}
	return !in.AlreadyNotified
}

// ShouldRecoverOrphanAnchor 近期文档在网络侧停在 pending 而本地无记录时需要修复
func ShouldRecoverOrphanAnchor(in OrphanAnchorInput) bool {
	if in.AnchorRecordExists {
		return false
	}
	if in.LastNetworkStatus != "pending" {
		return false
	}
	if in.CreatedAt.IsZero() || in.Now.Sub(in.CreatedAt) > in.RecentWindow {
		return false
	}
	return true
}
