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

package authority

import (
	"time"

	"notary-platform/internal/anchor"
)

// ConfirmAnchorInput 链上确认决策输入；调用方负责取数，决策本身无 I/O
type ConfirmAnchorInput struct {
	Cancelled     bool
	ReceiptStatus string // confirmed | pending | not_found
	Attempts      int    // 已完成的确认尝试次数
	Policy        anchor.Policy
}

// ChangeInput 工作流变更类决策输入
type ChangeInput struct {
	Actor             string
	Owner             string
	Counterparty      string
	WorkflowStatus    string // active | completed | cancelled …
	OpenChangeRequest bool   // 是否已有未答复的变更请求
}

// CancelInput 工作流取消决策输入
type CancelInput struct {
	Actor          string
	Owner          string
	WorkflowStatus string
}

// IdentityInput 签署人身份确认决策输入
type IdentityInput struct {
	SignerExists      bool
	FirstName         string
	LastName          string
	RecipientAccepted bool
	LoggingAccepted   bool
	SignerStatus      string // invited | ready_to_sign | signed | declined | cancelled
	NameConfirmed     bool
}

// NotifyInput 签署链接通知决策输入
type NotifyInput struct {
	Op              string // insert | update
	SignerStatus    string
	AlreadyNotified bool
}

// OrphanAnchorInput 孤儿锚定修复决策输入
type OrphanAnchorInput struct {
	CreatedAt          time.Time
	RecentWindow       time.Duration
	LastNetworkStatus  string // 网络侧最后已知状态
	AnchorRecordExists bool
	Now                time.Time
}

// Protection 保护请求的参数视图（来自 document.protected.requested 的 payload）
type Protection struct {
	RequestedNetworks []string
}
