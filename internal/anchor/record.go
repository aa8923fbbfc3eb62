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

package anchor

import "time"

// Network 支持的锚定链
type Network string

const (
	NetworkPolygon Network = "polygon"
	NetworkBitcoin Network = "bitcoin"
)

// Status 锚定记录状态
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// metadata 簿记键；重试状态全部是数据，不靠进程内定时器
const (
	MetaSubmittedAt          = "submittedAt"
	MetaLastRetryAt          = "lastRetryAt"
	MetaNextRetryAt          = "nextRetryAt"
	MetaRetryIntervalMinutes = "retryIntervalMinutes"
	MetaRetryPolicyVersion   = "retryPolicyVersion"
)

// Record 单条锚定记录；每 (实体, 链) 至多一条
type Record struct {
	ID          string
	EntityID    string
	Network     Network
	Status      Status
	Attempts    int
	WitnessHash string
	TxRef       string
	SubmittedAt time.Time
	NextRetryAt time.Time
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTerminal 记录是否已到终态
func (r Record) IsTerminal() bool {
	switch r.Status {
	case StatusConfirmed, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}
