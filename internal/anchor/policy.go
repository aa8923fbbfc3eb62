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

import (
	"strconv"
	"time"
)

// Policy 单链重试/超时策略
type Policy struct {
	Network       Network
	MaxAttempts   int
	Timeout       time.Duration
	RetrySchedule []int // 分钟间隔表；末项对后续尝试重复生效
	Version       int
}

// 默认策略；polygon 出块快、递增退避，bitcoin 出块慢、固定 5 分钟轮询一天
var (
	PolygonPolicy = Policy{
		Network:       NetworkPolygon,
		MaxAttempts:   20,
		Timeout:       2 * time.Hour,
		RetrySchedule: []int{1, 2, 4, 8, 10},
		Version:       1,
	}
	BitcoinPolicy = Policy{
		Network:       NetworkBitcoin,
		MaxAttempts:   288,
		Timeout:       24 * time.Hour,
		RetrySchedule: []int{5},
		Version:       1,
	}
)

// PolicyFor 返回指定链的默认策略；未知链返回 ok=false
func PolicyFor(network Network) (Policy, bool) {
	switch network {
	case NetworkPolygon:
		return PolygonPolicy, true
	case NetworkBitcoin:
		return BitcoinPolicy, true
	}
	return Policy{}, false
}

// TimeoutReason 超时判定原因
type TimeoutReason string

const (
	TimeoutMaxAttempts TimeoutReason = "max_attempts"
	TimeoutElapsed     TimeoutReason = "elapsed"
)

// TimeoutVerdict 超时判定结果
type TimeoutVerdict struct {
	TimedOut   bool
	Reason     TimeoutReason
	PendingAge time.Duration
}

// EvaluateTimeout 判定第 attempt 次确认尝试是否应放弃。
// max_attempts 先于 elapsed 检查：次数耗尽即超时，与提交时刻无关。
func EvaluateTimeout(rec Record, policy Policy, attempt int, now time.Time) TimeoutVerdict {
	var age time.Duration
	if !rec.SubmittedAt.IsZero() {
		age = now.Sub(rec.SubmittedAt)
	}
	if attempt > policy.MaxAttempts {
		return TimeoutVerdict{TimedOut: true, Reason: TimeoutMaxAttempts, PendingAge: age}
	}
	if !rec.SubmittedAt.IsZero() && age >= policy.Timeout {
		return TimeoutVerdict{TimedOut: true, Reason: TimeoutElapsed, PendingAge: age}
	}
	return TimeoutVerdict{PendingAge: age}
}

// scheduleIntervalMinutes 第 attempt 次尝试后的等待分钟数；表走完后末项重复
func scheduleIntervalMinutes(policy Policy, attempt int) int {
	if len(policy.RetrySchedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(policy.RetrySchedule) {
		idx = len(policy.RetrySchedule) - 1
	}
	return policy.RetrySchedule[idx]
}

// ProjectSubmitted 提交后的记录投影：置 submitted、记提交时刻、播种首个重试间隔
func ProjectSubmitted(rec Record, policy Policy, txRef string, now time.Time) Record {
	interval := scheduleIntervalMinutes(policy, 1)
	rec.Status = StatusSubmitted
	rec.TxRef = txRef
	rec.SubmittedAt = now
	rec.NextRetryAt = now.Add(time.Duration(interval) * time.Minute)
	rec.UpdatedAt = now
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string)
	}
	rec.Metadata[MetaSubmittedAt] = now.Format(time.RFC3339)
	rec.Metadata[MetaNextRetryAt] = rec.NextRetryAt.Format(time.RFC3339)
	rec.Metadata[MetaRetryIntervalMinutes] = strconv.Itoa(interval)
	rec.Metadata[MetaRetryPolicyVersion] = strconv.Itoa(policy.Version)
	return rec
}

// ProjectRetry 第 attempt 次确认未果后的记录投影：排定下一次重试并更新簿记
func ProjectRetry(rec Record, policy Policy, attempt int, now time.Time) Record {
	interval := scheduleIntervalMinutes(policy, attempt)
	rec.Attempts = attempt
	rec.NextRetryAt = now.Add(time.Duration(interval) * time.Minute)
	rec.UpdatedAt = now
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string)
	}
	rec.Metadata[MetaLastRetryAt] = now.Format(time.RFC3339)
	rec.Metadata[MetaNextRetryAt] = rec.NextRetryAt.Format(time.RFC3339)
	rec.Metadata[MetaRetryIntervalMinutes] = strconv.Itoa(interval)
	rec.Metadata[MetaRetryPolicyVersion] = strconv.Itoa(policy.Version)
	return rec
}

// IsRetryDue 下一次确认检查是否已到期；未排定过视为到期
func IsRetryDue(rec Record, now time.Time) bool {
	if rec.NextRetryAt.IsZero() {
		return true
	}
	return !rec.NextRetryAt.After(now)
}
