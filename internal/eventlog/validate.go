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
	"fmt"
)

// Mode 未知事件类型的处理策略
type Mode string

const (
	// ModePermissive 未知 Kind 放行（仅跳过规则校验）
	ModePermissive Mode = "permissive"
	// ModeStrict 未知 Kind 拒绝
	ModeStrict Mode = "strict"
)

// RejectReason 追加被拒绝的类型化原因
type RejectReason string

const (
	RejectKindMissing         RejectReason = "kind_missing"
	RejectAtInvalid           RejectReason = "at_invalid"
	RejectKindDuplicate       RejectReason = "kind_duplicate"
	RejectWitnessHashRequired RejectReason = "witness_hash_required"
	RejectWitnessHashMismatch RejectReason = "witness_hash_mismatch"
	RejectProofTokenRequired  RejectReason = "proof_token_required"
	RejectKindNotAllowed      RejectReason = "kind_not_allowed"
)

// RejectError 校验拒绝错误；整条事件被拒，日志保持不变
type RejectError struct {
	Reason RejectReason
	Kind   Kind
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("eventlog: append rejected (%s) for kind %q: %s", e.Reason, e.Kind, e.Detail)
	}
	return fmt.Sprintf("eventlog: append rejected (%s) for kind %q", e.Reason, e.Kind)
}

// AsReject 判断 err 是否为校验拒绝并取出原因
func AsReject(err error) (*RejectError, bool) {
	re, ok := err.(*RejectError)
	return re, ok
}

func reject(reason RejectReason, kind Kind, detail string) error {
	return &RejectError{Reason: reason, Kind: kind, Detail: detail}
}

// AppendOptions 追加选项；Mode 必须显式传入，不做环境嗅探
type AppendOptions struct {
	Mode Mode
}

// ValidateAppend 按规则表校验候选事件能否追加到现有事件流之后。
// entityWitnessHash 为实体见证哈希；prior 为现有事件（按序）。
func ValidateAppend(entityWitnessHash string, prior []Event, candidate Event, opts AppendOptions) error {
	if candidate.Kind == "" {
		return reject(RejectKindMissing, candidate.Kind, "")
	}
	if candidate.At.IsZero() {
		return reject(RejectAtInvalid, candidate.Kind, "at is zero")
	}

	rule, known := RuleFor(candidate.Kind)
	if !known {
		if opts.Mode == ModeStrict {
			return reject(RejectKindNotAllowed, candidate.Kind, "unknown kind in strict mode")
		}
		// permissive：未知 Kind 放行，不做规则校验
		return nil
	}

	if rule.Unique && HasKind(prior, candidate.Kind) {
		return reject(RejectKindDuplicate, candidate.Kind, "kind already present")
	}

	if rule.UniquePerNetwork {
		network := AnchorNetwork(candidate)
		for _, e := range prior {
			if e.Kind == candidate.Kind && AnchorNetwork(e) == network {
				return reject(RejectKindDuplicate, candidate.Kind,
					fmt.Sprintf("kind already present for network %q", network))
			}
		}
	}

	if rule.RequireWitnessHash {
		wh := PayloadWitnessHash(candidate)
		if wh == "" {
			return reject(RejectWitnessHashRequired, candidate.Kind, "")
		}
		if entityWitnessHash != "" && wh != entityWitnessHash {
			return reject(RejectWitnessHashMismatch, candidate.Kind, "")
		}
	}

	if rule.RequireProofTokenB64 && PayloadProofToken(candidate) == "" {
		return reject(RejectProofTokenRequired, candidate.Kind, "")
	}

	return nil
}
