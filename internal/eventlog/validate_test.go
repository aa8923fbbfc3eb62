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
	"testing"
	"time"
)

const testWitness = "wh-abc123"

func evt(kind Kind, payload string) Event {
	return Event{Kind: kind, Payload: []byte(payload), At: time.Now()}
}

func TestValidateAppend_Rejections(t *testing.T) {
	prior := []Event{
		evt(KindProtectedRequested, `{}`),
		evt(KindTSAConfirmed, `{"witness_hash":"wh-abc123","token_b64":"dG9r"}`),
		evt(KindAnchorConfirmed, `{"network":"polygon","witness_hash":"wh-abc123","confirmed_at":"2026-08-01T00:00:00Z"}`),
	}

	cases := []struct {
		name      string
		candidate Event
		mode      Mode
		want      RejectReason
	}{
		{"kind 缺失", Event{At: time.Now()}, ModePermissive, RejectKindMissing},
		{"at 为零值", Event{Kind: KindTSAFailed}, ModePermissive, RejectAtInvalid},
		{"unique kind 重复", evt(KindProtectedRequested, `{}`), ModePermissive, RejectKindDuplicate},
		{"同链 anchor.confirmed 重复", evt(KindAnchorConfirmed, `{"network":"polygon","witness_hash":"wh-abc123"}`), ModePermissive, RejectKindDuplicate},
		{"witness hash 缺失", evt(KindArtifactCompleted, `{}`), ModePermissive, RejectWitnessHashRequired},
		{"witness hash 不一致", evt(KindArtifactCompleted, `{"witness_hash":"wh-other"}`), ModePermissive, RejectWitnessHashMismatch},
		{"proof token 缺失", evt(KindTSAConfirmed, `{"witness_hash":"wh-abc123"}`), ModePermissive, RejectProofTokenRequired},
		{"strict 模式拒绝未知 kind", evt(Kind("custom.audit"), `{}`), ModeStrict, RejectKindNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAppend(testWitness, prior, tc.candidate, AppendOptions{Mode: tc.mode})
			re, ok := AsReject(err)
			if !ok {
				t.Fatalf("期望 RejectError，got %v", err)
			}
			if re.Reason != tc.want {
				t.Errorf("reason: got %q want %q", re.Reason, tc.want)
			}
		})
	}

	// tsa.confirmed 已存在时 unique 与 proof_token 同时不满足：重复优先
	err := ValidateAppend(testWitness, prior, evt(KindTSAConfirmed, `{}`), AppendOptions{Mode: ModePermissive})
	if re, ok := AsReject(err); !ok || re.Reason != RejectKindDuplicate {
		t.Errorf("重复 tsa.confirmed: got %v", err)
	}
}

func TestValidateAppend_Accepts(t *testing.T) {
	prior := []Event{
		evt(KindProtectedRequested, `{}`),
		evt(KindAnchorConfirmed, `{"network":"polygon","witness_hash":"wh-abc123"}`),
	}

	cases := []struct {
		name      string
		candidate Event
		mode      Mode
	}{
		{"非 unique kind 重复允许", evt(KindAnchorSubmitted, `{"network":"bitcoin","witness_hash":"wh-abc123"}`), ModePermissive},
		{"不同链的 anchor.confirmed 允许", evt(KindAnchorConfirmed, `{"network":"bitcoin","witness_hash":"wh-abc123"}`), ModePermissive},
		{"permissive 放行未知 kind", evt(Kind("custom.audit"), `{}`), ModePermissive},
		{"合规 tsa.confirmed", evt(KindTSAConfirmed, `{"witness_hash":"wh-abc123","token_b64":"dG9r"}`), ModePermissive},
		{"strict 模式已知 kind 照常", evt(KindTSAFailed, `{}`), ModeStrict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateAppend(testWitness, prior, tc.candidate, AppendOptions{Mode: tc.mode}); err != nil {
				t.Errorf("期望通过，got %v", err)
			}
		})
	}
}

func TestValidateAppend_EmptyEntityWitnessSkipsMatch(t *testing.T) {
	// 实体尚未登记 witness hash 时只要求字段存在
	err := ValidateAppend("", nil, evt(KindAnchorSubmitted, `{"network":"polygon","witness_hash":"wh-any"}`), AppendOptions{Mode: ModePermissive})
	if err != nil {
		t.Fatalf("期望通过，got %v", err)
	}
}
