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

// KindRule 单个事件类型的准入规则
type KindRule struct {
	Unique              bool // 每实体至多一条
	UniquePerNetwork    bool // 每 (实体, network) 至多一条
	RequireWitnessHash  bool // payload.witness_hash 必须存在且与实体一致
	RequireProofTokenB64 bool // payload.token_b64 必须存在
}

// kindRules 事件类型准入规则表
var kindRules = map[Kind]KindRule{
	KindProtectedRequested: {Unique: true},
	KindTSAConfirmed:       {Unique: true, RequireWitnessHash: true, RequireProofTokenB64: true},
	KindTSAFailed:          {},
	KindAnchorSubmitted:    {RequireWitnessHash: true},
	KindAnchorPending:      {RequireWitnessHash: true},
	KindAnchorConfirmed:    {UniquePerNetwork: true, RequireWitnessHash: true},
	KindAnchorFailed:       {},
	KindAnchorTimeout:      {},
	KindArtifactCompleted:  {Unique: true, RequireWitnessHash: true},
	KindDocumentCancelled:  {Unique: true},
	KindChangeRequested:    {},
	KindChangeResponded:    {},
}

// RuleFor 返回指定 Kind 的规则；未知 Kind 返回 ok=false
func RuleFor(kind Kind) (KindRule, bool) {
	r, ok := kindRules[kind]
	return r, ok
}

// KnownKinds 返回词表中全部 Kind（无序）
func KnownKinds() []Kind {
	out := make([]Kind, 0, len(kindRules))
	for k := range kindRules {
		out = append(out, k)
	}
	return out
}
