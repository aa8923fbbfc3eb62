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
	"fmt"
	"sort"

	"notary-platform/pkg/log"
)

// ShadowCompare 把外部提案的任务集合与决策阶梯的权威结果对账，
// 返回差异描述；空切片表示两边一致。只比集合，不比顺序。
func ShadowCompare(proposed []JobSpec, canonical Decision) []string {
	want := specSet(canonical.Jobs)
	got := specSet(proposed)

	var diffs []string
	for _, key := range sortedKeys(want) {
		if !got[key] {
			diffs = append(diffs, fmt.Sprintf("missing: %s", key))
		}
	}
	for _, key := range sortedKeys(got) {
		if !want[key] {
			diffs = append(diffs, fmt.Sprintf("unexpected: %s", key))
		}
	}
	return diffs
}

// LogShadowCompare 对账结果落日志；一致时 Info，有差异时 Warn
func LogShadowCompare(logger *log.Logger, entityID string, diffs []string, canonical Decision) {
	if logger == nil {
		return
	}
	if len(diffs) == 0 {
		logger.Info("shadow decision matched",
			"entity_id", entityID,
			"reason", canonical.Reason,
		)
		return
	}
	logger.Warn("shadow decision diverged",
		"entity_id", entityID,
		"reason", canonical.Reason,
		"discrepancies", diffs,
	)
}

func specSet(specs []JobSpec) map[string]bool {
	set := make(map[string]bool, len(specs))
	for _, s := range specs {
		key := s.Type
		if s.Network != "" {
			key += ":" + s.Network
		}
		set[key] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
