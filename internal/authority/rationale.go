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
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"notary-platform/internal/eventlog"
	"notary-platform/pkg/log"
)

// consideredDigest 被考虑事件流的指纹（kind 序列的 sha256），供审计对账
func consideredDigest(events []eventlog.Event) string {
	if len(events) == 0 {
		return ""
	}
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = string(e.Kind)
	}
	sum := sha256.Sum256([]byte(strings.Join(kinds, "|")))
	return hex.EncodeToString(sum[:])
}

// LogRationale 决策依据尽力而为落日志；logger 为 nil 时静默，绝不阻断决策
func LogRationale(logger *log.Logger, entityID string, decision string, verdict bool, reason string, considered []eventlog.Event) {
	if logger == nil {
		return
	}
	logger.Info("decision rationale",
		"entity_id", entityID,
		"decision", decision,
		"verdict", verdict,
		"reason", reason,
		"considered_events", len(considered),
		"considered_digest", consideredDigest(considered),
	)
}

// LogNextJobs 决策阶梯结果落日志
func LogNextJobs(logger *log.Logger, entityID string, d Decision, considered []eventlog.Event) {
	if logger == nil {
		return
	}
	types := make([]string, len(d.Jobs))
	for i, j := range d.Jobs {
		types[i] = j.Type
		if j.Network != "" {
			types[i] += ":" + j.Network
		}
	}
	logger.Info("next jobs decided",
		"entity_id", entityID,
		"jobs", strings.Join(types, ","),
		"reason", d.Reason,
		"considered_events", len(considered),
		"considered_digest", consideredDigest(considered),
	)
}
