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
	"strings"

	"notary-platform/internal/eventlog"
)

// Job types 决策阶梯可产出的任务类型
const (
	JobRunTimestamp  = "run_tsa"
	JobSubmitAnchor  = "submit_anchor"
	JobBuildArtifact = "build_artifact"
)

// JobSpec 决策产出的任务描述；Network 仅 submit_anchor 使用
type JobSpec struct {
	Type    string
	Network string
}

// Decision 下一步任务清单及判定依据
type Decision struct {
	Jobs   []JobSpec
	Reason string
}

// DecideNextJobs 复合决策阶梯：给定事件流与保护请求参数，产出下一步任务。
// 阶梯自上而下短路：无请求 → 无事可做；已取消 → 无事可做；无时间戳 → 先跑 TSA；
// 所需锚定齐全且无证明包 → 构建证明包；否则补缺失的锚定提交。
func DecideNextJobs(events []eventlog.Event, protection Protection) Decision {
	if !eventlog.HasKind(events, eventlog.KindProtectedRequested) {
		return Decision{Reason: "no protection request"}
	}
	if eventlog.HasKind(events, eventlog.KindDocumentCancelled) {
		return Decision{Reason: "document cancelled"}
	}
	if ShouldRunTimestamp(events) {
		return Decision{
			Jobs:   []JobSpec{{Type: JobRunTimestamp}},
			Reason: "trusted timestamp missing",
		}
	}
	if ShouldBuildArtifact(events, protection.RequestedNetworks) {
		return Decision{
			Jobs:   []JobSpec{{Type: JobBuildArtifact}},
			Reason: "all required anchors confirmed, artifact missing",
		}
	}

	var jobs []JobSpec
	var missing []string
	for _, network := range protection.RequestedNetworks {
		if ShouldSubmitAnchor(events, network) {
			jobs = append(jobs, JobSpec{Type: JobSubmitAnchor, Network: network})
			missing = append(missing, network)
		}
	}
	if len(jobs) == 0 {
		return Decision{Reason: "nothing to do"}
	}
	return Decision{
		Jobs:   jobs,
		Reason: fmt.Sprintf("anchors missing for %s", strings.Join(missing, ",")),
	}
}
