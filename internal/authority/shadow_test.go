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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShadowCompare(t *testing.T) {
	canonical := Decision{
		Jobs: []JobSpec{
			{Type: JobSubmitAnchor, Network: "polygon"},
			{Type: JobSubmitAnchor, Network: "bitcoin"},
		},
		Reason: "anchor submissions missing",
	}

	t.Run("一致", func(t *testing.T) {
		diffs := ShadowCompare([]JobSpec{
			{Type: JobSubmitAnchor, Network: "bitcoin"},
			{Type: JobSubmitAnchor, Network: "polygon"},
		}, canonical)
		assert.Empty(t, diffs)
	})

	t.Run("提案缺项", func(t *testing.T) {
		diffs := ShadowCompare([]JobSpec{
			{Type: JobSubmitAnchor, Network: "polygon"},
		}, canonical)
		assert.Equal(t, []string{"missing: submit_anchor:bitcoin"}, diffs)
	})

	t.Run("提案多项", func(t *testing.T) {
		diffs := ShadowCompare([]JobSpec{
			{Type: JobSubmitAnchor, Network: "polygon"},
			{Type: JobSubmitAnchor, Network: "bitcoin"},
			{Type: JobBuildArtifact},
		}, canonical)
		assert.Equal(t, []string{"unexpected: build_artifact"}, diffs)
	})

	t.Run("空对空", func(t *testing.T) {
		assert.Empty(t, ShadowCompare(nil, Decision{Reason: "no protection request"}))
	})
}
