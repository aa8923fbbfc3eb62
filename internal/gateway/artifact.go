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

package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"notary-platform/internal/eventlog"
	"notary-platform/pkg/proof"
	"notary-platform/pkg/tracing"
)

// Artifact 证明包构建结果
type Artifact struct {
	Ref         string // 存储引用（落盘路径或对象键）
	ContentHash string // zip 内容 sha256
	Size        int
}

// ArtifactBuilder 把实体事件流打包成可下载的证明包
type ArtifactBuilder struct {
	outputDir   string
	generatedBy string
}

// NewArtifactBuilder 创建构建器；outputDir 不存在时首次 Build 自动创建
func NewArtifactBuilder(outputDir, generatedBy string) *ArtifactBuilder {
	if generatedBy == "" {
		generatedBy = "notary-platform"
	}
	return &ArtifactBuilder{outputDir: outputDir, generatedBy: generatedBy}
}

// Build 导出证据 zip 并落盘；同一实体重复构建产物内容一致（哈希链定死内容）
func (b *ArtifactBuilder) Build(ctx context.Context, entity eventlog.DocumentEntity) (Artifact, error) {
	_, span := tracing.StartGatewaySpan(ctx, "artifact", "build")
	defer span.End()

	zipBytes, err := proof.ExportEvidenceZip(entity.ID, entity.WitnessHash,
		eventlog.ToProofEvents(entity.Events), proof.ExportOptions{GeneratedBy: b.generatedBy})
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact export: %w", err)
	}

	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("artifact output dir: %w", err)
	}
	path := filepath.Join(b.outputDir, entity.ID+".zip")
	if err := os.WriteFile(path, zipBytes, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("artifact write: %w", err)
	}

	return Artifact{
		Ref:         path,
		ContentHash: proof.ComputeFileHash(zipBytes),
		Size:        len(zipBytes),
	}, nil
}
