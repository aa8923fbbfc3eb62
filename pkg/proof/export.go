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

package proof

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ExportOptions 导出选项
type ExportOptions struct {
	GeneratedBy string
}

// ExportEvidenceZip 将事件流导出为证据包 ZIP：manifest.json + events.jsonl + summary.json。
// 导出前先验证哈希链，链断裂则拒绝导出。
func ExportEvidenceZip(entityID, witnessHash string, events []Event, opts ExportOptions) ([]byte, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity_id is required")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events found for entity %s", entityID)
	}

	if err := ValidateChain(events); err != nil {
		return nil, fmt.Errorf("hash chain validation failed: %w", err)
	}

	var eventsBuf bytes.Buffer
	enc := json.NewEncoder(&eventsBuf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
	}

	summary := Summary{
		EntityID:       entityID,
		WitnessHash:    witnessHash,
		RootHash:       events[len(events)-1].Hash,
		ChainValidated: true,
		GeneratedBy:    opts.GeneratedBy,
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Version:        "1.0",
		EntityID:       entityID,
		WitnessHash:    witnessHash,
		ExportedAt:     time.Now().UTC(),
		EventCount:     len(events),
		FirstEventHash: events[0].Hash,
		LastEventHash:  events[len(events)-1].Hash,
		FileHashes: map[string]string{
			"events.jsonl": ComputeFileHash(eventsBuf.Bytes()),
			"summary.json": ComputeFileHash(summaryBytes),
		},
		SchemaVersion: "evidence-v1",
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	files := []struct {
		name string
		data []byte
	}{
		{"manifest.json", manifestBytes},
		{"events.jsonl", eventsBuf.Bytes()},
		{"summary.json", summaryBytes},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", f.name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return zipBuf.Bytes(), nil
}
