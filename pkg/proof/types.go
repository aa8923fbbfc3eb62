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

import "time"

// Event 哈希链视角下的单条文档事件（对应 eventlog.Event）
type Event struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"` // JSON string
	At        time.Time `json:"at"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Manifest 证据包清单
type Manifest struct {
	Version        string            `json:"version"` // "1.0"
	EntityID       string            `json:"entity_id"`
	WitnessHash    string            `json:"witness_hash"`
	ExportedAt     time.Time         `json:"exported_at"`
	EventCount     int               `json:"event_count"`
	FirstEventHash string            `json:"first_event_hash"`
	LastEventHash  string            `json:"last_event_hash"`
	FileHashes     map[string]string `json:"file_hashes"` // filename -> SHA256
	SchemaVersion  string            `json:"schema_version"`
}

// Summary 证明摘要
type Summary struct {
	EntityID       string `json:"entity_id"`
	WitnessHash    string `json:"witness_hash"`
	RootHash       string `json:"root_hash"` // == LastEventHash
	ChainValidated bool   `json:"chain_validated"`
	GeneratedBy    string `json:"generated_by"`
}

// VerifyResult 证据包验证结果
type VerifyResult struct {
	OK             bool     `json:"ok"`
	ManifestValid  bool     `json:"manifest_valid"`
	ChainValid     bool     `json:"chain_valid"`
	FileHashesOK   bool     `json:"file_hashes_ok"`
	Errors         []string `json:"errors"`
}
