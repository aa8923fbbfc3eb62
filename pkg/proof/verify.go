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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// VerifyEvidenceZip 验证证据包 ZIP：manifest、文件哈希、事件哈希链
func VerifyEvidenceZip(zipBytes []byte) VerifyResult {
	result := VerifyResult{
		OK:     true,
		Errors: []string{},
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read zip: %v", err))
		return result
	}

	files := make(map[string][]byte)
	for _, f := range zipReader.File {
		rc, err := f.Open()
		if err != nil {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf("failed to open %s: %v", f.Name, err))
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", f.Name, err))
			continue
		}
		files[f.Name] = data
	}

	manifestData, ok := files["manifest.json"]
	if !ok {
		result.OK = false
		result.Errors = append(result.Errors, "manifest.json not found")
		return result
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to parse manifest: %v", err))
		return result
	}
	result.ManifestValid = true

	result.FileHashesOK = true
	for filename, expectedHash := range manifest.FileHashes {
		fileData, ok := files[filename]
		if !ok {
			result.OK = false
			result.FileHashesOK = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s listed in manifest but missing", filename))
			continue
		}
		if actual := ComputeFileHash(fileData); actual != expectedHash {
			result.OK = false
			result.FileHashesOK = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s hash mismatch: expected %s, got %s", filename, expectedHash, actual))
		}
	}

	eventsData, ok := files["events.jsonl"]
	if !ok {
		result.OK = false
		result.Errors = append(result.Errors, "events.jsonl not found")
		return result
	}
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(eventsData))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			result.OK = false
			result.Errors = append(result.Errors, fmt.Sprintf("failed to parse event line: %v", err))
			return result
		}
		events = append(events, e)
	}

	if len(events) != manifest.EventCount {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf("event count mismatch: manifest=%d, actual=%d", manifest.EventCount, len(events)))
	}

	if err := ValidateChain(events); err != nil {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf("chain validation failed: %v", err))
	} else {
		result.ChainValid = true
	}

	if len(events) > 0 && manifest.LastEventHash != events[len(events)-1].Hash {
		result.OK = false
		result.Errors = append(result.Errors, "manifest last_event_hash does not match final event")
	}

	return result
}
