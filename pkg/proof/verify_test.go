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
	"testing"
	"time"
)

func chainedEvents(t *testing.T, kinds ...string) []Event {
	t.Helper()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := make([]Event, 0, len(kinds))
	prev := ""
	for i, kind := range kinds {
		e := Event{
			ID:       "ev-" + kind,
			EntityID: "doc-1",
			Kind:     kind,
			Payload:  `{}`,
			At:       at.Add(time.Duration(i) * time.Minute),
			PrevHash: prev,
		}
		e.Hash = ComputeEventHash(e)
		prev = e.Hash
		events = append(events, e)
	}
	return events
}

func TestValidateChain(t *testing.T) {
	events := chainedEvents(t, "document.protected.requested", "tsa.confirmed", "anchor.confirmed")
	if err := ValidateChain(events); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}

	if err := ValidateChain(nil); err != nil {
		t.Errorf("empty chain should validate, got %v", err)
	}
}

func TestValidateChainBroken(t *testing.T) {
	events := chainedEvents(t, "document.protected.requested", "tsa.confirmed")
	events[1].PrevHash = "tampered"
	if err := ValidateChain(events); err == nil {
		t.Fatal("broken prev_hash should be rejected")
	}

	events = chainedEvents(t, "document.protected.requested", "tsa.confirmed")
	events[1].Payload = `{"tampered":true}`
	if err := ValidateChain(events); err == nil {
		t.Fatal("tampered payload should be rejected")
	}
}

func TestExportAndVerifyEvidenceZip(t *testing.T) {
	events := chainedEvents(t, "document.protected.requested", "tsa.confirmed", "anchor.confirmed", "artifact.completed")
	zipBytes, err := ExportEvidenceZip("doc-1", "abc123", events, ExportOptions{GeneratedBy: "test"})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	result := VerifyEvidenceZip(zipBytes)
	if !result.OK {
		t.Fatalf("verify failed: %v", result.Errors)
	}
	if !result.ChainValid || !result.ManifestValid || !result.FileHashesOK {
		t.Errorf("expected all checks to pass: %+v", result)
	}
}

func TestExportRejectsBrokenChain(t *testing.T) {
	events := chainedEvents(t, "document.protected.requested", "tsa.confirmed")
	events[1].Hash = "bogus"
	if _, err := ExportEvidenceZip("doc-1", "abc123", events, ExportOptions{}); err == nil {
		t.Fatal("export should refuse a broken chain")
	}
}

func TestVerifyEvidenceZipGarbage(t *testing.T) {
	result := VerifyEvidenceZip([]byte("not a zip"))
	if result.OK {
		t.Fatal("garbage input should not verify")
	}
}
