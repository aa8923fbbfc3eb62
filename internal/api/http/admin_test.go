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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"notary-platform/internal/anchor"
	"notary-platform/internal/api/http/middleware"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
)

const adminTokenForTest = "test-admin-token"

func buildAdminServerForTest() (*server.Hertz, anchor.Store) {
	anchors := anchor.NewMemoryStore()
	h := NewHandler(
		eventlog.NewMemoryStore(),
		orchestrator.NewMemoryStore(),
		anchors,
		projection.NewMemoryStore(),
		eventlog.ModePermissive,
		nil,
	)
	r := NewRouter(h, middleware.NewMiddleware())
	r.SetAdminToken(adminTokenForTest)
	return r.Build(":0"), anchors
}

func performAdmin(s *server.Hertz, method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(s.Engine, method, path,
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
		ut.Header{Key: "X-Admin-Token", Value: adminTokenForTest})
}

func TestAdminAuth(t *testing.T) {
	s, _ := buildAdminServerForTest()

	w := performJSON(s, "POST", "/api/admin/anchors/repair", nil)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("无令牌 status = %d, want 401", got)
	}

	w = ut.PerformRequest(s.Engine, "POST", "/api/admin/anchors/repair", nil,
		ut.Header{Key: "X-Admin-Token", Value: "wrong"})
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("错令牌 status = %d, want 401", got)
	}

	disabled := buildServerForTest()
	w = performJSON(disabled, "POST", "/api/admin/anchors/repair", nil)
	if got := w.Result().StatusCode(); got != 503 {
		t.Fatalf("未配置令牌 status = %d, want 503", got)
	}
}

func TestRepairAnchors(t *testing.T) {
	s, anchors := buildAdminServerForTest()
	createDocForTest(t, s, "doc-repair")

	now := time.Now().UTC()
	_, err := anchors.Create(context.Background(), anchor.Record{
		EntityID:    "doc-repair",
		Network:     anchor.Network("polygon"),
		Status:      anchor.StatusConfirmed,
		WitnessHash: "wh-1",
		TxRef:       "tx-orphan",
		SubmittedAt: now.Add(-time.Hour),
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("seed anchor record: %v", err)
	}

	var resp struct {
		DryRun     bool `json:"dry_run"`
		Checked    int  `json:"checked"`
		Missing    int  `json:"missing"`
		Candidates []struct {
			EntityID string `json:"entity_id"`
			Network  string `json:"network"`
			Repaired bool   `json:"repaired"`
		} `json:"candidates"`
	}

	w := performAdmin(s, "POST", "/api/admin/anchors/repair?dry_run=true", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("dry run status = %d (body %s)", got, w.Result().Body())
	}
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode dry run: %v", err)
	}
	if !resp.DryRun || resp.Missing != 1 || resp.Candidates[0].Repaired {
		t.Fatalf("dry run = %+v, want missing=1 未写入", resp)
	}

	// 事件流此时仍无确认事实
	w = ut.PerformRequest(s.Engine, "GET", "/api/documents/doc-repair", nil)
	if strings.Contains(string(w.Result().Body()), "anchor.confirmed") {
		t.Fatal("dry run 不应追加事件")
	}

	w = performAdmin(s, "POST", "/api/admin/anchors/repair", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("repair status = %d (body %s)", got, w.Result().Body())
	}
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode repair: %v", err)
	}
	if resp.Missing != 1 || !resp.Candidates[0].Repaired {
		t.Fatalf("repair = %+v, want repaired=true", resp)
	}

	w = ut.PerformRequest(s.Engine, "GET", "/api/documents/doc-repair", nil)
	if !strings.Contains(string(w.Result().Body()), "anchor.confirmed") {
		t.Fatal("修复后事件流应含 anchor.confirmed")
	}

	// 补发事实的记录时刻必须等于确认时点，否则决策层会当它无效
	var doc struct {
		Events []struct {
			Kind    string `json:"kind"`
			At      string `json:"at"`
			Payload struct {
				ConfirmedAt string `json:"confirmed_at"`
			} `json:"payload"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Result().Body(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	for _, ev := range doc.Events {
		if ev.Kind != "anchor.confirmed" {
			continue
		}
		at, err := time.Parse(time.RFC3339, ev.At)
		if err != nil {
			t.Fatalf("parse event at: %v", err)
		}
		confirmed, err := time.Parse(time.RFC3339, ev.Payload.ConfirmedAt)
		if err != nil {
			t.Fatalf("parse confirmed_at: %v", err)
		}
		if confirmed.Before(at.Truncate(time.Second)) {
			t.Fatalf("confirmed_at %s 早于事件时刻 %s，补发事实会被决策层忽略", ev.Payload.ConfirmedAt, ev.At)
		}
	}

	// 再跑一轮应无缺口
	w = performAdmin(s, "POST", "/api/admin/anchors/repair", nil)
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode second repair: %v", err)
	}
	if resp.Missing != 0 {
		t.Fatalf("第二轮 missing = %d, want 0", resp.Missing)
	}
}

func TestShadowDecision(t *testing.T) {
	s, _ := buildAdminServerForTest()
	createDocForTest(t, s, "doc-shadow")

	var resp struct {
		Reason        string   `json:"reason"`
		Discrepancies []string `json:"discrepancies"`
		Matched       bool     `json:"matched"`
	}

	// 刚建档未跑 TSA，权威决策为 run_tsa；空提案应报缺项
	w := performAdmin(s, "POST", "/api/admin/documents/doc-shadow/decision/shadow",
		[]byte(`{"jobs":[]}`))
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("shadow status = %d (body %s)", got, w.Result().Body())
	}
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode shadow: %v", err)
	}
	if resp.Matched || len(resp.Discrepancies) != 1 || resp.Discrepancies[0] != "missing: run_tsa" {
		t.Fatalf("shadow = %+v, want missing run_tsa", resp)
	}

	w = performAdmin(s, "POST", "/api/admin/documents/doc-shadow/decision/shadow",
		[]byte(`{"jobs":[{"type":"run_tsa"}]}`))
	if err := json.Unmarshal(w.Result().Body(), &resp); err != nil {
		t.Fatalf("decode shadow: %v", err)
	}
	if !resp.Matched {
		t.Fatalf("shadow = %+v, want matched", resp)
	}

	w = performAdmin(s, "POST", "/api/admin/documents/ghost/decision/shadow",
		[]byte(`{"jobs":[]}`))
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("ghost shadow status = %d, want 404", got)
	}
}
