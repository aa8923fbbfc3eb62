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

// Package app 进程装配的公共部分：日志与各存储按配置初始化
package app

import (
	"context"
	"fmt"

	"notary-platform/internal/anchor"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
	"notary-platform/pkg/config"
	"notary-platform/pkg/log"
)

// Bootstrap API 与 Worker 共用的装配结果
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Events  eventlog.Store
	Jobs    orchestrator.Store
	Anchors anchor.Store
	Rows    projection.Store
}

// NewBootstrap 创建日志与存储；type=postgres 的存储连不上即失败，不做静默降级
func NewBootstrap(cfg *config.Config, component string) (*Bootstrap, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger = logger.WithComponent(component)

	ctx := context.Background()

	var events eventlog.Store
	if cfg.EventLog.Type == "postgres" {
		events, err = eventlog.NewPostgresStore(ctx, cfg.EventLog.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化事件日志存储失败: %w", err)
		}
	} else {
		events = eventlog.NewMemoryStore()
	}

	var jobs orchestrator.Store
	if cfg.Jobs.Type == "postgres" {
		jobs, err = orchestrator.NewPostgresStore(ctx, cfg.Jobs.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化任务存储失败: %w", err)
		}
	} else {
		jobs = orchestrator.NewMemoryStore()
	}

	var anchors anchor.Store
	if cfg.Anchors.Type == "postgres" {
		anchors, err = anchor.NewPostgresStore(ctx, cfg.Anchors.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化锚定存储失败: %w", err)
		}
	} else {
		anchors = anchor.NewMemoryStore()
	}

	var rows projection.Store
	if cfg.Projection.Type == "postgres" {
		rows, err = projection.NewPostgresStore(ctx, cfg.Projection.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化投影存储失败: %w", err)
		}
	} else {
		rows = projection.NewMemoryStore()
	}

	return &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Events:  events,
		Jobs:    jobs,
		Anchors: anchors,
		Rows:    rows,
	}, nil
}

// Mode 事件校验模式；配置未显式 strict 时按宽松处理
func (b *Bootstrap) Mode() eventlog.Mode {
	if b.Config != nil && b.Config.EventLog.Mode == "strict" {
		return eventlog.ModeStrict
	}
	return eventlog.ModePermissive
}
