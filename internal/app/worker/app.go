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

package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"notary-platform/internal/anchor"
	"notary-platform/internal/app"
	"notary-platform/internal/eventlog"
	"notary-platform/internal/gateway"
	"notary-platform/internal/orchestrator"
	"notary-platform/internal/projection"
	"notary-platform/pkg/config"
	"notary-platform/pkg/log"
	"notary-platform/pkg/metrics"
	"notary-platform/pkg/secrets"
	"notary-platform/pkg/tracing"
)

// App Worker 应用：调和循环 + 决策巡检 + 指标端口
type App struct {
	cfg        *config.Config
	logger     *log.Logger
	jobs       orchestrator.Store
	events     eventlog.Store
	anchors    anchor.Store
	sweeper    *Sweeper
	registry   *orchestrator.Registry
	metricsSrv *http.Server
	tp         *sdktrace.TracerProvider
}

// NewApp 按配置装配 Worker：存储、网关客户端、执行器与巡检器
func NewApp(cfg *config.Config) (*App, error) {
	bootstrap, err := app.NewBootstrap(cfg, "worker")
	if err != nil {
		return nil, err
	}
	logger := bootstrap.Logger
	events := bootstrap.Events
	jobs := bootstrap.Jobs
	anchors := bootstrap.Anchors
	rows := bootstrap.Rows

	ctx := context.Background()

	creds, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Config:   cfg.Secrets.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化凭据存储失败: %w", err)
	}
	if err := seedCredentials(ctx, creds, cfg); err != nil {
		return nil, err
	}

	tsaClient := gateway.NewTSAClient(gateway.TSAClientOptions{
		Endpoint: cfg.TSA.Endpoint,
		Timeout:  parseDuration(cfg.TSA.Timeout, 30*time.Second),
		QPS:      cfg.TSA.QPS,
		Burst:    cfg.TSA.Burst,
	}, creds)

	chains := make(map[anchor.Network]AnchorGateway)
	policies := make(map[anchor.Network]anchor.Policy)
	for name, nc := range cfg.Anchors.Networks {
		if !nc.Enabled {
			continue
		}
		network := anchor.Network(name)
		client, err := gateway.NewAnchorClient(gateway.AnchorClientOptions{
			Network:  network,
			Endpoint: nc.Endpoint,
		}, creds)
		if err != nil {
			return nil, fmt.Errorf("初始化链 %s 客户端失败: %w", name, err)
		}
		chains[network] = client
		policies[network] = networkPolicy(network, nc)
	}

	outputDir := cfg.Artifact.OutputDir
	if outputDir == "" {
		outputDir = "artifacts"
	}
	builder := gateway.NewArtifactBuilder(outputDir, "notary-platform")

	var dedupe gateway.DedupeStore
	if cfg.Notify.Type == "redis" {
		dedupe = gateway.NewRedisDedupe(cfg.Notify.Addr, cfg.Notify.Password, cfg.Notify.DB)
	} else {
		dedupe = gateway.NewMemoryDedupe()
	}
	dispatcher := gateway.NewDispatcher(
		&logSender{logger: logger.WithComponent("notify")},
		dedupe,
		parseDuration(cfg.Notify.DedupTTL, 72*time.Hour),
		logger,
	)

	rebuilder := projection.NewRebuilder(events, rows)

	execs := NewExecutors(ExecutorDeps{
		Events:      events,
		Jobs:        jobs,
		Anchors:     anchors,
		Projections: rebuilder,
		TSA:         tsaClient,
		Chains:      chains,
		Policies:    policies,
		Builder:     builder,
		Notifier:    dispatcher,
		Mode:        bootstrap.Mode(),
		Logger:      logger,
	})
	registry := orchestrator.NewRegistry()
	execs.RegisterAll(registry)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		jobs:     jobs,
		events:   events,
		anchors:  anchors,
		sweeper:  NewSweeper(events, jobs, anchors, logger),
		registry: registry,
	}

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		app.tp = tp
	}

	return app, nil
}

// Run 启动调和循环与巡检循环，阻塞直至 ctx 取消
func (a *App) Run(ctx context.Context) error {
	concurrency := a.cfg.Jobs.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	poll := parseDuration(a.cfg.Jobs.PollInterval, 2*time.Second)
	reconcileEvery := parseDuration(a.cfg.Jobs.ReconcileEvery, 30*time.Second)

	if a.cfg.Monitoring.Prometheus.Enable {
		a.startMetricsServer(a.cfg.Monitoring.Prometheus.Port)
	}

	hostname, _ := os.Hostname()
	a.logger.Info("worker 启动", "concurrency", concurrency, "poll", poll.String(), "sweep_every", reconcileEvery.String())

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		r := orchestrator.NewReconciler(a.jobs, a.events, a.registry, a.logger, orchestrator.ReconcilerOptions{
			WorkerID: fmt.Sprintf("%s-%d", hostname, i),
			Backoff:  parseDuration(a.cfg.Jobs.Backoff, 0),
			LeaseTTL: parseDuration(a.cfg.Jobs.LeaseTTL, 0),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunLoop(ctx, poll)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.RunLoop(ctx, reconcileEvery)
	}()

	// 启动即补一轮，避免等第一个 tick
	if _, err := a.sweeper.SweepOnce(ctx); err != nil {
		a.logger.Warn("initial sweep failed", "error", err)
	}

	wg.Wait()
	return nil
}

// Shutdown 停止指标端口与链路追踪导出
func (a *App) Shutdown(ctx context.Context) error {
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if a.tp != nil {
		if err := a.tp.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	a.logger.Info("worker 已退出")
	return nil
}

func (a *App) startMetricsServer(port int) {
	if port <= 0 {
		port = 9091
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if err := metrics.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	a.metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// logSender 把通知写进日志；真实投递后端（邮件/webhook）由部署方接入
type logSender struct {
	logger *log.Logger
}

func (s *logSender) Send(ctx context.Context, msg gateway.Message) error {
	s.logger.Info("notification",
		"recipient", msg.Recipient,
		"event_type", msg.EventType,
		"workflow", msg.Workflow,
		"subject", msg.Subject,
	)
	return nil
}

// seedCredentials 把配置里的明文/环境变量凭据写入凭据存储；
// vault/k8s 等外部 provider 已持有凭据时配置留空即可
func seedCredentials(ctx context.Context, creds secrets.Store, cfg *config.Config) error {
	seed := map[string]string{
		secrets.KeyTSAAPIKey:       cfg.TSA.APIKey,
		secrets.KeyNotifyRedisPass: cfg.Notify.Password,
	}
	if nc, ok := cfg.Anchors.Networks["polygon"]; ok {
		seed[secrets.KeyPolygonAPIKey] = nc.APIKey
	}
	if nc, ok := cfg.Anchors.Networks["bitcoin"]; ok {
		seed[secrets.KeyBitcoinAPIKey] = nc.APIKey
	}
	for key, value := range seed {
		if value == "" {
			continue
		}
		if err := creds.Set(ctx, key, value); err != nil {
			return fmt.Errorf("写入凭据 %s 失败: %w", key, err)
		}
	}
	return nil
}

// networkPolicy 用配置覆盖网络内置策略；未配置的字段保留默认
func networkPolicy(network anchor.Network, nc config.AnchorNetworkConfig) anchor.Policy {
	policy, ok := anchor.PolicyFor(network)
	if !ok {
		policy = anchor.Policy{Network: network}
	}
	if nc.MaxAttempts > 0 {
		policy.MaxAttempts = nc.MaxAttempts
	}
	if d := parseDuration(nc.Timeout, 0); d > 0 {
		policy.Timeout = d
	}
	if len(nc.RetrySchedule) > 0 {
		policy.RetrySchedule = nc.RetrySchedule
	}
	if nc.PolicyVersion > 0 {
		policy.Version = nc.PolicyVersion
	}
	return policy
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
