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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	EventLog   EventLogConfig   `mapstructure:"eventlog"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Anchors    AnchorsConfig    `mapstructure:"anchors"`
	TSA        TSAConfig        `mapstructure:"tsa"`
	Artifact   ArtifactConfig   `mapstructure:"artifact"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	AdminToken string           `mapstructure:"admin_token"` // 管理面令牌；空则管理接口整体关闭
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	RateLimit    bool `mapstructure:"rate_limit"`
	RateLimitRPS int  `mapstructure:"rate_limit_rps"`
}

// EventLogConfig 事件日志存储配置
type EventLogConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	Mode string `mapstructure:"mode"` // permissive | strict；空则默认 permissive
}

// JobsConfig Job 队列与调度配置
type JobsConfig struct {
	Type           string `mapstructure:"type"`            // memory | postgres
	DSN            string `mapstructure:"dsn"`             // Postgres 连接串，type=postgres 时必填
	MaxConcurrency int    `mapstructure:"max_concurrency"` // 最大并发执行数，<=0 使用默认 4
	RetryMax       int    `mapstructure:"retry_max"`       // 失败后最大重试次数（不含首次），<0 使用默认 2
	Backoff        string `mapstructure:"backoff"`         // 重试前等待时间，如 "30s"，空则默认 30s
	LeaseTTL       string `mapstructure:"lease_ttl"`       // running 租约时长，如 "5m"，超时后被回收
	PollInterval   string `mapstructure:"poll_interval"`   // Worker claim 轮询间隔，如 "2s"
	ReconcileEvery string `mapstructure:"reconcile_every"` // 决策巡检间隔，如 "30s"
}

// ProjectionConfig 读模型存储配置
type ProjectionConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`
}

// AnchorsConfig 各链锚定配置
type AnchorsConfig struct {
	Type     string              `mapstructure:"type"` // 状态存储：memory | postgres
	DSN      string              `mapstructure:"dsn"`
	Networks map[string]AnchorNetworkConfig `mapstructure:"networks"`
}

// AnchorNetworkConfig 单个链网络的接入与重试策略
type AnchorNetworkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	APIKey        string `mapstructure:"api_key"` // 支持 ${ENV_VAR} 形式
	MaxAttempts   int    `mapstructure:"max_attempts"`   // <=0 使用网络内置默认
	Timeout       string `mapstructure:"timeout"`        // 如 "2h"
	RetrySchedule []int  `mapstructure:"retry_schedule"` // 分钟间隔表，末项重复
	PolicyVersion int    `mapstructure:"policy_version"`
}

// TSAConfig 时间戳服务配置
type TSAConfig struct {
	Endpoint string  `mapstructure:"endpoint"`
	APIKey   string  `mapstructure:"api_key"` // 支持 ${ENV_VAR} 形式
	Timeout  string  `mapstructure:"timeout"`
	QPS      float64 `mapstructure:"qps"`   // <=0 不限流
	Burst    int     `mapstructure:"burst"` // <=0 使用默认 1
}

// ArtifactConfig 证明包构建配置
type ArtifactConfig struct {
	OutputDir     string `mapstructure:"output_dir"` // 证明包落盘目录
	SchemaVersion int    `mapstructure:"schema_version"`
}

// NotifyConfig 通知派发配置（Redis 去重）
type NotifyConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"` // 支持 ${ENV_VAR} 形式
	DedupTTL string `mapstructure:"dedup_ttl"` // 去重键保留时长，如 "72h"
}

// SecretsConfig 凭据存储配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // memory | env | vault | k8s
	Config   map[string]string `mapstructure:"config"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("NOTARY")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${ENV_VAR} 形式的凭据引用
func replaceEnvVars(config *Config) {
	config.TSA.APIKey = expandEnv(config.TSA.APIKey)
	config.API.AdminToken = expandEnv(config.API.AdminToken)
	if strings.HasPrefix(config.API.AdminToken, "${") {
		// 环境变量缺失时令牌视为空，管理接口整体关闭
		config.API.AdminToken = ""
	}
	config.Notify.Password = expandEnv(config.Notify.Password)
	for name, nc := range config.Anchors.Networks {
		nc.APIKey = expandEnv(nc.APIKey)
		config.Anchors.Networks[name] = nc
	}
}

func expandEnv(v string) string {
	if !strings.HasPrefix(v, "${") || !strings.HasSuffix(v, "}") {
		return v
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}
