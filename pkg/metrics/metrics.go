package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		JobDuration, JobTotal, JobFailTotal,
		ReconcileTickDurationSeconds, ClaimTotal,
		AppendTotal, AppendRejectTotal,
		AnchorConfirmAttempts, AnchorTimeoutTotal,
		ProjectionRebuildTotal, QueueDepth,
	)
}

// JobDuration Job 执行耗时（秒）
var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "notary_job_duration_seconds",
		Help:    "Job 执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"type"},
)

// JobTotal Job 总数（按状态）
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_job_total",
		Help: "Job 总数（按状态）",
	},
	[]string{"type", "status"}, // completed | failed | waiting | cancelled
)

// JobFailTotal Job 失败总数（与 JobTotal 配合可算 job_fail_rate）
var JobFailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_job_fail_total",
		Help: "Job 失败总数",
	},
	[]string{"type"},
)

// ReconcileTickDurationSeconds 单次 reconcile 拉取耗时
var ReconcileTickDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "notary_reconcile_tick_duration_seconds",
		Help:    "单次 reconcile 拉取耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// ClaimTotal Claim 尝试总数（acquired=true/false）
var ClaimTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_claim_total",
		Help: "Job Claim 尝试总数",
	},
	[]string{"acquired"},
)

// AppendTotal 事件追加成功总数（按 kind）
var AppendTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_event_append_total",
		Help: "事件追加成功总数",
	},
	[]string{"kind"},
)

// AppendRejectTotal 事件追加被拒总数（按 reason）
var AppendRejectTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_event_append_reject_total",
		Help: "事件追加校验拒绝总数",
	},
	[]string{"reason"},
)

// AnchorConfirmAttempts 锚定确认检查次数（按网络）
var AnchorConfirmAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_anchor_confirm_attempts_total",
		Help: "锚定确认检查次数",
	},
	[]string{"network"},
)

// AnchorTimeoutTotal 锚定超时总数（按网络与原因）
var AnchorTimeoutTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notary_anchor_timeout_total",
		Help: "锚定超时总数",
	},
	[]string{"network", "reason"}, // elapsed | max_attempts
)

// ProjectionRebuildTotal 投影重建总数
var ProjectionRebuildTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "notary_projection_rebuild_total",
		Help: "投影重建总数",
	},
)

// QueueDepth 当前 Pending Job 数（P0 SLO）
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "notary_queue_depth",
		Help: "当前 Pending Job 数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
