package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 监控任务级指标。
var (
	TaskRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_task_runs_total",
		Help: "Total task runs by task type and status.",
	}, []string{"task_type", "status"})

	TaskRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleahunter_task_run_duration_seconds",
		Help:    "Duration of a full task run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"task_type"})

	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleahunter_active_tasks",
		Help: "Number of task runs currently in flight.",
	})

	ItemsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_items_processed_total",
		Help: "Items fully processed (enriched, scored, persisted) by task type.",
	}, []string{"task_type"})

	ItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_items_skipped_total",
		Help: "Items skipped by reason (seen, parse_error, detail_error).",
	}, []string{"reason"})
)

// 反爬与资源轮换指标。
var (
	RiskControlTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_risk_control_total",
		Help: "Hard-block events by trigger (overlay, payload).",
	}, []string{"trigger"})

	BlockingElementsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleahunter_blocking_elements_removed_total",
		Help: "Advisory blocking overlays removed from pages.",
	})

	RotationMarkBadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_rotation_mark_bad_total",
		Help: "Rotation pool items blacklisted, by pool label.",
	}, []string{"pool"})

	RotationStarvationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_rotation_starvation_total",
		Help: "Task aborts caused by an exhausted rotation pool.",
	}, []string{"pool"})

	BrowserSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleahunter_browser_sessions_active",
		Help: "Browser sessions currently open.",
	})
)

// 限流与外部协作方指标。
var (
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleahunter_ratelimit_wait_duration_seconds",
		Help:    "Time spent waiting for the global rate limiter.",
		Buckets: prometheus.DefBuckets,
	})

	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleahunter_ratelimit_timeout_total",
		Help: "Rate limiter waits abandoned due to context cancellation.",
	})

	AIAnalysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_ai_analysis_total",
		Help: "AI scoring calls by outcome (recommended, rejected, failed, skipped).",
	}, []string{"outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleahunter_notifications_total",
		Help: "Notifications attempted by channel and status.",
	}, []string{"channel", "status"})
)
