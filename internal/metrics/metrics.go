package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// StepsInQueue 仪表盘：当前待执行的计划步骤数量
	// 用于监控任务积压情况
	StepsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_steps_in_queue",
		Help: "The number of plan steps currently waiting in the priority queue",
	})

	// MissionsTotal 计数器：结束的任务步骤总数
	// 按终态 (success/preempted/aborted/timed_out) 和工单类型分类
	MissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_missions_total",
		Help: "The total number of finished mission steps",
	}, []string{"outcome", "kind"})

	// GoalsDispatched 计数器：下发给远程执行器的目标总数
	// 按指令类型分类，控制类指令也计入
	GoalsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_goals_dispatched_total",
		Help: "The total number of goals dispatched to the remote executor",
	}, []string{"command"})

	// FeedbackEvents 计数器：收到的过程反馈总数
	FeedbackEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "executor_feedback_events_total",
		Help: "The total number of feedback events received",
	})

	// PosesRemaining 仪表盘：当前任务剩余待执行的位姿数量
	PosesRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "executor_poses_remaining",
		Help: "The number of poses remaining in the active mission queue",
	})

	// MissionDuration 直方图：任务步骤耗时分布
	// 用于分析各类工单的执行性能
	MissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "executor_mission_duration_seconds",
		Help:    "Time spent executing each mission step",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)
