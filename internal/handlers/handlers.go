package handlers

import (
	"log/slog"

	"inspection-fleet-demo/internal/event"
	"inspection-fleet-demo/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 这是事件驱动架构的核心，将不同的业务关注点（监控、UI、日志）解耦
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	// --- Web UI 处理器 (Web UI Handler) ---
	// 订阅任务开始事件，登记 UI 状态
	bus.Subscribe(event.MissionStarted, func(e event.Event) {
		st.StartMission(e.MissionID, e.Robot, e.Order, e.Kind)
	})
	// 订阅过程反馈，刷新 UI 中机器人的实时标签
	bus.Subscribe(event.FeedbackReceived, func(e event.Event) {
		if e.Feedback != nil {
			st.UpdateFeedback(e.Robot, *e.Feedback)
		}
	})
	// 订阅任务结束事件，更新 UI 终态
	bus.Subscribe(event.MissionCompleted, func(e event.Event) {
		if e.Result != nil {
			st.FinishMission(e.Robot, *e.Result)
		}
	})
	bus.Subscribe(event.MissionFailed, func(e event.Event) {
		if e.Result != nil {
			st.FinishMission(e.Robot, *e.Result)
		}
	})

	// --- 日志处理器 (Logging Handler) ---
	// 订阅关键业务事件，记录审计日志，操作员永远能看到任务如何结束
	bus.Subscribe(event.MissionCompleted, func(e event.Event) {
		logger.Info("任务步骤成功", "mission_id", e.MissionID, "robot", e.Robot, "order", e.Order)
		logResultBreakdown(logger, e)
	})
	bus.Subscribe(event.MissionFailed, func(e event.Event) {
		summary := ""
		if e.Result != nil {
			summary = e.Result.Summary
		}
		logger.Error("任务步骤失败", "mission_id", e.MissionID, "robot", e.Robot, "order", e.Order, "summary", summary)
	})
	bus.Subscribe(event.PoseSkipped, func(e event.Event) {
		logger.Info("位姿已跳过", "mission_id", e.MissionID, "robot", e.Robot)
	})
	bus.Subscribe(event.ProgressSaved, func(e event.Event) {
		logger.Info("进度已持久化", "mission_id", e.MissionID, "robot", e.Robot)
	})
}

// logResultBreakdown 输出异常/几何类工单的逐位姿结果明细
func logResultBreakdown(logger *slog.Logger, e event.Event) {
	if e.Result == nil {
		return
	}
	for i, verdict := range e.Result.AnomalyResults {
		logger.Info("异常检查结果", "mission_id", e.MissionID, "pose", i, "verdict", verdict)
	}
	for i, status := range e.Result.GeometryResults {
		logger.Info("几何采集结果", "mission_id", e.MissionID, "pose", i, "acquired", status)
	}
}
