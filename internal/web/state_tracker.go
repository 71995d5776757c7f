package web

import (
	"sync"

	"inspection-fleet-demo/internal/types"
)

// MissionState 定义了用于 UI 展示的机器人任务状态
// 这是一个简化的视图，只包含前端需要的数据
type MissionState struct {
	MissionID string          `json:"mission_id"`
	Robot     types.RobotID   `json:"robot"`
	Order     types.OrderID   `json:"order"`
	Kind      types.OrderKind `json:"kind"`
	Status    string          `json:"status"`   // 状态机状态或终态结果码
	Event     string          `json:"event"`    // 最近一条反馈的事件标签
	State     string          `json:"state"`    // 最近一条反馈的状态标签
	Subevent  string          `json:"subevent"`
	Substate  string          `json:"substate"`
	PoseDone  int             `json:"pose_done"`
	PoseTotal int             `json:"pose_total"`
	Summary   string          `json:"summary,omitempty"` // 终态的人类可读说明
}

// GlobalState 代表整个机器人编队的实时状态快照
type GlobalState struct {
	Missions map[string]MissionState `json:"missions"` // key 为机器人 ID
}

// StateTracker 负责追踪所有机器人任务的实时状态，并通知前端更新
type StateTracker struct {
	mu    sync.RWMutex
	state GlobalState
	hub   *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例
func NewStateTracker(hub *Hub) *StateTracker {
	return &StateTracker{
		state: GlobalState{Missions: make(map[string]MissionState)},
		hub:   hub,
	}
}

// StartMission 登记一个新开始的任务步骤，并广播
func (st *StateTracker) StartMission(missionID string, robot types.RobotID, order types.OrderID, kind types.OrderKind) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Missions[string(robot)] = MissionState{
		MissionID: missionID,
		Robot:     robot,
		Order:     order,
		Kind:      kind,
		Status:    "ACTIVE",
	}
	st.hub.BroadcastState(st.state)
}

// UpdateFeedback 合入一条过程反馈，并向所有客户端广播最新的全局状态
func (st *StateTracker) UpdateFeedback(robot types.RobotID, fb types.Feedback) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if m, ok := st.state.Missions[string(robot)]; ok {
		m.Event = fb.Event
		m.State = fb.State
		m.Subevent = fb.Subevent
		m.Substate = fb.Substate
		m.PoseDone = fb.PoseDone
		st.state.Missions[string(robot)] = m
	}
	// 任务不存在时不创建，新任务通过 StartMission 登记

	st.hub.BroadcastState(st.state)
}

// FinishMission 登记任务终态，并广播
func (st *StateTracker) FinishMission(robot types.RobotID, res types.Result) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if m, ok := st.state.Missions[string(robot)]; ok {
		m.Status = string(res.Code)
		m.Summary = res.Summary
		st.state.Missions[string(robot)] = m
	}
	st.hub.BroadcastState(st.state)
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	// 创建深拷贝以避免并发问题
	newState := GlobalState{Missions: make(map[string]MissionState)}
	for id, m := range st.state.Missions {
		newState.Missions[id] = m
	}
	return newState
}
