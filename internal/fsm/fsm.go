package fsm

import (
	"fmt"
	"sync"
)

// State 定义状态类型
type State string

// Event 定义事件类型
type Event string

const (
	StateIdle        State = "IDLE"        // 初始态：尚未连接远程执行器
	StateConnecting  State = "CONNECTING"  // 正在等待远程执行器就绪
	StateDispatching State = "DISPATCHING" // 构建并下发目标
	StateActive      State = "ACTIVE"      // 目标执行中，接收过程反馈
	StatePaused      State = "PAUSED"      // 操作员已暂停
	StateCompleting  State = "COMPLETING"  // 已收到终态结果，正在落盘结果负载
	StateTerminated  State = "TERMINATED"  // 终态，结果在执行引擎中记录
)

const (
	EventConnect    Event = "CONNECT"     // 发起连接
	EventConnected  Event = "CONNECTED"   // 远程执行器就绪
	EventDispatched Event = "DISPATCHED"  // 目标已下发
	EventPause      Event = "PAUSE"       // 操作员暂停
	EventResume     Event = "RESUME"      // 操作员恢复
	EventRepeat     Event = "REPEAT"      // 重做上一个位姿
	EventSkip       Event = "SKIP"        // 跳过当前位姿
	EventResult     Event = "RESULT"      // 收到终态结果
	EventFinalize   Event = "FINALIZE"    // 结果负载处理完毕
)

// FSM 巡检执行状态机
// 每个活动任务步骤对应一个实例；过程反馈只更新进度快照，不触发状态转移
type FSM struct {
	Current State
	mu      sync.Mutex
	// transitions 定义状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	// callbacks 定义状态变更后的回调: State -> func()
	callbacks map[State]func(missionID string)
	MissionID string // 关联的任务 ID
}

func NewFSM(missionID string) *FSM {
	fsm := &FSM{
		Current:     StateIdle,
		MissionID:   missionID,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func(string)),
	}
	fsm.initTransitions()
	return fsm
}

func (f *FSM) initTransitions() {
	f.addTransition(StateIdle, EventConnect, StateConnecting)
	f.addTransition(StateConnecting, EventConnected, StateDispatching)
	f.addTransition(StateDispatching, EventDispatched, StateActive)

	f.addTransition(StateActive, EventPause, StatePaused)
	f.addTransition(StatePaused, EventResume, StateActive)

	// 重做/跳过后回到执行态
	f.addTransition(StateActive, EventRepeat, StateActive)
	f.addTransition(StatePaused, EventRepeat, StateActive)
	f.addTransition(StateActive, EventSkip, StateActive)
	f.addTransition(StatePaused, EventSkip, StateActive)

	// 终态结果不论当前子状态都直接进入结果处理
	f.addTransition(StateConnecting, EventResult, StateCompleting)
	f.addTransition(StateDispatching, EventResult, StateCompleting)
	f.addTransition(StateActive, EventResult, StateCompleting)
	f.addTransition(StatePaused, EventResult, StateCompleting)
	f.addTransition(StateCompleting, EventFinalize, StateTerminated)
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// RegisterCallback 注册状态进入时的回调
func (f *FSM) RegisterCallback(state State, callback func(missionID string)) {
	f.callbacks[state] = callback
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 查找合法的转移
	nextState, ok := f.transitions[f.Current][event]
	if !ok {
		return fmt.Errorf("invalid transition: cannot fire event %s from state %s", event, f.Current)
	}

	f.Current = nextState

	// 触发回调
	if cb, exists := f.callbacks[nextState]; exists {
		// 同步执行，回调中不要再调用 Fire
		cb(f.MissionID)
	}

	return nil
}

// StateNow 返回当前状态（带锁读取）
func (f *FSM) StateNow() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Current
}
