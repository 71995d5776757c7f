package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"inspection-fleet-demo/internal/domain"
	"inspection-fleet-demo/internal/event"
	"inspection-fleet-demo/internal/fsm"
	"inspection-fleet-demo/internal/metrics"
	"inspection-fleet-demo/internal/pano"
	"inspection-fleet-demo/internal/persistence"
	"inspection-fleet-demo/internal/pose"
	"inspection-fleet-demo/internal/remote"
	"inspection-fleet-demo/internal/types"
	"inspection-fleet-demo/internal/util"
)

// ErrDispatchConflict 表示指令派发被拒绝：
// 指令种类不是恰好一个，或者上一次派发尚未完成
// 拒绝发生在任何副作用之前，目标绝不会被发出
var ErrDispatchConflict = errors.New("dispatch conflict")

// Outcome 是任务步骤的最终结果
type Outcome struct {
	Code            types.ResultCode
	Phase           types.TimeoutPhase // 仅超时结果
	Summary         string
	Response        int
	AnomalyResults  []string // 异常类工单：逐位姿分类判定
	GeometryResults []int    // 几何类工单：逐位姿采集状态
}

// Progress 是可观测的进度快照
// 每条过程反馈都会更新它，但不会改变状态机本身的状态
type Progress struct {
	Event     string `json:"event"`
	State     string `json:"state"`
	Subevent  string `json:"subevent"`
	Substate  string `json:"substate"`
	PoseIdx   int    `json:"pose_idx"`
	PoseDone  int    `json:"pose_done"`
	PoseTotal int    `json:"pose_total"`
}

// Timeouts 定义各阶段独立的超时预算
// Deadline 为 0 表示不设总时限；任何一项超出都立即产出对应的超时终态
type Timeouts struct {
	Connect  time.Duration
	Active   time.Duration
	Response time.Duration
	Deadline time.Duration
}

// GoalSettings 定义目标构建所需的参数
type GoalSettings struct {
	Frame                          string                     // 位姿参考坐标系标签
	PoseFiles                      map[types.OrderKind]string // 预置位姿文件
	PanRadius, TiltRadius          float64                    // 全景覆盖参数 (弧度)
	HFov, VFov, Overlap, Tolerance float64
}

// Options 是执行引擎的构建参数
type Options struct {
	Bus      *event.Bus
	Journal  *persistence.Journal
	Logger   *slog.Logger
	Timeouts Timeouts
	Goals    GoalSettings
	Stop     *atomic.Bool // 共享停止标志，操作员 Exit 与任务结束哨兵都会置位
}

// Executor 驱动一个任务步骤的异步目标/反馈/结果协议
// 一个实例只负责一台机器人的一个工单；事件循环独占状态机，
// 操作员指令通过线程安全的 Dispatch 入口进入
type Executor struct {
	MissionID string
	Robot     types.RobotID
	Order     domain.Order

	client  remote.Client
	machine *fsm.FSM
	bus     *event.Bus
	journal *persistence.Journal
	logger  *slog.Logger
	opts    Options

	// 进度快照：O(1) 更新，反馈投递绝不阻塞事件循环
	progressMu sync.RWMutex
	progress   Progress

	// 位姿队列的本地镜像，Skip/Repeat 在此登记
	// skipped 记录操作员跳过的位姿数：远程的 PoseDone 不包含它们，
	// 反馈对账时要从本地已出队数中扣除
	queueMu     sync.Mutex
	remaining   []types.Pose
	lastDone    *types.Pose
	skipped     int
	lastSkipped bool

	// 派发入口的串行化：同一时刻只允许一个在途派发，后来者被拒绝而非排队
	dispatchBusy atomic.Bool

	started time.Time
}

// New 创建一个任务步骤执行引擎
func New(robot types.RobotID, order domain.Order, client remote.Client, opts Options) *Executor {
	missionID := uuid.NewString()
	return &Executor{
		MissionID: missionID,
		Robot:     robot,
		Order:     order,
		client:    client,
		machine:   fsm.NewFSM(missionID),
		bus:       opts.Bus,
		journal:   opts.Journal,
		logger:    opts.Logger.With("component", "executor", "mission_id", missionID, "robot", robot, "order", order.ID),
		opts:      opts,
	}
}

// State 返回状态机当前状态
func (e *Executor) State() fsm.State {
	return e.machine.StateNow()
}

// Snapshot 返回当前进度快照
func (e *Executor) Snapshot() Progress {
	e.progressMu.RLock()
	defer e.progressMu.RUnlock()
	return e.progress
}

// Run 执行完整的任务步骤：连接、派发、事件循环，直到终态
// 调用方永远会得到一个明确的 Outcome
func (e *Executor) Run(ctx context.Context) Outcome {
	e.started = time.Now()
	traceID := util.NewTraceID()
	ctx = util.ContextWithTraceID(ctx, traceID)
	logger := e.logger.With("trace_id", traceID)

	e.bus.Publish(event.Event{Type: event.MissionStarted, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind})
	logger.Info("任务步骤开始", "kind", e.Order.Kind)

	// 连接阶段：独立超时预算，超时则目标从未下发
	_ = e.machine.Fire(fsm.EventConnect)
	connectCtx, cancel := context.WithTimeout(ctx, e.opts.Timeouts.Connect)
	err := e.client.Connect(connectCtx)
	cancel()
	if err != nil {
		logger.Error("连接远程执行器超时或失败", "error", err)
		return e.terminate(Outcome{Code: types.ResultTimedOut, Phase: types.PhaseConnect, Summary: "连接远程执行器超时"})
	}
	defer e.client.Close()
	_ = e.machine.Fire(fsm.EventConnected)

	// 派发阶段：构建并下发工单目标
	cmd, err := orderCommand(e.Order.Kind)
	if err != nil {
		logger.Error("工单类型无法派发", "error", err)
		return e.terminate(Outcome{Code: types.ResultAborted, Summary: err.Error()})
	}
	if err := e.Dispatch(ctx, cmd); err != nil {
		logger.Error("目标派发失败", "error", err)
		return e.terminate(Outcome{Code: types.ResultAborted, Summary: err.Error()})
	}

	return e.eventLoop(ctx, logger)
}

// eventLoop 是任务的事件循环：严格按到达顺序逐个处理异步通知，
// 绝不与自身并发
func (e *Executor) eventLoop(ctx context.Context, logger *slog.Logger) Outcome {
	activeTimer := time.NewTimer(e.opts.Timeouts.Active)
	defer activeTimer.Stop()

	responseTimer := time.NewTimer(e.opts.Timeouts.Response)
	defer responseTimer.Stop()

	var deadlineCh <-chan time.Time
	if e.opts.Timeouts.Deadline > 0 {
		deadlineTimer := time.NewTimer(e.opts.Timeouts.Deadline)
		defer deadlineTimer.Stop()
		deadlineCh = deadlineTimer.C
	}

	sawFeedback := false
	for {
		select {
		case <-ctx.Done():
			logger.Warn("任务被取消")
			return e.terminate(Outcome{Code: types.ResultPreempted, Summary: "任务被取消"})

		case <-activeTimer.C:
			if !sawFeedback {
				logger.Error("等待目标激活超时")
				return e.terminate(Outcome{Code: types.ResultTimedOut, Phase: types.PhaseActive, Summary: "等待目标激活超时"})
			}

		case <-responseTimer.C:
			logger.Error("等待远程反馈超时")
			return e.terminate(Outcome{Code: types.ResultTimedOut, Phase: types.PhaseResponse, Summary: "等待远程反馈超时"})

		case <-deadlineCh:
			logger.Error("任务总时限已到")
			return e.terminate(Outcome{Code: types.ResultTimedOut, Phase: types.PhaseDeadline, Summary: "任务总时限已到"})

		case ev, ok := <-e.client.Events():
			if !ok {
				logger.Error("远程连接中断")
				return e.terminate(Outcome{Code: types.ResultAborted, Summary: "远程连接中断"})
			}

			// 每个事件都重置反馈间隔预算
			if !responseTimer.Stop() {
				select {
				case <-responseTimer.C:
				default:
				}
			}
			responseTimer.Reset(e.opts.Timeouts.Response)

			if ev.Feedback != nil {
				sawFeedback = true
				e.onFeedback(*ev.Feedback)
				continue
			}
			if ev.Result != nil {
				return e.onResult(*ev.Result, logger)
			}
		}
	}
}

// onFeedback 将过程反馈合入进度快照并转发到事件总线
// 反馈不会触发状态机转移
func (e *Executor) onFeedback(fb types.Feedback) {
	e.progressMu.Lock()
	e.progress.Event = fb.Event
	e.progress.State = fb.State
	e.progress.Subevent = fb.Subevent
	e.progress.Substate = fb.Substate
	e.progress.PoseIdx = fb.PoseIdx
	e.progress.PoseDone = fb.PoseDone
	e.progressMu.Unlock()

	// 完成的位姿从本地队列镜像中移除；跳过的位姿本地已经出队
	// 但远程不计入 PoseDone，对账时扣除
	e.queueMu.Lock()
	for fb.PoseDone > 0 && len(e.remaining) > 0 && e.queueTotal()-len(e.remaining)-e.skipped < fb.PoseDone {
		p := e.remaining[0]
		e.lastDone = &p
		e.lastSkipped = false
		e.remaining = e.remaining[1:]
	}
	metrics.PosesRemaining.Set(float64(len(e.remaining)))
	e.queueMu.Unlock()

	metrics.FeedbackEvents.Inc()
	e.bus.Publish(event.Event{Type: event.FeedbackReceived, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind, Feedback: &fb})
}

// onResult 处理终态结果：不论当前子状态如何都直接进入结果处理
func (e *Executor) onResult(res types.Result, logger *slog.Logger) Outcome {
	_ = e.machine.Fire(fsm.EventResult)

	out := Outcome{
		Code:            res.Code,
		Phase:           res.Phase,
		Summary:         res.Summary,
		Response:        res.Response,
		AnomalyResults:  res.AnomalyResults,
		GeometryResults: res.GeometryResults,
	}

	// 任务结束哨兵：进程停止接收后续指令
	if res.Summary == types.InspectionOver && e.opts.Stop != nil {
		logger.Info("收到任务结束哨兵，停止接收指令")
		e.opts.Stop.Store(true)
	}

	return e.terminate(out)
}

// terminate 记录终态、发布事件并落盘任务结束标记
// 所有退出路径都经过这里，调用方绝不会拿不到明确结局
func (e *Executor) terminate(out Outcome) Outcome {
	_ = e.machine.Fire(fsm.EventFinalize)
	// 连接/派发阶段失败时状态机可能尚未到达 COMPLETING，直接登记终态
	if e.machine.StateNow() != fsm.StateTerminated {
		_ = e.machine.Fire(fsm.EventResult)
		_ = e.machine.Fire(fsm.EventFinalize)
	}

	metrics.MissionsTotal.WithLabelValues(string(out.Code), string(e.Order.Kind)).Inc()
	metrics.MissionDuration.WithLabelValues(string(e.Order.Kind)).Observe(time.Since(e.started).Seconds())

	result := types.Result{
		Code: out.Code, Phase: out.Phase, Summary: out.Summary, Response: out.Response,
		AnomalyResults: out.AnomalyResults, GeometryResults: out.GeometryResults,
	}
	evType := event.MissionCompleted
	if out.Code != types.ResultSuccess {
		evType = event.MissionFailed
	}
	e.bus.Publish(event.Event{Type: evType, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind, Result: &result})

	if e.journal != nil {
		_ = e.journal.Complete(e.MissionID)
	}
	e.logger.Info("任务步骤结束", "outcome", out.Code, "summary", out.Summary)
	return out
}

// Dispatch 是操作员任务与事件循环之间唯一的共享变更入口
// 必须恰好携带一种指令；另一个派发在途时直接拒绝，不排队
func (e *Executor) Dispatch(ctx context.Context, cmds ...types.Command) error {
	if len(cmds) != 1 {
		return fmt.Errorf("%w: 必须恰好选择一种指令，收到 %d 种", ErrDispatchConflict, len(cmds))
	}
	if !e.dispatchBusy.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: 上一次派发尚未完成", ErrDispatchConflict)
	}
	defer e.dispatchBusy.Store(false)

	cmd := cmds[0]
	goal, err := e.buildGoal(cmd)
	if err != nil {
		return err
	}

	if err := e.client.SendGoal(ctx, goal); err != nil {
		return err
	}
	metrics.GoalsDispatched.WithLabelValues(string(cmd)).Inc()
	e.logger.Info("目标已派发", "command", cmd, "poses", len(goal.Poses))

	// 目标已发出，更新本地状态机与队列镜像
	switch cmd {
	case types.CmdPause:
		_ = e.machine.Fire(fsm.EventPause)
	case types.CmdResume:
		_ = e.machine.Fire(fsm.EventResume)
	case types.CmdRepeat:
		_ = e.machine.Fire(fsm.EventRepeat)
		e.repeatLast()
	case types.CmdSkip:
		_ = e.machine.Fire(fsm.EventSkip)
		e.skipCurrent()
		e.bus.Publish(event.Event{Type: event.PoseSkipped, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind})
	case types.CmdSave:
		e.saveProgress()
	default:
		// 工单类指令：完成派发阶段，进入执行态
		_ = e.machine.Fire(fsm.EventDispatched)
		e.bus.Publish(event.Event{Type: event.GoalDispatched, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind})
	}
	return nil
}

// buildGoal 为指令构建目标
// 工单类指令构建位姿队列：异常/几何/体积读取预置位姿文件，
// 全景调用覆盖规划生成姿态序列
func (e *Executor) buildGoal(cmd types.Command) (types.Goal, error) {
	goal := types.Goal{Command: cmd}
	if !cmd.IsOrderKind() {
		return goal, nil
	}
	goal.Frame = e.opts.Goals.Frame

	var poses []types.Pose
	if cmd == types.CmdPanorama {
		g := e.opts.Goals
		atts, _, _, err := pano.ComputeOrientations(g.PanRadius, g.TiltRadius, g.HFov, g.VFov, g.Overlap, g.Tolerance)
		if err != nil {
			return goal, fmt.Errorf("全景覆盖规划失败: %w", err)
		}
		poses = make([]types.Pose, len(atts))
		for i, a := range atts {
			// pan 映射为偏航角，tilt 映射为俯仰角
			poses[i] = types.Pose{Orientation: pose.FromRPY(0, a.Tilt, a.Pan)}
		}
	} else {
		kind := commandOrderKind(cmd)
		path, ok := e.opts.Goals.PoseFiles[kind]
		if !ok {
			return goal, fmt.Errorf("工单类型 %s 未配置位姿文件", kind)
		}
		var err error
		poses, _, err = pose.ReadFile(path, e.logger)
		if err != nil {
			return goal, err
		}
	}

	goal.Poses = poses
	e.setQueue(poses)
	return goal, nil
}

// setQueue 建立位姿队列的本地镜像
func (e *Executor) setQueue(poses []types.Pose) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	e.remaining = append([]types.Pose(nil), poses...)
	e.lastDone = nil
	e.skipped = 0
	e.lastSkipped = false
	e.progressMu.Lock()
	e.progress.PoseTotal = len(poses)
	e.progressMu.Unlock()
	metrics.PosesRemaining.Set(float64(len(poses)))
}

// skipCurrent 从剩余队列中去掉正在执行的位姿，其余保持不变
func (e *Executor) skipCurrent() {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.remaining) == 0 {
		return
	}
	p := e.remaining[0]
	e.lastDone = &p
	e.lastSkipped = true
	e.skipped++
	e.remaining = e.remaining[1:]
	metrics.PosesRemaining.Set(float64(len(e.remaining)))
}

// repeatLast 将上一个已完成的位姿放回队列头部
// 重做一个被跳过的位姿后，远程会正常计数它，跳过登记随之撤销
func (e *Executor) repeatLast() {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if e.lastDone == nil {
		return
	}
	e.remaining = append([]types.Pose{*e.lastDone}, e.remaining...)
	if e.lastSkipped {
		e.skipped--
		e.lastSkipped = false
	}
	metrics.PosesRemaining.Set(float64(len(e.remaining)))
}

// queueTotal 返回队列镜像的总长度（含已完成）
// 调用方需持有 queueMu
func (e *Executor) queueTotal() int {
	e.progressMu.RLock()
	defer e.progressMu.RUnlock()
	return e.progress.PoseTotal
}

// Remaining 返回剩余待执行的位姿数量
func (e *Executor) Remaining() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return len(e.remaining)
}

// saveProgress 持久化当前进度，不改变控制状态
func (e *Executor) saveProgress() {
	snap := e.Snapshot()
	if e.journal != nil {
		_ = e.journal.Save(persistence.ProgressRecord{
			MissionID: e.MissionID,
			Robot:     e.Robot,
			Order:     e.Order.ID,
			Kind:      e.Order.Kind,
			PoseIdx:   snap.PoseIdx,
			PoseDone:  snap.PoseDone,
			PoseTotal: snap.PoseTotal,
		})
	}
	e.bus.Publish(event.Event{Type: event.ProgressSaved, MissionID: e.MissionID, Robot: e.Robot, Order: e.Order.ID, Kind: e.Order.Kind})
	e.logger.Info("进度已保存", "pose_done", snap.PoseDone, "pose_total", snap.PoseTotal)
}

// orderCommand 把工单类型映射为派发指令
func orderCommand(kind types.OrderKind) (types.Command, error) {
	switch kind {
	case types.OrderPanorama, types.OrderStereo:
		// 立体巡视在远程侧与全景共用覆盖执行通道
		return types.CmdPanorama, nil
	case types.OrderGeometry:
		return types.CmdGeometry, nil
	case types.OrderAnomaly:
		return types.CmdAnomaly, nil
	case types.OrderVolumetric:
		return types.CmdVolumetric, nil
	}
	return "", fmt.Errorf("未知的工单类型: %s", kind)
}

func commandOrderKind(cmd types.Command) types.OrderKind {
	switch cmd {
	case types.CmdAnomaly:
		return types.OrderAnomaly
	case types.CmdGeometry:
		return types.OrderGeometry
	case types.CmdVolumetric:
		return types.OrderVolumetric
	}
	return types.OrderPanorama
}
