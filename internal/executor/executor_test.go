package executor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-fleet-demo/internal/domain"
	"inspection-fleet-demo/internal/event"
	"inspection-fleet-demo/internal/fsm"
	"inspection-fleet-demo/internal/remote"
	"inspection-fleet-demo/internal/types"
)

// fakeClient 是测试用的远程执行器替身
// 事件通道预先填充，Connect/SendGoal 的行为可按用例定制
type fakeClient struct {
	events      chan remote.Event
	connectHang bool
	sendBlock   chan struct{} // 非空时 SendGoal 阻塞直到通道关闭

	mu    sync.Mutex
	goals []types.Goal
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan remote.Event, 16)}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.connectHang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeClient) SendGoal(ctx context.Context, g types.Goal) error {
	if f.sendBlock != nil {
		<-f.sendBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.goals = append(f.goals, g)
	return nil
}

func (f *fakeClient) Events() <-chan remote.Event { return f.events }
func (f *fakeClient) Close() error                { return nil }

func (f *fakeClient) sentGoals() []types.Goal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Goal(nil), f.goals...)
}

// writePoseFile 生成一个含三个位姿的临时位姿文件
func writePoseFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poses.txt")
	content := "1 0 0 0 0 0 1\n2 0 0 0 0 0 1\n3 0 0 0 0 0 1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Bus:    event.NewBus(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeouts: Timeouts{
			Connect:  100 * time.Millisecond,
			Active:   time.Second,
			Response: time.Second,
		},
		Goals: GoalSettings{
			Frame:     "sci_cam",
			PoseFiles: map[types.OrderKind]string{types.OrderAnomaly: writePoseFile(t)},
		},
		Stop: &atomic.Bool{},
	}
}

func anomalyOrder() domain.Order {
	return domain.Order{ID: "o2", Identity: 2, Kind: types.OrderAnomaly}
}

func TestRun_Success(t *testing.T) {
	client := newFakeClient()
	client.events <- remote.Event{Feedback: &types.Feedback{Event: "GOAL", State: "MOVING_TO_POINT", PoseIdx: 0, PoseDone: 1}}
	client.events <- remote.Event{Result: &types.Result{Code: types.ResultSuccess, Summary: "survey done", AnomalyResults: []string{"no anomaly", "no anomaly", "anomaly detected"}}}

	e := New("bumble", anomalyOrder(), client, testOptions(t))
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultSuccess, out.Code)
	assert.Equal(t, []string{"no anomaly", "no anomaly", "anomaly detected"}, out.AnomalyResults)
	assert.Equal(t, fsm.StateTerminated, e.State())

	goals := client.sentGoals()
	require.Len(t, goals, 1, "只应下发一个工单目标")
	assert.Equal(t, types.CmdAnomaly, goals[0].Command)
	assert.Len(t, goals[0].Poses, 3)
	assert.Equal(t, "sci_cam", goals[0].Frame)

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.PoseDone)
	assert.Equal(t, 3, snap.PoseTotal)
	assert.Equal(t, 2, e.Remaining())
}

func TestRun_ConnectTimeout(t *testing.T) {
	client := newFakeClient()
	client.connectHang = true

	opts := testOptions(t)
	opts.Timeouts.Connect = 20 * time.Millisecond

	e := New("bumble", anomalyOrder(), client, opts)
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultTimedOut, out.Code)
	assert.Equal(t, types.PhaseConnect, out.Phase)
	assert.Empty(t, client.sentGoals(), "连接超时后目标绝不应下发")
	assert.Equal(t, fsm.StateTerminated, e.State())
}

func TestRun_ActiveTimeout(t *testing.T) {
	client := newFakeClient()

	opts := testOptions(t)
	opts.Timeouts.Active = 20 * time.Millisecond

	e := New("bumble", anomalyOrder(), client, opts)
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultTimedOut, out.Code)
	assert.Equal(t, types.PhaseActive, out.Phase)
}

func TestRun_ResponseTimeout(t *testing.T) {
	client := newFakeClient()
	client.events <- remote.Event{Feedback: &types.Feedback{PoseDone: 1}}

	opts := testOptions(t)
	opts.Timeouts.Response = 50 * time.Millisecond

	e := New("bumble", anomalyOrder(), client, opts)
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultTimedOut, out.Code)
	assert.Equal(t, types.PhaseResponse, out.Phase, "收到首条反馈后激活超时不再适用")
}

func TestRun_RemoteDisconnect(t *testing.T) {
	client := newFakeClient()
	client.events <- remote.Event{Feedback: &types.Feedback{PoseDone: 1}}
	close(client.events)

	e := New("bumble", anomalyOrder(), client, testOptions(t))
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultAborted, out.Code)
	assert.Equal(t, fsm.StateTerminated, e.State())
}

func TestRun_Preempted(t *testing.T) {
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New("bumble", anomalyOrder(), client, testOptions(t))
	out := e.Run(ctx)

	assert.Equal(t, types.ResultPreempted, out.Code)
}

func TestRun_InspectionOverSetsStopFlag(t *testing.T) {
	client := newFakeClient()
	client.events <- remote.Event{Result: &types.Result{Code: types.ResultSuccess, Summary: types.InspectionOver}}

	opts := testOptions(t)
	e := New("bumble", anomalyOrder(), client, opts)
	out := e.Run(context.Background())

	assert.Equal(t, types.ResultSuccess, out.Code)
	assert.True(t, opts.Stop.Load(), "结束哨兵应置位共享停止标志")
}

func TestDispatch_ExactlyOneCommand(t *testing.T) {
	e := New("bumble", anomalyOrder(), newFakeClient(), testOptions(t))

	err := e.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrDispatchConflict, "零个指令应被拒绝")

	err = e.Dispatch(context.Background(), types.CmdPause, types.CmdResume)
	assert.ErrorIs(t, err, ErrDispatchConflict, "多个指令应被拒绝")
}

func TestDispatch_RejectsWhilePending(t *testing.T) {
	client := newFakeClient()
	client.sendBlock = make(chan struct{})

	e := New("bumble", anomalyOrder(), client, testOptions(t))

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.Dispatch(context.Background(), types.CmdPause) }()

	// 等第一个派发进入在途状态
	require.Eventually(t, func() bool {
		return e.Dispatch(context.Background(), types.CmdResume) != nil
	}, time.Second, 5*time.Millisecond)

	err := e.Dispatch(context.Background(), types.CmdResume)
	assert.ErrorIs(t, err, ErrDispatchConflict, "在途派发期间后来者应被拒绝而非排队")

	close(client.sendBlock)
	require.NoError(t, <-firstDone)

	// 在途派发结束后入口重新开放
	assert.NoError(t, e.Dispatch(context.Background(), types.CmdResume))
}

func TestDispatch_SkipAndRepeatQueue(t *testing.T) {
	e := New("bumble", anomalyOrder(), newFakeClient(), testOptions(t))

	require.NoError(t, e.Dispatch(context.Background(), types.CmdAnomaly))
	assert.Equal(t, 3, e.Remaining())

	require.NoError(t, e.Dispatch(context.Background(), types.CmdSkip))
	assert.Equal(t, 2, e.Remaining(), "跳过应去掉当前位姿")

	require.NoError(t, e.Dispatch(context.Background(), types.CmdRepeat))
	assert.Equal(t, 3, e.Remaining(), "重做应把上一个位姿放回队列头部")
}

func TestDispatch_SkipThenFeedbackDrainsQueue(t *testing.T) {
	e := New("bumble", anomalyOrder(), newFakeClient(), testOptions(t))

	require.NoError(t, e.Dispatch(context.Background(), types.CmdAnomaly))
	require.NoError(t, e.Dispatch(context.Background(), types.CmdSkip))
	assert.Equal(t, 2, e.Remaining())

	// 远程不把被跳过的位姿计入 PoseDone，对账后队列仍应逐步清空
	e.onFeedback(types.Feedback{Event: "DONE", State: "INSPECTING", PoseIdx: 1, PoseDone: 1})
	assert.Equal(t, 1, e.Remaining())

	e.onFeedback(types.Feedback{Event: "DONE", State: "INSPECTING", PoseIdx: 2, PoseDone: 2})
	assert.Equal(t, 0, e.Remaining(), "跳过一个位姿后剩余计数不应滞留")
}

func TestDispatch_RepeatAfterSkipKeepsAccounting(t *testing.T) {
	e := New("bumble", anomalyOrder(), newFakeClient(), testOptions(t))

	require.NoError(t, e.Dispatch(context.Background(), types.CmdAnomaly))
	require.NoError(t, e.Dispatch(context.Background(), types.CmdSkip))
	require.NoError(t, e.Dispatch(context.Background(), types.CmdRepeat))
	assert.Equal(t, 3, e.Remaining())

	// 被跳过的位姿重做后远程会正常计数，三条完成反馈应清空队列
	e.onFeedback(types.Feedback{Event: "DONE", State: "INSPECTING", PoseIdx: 2, PoseDone: 3})
	assert.Equal(t, 0, e.Remaining(), "重做撤销跳过登记后对账应恢复一致")
}

func TestDispatch_PanoramaGoal(t *testing.T) {
	const deg = 0.017453292519943295

	opts := testOptions(t)
	opts.Goals.PanRadius = 60 * deg
	opts.Goals.TiltRadius = 30 * deg
	opts.Goals.HFov = 62 * deg
	opts.Goals.VFov = 49 * deg
	opts.Goals.Overlap = 0.5
	opts.Goals.Tolerance = 0.1 * deg

	client := newFakeClient()
	e := New("bumble", domain.Order{ID: "o0", Kind: types.OrderPanorama}, client, opts)
	require.NoError(t, e.Dispatch(context.Background(), types.CmdPanorama))

	goals := client.sentGoals()
	require.Len(t, goals, 1)
	assert.NotEmpty(t, goals[0].Poses, "全景目标应携带覆盖规划生成的姿态序列")
	assert.Equal(t, len(goals[0].Poses), e.Remaining())
}
