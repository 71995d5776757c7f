package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"inspection-fleet-demo/internal/remote"
	"inspection-fleet-demo/internal/types"
)

// upgrader 将普通的 HTTP 连接升级为 WebSocket 连接
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// goalsServed 统计所有连接累计执行完成的工单目标数
var goalsServed atomic.Int64

// sentinelAfter 大于 0 时，第 N 个成功的工单目标携带结束哨兵
// 由 EXECUTOR_SENTINEL_AFTER 环境变量控制，便于演示编排器的停止语义
var sentinelAfter int64

// session 是一次巡检连接的模拟执行状态
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	mu      sync.Mutex
	paused  bool
	skip    bool
	repeat  bool
	command types.Command
	poses   []types.Pose
}

// main 是模拟远程巡检执行器的入口
func main() {
	port := ":9090"
	if p := os.Getenv("EXECUTOR_PORT"); p != "" {
		port = ":" + p
	}
	if n := os.Getenv("EXECUTOR_SENTINEL_AFTER"); n != "" {
		v, err := strconv.ParseInt(n, 10, 64)
		if err == nil && v > 0 {
			sentinelAfter = v
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "executor-server")
	slog.SetDefault(logger)

	logger.Info("=== 远程巡检执行器模拟服务启动 ===", "port", port)

	http.HandleFunc("/inspection", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("升级 WebSocket 失败", "error", err)
			return
		}
		s := &session{conn: conn, logger: logger}
		s.serve()
	})

	if err := http.ListenAndServe(port, nil); err != nil {
		logger.Error("服务启动失败", "error", err)
	}
}

// serve 处理一次巡检连接：宣告就绪，接收目标，流式回传反馈和结果
func (s *session) serve() {
	defer s.conn.Close()

	if err := s.send(remote.Message{Type: remote.MsgReady}); err != nil {
		return
	}

	for {
		var msg remote.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.logger.Info("连接关闭", "error", err)
			return
		}
		if msg.Type != remote.MsgGoal || msg.Goal == nil {
			s.logger.Warn("忽略未知消息", "type", msg.Type)
			continue
		}
		goal := *msg.Goal
		taskLogger := s.logger
		if goal.TraceID != "" {
			taskLogger = taskLogger.With("trace_id", goal.TraceID)
		}
		taskLogger.Info("接收到目标", "command", goal.Command, "poses", len(goal.Poses))

		if goal.Command.IsOrderKind() {
			s.mu.Lock()
			s.command = goal.Command
			s.poses = goal.Poses
			s.mu.Unlock()
			// 工单目标启动执行循环；控制目标在执行期间继续被读取
			go s.execute(taskLogger)
			continue
		}
		s.control(goal.Command, taskLogger)
	}
}

// control 处理执行期间的控制指令
func (s *session) control(cmd types.Command, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case types.CmdPause:
		s.paused = true
	case types.CmdResume:
		s.paused = false
	case types.CmdSkip:
		s.skip = true
	case types.CmdRepeat:
		s.repeat = true
	case types.CmdSave:
		// 模拟侧无状态可存，仅回执一条反馈
	}
	logger.Info("收到控制指令", "command", cmd)
}

// execute 逐位姿模拟巡检执行，每个位姿回传一条反馈
func (s *session) execute(logger *slog.Logger) {
	s.mu.Lock()
	cmd := s.command
	poses := s.poses
	s.mu.Unlock()

	done := 0
	for i := 0; i < len(poses); i++ {
		// 暂停时原地等待恢复
		for {
			s.mu.Lock()
			paused := s.paused
			skip := s.skip
			repeat := s.repeat
			s.skip = false
			s.repeat = false
			s.mu.Unlock()

			if skip {
				logger.Info("跳过位姿", "pose", i)
				i++
			}
			if repeat && i > 0 {
				logger.Info("重做位姿", "pose", i-1)
				i--
				done--
			}
			if !paused {
				break
			}
			s.feedback("WAIT", "PAUSED", "", "", i, done)
			time.Sleep(100 * time.Millisecond)
		}
		if i >= len(poses) {
			break
		}

		s.feedback("GOAL", "MOVING_TO_POINT", "NEXT_INSPECT", "VISUAL_INSPECTION", i, done)
		time.Sleep(time.Duration(rand.Intn(150)+100) * time.Millisecond)
		done++
		s.feedback("DONE", "INSPECTING", "INSPECT_DONE", "VISUAL_INSPECTION", i, done)
	}

	res := types.Result{
		Code:     types.ResultSuccess,
		Summary:  "巡检完成",
		Response: 0,
	}

	// 模拟随机失败
	if rand.Float32() < 0.05 {
		res.Code = types.ResultAborted
		res.Summary = "远程设备故障 (巡检执行中断)"
		logger.Warn("模拟执行失败")
	} else {
		// 工单类型决定结果负载的形状
		switch cmd {
		case types.CmdAnomaly:
			verdicts := make([]string, len(poses))
			for i := range verdicts {
				if rand.Float32() < 0.2 {
					verdicts[i] = "anomaly detected"
				} else {
					verdicts[i] = "no anomaly"
				}
			}
			res.AnomalyResults = verdicts
		case types.CmdGeometry:
			status := make([]int, len(poses))
			for i := range status {
				status[i] = types.PicAcquired
				if rand.Float32() < 0.1 {
					status[i] = types.PicNotAcquired
				}
			}
			res.GeometryResults = status
		}

		// 达到配置的工单数时携带结束哨兵，编排器据此停止接收指令
		if n := goalsServed.Add(1); sentinelAfter > 0 && n >= sentinelAfter {
			res.Summary = types.InspectionOver
		}
	}

	if err := s.send(remote.Message{Type: remote.MsgResult, Result: &res}); err != nil {
		logger.Error("回传结果失败", "error", err)
		return
	}
	logger.Info("目标执行结束", "code", res.Code, "poses_done", done)
}

// feedback 回传一条过程反馈
func (s *session) feedback(event, state, subevent, substate string, idx, done int) {
	fb := types.Feedback{Event: event, State: state, Subevent: subevent, Substate: substate, PoseIdx: idx, PoseDone: done}
	_ = s.send(remote.Message{Type: remote.MsgFeedback, Feedback: &fb})
}

// send 串行化写入，gorilla/websocket 不允许并发写
func (s *session) send(msg remote.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}
