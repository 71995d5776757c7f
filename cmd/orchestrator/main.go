package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inspection-fleet-demo/internal/config"
	"inspection-fleet-demo/internal/domain"
	"inspection-fleet-demo/internal/engine"
	"inspection-fleet-demo/internal/event"
	"inspection-fleet-demo/internal/executor"
	"inspection-fleet-demo/internal/handlers"
	"inspection-fleet-demo/internal/operator"
	"inspection-fleet-demo/internal/persistence"
	"inspection-fleet-demo/internal/remote"
	"inspection-fleet-demo/internal/types"
	"inspection-fleet-demo/internal/web"
)

const problemPath = "problem.pddl"

// main 是编排器的主入口
func main() {
	// 1. 初始化核心组件
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	hub := web.NewHub()
	go hub.Run()
	stateTracker := web.NewStateTracker(hub)

	eventBus := event.NewBus()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("加载配置失败", "error", err)
		os.Exit(1)
	}

	journal, err := persistence.NewJournal(cfg.Journal)
	if err != nil {
		logger.Error("无法初始化进度日志", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	// 2. 构建任务域并做约束检查
	problem, err := cfg.ToProblem()
	if err != nil {
		logger.Error("任务域配置非法", "error", err)
		os.Exit(1)
	}
	if violations := domain.Validate(problem); len(violations) > 0 {
		for _, v := range violations {
			logger.Error("任务域约束被违反", "predicate", v.Predicate, "detail", v.Detail)
		}
		os.Exit(1)
	}

	// 把问题实例导出给外部规划器
	if err := os.WriteFile(problemPath, []byte(problem.PDDL("jem-survey", "survey-manager")), 0644); err != nil {
		logger.Error("写入问题文件失败", "error", err)
		os.Exit(1)
	}
	logger.Info("问题实例已导出", "path", problemPath)

	// 3. 读取规划器输出的计划
	planFile, err := os.Open(cfg.PlanFile)
	if err != nil {
		logger.Error("打开计划文件失败", "path", cfg.PlanFile, "error", err)
		os.Exit(1)
	}
	steps, err := domain.ParsePlan(planFile)
	planFile.Close()
	if err != nil {
		logger.Error("解析计划失败", "error", err)
		os.Exit(1)
	}
	logger.Info("计划已加载", "path", cfg.PlanFile, "steps", len(steps))

	// 4. 注册事件处理器，恢复未完成的进度
	handlers.RegisterEventHandlers(eventBus, stateTracker, logger)

	if recovered, err := journal.Recover(); err != nil {
		logger.Warn("恢复进度日志失败", "error", err)
	} else {
		for _, rec := range recovered {
			logger.Info("发现未完成的巡检进度",
				"mission_id", rec.MissionID, "robot", rec.Robot, "order", rec.Order,
				"pose_done", rec.PoseDone, "pose_total", rec.PoseTotal)
		}
	}

	// 5. 初始化调度器与执行引擎参数
	stop := &atomic.Bool{}
	execOpts := executor.Options{
		Bus:     eventBus,
		Journal: journal,
		Logger:  logger,
		Stop:    stop,
		Timeouts: executor.Timeouts{
			Connect:  cfg.Timeouts.Connect(),
			Active:   cfg.Timeouts.Active(),
			Response: cfg.Timeouts.Response(),
			Deadline: cfg.Timeouts.Deadline(),
		},
		Goals: goalSettings(cfg),
	}

	factory := func(robot types.RobotID) remote.Client {
		return remote.NewWSClient(cfg.Remote, logger.With("robot", robot))
	}
	scheduler := engine.NewScheduler(problem, factory, execOpts, cfg.StepRules, logger)
	scheduler.SubmitPlan(steps)

	logger.Info("=== 巡检编队编排系统启动 ===", "robots", len(problem.Robots), "steps", len(steps))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go scheduler.Start(ctx)
	go startAPIServer(scheduler, hub, stateTracker, logger)

	// 6. 操作员输入循环
	loop, err := operator.NewLoop(stop, logger)
	if err != nil {
		logger.Error("初始化操作员终端失败", "error", err)
		os.Exit(1)
	}
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx, scheduler)
	}()

	// 7. 优雅停机
	waitForShutdown(logger, cancel, scheduler, stop, loop, loopDone)
}

// goalSettings 把配置转换为执行引擎的目标构建参数
func goalSettings(cfg *config.Config) executor.GoalSettings {
	poseFiles := make(map[types.OrderKind]string, len(cfg.PoseFiles))
	for kind, path := range cfg.PoseFiles {
		// 配置里的工单类型是小写的
		poseFiles[types.OrderKind(strings.ToUpper(kind))] = path
	}
	return executor.GoalSettings{
		Frame:      cfg.Frame,
		PoseFiles:  poseFiles,
		PanRadius:  cfg.Pano.PanRadius(),
		TiltRadius: cfg.Pano.TiltRadius(),
		HFov:       cfg.Pano.HFov(),
		VFov:       cfg.Pano.VFov(),
		Overlap:    cfg.Pano.Overlap,
		Tolerance:  cfg.Pano.Tolerance(),
	}
}

// startAPIServer 启动 API 和 Web 服务器
func startAPIServer(scheduler *engine.Scheduler, hub *web.Hub, st *web.StateTracker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st.GetStateSnapshot())
	})
	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Command string `json:"command"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := scheduler.Dispatch(r.Context(), types.Command(req.Command)); err != nil {
			logger.Warn("API 指令被拒绝", "command", req.Command, "error", err)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	})

	logger.Info("API 服务器启动在 :8080")
	if err := http.ListenAndServe(":8080", mux); err != nil {
		logger.Error("API 服务器启动失败", "error", err)
	}
}

// waitForShutdown 等待系统信号或共享停止标志以实现优雅停机
// 停止标志由操作员 Exit 或远程结果中的结束哨兵置位
func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, scheduler *engine.Scheduler,
	stop *atomic.Bool, loop *operator.Loop, loopDone <-chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigChan:
			logger.Info("接收到停机信号，正在优雅关闭...")
			stop.Store(true)
		case <-ticker.C:
		}
		if stop.Load() {
			break
		}
	}

	cancel()
	loop.Close()
	<-loopDone
	scheduler.WaitForCompletion()
	logger.Info("巡检演示结束，系统已安全退出。")
}
