package engine

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/antonmedv/expr"

	"inspection-fleet-demo/internal/domain"
	"inspection-fleet-demo/internal/executor"
	"inspection-fleet-demo/internal/metrics"
	"inspection-fleet-demo/internal/remote"
	"inspection-fleet-demo/internal/types"
)

// ClientFactory 为每个任务步骤创建一个新的远程执行器连接
type ClientFactory func(robot types.RobotID) remote.Client

// Scheduler 负责整个编队计划的调度和分发
// 它维护一个按计划时刻排序的优先级队列，步骤按取出顺序交给
// 对应机器人的串行工作队列，不同机器人的步骤并发执行
type Scheduler struct {
	pq            PriorityQueue                        // 优先级队列，存储待处理的计划步骤
	problem       *domain.Problem                      // 任务域实例，用于工单查找
	mu            sync.Mutex                           // 互斥锁，保护队列并发访问
	cond          *sync.Cond                           // 条件变量，用于通知分发循环有新步骤
	wg            sync.WaitGroup                       // 等待组，用于优雅停机
	clientFactory ClientFactory                        // 远程连接工厂
	execOpts      executor.Options                     // 执行引擎的共享构建参数
	stepRules     map[string]string                    // 动作名 -> expr 规则表达式
	queues        map[types.RobotID]*robotQueue        // 每台机器人一个先进先出工作队列
	active        map[types.RobotID]*executor.Executor // 当前活动的执行引擎，操作员指令的路由目标
	activeMu      sync.RWMutex
	logger        *slog.Logger // 结构化日志记录器
}

// robotQueue 是单台机器人的先进先出工作队列
// 步骤按入队顺序被该机器人唯一的 worker 取走，保证同机串行且不乱序
type robotQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	steps []domain.PlanStep
}

func newRobotQueue() *robotQueue {
	q := &robotQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push 追加一个步骤并唤醒 worker
func (q *robotQueue) push(step domain.PlanStep) {
	q.mu.Lock()
	q.steps = append(q.steps, step)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop 取出队首步骤；上下文取消后返回 false，未执行的步骤被放弃
func (q *robotQueue) pop(ctx context.Context) (domain.PlanStep, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.steps) == 0 {
		if ctx.Err() != nil {
			return domain.PlanStep{}, false
		}
		q.cond.Wait()
	}
	if ctx.Err() != nil {
		return domain.PlanStep{}, false
	}
	step := q.steps[0]
	q.steps = q.steps[1:]
	return step, true
}

// NewScheduler 创建一个新的 Scheduler 实例
func NewScheduler(problem *domain.Problem, factory ClientFactory, opts executor.Options, stepRules map[string]string, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		pq:            make(PriorityQueue, 0),
		problem:       problem,
		clientFactory: factory,
		execOpts:      opts,
		stepRules:     stepRules,
		queues:        make(map[types.RobotID]*robotQueue),
		active:        make(map[types.RobotID]*executor.Executor),
		logger:        logger.With("component", "scheduler"),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, r := range problem.Robots {
		s.queues[r.ID] = newRobotQueue()
	}
	return s
}

// SubmitPlan 将规划器输出的全部步骤提交到调度器
func (s *Scheduler) SubmitPlan(steps []domain.PlanStep) {
	for _, step := range steps {
		s.Submit(step)
	}
}

// Submit 将一个计划步骤放入优先级队列并唤醒分发循环
func (s *Scheduler) Submit(step domain.PlanStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("接收到计划步骤", "action", step.Action, "robot", step.Robot(), "start", step.Start)
	heap.Push(&s.pq, &Item{Step: step})
	metrics.StepsInQueue.Inc()
	s.cond.Signal()
}

// Start 启动调度循环
// 按计划时刻顺序取出步骤，移交给对应机器人的工作队列；
// 每台机器人只有一个 worker，入队顺序就是该机器人的执行顺序
func (s *Scheduler) Start(ctx context.Context) {
	// 监听上下文取消信号，用于优雅停机
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.cond.Broadcast() // 唤醒分发循环以便它退出
		s.mu.Unlock()
		for _, q := range s.queues {
			q.cond.Broadcast()
		}
	}()

	for robot, q := range s.queues {
		s.wg.Add(1)
		go s.runRobot(ctx, robot, q)
	}

	for {
		s.mu.Lock()
		// 如果队列为空，等待新步骤
		for s.pq.Len() == 0 {
			if ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}

		// 再次检查是否需要退出
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}

		// 取出计划时刻最早的步骤
		item := heap.Pop(&s.pq).(*Item)
		s.mu.Unlock()

		robot := item.Step.Robot()
		q, ok := s.queues[robot]
		if !ok {
			metrics.StepsInQueue.Dec()
			s.logger.Error("计划步骤引用未知机器人", "action", item.Step.Action, "robot", robot)
			continue
		}
		q.push(item.Step)
	}
}

// runRobot 是单台机器人的串行 worker，按入队顺序逐个执行步骤
func (s *Scheduler) runRobot(ctx context.Context, robot types.RobotID, q *robotQueue) {
	defer s.wg.Done()
	for {
		step, ok := q.pop(ctx)
		if !ok {
			return
		}
		metrics.StepsInQueue.Dec()
		s.runStep(ctx, step)
	}
}

// runStep 执行一个计划步骤
// 移动/停靠类步骤只做记录；工单类步骤通过执行引擎驱动完整的
// 目标/反馈/结果协议
func (s *Scheduler) runStep(ctx context.Context, step domain.PlanStep) {
	robot := step.Robot()
	logger := s.logger.With("action", step.Action, "robot", robot)

	if skip, err := s.evaluateRule(step); err != nil {
		logger.Error("规则引擎评估失败", "error", err)
		return
	} else if skip {
		logger.Info("跳过步骤", "rule", s.stepRules[step.Action])
		return
	}

	kind, isOrder := step.OrderKind()
	if !isOrder {
		// 移动/停靠类动作由机器人底层执行，这里只记录
		logger.Info("执行移动类步骤", "args", step.Args)
		return
	}

	order, err := s.stepOrder(step, kind)
	if err != nil {
		logger.Error("无法确定步骤对应的工单", "error", err)
		return
	}

	client := s.clientFactory(robot)
	exec := executor.New(robot, order, client, s.execOpts)

	s.activeMu.Lock()
	s.active[robot] = exec
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		delete(s.active, robot)
		s.activeMu.Unlock()
	}()

	outcome := exec.Run(ctx)
	logger.Info("步骤执行结束", "outcome", outcome.Code, "summary", outcome.Summary)
}

// stepOrder 从计划步骤参数中解析工单
// 工单类动作约定第二个参数是工单 ID
func (s *Scheduler) stepOrder(step domain.PlanStep, kind types.OrderKind) (domain.Order, error) {
	if len(step.Args) >= 2 {
		if order, ok := s.problem.OrderByID(types.OrderID(step.Args[1])); ok {
			return order, nil
		}
		return domain.Order{}, fmt.Errorf("计划引用未知工单: %s", step.Args[1])
	}
	return domain.Order{}, fmt.Errorf("工单类步骤缺少工单参数: %v", step.Args)
}

// evaluateRule 评估步骤的执行规则
// 规则返回 true 表示执行；编译或求值失败时保守地跳过该步骤
func (s *Scheduler) evaluateRule(step domain.PlanStep) (bool, error) {
	rule, ok := s.stepRules[step.Action]
	if !ok || rule == "" {
		return false, nil
	}
	env := map[string]interface{}{
		"robot":  string(step.Robot()),
		"action": step.Action,
		"args":   step.Args,
		"start":  step.Start,
	}
	program, err := expr.Compile(rule, expr.Env(env))
	if err != nil {
		return true, fmt.Errorf("rule compilation failed: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return true, fmt.Errorf("rule execution failed: %w", err)
	}
	shouldExecute, ok := result.(bool)
	if !ok {
		return true, fmt.Errorf("rule result is not a boolean")
	}
	return !shouldExecute, nil
}

// Dispatch 把操作员指令路由给所有活动的执行引擎
// 没有活动任务时指令被拒绝
func (s *Scheduler) Dispatch(ctx context.Context, cmds ...types.Command) error {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	if len(s.active) == 0 {
		return fmt.Errorf("当前没有活动任务")
	}
	for _, exec := range s.active {
		if err := exec.Dispatch(ctx, cmds...); err != nil {
			return err
		}
	}
	return nil
}

// WaitForCompletion 等待所有正在执行的步骤完成
// 用于优雅停机
func (s *Scheduler) WaitForCompletion() {
	s.wg.Wait()
}
