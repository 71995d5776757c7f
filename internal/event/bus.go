package event

import (
	"sync"

	"inspection-fleet-demo/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有任务生命周期事件类型
const (
	MissionStarted   EventType = "MissionStarted"   // 任务步骤开始执行
	GoalDispatched   EventType = "GoalDispatched"   // 目标已下发给远程执行器
	FeedbackReceived EventType = "FeedbackReceived" // 收到过程反馈
	PoseSkipped      EventType = "PoseSkipped"      // 操作员跳过了一个位姿
	ProgressSaved    EventType = "ProgressSaved"    // 进度已持久化
	MissionCompleted EventType = "MissionCompleted" // 任务步骤成功结束
	MissionFailed    EventType = "MissionFailed"    // 任务步骤以失败/超时/抢占结束
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type      EventType       // 事件类型
	MissionID string          // 关联的任务 ID
	Robot     types.RobotID   // 执行机器人
	Order     types.OrderID   // 关联的工单 (仅工单类事件)
	Kind      types.OrderKind // 工单类型
	Feedback  *types.Feedback // 过程反馈 (仅 FeedbackReceived)
	Result    *types.Result   // 终态结果 (仅结束类事件)
	Error     error           // 错误信息 (仅失败事件)
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler // 存储事件类型到多个处理函数的映射
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被调用
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if handlers, ok := b.handlers[e.Type]; ok {
		// 遍历所有处理器并异步执行
		// 使用 goroutine 避免单个处理器的阻塞影响其他处理器
		for _, handler := range handlers {
			go handler(e)
		}
	}
}
