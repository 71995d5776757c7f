package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inspection-fleet-demo/internal/types"
	"inspection-fleet-demo/internal/util"
)

// Message 是编排器与远程执行器之间的 WebSocket 消息信封
type Message struct {
	Type     string          `json:"type"` // ready / goal / feedback / result
	Goal     *types.Goal     `json:"goal,omitempty"`
	Feedback *types.Feedback `json:"feedback,omitempty"`
	Result   *types.Result   `json:"result,omitempty"`
}

// 消息类型常量
const (
	MsgReady    = "ready"
	MsgGoal     = "goal"
	MsgFeedback = "feedback"
	MsgResult   = "result"
)

// Event 是远程执行器推送的一个异步通知
// Feedback 与 Result 恰好一个非空
type Event struct {
	Feedback *types.Feedback
	Result   *types.Result
}

// Client 定义执行引擎消费的远程执行器接口
// 事件通道是单消费者的：事件循环按到达顺序逐个处理
type Client interface {
	// Connect 建立连接并等待远程执行器就绪，受 ctx 超时约束
	Connect(ctx context.Context) error
	// SendGoal 下发一个目标
	SendGoal(ctx context.Context, g types.Goal) error
	// Events 返回反馈/结果通知通道，连接断开时关闭
	Events() <-chan Event
	Close() error
}

// WSClient 是通过 WebSocket 调用远程巡检执行器的客户端
// 它实现了 Client 接口，引擎层不感知传输细节
type WSClient struct {
	Endpoint string // 远程服务的地址 (e.g. ws://localhost:9090/inspection)
	conn     *websocket.Conn
	events   chan Event
	writeMu  sync.Mutex // gorilla/websocket 的写入不允许并发
	logger   *slog.Logger
}

// NewWSClient 创建一个新的远程执行器客户端实例
func NewWSClient(endpoint string, logger *slog.Logger) *WSClient {
	return &WSClient{
		Endpoint: endpoint,
		events:   make(chan Event, 16),
		logger:   logger.With("component", "remote_client", "endpoint", endpoint),
	}
}

// Connect 建立 WebSocket 连接并等待服务端的 ready 消息
// 就绪之前不允许下发任何目标
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("连接远程执行器失败: %w", err)
	}
	c.conn = conn

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return fmt.Errorf("等待远程执行器就绪失败: %w", err)
	}
	if msg.Type != MsgReady {
		conn.Close()
		return fmt.Errorf("远程执行器返回了非预期消息: %s", msg.Type)
	}

	// 就绪后取消读超时，进入长连接的事件推送
	_ = conn.SetReadDeadline(time.Time{})
	c.logger.Info("远程执行器已就绪")

	go c.readPump()
	return nil
}

// SendGoal 通过连接下发一个目标，Trace ID 随消息透传
func (c *WSClient) SendGoal(ctx context.Context, g types.Goal) error {
	if c.conn == nil {
		return fmt.Errorf("尚未连接远程执行器")
	}
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		g.TraceID = traceID
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: MsgGoal, Goal: &g}); err != nil {
		return fmt.Errorf("下发目标失败: %w", err)
	}
	return nil
}

// Events 返回事件通道
func (c *WSClient) Events() <-chan Event {
	return c.events
}

// Close 关闭连接
func (c *WSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// readPump 持续读取反馈/结果消息并送入事件通道
// 连接断开时关闭通道，事件循环据此退出
func (c *WSClient) readPump() {
	defer close(c.events)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Warn("远程连接中断", "error", err)
			return
		}
		switch msg.Type {
		case MsgFeedback:
			if msg.Feedback != nil {
				c.events <- Event{Feedback: msg.Feedback}
			}
		case MsgResult:
			if msg.Result != nil {
				c.events <- Event{Result: msg.Result}
			}
		default:
			c.logger.Warn("忽略未知消息类型", "type", msg.Type)
		}
	}
}
