// Package agent 实现知识库的多 Agent 编排层：
// 消息总线、基础 Agent、各职能 Agent 和任务编排器。
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🚌 消息总线
// =============================================================================

// Bus 在 Agent 之间投递消息。
// 每个 Agent 有一个带缓冲的收件通道；响应消息按 ParentID
// 路由给等待中的请求方。
type Bus struct {
	mu        sync.RWMutex
	inboxes   map[string]chan types.AgentMessage
	pending   map[string]chan types.AgentMessage
	inboxSize int
	logger    *zap.Logger
	metrics   *metrics.Collector
	closed    bool
	closeOnce sync.Once
}

// NewBus creates a message bus with the given inbox buffer size.
func NewBus(inboxSize int, logger *zap.Logger) *Bus {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		inboxes:   make(map[string]chan types.AgentMessage),
		pending:   make(map[string]chan types.AgentMessage),
		inboxSize: inboxSize,
		logger:    logger.With(zap.String("component", "bus")),
	}
}

// SetMetrics 注入指标收集器，总线上的所有 Agent 共享。
func (b *Bus) SetMetrics(c *metrics.Collector) {
	b.mu.Lock()
	b.metrics = c
	b.mu.Unlock()
}

// Metrics 返回注入的指标收集器，未注入时为 nil。
func (b *Bus) Metrics() *metrics.Collector {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// Register 为 Agent 创建收件通道。
func (b *Bus) Register(agentID string) (<-chan types.AgentMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if _, exists := b.inboxes[agentID]; exists {
		return nil, fmt.Errorf("agent %q already registered", agentID)
	}

	ch := make(chan types.AgentMessage, b.inboxSize)
	b.inboxes[agentID] = ch
	return ch, nil
}

// Send 投递一条消息。
// 响应和错误消息优先路由给等待该 ParentID 的请求方。
func (b *Bus) Send(msg types.AgentMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	if msg.ParentID != "" {
		if waiter, ok := b.pending[msg.ParentID]; ok {
			select {
			case waiter <- msg:
			default:
			}
			return nil
		}
	}

	inbox, ok := b.inboxes[msg.Destination]
	if !ok {
		return types.NewError(types.ErrAgentNotFound, "unknown agent: "+msg.Destination)
	}

	select {
	case inbox <- msg:
		return nil
	default:
		return types.NewError(types.ErrAgentBusy, "inbox full: "+msg.Destination)
	}
}

// Broadcast 把消息投递给除发送者外的所有 Agent。满的收件箱被跳过。
func (b *Bus) Broadcast(msg types.AgentMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, inbox := range b.inboxes {
		if id == msg.Source {
			continue
		}
		select {
		case inbox <- msg:
		default:
			b.logger.Warn("广播丢弃：收件箱已满", zap.String("agent", id))
		}
	}
}

// Request 发送请求并等待对应的响应。
func (b *Bus) Request(ctx context.Context, msg types.AgentMessage, timeout time.Duration) (types.AgentMessage, error) {
	waiter := make(chan types.AgentMessage, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return types.AgentMessage{}, fmt.Errorf("bus is closed")
	}
	b.pending[msg.ID] = waiter
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
	}()

	if err := b.Send(msg); err != nil {
		return types.AgentMessage{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return resp, nil
	case <-timer.C:
		return types.AgentMessage{}, types.NewError(types.ErrResponseTimeout,
			fmt.Sprintf("no response from %s within %s", msg.Destination, timeout))
	case <-ctx.Done():
		return types.AgentMessage{}, ctx.Err()
	}
}

// Close 关闭总线和所有收件通道。
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.closed = true
		for _, ch := range b.inboxes {
			close(ch)
		}
	})
}
