package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🤖 Agent 基础设施
// =============================================================================

// Agent 是编排层的基本单元。
type Agent interface {
	// ID 返回 Agent 的唯一标识
	ID() string

	// Start 启动消息处理循环
	Start(ctx context.Context) error

	// Stop 停止处理并等待在途消息完成
	Stop(ctx context.Context) error

	// Handle 同步处理一条消息
	Handle(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error)
}

// Handler 处理某类动作的函数。
type Handler func(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error)

// BaseAgent 提供按动作注册处理器、收件循环和响应投递。
// 各职能 Agent 内嵌它并注册自己的处理器。
type BaseAgent struct {
	id       string
	bus      *Bus
	logger   *zap.Logger
	handlers map[string]Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewBaseAgent creates an agent registered on the bus.
func NewBaseAgent(id string, bus *Bus, logger *zap.Logger) *BaseAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAgent{
		id:       id,
		bus:      bus,
		logger:   logger.With(zap.String("agent", id)),
		handlers: make(map[string]Handler),
	}
}

// ID returns the agent identifier.
func (a *BaseAgent) ID() string { return a.id }

// RegisterHandler 注册动作处理器。
func (a *BaseAgent) RegisterHandler(action string, h Handler) {
	a.handlers[action] = h
}

// Handle 按动作分发到对应处理器并记录处理指标。
// 未知动作返回 UNKNOWN_REQUEST 错误响应。
func (a *BaseAgent) Handle(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	start := time.Now()
	resp, err := a.dispatch(ctx, msg)

	if c := a.bus.Metrics(); c != nil {
		status := "success"
		if err != nil || resp.IsError() {
			status = "error"
		}
		c.RecordAgentRequest(a.id, msg.Action, status, time.Since(start))
	}
	return resp, err
}

func (a *BaseAgent) dispatch(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	h, ok := a.handlers[msg.Action]
	if !ok {
		a.logger.Warn("未知的请求动作", zap.String("action", msg.Action))
		return msg.ErrorResponse(types.ErrUnknownRequest, "unknown action: "+msg.Action), nil
	}

	resp, err := h(ctx, msg)
	if err != nil {
		a.logger.Error("处理消息失败",
			zap.String("action", msg.Action),
			zap.Error(err))
		return msg.ErrorResponse(types.GetErrorCode(err), err.Error()), nil
	}
	return resp, nil
}

// Start 启动收件循环。
func (a *BaseAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("agent %s already started", a.id)
	}

	inbox, err := a.bus.Register(a.id)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.started = true

	go a.loop(loopCtx, inbox)
	a.logger.Info("Agent 已启动")
	return nil
}

// Stop 停止收件循环。
func (a *BaseAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.cancel()

	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.started = false
	a.logger.Info("Agent 已停止")
	return nil
}

// loop 依次处理收件箱中的消息，对请求类消息回发响应。
func (a *BaseAgent) loop(ctx context.Context, inbox <-chan types.AgentMessage) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}

			resp, err := a.Handle(ctx, msg)
			if err != nil {
				// Handle 自身兜底了处理器错误，到这里只剩内部错误
				a.logger.Error("消息处理异常", zap.Error(err))
				continue
			}

			if msg.Type == types.MessageRequest {
				if serr := a.bus.Send(resp); serr != nil {
					a.logger.Warn("响应投递失败", zap.Error(serr))
				}
			}
		}
	}
}
