package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🎭 编排器
// =============================================================================

// AgentOrchestrator 编排器在总线上的标识
const AgentOrchestrator = "orchestrator"

// planStep 任务计划中的一步。
type planStep struct {
	agent  string
	action string
	// prepare 用原始请求载荷和上一步响应载荷组装本步参数
	prepare func(base, prev map[string]any) map[string]any
	// stopIfMissing 非空时：本步参数中该键为空则提前结束计划
	stopIfMissing string
	// terminal 标记最后一步；失败时可做降级聚合
	terminal bool
}

// Orchestrator 把请求展开成任务计划并按步执行：
// 步骤结果串联到下一步，可重试错误按退避重试，
// 末步生成失败时降级返回已检索的来源。
type Orchestrator struct {
	bus    *Bus
	cfg    config.AgentsConfig
	logger *zap.Logger
	plans  map[string][]planStep
}

// NewOrchestrator creates the orchestrator over a running bus.
func NewOrchestrator(bus *Bus, cfg config.AgentsConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
	o.plans = o.buildPlans()
	return o
}

// buildPlans 注册每种请求类型的任务计划。
func (o *Orchestrator) buildPlans() map[string][]planStep {
	copyKeys := func(base map[string]any, keys ...string) map[string]any {
		params := make(map[string]any)
		for _, k := range keys {
			if v, ok := base[k]; ok {
				params[k] = v
			}
		}
		return params
	}

	return map[string][]planStep{
		"query": {
			{
				agent:  AgentRetrieval,
				action: "retrieve",
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "query", "session_id", "top_k")
				},
			},
			{
				agent:    AgentRAG,
				action:   "generate",
				terminal: true,
				prepare: func(base, prev map[string]any) map[string]any {
					params := copyKeys(base, "query", "session_id", "use_tot")
					params["results"] = prev["results"]
					return params
				},
			},
		},
		"add_document": {
			{
				agent:  AgentProcessing,
				action: "process",
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "documents")
				},
			},
			{
				agent:    AgentStorage,
				action:   "store",
				terminal: true,
				prepare: func(base, prev map[string]any) map[string]any {
					params := copyKeys(base, "skip_staging")
					params["chunks"] = prev["chunks"]
					return params
				},
			},
		},
		"collect": {
			{
				agent:  AgentCollection,
				action: "collect",
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "documents", "paths")
				},
			},
			{
				agent:         AgentProcessing,
				action:        "process",
				stopIfMissing: "documents",
				prepare: func(base, prev map[string]any) map[string]any {
					return map[string]any{"documents": prev["documents"]}
				},
			},
			{
				agent:    AgentStorage,
				action:   "store",
				terminal: true,
				prepare: func(base, prev map[string]any) map[string]any {
					params := copyKeys(base, "skip_staging")
					params["chunks"] = prev["chunks"]
					return params
				},
			},
		},
		"maintenance": {
			{agent: AgentMaintenance, action: "maintenance", terminal: true,
				prepare: func(base, _ map[string]any) map[string]any { return map[string]any{} }},
		},
		"list_staged": {
			{agent: AgentStorage, action: "list_staged", terminal: true,
				prepare: func(base, _ map[string]any) map[string]any { return map[string]any{} }},
		},
		"promote": {
			{agent: AgentStorage, action: "promote", terminal: true,
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "ids")
				}},
		},
		"discard_staged": {
			{agent: AgentStorage, action: "discard", terminal: true,
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "ids")
				}},
		},
		"delete_document": {
			{agent: AgentStorage, action: "delete_document", terminal: true,
				prepare: func(base, _ map[string]any) map[string]any {
					return copyKeys(base, "document_id")
				}},
		},
	}
}

// RequestTypes 返回支持的请求类型。
func (o *Orchestrator) RequestTypes() []string {
	names := make([]string, 0, len(o.plans))
	for name := range o.plans {
		names = append(names, name)
	}
	return names
}

// Execute 执行一个请求：按计划逐步调用各 Agent 并聚合结果。
func (o *Orchestrator) Execute(ctx context.Context, requestType string, payload map[string]any) (map[string]any, error) {
	plan, ok := o.plans[requestType]
	if !ok {
		return nil, types.NewError(types.ErrUnknownRequest, "unknown request type: "+requestType)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	o.logger.Info("开始执行任务",
		zap.String("type", requestType),
		zap.Int("steps", len(plan)))

	aggregated := make(map[string]any)
	prev := map[string]any{}
	for i, step := range plan {
		params := step.prepare(payload, prev)

		if step.stopIfMissing != "" && emptyValue(params[step.stopIfMissing]) {
			o.logger.Info("计划提前结束：无待处理数据",
				zap.String("step", step.action))
			return stripIntermediate(aggregated), nil
		}

		resp, err := o.executeStep(ctx, step, params)
		if err != nil {
			// 末步生成失败时降级：返回已检索的来源
			if step.terminal && requestType == "query" {
				if results, ok := prev["results"]; ok {
					o.logger.Warn("生成失败，降级返回检索结果", zap.Error(err))
					return map[string]any{
						"results":  results,
						"degraded": true,
						"error":    err.Error(),
					}, nil
				}
			}
			return nil, types.NewError(types.ErrTaskFailed,
				fmt.Sprintf("step %d (%s/%s) failed", i+1, step.agent, step.action)).WithCause(err)
		}

		prev = resp.Payload
		mergeInto(aggregated, resp.Payload)
	}

	return stripIntermediate(aggregated), nil
}

// stripIntermediate 把步骤间传递的中间产物从最终结果中剔除。
func stripIntermediate(aggregated map[string]any) map[string]any {
	delete(aggregated, "documents")
	delete(aggregated, "chunks")
	return aggregated
}

// executeStep 调一个 Agent，可重试错误按指数退避重试。
func (o *Orchestrator) executeStep(ctx context.Context, step planStep, params map[string]any) (types.AgentMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxStepRetries; attempt++ {
		if attempt > 0 {
			delay := o.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			o.logger.Debug("步骤重试",
				zap.String("agent", step.agent),
				zap.String("action", step.action),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return types.AgentMessage{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		req := types.NewRequest(AgentOrchestrator, step.agent, step.action, params)
		resp, err := o.bus.Request(ctx, req, o.cfg.ResponseTimeout)
		if err != nil {
			lastErr = err
			if !types.IsRetryable(err) && types.GetErrorCode(err) != types.ErrResponseTimeout {
				return types.AgentMessage{}, err
			}
			continue
		}

		if resp.IsError() {
			code := resp.ErrorCode()
			lastErr = types.NewError(code, resp.PayloadString("message"))
			if !retryableCode(code) {
				return types.AgentMessage{}, lastErr
			}
			continue
		}

		return resp, nil
	}

	return types.AgentMessage{}, types.NewError(types.ErrRecoveryExceeded,
		fmt.Sprintf("step %s/%s failed after %d attempts", step.agent, step.action, o.cfg.MaxStepRetries+1)).WithCause(lastErr)
}

// retryableCode 判断错误响应是否值得重试。
func retryableCode(code types.ErrorCode) bool {
	switch code {
	case types.ErrRateLimited, types.ErrTimeout, types.ErrUpstreamError,
		types.ErrProviderUnavailable, types.ErrResponseTimeout, types.ErrAgentBusy:
		return true
	default:
		return false
	}
}

// emptyValue 判断载荷值是否为空（nil 或空切片）。
func emptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []types.Document:
		return len(val) == 0
	case []types.Chunk:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}

// mergeInto 把 src 合并进 dst，同名键覆盖。
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
