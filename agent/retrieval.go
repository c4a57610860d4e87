package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/retrieval"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🔍 检索 Agent
// =============================================================================

// AgentRetrieval 检索 Agent 的总线标识
const AgentRetrieval = "retrieval"

// RetrievalAgent 把查询交给检索引擎。
type RetrievalAgent struct {
	*BaseAgent
	engine *retrieval.Engine
}

// NewRetrievalAgent creates the retrieval agent.
func NewRetrievalAgent(bus *Bus, engine *retrieval.Engine, logger *zap.Logger) *RetrievalAgent {
	a := &RetrievalAgent{
		BaseAgent: NewBaseAgent(AgentRetrieval, bus, logger),
		engine:    engine,
	}
	a.RegisterHandler("retrieve", a.handleRetrieve)
	return a
}

// handleRetrieve 执行检索，带 session_id 时先做会话增强。
func (a *RetrievalAgent) handleRetrieve(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	query := msg.PayloadString("query")
	if query == "" {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "query required")
	}

	var results []types.ScoredChunk
	var err error

	sessionID := msg.PayloadString("session_id")
	topK := payloadInt(msg, "top_k")
	switch {
	case sessionID != "":
		results, err = a.engine.RetrieveForSession(ctx, sessionID, query)
	case topK > 0:
		results, err = a.engine.RetrieveTopK(ctx, query, topK)
	default:
		results, err = a.engine.Retrieve(ctx, query)
	}
	if err != nil {
		return types.AgentMessage{}, err
	}

	return msg.Response(map[string]any{
		"query":      query,
		"session_id": sessionID,
		"results":    results,
	}), nil
}
