package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/generation"
	"github.com/kbflow/kbflow/reasoning"
	"github.com/kbflow/kbflow/retrieval"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🧠 生成 Agent
// =============================================================================

// AgentRAG 生成 Agent 的总线标识
const AgentRAG = "rag"

// RAGAgent 基于检索结果生成回答；请求要求时走思维树推理路径。
type RAGAgent struct {
	*BaseAgent
	generator     *generation.Generator
	tot           *reasoning.TreeOfThought
	conversations *retrieval.Conversations
}

// NewRAGAgent creates the answer generation agent.
// tot may be nil when Tree of Thought reasoning is disabled.
func NewRAGAgent(bus *Bus, generator *generation.Generator, tot *reasoning.TreeOfThought, conversations *retrieval.Conversations, logger *zap.Logger) *RAGAgent {
	a := &RAGAgent{
		BaseAgent:     NewBaseAgent(AgentRAG, bus, logger),
		generator:     generator,
		tot:           tot,
		conversations: conversations,
	}
	a.RegisterHandler("generate", a.handleGenerate)
	return a
}

// handleGenerate 生成回答并记录会话轮次。
func (a *RAGAgent) handleGenerate(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	query := msg.PayloadString("query")
	if query == "" {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "query required")
	}
	results := payloadScoredChunks(msg, "results")

	var result *types.QueryResult
	if payloadBool(msg, "use_tot") && a.tot != nil {
		totResult, err := a.tot.Execute(ctx, query)
		if err != nil {
			return types.AgentMessage{}, err
		}
		result = &types.QueryResult{
			Query:   query,
			Answer:  totResult.FinalAnswer,
			Sources: totResult.Sources,
			Elapsed: totResult.Elapsed,
			Metadata: map[string]any{
				"reasoning":    "tree_of_thought",
				"confidence":   totResult.Confidence,
				"steps":        len(totResult.Steps),
				"total_tokens": totResult.TotalTokens,
			},
		}
	} else {
		generated, err := a.generator.Generate(ctx, query, results)
		if err != nil {
			return types.AgentMessage{}, err
		}
		result = generated
	}

	if sessionID := msg.PayloadString("session_id"); sessionID != "" && a.conversations != nil {
		a.conversations.AddTurn(sessionID, query, result.Answer)
	}

	a.logger.Info("回答已生成",
		zap.String("query", query),
		zap.Int("sources", len(result.Sources)))

	return msg.Response(map[string]any{"result": result}), nil
}
