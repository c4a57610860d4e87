package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/processing"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// ⚙️ 加工 Agent
// =============================================================================

// AgentProcessing 加工 Agent 的总线标识
const AgentProcessing = "processing"

// ProcessingAgent 把采集到的文档切分并向量化。
type ProcessingAgent struct {
	*BaseAgent
	processor *processing.Processor
}

// NewProcessingAgent creates the processing agent.
func NewProcessingAgent(bus *Bus, processor *processing.Processor, logger *zap.Logger) *ProcessingAgent {
	a := &ProcessingAgent{
		BaseAgent: NewBaseAgent(AgentProcessing, bus, logger),
		processor: processor,
	}
	a.RegisterHandler("process", a.handleProcess)
	return a
}

// handleProcess 逐个文档加工，任一文档失败则整体失败。
func (a *ProcessingAgent) handleProcess(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	docs := payloadDocuments(msg, "documents")
	if len(docs) == 0 {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "no documents to process")
	}

	var allChunks []types.Chunk
	counts := make(map[string]int, len(docs))
	for _, doc := range docs {
		chunks, err := a.processor.Process(ctx, doc)
		if err != nil {
			return types.AgentMessage{}, err
		}
		allChunks = append(allChunks, chunks...)
		counts[doc.ID] = len(chunks)
	}

	a.logger.Info("文档加工完成",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(allChunks)))

	return msg.Response(map[string]any{
		"chunks":       allChunks,
		"chunk_counts": counts,
	}), nil
}
