package agent

import (
	"context"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/catalog"
	"github.com/kbflow/kbflow/processing"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 📥 采集 Agent
// =============================================================================

// AgentCollection 采集 Agent 的总线标识
const AgentCollection = "collection"

// CollectionAgent 从内联载荷和本地路径采集文档，
// 按内容校验和跳过未变更的文档并登记到目录。
type CollectionAgent struct {
	*BaseAgent
	catalog *catalog.Catalog
}

// NewCollectionAgent creates the collection agent.
func NewCollectionAgent(bus *Bus, cat *catalog.Catalog, logger *zap.Logger) *CollectionAgent {
	a := &CollectionAgent{
		BaseAgent: NewBaseAgent(AgentCollection, bus, logger),
		catalog:   cat,
	}
	a.RegisterHandler("collect", a.handleCollect)
	return a
}

// handleCollect 采集文档：内联 documents + paths 指向的文件/目录。
func (a *CollectionAgent) handleCollect(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	collected := payloadDocuments(msg, "documents")

	for _, path := range payloadStrings(msg, "paths") {
		info, err := os.Stat(path)
		if err != nil {
			return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "path not accessible: "+path).WithCause(err)
		}
		if info.IsDir() {
			docs, err := processing.LoadDirectory(path)
			if err != nil {
				return types.AgentMessage{}, types.NewError(types.ErrInternalError, "failed to load directory: "+path).WithCause(err)
			}
			collected = append(collected, docs...)
		} else {
			doc, err := processing.LoadFile(path)
			if err != nil {
				return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "failed to load file: "+path).WithCause(err)
			}
			collected = append(collected, doc)
		}
	}

	// 校验和查重：未变更的文档直接跳过
	var fresh []types.Document
	skipped := 0
	for _, doc := range collected {
		if doc.Content == "" {
			return types.AgentMessage{}, types.NewError(types.ErrEmptyDocument, "document has no content")
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}

		if a.catalog != nil {
			if _, found, err := a.catalog.FindByChecksum(ctx, catalog.Checksum(doc.Content)); err == nil && found {
				skipped++
				continue
			}
			if err := a.catalog.Register(ctx, doc, 0, types.DocumentPending); err != nil {
				return types.AgentMessage{}, err
			}
		}
		fresh = append(fresh, doc)
	}

	return msg.Response(map[string]any{
		"documents": fresh,
		"collected": len(fresh),
		"skipped":   skipped,
	}), nil
}
