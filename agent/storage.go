package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/catalog"
	"github.com/kbflow/kbflow/retrieval"
	"github.com/kbflow/kbflow/storage"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🗄️ 存储 Agent
// =============================================================================

// AgentStorage 存储 Agent 的总线标识
const AgentStorage = "storage"

// StorageAgent 负责块的入库与暂存工作流。
// 启用暂存时新块先进暂存区，人工晋升后才可检索。
type StorageAgent struct {
	*BaseAgent
	store          storage.Store
	engine         *retrieval.Engine
	catalog        *catalog.Catalog
	stagingEnabled bool
}

// NewStorageAgent creates the storage agent.
func NewStorageAgent(bus *Bus, store storage.Store, engine *retrieval.Engine, cat *catalog.Catalog, stagingEnabled bool, logger *zap.Logger) *StorageAgent {
	a := &StorageAgent{
		BaseAgent:      NewBaseAgent(AgentStorage, bus, logger),
		store:          store,
		engine:         engine,
		catalog:        cat,
		stagingEnabled: stagingEnabled,
	}
	a.RegisterHandler("store", a.handleStore)
	a.RegisterHandler("list_staged", a.handleListStaged)
	a.RegisterHandler("promote", a.handlePromote)
	a.RegisterHandler("discard", a.handleDiscard)
	a.RegisterHandler("delete_document", a.handleDeleteDocument)
	return a
}

// handleStore 入库块。暂存开启且存储支持时走暂存区。
func (a *StorageAgent) handleStore(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	chunks := payloadChunks(msg, "chunks")
	if len(chunks) == 0 {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "no chunks to store")
	}

	staged := false
	stager, canStage := a.store.(storage.Stager)
	if a.stagingEnabled && canStage && !payloadBool(msg, "skip_staging") {
		if err := stager.Stage(ctx, chunks); err != nil {
			return types.AgentMessage{}, err
		}
		staged = true
	} else {
		if err := a.store.Add(ctx, chunks); err != nil {
			return types.AgentMessage{}, err
		}
	}

	status := types.DocumentIndexed
	if staged {
		status = types.DocumentStaged
	}
	a.updateCatalog(ctx, chunks, status, true)

	if err := a.invalidate(ctx); err != nil {
		a.logger.Warn("缓存失效失败", zap.Error(err))
	}

	a.logger.Info("块已入库",
		zap.Int("chunks", len(chunks)),
		zap.Bool("staged", staged))

	return msg.Response(map[string]any{
		"stored": len(chunks),
		"staged": staged,
	}), nil
}

// handleListStaged 列出暂存区内容。
func (a *StorageAgent) handleListStaged(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	stager, ok := a.store.(storage.Stager)
	if !ok {
		return types.AgentMessage{}, types.NewError(types.ErrStagingDisabled, "store does not support staging")
	}

	staged, err := stager.ListStaged(ctx)
	if err != nil {
		return types.AgentMessage{}, err
	}
	return msg.Response(map[string]any{
		"staged": staged,
		"count":  len(staged),
	}), nil
}

// handlePromote 晋升暂存块。未提供 ids 时晋升全部。
func (a *StorageAgent) handlePromote(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	stager, ok := a.store.(storage.Stager)
	if !ok {
		return types.AgentMessage{}, types.NewError(types.ErrStagingDisabled, "store does not support staging")
	}

	ids := payloadStrings(msg, "ids")
	var promoted []types.Chunk
	if len(ids) == 0 {
		staged, err := stager.ListStaged(ctx)
		if err != nil {
			return types.AgentMessage{}, err
		}
		for _, c := range staged {
			ids = append(ids, c.ID)
		}
		promoted = staged
	} else {
		staged, err := stager.ListStaged(ctx)
		if err != nil {
			return types.AgentMessage{}, err
		}
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
		for _, c := range staged {
			if wanted[c.ID] {
				promoted = append(promoted, c)
			}
		}
	}
	if len(ids) == 0 {
		return msg.Response(map[string]any{"promoted": 0}), nil
	}

	if err := stager.Promote(ctx, ids); err != nil {
		return types.AgentMessage{}, err
	}

	// 晋升只改状态：块数在入库时已登记，部分晋升不应改写它
	a.updateCatalog(ctx, promoted, types.DocumentIndexed, false)
	if err := a.invalidate(ctx); err != nil {
		a.logger.Warn("缓存失效失败", zap.Error(err))
	}

	a.logger.Info("暂存块已晋升", zap.Int("count", len(ids)))
	return msg.Response(map[string]any{"promoted": len(ids)}), nil
}

// handleDiscard 丢弃暂存块。
func (a *StorageAgent) handleDiscard(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	stager, ok := a.store.(storage.Stager)
	if !ok {
		return types.AgentMessage{}, types.NewError(types.ErrStagingDisabled, "store does not support staging")
	}

	ids := payloadStrings(msg, "ids")
	if len(ids) == 0 {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "no ids to discard")
	}

	if err := stager.DiscardStaged(ctx, ids); err != nil {
		return types.AgentMessage{}, err
	}
	return msg.Response(map[string]any{"discarded": len(ids)}), nil
}

// handleDeleteDocument 删除某文档的全部块和目录记录。
func (a *StorageAgent) handleDeleteDocument(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	docID := msg.PayloadString("document_id")
	if docID == "" {
		return types.AgentMessage{}, types.NewError(types.ErrInvalidRequest, "document_id required")
	}

	removed, err := a.store.DeleteByDocument(ctx, docID)
	if err != nil {
		return types.AgentMessage{}, err
	}

	if a.catalog != nil {
		if err := a.catalog.Delete(ctx, docID); err != nil && types.GetErrorCode(err) != types.ErrDocumentNotFound {
			return types.AgentMessage{}, err
		}
	}

	if err := a.invalidate(ctx); err != nil {
		a.logger.Warn("缓存失效失败", zap.Error(err))
	}
	return msg.Response(map[string]any{"removed": removed}), nil
}

// updateCatalog 按块的文档归属更新目录记录。
// recordCounts 为真时同时登记每个文档的块数。
func (a *StorageAgent) updateCatalog(ctx context.Context, chunks []types.Chunk, status types.DocumentStatus, recordCounts bool) {
	if a.catalog == nil {
		return
	}

	counts := make(map[string]int)
	for _, c := range chunks {
		if c.DocumentID != "" {
			counts[c.DocumentID]++
		}
	}
	for docID, n := range counts {
		if err := a.catalog.SetStatus(ctx, docID, status); err != nil {
			a.logger.Debug("目录状态更新失败",
				zap.String("document_id", docID),
				zap.Error(err))
			continue
		}
		if !recordCounts {
			continue
		}
		if err := a.catalog.SetChunkCount(ctx, docID, n); err != nil {
			a.logger.Debug("目录块数更新失败",
				zap.String("document_id", docID),
				zap.Error(err))
		}
	}
}

func (a *StorageAgent) invalidate(ctx context.Context) error {
	if a.engine == nil {
		return nil
	}
	return a.engine.InvalidateCache(ctx)
}
