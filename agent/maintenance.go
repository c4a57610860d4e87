package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/catalog"
	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/storage"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🔧 维护 Agent
// =============================================================================

// AgentMaintenance 维护 Agent 的总线标识
const AgentMaintenance = "maintenance"

// IntegrityReport 知识库一致性检查结果。
type IntegrityReport struct {
	CatalogDocuments int      `json:"catalog_documents"`
	StoreChunks      int      `json:"store_chunks"`
	StagedChunks     int      `json:"staged_chunks"`
	OrphanDocuments  []string `json:"orphan_documents,omitempty"`  // 有块无目录记录
	MissingDocuments []string `json:"missing_documents,omitempty"` // 有目录记录无块
	CountMismatches  []string `json:"count_mismatches,omitempty"`  // 块数与登记不符
	Healthy          bool     `json:"healthy"`
}

// MaintenanceAgent 对目录和存储做一致性检查。
type MaintenanceAgent struct {
	*BaseAgent
	catalog *catalog.Catalog
	store   storage.Store
	metrics *metrics.Collector
	backend string
}

// NewMaintenanceAgent creates the maintenance agent.
func NewMaintenanceAgent(bus *Bus, cat *catalog.Catalog, store storage.Store, logger *zap.Logger) *MaintenanceAgent {
	a := &MaintenanceAgent{
		BaseAgent: NewBaseAgent(AgentMaintenance, bus, logger),
		catalog:   cat,
		store:     store,
	}
	a.RegisterHandler("maintenance", a.handleMaintenance)
	return a
}

// SetMetrics 注入指标收集器；backend 作为存储规模指标的标签。
func (a *MaintenanceAgent) SetMetrics(c *metrics.Collector, backend string) {
	if backend == "" {
		backend = "memory"
	}
	a.metrics = c
	a.backend = backend
}

// handleMaintenance 对比目录与存储：孤儿块、丢失文档、数量漂移。
func (a *MaintenanceAgent) handleMaintenance(ctx context.Context, msg types.AgentMessage) (types.AgentMessage, error) {
	report := IntegrityReport{}

	chunks, err := a.store.All(ctx)
	if err != nil {
		return types.AgentMessage{}, err
	}
	report.StoreChunks = len(chunks)

	chunksPerDoc := make(map[string]int)
	for _, c := range chunks {
		if c.DocumentID != "" {
			chunksPerDoc[c.DocumentID]++
		}
	}

	if stager, ok := a.store.(storage.Stager); ok {
		staged, err := stager.ListStaged(ctx)
		if err != nil {
			return types.AgentMessage{}, err
		}
		report.StagedChunks = len(staged)
	}

	if a.catalog != nil {
		records, err := a.catalog.List(ctx, "")
		if err != nil {
			return types.AgentMessage{}, err
		}
		report.CatalogDocuments = len(records)

		if a.metrics != nil {
			perStatus := make(map[string]int)
			for _, rec := range records {
				perStatus[rec.Status]++
			}
			for status, n := range perStatus {
				a.metrics.SetCatalogDocuments(status, n)
			}
		}

		known := make(map[string]catalog.Record, len(records))
		for _, rec := range records {
			known[rec.ID] = rec
		}

		for docID := range chunksPerDoc {
			if _, ok := known[docID]; !ok {
				report.OrphanDocuments = append(report.OrphanDocuments, docID)
			}
		}
		for _, rec := range records {
			got := chunksPerDoc[rec.ID]
			switch {
			case got == 0 && rec.Status == string(types.DocumentIndexed):
				report.MissingDocuments = append(report.MissingDocuments, rec.ID)
			case got > 0 && rec.ChunkCount > 0 && got != rec.ChunkCount:
				report.CountMismatches = append(report.CountMismatches, rec.ID)
			}
		}
	}

	report.Healthy = len(report.OrphanDocuments) == 0 &&
		len(report.MissingDocuments) == 0 &&
		len(report.CountMismatches) == 0

	if a.metrics != nil {
		a.metrics.SetStoreChunks(a.backend, report.StoreChunks, report.StagedChunks)
	}

	a.logger.Info("一致性检查完成",
		zap.Bool("healthy", report.Healthy),
		zap.Int("store_chunks", report.StoreChunks),
		zap.Int("catalog_documents", report.CatalogDocuments))

	return msg.Response(map[string]any{"report": report}), nil
}
