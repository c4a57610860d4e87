// Package catalog keeps a registry of ingested documents in SQLite:
// where each document came from, its checksum, chunk count and lifecycle
// status. The chunks themselves live in the vector store.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kbflow/kbflow/types"
)

// Record 文档登记信息
type Record struct {
	ID          string `gorm:"primaryKey"`
	Source      string `gorm:"index"`
	ContentType string
	Checksum    string `gorm:"index"`
	ChunkCount  int
	Status      string `gorm:"index"`
	IngestedAt  time.Time
	UpdatedAt   time.Time
}

// TableName overrides the gorm table name.
func (Record) TableName() string { return "documents" }

// Catalog 文档目录
type Catalog struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (and migrates) the catalog database at path.
// Use ":memory:" for an in-memory catalog.
func Open(path string, logger *zap.Logger) (*Catalog, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog db: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}

	return &Catalog{db: db, logger: logger}, nil
}

// Checksum returns the sha256 hex digest of document content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Register 登记一个新文档（或更新同 ID 的旧记录）。
func (c *Catalog) Register(ctx context.Context, doc types.Document, chunkCount int, status types.DocumentStatus) error {
	now := time.Now()
	rec := Record{
		ID:          doc.ID,
		Source:      doc.Source,
		ContentType: doc.ContentType,
		Checksum:    Checksum(doc.Content),
		ChunkCount:  chunkCount,
		Status:      string(status),
		IngestedAt:  now,
		UpdatedAt:   now,
	}

	err := c.db.WithContext(ctx).Save(&rec).Error
	if err != nil {
		return types.NewError(types.ErrStorageFailure, "failed to register document").WithCause(err)
	}

	c.logger.Debug("document registered",
		zap.String("id", doc.ID),
		zap.String("status", string(status)),
		zap.Int("chunks", chunkCount))
	return nil
}

// Get 按 ID 取记录。
func (c *Catalog) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := c.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, types.NewError(types.ErrDocumentNotFound, "document not found: "+id)
	}
	if err != nil {
		return Record{}, types.NewError(types.ErrStorageFailure, "catalog read failed").WithCause(err)
	}
	return rec, nil
}

// FindByChecksum 按内容校验和查重。未找到返回空记录与 false。
func (c *Catalog) FindByChecksum(ctx context.Context, checksum string) (Record, bool, error) {
	var rec Record
	err := c.db.WithContext(ctx).First(&rec, "checksum = ?", checksum).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, types.NewError(types.ErrStorageFailure, "catalog read failed").WithCause(err)
	}
	return rec, true, nil
}

// SetStatus 更新文档状态。
func (c *Catalog) SetStatus(ctx context.Context, id string, status types.DocumentStatus) error {
	result := c.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now()})
	if result.Error != nil {
		return types.NewError(types.ErrStorageFailure, "catalog update failed").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrDocumentNotFound, "document not found: "+id)
	}
	return nil
}

// SetChunkCount 更新文档的块数量。
func (c *Catalog) SetChunkCount(ctx context.Context, id string, count int) error {
	result := c.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{"chunk_count": count, "updated_at": time.Now()})
	if result.Error != nil {
		return types.NewError(types.ErrStorageFailure, "catalog update failed").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrDocumentNotFound, "document not found: "+id)
	}
	return nil
}

// List 按状态列出记录；status 为空时列出全部。
func (c *Catalog) List(ctx context.Context, status types.DocumentStatus) ([]Record, error) {
	var recs []Record
	q := c.db.WithContext(ctx).Order("ingested_at desc")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrStorageFailure, "catalog read failed").WithCause(err)
	}
	return recs, nil
}

// Delete 删除登记记录。
func (c *Catalog) Delete(ctx context.Context, id string) error {
	result := c.db.WithContext(ctx).Delete(&Record{}, "id = ?", id)
	if result.Error != nil {
		return types.NewError(types.ErrStorageFailure, "catalog delete failed").WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrDocumentNotFound, "document not found: "+id)
	}
	return nil
}

// Count 返回登记文档数量。
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, types.NewError(types.ErrStorageFailure, "catalog read failed").WithCause(err)
	}
	return n, nil
}
