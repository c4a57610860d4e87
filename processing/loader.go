package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbflow/kbflow/types"
)

// loadableExtensions 本地采集支持的文件类型。
var loadableExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".csv":  "text/csv",
	".log":  "text/plain",
}

// LoadFile reads a single file into a Document.
func LoadFile(path string) (types.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := loadableExtensions[ext]
	if !ok {
		return types.Document{}, fmt.Errorf("unsupported file type %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return types.Document{
		ID:          uuid.NewString(),
		Source:      path,
		ContentType: contentType,
		Content:     string(data),
		CreatedAt:   time.Now(),
	}, nil
}

// LoadDirectory walks a directory and loads every supported file.
// Unsupported files are skipped silently.
func LoadDirectory(root string) ([]types.Document, error) {
	var docs []types.Document
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := loadableExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		doc, err := LoadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
