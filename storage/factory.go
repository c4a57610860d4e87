package storage

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
)

// New 按配置构建块存储。
// backend=redis 需要有效的 redis 客户端；配置与客户端不一致时
// 明确报错，而不是静默退回内存实现。
func New(cfg config.StorageConfig, client *redis.Client, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(logger), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("storage backend is redis but no redis client is configured")
		}
		return NewRedisStore(client, cfg.KeyPrefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
