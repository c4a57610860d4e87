// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 验证检索默认值
	assert.Equal(t, "hybrid", cfg.Retrieval.Strategy)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.7, cfg.Retrieval.SemanticWeight)

	// 验证切分默认值
	assert.Equal(t, "recursive", cfg.Chunking.Strategy)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)

	// 验证存储默认值
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.StagingEnabled)

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 默认配置必须通过自身校验
	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

retrieval:
  strategy: "semantic"
  top_k: 10
  semantic_weight: 0.5

chunking:
  strategy: "sentence"
  chunk_size: 256
  chunk_overlap: 32

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "semantic", cfg.Retrieval.Strategy)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, "sentence", cfg.Chunking.Strategy)
	assert.Equal(t, 256, cfg.Chunking.ChunkSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现在 YAML 中的字段保持默认值
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("KBFLOW_SERVER_HTTP_PORT", "9000")
	t.Setenv("KBFLOW_RETRIEVAL_TOP_K", "7")
	t.Setenv("KBFLOW_RETRIEVAL_MIN_SCORE", "0.25")
	t.Setenv("KBFLOW_STORAGE_STAGING_ENABLED", "false")
	t.Setenv("KBFLOW_AGENTS_RESPONSE_TIMEOUT", "30s")
	t.Setenv("KBFLOW_LLM_FALLBACKS", "ollama, openai")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 0.25, cfg.Retrieval.MinScore)
	assert.False(t, cfg.Storage.StagingEnabled)
	assert.Equal(t, 30*time.Second, cfg.Agents.ResponseTimeout)
	assert.Equal(t, []string{"ollama", "openai"}, cfg.LLM.Fallbacks)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.SemanticWeight = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Reasoning.Enabled = true
	cfg.Reasoning.BeamWidth = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.Reranker = "bm25" // 未实现的名称必须被拒绝，而不是静默退化
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.Reranker = "metadata_boost"
	cfg.Retrieval.MetadataBoosts = map[string]map[string]float64{
		"content_type": {"text/markdown": 0.1},
	}
	assert.NoError(t, cfg.Validate())
}
