// =============================================================================
// 📦 kbflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		Redis:      DefaultRedisConfig(),
		Catalog:    DefaultCatalogConfig(),
		LLM:        DefaultLLMConfig(),
		Embedding:  DefaultEmbeddingConfig(),
		Chunking:   DefaultChunkingConfig(),
		Storage:    DefaultStorageConfig(),
		Retrieval:  DefaultRetrievalConfig(),
		Generation: DefaultGenerationConfig(),
		Reasoning:  DefaultReasoningConfig(),
		Agents:     DefaultAgentsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: false,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultCatalogConfig 返回默认目录数据库配置
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path: "kbflow.db",
	}
}

// DefaultLLMConfig 返回默认生成模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider:   "openai",
		Fallbacks:         nil,
		BaseURL:           "",
		Model:             "gpt-4o-mini",
		Temperature:       0.7,
		MaxTokens:         2048,
		Timeout:           60 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 0,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:    "openai",
		Model:       "text-embedding-3-small",
		Dimensions:  1536,
		BatchSize:   64,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// DefaultChunkingConfig 返回默认切分配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Strategy:     "recursive",
		ChunkSize:    512,
		ChunkOverlap: 50,
		Encoding:     "cl100k_base",
	}
}

// DefaultStorageConfig 返回默认向量存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:        "memory",
		KeyPrefix:      "kbflow:chunk:",
		StagingEnabled: true,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Strategy:          "hybrid",
		TopK:              5,
		MinScore:          0.0,
		SemanticWeight:    0.7,
		Reranker:          "none",
		CacheTTL:          5 * time.Minute,
		CacheSize:         1000,
		ConversationTurns: 10,
	}
}

// DefaultGenerationConfig 返回默认生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PromptLanguage:  "en",
		Citations:       true,
		QualityCheck:    true,
		MinAnswerLength: 20,
	}
}

// DefaultReasoningConfig 返回默认思维树配置
func DefaultReasoningConfig() ReasoningConfig {
	return ReasoningConfig{
		Enabled:         false,
		BranchingFactor: 3,
		MaxDepth:        3,
		BeamWidth:       2,
		PruneThreshold:  0.3,
		Timeout:         2 * time.Minute,
		ParallelEval:    true,
	}
}

// DefaultAgentsConfig 返回默认编排配置
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		ResponseTimeout: 2 * time.Minute,
		MaxStepRetries:  3,
		RetryBackoff:    500 * time.Millisecond,
		InboxSize:       64,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kbflow",
		SampleRate:   1.0,
	}
}
