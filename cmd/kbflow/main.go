// =============================================================================
// kbflow 主入口
// =============================================================================
// 知识库多 Agent 服务入口点，包含 HTTP 管理面、健康检查、Prometheus 指标
//
// 使用方法:
//
//	kbflow serve                       # 启动服务
//	kbflow serve --config config.yaml  # 指定配置文件
//	kbflow version                     # 显示版本信息
//	kbflow health                      # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/agent"
	"github.com/kbflow/kbflow/catalog"
	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/generation"
	"github.com/kbflow/kbflow/internal/cache"
	"github.com/kbflow/kbflow/internal/logging"
	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/internal/server"
	"github.com/kbflow/kbflow/internal/telemetry"
	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/llm/providers/ollama"
	"github.com/kbflow/kbflow/llm/providers/openai"
	"github.com/kbflow/kbflow/processing"
	"github.com/kbflow/kbflow/reasoning"
	"github.com/kbflow/kbflow/retrieval"
	"github.com/kbflow/kbflow/storage"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting kbflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 遥测
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// Redis（可选）
	var cacheManager *cache.Manager
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		cacheManager, err = cache.NewManager(cache.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: cfg.Retrieval.CacheTTL,
			PoolSize:   cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer cacheManager.Close()
		redisClient = cacheManager.Client()
	}

	// 文档目录
	cat, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open catalog", zap.Error(err))
	}

	// 向量存储
	store, err := storage.New(cfg.Storage, redisClient, logger)
	if err != nil {
		logger.Fatal("Failed to build store", zap.Error(err))
	}

	// 向量化与文档处理
	embedProvider, err := buildEmbeddingProvider(cfg.Embedding)
	if err != nil {
		logger.Fatal("Failed to build embedding provider", zap.Error(err))
	}
	embedder := embedding.NewEmbedder(embedProvider, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency, logger)
	chunker := processing.NewChunker(processing.ChunkerConfig{
		Strategy:     processing.ChunkingStrategy(cfg.Chunking.Strategy),
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	}, buildTokenizer(cfg.Chunking, logger), logger)
	processor := processing.NewProcessor(chunker, embedder, logger)

	// 检索引擎（结果缓存：Redis 可用时走 Redis，否则内存 LRU）
	var resultCache retrieval.ResultCache
	if cfg.Retrieval.CacheTTL > 0 {
		if cacheManager != nil {
			resultCache = retrieval.NewRedisResultCache(cacheManager, cfg.Retrieval.CacheTTL, logger)
		} else {
			resultCache = retrieval.NewMemoryResultCache(cfg.Retrieval.CacheSize, cfg.Retrieval.CacheTTL)
		}
	}
	engine, err := retrieval.NewEngine(cfg.Retrieval, store, embedProvider, resultCache, logger)
	if err != nil {
		logger.Fatal("Failed to build retrieval engine", zap.Error(err))
	}

	// LLM 提供者链与生成器
	providers := buildLLMProviders(cfg.LLM, logger)
	if len(providers) == 0 {
		logger.Warn("no LLM provider configured, generation will fail")
	}
	generator := generation.NewGenerator(cfg.Generation, cfg.LLM, providers, logger)

	var tot *reasoning.TreeOfThought
	if cfg.Reasoning.Enabled && len(providers) > 0 {
		tot = reasoning.NewTreeOfThought(providers[0], engine, cfg.Reasoning, cfg.LLM.Model, logger)
	}

	// 指标
	collector := metrics.NewCollector("kbflow", logger)
	engine.SetMetrics(collector)
	generator.SetMetrics(collector)

	// Agent 总线与编排器
	bus := agent.NewBus(cfg.Agents.InboxSize, logger)
	bus.SetMetrics(collector)
	defer bus.Close()

	maintainer := agent.NewMaintenanceAgent(bus, cat, store, logger)
	maintainer.SetMetrics(collector, cfg.Storage.Backend)

	agents := []agent.Agent{
		agent.NewCollectionAgent(bus, cat, logger),
		agent.NewProcessingAgent(bus, processor, logger),
		agent.NewStorageAgent(bus, store, engine, cat, cfg.Storage.StagingEnabled, logger),
		agent.NewRetrievalAgent(bus, engine, logger),
		agent.NewRAGAgent(bus, generator, tot, engine.Conversations(), logger),
		maintainer,
	}
	ctx := context.Background()
	for _, a := range agents {
		if err := a.Start(ctx); err != nil {
			logger.Fatal("Failed to start agent", zap.String("agent", a.ID()), zap.Error(err))
		}
	}
	defer func() {
		for _, a := range agents {
			if err := a.Stop(context.Background()); err != nil {
				logger.Warn("agent stop failed", zap.String("agent", a.ID()), zap.Error(err))
			}
		}
	}()

	orchestrator := agent.NewOrchestrator(bus, cfg.Agents, logger)

	// HTTP 管理面
	handler := server.NewHandler(orchestrator, collector, logger)
	manager := server.NewManager(handler.Router(), cfg.Server, logger)
	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	manager.WaitForShutdown()
	logger.Info("kbflow stopped")
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

// buildEmbeddingProvider 按配置构建向量化提供者。
func buildEmbeddingProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case "ollama":
		return embedding.NewOllamaProvider(embedding.OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case "", "hash":
		return embedding.NewHashProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// buildTokenizer 优先使用 tiktoken 精确计数，编码不可用时退回简单分词。
func buildTokenizer(cfg config.ChunkingConfig, logger *zap.Logger) processing.Tokenizer {
	if cfg.Encoding != "" {
		tok, err := processing.NewTiktokenTokenizer(cfg.Encoding)
		if err == nil {
			return tok
		}
		logger.Warn("tiktoken encoding unavailable, falling back to simple tokenizer",
			zap.String("encoding", cfg.Encoding), zap.Error(err))
	}
	return &processing.SimpleTokenizer{}
}

// buildLLMProviders 构建主提供者 + 降级链，可选限流包装。
func buildLLMProviders(cfg config.LLMConfig, logger *zap.Logger) []llm.Provider {
	names := append([]string{cfg.DefaultProvider}, cfg.Fallbacks...)
	seen := make(map[string]bool)

	var providers []llm.Provider
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var p llm.Provider
		switch name {
		case "openai":
			p = openai.New(openai.Config{
				APIKey:       cfg.APIKey,
				BaseURL:      cfg.BaseURL,
				DefaultModel: cfg.Model,
				Timeout:      cfg.Timeout,
			}, logger)
		case "ollama":
			p = ollama.New(ollama.Config{
				DefaultModel: cfg.Model,
				Timeout:      cfg.Timeout,
			}, logger)
		default:
			logger.Warn("unknown LLM provider, skipping", zap.String("provider", name))
			continue
		}

		if cfg.RequestsPerSecond > 0 {
			p = llm.NewRateLimitedProvider(p, cfg.RequestsPerSecond, 1)
		}
		providers = append(providers, p)
	}
	return providers
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("kbflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`kbflow - knowledge base service with multi-agent RAG

Usage:
  kbflow <command> [options]

Commands:
  serve     Start the kbflow server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  kbflow serve
  kbflow serve --config /etc/kbflow/config.yaml
  kbflow health --addr http://localhost:8080
  kbflow version`)
}
