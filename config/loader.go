// =============================================================================
// 📦 kbflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("KBFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是知识库系统的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Catalog 文档目录数据库配置
	Catalog CatalogConfig `yaml:"catalog" env:"CATALOG"`

	// LLM 生成模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Chunking 文档切分配置
	Chunking ChunkingConfig `yaml:"chunking" env:"CHUNKING"`

	// Storage 向量存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Retrieval 检索配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Generation 回答生成配置
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// Reasoning 思维树推理配置
	Reasoning ReasoningConfig `yaml:"reasoning" env:"REASONING"`

	// Agents 多 Agent 编排配置
	Agents AgentsConfig `yaml:"agents" env:"AGENTS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用（禁用时缓存与存储均退化为内存实现）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// CatalogConfig 文档目录数据库配置（SQLite）
type CatalogConfig struct {
	// 数据库文件路径，":memory:" 表示内存库
	Path string `yaml:"path" env:"PATH"`
}

// LLMConfig 生成模型配置
type LLMConfig struct {
	// 默认 Provider: openai, ollama
	DefaultProvider string `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	// 备选 Provider 列表，按顺序降级
	Fallbacks []string `yaml:"fallbacks" env:"FALLBACKS"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（兼容 DeepSeek / SiliconFlow 等 OpenAI 风格端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每秒请求数限制，0 表示不限
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	// Provider: openai, ollama, hash
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 批量大小
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 并发批次数
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ChunkingConfig 文档切分配置
type ChunkingConfig struct {
	// 策略: recursive, fixed, sentence, paragraph
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 目标块大小（token）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// 相邻块重叠（token）
	ChunkOverlap int `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	// tiktoken 编码名称
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// StorageConfig 向量存储配置
type StorageConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用暂存区（staged 数据需人工晋升后才可检索）
	StagingEnabled bool `yaml:"staging_enabled" env:"STAGING_ENABLED"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 策略: semantic, keyword, hybrid
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 默认返回条数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 最低相关度阈值
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
	// 混合检索语义权重（关键词权重 = 1 - 此值）
	SemanticWeight float64 `yaml:"semantic_weight" env:"SEMANTIC_WEIGHT"`
	// 重排序器: none, exact_match, length_norm, metadata_boost, ensemble
	Reranker string `yaml:"reranker" env:"RERANKER"`
	// 元数据加权表，形如 {"content_type": {"text/markdown": 0.1}}
	MetadataBoosts map[string]map[string]float64 `yaml:"metadata_boosts" env:"-"`
	// 结果缓存 TTL，0 表示禁用缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 内存缓存容量
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
	// 会话历史保留轮数
	ConversationTurns int `yaml:"conversation_turns" env:"CONVERSATION_TURNS"`
}

// GenerationConfig 回答生成配置
type GenerationConfig struct {
	// 提示词语言: en, zh
	PromptLanguage string `yaml:"prompt_language" env:"PROMPT_LANGUAGE"`
	// 是否附带引用标记
	Citations bool `yaml:"citations" env:"CITATIONS"`
	// 是否启用质量检查（不合格时重新生成一次）
	QualityCheck bool `yaml:"quality_check" env:"QUALITY_CHECK"`
	// 回答最小长度（字符），低于视为不合格
	MinAnswerLength int `yaml:"min_answer_length" env:"MIN_ANSWER_LENGTH"`
}

// ReasoningConfig 思维树推理配置
type ReasoningConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 每层分支数
	BranchingFactor int `yaml:"branching_factor" env:"BRANCHING_FACTOR"`
	// 最大深度
	MaxDepth int `yaml:"max_depth" env:"MAX_DEPTH"`
	// 束宽
	BeamWidth int `yaml:"beam_width" env:"BEAM_WIDTH"`
	// 剪枝阈值
	PruneThreshold float64 `yaml:"prune_threshold" env:"PRUNE_THRESHOLD"`
	// 整体超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否并行评估分支
	ParallelEval bool `yaml:"parallel_eval" env:"PARALLEL_EVAL"`
}

// AgentsConfig 多 Agent 编排配置
type AgentsConfig struct {
	// 单个请求的响应超时
	ResponseTimeout time.Duration `yaml:"response_timeout" env:"RESPONSE_TIMEOUT"`
	// 任务步骤最大重试次数
	MaxStepRetries int `yaml:"max_step_retries" env:"MAX_STEP_RETRIES"`
	// 重试初始退避
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	// Agent 收件箱缓冲大小
	InboxSize int `yaml:"inbox_size" env:"INBOX_SIZE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "KBFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, "chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errs = append(errs, "chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "top_k must be positive")
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.SemanticWeight > 1 {
		errs = append(errs, "semantic_weight must be between 0 and 1")
	}
	switch c.Retrieval.Reranker {
	case "", "none", "exact_match", "length_norm", "metadata_boost", "ensemble":
	default:
		errs = append(errs, fmt.Sprintf("unknown reranker: %s", c.Retrieval.Reranker))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Reasoning.Enabled {
		if c.Reasoning.BranchingFactor <= 0 || c.Reasoning.MaxDepth <= 0 || c.Reasoning.BeamWidth <= 0 {
			errs = append(errs, "reasoning parameters must be positive when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
