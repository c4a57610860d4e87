package processing

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

// ChunkingStrategy 分块策略
type ChunkingStrategy string

const (
	ChunkingFixed     ChunkingStrategy = "fixed"     // 固定大小
	ChunkingRecursive ChunkingStrategy = "recursive" // 递归分块
	ChunkingSentence  ChunkingStrategy = "sentence"  // 句子边界
	ChunkingParagraph ChunkingStrategy = "paragraph" // 段落边界
)

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	Strategy     ChunkingStrategy `json:"strategy"`       // 分块策略
	ChunkSize    int              `json:"chunk_size"`     // 块大小（tokens）
	ChunkOverlap int              `json:"chunk_overlap"`  // 重叠大小（tokens）
	MinChunkSize int              `json:"min_chunk_size"` // 最小块大小
}

// DefaultChunkerConfig 默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy:     ChunkingRecursive,
		ChunkSize:    512,
		ChunkOverlap: 50,
		MinChunkSize: 10,
	}
}

// recursiveSeparators 分隔符优先级：段落 > 行 > 句子 > 空格
var recursiveSeparators = []string{"\n\n", "\n", ". ", "。", "! ", "！", "? ", "？", " "}

// sentenceEnders 句子结束标记
var sentenceEnders = []rune{'.', '。', '!', '！', '?', '？', '\n'}

// Chunker 文档分块器
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建文档分块器
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Chunk 按配置的策略切分文档。空文档返回零个块。
func (c *Chunker) Chunk(doc types.Document) []types.Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	var pieces []string
	switch c.config.Strategy {
	case ChunkingFixed:
		pieces = c.fixedSplit(doc.Content)
	case ChunkingSentence:
		pieces = c.assemble(splitIntoSentences(doc.Content), " ")
	case ChunkingParagraph:
		pieces = c.assemble(splitIntoParagraphs(doc.Content), "\n\n")
	case ChunkingRecursive:
		pieces = c.recursiveSplit(doc.Content, recursiveSeparators)
	default:
		pieces = c.recursiveSplit(doc.Content, recursiveSeparators)
	}

	pieces = c.dropTiny(pieces)
	if c.config.ChunkOverlap > 0 {
		pieces = c.addOverlap(pieces)
	}

	chunks := make([]types.Chunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, types.Chunk{
			DocumentID: doc.ID,
			Content:    content,
			Index:      i,
			TokenCount: c.tokenizer.CountTokens(content),
		})
	}

	c.logger.Debug("chunking completed",
		zap.String("strategy", string(c.config.Strategy)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks
}

// recursiveSplit 递归分割：用当前级分隔符切开，超限的部分降级到下一级。
func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if c.tokenizer.CountTokens(text) <= c.config.ChunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	if len(separators) == 0 {
		// 最后一级：按字符分割（句子边界感知）
		return c.splitByCharacters(text)
	}

	separator := separators[0]
	parts := strings.Split(text, separator)
	if len(parts) == 1 {
		return c.recursiveSplit(text, separators[1:])
	}

	// 恢复分隔符（除了最后一个），保持原文可拼接
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += separator
	}

	var pieces []string
	current := ""
	flush := func() {
		trimmed := strings.TrimSpace(current)
		if trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		current = ""
	}

	for _, part := range parts {
		if c.tokenizer.CountTokens(part) > c.config.ChunkSize {
			// 单个 part 超限，递归使用下一级分隔符
			flush()
			pieces = append(pieces, c.recursiveSplit(part, separators[1:])...)
			continue
		}
		if c.tokenizer.CountTokens(current+part) > c.config.ChunkSize {
			flush()
		}
		current += part
	}
	flush()

	return pieces
}

// assemble 把片段按 token 预算拼装成块。
func (c *Chunker) assemble(units []string, joiner string) []string {
	var pieces []string
	current := ""

	for _, unit := range units {
		if c.tokenizer.CountTokens(unit) > c.config.ChunkSize {
			if current != "" {
				pieces = append(pieces, current)
				current = ""
			}
			pieces = append(pieces, c.splitByCharacters(unit)...)
			continue
		}

		candidate := unit
		if current != "" {
			candidate = current + joiner + unit
		}
		if c.tokenizer.CountTokens(candidate) > c.config.ChunkSize {
			pieces = append(pieces, current)
			current = unit
		} else {
			current = candidate
		}
	}
	if current != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

// fixedSplit 固定大小分块
func (c *Chunker) fixedSplit(text string) []string {
	var pieces []string
	runes := []rune(text)

	// 估算每个 token 约 4 个字符
	charsPerChunk := c.config.ChunkSize * 4
	step := charsPerChunk - c.config.ChunkOverlap*4
	if step <= 0 {
		step = charsPerChunk
	}

	for i := 0; i < len(runes); i += step {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[i:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end >= len(runes) {
			break
		}
	}
	return pieces
}

// splitByCharacters 按字符分割（最后手段），在句子边界处收尾。
func (c *Chunker) splitByCharacters(text string) []string {
	var pieces []string
	runes := []rune(text)
	charsPerChunk := c.config.ChunkSize * 4

	for i := 0; i < len(runes); {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[i:end])
		if end < len(runes) {
			piece = adjustToSentenceBoundary(piece)
		}
		trimmed := strings.TrimSpace(piece)
		if trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		advance := len([]rune(piece))
		if advance == 0 {
			advance = charsPerChunk
		}
		i += advance
	}
	return pieces
}

// addOverlap 把前一个块的尾部拼到下一个块的头部。
func (c *Chunker) addOverlap(pieces []string) []string {
	if len(pieces) <= 1 {
		return pieces
	}

	overlapped := make([]string, len(pieces))
	overlapped[0] = pieces[0]
	overlapChars := c.config.ChunkOverlap * 4

	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1])
		start := len(prev) - overlapChars
		if start < 0 {
			start = 0
		}
		tail := strings.TrimSpace(string(prev[start:]))
		if tail != "" {
			overlapped[i] = tail + " " + pieces[i]
		} else {
			overlapped[i] = pieces[i]
		}
	}
	return overlapped
}

// dropTiny 丢弃低于最小 token 数的碎片。
func (c *Chunker) dropTiny(pieces []string) []string {
	if c.config.MinChunkSize <= 0 || len(pieces) <= 1 {
		return pieces
	}
	kept := pieces[:0]
	for _, p := range pieces {
		if c.tokenizer.CountTokens(p) >= c.config.MinChunkSize {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		// 全部过小时至少保留一个
		return pieces[:1]
	}
	return kept
}

// ====== 辅助方法 ======

// adjustToSentenceBoundary 调整到句子边界（避免在句子中间分割）
func adjustToSentenceBoundary(text string) string {
	if len(text) == 0 {
		return text
	}

	runes := []rune(text)
	// 从后往前查找最近的句子边界，只在后半部分查找
	for i := len(runes) - 1; i >= len(runes)/2; i-- {
		for _, ender := range sentenceEnders {
			if runes[i] == ender {
				return string(runes[:i+1])
			}
		}
	}

	// 找不到句子边界时退回到空格
	for i := len(runes) - 1; i >= len(runes)/2; i-- {
		if runes[i] == ' ' || runes[i] == '\t' {
			return string(runes[:i])
		}
	}

	return text
}

// splitIntoSentences 按标点分割成句子
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, char := range text {
		current.WriteRune(char)

		for _, delim := range sentenceEnders {
			if char == delim {
				trimmed := strings.TrimSpace(current.String())
				if trimmed != "" {
					sentences = append(sentences, trimmed)
				}
				current.Reset()
				break
			}
		}
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}

// splitIntoParagraphs 按空行分割成段落
func splitIntoParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}
