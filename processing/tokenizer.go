// Package processing turns raw documents into embedded chunks:
// tokenization, chunking, metadata extraction and the pipeline that
// ties them together.
package processing

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer 分词器接口
type Tokenizer interface {
	CountTokens(text string) int
	Encode(text string) []int
}

// TiktokenTokenizer 基于 tiktoken 的精确分词器
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer creates a tokenizer for the given encoding
// (e.g. "cl100k_base").
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{encoding: tke}, nil
}

// CountTokens returns the exact token count for the text.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Encode returns the token ids for the text.
func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// SimpleTokenizer 简单分词器（用于测试与离线环境）
type SimpleTokenizer struct{}

func (t *SimpleTokenizer) CountTokens(text string) int {
	// 简化估算：1 token ≈ 4 字符
	return len(text) / 4
}

func (t *SimpleTokenizer) Encode(text string) []int {
	tokens := make([]int, len(text)/4)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}
