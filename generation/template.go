// Package generation 负责从检索到的块生成带引用的回答：
// 提示词模板、引用标注、质量检查和多提供者降级。
package generation

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// 📝 提示词模板
// =============================================================================

var variablePattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// PromptTemplate 支持 {variable} 占位符替换的提示词模板。
type PromptTemplate struct {
	name      string
	template  string
	variables []string
}

// NewPromptTemplate parses the template and records its variables.
func NewPromptTemplate(name, template string) *PromptTemplate {
	seen := make(map[string]bool)
	var variables []string
	for _, m := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			variables = append(variables, m[1])
		}
	}
	return &PromptTemplate{name: name, template: template, variables: variables}
}

// Name returns the template name.
func (t *PromptTemplate) Name() string { return t.name }

// Variables returns the placeholder names in order of first appearance.
func (t *PromptTemplate) Variables() []string { return t.variables }

// Render 替换全部占位符；缺少变量时报错。
func (t *PromptTemplate) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, v := range t.variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q missing variables: %s", t.name, strings.Join(missing, ", "))
	}

	result := t.template
	for name, value := range vars {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// 默认 RAG 模板
// -----------------------------------------------------------------------------

const ragTemplateEN = `You are a knowledge base assistant. Answer the question using ONLY the context below.
Cite sources with their bracketed numbers, e.g. [1].
If the context does not contain the answer, say you don't have enough information.

Context:
{context}

Question: {query}

Answer:`

const ragTemplateZH = `你是一个知识库助手。请仅根据下面的上下文回答问题。
引用来源时使用方括号编号，例如 [1]。
如果上下文中没有答案，请说明信息不足。

上下文：
{context}

问题：{query}

回答：`

// DefaultRAGTemplate 返回英文默认模板。
func DefaultRAGTemplate() *PromptTemplate {
	return NewPromptTemplate("rag_en", ragTemplateEN)
}

// DefaultRAGTemplateZH 返回中文默认模板。
func DefaultRAGTemplateZH() *PromptTemplate {
	return NewPromptTemplate("rag_zh", ragTemplateZH)
}

// SelectTemplate 按查询语言和配置选择模板。
// language 为 "auto" 时检测查询中的 CJK 字符。
func SelectTemplate(language, query string) *PromptTemplate {
	switch language {
	case "zh":
		return DefaultRAGTemplateZH()
	case "en":
		return DefaultRAGTemplate()
	default:
		if containsCJK(query) {
			return DefaultRAGTemplateZH()
		}
		return DefaultRAGTemplate()
	}
}

// containsCJK 判断文本是否含有 CJK 字符。
func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}
