package processing

import (
	"sort"
	"strings"
	"unicode"
)

// englishStopwords 关键词提取时跳过的高频词。
var englishStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "not": true,
	"can": true, "will": true, "has": true, "have": true, "had": true,
}

// ExtractMetadata 从文档内容中提取轻量元数据：
// 标题、语言、关键词和基础统计。结果合并进已有 metadata。
func ExtractMetadata(content string, existing map[string]any) map[string]any {
	meta := make(map[string]any, len(existing)+4)
	for k, v := range existing {
		meta[k] = v
	}

	if title := extractTitle(content); title != "" {
		if _, ok := meta["title"]; !ok {
			meta["title"] = title
		}
	}
	meta["language"] = detectLanguage(content)
	if keywords := extractKeywords(content, 8); len(keywords) > 0 {
		meta["keywords"] = keywords
	}
	meta["char_count"] = len([]rune(content))

	return meta
}

// extractTitle 取第一个 Markdown 标题，否则取第一行非空文本。
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if len([]rune(line)) > 80 {
			runes := []rune(line)
			return string(runes[:80])
		}
		return line
	}
	return ""
}

// detectLanguage CJK 字符占比超过 15% 判为中文，否则英文。
func detectLanguage(content string) string {
	var total, cjk int
	for _, r := range content {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Han, r) {
			cjk++
		}
	}
	if total == 0 {
		return "unknown"
	}
	if float64(cjk)/float64(total) > 0.15 {
		return "zh"
	}
	return "en"
}

// extractKeywords 按词频取 topN 关键词（跳过停用词与过短词）。
func extractKeywords(content string, topN int) []string {
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(content)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(word) < 3 || englishStopwords[word] {
			continue
		}
		freq[word]++
	}

	type wf struct {
		word  string
		count int
	}
	ranked := make([]wf, 0, len(freq))
	for w, c := range freq {
		if c > 1 {
			ranked = append(ranked, wf{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	keywords := make([]string, len(ranked))
	for i, r := range ranked {
		keywords[i] = r.word
	}
	return keywords
}
