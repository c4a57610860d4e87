package generation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🔖 引用标注
// =============================================================================

// snippetRunes 引用摘要的最大字符数
const snippetRunes = 120

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// CitationBuilder 为检索结果编号、构造上下文块并生成参考来源。
type CitationBuilder struct{}

// BuildContext 把块拼成带 [n] 编号的上下文文本。
func (b *CitationBuilder) BuildContext(chunks []types.ScoredChunk) string {
	var sb strings.Builder
	for i, sc := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, sc.Chunk.Content)
	}
	return sb.String()
}

// Citations 为每个块生成引用条目，编号与 BuildContext 一致。
func (b *CitationBuilder) Citations(chunks []types.ScoredChunk) []types.Citation {
	citations := make([]types.Citation, len(chunks))
	for i, sc := range chunks {
		source, _ := sc.Chunk.Metadata["source"].(string)
		citations[i] = types.Citation{
			Marker:  i + 1,
			ChunkID: sc.Chunk.ID,
			Source:  source,
			Snippet: snippet(sc.Chunk.Content),
		}
	}
	return citations
}

// UsedMarkers 返回回答中实际引用的编号（升序去重）。
func (b *CitationBuilder) UsedMarkers(answer string, max int) []int {
	seen := make(map[int]bool)
	var markers []int
	for _, m := range markerPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > max || seen[n] {
			continue
		}
		seen[n] = true
		markers = append(markers, n)
	}
	// findAll 按出现顺序返回，引用区要求编号升序
	for i := 1; i < len(markers); i++ {
		for j := i; j > 0 && markers[j] < markers[j-1]; j-- {
			markers[j], markers[j-1] = markers[j-1], markers[j]
		}
	}
	return markers
}

// AppendReferences 把被引用的来源追加到回答末尾。
// 回答没有任何 [n] 标记时原样返回。
func (b *CitationBuilder) AppendReferences(answer string, citations []types.Citation) string {
	used := b.UsedMarkers(answer, len(citations))
	if len(used) == 0 {
		return answer
	}

	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\nReferences:\n")
	for _, marker := range used {
		c := citations[marker-1]
		if c.Source != "" {
			fmt.Fprintf(&sb, "[%d] %s — %s\n", c.Marker, c.Source, c.Snippet)
		} else {
			fmt.Fprintf(&sb, "[%d] %s\n", c.Marker, c.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// snippet 截取内容前若干字符作为摘要。
func snippet(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "..."
}
