package generation

import (
	"strings"
)

// =============================================================================
// ✅ 回答质量检查
// =============================================================================

// refusalPhrases 常见的拒答/空答表述
var refusalPhrases = []string{
	"i don't know",
	"i do not know",
	"i cannot answer",
	"i can't answer",
	"as an ai",
	"无法回答",
	"我不知道",
	"没有相关信息",
}

// Assessment 一次质量评估的结果。
type Assessment struct {
	Score   float64  `json:"score"`
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
}

// QualityChecker 用启发式规则评估回答质量，
// 决定是否触发一次重新生成。
type QualityChecker struct {
	// MinAnswerLength 回答的最小字符数
	MinAnswerLength int
}

// NewQualityChecker creates a checker with the given minimum answer length.
func NewQualityChecker(minAnswerLength int) *QualityChecker {
	if minAnswerLength <= 0 {
		minAnswerLength = 20
	}
	return &QualityChecker{MinAnswerLength: minAnswerLength}
}

// Assess 评估回答：长度、拒答表述、查询词覆盖率。
// 分数低于 0.5 视为未通过。
func (q *QualityChecker) Assess(query, answer string) Assessment {
	a := Assessment{Score: 1.0, Passed: true}
	trimmed := strings.TrimSpace(answer)

	if len([]rune(trimmed)) < q.MinAnswerLength {
		a.Score -= 0.6
		a.Reasons = append(a.Reasons, "answer too short")
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			a.Score -= 0.4
			a.Reasons = append(a.Reasons, "refusal phrase detected")
			break
		}
	}

	if coverage := termCoverage(query, trimmed); coverage < 0.2 {
		a.Score -= 0.2
		a.Reasons = append(a.Reasons, "low query term coverage")
	}

	if a.Score < 0 {
		a.Score = 0
	}
	a.Passed = a.Score >= 0.5
	return a
}

// termCoverage 计算查询词在回答中出现的比例。
func termCoverage(query, answer string) float64 {
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) == 0 {
		return 1.0
	}

	lower := strings.ToLower(answer)
	matched := 0
	for _, term := range queryTerms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
