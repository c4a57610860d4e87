// Package reasoning 实现检索增强的思维树推理：
// 逐层生成候选思路，为每条思路检索支撑材料并评分，
// 用束搜索保留最优分支直至得到高置信度回答。
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/retrieval"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🌳 思维树
// =============================================================================

// 每条思路检索的支撑块数量
const thoughtTopK = 3

// 提前终止的置信度阈值
const earlyExitScore = 0.9

// Thought 树中的一个节点。
type Thought struct {
	ID      string              `json:"id"`
	Depth   int                 `json:"depth"`
	Content string              `json:"content"`
	Score   float64             `json:"score"`
	Sources []types.ScoredChunk `json:"sources,omitempty"`
}

// Result 一次思维树推理的产出。
type Result struct {
	Query       string              `json:"query"`
	FinalAnswer string              `json:"final_answer"`
	Confidence  float64             `json:"confidence"`
	Steps       []Thought           `json:"steps"`
	Sources     []types.ScoredChunk `json:"sources,omitempty"`
	TotalTokens int                 `json:"total_tokens"`
	Elapsed     time.Duration       `json:"elapsed"`
}

// TreeOfThought 检索增强的思维树推理器。
type TreeOfThought struct {
	provider llm.Provider
	engine   *retrieval.Engine
	cfg      config.ReasoningConfig
	model    string
	logger   *zap.Logger
}

// NewTreeOfThought creates a reasoner backed by an LLM provider and the
// retrieval engine.
func NewTreeOfThought(provider llm.Provider, engine *retrieval.Engine, cfg config.ReasoningConfig, model string, logger *zap.Logger) *TreeOfThought {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BranchingFactor <= 0 {
		cfg.BranchingFactor = 3
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &TreeOfThought{
		provider: provider,
		engine:   engine,
		cfg:      cfg,
		model:    model,
		logger:   logger.With(zap.String("component", "reasoning")),
	}
}

// Execute 对查询执行思维树推理。
func (t *TreeOfThought) Execute(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	result := &Result{Query: query}

	currentLevel, tokens, err := t.generateThoughts(ctx, query, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate initial thoughts: %w", err)
	}
	result.TotalTokens += tokens

	for depth := 0; depth < t.cfg.MaxDepth && len(currentLevel) > 0; depth++ {
		t.logger.Debug("思维树扩展",
			zap.Int("depth", depth),
			zap.Int("branches", len(currentLevel)))

		// 为每条思路检索支撑材料并评分
		evalTokens := t.evaluateThoughts(ctx, query, currentLevel)
		result.TotalTokens += evalTokens

		selected := t.selectTopBranches(currentLevel, t.cfg.BeamWidth)
		if len(selected) == 0 {
			break
		}

		// 高置信度分支直接作为最终回答
		for _, s := range selected {
			if s.Score >= earlyExitScore {
				result.Steps = append(result.Steps, s)
				result.FinalAnswer = s.Content
				result.Confidence = s.Score
				result.Sources = mergeSources(result.Steps)
				result.Elapsed = time.Since(start)
				return result, nil
			}
		}

		var nextLevel []Thought
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, branch := range selected {
			result.Steps = append(result.Steps, branch)
			wg.Add(1)
			go func(b Thought) {
				defer wg.Done()
				children, childTokens, err := t.generateThoughts(ctx, query, &b, b.Depth+1)
				if err != nil {
					t.logger.Warn("生成子思路失败", zap.Error(err))
					return
				}
				mu.Lock()
				nextLevel = append(nextLevel, children...)
				result.TotalTokens += childTokens
				mu.Unlock()
			}(branch)
		}
		wg.Wait()
		currentLevel = nextLevel
	}

	// 达到最大深度：取剩余分支中的最优者
	if len(currentLevel) > 0 {
		t.evaluateThoughts(ctx, query, currentLevel)
		if best := t.selectTopBranches(currentLevel, 1); len(best) > 0 {
			result.Steps = append(result.Steps, best[0])
			result.FinalAnswer = best[0].Content
			result.Confidence = best[0].Score
		}
	}
	if result.FinalAnswer == "" && len(result.Steps) > 0 {
		last := result.Steps[len(result.Steps)-1]
		result.FinalAnswer = last.Content
		result.Confidence = last.Score
	}

	result.Sources = mergeSources(result.Steps)
	result.Elapsed = time.Since(start)
	return result, nil
}

// generateThoughts 让 LLM 生成候选思路。
// JSON 解析失败时把整个回复当作一条思路。
func (t *TreeOfThought) generateThoughts(ctx context.Context, query string, parent *Thought, depth int) ([]Thought, int, error) {
	prompt := fmt.Sprintf(`Question: %s

Generate %d different approaches or partial answers to this question.
Format your response as a JSON array:
[{"thought": "approach 1"}, {"thought": "approach 2"}]`, query, t.cfg.BranchingFactor)

	if parent != nil {
		prompt = fmt.Sprintf(`Question: %s

Previous reasoning step: %s

Generate %d different next steps that refine or extend the previous step.
Format as a JSON array: [{"thought": "next step"}]`, query, parent.Content, t.cfg.BranchingFactor)
	}

	resp, err := t.provider.Completion(ctx, &llm.ChatRequest{
		Model:       t.model,
		Messages:    []types.Message{types.NewUserMessage(prompt)},
		Temperature: 0.8,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, 0, err
	}

	tokens := resp.Usage.TotalTokens
	content := resp.Text()

	var parsed []struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || len(parsed) == 0 {
		return []Thought{{
			ID:      fmt.Sprintf("thought_%d", time.Now().UnixNano()),
			Depth:   depth,
			Content: strings.TrimSpace(content),
		}}, tokens, nil
	}

	thoughts := make([]Thought, len(parsed))
	for i, p := range parsed {
		thoughts[i] = Thought{
			ID:      fmt.Sprintf("thought_%d_%d", time.Now().UnixNano(), i),
			Depth:   depth,
			Content: p.Thought,
		}
	}
	return thoughts, tokens, nil
}

// evaluateThoughts 为每条思路检索支撑块并打分。
func (t *TreeOfThought) evaluateThoughts(ctx context.Context, query string, thoughts []Thought) int {
	if !t.cfg.ParallelEval {
		total := 0
		for i := range thoughts {
			total += t.evaluateSingle(ctx, query, &thoughts[i])
		}
		return total
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	totalTokens := 0
	for i := range thoughts {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			tokens := t.evaluateSingle(ctx, query, &thoughts[idx])
			mu.Lock()
			totalTokens += tokens
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	return totalTokens
}

// evaluateSingle 检索支撑材料并让 LLM 自评 0~1 分。
// 评分请求失败或输出不可解析时给默认分 0.5。
func (t *TreeOfThought) evaluateSingle(ctx context.Context, query string, thought *Thought) int {
	if t.engine != nil {
		sources, err := t.engine.RetrieveTopK(ctx, thought.Content, thoughtTopK)
		if err != nil {
			t.logger.Warn("思路检索失败", zap.Error(err))
		} else {
			thought.Sources = sources
		}
	}

	var support strings.Builder
	for _, sc := range thought.Sources {
		support.WriteString("- ")
		support.WriteString(sc.Chunk.Content)
		support.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Question: %s
Proposed reasoning step: %s

Supporting evidence from the knowledge base:
%s
Rate how likely this step leads to a correct, well-grounded answer.
Respond with only a number between 0.0 and 1.0`, query, thought.Content, support.String())

	resp, err := t.provider.Completion(ctx, &llm.ChatRequest{
		Model:       t.model,
		Messages:    []types.Message{types.NewUserMessage(prompt)},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		thought.Score = 0.5
		return 0
	}

	var score float64
	if _, err := fmt.Sscanf(strings.TrimSpace(resp.Text()), "%f", &score); err != nil || score < 0 || score > 1 {
		score = 0.5
	}
	thought.Score = score
	return resp.Usage.TotalTokens
}

// selectTopBranches 按剪枝阈值过滤后取分数最高的 n 条。
func (t *TreeOfThought) selectTopBranches(thoughts []Thought, n int) []Thought {
	var filtered []Thought
	for _, th := range thoughts {
		if th.Score >= t.cfg.PruneThreshold {
			filtered = append(filtered, th)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	if len(filtered) > n {
		return filtered[:n]
	}
	return filtered
}

// mergeSources 合并各步骤的支撑块并按块 ID 去重。
func mergeSources(steps []Thought) []types.ScoredChunk {
	seen := make(map[string]bool)
	var merged []types.ScoredChunk
	for _, step := range steps {
		for _, sc := range step.Sources {
			if !seen[sc.Chunk.ID] {
				seen[sc.Chunk.ID] = true
				merged = append(merged, sc)
			}
		}
	}
	return merged
}
