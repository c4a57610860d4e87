package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityCheckerPasses(t *testing.T) {
	q := NewQualityChecker(10)
	a := q.Assess("what are goroutines", "Goroutines are lightweight threads managed by the Go runtime.")
	assert.True(t, a.Passed)
	assert.Empty(t, a.Reasons)
}

func TestQualityCheckerShortAnswer(t *testing.T) {
	q := NewQualityChecker(50)
	a := q.Assess("what are goroutines", "goroutines: threads")
	assert.False(t, a.Passed)
	assert.Contains(t, a.Reasons, "answer too short")
}

func TestQualityCheckerRefusal(t *testing.T) {
	q := NewQualityChecker(10)
	a := q.Assess("what are goroutines", "I don't know anything about goroutines, sorry about that.")
	assert.Contains(t, a.Reasons, "refusal phrase detected")
}

func TestQualityCheckerRefusalZH(t *testing.T) {
	q := NewQualityChecker(5)
	a := q.Assess("goroutine 是什么", "根据提供的上下文无法回答该问题。")
	assert.Contains(t, a.Reasons, "refusal phrase detected")
}

func TestQualityCheckerLowCoverage(t *testing.T) {
	q := NewQualityChecker(10)
	a := q.Assess("kubernetes networking policies", "The weather is nice today and nothing else matters here.")
	assert.Contains(t, a.Reasons, "low query term coverage")
}

func TestTermCoverage(t *testing.T) {
	assert.Equal(t, 1.0, termCoverage("", "anything"))
	assert.Equal(t, 0.5, termCoverage("alpha beta", "alpha only"))
}
