package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationsWindow(t *testing.T) {
	c := NewConversations(3)

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		c.AddTurn("s1", q, "a")
	}

	recent := c.Recent("s1", 10)
	assert.Len(t, recent, 3)
	assert.Equal(t, "q2", recent[0].Query)
	assert.Equal(t, "q4", recent[2].Query)
}

func TestConversationsEnhance(t *testing.T) {
	c := NewConversations(5)

	// 无历史时原样返回
	assert.Equal(t, "follow up", c.Enhance("s1", "follow up"))

	c.AddTurn("s1", "what is kubernetes", "")
	c.AddTurn("s1", "how does it scale", "")

	enhanced := c.Enhance("s1", "and its storage?")
	assert.Equal(t, "what is kubernetes how does it scale and its storage?", enhanced)
}

func TestConversationsSessionsIsolated(t *testing.T) {
	c := NewConversations(5)
	c.AddTurn("s1", "q1", "")

	assert.Empty(t, c.Recent("s2", 5))
	assert.Equal(t, "fresh", c.Enhance("s2", "fresh"))
}

func TestConversationsClear(t *testing.T) {
	c := NewConversations(5)
	c.AddTurn("s1", "q1", "")
	c.Clear("s1")
	assert.Empty(t, c.Recent("s1", 5))
}

func TestConversationsEmptySessionIgnored(t *testing.T) {
	c := NewConversations(5)
	c.AddTurn("", "q", "a")
	assert.Empty(t, c.Recent("", 5))
}
