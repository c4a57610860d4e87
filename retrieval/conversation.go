package retrieval

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// 💬 会话上下文
// =============================================================================

// Turn 一轮问答
type Turn struct {
	Query  string    `json:"query"`
	Answer string    `json:"answer,omitempty"`
	At     time.Time `json:"at"`
}

// Conversations 按会话 ID 维护最近的问答轮次，
// 用于把近期查询拼入当前查询做上下文增强。
type Conversations struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]Turn
}

// NewConversations creates a conversation manager keeping maxTurns per session.
func NewConversations(maxTurns int) *Conversations {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Conversations{
		maxTurns: maxTurns,
		sessions: make(map[string][]Turn),
	}
}

// AddTurn 记录一轮问答，超出窗口的最旧轮次被丢弃。
func (c *Conversations) AddTurn(sessionID, query, answer string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := append(c.sessions[sessionID], Turn{Query: query, Answer: answer, At: time.Now()})
	if len(turns) > c.maxTurns {
		turns = turns[len(turns)-c.maxTurns:]
	}
	c.sessions[sessionID] = turns
}

// Recent 返回最近的 n 轮问答（时间升序）。
func (c *Conversations) Recent(sessionID string, n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := c.sessions[sessionID]
	if n <= 0 || n > len(turns) {
		n = len(turns)
	}
	out := make([]Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}

// Enhance 把最近两轮的查询拼到当前查询前面，提升指代性追问的召回。
// 没有历史时原样返回。
func (c *Conversations) Enhance(sessionID, query string) string {
	recent := c.Recent(sessionID, 2)
	if len(recent) == 0 {
		return query
	}

	var sb strings.Builder
	for _, turn := range recent {
		sb.WriteString(turn.Query)
		sb.WriteString(" ")
	}
	sb.WriteString(query)
	return sb.String()
}

// Clear 清空指定会话。
func (c *Conversations) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}
