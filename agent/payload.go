package agent

import (
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 📦 载荷读取辅助
// =============================================================================
// 消息在进程内传递，载荷里的领域对象保持原生类型。

// payloadDocuments 取 []types.Document 载荷字段。
func payloadDocuments(msg types.AgentMessage, key string) []types.Document {
	if msg.Payload == nil {
		return nil
	}
	docs, _ := msg.Payload[key].([]types.Document)
	return docs
}

// payloadChunks 取 []types.Chunk 载荷字段。
func payloadChunks(msg types.AgentMessage, key string) []types.Chunk {
	if msg.Payload == nil {
		return nil
	}
	chunks, _ := msg.Payload[key].([]types.Chunk)
	return chunks
}

// payloadScoredChunks 取 []types.ScoredChunk 载荷字段。
func payloadScoredChunks(msg types.AgentMessage, key string) []types.ScoredChunk {
	if msg.Payload == nil {
		return nil
	}
	results, _ := msg.Payload[key].([]types.ScoredChunk)
	return results
}

// payloadStrings 取字符串切片载荷字段，兼容 []any 形式。
func payloadStrings(msg types.AgentMessage, key string) []string {
	if msg.Payload == nil {
		return nil
	}
	switch v := msg.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// payloadBool 取布尔载荷字段。
func payloadBool(msg types.AgentMessage, key string) bool {
	if msg.Payload == nil {
		return false
	}
	b, _ := msg.Payload[key].(bool)
	return b
}

// payloadInt 取整型载荷字段，兼容 float64（JSON 解码产物）。
func payloadInt(msg types.AgentMessage, key string) int {
	if msg.Payload == nil {
		return 0
	}
	switch v := msg.Payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
