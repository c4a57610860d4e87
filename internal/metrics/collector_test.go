package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.agentRequestsTotal)
	assert.NotNil(t, collector.retrievalDuration)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.storeChunks)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/v1/query", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/v1/query", 500, 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Equal(t, 2, count) // 2xx 和 5xx 两个序列
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("openai", "gpt-4o-mini", "success", 500*time.Millisecond, 100, 50)

	assert.Greater(t, testutil.CollectAndCount(collector.llmRequestsTotal), 0)
	// prompt 与 completion 两个 token 序列
	assert.Equal(t, 2, testutil.CollectAndCount(collector.llmTokensUsed))
}

func TestCollector_RecordAgentRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAgentRequest("retrieval", "retrieve", "success", 10*time.Millisecond)
	collector.RecordAgentRequest("retrieval", "retrieve", "error", 10*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.agentRequestsTotal))
}

func TestCollector_RecordRetrieval(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRetrieval("hybrid", 20*time.Millisecond, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.retrievalDuration), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.retrievalResults), 0)
}

func TestCollector_CacheHitMiss(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("retrieval")
	collector.RecordCacheHit("retrieval")
	collector.RecordCacheMiss("retrieval")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheHits.WithLabelValues("retrieval")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("retrieval")))
}

func TestCollector_StoreGauges(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetStoreChunks("memory", 12, 3)
	collector.SetCatalogDocuments("indexed", 4)

	assert.Equal(t, float64(12), testutil.ToFloat64(collector.storeChunks.WithLabelValues("memory")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.stagedChunks.WithLabelValues("memory")))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.catalogRecords.WithLabelValues("indexed")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(99))
}
