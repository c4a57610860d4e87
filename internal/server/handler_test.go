package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

// fakeExecutor 记录最后一次调用并返回预设结果。
type fakeExecutor struct {
	requestType string
	payload     map[string]any
	result      map[string]any
	err         error
}

func (f *fakeExecutor) Execute(ctx context.Context, requestType string, payload map[string]any) (map[string]any, error) {
	f.requestType = requestType
	f.payload = payload
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestHandler(exec *fakeExecutor) http.Handler {
	return NewHandler(exec, nil, zap.NewNop()).Router()
}

func TestHandlerHealth(t *testing.T) {
	router := newTestHandler(&fakeExecutor{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandlerQuery(t *testing.T) {
	exec := &fakeExecutor{result: map[string]any{"result": map[string]any{"answer": "42"}}}
	router := newTestHandler(exec)

	body := `{"query":"what is go","session_id":"s1","top_k":5}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "query", exec.requestType)
	assert.Equal(t, "what is go", exec.payload["query"])
	assert.Equal(t, "s1", exec.payload["session_id"])
	assert.Equal(t, 5, exec.payload["top_k"])
}

func TestHandlerQueryValidation(t *testing.T) {
	router := newTestHandler(&fakeExecutor{})

	// 缺少 query
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 非 POST
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerQueryErrorMapping(t *testing.T) {
	exec := &fakeExecutor{err: types.NewError(types.ErrResponseTimeout, "agent did not respond")}
	router := newTestHandler(exec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query",
		strings.NewReader(`{"query":"x"}`)))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RESPONSE_TIMEOUT", resp["code"])
}

func TestHandlerAddDocuments(t *testing.T) {
	exec := &fakeExecutor{result: map[string]any{"collected": 1, "staged": true}}
	router := newTestHandler(exec)

	body := `{"documents":[{"id":"d1","content":"hello"}],"skip_staging":true}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "collect", exec.requestType)
	assert.Equal(t, true, exec.payload["skip_staging"])

	docs := exec.payload["documents"].([]types.Document)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
}

func TestHandlerAddDocumentsEmpty(t *testing.T) {
	router := newTestHandler(&fakeExecutor{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeleteDocument(t *testing.T) {
	exec := &fakeExecutor{result: map[string]any{"removed": 3}}
	router := newTestHandler(exec)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delete_document", exec.requestType)
	assert.Equal(t, "doc-42", exec.payload["document_id"])
}

func TestHandlerStagedLifecycle(t *testing.T) {
	exec := &fakeExecutor{result: map[string]any{"count": 2}}
	router := newTestHandler(exec)

	// 列出暂存块
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/staged", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "list_staged", exec.requestType)

	// 晋升指定块
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/staged",
		strings.NewReader(`{"action":"promote","ids":["c1","c2"]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "promote", exec.requestType)
	assert.Equal(t, []string{"c1", "c2"}, exec.payload["ids"])

	// 丢弃全部
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/staged",
		strings.NewReader(`{"action":"discard"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "discard_staged", exec.requestType)

	// 未知动作
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/staged",
		strings.NewReader(`{"action":"launch"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerMetricsEndpoint(t *testing.T) {
	router := newTestHandler(&fakeExecutor{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
