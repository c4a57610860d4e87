package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🚏 管理接口路由
// =============================================================================

// Executor 执行一次编排请求。由 agent.Orchestrator 实现。
type Executor interface {
	Execute(ctx context.Context, requestType string, payload map[string]any) (map[string]any, error)
}

// Handler 知识库的薄 HTTP 管理面：查询、文档增删、暂存区管理。
type Handler struct {
	executor  Executor
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewHandler 创建管理接口处理器。collector 可为 nil。
func NewHandler(executor Executor, collector *metrics.Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		executor:  executor,
		collector: collector,
		logger:    logger.With(zap.String("component", "http_handler")),
	}
}

// Router 组装全部路由。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/v1/query", h.instrument("/v1/query", h.handleQuery))
	mux.HandleFunc("/v1/documents", h.instrument("/v1/documents", h.handleDocuments))
	mux.HandleFunc("/v1/documents/", h.instrument("/v1/documents/:id", h.handleDocumentByID))
	mux.HandleFunc("/v1/staged", h.instrument("/v1/staged", h.handleStaged))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// instrument 包装处理函数，记录请求耗时指标。
func (h *Handler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if h.collector != nil {
			h.collector.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
		}
	}
}

// statusRecorder 捕获写出的状态码。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// =============================================================================
// 🎯 各端点实现
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// queryRequest POST /v1/query 请求体
type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	UseToT    bool   `json:"use_tot,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	payload := map[string]any{"query": req.Query}
	if req.SessionID != "" {
		payload["session_id"] = req.SessionID
	}
	if req.TopK > 0 {
		payload["top_k"] = req.TopK
	}
	if req.UseToT {
		payload["use_tot"] = true
	}

	result, err := h.executor.Execute(r.Context(), "query", payload)
	if err != nil {
		h.writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// documentsRequest POST /v1/documents 请求体：内联文档或本地路径
type documentsRequest struct {
	Documents   []types.Document `json:"documents,omitempty"`
	Paths       []string         `json:"paths,omitempty"`
	SkipStaging bool             `json:"skip_staging,omitempty"`
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req documentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 && len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "documents or paths required")
		return
	}

	payload := map[string]any{}
	if len(req.Documents) > 0 {
		payload["documents"] = req.Documents
	}
	if len(req.Paths) > 0 {
		payload["paths"] = req.Paths
	}
	if req.SkipStaging {
		payload["skip_staging"] = true
	}

	result, err := h.executor.Execute(r.Context(), "collect", payload)
	if err != nil {
		h.writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document id required")
		return
	}

	result, err := h.executor.Execute(r.Context(), "delete_document", map[string]any{"document_id": id})
	if err != nil {
		h.writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// stagedRequest POST /v1/staged 请求体：promote 或 discard 指定块
type stagedRequest struct {
	Action string   `json:"action"` // promote, discard
	IDs    []string `json:"ids,omitempty"`
}

func (h *Handler) handleStaged(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		result, err := h.executor.Execute(r.Context(), "list_staged", nil)
		if err != nil {
			h.writeExecError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case http.MethodPost:
		var req stagedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		payload := map[string]any{}
		if len(req.IDs) > 0 {
			payload["ids"] = req.IDs
		}

		var requestType string
		switch req.Action {
		case "promote":
			requestType = "promote"
		case "discard":
			requestType = "discard_staged"
		default:
			writeError(w, http.StatusBadRequest, "action must be promote or discard")
			return
		}

		result, err := h.executor.Execute(r.Context(), requestType, payload)
		if err != nil {
			h.writeExecError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// writeExecError 把编排错误映射到 HTTP 状态码。
func (h *Handler) writeExecError(w http.ResponseWriter, err error) {
	code := types.GetErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case types.ErrInvalidRequest, types.ErrUnknownRequest, types.ErrEmptyDocument:
		status = http.StatusBadRequest
	case types.ErrDocumentNotFound, types.ErrChunkNotFound:
		status = http.StatusNotFound
	case types.ErrRateLimited, types.ErrAgentBusy:
		status = http.StatusTooManyRequests
	case types.ErrTimeout, types.ErrResponseTimeout:
		status = http.StatusGatewayTimeout
	}

	h.logger.Warn("request failed",
		zap.String("code", string(code)),
		zap.Error(err))
	writeJSON(w, status, map[string]any{"error": err.Error(), "code": string(code)})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
