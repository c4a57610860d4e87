package llm

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kbflow/kbflow/types"
)

// MapHTTPError 映射 HTTP 状态到统一错误。
func MapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = types.ErrAuthentication
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusNotFound:
		code = types.ErrModelNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrTimeout
		retryable = true
	}

	return &types.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// ReadErrorMessage 尽力从上游错误响应体中提取可读信息。
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "upstream error"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return string(data)
}

// ChooseModel 从请求或默认值中选择模型。
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
