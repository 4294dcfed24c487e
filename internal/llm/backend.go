package llm

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	xerrors "Sailor-Bot/internal/errors"
)

// maxErrorBody 限制读取错误响应体的字节数。
const maxErrorBody = 4096

// StatusError 根据 HTTP 状态码对后端返回的错误进行分类，reason 取自响应体。
func StatusError(provider string, status int, body []byte) error {
	code, phrase := classifyStatus(status)
	return xerrors.New(code, fmt.Sprintf("%s %s", provider, phrase),
		xerrors.WithMetadata("provider", provider),
		xerrors.WithMetadata("status", strconv.Itoa(status)),
		xerrors.WithMetadata("reason", extractReason(status, body)))
}

// ReadStatusError 读取（有上限的）响应体并构造 StatusError。
func ReadStatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return StatusError(provider, resp.StatusCode, body)
}

// ConnectivityError 包装无法到达后端的传输层错误。
func ConnectivityError(provider string, err error) error {
	reason := err.Error()
	var urlErr *url.Error
	if stdErrors.As(err, &urlErr) {
		reason = urlErr.Err.Error()
	}
	return xerrors.Wrap(xerrors.CodeBackendConnectivity, err, provider+" could not be reached",
		xerrors.WithMetadata("provider", provider),
		xerrors.WithMetadata("reason", reason))
}

// MalformedResponse 表示后端返回了 2xx 但响应体无法使用。
func MalformedResponse(provider string, status int, cause error) error {
	return xerrors.Wrap(xerrors.CodeBackendStatus, cause, provider+" returned an unusable response",
		xerrors.WithMetadata("provider", provider),
		xerrors.WithMetadata("status", strconv.Itoa(status)),
		xerrors.WithMetadata("reason", cause.Error()))
}

func classifyStatus(status int) (xerrors.Code, string) {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return xerrors.CodeBackendAuthentication, "authentication failed"
	case status == http.StatusTooManyRequests:
		return xerrors.CodeBackendRateLimit, "rate limit exceeded"
	default:
		return xerrors.CodeBackendStatus, fmt.Sprintf("returned status %d", status)
	}
}

// extractReason 兼容常见的错误体格式：
// {"error":{"message":...}}、{"error":"..."}、[{"error":{...}}] 以及 {"message":...}。
func extractReason(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	raw := []byte(trimmed)
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			raw = list[0]
		}
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
				return plain
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}

	if len([]rune(trimmed)) > 200 {
		return string([]rune(trimmed)[:200]) + "..."
	}
	return trimmed
}
