package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkoresh/forgeline/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor — executor для task типа "http".
//
// Вызывает внешний сервис (LLM-гейтвей, tool-сервис) на основе
// конфигурации из task.Payload.
//
// Config (из task.Payload):
//   - method (string): HTTP-метод. Default: POST
//   - url (string): URL сервиса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Outputs:
//   - status_code (int): HTTP-код ответа
//   - body (any): тело ответа (JSON или строка)
//
// Классификация отказов:
//   - сетевая ошибка / таймаут → error (TRANSIENT у вызывающего)
//   - HTTP 5xx → TRANSIENT (сервис нездоров, имеет смысл retry)
//   - HTTP 4xx → CORRECTABLE (запрос некорректен, нужен patch)
type HTTPExecutor struct {
	// Client — опциональный http.Client (nil = клиент по умолчанию).
	Client *http.Client
}

// Execute выполняет HTTP-вызов внешнего сервиса.
func (e *HTTPExecutor) Execute(ctx context.Context, task *domain.Task) (*ExecResult, error) {
	method := getString(task.Payload, "method", http.MethodPost)
	url := getString(task.Payload, "url", "")
	if url == "" {
		return &ExecResult{
			FailureClass: domain.FailureCorrectable,
			Error:        "url is required",
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(task.Payload))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := task.Payload["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return &ExecResult{
				FailureClass: domain.FailureCorrectable,
				Error:        fmt.Sprintf("marshal body: %v", err),
			}, nil
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return &ExecResult{
			FailureClass: domain.FailureCorrectable,
			Error:        fmt.Sprintf("create request: %v", err),
		}, nil
	}

	setHeaders(req, task.Payload)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.Client
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	outputs := buildOutputs(resp, respBody)

	switch {
	case resp.StatusCode >= 500:
		return &ExecResult{
			Outputs:      outputs,
			FailureClass: domain.FailureTransient,
			Error:        fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}, nil
	case resp.StatusCode >= 400:
		return &ExecResult{
			Outputs:      outputs,
			FailureClass: domain.FailureCorrectable,
			Error:        fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}, nil
	}

	return &ExecResult{Outputs: outputs}, nil
}

// buildOutputs формирует outputs из HTTP-ответа.
func buildOutputs(resp *http.Response, body []byte) map[string]any {
	// Парсим body: пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsedBody,
	}
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут из payload.
func getTimeout(payload map[string]any) time.Duration {
	if val, ok := payload["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultHTTPTimeout
}

// setHeaders устанавливает заголовки из payload.
func setHeaders(req *http.Request, payload map[string]any) {
	headers, ok := payload["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
