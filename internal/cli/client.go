package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — шаг плана из API.
type StepResponse struct {
	ID       string         `json:"id"`
	Class    string         `json:"class"`
	Type     string         `json:"type,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Undoable bool           `json:"undoable,omitempty"`
}

// BudgetResponse — бюджет run из API.
type BudgetResponse struct {
	MaxCost      float64 `json:"max_cost,omitempty"`
	SpentCost    float64 `json:"spent_cost"`
	MaxAttempts  int     `json:"max_attempts,omitempty"`
	AttemptsUsed int     `json:"attempts_used"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Plan       []StepResponse `json:"plan"`
	Cursor     int            `json:"cursor"`
	SLO        string         `json:"slo"`
	Variant    string         `json:"variant,omitempty"`
	Replanned  bool           `json:"replanned,omitempty"`
	Budget     BudgetResponse `json:"budget"`
	Error      string         `json:"error,omitempty"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// RepairAttemptResponse — запись ремонтного трейла из API.
type RepairAttemptResponse struct {
	StepID    string `json:"step_id"`
	Phase     string `json:"phase"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// QueueStatsResponse — статистика worker pool из API.
type QueueStatsResponse struct {
	Queues []struct {
		Class  string `json:"class"`
		Depth  int    `json:"depth"`
		Leased int    `json:"leased"`
	} `json:"queues"`
	Workers int `json:"workers"`
	Leases  int `json:"leases"`
}

// BreakerResponse — состояние breaker'а из API.
type BreakerResponse struct {
	FailureClass        string  `json:"failure_class"`
	State               string  `json:"state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	OpenedAt            string  `json:"opened_at,omitempty"`
	CooldownSec         float64 `json:"cooldown_sec"`
}

// CanaryMetricsResponse — агрегат одного варианта из API.
type CanaryMetricsResponse struct {
	Variant     string  `json:"variant"`
	Samples     int     `json:"samples"`
	SuccessRate float64 `json:"success_rate"`
	MeanCost    float64 `json:"mean_cost"`
	MeanLatency int64   `json:"mean_latency"`
}

// CanarySummaryResponse — итог canary-сравнения из API.
type CanarySummaryResponse struct {
	Baseline       CanaryMetricsResponse `json:"baseline"`
	Canary         CanaryMetricsResponse `json:"canary"`
	Recommendation string                `json:"recommendation"`
	Reason         string                `json:"reason,omitempty"`
	EvaluatedAt    string                `json:"evaluated_at"`
}

// ChaosEventResponse — одна chaos-инъекция из API.
type ChaosEventResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	TaskID     string `json:"target_task_id"`
	Recovered  bool   `json:"recovered"`
	InjectedAt string `json:"injected_at"`
}

// ChaosSummaryResponse — сводка chaos-движка из API.
type ChaosSummaryResponse struct {
	Enabled   bool                 `json:"enabled"`
	Injected  int                  `json:"injected"`
	Recovered int                  `json:"recovered"`
	Expired   int                  `json:"expired"`
	Active    int                  `json:"active"`
	Events    []ChaosEventResponse `json:"events,omitempty"`
}

// --- Request types ---

// StepRequest — шаг плана в запросе.
type StepRequest struct {
	ID       string         `json:"id"`
	Class    string         `json:"class"`
	Type     string         `json:"type,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Undoable bool           `json:"undoable,omitempty"`
}

// BudgetRequest — лимиты run в запросе.
type BudgetRequest struct {
	MaxCost     float64 `json:"max_cost,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty"`
	MaxTimeSec  int     `json:"max_time_sec,omitempty"`
}

// SubmitRunRequest — запуск плана сборки.
type SubmitRunRequest struct {
	Plan   []StepRequest `json:"plan"`
	Budget BudgetRequest `json:"budget"`
	SLO    string        `json:"slo,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Forgeline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Runs ---

// SubmitRun отправляет план сборки и запускает run.
func (c *Client) SubmitRun(req SubmitRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs", req, &run)
	return &run, err
}

// ListRuns возвращает список runs.
func (c *Client) ListRuns(limit int) ([]RunResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) error {
	return c.post("/api/v1/runs/"+id+"/cancel", nil, nil)
}

// Timeline возвращает ремонтный трейл run.
func (c *Client) Timeline(id string) ([]RepairAttemptResponse, error) {
	var attempts []RepairAttemptResponse
	err := c.list("/api/v1/runs/"+id+"/timeline", nil, &attempts)
	return attempts, err
}

// --- Management surface ---

// QueueStats возвращает статистику worker pool.
func (c *Client) QueueStats() (*QueueStatsResponse, error) {
	var stats QueueStatsResponse
	err := c.get("/api/v1/stats/queues", &stats)
	return &stats, err
}

// Breakers возвращает состояние всех circuit breakers.
func (c *Client) Breakers() ([]BreakerResponse, error) {
	var breakers []BreakerResponse
	err := c.list("/api/v1/stats/breakers", nil, &breakers)
	return breakers, err
}

// CanarySummary возвращает canary-сравнение за окно.
func (c *Client) CanarySummary(window string) (*CanarySummaryResponse, error) {
	path := "/api/v1/canary/summary"
	if window != "" {
		params := url.Values{}
		params.Set("window", window)
		path = path + "?" + params.Encode()
	}

	var summary CanarySummaryResponse
	err := c.get(path, &summary)
	return &summary, err
}

// ChaosSummary возвращает сводку chaos-инъекций.
func (c *Client) ChaosSummary() (*ChaosSummaryResponse, error) {
	var summary ChaosSummaryResponse
	err := c.get("/api/v1/chaos/summary", &summary)
	return &summary, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
