package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// DefinitionResponse — definition из API.
type DefinitionResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Definition DefinitionSpec `json:"definition"`
	CreatedAt  string         `json:"created_at"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// DefinitionSpec — граф задач definition.
type DefinitionSpec struct {
	Name       string              `json:"name"`
	StartTasks []string            `json:"start_tasks,omitempty"`
	Tasks      map[string]TaskSpec `json:"tasks"`
}

// TaskSpec — задача внутри definition.
type TaskSpec struct {
	Executor     string         `json:"executor"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// Finished — run в терминальном статусе.
func (r RunResponse) Finished() bool {
	return r.Status == "SUCCESS" || r.Status == "FAILURE"
}

// TaskInstanceResponse — попытка выполнения задачи.
type TaskInstanceResponse struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	TaskName    string         `json:"task_name"`
	Executor    string         `json:"executor"`
	Status      string         `json:"status"`
	DispatchID  string         `json:"dispatch_id,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

// Error возвращает result.error упавшей задачи.
func (t TaskInstanceResponse) Error() string {
	if msg, ok := t.Result["error"].(string); ok {
		return msg
	}
	return ""
}

// RunDetailsResponse — run и история его задач.
type RunDetailsResponse struct {
	Run   RunResponse            `json:"run_details"`
	Tasks []TaskInstanceResponse `json:"task_history"`
}

// RunStatusResponse — краткий статус run.
type RunStatusResponse struct {
	RunID  string            `json:"run_id"`
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Tasks  map[string]string `json:"tasks"`
}

// StandaloneTaskResponse — standalone задача из API.
type StandaloneTaskResponse struct {
	ID            string         `json:"id"`
	TaskName      string         `json:"task_name"`
	Executor      string         `json:"executor"`
	DefaultParams map[string]any `json:"default_params,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// DispatchResponse — ответ на запуск standalone задачи.
type DispatchResponse struct {
	RunID      string `json:"run_id"`
	DispatchID string `json:"dispatch_id"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	DefinitionID string `json:"definition_id,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	CronExpr     string `json:"cron_expr,omitempty"`
	IntervalSec  int    `json:"interval_sec,omitempty"`
	Timezone     string `json:"timezone"`
	Enabled      bool   `json:"enabled"`
	NextDueAt    string `json:"next_due_at,omitempty"`
	LastRunAt    string `json:"last_run_at,omitempty"`
	LastRunID    string `json:"last_run_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Target возвращает цель schedule в виде "definition/<id>" или "task/<id>".
func (s ScheduleResponse) Target() string {
	if s.TaskID != "" {
		return "task/" + s.TaskID
	}
	return "definition/" + s.DefinitionID
}

// Rule возвращает cron или интервал.
func (s ScheduleResponse) Rule() string {
	if s.CronExpr != "" {
		return s.CronExpr + " (" + s.Timezone + ")"
	}
	if s.IntervalSec > 0 {
		return "every " + (time.Duration(s.IntervalSec) * time.Second).String()
	}
	return ""
}

// --- Request types ---

// CreateTaskRequest — создание standalone задачи.
type CreateTaskRequest struct {
	TaskName      string         `json:"task_name"`
	Executor      string         `json:"executor,omitempty"`
	DefaultParams map[string]any `json:"default_params,omitempty"`
}

// RunTaskRequest — переопределение параметров запуска.
type RunTaskRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	DefinitionID string
	Status       string
	Limit        int
}

// ListSchedulesOpts — параметры фильтрации schedules.
type ListSchedulesOpts struct {
	DefinitionID string
	TaskID       string
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
	Error APIError `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Task    string `json:"task,omitempty"`
		Field   string `json:"field,omitempty"`
		Message string `json:"message"`
	} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		switch {
		case d.Task != "":
			parts[i] = fmt.Sprintf("%s.%s: %s", d.Task, d.Field, d.Message)
		case d.Field != "":
			parts[i] = d.Field + ": " + d.Message
		default:
			parts[i] = d.Message
		}
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
}

// --- Client ---

// Client — HTTP-клиент для ZuriFlow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Definitions ---

// ListDefinitions возвращает все definitions.
func (c *Client) ListDefinitions() ([]DefinitionResponse, error) {
	var defs []DefinitionResponse
	err := c.list("/api/v1/definitions", nil, &defs)
	return defs, err
}

// CreateDefinition создаёт definition из JSON документа.
func (c *Client) CreateDefinition(spec json.RawMessage) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.post("/api/v1/definitions", spec, &def)
	return &def, err
}

// GetDefinition возвращает definition по ID.
func (c *Client) GetDefinition(id string) (*DefinitionResponse, error) {
	var def DefinitionResponse
	err := c.get("/api/v1/definitions/"+id, &def)
	return &def, err
}

// DeleteDefinition удаляет definition.
func (c *Client) DeleteDefinition(id string) error {
	return c.delete("/api/v1/definitions/" + id)
}

// --- Runs ---

// StartRun запускает run definition.
func (c *Client) StartRun(definitionID string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/definitions/"+definitionID+"/runs", nil, &run)
	return &run, err
}

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.DefinitionID != "" {
		params.Set("definition_id", opts.DefinitionID)
	}
	if opts.Status != "" {
		params.Set("status", strings.ToUpper(opts.Status))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run вместе с историей задач.
func (c *Client) GetRun(id string) (*RunDetailsResponse, error) {
	var details RunDetailsResponse
	err := c.get("/api/v1/runs/"+id, &details)
	return &details, err
}

// GetRunStatus возвращает краткий статус run.
func (c *Client) GetRunStatus(id string) (*RunStatusResponse, error) {
	var status RunStatusResponse
	err := c.get("/api/v1/runs/"+id+"/status", &status)
	return &status, err
}

// --- Standalone tasks ---

// ListTasks возвращает standalone задачи.
func (c *Client) ListTasks() ([]StandaloneTaskResponse, error) {
	var tasks []StandaloneTaskResponse
	err := c.list("/api/v1/tasks", nil, &tasks)
	return tasks, err
}

// CreateTask создаёт standalone задачу.
func (c *Client) CreateTask(req CreateTaskRequest) (*StandaloneTaskResponse, error) {
	var task StandaloneTaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// RunTask запускает standalone задачу вне расписания.
func (c *Client) RunTask(id string, params map[string]any) (*DispatchResponse, error) {
	var out DispatchResponse
	err := c.post("/api/v1/tasks/"+id+"/run", RunTaskRequest{Params: params}, &out)
	return &out, err
}

// ScheduleTask создаёт schedule для standalone задачи.
func (c *Client) ScheduleTask(id string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/tasks/"+id+"/schedule", req, &schedule)
	return &schedule, err
}

// --- Schedules ---

// ListSchedules возвращает schedules.
func (c *Client) ListSchedules(opts ListSchedulesOpts) ([]ScheduleResponse, error) {
	params := url.Values{}
	if opts.DefinitionID != "" {
		params.Set("definition_id", opts.DefinitionID)
	}
	if opts.TaskID != "" {
		params.Set("task_id", opts.TaskID)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для definition.
func (c *Client) CreateSchedule(definitionID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/definitions/"+definitionID+"/schedules", req, &schedule)
	return &schedule, err
}

// PauseSchedule выключает schedule.
func (c *Client) PauseSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules/"+id+"/pause", nil, &schedule)
	return &schedule, err
}

// ResumeSchedule включает schedule.
func (c *Client) ResumeSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules/"+id+"/resume", nil, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
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

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
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
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
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

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	er.Error.Status = resp.StatusCode
	return &er.Error
}
