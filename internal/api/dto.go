package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
)

// Definition DTOs

// CreateDefinitionRequest — тело POST /api/v1/definitions.
type CreateDefinitionRequest = domain.DefinitionSpec

// DefinitionResponse — ответ с definition.
type DefinitionResponse struct {
	ID         uuid.UUID             `json:"id"`
	Name       string                `json:"name"`
	Definition domain.DefinitionSpec `json:"definition"`
	CreatedAt  time.Time             `json:"created_at"`

	// Warnings — проблемы, не мешающие сохранению (циклы).
	Warnings []string `json:"warnings,omitempty"`
}

// DefinitionFromDomain конвертирует domain.Definition в DefinitionResponse.
func DefinitionFromDomain(d domain.Definition) DefinitionResponse {
	return DefinitionResponse{
		ID:         d.ID,
		Name:       d.Name,
		Definition: d.Spec,
		CreatedAt:  d.CreatedAt,
	}
}

// normalizeExecutors подставляет script задачам без executor.
func normalizeExecutors(spec *domain.DefinitionSpec) {
	for name, task := range spec.Tasks {
		if task.Executor == "" {
			task.Executor = domain.ExecutorScript
			spec.Tasks[name] = task
		}
	}
}

// Run DTOs

// RunDetailsResponse — run и история его задач.
type RunDetailsResponse struct {
	Run   domain.Run            `json:"run_details"`
	Tasks []domain.TaskInstance `json:"task_history"`
}

// RunStatusResponse — краткий статус run.
type RunStatusResponse struct {
	RunID  uuid.UUID        `json:"run_id"`
	Status domain.RunStatus `json:"status"`
	Error  string           `json:"error,omitempty"`

	// Tasks — статус последнего instance каждой задачи.
	Tasks map[string]domain.TaskStatus `json:"tasks"`
}

// latestStatuses возвращает статус последнего instance каждой задачи.
// history упорядочена по started_at.
func latestStatuses(history []domain.TaskInstance) map[string]domain.TaskStatus {
	out := make(map[string]domain.TaskStatus, len(history))
	for _, ti := range history {
		out[ti.TaskName] = ti.Status
	}
	return out
}

// Standalone task DTOs

// CreateTaskRequest — тело POST /api/v1/tasks.
type CreateTaskRequest struct {
	TaskName      string              `json:"task_name"`
	Executor      domain.ExecutorKind `json:"executor"`
	DefaultParams map[string]any      `json:"default_params,omitempty"`
}

// RunTaskRequest — переопределения параметров для POST /api/v1/tasks/{id}/run.
type RunTaskRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	// Enabled — nil означает true.
	Enabled *bool `json:"enabled,omitempty"`
}

// toDomain строит schedule без цели.
func (req CreateScheduleRequest) toDomain(now time.Time) *domain.Schedule {
	enabled := req.Enabled == nil || *req.Enabled
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return &domain.Schedule{
		ID:          uuid.New(),
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    tz,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
