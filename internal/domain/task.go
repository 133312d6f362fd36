package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskInstance — запись об одной попытке выполнения задачи внутри run.
//
// Instance создаёт executor (begin) до начала работы и закрывает
// ровно один раз (finish). Повторная отправка задачи даёт новый instance.
type TaskInstance struct {
	// ID — уникальный идентификатор instance.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на run. Для standalone задач — синтетический id без run.
	RunID uuid.UUID `json:"run_id"`

	// TaskName — имя задачи из definition.
	TaskName string `json:"task_name"`

	// Executor — kind исполнителя, который выполнял задачу.
	Executor ExecutorKind `json:"executor"`

	// Status — статус instance.
	Status TaskStatus `json:"status"`

	// DispatchID — идентификатор job в dispatch substrate.
	DispatchID string `json:"dispatch_id,omitempty"`

	// Result — выходные данные (после SUCCESS) или {"error": ...} (после FAILURE).
	Result map[string]any `json:"result,omitempty"`

	// StartedAt — время вызова begin.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время вызова finish.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (t *TaskInstance) Duration() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// IsFinished возвращает true, если instance закрыт.
func (t *TaskInstance) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Finish закрывает instance. Возвращает false, если instance уже закрыт.
func (t *TaskInstance) Finish(status TaskStatus, result map[string]any, at time.Time) bool {
	if t.Status.IsTerminal() || !status.IsTerminal() {
		return false
	}
	t.Status = status
	t.Result = result
	t.CompletedAt = &at
	return true
}

// ErrorMessage возвращает result["error"], если он есть.
func (t *TaskInstance) ErrorMessage() string {
	if t.Result == nil {
		return ""
	}
	if s, ok := t.Result["error"].(string); ok {
		return s
	}
	return ""
}
