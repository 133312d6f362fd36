package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одно выполнение definition.
//
// Run создаётся в RUNNING при запуске (через API, CLI или scheduler).
// Финальный статус пишет только orchestrator, один раз.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// DefinitionID — ссылка на definition. Run не владеет definition.
	DefinitionID uuid.UUID `json:"definition_id"`

	// Status — агрегированный статус.
	Status RunStatus `json:"status"`

	// Error — причина FAILURE (stuck, definition not found, dispatch failed).
	Error string `json:"error,omitempty"`

	// StartedAt — время создания run.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время финального перехода. Nil, пока run выполняется.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(definitionID uuid.UUID) *Run {
	return &Run{
		ID:           uuid.New(),
		DefinitionID: definitionID,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Complete переводит run в финальный статус.
// Возвращает false, если run уже был завершён: повторный вызов ничего не меняет.
func (r *Run) Complete(status RunStatus, reason string, at time.Time) bool {
	if r.Status.IsTerminal() || !status.IsTerminal() {
		return false
	}
	r.Status = status
	r.Error = reason
	r.CompletedAt = &at
	return true
}
