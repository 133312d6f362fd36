package domain

import (
	"time"

	"github.com/google/uuid"
)

// StandaloneTask — одиночная задача вне DAG.
//
// Запускается вручную или по расписанию, без run и без barrier.
// Instances пишутся под синтетическим run id.
type StandaloneTask struct {
	ID            uuid.UUID      `json:"id"`
	TaskName      string         `json:"task_name"`
	Executor      ExecutorKind   `json:"executor"`
	DefaultParams map[string]any `json:"default_params,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MergeParams возвращает DefaultParams, поверх которых наложены overrides.
// Исходные map не изменяются.
func (t *StandaloneTask) MergeParams(overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(t.DefaultParams)+len(overrides))
	for k, v := range t.DefaultParams {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
