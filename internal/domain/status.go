package domain

import "fmt"

// RunStatus — агрегированный статус run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCESS
//	        ↘ FAILURE
//
// Run создаётся сразу в RUNNING. После SUCCESS/FAILURE run не меняется.
type RunStatus string

const (
	// RunStatusRunning — run выполняется (есть незавершённые batch'и).
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSuccess — все задачи definition завершились успешно.
	RunStatusSuccess RunStatus = "SUCCESS"

	// RunStatusFailure — run остановлен: stuck, definition не найдено или batch не отправлен.
	RunStatusFailure RunStatus = "FAILURE"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailure
}

// ParseRunStatus парсит строку в RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailure:
		return RunStatus(s), nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// TaskStatus — статус одного task instance.
//
// Жизненный цикл:
//
//	RUNNING → SUCCESS
//	        ↘ FAILURE
//
// Повторная попытка создаёт новый instance, старый не меняется.
type TaskStatus string

const (
	// TaskStatusRunning — executor принял задачу (вызван begin).
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSuccess — задача выполнена, result содержит выходные данные.
	TaskStatusSuccess TaskStatus = "SUCCESS"

	// TaskStatusFailure — задача упала, result содержит поле "error".
	TaskStatusFailure TaskStatus = "FAILURE"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}
