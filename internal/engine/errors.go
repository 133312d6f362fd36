package engine

import (
	"errors"
	"sort"
	"strings"
)

// Ошибки валидации definition.
var (
	// ErrEmptyTaskName — задача с пустым именем.
	ErrEmptyTaskName = errors.New("task has empty name")

	// ErrUnknownExecutor — executor не входит в закрытый набор kinds.
	ErrUnknownExecutor = errors.New("unknown executor kind")

	// ErrExecutorNotAllowed — kind известен, но не включён в этой инсталляции.
	ErrExecutorNotAllowed = errors.New("executor kind not allowed")

	// ErrDanglingDependency — задача зависит от несуществующей задачи.
	ErrDanglingDependency = errors.New("task depends on unknown task")

	// ErrUnknownStartTask — start_tasks ссылается на несуществующую задачу.
	ErrUnknownStartTask = errors.New("start task is not defined")

	// ErrCyclicDependency — зависимости содержат цикл.
	// Validate не возвращает эту ошибку: цикл приводит к Stuck при выполнении.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Task    string // имя задачи, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Task != "" {
		return "task " + e.Task + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(task, field, message string, err error) *ValidationError {
	return &ValidationError{
		Task:    task,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ValidationErrors — все ошибки одного definition.
type ValidationErrors []*ValidationError

// Error реализует интерфейс error.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap позволяет errors.Is/As находить отдельные ошибки.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, ve := range e {
		errs[i] = ve
	}
	return errs
}

func (e ValidationErrors) sort() {
	sort.SliceStable(e, func(i, j int) bool {
		if e[i].Task != e[j].Task {
			return e[i].Task < e[j].Task
		}
		return e[i].Field < e[j].Field
	})
}
