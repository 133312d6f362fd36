package engine

import (
	"fmt"

	"github.com/shaiso/zuriflow/internal/domain"
)

// Validate проверяет definition перед сохранением.
//
// Проверяет:
// - Имена задач не пустые
// - Executor входит в закрытый набор kinds и в allowed
// - Каждая зависимость ссылается на существующую задачу
// - Нет зависимости задачи от самой себя
// - start_tasks ссылаются на существующие задачи
//
// Циклы не проверяются: run такого definition завершится FAILURE (stuck).
// Для предупреждения о циклах используется FindCycle.
//
// allowed — разрешённые kinds. Пустой allowed означает все известные kinds.
// Возвращает ValidationErrors со всеми найденными ошибками.
func Validate(spec *domain.DefinitionSpec, allowed []domain.ExecutorKind) error {
	if spec == nil {
		return ValidationErrors{NewValidationError("", "tasks", "definition is empty", ErrEmptyTaskName)}
	}

	allow := allowSet(allowed)
	var errs ValidationErrors

	for _, name := range spec.TaskNames() {
		task := spec.Tasks[name]

		if name == "" {
			errs = append(errs, NewValidationError("", "name", "task has empty name", ErrEmptyTaskName))
		}

		if err := validateExecutor(name, task.Executor, allow); err != nil {
			errs = append(errs, err)
		}

		for _, dep := range task.Dependencies {
			if _, ok := spec.Tasks[dep]; !ok {
				errs = append(errs, NewValidationError(name, "dependencies",
					fmt.Sprintf("depends on unknown task: %s", dep), ErrDanglingDependency))
			}
		}
	}

	for _, start := range spec.StartTasks {
		if _, ok := spec.Tasks[start]; !ok {
			errs = append(errs, NewValidationError(start, "start_tasks",
				fmt.Sprintf("start task %s is not defined", start), ErrUnknownStartTask))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	errs.sort()
	return errs
}

// ValidateExecutor проверяет один kind (используется для standalone задач).
func ValidateExecutor(kind domain.ExecutorKind, allowed []domain.ExecutorKind) error {
	if err := validateExecutor("", kind, allowSet(allowed)); err != nil {
		return err
	}
	return nil
}

func validateExecutor(task string, kind domain.ExecutorKind, allow map[domain.ExecutorKind]bool) *ValidationError {
	if !kind.IsValid() {
		return NewValidationError(task, "executor",
			fmt.Sprintf("unknown executor kind: %q", kind), ErrUnknownExecutor)
	}
	if !allow[kind] {
		return NewValidationError(task, "executor",
			fmt.Sprintf("executor kind %s is not allowed", kind), ErrExecutorNotAllowed)
	}
	return nil
}

func allowSet(allowed []domain.ExecutorKind) map[domain.ExecutorKind]bool {
	if len(allowed) == 0 {
		allowed = domain.ExecutorKinds()
	}
	set := make(map[domain.ExecutorKind]bool, len(allowed))
	for _, k := range allowed {
		set[k] = true
	}
	return set
}
