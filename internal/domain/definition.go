package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Definition — описание workflow: DAG именованных задач.
//
// Definition неизменяемо после создания. Любое количество runs
// может ссылаться на одно definition.
type Definition struct {
	// ID — уникальный идентификатор definition.
	ID uuid.UUID `json:"id"`

	// Name — человекочитаемое имя (например, "nightly-etl").
	Name string `json:"name"`

	// Spec — граф задач (JSONB поле definition).
	Spec DefinitionSpec `json:"definition"`

	// CreatedAt — время создания definition.
	CreatedAt time.Time `json:"created_at"`
}

// DefinitionSpec — содержимое definition в том виде, в котором его присылает клиент.
type DefinitionSpec struct {
	// Name — имя workflow.
	Name string `json:"name" yaml:"name"`

	// StartTasks — задачи без зависимостей, перечисленные клиентом.
	// Только для информации: готовность вычисляется по Dependencies.
	StartTasks []string `json:"start_tasks,omitempty" yaml:"start_tasks,omitempty"`

	// Tasks — задачи по имени. Имя уникально в пределах definition.
	Tasks map[string]TaskSpec `json:"tasks" yaml:"tasks"`
}

// TaskSpec — одна задача definition.
type TaskSpec struct {
	// Executor — класс исполнителя, определяет очередь.
	Executor ExecutorKind `json:"executor" yaml:"executor"`

	// Dependencies — имена задач, которые должны завершиться с SUCCESS раньше.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Params — произвольные параметры, которые получает executor.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// TaskNames возвращает имена задач в отсортированном порядке.
func (s *DefinitionSpec) TaskNames() []string {
	names := make([]string, 0, len(s.Tasks))
	for name := range s.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Roots возвращает задачи без зависимостей (отсортированы).
func (s *DefinitionSpec) Roots() []string {
	var roots []string
	for _, name := range s.TaskNames() {
		if len(s.Tasks[name].Dependencies) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}
