package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/steps"
)

// Executor выполняет задачи одного kind.
//
// Execute может вернуть частичный результат вместе с ошибкой
// (например, stdout процесса с ненулевым кодом выхода).
type Executor interface {
	Kind() domain.ExecutorKind
	Execute(ctx context.Context, req ExecRequest) (map[string]any, error)
}

// ExecRequest — входные данные executor'а.
type ExecRequest struct {
	RunID    uuid.UUID
	TaskName string
	Params   map[string]any
}

// Executors — executor'ы по kind.
type Executors map[domain.ExecutorKind]Executor

// NewExecutors собирает набор из executor'ов.
func NewExecutors(execs ...Executor) Executors {
	out := make(Executors, len(execs))
	for _, e := range execs {
		out[e.Kind()] = e
	}
	return out
}

// DefaultExecutors возвращает script, shell и binary.
// Script executor использует registry (nil — steps.DefaultRegistry()).
func DefaultExecutors(registry *steps.Registry) Executors {
	if registry == nil {
		registry = steps.DefaultRegistry()
	}
	return NewExecutors(
		NewScriptExecutor(registry),
		&ShellExecutor{},
		&BinaryExecutor{},
	)
}

// Get возвращает executor для kind.
func (e Executors) Get(kind domain.ExecutorKind) (Executor, error) {
	exec, ok := e[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecutor, kind)
	}
	return exec, nil
}

// Only оставляет executor'ы из списка kinds. Пустой список — все.
func (e Executors) Only(kinds []domain.ExecutorKind) Executors {
	if len(kinds) == 0 {
		return e
	}
	out := make(Executors, len(kinds))
	for _, k := range kinds {
		if exec, ok := e[k]; ok {
			out[k] = exec
		}
	}
	return out
}

// Kinds возвращает kinds набора в фиксированном порядке.
func (e Executors) Kinds() []domain.ExecutorKind {
	var out []domain.ExecutorKind
	for _, k := range domain.ExecutorKinds() {
		if _, ok := e[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
