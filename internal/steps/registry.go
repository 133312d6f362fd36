package steps

import (
	"fmt"
	"sort"
	"sync"
)

// ParamHandler — параметр, явно выбирающий обработчик.
const ParamHandler = "handler"

// Registry — реестр обработчиков по имени.
//
// Создаётся при старте процесса и передаётся в executor. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// DefaultRegistry создаёт реестр со встроенными обработчиками.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewDelayStep())
	r.Register(NewHTTPStep())
	r.Register(NewEchoStep())
	return r
}

// Register регистрирует обработчик. Существующий с тем же именем перезаписывается.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Name()] = step
}

// Get возвращает обработчик по имени или ErrStepNotFound.
func (r *Registry) Get(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	return step, nil
}

// Lookup выбирает обработчик задачи: params.handler, иначе имя задачи.
func (r *Registry) Lookup(taskName string, params map[string]any) (Step, bool) {
	name := ParamString(params, ParamHandler)
	if name == "" {
		name = taskName
	}
	step, err := r.Get(name)
	return step, err == nil
}

// Has проверяет, зарегистрирован ли обработчик.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[name]
	return exists
}

// Names возвращает имена зарегистрированных обработчиков.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for n := range r.steps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество обработчиков.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Unregister удаляет обработчик.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, name)
}
