package engine

import (
	"sort"

	"github.com/shaiso/zuriflow/internal/domain"
)

// VerdictKind — результат одного шага разрешения зависимостей.
type VerdictKind int

const (
	// VerdictReady — есть непустой набор задач, готовых к выполнению.
	VerdictReady VerdictKind = iota

	// VerdictDone — все задачи definition завершены.
	VerdictDone

	// VerdictStuck — готовых задач нет, но definition не завершено.
	VerdictStuck
)

// String возвращает имя verdict для логов и метрик.
func (k VerdictKind) String() string {
	switch k {
	case VerdictReady:
		return "ready"
	case VerdictDone:
		return "done"
	case VerdictStuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// Verdict — результат Resolve.
type Verdict struct {
	// Kind — тип результата.
	Kind VerdictKind

	// Batch — задачи для одновременной отправки (только для VerdictReady).
	// Отсортированы лексикографически: при одинаковых входных данных batch всегда один и тот же.
	Batch []string

	// Pending — незавершённые задачи (для VerdictStuck — причина ошибки).
	Pending []string

	// Failed — незавершённые задачи, упавшие на предыдущих шагах.
	Failed []string
}

// Progress — состояние run, известное на момент шага.
type Progress struct {
	// Completed — задачи с SUCCESS instance.
	Completed map[string]bool

	// Failed — задачи, последняя попытка которых завершилась FAILURE.
	// Такие задачи не отправляются повторно.
	Failed map[string]bool
}

// Resolve вычисляет следующий шаг run.
//
// Задача готова, если её нет в completed и каждая её зависимость есть в completed.
// Пустой tasks даёт VerdictDone. Имена в completed, которых нет в tasks, игнорируются.
//
// Функция чистая: не меняет аргументы и не зависит от порядка обхода map.
func Resolve(tasks map[string]domain.TaskSpec, completed map[string]bool) Verdict {
	return ResolveProgress(tasks, Progress{Completed: completed})
}

// ResolveProgress работает как Resolve, но исключает из batch упавшие задачи.
// Задачи, зависящие от упавших, не становятся готовыми, и run приходит к Stuck.
func ResolveProgress(tasks map[string]domain.TaskSpec, p Progress) Verdict {
	var ready, pending, failed []string

	for name, spec := range tasks {
		if p.Completed[name] {
			continue
		}
		pending = append(pending, name)

		if p.Failed[name] {
			failed = append(failed, name)
			continue
		}
		if dependenciesMet(spec.Dependencies, p.Completed) {
			ready = append(ready, name)
		}
	}

	if len(pending) == 0 {
		return Verdict{Kind: VerdictDone}
	}

	sort.Strings(pending)
	sort.Strings(failed)
	if len(ready) == 0 {
		return Verdict{Kind: VerdictStuck, Pending: pending, Failed: failed}
	}

	sort.Strings(ready)
	return Verdict{Kind: VerdictReady, Batch: ready, Pending: pending, Failed: failed}
}

func dependenciesMet(deps []string, completed map[string]bool) bool {
	for _, dep := range deps {
		if !completed[dep] {
			return false
		}
	}
	return true
}
