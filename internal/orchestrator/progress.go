package orchestrator

import (
	"sort"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/engine"
)

// progressFrom собирает прогресс run из исходов задач и completed из сообщения.
// Учитываются только задачи definition.
func progressFrom(tasks map[string]domain.TaskSpec, outcomes map[string]domain.TaskStatus, carried []string) engine.Progress {
	p := engine.Progress{
		Completed: make(map[string]bool),
		Failed:    make(map[string]bool),
	}

	for _, name := range carried {
		if _, ok := tasks[name]; ok {
			p.Completed[name] = true
		}
	}

	for name, status := range outcomes {
		if _, ok := tasks[name]; !ok {
			continue
		}
		switch status {
		case domain.TaskStatusSuccess:
			p.Completed[name] = true
		case domain.TaskStatusFailure:
			if !p.Completed[name] {
				p.Failed[name] = true
			}
		}
	}

	return p
}

// mergeOutcomes дополняет исходы instances статусами участников barriers.
// Финальный статус instance приоритетнее; участник отвечает за задачи,
// instance которых остался RUNNING или не был записан.
func mergeOutcomes(instances, members map[string]domain.TaskStatus) map[string]domain.TaskStatus {
	out := make(map[string]domain.TaskStatus, len(instances)+len(members))
	for name, status := range instances {
		out[name] = status
	}
	for name, status := range members {
		if current, ok := out[name]; ok && current.IsTerminal() {
			continue
		}
		out[name] = status
	}
	return out
}

// names возвращает отсортированные ключи множества.
func names(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
