package engine

import (
	"sort"

	"github.com/shaiso/zuriflow/internal/domain"
)

// Node — задача в графе зависимостей.
type Node struct {
	// Name — имя задачи.
	Name string

	// InDegree — количество известных зависимостей.
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// Graph — граф зависимостей definition.
//
// В отличие от Resolve, граф используется только для анализа
// (порядок, поиск циклов) и не участвует в выполнении run.
type Graph struct {
	// Nodes — все узлы графа (имя → Node).
	Nodes map[string]*Node
}

// BuildGraph строит граф из задач definition.
// Зависимости на несуществующие задачи пропускаются, их ловит Validate.
func BuildGraph(tasks map[string]domain.TaskSpec) *Graph {
	g := &Graph{Nodes: make(map[string]*Node, len(tasks))}

	for name := range tasks {
		g.Nodes[name] = &Node{Name: name}
	}

	for name, spec := range tasks {
		node := g.Nodes[name]
		for _, dep := range spec.Dependencies {
			depNode, ok := g.Nodes[dep]
			if !ok {
				continue
			}
			g.addEdge(depNode, node)
		}
	}

	return g
}

// addEdge добавляет ребро, игнорируя дубликаты, чтобы не считать InDegree дважды.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.Name == from.Name {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Roots возвращает имена задач без зависимостей (отсортированы).
func (g *Graph) Roots() []string {
	roots := make([]string, 0)
	for name, node := range g.Nodes {
		if node.InDegree == 0 {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)
	return roots
}

// TopologicalOrder возвращает имена задач в порядке выполнения (алгоритм Кана).
//
// Среди узлов одного уровня порядок лексикографический.
// Если в графе есть цикл, возвращается ErrCyclicDependency и частичный порядок.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for name, node := range g.Nodes {
		inDegree[name] = node.InDegree
	}

	queue := g.Roots()
	order := make([]string, 0, len(g.Nodes))

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		var next []string
		for _, dependent := range g.Nodes[name].Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				next = append(next, dependent.Name)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(order) != len(g.Nodes) {
		return order, ErrCyclicDependency
	}
	return order, nil
}

// FindCycle возвращает задачи, которые никогда не станут готовыми из-за цикла:
// участники цикла и всё, что от них зависит. Пустой результат — циклов нет.
func FindCycle(tasks map[string]domain.TaskSpec) []string {
	g := BuildGraph(tasks)
	order, err := g.TopologicalOrder()
	if err == nil {
		return nil
	}

	sorted := make(map[string]bool, len(order))
	for _, name := range order {
		sorted[name] = true
	}

	blocked := make([]string, 0, len(g.Nodes)-len(order))
	for name := range g.Nodes {
		if !sorted[name] {
			blocked = append(blocked, name)
		}
	}
	sort.Strings(blocked)
	return blocked
}
