package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildGraph_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	g := BuildGraph(tasks(map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
		"D": {"B", "C"},
	}))

	if g.Size() != 4 {
		t.Errorf("expected 4 nodes, got %d", g.Size())
	}
	if got := g.Roots(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("Roots() = %v, want [A]", got)
	}
	if g.Nodes["D"].InDegree != 2 {
		t.Errorf("D should have inDegree 2, got %d", g.Nodes["D"].InDegree)
	}
	if len(g.Nodes["A"].Dependents) != 2 {
		t.Errorf("A should have 2 dependents, got %d", len(g.Nodes["A"].Dependents))
	}
}

func TestBuildGraph_DuplicateDependency(t *testing.T) {
	g := BuildGraph(tasks(map[string][]string{"A": nil, "B": {"A", "A"}}))

	if g.Nodes["B"].InDegree != 1 {
		t.Errorf("duplicate dependency should be counted once, got %d", g.Nodes["B"].InDegree)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := BuildGraph(tasks(map[string][]string{
		"fetch":   nil,
		"config":  nil,
		"process": {"fetch", "config"},
		"report":  {"process"},
	}))

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"config", "fetch", "process", "report"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	g := BuildGraph(tasks(map[string][]string{"A": {"B"}, "B": {"A"}}))

	_, err := g.TopologicalOrder()
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name string
		deps map[string][]string
		want []string
	}{
		{"acyclic", map[string][]string{"A": nil, "B": {"A"}}, nil},
		{"self dependency", map[string][]string{"A": {"A"}, "B": nil}, []string{"A"}},
		{"two node cycle", map[string][]string{"A": {"B"}, "B": {"A"}}, []string{"A", "B"}},
		{
			"cycle blocks dependents",
			map[string][]string{"root": nil, "x": {"root", "y"}, "y": {"x"}, "after": {"y"}},
			[]string{"after", "x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindCycle(tasks(tt.deps))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindCycle() = %v, want %v", got, tt.want)
			}
		})
	}
}
