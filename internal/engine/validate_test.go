package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/domain"
)

func TestValidate_Valid(t *testing.T) {
	spec := &domain.DefinitionSpec{
		Name:       "etl",
		StartTasks: []string{"extract"},
		Tasks: map[string]domain.TaskSpec{
			"extract":   {Executor: domain.ExecutorScript},
			"transform": {Executor: domain.ExecutorShell, Dependencies: []string{"extract"}},
			"load":      {Executor: domain.ExecutorBinary, Dependencies: []string{"transform"}},
		},
	}

	if err := Validate(spec, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_CycleIsAccepted(t *testing.T) {
	spec := &domain.DefinitionSpec{Tasks: tasks(map[string][]string{"A": {"B"}, "B": {"A"}})}

	if err := Validate(spec, nil); err != nil {
		t.Errorf("cycles must be accepted at validation, got %v", err)
	}
}

func TestValidate_SelfDependencyIsCycle(t *testing.T) {
	spec := &domain.DefinitionSpec{Tasks: tasks(map[string][]string{"A": {"A"}, "B": {"A"}})}

	require.NoError(t, Validate(spec, nil))
	assert.Equal(t, []string{"A", "B"}, FindCycle(spec.Tasks))

	v := ResolveProgress(spec.Tasks, Progress{})
	assert.Equal(t, VerdictStuck, v.Kind)
	assert.Equal(t, []string{"A", "B"}, v.Pending)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    *domain.DefinitionSpec
		allowed []domain.ExecutorKind
		wantErr error
	}{
		{
			name:    "nil spec",
			spec:    nil,
			wantErr: ErrEmptyTaskName,
		},
		{
			name: "empty task name",
			spec: &domain.DefinitionSpec{Tasks: map[string]domain.TaskSpec{
				"": {Executor: domain.ExecutorShell},
			}},
			wantErr: ErrEmptyTaskName,
		},
		{
			name: "unknown executor",
			spec: &domain.DefinitionSpec{Tasks: map[string]domain.TaskSpec{
				"A": {Executor: "ruby"},
			}},
			wantErr: ErrUnknownExecutor,
		},
		{
			name: "executor not allowed",
			spec: &domain.DefinitionSpec{Tasks: map[string]domain.TaskSpec{
				"A": {Executor: domain.ExecutorBinary},
			}},
			allowed: []domain.ExecutorKind{domain.ExecutorShell},
			wantErr: ErrExecutorNotAllowed,
		},
		{
			name:    "dangling dependency",
			spec:    &domain.DefinitionSpec{Tasks: tasks(map[string][]string{"A": {"missing"}})},
			wantErr: ErrDanglingDependency,
		},
		{
			name: "unknown start task",
			spec: &domain.DefinitionSpec{
				StartTasks: []string{"B"},
				Tasks:      tasks(map[string][]string{"A": nil}),
			},
			wantErr: ErrUnknownStartTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec, tt.allowed)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	spec := &domain.DefinitionSpec{Tasks: map[string]domain.TaskSpec{
		"b": {Executor: "perl", Dependencies: []string{"x"}},
		"a": {Executor: domain.ExecutorShell, Dependencies: []string{"z"}},
	}}

	err := Validate(spec, nil)

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Task != "a" {
		t.Errorf("errors should be sorted by task, first = %s", errs[0].Task)
	}
}

func TestValidateExecutor(t *testing.T) {
	if err := ValidateExecutor(domain.ExecutorShell, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateExecutor("x", nil); !errors.Is(err, ErrUnknownExecutor) {
		t.Errorf("expected ErrUnknownExecutor, got %v", err)
	}
}
