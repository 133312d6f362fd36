package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/repo/memory"
)

// harness — оркестратор на memory.Store и dispatch.Local с поддельным worker'ом.
type harness struct {
	t       *testing.T
	store   *memory.Store
	local   *dispatch.Local
	coord   *Coordinator
	trigger *Trigger

	mu       sync.Mutex
	fail     map[string]bool
	executed []string
	rnd      *rand.Rand
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := newBareHarness(t)
	h.local.Handle(string(mq.QueueRunsSteps), h.coord.HandleJob)
	return h
}

// newBareHarness не обслуживает очередь runs.steps.
func newBareHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.New()
	local := dispatch.NewLocal(context.Background(), store.Barriers(), nil)

	h := &harness{
		t:     t,
		store: store,
		local: local,
		fail:  make(map[string]bool),
		rnd:   rand.New(rand.NewSource(1)),
	}
	h.coord = NewCoordinator(CoordinatorConfig{
		Runs:        store.Runs(),
		Tasks:       store.Tasks(),
		Members:     store.Barriers(),
		Definitions: store.Definitions(),
		Substrate:   local,
	})
	h.trigger = NewTrigger(TriggerConfig{
		Definitions: store.Definitions(),
		Runs:        store.Runs(),
		Standalone:  store.Standalone(),
		Substrate:   local,
	})

	for _, kind := range domain.ExecutorKinds() {
		local.Handle(string(mq.TaskQueue(kind)), h.work)
	}
	return h
}

// work имитирует worker: begin → finish → complete.
func (h *harness) work(ctx context.Context, job dispatch.Job) error {
	task, err := job.Task()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.executed = append(h.executed, task.TaskName)
	failed := h.fail[task.TaskName]
	delay := time.Duration(h.rnd.Intn(300)) * time.Microsecond
	h.mu.Unlock()

	tasks := h.store.Tasks()
	if _, err := tasks.Begin(ctx, repo.BeginRequest{
		RunID:      task.RunID,
		TaskName:   task.TaskName,
		Executor:   task.Executor,
		DispatchID: job.ID.String(),
	}); err != nil {
		return err
	}

	time.Sleep(delay)

	status := domain.TaskStatusSuccess
	result := map[string]any{"task": task.TaskName}
	if failed {
		status = domain.TaskStatusFailure
		result = map[string]any{"error": "boom"}
	}
	if err := tasks.Finish(ctx, task.RunID, task.TaskName, status, result); err != nil {
		return err
	}

	if task.BarrierID == nil {
		return nil
	}
	return h.local.Complete(ctx, *task.BarrierID, job.ID, status)
}

func (h *harness) define(tasks map[string]domain.TaskSpec) uuid.UUID {
	h.t.Helper()
	def := &domain.Definition{
		ID:        uuid.New(),
		Name:      "test",
		Spec:      domain.DefinitionSpec{Name: "test", Tasks: tasks},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(h.t, h.store.Definitions().Create(context.Background(), def))
	return def.ID
}

// run запускает run и ждёт окончания всех jobs.
func (h *harness) run(defID uuid.UUID) *domain.Run {
	h.t.Helper()
	run, err := h.trigger.Start(context.Background(), defID)
	require.NoError(h.t, err)
	h.local.Wait()

	got, err := h.store.Runs().Get(context.Background(), run.ID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) executedTasks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.executed...)
}

func task(executor domain.ExecutorKind, deps ...string) domain.TaskSpec {
	return domain.TaskSpec{Executor: executor, Dependencies: deps}
}

func TestScenarioA_Chain(t *testing.T) {
	h := newHarness(t)
	defID := h.define(map[string]domain.TaskSpec{
		"A": task(domain.ExecutorScript),
		"B": task(domain.ExecutorShell, "A"),
	})

	run := h.run(defID)

	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	assert.Empty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, []string{"A", "B"}, h.executedTasks())

	instances, err := h.store.Tasks().ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, map[string]any{"task": "A"}, instances[0].Result)
}

func TestScenarioB_FailedDependency(t *testing.T) {
	h := newHarness(t)
	h.fail["A"] = true
	defID := h.define(map[string]domain.TaskSpec{
		"A": task(domain.ExecutorScript),
		"B": task(domain.ExecutorScript, "A"),
	})

	run := h.run(defID)

	assert.Equal(t, domain.RunStatusFailure, run.Status)
	assert.Contains(t, run.Error, "stuck")
	assert.Contains(t, run.Error, "B")
	assert.Equal(t, []string{"A"}, h.executedTasks(), "failed task must not be re-dispatched")
}

func TestScenarioC_Cycle(t *testing.T) {
	h := newHarness(t)
	defID := h.define(map[string]domain.TaskSpec{
		"A": task(domain.ExecutorScript, "B"),
		"B": task(domain.ExecutorScript, "A"),
	})

	run := h.run(defID)

	assert.Equal(t, domain.RunStatusFailure, run.Status)
	assert.Equal(t, "stuck: pending tasks [A, B]", run.Error)
	assert.Empty(t, h.executedTasks(), "no dispatch for a cycle")
}

func TestScenarioD_IndependentBatch(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		h := newHarness(t)
		h.rnd = rand.New(rand.NewSource(seed))
		defID := h.define(map[string]domain.TaskSpec{
			"A": task(domain.ExecutorScript),
			"C": task(domain.ExecutorBinary),
		})

		run := h.run(defID)

		assert.Equal(t, domain.RunStatusSuccess, run.Status)
		assert.ElementsMatch(t, []string{"A", "C"}, h.executedTasks())
	}
}

func TestDiamond(t *testing.T) {
	h := newHarness(t)
	defID := h.define(map[string]domain.TaskSpec{
		"extract":   task(domain.ExecutorShell),
		"transform": task(domain.ExecutorScript, "extract"),
		"validate":  task(domain.ExecutorScript, "extract"),
		"load":      task(domain.ExecutorBinary, "transform", "validate"),
	})

	run := h.run(defID)

	require.Equal(t, domain.RunStatusSuccess, run.Status)
	executed := h.executedTasks()
	require.Len(t, executed, 4)
	assert.Equal(t, "extract", executed[0])
	assert.Equal(t, "load", executed[3])
}

func TestEmptyDefinition(t *testing.T) {
	h := newHarness(t)
	run := h.run(h.define(map[string]domain.TaskSpec{}))
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
}

func TestStep_Replay(t *testing.T) {
	h := newHarness(t)
	defID := h.define(map[string]domain.TaskSpec{
		"A": task(domain.ExecutorScript),
	})

	// Шаг без worker'а: batch отправлен, но не выполнен.
	blocked := make(chan struct{})
	h.local.Handle(string(mq.TaskQueue(domain.ExecutorScript)), func(ctx context.Context, job dispatch.Job) error {
		<-blocked
		return h.work(ctx, job)
	})

	run, err := h.store.Runs().Create(context.Background(), defID)
	require.NoError(t, err)

	req := StepRequest{RunID: run.ID, DefinitionID: defID}
	require.NoError(t, h.coord.Step(context.Background(), req))
	require.NoError(t, h.coord.Step(context.Background(), req), "replayed step must be absorbed")

	close(blocked)
	h.local.Wait()

	assert.Equal(t, []string{"A"}, h.executedTasks())
	got, err := h.store.Runs().Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)

	// Шаг по завершённому run — no-op.
	require.NoError(t, h.coord.Step(context.Background(), req))
	again, err := h.store.Runs().Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, got.CompletedAt, again.CompletedAt)
}

func TestStep_RunNotFound(t *testing.T) {
	h := newHarness(t)
	err := h.coord.Step(context.Background(), StepRequest{RunID: uuid.New()})
	assert.ErrorIs(t, err, ErrRunNotFound)

	job, jErr := dispatch.NewStepJob(uuid.New(), StepRequest{RunID: uuid.New()})
	require.NoError(t, jErr)
	err = h.coord.HandleJob(context.Background(), job)
	assert.ErrorIs(t, err, mq.ErrPermanent)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStep_DefinitionNotFound(t *testing.T) {
	h := newHarness(t)
	run, err := h.store.Runs().Create(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, h.coord.Step(context.Background(), StepRequest{RunID: run.ID}))

	got, err := h.store.Runs().Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailure, got.Status)
	assert.Equal(t, "definition not found", got.Error)
}

func TestStep_DispatchFailure(t *testing.T) {
	store := memory.New()
	local := dispatch.NewLocal(context.Background(), store.Barriers(), nil)
	coord := NewCoordinator(CoordinatorConfig{
		Runs:        store.Runs(),
		Tasks:       store.Tasks(),
		Members:     store.Barriers(),
		Definitions: store.Definitions(),
		Substrate:   local, // очереди задач не обслуживаются
	})

	def := &domain.Definition{
		ID:   uuid.New(),
		Spec: domain.DefinitionSpec{Tasks: map[string]domain.TaskSpec{"A": task(domain.ExecutorShell)}},
	}
	require.NoError(t, store.Definitions().Create(context.Background(), def))
	run, err := store.Runs().Create(context.Background(), def.ID)
	require.NoError(t, err)

	require.NoError(t, coord.Step(context.Background(), StepRequest{RunID: run.ID}))

	got, err := store.Runs().Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailure, got.Status)
	assert.Contains(t, got.Error, "dispatch failed")
}

func TestTrigger_DefinitionNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.trigger.Start(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestTrigger_RunStandalone(t *testing.T) {
	h := newHarness(t)
	st := &domain.StandaloneTask{
		ID:            uuid.New(),
		TaskName:      "cleanup",
		Executor:      domain.ExecutorShell,
		DefaultParams: map[string]any{"command": "true"},
	}
	require.NoError(t, h.store.Standalone().Create(context.Background(), st))

	out, err := h.trigger.RunStandalone(context.Background(), st.ID, map[string]any{"timeout_sec": 5})
	require.NoError(t, err)
	h.local.Wait()

	instances, err := h.store.Tasks().ListByRun(context.Background(), out.RunID)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, domain.TaskStatusSuccess, instances[0].Status)
	assert.Equal(t, out.DispatchID.String(), instances[0].DispatchID)

	_, err = h.trigger.RunStandalone(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestProgressFrom(t *testing.T) {
	tasks := map[string]domain.TaskSpec{"A": {}, "B": {}, "C": {}}
	p := progressFrom(tasks, map[string]domain.TaskStatus{
		"A":     domain.TaskStatusSuccess,
		"B":     domain.TaskStatusFailure,
		"C":     domain.TaskStatusRunning,
		"ghost": domain.TaskStatusSuccess,
	}, []string{"C", "other"})

	assert.Equal(t, map[string]bool{"A": true, "C": true}, p.Completed)
	assert.Equal(t, map[string]bool{"B": true}, p.Failed)
}

func TestMergeOutcomes(t *testing.T) {
	got := mergeOutcomes(map[string]domain.TaskStatus{
		"A": domain.TaskStatusRunning,
		"B": domain.TaskStatusFailure,
	}, map[string]domain.TaskStatus{
		"A": domain.TaskStatusSuccess,
		"B": domain.TaskStatusSuccess,
		"C": domain.TaskStatusFailure,
	})

	assert.Equal(t, map[string]domain.TaskStatus{
		"A": domain.TaskStatusSuccess,
		"B": domain.TaskStatusFailure,
		"C": domain.TaskStatusFailure,
	}, got)
}
