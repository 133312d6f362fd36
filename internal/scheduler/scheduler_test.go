package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/orchestrator"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/repo/memory"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestCalculateNextDue(t *testing.T) {
	tests := []struct {
		name  string
		sched domain.Schedule
		want  time.Time
	}{
		{
			name:  "interval",
			sched: domain.Schedule{IntervalSec: 60},
			want:  testNow.Add(time.Minute),
		},
		{
			name:  "cron utc",
			sched: domain.Schedule{CronExpr: "*/15 * * * *"},
			want:  testNow.Add(15 * time.Minute),
		},
		{
			// 10:00 UTC = 13:00 по Москве, следующий запуск завтра в 09:00 MSK.
			name:  "cron with timezone",
			sched: domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"},
			want:  time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "descriptor",
			sched: domain.Schedule{CronExpr: "@every 5m"},
			want:  testNow.Add(5 * time.Minute),
		},
		{
			name:  "cron wins over interval",
			sched: domain.Schedule{CronExpr: "0 * * * *", IntervalSec: 5},
			want:  testNow.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, testNow)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestCalculateNextDue_Errors(t *testing.T) {
	_, err := CalculateNextDue(&domain.Schedule{}, testNow)
	assert.ErrorIs(t, err, domain.ErrScheduleRule)

	_, err = CalculateNextDue(&domain.Schedule{CronExpr: "not a cron"}, testNow)
	assert.Error(t, err)

	_, err = CalculateNextDue(&domain.Schedule{IntervalSec: 10, Timezone: "Mars/Olympus"}, testNow)
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestValidate(t *testing.T) {
	def := uuid.New()
	task := uuid.New()

	assert.NoError(t, Validate(&domain.Schedule{DefinitionID: &def, IntervalSec: 30}))
	assert.NoError(t, Validate(&domain.Schedule{TaskID: &task, CronExpr: "0 9 * * 1-5", Timezone: "UTC"}))

	assert.ErrorIs(t, Validate(&domain.Schedule{IntervalSec: 30}), domain.ErrScheduleTarget)
	assert.ErrorIs(t, Validate(&domain.Schedule{DefinitionID: &def, TaskID: &task, IntervalSec: 30}), domain.ErrScheduleTarget)
	assert.ErrorIs(t, Validate(&domain.Schedule{DefinitionID: &def}), domain.ErrScheduleRule)
	assert.ErrorContains(t, Validate(&domain.Schedule{DefinitionID: &def, CronExpr: "61 * * * *"}), "invalid cron expression")
}

// env — scheduler поверх memory.Store и настоящего Trigger.
type env struct {
	store *memory.Store
	local *dispatch.Local
	sched *Scheduler
	steps atomic.Int32
	tasks atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{store: memory.New()}
	e.local = dispatch.NewLocal(context.Background(), e.store.Barriers(), nil)
	e.local.Handle(string(mq.QueueRunsSteps), func(context.Context, dispatch.Job) error {
		e.steps.Add(1)
		return nil
	})
	e.local.Handle(string(mq.TaskQueue(domain.ExecutorShell)), func(context.Context, dispatch.Job) error {
		e.tasks.Add(1)
		return nil
	})

	trigger := orchestrator.NewTrigger(orchestrator.TriggerConfig{
		Definitions: e.store.Definitions(),
		Runs:        e.store.Runs(),
		Standalone:  e.store.Standalone(),
		Substrate:   e.local,
	})
	e.sched = New(Config{Schedules: e.store.Schedules(), Launcher: trigger})
	e.sched.now = func() time.Time { return testNow }
	return e
}

func (e *env) schedule(t *testing.T, s domain.Schedule) uuid.UUID {
	t.Helper()
	s.ID = uuid.New()
	s.Enabled = true
	if s.NextDueAt == nil {
		due := testNow.Add(-time.Second)
		s.NextDueAt = &due
	}
	require.NoError(t, e.store.Schedules().Create(context.Background(), &s))
	return s.ID
}

func (e *env) get(t *testing.T, id uuid.UUID) *domain.Schedule {
	t.Helper()
	s, err := e.store.Schedules().GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestTick_FiresDefinitionAndTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	def := &domain.Definition{ID: uuid.New(), Name: "nightly", Spec: domain.DefinitionSpec{
		Tasks: map[string]domain.TaskSpec{"a": {Executor: domain.ExecutorShell}},
	}}
	require.NoError(t, e.store.Definitions().Create(ctx, def))

	task := &domain.StandaloneTask{ID: uuid.New(), TaskName: "cleanup", Executor: domain.ExecutorShell}
	require.NoError(t, e.store.Standalone().Create(ctx, task))

	defSched := e.schedule(t, domain.Schedule{DefinitionID: &def.ID, IntervalSec: 60})
	taskSched := e.schedule(t, domain.Schedule{TaskID: &task.ID, CronExpr: "0 * * * *"})

	require.NoError(t, e.sched.Tick(ctx))
	e.local.Wait()

	assert.Equal(t, int32(1), e.steps.Load())
	assert.Equal(t, int32(1), e.tasks.Load())

	got := e.get(t, defSched)
	require.NotNil(t, got.LastRunID)
	assert.True(t, testNow.Add(time.Minute).Equal(*got.NextDueAt))

	run, err := e.store.Runs().Get(ctx, *got.LastRunID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, run.DefinitionID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)

	got = e.get(t, taskSched)
	require.NotNil(t, got.LastRunID)
	assert.True(t, testNow.Add(time.Hour).Equal(*got.NextDueAt))
	assert.True(t, got.Enabled)
}

func TestTick_SkipsNotDue(t *testing.T) {
	e := newEnv(t)

	later := testNow.Add(time.Hour)
	def := uuid.New()
	id := e.schedule(t, domain.Schedule{DefinitionID: &def, IntervalSec: 60, NextDueAt: &later})

	require.NoError(t, e.sched.Tick(context.Background()))
	e.local.Wait()

	assert.Zero(t, e.steps.Load())
	assert.Nil(t, e.get(t, id).LastRunID)
}

func TestTick_DisablesMissingTarget(t *testing.T) {
	e := newEnv(t)

	missingDef := uuid.New()
	missingTask := uuid.New()
	a := e.schedule(t, domain.Schedule{DefinitionID: &missingDef, IntervalSec: 60})
	b := e.schedule(t, domain.Schedule{TaskID: &missingTask, IntervalSec: 60})

	require.NoError(t, e.sched.Tick(context.Background()))

	assert.False(t, e.get(t, a).Enabled)
	assert.False(t, e.get(t, b).Enabled)
	assert.Nil(t, e.get(t, a).LastRunID)
}

func TestTick_DisablesInvalidRule(t *testing.T) {
	e := newEnv(t)

	def := uuid.New()
	id := e.schedule(t, domain.Schedule{DefinitionID: &def, CronExpr: "bogus"})

	require.NoError(t, e.sched.Tick(context.Background()))
	assert.False(t, e.get(t, id).Enabled)
}

func TestTick_PostponesOnDispatchFailure(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// Без обработчиков Send возвращает ErrNoHandler.
	local := dispatch.NewLocal(ctx, store.Barriers(), nil)
	trigger := orchestrator.NewTrigger(orchestrator.TriggerConfig{
		Definitions: store.Definitions(),
		Runs:        store.Runs(),
		Standalone:  store.Standalone(),
		Substrate:   local,
	})
	sched := New(Config{Schedules: store.Schedules(), Launcher: trigger})
	sched.now = func() time.Time { return testNow }

	def := &domain.Definition{ID: uuid.New(), Name: "nightly", Spec: domain.DefinitionSpec{
		Tasks: map[string]domain.TaskSpec{"a": {Executor: domain.ExecutorShell}},
	}}
	require.NoError(t, store.Definitions().Create(ctx, def))

	due := testNow.Add(-time.Second)
	s := &domain.Schedule{ID: uuid.New(), DefinitionID: &def.ID, IntervalSec: 60, Enabled: true, NextDueAt: &due}
	require.NoError(t, store.Schedules().Create(ctx, s))

	require.NoError(t, sched.Tick(ctx))
	require.NoError(t, sched.Tick(ctx))

	got, err := store.Schedules().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunID)
	require.NotNil(t, got.NextDueAt)
	assert.True(t, testNow.Add(time.Minute).Equal(*got.NextDueAt))

	runs, err := store.Runs().List(ctx, repo.RunFilter{DefinitionID: &def.ID})
	require.NoError(t, err)
	require.Len(t, runs, 1, "second tick must not create another run")
	assert.Equal(t, domain.RunStatusFailure, runs[0].Status)
}

// fakeLeader отвечает заданным значением и считает проверки.
type fakeLeader struct {
	leader bool
	checks atomic.Int32
}

func (l *fakeLeader) TryAcquire(context.Context) (bool, error) {
	l.checks.Add(1)
	return l.leader, nil
}

// countingStore считает вызовы ListDue.
type countingStore struct {
	ScheduleStore
	calls atomic.Int32
}

func (s *countingStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	s.calls.Add(1)
	return nil, nil
}

func TestRun_TicksOnlyAsLeader(t *testing.T) {
	for _, leading := range []bool{true, false} {
		store := &countingStore{}
		leader := &fakeLeader{leader: leading}
		s := New(Config{Schedules: store, Leader: leader, Tick: 5 * time.Millisecond})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		require.Eventually(t, func() bool { return leader.checks.Load() >= 3 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		if leading {
			assert.Positive(t, store.calls.Load())
		} else {
			assert.Zero(t, store.calls.Load())
		}
	}
}
