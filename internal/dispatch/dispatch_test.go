package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo/memory"
)

const (
	testTaskQueue = "tasks.script"
	testStepQueue = "runs.steps"
)

func TestBarrierID(t *testing.T) {
	run := uuid.New()

	a := BarrierID(run, []string{"b", "a"}, nil)
	b := BarrierID(run, []string{"a", "b"}, []string{})
	assert.Equal(t, a, b, "order of completed names must not matter")

	assert.NotEqual(t, a, BarrierID(run, []string{"a"}, nil))
	assert.NotEqual(t, a, BarrierID(run, []string{"a", "b"}, []string{"c"}))
	assert.NotEqual(t, a, BarrierID(uuid.New(), []string{"a", "b"}, nil))

	assert.Equal(t, MemberJobID(a, "x"), MemberJobID(a, "x"))
	assert.NotEqual(t, MemberJobID(a, "x"), MemberJobID(a, "y"))
	assert.NotEqual(t, ContinuationID(a), MemberJobID(a, "continuation"))
}

func TestJobPayloads(t *testing.T) {
	barrier := uuid.New()
	task := TaskJob{
		RunID:     uuid.New(),
		TaskName:  "extract",
		Executor:  domain.ExecutorShell,
		Params:    map[string]any{"command": "echo hi"},
		BarrierID: &barrier,
	}

	job, err := NewTaskJob(uuid.New(), task)
	require.NoError(t, err)
	assert.Equal(t, "extract", job.Name)

	got, err := job.Task()
	require.NoError(t, err)
	assert.Equal(t, task, got)

	_, err = job.Step()
	assert.Error(t, err)

	step, err := NewStepJob(uuid.New(), StepJob{RunID: task.RunID, Completed: []string{"z", "a"}})
	require.NoError(t, err)
	gotStep, err := step.Step()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, gotStep.Completed)
}

// newChord строит batch из n участников с continuation в testStepQueue.
func newChord(t *testing.T, n int) Chord {
	t.Helper()

	runID := uuid.New()
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("task-%02d", i)
	}
	id := BarrierID(runID, names[:0], nil)

	members := make([]Message, 0, n)
	for _, name := range names {
		job, err := NewTaskJob(MemberJobID(id, name), TaskJob{
			RunID:     runID,
			TaskName:  name,
			Executor:  domain.ExecutorScript,
			BarrierID: &id,
		})
		require.NoError(t, err)
		members = append(members, Message{Queue: testTaskQueue, Job: job})
	}

	cont, err := NewStepJob(ContinuationID(id), StepJob{RunID: runID, Completed: names})
	require.NoError(t, err)

	return Chord{ID: id, RunID: runID, Members: members, Continuation: Message{Queue: testStepQueue, Job: cont}}
}

// completingHandler завершает каждого участника после случайной паузы.
func completingHandler(l *Local, seed int64) HandlerFunc {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))

	return func(ctx context.Context, job Job) error {
		mu.Lock()
		delay := time.Duration(rnd.Intn(500)) * time.Microsecond
		status := domain.TaskStatusSuccess
		if rnd.Intn(4) == 0 {
			status = domain.TaskStatusFailure
		}
		mu.Unlock()

		time.Sleep(delay)

		task, err := job.Task()
		if err != nil {
			return err
		}
		return l.Complete(ctx, *task.BarrierID, job.ID, status)
	}
}

func TestLocal_ChordFiresExactlyOnce(t *testing.T) {
	for iter := 0; iter < 25; iter++ {
		store := memory.New()
		l := NewLocal(context.Background(), store.Barriers(), nil)

		var fired atomic.Int32
		l.Handle(testTaskQueue, completingHandler(l, int64(iter)))
		l.Handle(testStepQueue, func(context.Context, Job) error {
			fired.Add(1)
			return nil
		})

		chord := newChord(t, 1+iter%12)
		require.NoError(t, l.Chord(context.Background(), chord))
		l.Wait()

		assert.Equal(t, int32(1), fired.Load(), "iteration %d", iter)

		b, err := store.Barriers().Get(context.Background(), chord.ID)
		require.NoError(t, err)
		assert.True(t, b.IsFired())
		assert.Zero(t, b.Open())
	}
}

func TestLocal_ConcurrentCompleteSameMember(t *testing.T) {
	store := memory.New()
	l := NewLocal(context.Background(), store.Barriers(), nil)

	var fired atomic.Int32
	l.Handle(testTaskQueue, func(context.Context, Job) error { return nil })
	l.Handle(testStepQueue, func(context.Context, Job) error {
		fired.Add(1)
		return nil
	})

	chord := newChord(t, 3)
	require.NoError(t, l.Chord(context.Background(), chord))

	// Повторные доставки одного и того же участника.
	var wg sync.WaitGroup
	for _, m := range chord.Members {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				assert.NoError(t, l.Complete(context.Background(), chord.ID, id, domain.TaskStatusSuccess))
			}(m.Job.ID)
		}
	}
	wg.Wait()
	l.Wait()

	assert.Equal(t, int32(1), fired.Load())
}

func TestLocal_ChordReplay(t *testing.T) {
	store := memory.New()
	l := NewLocal(context.Background(), store.Barriers(), nil)

	var sent atomic.Int32
	l.Handle(testTaskQueue, func(context.Context, Job) error {
		sent.Add(1)
		return nil
	})

	chord := newChord(t, 2)
	require.NoError(t, l.Chord(context.Background(), chord))
	err := l.Chord(context.Background(), chord)
	assert.ErrorIs(t, err, ErrChordExists)

	l.Wait()
	assert.Equal(t, int32(2), sent.Load(), "replayed chord must not resend members")
}

func TestLocal_ChordResumesInterruptedDispatch(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := NewLocal(ctx, store.Barriers(), nil)

	var mu sync.Mutex
	var sent []uuid.UUID
	l.Handle(testTaskQueue, func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, job.ID)
		return nil
	})

	// Barrier зарегистрирован, но участники не разосланы; первый уже завершён.
	chord := newChord(t, 3)
	b := &domain.Barrier{ID: chord.ID, RunID: chord.RunID, Continuation: []byte(`{}`)}
	for _, m := range chord.Members {
		b.Members = append(b.Members, domain.BarrierMember{JobID: m.Job.ID, TaskName: m.Job.Name})
	}
	require.NoError(t, store.Barriers().Create(ctx, b))
	require.NoError(t, store.Barriers().MarkDone(ctx, chord.ID, chord.Members[0].Job.ID, domain.TaskStatusSuccess))

	require.NoError(t, l.Chord(ctx, chord))
	l.Wait()
	assert.ElementsMatch(t, []uuid.UUID{chord.Members[1].Job.ID, chord.Members[2].Job.ID}, sent)

	got, err := store.Barriers().Get(ctx, chord.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDispatched())

	assert.ErrorIs(t, l.Chord(ctx, chord), ErrChordExists)
	l.Wait()
	assert.Len(t, sent, 2, "dispatched chord must not resend members")
}

func TestLocal_EmptyChord(t *testing.T) {
	l := NewLocal(context.Background(), memory.New().Barriers(), nil)
	err := l.Chord(context.Background(), Chord{ID: uuid.New(), RunID: uuid.New()})
	assert.ErrorIs(t, err, ErrEmptyChord)
}

func TestLocal_FlushAfterFailedContinuation(t *testing.T) {
	store := memory.New()
	l := NewLocal(context.Background(), store.Barriers(), nil)
	l.Handle(testTaskQueue, func(context.Context, Job) error { return nil })

	chord := newChord(t, 1)
	require.NoError(t, l.Chord(context.Background(), chord))
	l.Wait()

	// Очередь continuation ещё не обслуживается.
	err := l.Complete(context.Background(), chord.ID, chord.Members[0].Job.ID, domain.TaskStatusSuccess)
	require.ErrorIs(t, err, ErrNoHandler)

	b, err := store.Barriers().Get(context.Background(), chord.ID)
	require.NoError(t, err)
	assert.False(t, b.IsFired(), "failed send must release the claim")

	var fired atomic.Int32
	l.Handle(testStepQueue, func(_ context.Context, job Job) error {
		fired.Add(1)
		assert.Equal(t, ContinuationID(chord.ID), job.ID)
		return nil
	})

	require.NoError(t, l.Flush(context.Background(), chord.ID))
	require.NoError(t, l.Flush(context.Background(), chord.ID))
	l.Wait()
	assert.Equal(t, int32(1), fired.Load())
}

func TestLocal_FlushOpenBarrier(t *testing.T) {
	store := memory.New()
	l := NewLocal(context.Background(), store.Barriers(), nil)
	l.Handle(testTaskQueue, func(context.Context, Job) error { return nil })

	var fired atomic.Int32
	l.Handle(testStepQueue, func(context.Context, Job) error {
		fired.Add(1)
		return nil
	})

	chord := newChord(t, 2)
	require.NoError(t, l.Chord(context.Background(), chord))
	require.NoError(t, l.Complete(context.Background(), chord.ID, chord.Members[0].Job.ID, domain.TaskStatusSuccess))
	require.NoError(t, l.Flush(context.Background(), chord.ID))
	l.Wait()

	assert.Zero(t, fired.Load(), "barrier with open members must not fire")
}

func TestLocal_SendUnknownQueue(t *testing.T) {
	l := NewLocal(context.Background(), memory.New().Barriers(), nil)
	err := l.Send(context.Background(), "nowhere", Job{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoHandler)
}
