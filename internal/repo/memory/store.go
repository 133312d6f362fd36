// Package memory — хранилище в памяти с теми же контрактами, что и repo.
//
// Используется в тестах и в локальном режиме без Postgres.
// Потокобезопасно.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo"
)

// Store хранит definitions, runs, task instances, barriers, standalone задачи и schedules.
type Store struct {
	mu sync.RWMutex

	definitions map[uuid.UUID]*domain.Definition
	runs        map[uuid.UUID]*domain.Run
	tasks       []*domain.TaskInstance // в порядке insert
	barriers    map[uuid.UUID]*domain.Barrier
	standalone  map[uuid.UUID]*domain.StandaloneTask
	schedules   map[uuid.UUID]*domain.Schedule

	now func() time.Time
}

// New возвращает пустой Store.
func New() *Store {
	return &Store{
		definitions: make(map[uuid.UUID]*domain.Definition),
		runs:        make(map[uuid.UUID]*domain.Run),
		barriers:    make(map[uuid.UUID]*domain.Barrier),
		standalone:  make(map[uuid.UUID]*domain.StandaloneTask),
		schedules:   make(map[uuid.UUID]*domain.Schedule),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock подменяет источник времени (для тестов).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Definitions возвращает view на definitions.
func (s *Store) Definitions() *Definitions { return &Definitions{s} }

// Runs возвращает view на runs.
func (s *Store) Runs() *Runs { return &Runs{s} }

// Tasks возвращает view на task instances.
func (s *Store) Tasks() *Tasks { return &Tasks{s} }

// Barriers возвращает view на barriers.
func (s *Store) Barriers() *Barriers { return &Barriers{s} }

// Standalone возвращает view на standalone задачи.
func (s *Store) Standalone() *Standalone { return &Standalone{s} }

// Schedules возвращает view на schedules.
func (s *Store) Schedules() *Schedules { return &Schedules{s} }

// ──────────────────────────────────────────────────
// Definitions
// ──────────────────────────────────────────────────

// Definitions реализует контракт repo.DefinitionRepo.
type Definitions struct{ s *Store }

// Create сохраняет definition.
func (d *Definitions) Create(_ context.Context, def *domain.Definition) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, ok := d.s.definitions[def.ID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *def
	d.s.definitions[def.ID] = &cp
	return nil
}

// Get возвращает definition по ID.
func (d *Definitions) Get(_ context.Context, id uuid.UUID) (*domain.Definition, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	def, ok := d.s.definitions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *def
	return &cp, nil
}

// List возвращает definitions, новые первыми.
func (d *Definitions) List(_ context.Context, limit, offset int) ([]domain.Definition, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	out := make([]domain.Definition, 0, len(d.s.definitions))
	for _, def := range d.s.definitions {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// Delete удаляет definition.
func (d *Definitions) Delete(_ context.Context, id uuid.UUID) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, ok := d.s.definitions[id]; !ok {
		return repo.ErrNotFound
	}
	delete(d.s.definitions, id)
	return nil
}

// ──────────────────────────────────────────────────
// Runs
// ──────────────────────────────────────────────────

// Runs реализует контракт repo.RunRepo.
type Runs struct{ s *Store }

// Create создаёт run в статусе RUNNING.
func (r *Runs) Create(_ context.Context, definitionID uuid.UUID) (*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run := domain.NewRun(definitionID)
	run.StartedAt = r.s.now()
	cp := *run
	r.s.runs[run.ID] = &cp
	return run, nil
}

// Get возвращает run по ID.
func (r *Runs) Get(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	run, ok := r.s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// Transition переводит run из RUNNING в финальный статус.
func (r *Runs) Transition(_ context.Context, id uuid.UUID, status domain.RunStatus, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: transition to %s", repo.ErrInvalidState, status)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	return run.Complete(status, reason, r.s.now()), nil
}

// List возвращает runs по фильтру, новые первыми.
func (r *Runs) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Run, 0)
	for _, run := range r.s.runs {
		if filter.DefinitionID != nil && run.DefinitionID != *filter.DefinitionID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

// ListRunning возвращает runs в RUNNING, начатые раньше before.
func (r *Runs) ListRunning(_ context.Context, before time.Time, limit int) ([]domain.Run, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Run, 0)
	for _, run := range r.s.runs {
		if run.Status == domain.RunStatusRunning && run.StartedAt.Before(before) {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return page(out, limit, 0), nil
}

// ──────────────────────────────────────────────────
// Task instances
// ──────────────────────────────────────────────────

// Tasks реализует контракт repo.TaskRepo.
type Tasks struct{ s *Store }

// Begin создаёт instance в статусе RUNNING.
func (t *Tasks) Begin(_ context.Context, req repo.BeginRequest) (uuid.UUID, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	ti := &domain.TaskInstance{
		ID:         uuid.New(),
		RunID:      req.RunID,
		TaskName:   req.TaskName,
		Executor:   req.Executor,
		Status:     domain.TaskStatusRunning,
		DispatchID: req.DispatchID,
		StartedAt:  t.s.now(),
	}
	t.s.tasks = append(t.s.tasks, ti)
	return ti.ID, nil
}

// Finish закрывает последний instance пары (run_id, task_name).
func (t *Tasks) Finish(_ context.Context, runID uuid.UUID, taskName string, status domain.TaskStatus, result map[string]any) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish with %s", repo.ErrInvalidState, status)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Последний по started_at; при равенстве — последний вставленный.
	var latest *domain.TaskInstance
	for _, ti := range t.s.tasks {
		if ti.RunID != runID || ti.TaskName != taskName {
			continue
		}
		if latest == nil || !ti.StartedAt.Before(latest.StartedAt) {
			latest = ti
		}
	}
	if latest == nil {
		return fmt.Errorf("%w: no instance for task %s in run %s", repo.ErrNotFound, taskName, runID)
	}
	if !latest.Finish(status, cloneMap(result), t.s.now()) {
		return fmt.Errorf("%w: task %s already finished with %s", repo.ErrInvalidState, taskName, latest.Status)
	}
	return nil
}

// ListByRun возвращает instances run в порядке начала выполнения.
func (t *Tasks) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.TaskInstance, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make([]domain.TaskInstance, 0)
	for _, ti := range t.s.tasks {
		if ti.RunID == runID {
			cp := *ti
			cp.Result = cloneMap(ti.Result)
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Outcomes возвращает итог каждой задачи run (SUCCESS важнее FAILURE, FAILURE важнее RUNNING).
func (t *Tasks) Outcomes(_ context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	rank := map[domain.TaskStatus]int{
		domain.TaskStatusRunning: 0,
		domain.TaskStatusFailure: 1,
		domain.TaskStatusSuccess: 2,
	}
	out := make(map[string]domain.TaskStatus)
	for _, ti := range t.s.tasks {
		if ti.RunID != runID {
			continue
		}
		if cur, ok := out[ti.TaskName]; !ok || rank[ti.Status] > rank[cur] {
			out[ti.TaskName] = ti.Status
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Barriers
// ──────────────────────────────────────────────────

// Barriers реализует контракт repo.BarrierRepo.
type Barriers struct{ s *Store }

// Create регистрирует barrier.
func (b *Barriers) Create(_ context.Context, barrier *domain.Barrier) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if _, ok := b.s.barriers[barrier.ID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *barrier
	cp.Members = append([]domain.BarrierMember(nil), barrier.Members...)
	cp.Continuation = append(json.RawMessage(nil), barrier.Continuation...)
	b.s.barriers[barrier.ID] = &cp
	return nil
}

// MarkDispatched отмечает, что все участники разосланы.
func (b *Barriers) MarkDispatched(_ context.Context, barrierID uuid.UUID) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if barrier, ok := b.s.barriers[barrierID]; ok && barrier.DispatchedAt == nil {
		now := b.s.now()
		barrier.DispatchedAt = &now
	}
	return nil
}

// MarkDone отмечает участника как завершённого. Повторная отметка — no-op.
func (b *Barriers) MarkDone(_ context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	barrier, ok := b.s.barriers[barrierID]
	if !ok {
		return fmt.Errorf("%w: barrier %s", repo.ErrNotFound, barrierID)
	}
	for i := range barrier.Members {
		m := &barrier.Members[i]
		if m.JobID != jobID {
			continue
		}
		if m.DoneAt == nil {
			now := b.s.now()
			st := status
			m.DoneAt = &now
			m.Status = &st
		}
		return nil
	}
	return fmt.Errorf("%w: job %s in barrier %s", repo.ErrNotFound, jobID, barrierID)
}

// Claim закрывает barrier и возвращает continuation только одному вызывающему.
func (b *Barriers) Claim(_ context.Context, barrierID uuid.UUID) (json.RawMessage, bool, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	barrier, ok := b.s.barriers[barrierID]
	if !ok || barrier.IsFired() || barrier.Open() > 0 {
		return nil, false, nil
	}
	now := b.s.now()
	barrier.FiredAt = &now
	return append(json.RawMessage(nil), barrier.Continuation...), true, nil
}

// Release снимает отметку fired_at.
func (b *Barriers) Release(_ context.Context, barrierID uuid.UUID) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if barrier, ok := b.s.barriers[barrierID]; ok {
		barrier.FiredAt = nil
	}
	return nil
}

// Get возвращает barrier с участниками.
func (b *Barriers) Get(_ context.Context, barrierID uuid.UUID) (*domain.Barrier, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	barrier, ok := b.s.barriers[barrierID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *barrier
	cp.Members = append([]domain.BarrierMember(nil), barrier.Members...)
	return &cp, nil
}

// HasOpen проверяет, есть ли у run barrier с неотправленным continuation.
func (b *Barriers) HasOpen(_ context.Context, runID uuid.UUID) (bool, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	for _, barrier := range b.s.barriers {
		if barrier.RunID == runID && !barrier.IsFired() {
			return true, nil
		}
	}
	return false, nil
}

// MemberOutcomes возвращает статусы завершённых участников barriers run.
func (b *Barriers) MemberOutcomes(_ context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	out := make(map[string]domain.TaskStatus)
	for _, barrier := range b.s.barriers {
		if barrier.RunID != runID {
			continue
		}
		for _, m := range barrier.Members {
			if m.DoneAt == nil || m.Status == nil || out[m.TaskName] == domain.TaskStatusSuccess {
				continue
			}
			out[m.TaskName] = *m.Status
		}
	}
	return out, nil
}

// ListStalled возвращает открытые barriers RUNNING runs, созданные раньше before.
func (b *Barriers) ListStalled(_ context.Context, before time.Time, limit int) ([]repo.StalledBarrier, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	out := make([]repo.StalledBarrier, 0)
	for _, barrier := range b.s.barriers {
		if barrier.IsFired() || !barrier.CreatedAt.Before(before) {
			continue
		}
		if run, ok := b.s.runs[barrier.RunID]; !ok || run.Status != domain.RunStatusRunning {
			continue
		}
		out = append(out, repo.StalledBarrier{
			ID:        barrier.ID,
			RunID:     barrier.RunID,
			Open:      barrier.Open(),
			CreatedAt: barrier.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

// ──────────────────────────────────────────────────
// Standalone tasks
// ──────────────────────────────────────────────────

// Standalone реализует контракт repo.StandaloneRepo.
type Standalone struct{ s *Store }

// Create сохраняет standalone задачу.
func (st *Standalone) Create(_ context.Context, task *domain.StandaloneTask) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	if _, ok := st.s.standalone[task.ID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *task
	st.s.standalone[task.ID] = &cp
	return nil
}

// Get возвращает standalone задачу по ID.
func (st *Standalone) Get(_ context.Context, id uuid.UUID) (*domain.StandaloneTask, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	task, ok := st.s.standalone[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

// List возвращает standalone задачи, новые первыми.
func (st *Standalone) List(_ context.Context, limit, offset int) ([]domain.StandaloneTask, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	out := make([]domain.StandaloneTask, 0, len(st.s.standalone))
	for _, task := range st.s.standalone {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

// Schedules реализует контракт repo.ScheduleRepo.
type Schedules struct{ s *Store }

// Create сохраняет schedule.
func (sc *Schedules) Create(_ context.Context, schedule *domain.Schedule) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()

	if _, ok := sc.s.schedules[schedule.ID]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *schedule
	sc.s.schedules[schedule.ID] = &cp
	return nil
}

// GetByID возвращает schedule по ID.
func (sc *Schedules) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()

	schedule, ok := sc.s.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *schedule
	return &cp, nil
}

// List возвращает schedules по фильтру.
func (sc *Schedules) List(_ context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error) {
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()

	out := make([]domain.Schedule, 0)
	for _, s := range sc.s.schedules {
		if filter.DefinitionID != nil && (s.DefinitionID == nil || *s.DefinitionID != *filter.DefinitionID) {
			continue
		}
		if filter.TaskID != nil && (s.TaskID == nil || *s.TaskID != *filter.TaskID) {
			continue
		}
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

// ListDue возвращает schedules, которые пора запускать.
func (sc *Schedules) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	sc.s.mu.RLock()
	defer sc.s.mu.RUnlock()

	out := make([]domain.Schedule, 0)
	for _, s := range sc.s.schedules {
		if s.IsDue(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(*out[j].NextDueAt) })
	return page(out, limit, 0), nil
}

// Update обновляет schedule.
func (sc *Schedules) Update(_ context.Context, schedule *domain.Schedule) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()

	if _, ok := sc.s.schedules[schedule.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *schedule
	sc.s.schedules[schedule.ID] = &cp
	return nil
}

// Delete удаляет schedule.
func (sc *Schedules) Delete(_ context.Context, id uuid.UUID) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()

	if _, ok := sc.s.schedules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(sc.s.schedules, id)
	return nil
}

// SetEnabled включает/выключает schedule.
func (sc *Schedules) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()

	s, ok := sc.s.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Enabled = enabled
	s.UpdatedAt = sc.s.now()
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
