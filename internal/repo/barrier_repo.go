package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/zuriflow/internal/domain"
)

// BarrierRepo — хранилище barriers для fan-out/join поверх очереди.
//
// Закрытие barrier — один условный UPDATE: из конкурирующих воркеров,
// завершивших последние jobs, continuation получает ровно один.
type BarrierRepo struct {
	pool *pgxpool.Pool
}

// NewBarrierRepo создаёт новый BarrierRepo.
func NewBarrierRepo(pool *pgxpool.Pool) *BarrierRepo {
	return &BarrierRepo{pool: pool}
}

// Create регистрирует barrier вместе с участниками.
// Barrier с таким ID уже есть — ErrAlreadyExists.
func (r *BarrierRepo) Create(ctx context.Context, b *domain.Barrier) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO barriers (id, run_id, continuation, created_at)
		VALUES ($1, $2, $3, $4)
	`, b.ID, b.RunID, []byte(b.Continuation), b.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert barrier: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range b.Members {
		batch.Queue(`
			INSERT INTO barrier_members (barrier_id, job_id, task_name)
			VALUES ($1, $2, $3)
		`, b.ID, m.JobID, m.TaskName)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert barrier members: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MarkDispatched отмечает, что все участники barrier разосланы.
func (r *BarrierRepo) MarkDispatched(ctx context.Context, barrierID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE barriers SET dispatched_at = COALESCE(dispatched_at, $2) WHERE id = $1
	`, barrierID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark barrier dispatched: %w", err)
	}
	return nil
}

// MarkDone отмечает участника как завершённого. Повторная отметка — no-op.
// Неизвестный участник — ErrNotFound.
func (r *BarrierRepo) MarkDone(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE barrier_members
		SET status = COALESCE(status, $3), done_at = COALESCE(done_at, $4)
		WHERE barrier_id = $1 AND job_id = $2
	`, barrierID, jobID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark barrier member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s in barrier %s", ErrNotFound, jobID, barrierID)
	}
	return nil
}

// Claim закрывает barrier, если все участники завершены и continuation ещё не отправлен.
// Возвращает continuation и true только одному вызывающему.
func (r *BarrierRepo) Claim(ctx context.Context, barrierID uuid.UUID) (json.RawMessage, bool, error) {
	var continuation []byte
	err := r.pool.QueryRow(ctx, `
		UPDATE barriers b
		SET fired_at = $2
		WHERE b.id = $1
		  AND b.fired_at IS NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM barrier_members m
		      WHERE m.barrier_id = b.id AND m.done_at IS NULL
		  )
		RETURNING b.continuation
	`, barrierID, time.Now().UTC()).Scan(&continuation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim barrier: %w", err)
	}
	return continuation, true, nil
}

// Release снимает отметку fired_at, если continuation не удалось отправить.
func (r *BarrierRepo) Release(ctx context.Context, barrierID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE barriers SET fired_at = NULL WHERE id = $1`, barrierID)
	if err != nil {
		return fmt.Errorf("release barrier: %w", err)
	}
	return nil
}

// Get возвращает barrier с участниками.
func (r *BarrierRepo) Get(ctx context.Context, barrierID uuid.UUID) (*domain.Barrier, error) {
	var b domain.Barrier
	var continuation []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, run_id, continuation, created_at, dispatched_at, fired_at
		FROM barriers WHERE id = $1
	`, barrierID).Scan(&b.ID, &b.RunID, &continuation, &b.CreatedAt, &b.DispatchedAt, &b.FiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get barrier: %w", err)
	}
	b.Continuation = continuation

	rows, err := r.pool.Query(ctx, `
		SELECT job_id, task_name, status, done_at
		FROM barrier_members WHERE barrier_id = $1
		ORDER BY task_name
	`, barrierID)
	if err != nil {
		return nil, fmt.Errorf("list barrier members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.BarrierMember
		if err := rows.Scan(&m.JobID, &m.TaskName, &m.Status, &m.DoneAt); err != nil {
			return nil, fmt.Errorf("scan barrier member: %w", err)
		}
		b.Members = append(b.Members, m)
	}
	return &b, rows.Err()
}

// HasOpen проверяет, есть ли у run barrier с неотправленным continuation.
func (r *BarrierRepo) HasOpen(ctx context.Context, runID uuid.UUID) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM barriers WHERE run_id = $1 AND fired_at IS NULL)
	`, runID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open barriers: %w", err)
	}
	return open, nil
}

// MemberOutcomes возвращает статусы завершённых участников barriers run.
//
// SUCCESS, если хотя бы один участник с этим именем успешен; иначе FAILURE.
func (r *BarrierRepo) MemberOutcomes(ctx context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.task_name, bool_or(m.status = 'SUCCESS')
		FROM barrier_members m
		JOIN barriers b ON b.id = m.barrier_id
		WHERE b.run_id = $1 AND m.done_at IS NOT NULL
		GROUP BY m.task_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("barrier member outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[string]domain.TaskStatus)
	for rows.Next() {
		var name string
		var succeeded bool
		if err := rows.Scan(&name, &succeeded); err != nil {
			return nil, fmt.Errorf("scan member outcome: %w", err)
		}
		outcomes[name] = domain.TaskStatusFailure
		if succeeded {
			outcomes[name] = domain.TaskStatusSuccess
		}
	}
	return outcomes, rows.Err()
}

// StalledBarrier — открытый barrier, созданный давно.
type StalledBarrier struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	Open      int
	CreatedAt time.Time
}

// ListStalled возвращает открытые barriers RUNNING runs, созданные раньше before.
func (r *BarrierRepo) ListStalled(ctx context.Context, before time.Time, limit int) ([]StalledBarrier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.run_id, b.created_at,
		       (SELECT count(*) FROM barrier_members m WHERE m.barrier_id = b.id AND m.done_at IS NULL)
		FROM barriers b
		JOIN workflow_runs r ON r.id = b.run_id AND r.status = 'RUNNING'
		WHERE b.fired_at IS NULL AND b.created_at < $1
		ORDER BY b.created_at ASC
		LIMIT $2
	`, before, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list stalled barriers: %w", err)
	}
	defer rows.Close()

	var stalled []StalledBarrier
	for rows.Next() {
		var s StalledBarrier
		if err := rows.Scan(&s.ID, &s.RunID, &s.CreatedAt, &s.Open); err != nil {
			return nil, fmt.Errorf("scan stalled barrier: %w", err)
		}
		stalled = append(stalled, s)
	}
	return stalled, rows.Err()
}
