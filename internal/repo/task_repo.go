package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/zuriflow/internal/domain"
)

// TaskRepo — трекер task instances.
//
// Instances создаёт и закрывает только executor, которому принадлежит задача.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// BeginRequest — параметры начала выполнения задачи.
type BeginRequest struct {
	RunID      uuid.UUID
	TaskName   string
	Executor   domain.ExecutorKind
	DispatchID string
}

const taskColumns = `id, run_id, task_name, executor, status, dispatch_id, result, started_at, completed_at`

// Begin создаёт instance в статусе RUNNING и возвращает его ID.
func (r *TaskRepo) Begin(ctx context.Context, req BeginRequest) (uuid.UUID, error) {
	id := uuid.New()

	query := `
		INSERT INTO task_instances (id, run_id, task_name, executor, status, dispatch_id, started_at)
		VALUES ($1, $2, $3, $4, 'RUNNING', $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		id,
		req.RunID,
		req.TaskName,
		req.Executor,
		nullString(req.DispatchID),
		time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert task instance: %w", err)
	}
	return id, nil
}

// Finish закрывает последний instance пары (run_id, task_name).
//
// Нет instance — ErrNotFound (begin не был вызван).
// Последний instance уже закрыт — ErrInvalidState.
func (r *TaskRepo) Finish(ctx context.Context, runID uuid.UUID, taskName string, status domain.TaskStatus, result map[string]any) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish with %s", ErrInvalidState, status)
	}

	resultJSON, err := marshalJSONB("result", result)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	var current domain.TaskStatus
	err = tx.QueryRow(ctx, `
		SELECT id, status
		FROM task_instances
		WHERE run_id = $1 AND task_name = $2
		ORDER BY started_at DESC, seq DESC
		LIMIT 1
		FOR UPDATE
	`, runID, taskName).Scan(&id, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: no instance for task %s in run %s", ErrNotFound, taskName, runID)
	}
	if err != nil {
		return fmt.Errorf("select task instance: %w", err)
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: task %s already finished with %s", ErrInvalidState, taskName, current)
	}

	_, err = tx.Exec(ctx, `
		UPDATE task_instances
		SET status = $2, result = $3, completed_at = $4
		WHERE id = $1
	`, id, status, resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update task instance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByRun возвращает все instances run в порядке начала выполнения.
func (r *TaskRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.TaskInstance, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM task_instances
		WHERE run_id = $1
		ORDER BY started_at ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list task instances: %w", err)
	}
	defer rows.Close()

	var tasks []domain.TaskInstance
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Outcomes возвращает итог каждой задачи run, у которой есть instances.
//
// SUCCESS, если хотя бы один instance успешен; иначе FAILURE, если хотя бы один упал;
// иначе RUNNING.
func (r *TaskRepo) Outcomes(ctx context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_name,
		       bool_or(status = 'SUCCESS') AS succeeded,
		       bool_or(status = 'FAILURE') AS failed
		FROM task_instances
		WHERE run_id = $1
		GROUP BY task_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("task outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[string]domain.TaskStatus)
	for rows.Next() {
		var name string
		var succeeded, failed bool
		if err := rows.Scan(&name, &succeeded, &failed); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		switch {
		case succeeded:
			outcomes[name] = domain.TaskStatusSuccess
		case failed:
			outcomes[name] = domain.TaskStatusFailure
		default:
			outcomes[name] = domain.TaskStatusRunning
		}
	}
	return outcomes, rows.Err()
}

// scanTask сканирует одну строку в TaskInstance.
func scanTask(row pgx.Row) (*domain.TaskInstance, error) {
	var task domain.TaskInstance
	var dispatchID *string
	var resultJSON []byte

	err := row.Scan(
		&task.ID,
		&task.RunID,
		&task.TaskName,
		&task.Executor,
		&task.Status,
		&dispatchID,
		&resultJSON,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task instance: %w", err)
	}

	if dispatchID != nil {
		task.DispatchID = *dispatchID
	}
	if task.Result, err = unmarshalJSONB("result", resultJSON); err != nil {
		return nil, err
	}
	return &task, nil
}
