package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/zuriflow/internal/domain"
)

// StandaloneRepo — репозиторий standalone задач.
type StandaloneRepo struct {
	pool *pgxpool.Pool
}

// NewStandaloneRepo создаёт новый StandaloneRepo.
func NewStandaloneRepo(pool *pgxpool.Pool) *StandaloneRepo {
	return &StandaloneRepo{pool: pool}
}

// Create сохраняет standalone задачу.
func (r *StandaloneRepo) Create(ctx context.Context, task *domain.StandaloneTask) error {
	paramsJSON, err := marshalJSONB("default_params", task.DefaultParams)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO standalone_tasks (id, task_name, executor, default_params, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, task.ID, task.TaskName, task.Executor, paramsJSON, task.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert standalone task: %w", err)
	}
	return nil
}

// Get возвращает standalone задачу по ID.
func (r *StandaloneRepo) Get(ctx context.Context, id uuid.UUID) (*domain.StandaloneTask, error) {
	return scanStandalone(r.pool.QueryRow(ctx, `
		SELECT id, task_name, executor, default_params, created_at
		FROM standalone_tasks WHERE id = $1
	`, id))
}

// List возвращает standalone задачи, новые первыми.
func (r *StandaloneRepo) List(ctx context.Context, limit, offset int) ([]domain.StandaloneTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_name, executor, default_params, created_at
		FROM standalone_tasks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limitOrDefault(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list standalone tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.StandaloneTask
	for rows.Next() {
		task, err := scanStandalone(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanStandalone(row pgx.Row) (*domain.StandaloneTask, error) {
	var task domain.StandaloneTask
	var paramsJSON []byte

	err := row.Scan(&task.ID, &task.TaskName, &task.Executor, &paramsJSON, &task.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan standalone task: %w", err)
	}

	if task.DefaultParams, err = unmarshalJSONB("default_params", paramsJSON); err != nil {
		return nil, err
	}
	return &task, nil
}
