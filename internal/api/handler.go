package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/orchestrator"
	"github.com/shaiso/zuriflow/internal/repo"
)

// Значения пагинации по умолчанию.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// DefinitionStore — хранилище definitions.
type DefinitionStore interface {
	Create(ctx context.Context, def *domain.Definition) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Definition, error)
	List(ctx context.Context, limit, offset int) ([]domain.Definition, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — чтение runs.
type RunStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// TaskHistory — чтение task instances.
type TaskHistory interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.TaskInstance, error)
}

// StandaloneStore — хранилище standalone задач.
type StandaloneStore interface {
	Create(ctx context.Context, task *domain.StandaloneTask) error
	Get(ctx context.Context, id uuid.UUID) (*domain.StandaloneTask, error)
	List(ctx context.Context, limit, offset int) ([]domain.StandaloneTask, error)
}

// ScheduleStore — хранилище расписаний.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// Launcher запускает runs и standalone задачи (orchestrator.Trigger).
type Launcher interface {
	Start(ctx context.Context, definitionID uuid.UUID) (*domain.Run, error)
	RunStandalone(ctx context.Context, taskID uuid.UUID, overrides map[string]any) (*orchestrator.StandaloneDispatch, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	definitions DefinitionStore
	runs        RunStore
	tasks       TaskHistory
	standalone  StandaloneStore
	schedules   ScheduleStore
	launcher    Launcher
	allowed     []domain.ExecutorKind
	logger      *slog.Logger
	now         func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Definitions DefinitionStore
	Runs        RunStore
	Tasks       TaskHistory
	Standalone  StandaloneStore
	Schedules   ScheduleStore
	Launcher    Launcher

	// AllowedExecutors — kinds, принимаемые при создании definitions. Пустой — все.
	AllowedExecutors []domain.ExecutorKind

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		definitions: cfg.Definitions,
		runs:        cfg.Runs,
		tasks:       cfg.Tasks,
		standalone:  cfg.Standalone,
		schedules:   cfg.Schedules,
		launcher:    cfg.Launcher,
		allowed:     cfg.AllowedExecutors,
		logger:      logger.With("component", "api"),
		now:         time.Now,
	}
}

// pathID парсит {id} из пути. При ошибке пишет 400 и возвращает false.
func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// pagination читает limit и offset из query.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit = parseInt(q.Get("limit"), defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = parseInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseInt парсит строку в int с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
