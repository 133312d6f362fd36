package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/engine"
)

// ListTasks возвращает standalone задачи.
// GET /api/v1/tasks?limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	tasks, err := h.standalone.List(r.Context(), limit, offset)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, tasks, len(tasks))
}

// CreateTask сохраняет standalone задачу.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if strings.TrimSpace(req.TaskName) == "" {
		ValidationFailed(w, engine.NewValidationError("", "task_name", "task_name is required", nil))
		return
	}
	if req.Executor == "" {
		req.Executor = domain.ExecutorScript
	}
	if err := engine.ValidateExecutor(req.Executor, h.allowed); err != nil {
		ValidationFailed(w, err)
		return
	}

	task := &domain.StandaloneTask{
		ID:            uuid.New(),
		TaskName:      req.TaskName,
		Executor:      req.Executor,
		DefaultParams: req.DefaultParams,
		CreatedAt:     h.now().UTC(),
	}
	if err := h.standalone.Create(r.Context(), task); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, task)
}

// GetTask возвращает standalone задачу.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}

	task, err := h.standalone.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, task)
}

// RunTask отправляет standalone задачу с переопределёнными параметрами.
// POST /api/v1/tasks/{id}/run
//
// Тело необязательно. Ответ 202: задача только поставлена в очередь.
func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}

	var req RunTaskRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	out, err := h.launcher.RunStandalone(r.Context(), id, req.Params)
	if HandleLaunchError(w, h.logger, err) {
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: out})
}

// decodeOptional декодирует тело, если оно есть. Пустое тело — не ошибка.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	BadRequest(w, "invalid request body")
	return false
}
