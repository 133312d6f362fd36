package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo"
)

// StartRun создаёт run definition и отправляет первый шаг.
// POST /api/v1/definitions/{id}/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "definition")
	if !ok {
		return
	}

	run, err := h.launcher.Start(r.Context(), id)
	if HandleLaunchError(w, h.logger, err) {
		return
	}

	Created(w, run)
}

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?definition_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{}
	filter.Limit, filter.Offset = pagination(r)

	if s := q.Get("definition_id"); s != "" {
		defID, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid definition_id")
			return
		}
		filter.DefinitionID = &defID
	}

	if s := q.Get("status"); s != "" {
		status, err := domain.ParseRunStatus(s)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Status = status
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, runs, len(runs))
}

// GetRun возвращает run и упорядоченную историю задач.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "run")
	if !ok {
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	history, err := h.tasks.ListByRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, RunDetailsResponse{Run: *run, Tasks: history})
}

// GetRunStatus возвращает статус run и его задач.
// GET /api/v1/runs/{id}/status
func (h *Handler) GetRunStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "run")
	if !ok {
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	history, err := h.tasks.ListByRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, RunStatusResponse{
		RunID:  run.ID,
		Status: run.Status,
		Error:  run.Error,
		Tasks:  latestStatuses(history),
	})
}
