package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/scheduler"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?definition_id=...&task_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ScheduleFilter{}
	filter.Limit, filter.Offset = pagination(r)

	for key, dst := range map[string]**uuid.UUID{
		"definition_id": &filter.DefinitionID,
		"task_id":       &filter.TaskID,
	} {
		if s := q.Get(key); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				BadRequest(w, "invalid "+key)
				return
			}
			*dst = &id
		}
	}

	if s := q.Get("enabled"); s != "" {
		enabled, err := strconv.ParseBool(s)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, schedules, len(schedules))
}

// CreateDefinitionSchedule создаёт расписание запуска definition.
// POST /api/v1/definitions/{id}/schedules
func (h *Handler) CreateDefinitionSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "definition")
	if !ok {
		return
	}

	if _, err := h.definitions.Get(r.Context(), id); HandleRepoError(w, h.logger, err, "definition not found") {
		return
	}

	var req CreateScheduleRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	sched := req.toDomain(h.now().UTC())
	sched.DefinitionID = &id
	h.createSchedule(w, r, sched)
}

// ScheduleTask создаёт расписание запуска standalone задачи.
// POST /api/v1/tasks/{id}/schedule
//
// Интервал можно передать и query-параметром interval_seconds.
func (h *Handler) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "task")
	if !ok {
		return
	}

	if _, err := h.standalone.Get(r.Context(), id); HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	var req CreateScheduleRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.IntervalSec == 0 && req.CronExpr == "" {
		req.IntervalSec = parseInt(r.URL.Query().Get("interval_seconds"), 0)
	}

	sched := req.toDomain(h.now().UTC())
	sched.TaskID = &id
	h.createSchedule(w, r, sched)
}

// createSchedule валидирует правило, вычисляет первый next_due_at и сохраняет.
func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request, sched *domain.Schedule) {
	if err := scheduler.Validate(sched); err != nil {
		Error(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	nextDue, err := scheduler.CalculateNextDue(sched, sched.CreatedAt)
	if err != nil {
		Error(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	sched.NextDueAt = &nextDue

	if err := h.schedules.Create(r.Context(), sched); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, sched)
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.schedules.Delete(r.Context(), id), "schedule not found") {
		return
	}

	NoContent(w)
}

// PauseSchedule выключает schedule.
// POST /api/v1/schedules/{id}/pause
func (h *Handler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

// ResumeSchedule включает schedule.
// POST /api/v1/schedules/{id}/resume
func (h *Handler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.schedules.SetEnabled(r.Context(), id, enabled), "schedule not found") {
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}
