package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Definitions
	handle("GET /api/v1/definitions", h.ListDefinitions)
	handle("POST /api/v1/definitions", h.CreateDefinition)
	handle("GET /api/v1/definitions/{id}", h.GetDefinition)
	handle("DELETE /api/v1/definitions/{id}", h.DeleteDefinition)

	// Runs
	handle("POST /api/v1/definitions/{id}/runs", h.StartRun)
	handle("GET /api/v1/runs", h.ListRuns)
	handle("GET /api/v1/runs/{id}", h.GetRun)
	handle("GET /api/v1/runs/{id}/status", h.GetRunStatus)

	// Standalone tasks
	handle("GET /api/v1/tasks", h.ListTasks)
	handle("POST /api/v1/tasks", h.CreateTask)
	handle("GET /api/v1/tasks/{id}", h.GetTask)
	handle("POST /api/v1/tasks/{id}/run", h.RunTask)
	handle("POST /api/v1/tasks/{id}/schedule", h.ScheduleTask)

	// Schedules
	handle("GET /api/v1/schedules", h.ListSchedules)
	handle("POST /api/v1/definitions/{id}/schedules", h.CreateDefinitionSchedule)
	handle("GET /api/v1/schedules/{id}", h.GetSchedule)
	handle("DELETE /api/v1/schedules/{id}", h.DeleteSchedule)
	handle("POST /api/v1/schedules/{id}/pause", h.PauseSchedule)
	handle("POST /api/v1/schedules/{id}/resume", h.ResumeSchedule)
}
