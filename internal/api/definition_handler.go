package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/engine"
)

// ListDefinitions возвращает список definitions.
// GET /api/v1/definitions?limit=...&offset=...
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	defs, err := h.definitions.List(r.Context(), limit, offset)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DefinitionResponse, len(defs))
	for i, d := range defs {
		result[i] = DefinitionFromDomain(d)
	}

	List(w, result, len(result))
}

// CreateDefinition валидирует и сохраняет definition.
// POST /api/v1/definitions
//
// Циклы не отклоняются: ответ содержит warnings, а run такого
// definition завершится FAILURE (stuck).
func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	var spec CreateDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if strings.TrimSpace(spec.Name) == "" {
		ValidationFailed(w, engine.NewValidationError("", "name", "name is required", nil))
		return
	}
	if spec.Tasks == nil {
		spec.Tasks = make(map[string]domain.TaskSpec)
	}
	normalizeExecutors(&spec)

	if err := engine.Validate(&spec, h.allowed); err != nil {
		ValidationFailed(w, err)
		return
	}

	var warnings []string
	if blocked := engine.FindCycle(spec.Tasks); len(blocked) > 0 {
		warnings = append(warnings, "tasks blocked by a dependency cycle: "+strings.Join(blocked, ", "))
		h.logger.Warn("definition contains a dependency cycle", "name", spec.Name, "blocked", blocked)
	}

	def := &domain.Definition{
		ID:        uuid.New(),
		Name:      spec.Name,
		Spec:      spec,
		CreatedAt: h.now().UTC(),
	}
	if err := h.definitions.Create(r.Context(), def); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	resp := DefinitionFromDomain(*def)
	resp.Warnings = warnings
	Created(w, resp)
}

// GetDefinition возвращает definition по ID.
// GET /api/v1/definitions/{id}
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "definition")
	if !ok {
		return
	}

	def, err := h.definitions.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "definition not found") {
		return
	}

	Success(w, DefinitionFromDomain(*def))
}

// DeleteDefinition удаляет definition.
// DELETE /api/v1/definitions/{id}
//
// Runs, уже ссылающиеся на definition, завершатся FAILURE на следующем шаге.
func (h *Handler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "definition")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.definitions.Delete(r.Context(), id), "definition not found") {
		return
	}

	NoContent(w)
}
