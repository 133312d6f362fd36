package steps

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Ошибки обработчиков.
var (
	// ErrStepNotFound — обработчик не найден в реестре.
	ErrStepNotFound = errors.New("step handler not found")

	// ErrInvalidConfig — невалидные params.
	ErrInvalidConfig = errors.New("invalid step params")

	// ErrStepCancelled — выполнение отменено через context.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — Go-обработчик задачи.
type Step interface {
	// Name возвращает имя, под которым обработчик регистрируется.
	Name() string

	// Execute выполняет задачу. Вместе с ошибкой может вернуть частичный результат.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные обработчика.
type Request struct {
	// RunID — run, в рамках которого выполняется задача.
	RunID uuid.UUID

	// TaskName — имя задачи в definition.
	TaskName string

	// Params — параметры задачи.
	Params map[string]any
}

// Response — результат обработчика.
type Response struct {
	Outputs map[string]any
}

// NewRequest создаёт Request. Nil params заменяется пустой map.
func NewRequest(runID uuid.UUID, taskName string, params map[string]any) *Request {
	if params == nil {
		params = make(map[string]any)
	}
	return &Request{RunID: runID, TaskName: taskName, Params: params}
}

// NewResponse создаёт Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{Outputs: outputs}
}

// ParamString извлекает строковый параметр.
func ParamString(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ParamInt извлекает числовой параметр (JSON числа приходят как float64).
func ParamInt(params map[string]any, key string) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// ParamBool извлекает булев параметр.
func ParamBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// ParamStringMap извлекает map[string]string (строковые значения из map[string]any).
func ParamStringMap(params map[string]any, key string) map[string]string {
	switch m := params[key].(type) {
	case map[string]string:
		return m
	case map[string]any:
		result := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				result[k] = s
			}
		}
		return result
	}
	return nil
}

// ParamStrings извлекает список строк ([]string или []any из JSON).
func ParamStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
