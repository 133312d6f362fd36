package worker

import (
	"errors"
	"fmt"

	"github.com/shaiso/zuriflow/internal/domain"
)

// Ошибки воркера.
var (
	// ErrMissingParam — у задачи нет обязательного параметра.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrUnknownExecutor — нет executor'а для kind задачи.
	ErrUnknownExecutor = errors.New("unknown executor kind")

	// ErrExecutionTimeout — выполнение задачи превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrNonZeroExit — процесс завершился с ненулевым кодом.
	ErrNonZeroExit = errors.New("non-zero exit status")

	// ErrTaskPanicked — обработчик задачи вызвал panic.
	ErrTaskPanicked = errors.New("task panicked")
)

// ParamError — отсутствует обязательный параметр executor'а.
type ParamError struct {
	Kind  domain.ExecutorKind
	Param string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s task requires a '%s' parameter", e.Kind, e.Param)
}

func (e *ParamError) Unwrap() error { return ErrMissingParam }

// ExitError — процесс завершился с кодом Code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return ErrNonZeroExit }
