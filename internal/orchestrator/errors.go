package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrDefinitionNotFound — definition не найдено.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrTaskNotFound — standalone задача не найдена.
	ErrTaskNotFound = errors.New("standalone task not found")

	// ErrDispatchFailed — substrate не принял job.
	ErrDispatchFailed = errors.New("dispatch failed")
)
