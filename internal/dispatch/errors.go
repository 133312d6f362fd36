package dispatch

import "errors"

// Ошибки dispatch.
var (
	// ErrChordExists — batch с этим barrier id уже зарегистрирован.
	ErrChordExists = errors.New("chord already exists")

	// ErrEmptyChord — batch без участников.
	ErrEmptyChord = errors.New("chord has no members")

	// ErrNoHandler — для очереди не зарегистрирован обработчик.
	ErrNoHandler = errors.New("no handler for queue")
)
