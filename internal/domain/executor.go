package domain

import (
	"fmt"
	"strings"
)

// ExecutorKind — класс исполнителя задачи.
//
// Набор закрытый: неизвестный kind отклоняется при валидации definition,
// а не при отправке задачи.
type ExecutorKind string

const (
	// ExecutorScript — интерпретируемый код или зарегистрированный Go handler.
	ExecutorScript ExecutorKind = "script"

	// ExecutorShell — команда shell (sh -c).
	ExecutorShell ExecutorKind = "shell"

	// ExecutorBinary — запуск нативного бинарника.
	ExecutorBinary ExecutorKind = "binary"
)

// executorAliases — имена из старого формата definition.
var executorAliases = map[string]ExecutorKind{
	"python": ExecutorScript,
	"bash":   ExecutorShell,
	"c":      ExecutorBinary,
}

// ExecutorKinds возвращает все известные kinds в фиксированном порядке.
func ExecutorKinds() []ExecutorKind {
	return []ExecutorKind{ExecutorScript, ExecutorShell, ExecutorBinary}
}

// ParseExecutorKind парсит строку в ExecutorKind.
// Пустая строка означает ExecutorScript.
func ParseExecutorKind(s string) (ExecutorKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ExecutorScript, nil
	}
	if alias, ok := executorAliases[name]; ok {
		return alias, nil
	}
	switch k := ExecutorKind(name); k {
	case ExecutorScript, ExecutorShell, ExecutorBinary:
		return k, nil
	}
	return "", fmt.Errorf("unknown executor kind %q", s)
}

// IsValid проверяет, что kind входит в закрытый набор.
func (k ExecutorKind) IsValid() bool {
	switch k {
	case ExecutorScript, ExecutorShell, ExecutorBinary:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление ExecutorKind.
func (k ExecutorKind) String() string {
	return string(k)
}

// UnmarshalText нормализует алиасы ("python", "bash", "c").
// Неизвестные значения сохраняются как есть, их отклонит валидация.
func (k *ExecutorKind) UnmarshalText(text []byte) error {
	parsed, err := ParseExecutorKind(string(text))
	if err != nil {
		*k = ExecutorKind(strings.ToLower(strings.TrimSpace(string(text))))
		return nil
	}
	*k = parsed
	return nil
}
