package steps

import (
	"context"
	"fmt"
	"time"
)

const (
	// StepNameDelay — имя обработчика задержки.
	StepNameDelay = "delay"

	paramDurationSec = "duration_sec"
	paramDurationMs  = "duration_ms"
)

// DelayStep приостанавливает задачу на указанное время.
// Отмена context прерывает паузу.
//
// Params:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Name возвращает имя обработчика.
func (s *DelayStep) Name() string {
	return StepNameDelay
}

// Execute выполняет задержку.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := parseDuration(req.Params)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return NewResponse(map[string]any{
			"duration_ms": duration.Milliseconds(),
		}), nil
	}
}

// parseDuration извлекает длительность: duration_sec, затем duration_ms.
func parseDuration(params map[string]any) (time.Duration, error) {
	if sec := ParamInt(params, paramDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := ParamInt(params, paramDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, StepNameDelay)
}
