package steps

import "context"

// StepNameEcho — имя обработчика echo.
const StepNameEcho = "echo"

// EchoStep возвращает params задачи в outputs.
type EchoStep struct{}

// NewEchoStep создаёт EchoStep.
func NewEchoStep() *EchoStep {
	return &EchoStep{}
}

// Name возвращает имя обработчика.
func (s *EchoStep) Name() string {
	return StepNameEcho
}

// Execute копирует params без служебного ключа handler.
func (s *EchoStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outputs := make(map[string]any, len(req.Params))
	for k, v := range req.Params {
		if k == ParamHandler {
			continue
		}
		outputs[k] = v
	}
	return NewResponse(outputs), nil
}
