package sim

import "errors"

var (
	// ErrUnknownMode indicates a mode name other than baseline or adaptive.
	ErrUnknownMode = errors.New("sim: unknown mode")

	// ErrInvalidConfig indicates a configuration the runner refuses to start.
	ErrInvalidConfig = errors.New("sim: invalid config")
)

// StepError wraps an observer failure with the step it happened on.
type StepError struct {
	Step    int
	Wrapped error
}

func (e *StepError) Error() string {
	return e.Wrapped.Error()
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
