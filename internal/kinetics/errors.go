package kinetics

import (
	"errors"
	"fmt"

	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/state"
)

var (
	// ErrStepFailed indicates that error control exhausted its retries or
	// the step size fell below the configured minimum.
	ErrStepFailed = errors.New("kinetics: step failed")

	// ErrInvalidTransition indicates an operation not permitted in the
	// solver's current status.
	ErrInvalidTransition = errors.New("kinetics: invalid transition")

	// ErrNotInitialized indicates stepping before Initialize, or with a
	// state other than the one the solver was initialised with.
	ErrNotInitialized = errors.New("kinetics: solver not initialized for this state")

	// ErrInvalidOptions indicates out-of-range numerical options.
	ErrInvalidOptions = errors.New("kinetics: invalid options")

	// ErrInvalidReaction indicates a malformed reaction or equation.
	ErrInvalidReaction = errors.New("kinetics: invalid reaction")

	ErrDimensionMismatch   = state.ErrDimensionMismatch
	ErrEquilibrationFailed = equilibrium.ErrEquilibrationFailed
)

// StepError wraps a step failure with the step count and time at which
// it happened.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d at t=%g: %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
