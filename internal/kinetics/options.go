package kinetics

import (
	"fmt"

	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/integrators"
)

// Options controls integration and step-size adaptation.
type Options struct {
	// Method names the Runge-Kutta stepper: dopri5, rk4 or euler.
	Method string `yaml:"method"`

	RelTol float64 `yaml:"rel_tol"`
	AbsTol float64 `yaml:"abs_tol"`

	// Safety, MinShrink and MaxGrowth shape the step-size update
	// h' = h * clamp(Safety * err^(-1/(q+1)), MinShrink, MaxGrowth).
	Safety    float64 `yaml:"safety"`
	MinShrink float64 `yaml:"min_shrink"`
	MaxGrowth float64 `yaml:"max_growth"`

	// MaxRetries is the number of consecutive rejections tolerated
	// within one step.
	MaxRetries int `yaml:"max_retries"`

	// InitialStep overrides the starting step heuristic when positive.
	InitialStep float64 `yaml:"initial_step"`
	MinStep     float64 `yaml:"min_step"`

	// MaxStep caps every step when positive.
	MaxStep float64 `yaml:"max_step"`

	Equilibrium equilibrium.Options `yaml:"equilibrium"`
}

func DefaultOptions() Options {
	ctrl := integrators.DefaultController()
	return Options{
		Method:      "dopri5",
		RelTol:      ctrl.RelTol,
		AbsTol:      ctrl.AbsTol,
		Safety:      ctrl.Safety,
		MinShrink:   ctrl.MinShrink,
		MaxGrowth:   ctrl.MaxGrowth,
		MaxRetries:  20,
		MinStep:     1e-12,
		Equilibrium: equilibrium.DefaultOptions(),
	}
}

// Validate reports the first out-of-range option.
func (o Options) Validate() error {
	switch {
	case !(o.RelTol > 0):
		return fmt.Errorf("%w: rel_tol must be positive, got %g", ErrInvalidOptions, o.RelTol)
	case !(o.AbsTol > 0):
		return fmt.Errorf("%w: abs_tol must be positive, got %g", ErrInvalidOptions, o.AbsTol)
	case !(o.Safety > 0 && o.Safety <= 1):
		return fmt.Errorf("%w: safety must be in (0, 1], got %g", ErrInvalidOptions, o.Safety)
	case !(o.MinShrink > 0 && o.MinShrink < 1):
		return fmt.Errorf("%w: min_shrink must be in (0, 1), got %g", ErrInvalidOptions, o.MinShrink)
	case !(o.MaxGrowth > 1):
		return fmt.Errorf("%w: max_growth must exceed 1, got %g", ErrInvalidOptions, o.MaxGrowth)
	case o.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must be non-negative, got %d", ErrInvalidOptions, o.MaxRetries)
	case o.InitialStep < 0 || o.MinStep < 0 || o.MaxStep < 0:
		return fmt.Errorf("%w: step sizes must be non-negative", ErrInvalidOptions)
	case o.MaxStep > 0 && o.MinStep > o.MaxStep:
		return fmt.Errorf("%w: min_step %g exceeds max_step %g", ErrInvalidOptions, o.MinStep, o.MaxStep)
	}
	if _, err := integrators.New(o.Method); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if _, err := equilibrium.NewSolver(o.Equilibrium); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options) controller() integrators.Controller {
	return integrators.Controller{
		RelTol:    o.RelTol,
		AbsTol:    o.AbsTol,
		Safety:    o.Safety,
		MinShrink: o.MinShrink,
		MaxGrowth: o.MaxGrowth,
	}
}
