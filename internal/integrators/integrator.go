// Package integrators provides explicit Runge-Kutta steppers with local
// error estimates for adaptive step-size control.
package integrators

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownMethod is returned by New for an unregistered method name.
var ErrUnknownMethod = errors.New("integrators: unknown method")

// Func evaluates the right-hand side du/dt = f(t, u) into du.
type Func func(t float64, u, du []float64)

// Stepper advances a state by one step and estimates the local error.
type Stepper interface {
	Name() string

	// Order is the order of the error estimate; the step-size controller
	// uses exponent 1/(Order+1).
	Order() int

	// Step writes u(t+h) into out and the local error estimate into errEst.
	// out and errEst must have len(u) and must not alias u.
	Step(f Func, t, h float64, u, out, errEst []float64)
}

var methods = map[string]func() Stepper{
	"euler":  func() Stepper { return NewEuler() },
	"rk4":    func() Stepper { return NewRK4() },
	"dopri5": func() Stepper { return NewDormandPrince() },
	"rk45":   func() Stepper { return NewDormandPrince() },
}

// New returns a fresh stepper for the named method.
func New(name string) (Stepper, error) {
	factory, ok := methods[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownMethod, name, strings.Join(List(), ", "))
	}
	return factory(), nil
}

// List returns the registered method names, sorted.
func List() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buffers holds per-stepper scratch space, resized when the state
// dimension changes.
type buffers struct {
	k       [][]float64
	scratch []float64
}

func (b *buffers) ensure(stages, n int) {
	if len(b.k) == stages && len(b.scratch) == n {
		return
	}
	b.k = make([][]float64, stages)
	for i := range b.k {
		b.k[i] = make([]float64, n)
	}
	b.scratch = make([]float64, n)
}
