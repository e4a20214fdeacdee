// Package metrics accumulates scalar summaries of a kinetic run from the
// states observed after each accepted step.
package metrics

import (
	"github.com/san-kum/reaksim/internal/state"
)

type Metric interface {
	Name() string
	Observe(st *state.ChemicalState, t float64)
	Value() float64
	Reset()
}

// Values collects the current value of each metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
