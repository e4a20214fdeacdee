package metrics

import (
	"math"

	"github.com/san-kum/reaksim/internal/state"
)

type sample struct {
	t, v float64
}

// Relaxation reports the earliest observed time after which a query stays
// within a relative tolerance of its last observed value. Queries that
// cannot be evaluated on a state are skipped for that state.
type Relaxation struct {
	name    string
	query   string
	rtol    float64
	samples []sample
}

func NewRelaxation(query string, rtol float64) *Relaxation {
	return &Relaxation{
		name:  "relaxation_time:" + query,
		query: query,
		rtol:  rtol,
	}
}

func (r *Relaxation) Name() string { return r.name }

func (r *Relaxation) Observe(st *state.ChemicalState, t float64) {
	v, err := state.Extract(st, r.query)
	if err != nil {
		return
	}
	r.samples = append(r.samples, sample{t, v})
}

func (r *Relaxation) Value() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	last := r.samples[len(r.samples)-1].v
	tol := r.rtol * math.Max(math.Abs(last), 1e-300)
	k := len(r.samples) - 1
	for k > 0 && math.Abs(r.samples[k-1].v-last) <= tol {
		k--
	}
	return r.samples[k].t
}

func (r *Relaxation) Reset() {
	r.samples = r.samples[:0]
}
