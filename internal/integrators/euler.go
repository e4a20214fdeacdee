package integrators

// Euler is the forward Euler method. The error is estimated by step
// doubling: one full step is compared against two half steps, and the
// half-step result is returned.
type Euler struct {
	buf  buffers
	full []float64
}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }
func (e *Euler) Order() int   { return 1 }

func (e *Euler) Step(f Func, t, h float64, u, out, errEst []float64) {
	n := len(u)
	e.buf.ensure(1, n)
	if len(e.full) != n {
		e.full = make([]float64, n)
	}
	k := e.buf.k[0]
	mid := e.buf.scratch

	f(t, u, k)
	for i := range u {
		e.full[i] = u[i] + h*k[i]
		mid[i] = u[i] + 0.5*h*k[i]
	}

	f(t+0.5*h, mid, k)
	for i := range u {
		out[i] = mid[i] + 0.5*h*k[i]
		errEst[i] = out[i] - e.full[i]
	}
}
