package integrators

// RK4 is the classical fourth-order Runge-Kutta method with a
// step-doubling error estimate.
type RK4 struct {
	buf  buffers
	full []float64
	half []float64
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return "rk4" }
func (r *RK4) Order() int   { return 4 }

func (r *RK4) Step(f Func, t, h float64, u, out, errEst []float64) {
	n := len(u)
	r.buf.ensure(4, n)
	if len(r.full) != n {
		r.full = make([]float64, n)
		r.half = make([]float64, n)
	}

	r.advance(f, t, h, u, r.full)
	r.advance(f, t, 0.5*h, u, r.half)
	r.advance(f, t+0.5*h, 0.5*h, r.half, out)

	// Richardson: the two-half-step result is off by (out - full)/(2^4 - 1).
	for i := range u {
		errEst[i] = (out[i] - r.full[i]) / 15
	}
}

func (r *RK4) advance(f Func, t, dt float64, x, dst []float64) {
	k1, k2, k3, k4 := r.buf.k[0], r.buf.k[1], r.buf.k[2], r.buf.k[3]
	s := r.buf.scratch

	f(t, x, k1)
	for i := range x {
		s[i] = x[i] + dt*0.5*k1[i]
	}
	f(t+dt*0.5, s, k2)

	for i := range x {
		s[i] = x[i] + dt*0.5*k2[i]
	}
	f(t+dt*0.5, s, k3)

	for i := range x {
		s[i] = x[i] + dt*k3[i]
	}
	f(t+dt, s, k4)

	dt6 := dt / 6.0
	for i := range x {
		dst[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
}
