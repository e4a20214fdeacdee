package integrators

// Dormand-Prince coefficients (RK45)
const (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// DormandPrince is the embedded 5(4) pair. It returns the fifth-order
// solution and the difference to the embedded fourth-order one.
type DormandPrince struct {
	buf buffers
}

func NewDormandPrince() *DormandPrince {
	return &DormandPrince{}
}

func (d *DormandPrince) Name() string { return "dopri5" }
func (d *DormandPrince) Order() int   { return 4 }

func (d *DormandPrince) Step(f Func, t, h float64, u, out, errEst []float64) {
	d.buf.ensure(7, len(u))
	k := d.buf.k
	x := d.buf.scratch

	f(t, u, k[0])

	for i := range u {
		x[i] = u[i] + h*b21*k[0][i]
	}
	f(t+a2*h, x, k[1])

	for i := range u {
		x[i] = u[i] + h*(b31*k[0][i]+b32*k[1][i])
	}
	f(t+a3*h, x, k[2])

	for i := range u {
		x[i] = u[i] + h*(b41*k[0][i]+b42*k[1][i]+b43*k[2][i])
	}
	f(t+a4*h, x, k[3])

	for i := range u {
		x[i] = u[i] + h*(b51*k[0][i]+b52*k[1][i]+b53*k[2][i]+b54*k[3][i])
	}
	f(t+a5*h, x, k[4])

	for i := range u {
		x[i] = u[i] + h*(b61*k[0][i]+b62*k[1][i]+b63*k[2][i]+b64*k[3][i]+b65*k[4][i])
	}
	f(t+h, x, k[5])

	for i := range u {
		out[i] = u[i] + h*(c1*k[0][i]+c3*k[2][i]+c4*k[3][i]+c5*k[4][i]+c6*k[5][i])
	}
	f(t+h, out, k[6])

	for i := range u {
		errEst[i] = h * (dc1*k[0][i] + dc3*k[2][i] + dc4*k[3][i] + dc5*k[4][i] + dc6*k[5][i] + dc7*k[6][i])
	}
}
