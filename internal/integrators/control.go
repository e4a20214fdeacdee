package integrators

import "math"

// Controller turns a local error estimate into an accept/reject decision
// and a new step size.
type Controller struct {
	RelTol    float64
	AbsTol    float64
	Safety    float64
	MinShrink float64
	MaxGrowth float64
}

func DefaultController() Controller {
	return Controller{
		RelTol:    1e-6,
		AbsTol:    1e-10,
		Safety:    0.9,
		MinShrink: 0.2,
		MaxGrowth: 10.0,
	}
}

// ErrorNorm returns max_i |e_i| / (atol + rtol*max(|u_i|, |v_i|)), where
// u is the state before and v the state after the step. A value <= 1
// means the step meets the tolerance.
func (c Controller) ErrorNorm(errEst, u, v []float64) float64 {
	norm := 0.0
	for i, e := range errEst {
		scale := c.AbsTol + c.RelTol*math.Max(math.Abs(u[i]), math.Abs(v[i]))
		norm = math.Max(norm, math.Abs(e)/scale)
	}
	return norm
}

// Next returns the step size to try after a step of size h with the given
// error norm, for an error estimate of the given order.
func (c Controller) Next(h, errNorm float64, order int) float64 {
	exp := -1.0 / float64(order+1)
	switch {
	case math.IsNaN(errNorm) || math.IsInf(errNorm, 1):
		return h * c.MinShrink
	case errNorm > 1:
		return h * math.Max(c.MinShrink, c.Safety*math.Pow(errNorm, exp))
	case errNorm > 0:
		return h * math.Min(c.MaxGrowth, c.Safety*math.Pow(errNorm, exp))
	default:
		return h * c.MaxGrowth
	}
}
