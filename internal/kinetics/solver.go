// Package kinetics advances a chemical state in time by operator
// splitting: kinetic species follow their reaction rates while
// equilibrium species are re-equilibrated after every accepted step.
//
// The integrated vector is u = [n_k; b_e], the kinetic amounts followed
// by the element amounts held by equilibrium species:
//
//	dn_k/dt = Nk^T r(T, P, n)
//	db_e/dt = Ae Ne^T r(T, P, n)
//
// with equilibrium and inert amounts frozen during the stage evaluations.
// After integration the equilibrium species are redistributed to match
// b_e, so element totals are conserved up to the solver tolerances.
// Inert species are never modified.
package kinetics

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/integrators"
	"github.com/san-kum/reaksim/internal/partition"
	"github.com/san-kum/reaksim/internal/state"
)

// Status is the solver lifecycle position.
type Status int

const (
	Unconfigured Status = iota
	Initialized
	Stepping
	Done
)

func (s Status) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Initialized:
		return "initialized"
	case Stepping:
		return "stepping"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Observer is notified after every accepted step.
type Observer interface {
	OnStep(st *state.ChemicalState, t float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(st *state.ChemicalState, t float64)

func (f ObserverFunc) OnStep(st *state.ChemicalState, t float64) { f(st, t) }

// Solver is a kinetic integration session. It is not safe for concurrent
// use.
type Solver struct {
	reactions *ReactionSystem
	opts      Options
	stepper   integrators.Stepper
	ctrl      integrators.Controller
	eq        *equilibrium.Solver
	logger    *slog.Logger
	observers []Observer

	part   partition.Partition
	ikin   []int
	ieq    []int
	nuKinT mat.Matrix // kinetic species x reactions
	elemNu *mat.Dense // elements x reactions, nil without equilibrium species or reactions

	status Status
	bound  *state.ChemicalState
	h      float64
	steps  int
	rates  []float64

	out    []float64
	errEst []float64
}

// NewSolver creates a solver with default options and a partition that
// makes every species kinetic.
func NewSolver(reactions *ReactionSystem) *Solver {
	s := &Solver{
		reactions: reactions,
		logger:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
	}
	if err := s.applyOptions(DefaultOptions()); err != nil {
		panic(err)
	}
	s.installPartition(partition.AllKinetic(reactions.System()))
	return s
}

func (s *Solver) Status() Status                 { return s.status }
func (s *Solver) Options() Options               { return s.opts }
func (s *Solver) Partition() partition.Partition { return s.part }
func (s *Solver) Reactions() *ReactionSystem     { return s.reactions }
func (s *Solver) Steps() int                     { return s.steps }
func (s *Solver) StepSize() float64              { return s.h }
func (s *Solver) AddObserver(o Observer)         { s.observers = append(s.observers, o) }
func (s *Solver) LastRates() []float64           { return append([]float64(nil), s.rates...) }

// SetLogger directs rejected steps and equilibrium failures to l. A nil
// logger discards them.
func (s *Solver) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	s.logger = l
}

// Configure replaces the options. It is only permitted before stepping.
func (s *Solver) Configure(opts Options) error {
	if s.status != Unconfigured && s.status != Initialized {
		return fmt.Errorf("%w: cannot configure a solver that is %s", ErrInvalidTransition, s.status)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := s.applyOptions(opts); err != nil {
		return err
	}
	if s.opts.MaxStep > 0 {
		s.h = math.Min(s.h, s.opts.MaxStep)
	}
	return nil
}

func (s *Solver) applyOptions(opts Options) error {
	stepper, err := integrators.New(opts.Method)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	eq, err := equilibrium.NewSolver(opts.Equilibrium)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	s.opts = opts
	s.stepper = stepper
	s.ctrl = opts.controller()
	s.eq = eq
	return nil
}

// SetPartition installs p. It may be called in any status and takes
// effect from the next step.
func (s *Solver) SetPartition(p partition.Partition) error {
	if err := p.Validate(s.reactions.System().NumSpecies()); err != nil {
		return err
	}
	s.installPartition(p)
	return nil
}

// SetPartitionString parses a descriptor such as "kinetic = Calcite" and
// installs the result.
func (s *Solver) SetPartitionString(descriptor string) error {
	p, err := partition.Parse(s.reactions.System(), descriptor)
	if err != nil {
		return err
	}
	return s.SetPartition(p)
}

func (s *Solver) installPartition(p partition.Partition) {
	sys := s.reactions.System()
	s.part = p
	s.ikin = p.Kinetic()
	s.ieq = p.Equilibrium()
	s.nuKinT = nil
	s.elemNu = nil

	nu := s.reactions.nu
	if nu == nil {
		return
	}
	R := s.reactions.NumReactions()

	if len(s.ikin) > 0 {
		nk := mat.NewDense(R, len(s.ikin), nil)
		for c, i := range s.ikin {
			for k := 0; k < R; k++ {
				nk.Set(k, c, nu.At(k, i))
			}
		}
		s.nuKinT = nk.T()
	}

	if len(s.ieq) > 0 {
		A := sys.FormulaMatrix()
		ae := mat.NewDense(sys.NumElements(), len(s.ieq), nil)
		ne := mat.NewDense(R, len(s.ieq), nil)
		for c, i := range s.ieq {
			for j := 0; j < sys.NumElements(); j++ {
				ae.Set(j, c, A.At(j, i))
			}
			for k := 0; k < R; k++ {
				ne.Set(k, c, nu.At(k, i))
			}
		}
		s.elemNu = mat.NewDense(sys.NumElements(), R, nil)
		s.elemNu.Mul(ae, ne.T())
	}
}

// Initialize binds the solver to st at time t0 and chooses the first step
// size.
func (s *Solver) Initialize(st *state.ChemicalState, t0 float64) error {
	if st == nil {
		return fmt.Errorf("%w: nil state", ErrNotInitialized)
	}
	if math.IsNaN(t0) || math.IsInf(t0, 0) {
		return fmt.Errorf("%w: start time %g is not finite", ErrInvalidOptions, t0)
	}
	sys := s.reactions.System()
	if n := len(st.SpeciesAmounts()); n != sys.NumSpecies() {
		return fmt.Errorf("%w: state has %d species, reaction system has %d", ErrDimensionMismatch, n, sys.NumSpecies())
	}
	if err := s.part.Validate(sys.NumSpecies()); err != nil {
		return err
	}

	n := st.SpeciesAmounts()
	s.rates = s.reactions.Rates(st.Temperature(), st.Pressure(), n)
	u := s.pack(st, n)
	s.out = make([]float64, len(u))
	s.errEst = make([]float64, len(u))

	if s.opts.InitialStep > 0 {
		s.h = s.opts.InitialStep
	} else {
		s.h = s.initialStep(s.rhs(st.Temperature(), st.Pressure(), n), t0, u)
	}
	if s.opts.MaxStep > 0 {
		s.h = math.Min(s.h, s.opts.MaxStep)
	}

	s.bound = st
	s.steps = 0
	s.status = Initialized
	s.logger.Debug("kinetic solver initialized",
		"t0", t0,
		"h0", s.h,
		"method", s.stepper.Name(),
		"kinetic", len(s.ikin),
		"equilibrium", len(s.ieq),
	)
	return nil
}

// Step advances st by one accepted step starting at t and returns the new
// time.
func (s *Solver) Step(st *state.ChemicalState, t float64) (float64, error) {
	return s.StepMax(st, t, math.Inf(1))
}

// StepMax is Step with the step size capped at maxStep.
func (s *Solver) StepMax(st *state.ChemicalState, t, maxStep float64) (float64, error) {
	if s.status == Unconfigured || s.bound == nil || st != s.bound {
		return t, ErrNotInitialized
	}
	if !(maxStep > 0) {
		return t, fmt.Errorf("%w: max step must be positive, got %g", ErrInvalidOptions, maxStep)
	}
	s.status = Stepping

	T, P := st.Temperature(), st.Pressure()
	n0 := st.SpeciesAmounts()
	u := s.pack(st, n0)
	if len(s.out) != len(u) {
		s.out = make([]float64, len(u))
		s.errEst = make([]float64, len(u))
	}
	f := s.rhs(T, P, n0)
	order := s.stepper.Order()

	h := s.h
	if s.opts.MaxStep > 0 {
		h = math.Min(h, s.opts.MaxStep)
	}
	clipped := maxStep < h
	h = math.Min(h, maxStep)

	for retries := 0; ; retries++ {
		if retries > s.opts.MaxRetries {
			return t, s.fail(t, fmt.Errorf("%w: %d consecutive rejections, last step %g", ErrStepFailed, retries, h))
		}
		if h < s.opts.MinStep && h < maxStep {
			return t, s.fail(t, fmt.Errorf("%w: step size %g below minimum %g", ErrStepFailed, h, s.opts.MinStep))
		}

		s.stepper.Step(f, t, h, u, s.out, s.errEst)
		errNorm := s.ctrl.ErrorNorm(s.errEst, u, s.out)
		if !(errNorm <= 1) {
			s.logger.Debug("step rejected", "t", t, "h", h, "error", errNorm)
			h = s.ctrl.Next(h, errNorm, order)
			clipped = false
			continue
		}
		if i, ok := s.negative(s.out); ok {
			s.logger.Debug("step rejected", "t", t, "h", h, "negative", i)
			h *= 0.5
			clipped = false
			continue
		}

		work := st.Clone()
		be := s.unpack(work, s.out)
		if len(s.ieq) > 0 {
			if _, err := s.eq.Equilibrate(work, s.ieq, be); err != nil {
				s.logger.Warn("equilibration failed", "t", t, "h", h, "err", err)
				return t, s.fail(t, err)
			}
		}
		if err := st.CopyFrom(work); err != nil {
			return t, s.fail(t, err)
		}

		next := s.ctrl.Next(h, errNorm, order)
		if clipped {
			next = math.Max(next, s.h)
		}
		s.h = next
		s.steps++
		t += h
		s.rates = s.reactions.Rates(T, P, st.SpeciesAmounts())

		for _, o := range s.observers {
			o.OnStep(st, t)
		}
		return t, nil
	}
}

// Solve initialises the solver with st at t0 and steps until t1.
func (s *Solver) Solve(st *state.ChemicalState, t0, t1 float64) error {
	return s.SolveWithStep(st, t0, t1, 0)
}

// SolveWithStep is Solve with every step capped at dt when dt > 0.
func (s *Solver) SolveWithStep(st *state.ChemicalState, t0, t1, dt float64) error {
	for _, v := range []float64{t0, t1, dt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: times must be finite, got t0=%g t1=%g dt=%g", ErrInvalidOptions, t0, t1, dt)
		}
	}
	if t1 < t0 {
		return fmt.Errorf("%w: end time %g precedes start time %g", ErrInvalidOptions, t1, t0)
	}
	if dt < 0 {
		return fmt.Errorf("%w: negative step cap %g", ErrInvalidOptions, dt)
	}
	if err := s.Initialize(st, t0); err != nil {
		return err
	}

	eps := 1e-12 * math.Max(1, math.Abs(t1))
	t := t0
	for t1-t > eps {
		maxStep := t1 - t
		if dt > 0 {
			maxStep = math.Min(maxStep, dt)
		}
		next, err := s.StepMax(st, t, maxStep)
		if err != nil {
			return err
		}
		if t1-next <= eps {
			next = t1
		}
		t = next
	}

	s.status = Done
	s.logger.Debug("solve finished", "t", t, "steps", s.steps)
	return nil
}

func (s *Solver) fail(t float64, err error) error {
	return &StepError{Step: s.steps + 1, Time: t, Wrapped: err}
}

// pack builds u = [n_k; b_e] from the amounts n.
func (s *Solver) pack(st *state.ChemicalState, n []float64) []float64 {
	sys := st.System()
	u := make([]float64, len(s.ikin)+sys.NumElements())
	for k, i := range s.ikin {
		u[k] = n[i]
	}
	if len(s.ieq) > 0 {
		copy(u[len(s.ikin):], sys.ElementAmountsInSpecies(s.ieq, n))
	}
	return u
}

// unpack writes the kinetic amounts of u into st and returns the element
// amounts for the equilibrium species. negative has already rejected
// anything below -AbsTol, so the clamps only round values in [-AbsTol, 0)
// to zero.
func (s *Solver) unpack(st *state.ChemicalState, u []float64) []float64 {
	nk := make([]float64, len(s.ikin))
	for k := range s.ikin {
		nk[k] = math.Max(u[k], 0)
	}
	// Clamped values are non-negative, so this cannot fail.
	_ = st.SetSpeciesAmountsAt(nk, s.ikin)

	be := append([]float64(nil), u[len(s.ikin):]...)
	sys := st.System()
	for j := range be {
		if sys.Element(j).Name != chem.ChargeElement {
			be[j] = math.Max(be[j], 0)
		}
	}
	return be
}

// negative reports the first component of u that is below -AbsTol,
// excluding the charge balance.
func (s *Solver) negative(u []float64) (int, bool) {
	sys := s.reactions.System()
	for k, v := range u {
		if v >= -s.opts.AbsTol {
			continue
		}
		if k >= len(s.ikin) && sys.Element(k-len(s.ikin)).Name == chem.ChargeElement {
			continue
		}
		return k, true
	}
	return -1, false
}

// rhs returns the right-hand side for u with non-kinetic amounts frozen
// at n0.
func (s *Solver) rhs(T, P float64, n0 []float64) integrators.Func {
	n := append([]float64(nil), n0...)
	K := len(s.ikin)
	E := s.reactions.System().NumElements()

	return func(t float64, u, du []float64) {
		for k, i := range s.ikin {
			n[i] = math.Max(u[k], 0)
		}
		for j := range du {
			du[j] = 0
		}

		r := s.reactions.Rates(T, P, n)
		if len(r) == 0 {
			return
		}
		rv := mat.NewVecDense(len(r), r)
		if K > 0 {
			mat.NewVecDense(K, du[:K]).MulVec(s.nuKinT, rv)
		}
		if s.elemNu != nil {
			mat.NewVecDense(E, du[K:K+E]).MulVec(s.elemNu, rv)
		}
	}
}

// initialStep picks h0 from the scale of u and its derivatives.
func (s *Solver) initialStep(f integrators.Func, t0 float64, u []float64) float64 {
	const fallback = 1e-6
	if len(u) == 0 {
		return fallback
	}

	scale := make([]float64, len(u))
	for i, v := range u {
		scale[i] = s.opts.AbsTol + s.opts.RelTol*math.Abs(v)
	}
	rms := func(v []float64) float64 {
		sum := 0.0
		for i, x := range v {
			sum += (x / scale[i]) * (x / scale[i])
		}
		return math.Sqrt(sum / float64(len(v)))
	}

	f0 := make([]float64, len(u))
	f(t0, u, f0)
	d0, d1 := rms(u), rms(f0)

	h0 := fallback
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}

	u1 := make([]float64, len(u))
	for i := range u {
		u1[i] = u[i] + h0*f0[i]
	}
	f1 := make([]float64, len(u))
	f(t0+h0, u1, f1)
	for i := range f1 {
		f1[i] -= f0[i]
	}
	d2 := rms(f1) / h0

	var h1 float64
	if math.Max(d1, d2) <= 1e-15 {
		h1 = math.Max(fallback, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1/float64(s.stepper.Order()+1))
	}
	return math.Min(100*h0, h1)
}
