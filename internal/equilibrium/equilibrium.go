// Package equilibrium computes chemical equilibrium of a species subset by
// Gibbs energy minimisation.
//
// The solver works in element potentials: at equilibrium every species
// satisfies mu_i = sum_j A_ji y_j and the element amounts of the subset
// equal the prescribed vector b. Species of multi-species phases are
// solved in log-amounts, so they stay strictly positive. Species that
// form a phase on their own (minerals, pure liquids) are solved in plain
// amounts and enter or leave the assemblage through an active-set loop.
//
// Species outside the subset are held fixed and only affect the result
// through the activities of the phases they share with the subset.
package equilibrium

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/state"
)

// ErrEquilibrationFailed indicates an infeasible element vector or a
// Newton iteration that did not converge.
var ErrEquilibrationFailed = errors.New("equilibrium: equilibration failed")

type Options struct {
	// Tolerance on the residual of the optimality and scaled mass-balance
	// conditions.
	Tolerance float64 `yaml:"tolerance"`

	// MaxIterations bounds the Newton iterations of each active-set pass.
	MaxIterations int `yaml:"max_iterations"`

	// MaxLogStep bounds the change of any log-amount in one iteration.
	MaxLogStep float64 `yaml:"max_log_step"`
}

func DefaultOptions() Options {
	return Options{
		Tolerance:     1e-9,
		MaxIterations: 200,
		MaxLogStep:    2,
	}
}

func (o Options) validate() error {
	if !(o.Tolerance > 0) || o.MaxIterations <= 0 || !(o.MaxLogStep > 0) {
		return fmt.Errorf("%w: tolerance, iterations and log step must be positive", ErrEquilibrationFailed)
	}
	return nil
}

// Result reports the work done by one Equilibrate call.
type Result struct {
	Iterations int
	Residual   float64
	Passes     int
}

// Solver is stateless apart from its options and may be shared by
// several kinetic solvers running in the same goroutine.
type Solver struct {
	opts Options
}

func NewSolver(opts Options) (*Solver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Solver{opts: opts}, nil
}

func (s *Solver) Options() Options { return s.opts }

// EquilibrateAll equilibrates every species of st at its current element
// amounts.
func (s *Solver) EquilibrateAll(st *state.ChemicalState) (Result, error) {
	ieq := make([]int, st.System().NumSpecies())
	for i := range ieq {
		ieq[i] = i
	}
	return s.Equilibrate(st, ieq, st.ElementAmounts())
}

// Equilibrate redistributes the amounts of the species ieq so that they
// reach equilibrium with element amounts be. On success the amounts of
// ieq, the element potentials and the species potentials of ieq are
// written to st; on failure st is left unchanged.
func (s *Solver) Equilibrate(st *state.ChemicalState, ieq []int, be []float64) (Result, error) {
	sys := st.System()
	if len(be) != sys.NumElements() {
		return Result{}, fmt.Errorf("%w: got %d element amounts, system has %d elements", state.ErrDimensionMismatch, len(be), sys.NumElements())
	}
	if len(ieq) == 0 {
		return Result{}, nil
	}
	for _, i := range ieq {
		if i < 0 || i >= sys.NumSpecies() {
			return Result{}, fmt.Errorf("%w: species index %d out of range [0, %d)", ErrEquilibrationFailed, i, sys.NumSpecies())
		}
	}

	p, err := newProblem(st, ieq, be)
	if err != nil {
		return Result{}, err
	}

	res, err := p.solve(s.opts)
	if err != nil {
		return res, err
	}
	return res, p.commit(st)
}

// problem is the working data of one Equilibrate call.
type problem struct {
	sys  *chem.System
	T, P float64
	RT   float64

	A *mat.Dense
	g []float64 // G°/RT
	b []float64
	n []float64

	ieq    []int
	sol    []int  // species solved in log-amounts
	pure   []int  // single-species phases
	active []bool // per entry of pure
	gone   []bool // per species: removed because an element is absent
	rows   []int  // element rows kept in the balance

	y []float64 // per entry of rows, in units of RT
}

func newProblem(st *state.ChemicalState, ieq []int, be []float64) (*problem, error) {
	sys := st.System()
	T, P := st.Temperature(), st.Pressure()
	RT := chem.GasConstant * T

	p := &problem{
		sys:  sys,
		T:    T,
		P:    P,
		RT:   RT,
		A:    sys.FormulaMatrix(),
		g:    sys.StandardGibbsEnergies(T, P),
		b:    append([]float64(nil), be...),
		n:    st.SpeciesAmounts(),
		ieq:  ieq,
		gone: make([]bool, sys.NumSpecies()),
	}
	for i := range p.g {
		p.g[i] /= RT
	}

	bmax := 0.0
	for _, v := range be {
		bmax = math.Max(bmax, math.Abs(v))
	}
	tiny := 1e-14 * bmax

	inEq := make([]bool, sys.NumSpecies())
	for _, i := range ieq {
		inEq[i] = true
	}

	absent := make([]bool, len(be))
	for j, v := range be {
		if sys.Element(j).Name == chem.ChargeElement {
			continue
		}
		if v < -tiny {
			return nil, fmt.Errorf("%w: negative amount %g of element %s", ErrEquilibrationFailed, v, sys.Element(j).Name)
		}
		absent[j] = v <= tiny
	}

	for _, i := range ieq {
		for j := range be {
			if absent[j] && p.A.At(j, i) > 0 {
				p.gone[i] = true
				p.n[i] = 0
				break
			}
		}
	}

	candidate := func(i int) bool { return inEq[i] && !p.gone[i] }
	for _, i := range ieq {
		if p.gone[i] {
			continue
		}
		start, count := sys.SpeciesRange(sys.PhaseOfSpecies(i))
		alone := true
		for k := start; k < start+count; k++ {
			if k != i && (candidate(k) || p.n[k] > 0) {
				alone = false
				break
			}
		}
		if alone {
			p.pure = append(p.pure, i)
		} else {
			p.sol = append(p.sol, i)
		}
	}

	for j := range be {
		if absent[j] {
			continue
		}
		held := false
		for _, i := range ieq {
			if candidate(i) && p.A.At(j, i) != 0 {
				held = true
				break
			}
		}
		if held {
			p.rows = append(p.rows, j)
		} else if math.Abs(be[j]) > tiny {
			return nil, fmt.Errorf("%w: no equilibrium species carries element %s", ErrEquilibrationFailed, sys.Element(j).Name)
		}
	}

	floor := 1e-10 * math.Max(bmax, 1e-300)
	for _, i := range p.sol {
		p.n[i] = math.Max(p.n[i], floor)
	}

	// A pure species starts active when present, or when it is the only
	// carrier of one of the balanced elements.
	p.active = make([]bool, len(p.pure))
	for k, i := range p.pure {
		if p.n[i] > 0 {
			p.active[k] = true
			continue
		}
		for _, j := range p.rows {
			if p.A.At(j, i) == 0 || math.Abs(p.b[j]) == 0 {
				continue
			}
			carried := false
			for _, s := range p.sol {
				if p.A.At(j, s) != 0 {
					carried = true
					break
				}
			}
			if !carried {
				p.active[k] = true
				break
			}
		}
	}

	p.y = make([]float64, len(p.rows))
	return p, nil
}

// unknowns lists the species that carry a variable in the current pass:
// solution species first, then active pure species.
func (p *problem) unknowns() []int {
	u := append([]int(nil), p.sol...)
	for k, i := range p.pure {
		if p.active[k] {
			u = append(u, i)
		}
	}
	return u
}

// aty returns sum_j A_ji y_j over the balanced rows.
func (p *problem) aty(i int, y []float64) float64 {
	s := 0.0
	for r, j := range p.rows {
		s += p.A.At(j, i) * y[r]
	}
	return s
}

// scales returns the mass-balance row scales at the current amounts.
func (p *problem) scales(species []int) []float64 {
	sc := make([]float64, len(p.rows))
	for r, j := range p.rows {
		s := math.Abs(p.b[j])
		sum := 0.0
		for _, i := range species {
			sum += math.Abs(p.A.At(j, i) * p.n[i])
		}
		sc[r] = math.Max(math.Max(s, sum), 1e-300)
	}
	return sc
}

// residual evaluates the optimality and scaled mass-balance conditions.
func (p *problem) residual(species []int, y, scale []float64) []float64 {
	lna := p.sys.LnActivities(p.T, p.P, p.n)
	F := make([]float64, len(species)+len(p.rows))
	for k, i := range species {
		F[k] = p.g[i] + lna[i] - p.aty(i, y)
	}
	for r, j := range p.rows {
		sum := -p.b[j]
		for _, i := range species {
			sum += p.A.At(j, i) * p.n[i]
		}
		F[len(species)+r] = sum / scale[r]
	}
	return F
}

func (p *problem) solve(opts Options) (Result, error) {
	var res Result
	maxPasses := 2*len(p.pure) + 2

	for pass := 1; pass <= maxPasses; pass++ {
		res.Passes = pass
		iters, resid, err := p.newton(opts)
		res.Iterations += iters
		res.Residual = resid
		if err != nil {
			return res, err
		}

		// Drop the most depleted pure species first; a negative amount
		// means the phase is unstable at these element amounts.
		worst, worstN := -1, 0.0
		for k, i := range p.pure {
			if p.active[k] && p.n[i] < worstN {
				worst, worstN = k, p.n[i]
			}
		}
		if worst >= 0 {
			p.active[worst] = false
			p.n[p.pure[worst]] = 0
			continue
		}

		// Then admit the most supersaturated inactive pure species.
		lna := p.sys.LnActivities(p.T, p.P, p.n)
		best, bestF := -1, -opts.Tolerance
		for k, i := range p.pure {
			if p.active[k] {
				continue
			}
			if f := p.g[i] + lna[i] - p.aty(i, p.y); f < bestF {
				best, bestF = k, f
			}
		}
		if best < 0 {
			return res, nil
		}
		p.active[best] = true
	}
	return res, fmt.Errorf("%w: phase assemblage did not settle after %d passes", ErrEquilibrationFailed, maxPasses)
}

func (p *problem) newton(opts Options) (int, float64, error) {
	species := p.unknowns()
	m1, m := len(p.sol), len(species)
	r := len(p.rows)
	dim := m + r

	if m == 0 {
		return 0, 0, nil
	}
	if allZero(p.y) {
		p.initPotentials(species)
	}

	for iter := 0; iter < opts.MaxIterations; iter++ {
		scale := p.scales(species)
		F := p.residual(species, p.y, scale)
		norm := maxAbs(F)
		if norm <= opts.Tolerance {
			return iter, norm, nil
		}

		J := mat.NewDense(dim, dim, nil)
		if m1 > 0 {
			H := p.sys.LnActivityJacobian(p.T, p.P, p.n, p.sol)
			J.Slice(0, m1, 0, m1).(*mat.Dense).Copy(H)
		}
		for k, i := range species {
			for c, j := range p.rows {
				a := p.A.At(j, i)
				J.Set(k, m+c, -a)
				if k < m1 {
					J.Set(m+c, k, a*p.n[i]/scale[c])
				} else {
					J.Set(m+c, k, a/scale[c])
				}
			}
		}

		rhs := mat.NewVecDense(dim, nil)
		for k, v := range F {
			rhs.SetVec(k, -v)
		}
		var svd mat.SVD
		if !svd.Factorize(J, mat.SVDFull) {
			return iter, norm, fmt.Errorf("%w: singular value decomposition failed", ErrEquilibrationFailed)
		}
		var d mat.VecDense
		svd.SolveVecTo(&d, rhs, svd.Rank(1e-13))

		alpha := 1.0
		if dx := maxAbs(d.RawVector().Data[:m1]); dx > opts.MaxLogStep {
			alpha = opts.MaxLogStep / dx
		}
		p.lineSearch(species, scale, d.RawVector().Data, alpha, 0.5*dot(F, F))
	}

	scale := p.scales(species)
	norm := maxAbs(p.residual(species, p.y, scale))
	if norm <= opts.Tolerance {
		return opts.MaxIterations, norm, nil
	}
	return opts.MaxIterations, norm, fmt.Errorf("%w: no convergence after %d iterations (residual %.3g)", ErrEquilibrationFailed, opts.MaxIterations, norm)
}

// lineSearch backtracks along d from the current point until the merit
// function decreases sufficiently. The last trial is kept when no step
// qualifies.
func (p *problem) lineSearch(species []int, scale, d []float64, alpha, phi0 float64) {
	m1, m := len(p.sol), len(species)
	x0 := make([]float64, m)
	for k, i := range species {
		if k < m1 {
			x0[k] = math.Log(p.n[i])
		} else {
			x0[k] = p.n[i]
		}
	}
	y0 := append([]float64(nil), p.y...)

	for try := 0; try < 30; try++ {
		for k, i := range species {
			if k < m1 {
				p.n[i] = math.Exp(x0[k] + alpha*d[k])
			} else {
				p.n[i] = x0[k] + alpha*d[k]
			}
		}
		for c := range p.y {
			p.y[c] = y0[c] + alpha*d[m+c]
		}
		F := p.residual(species, p.y, scale)
		if 0.5*dot(F, F) <= (1-1e-4*alpha)*phi0 {
			return
		}
		alpha /= 2
	}
}

// initPotentials fits y to the optimality conditions at the starting
// amounts in the least-squares sense.
func (p *problem) initPotentials(species []int) {
	if len(p.rows) == 0 {
		return
	}
	lna := p.sys.LnActivities(p.T, p.P, p.n)
	M := mat.NewDense(len(species), len(p.rows), nil)
	rhs := mat.NewVecDense(len(species), nil)
	for k, i := range species {
		for c, j := range p.rows {
			M.Set(k, c, p.A.At(j, i))
		}
		rhs.SetVec(k, p.g[i]+lna[i])
	}
	var svd mat.SVD
	if !svd.Factorize(M, mat.SVDFull) {
		return
	}
	var y mat.VecDense
	svd.SolveVecTo(&y, rhs, svd.Rank(1e-13))
	copy(p.y, y.RawVector().Data)
}

// commit writes the solution back to st.
func (p *problem) commit(st *state.ChemicalState) error {
	values := make([]float64, len(p.ieq))
	for k, i := range p.ieq {
		values[k] = math.Max(p.n[i], 0)
		p.n[i] = values[k]
	}

	y := make([]float64, p.sys.NumElements())
	for c, j := range p.rows {
		y[j] = p.RT * p.y[c]
	}

	mu := p.sys.ChemicalPotentials(p.T, p.P, p.n)
	z := st.SpeciesPotentials()
	for _, i := range p.ieq {
		if p.gone[i] {
			z[i] = 0
			continue
		}
		z[i] = mu[i] - p.RT*p.aty(i, p.y)
	}

	if err := st.SetSpeciesAmountsAt(values, p.ieq); err != nil {
		return err
	}
	if err := st.SetElementPotentials(y); err != nil {
		return err
	}
	return st.SetSpeciesPotentials(z)
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
