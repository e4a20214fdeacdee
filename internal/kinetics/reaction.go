package kinetics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/reaksim/internal/chem"
)

// RateLaw returns the rate of a reaction in mol/s given temperature,
// pressure, species amounts and species activities. A positive rate runs
// the reaction forward.
type RateLaw func(T, P float64, n, a []float64) float64

// Reaction couples a stoichiometry (species index to coefficient,
// negative for reactants) with a rate law.
type Reaction struct {
	Name          string
	Stoichiometry map[int]float64
	Rate          RateLaw
}

// ParseEquation reads an equation such as "CO2(g) = CO2(aq)" or
// "2 H2O(l) = H3O+ + OH-". Terms are separated by whitespace; a lone '+'
// separates terms and a number sets the coefficient of the next species.
func ParseEquation(sys *chem.System, equation string) (map[int]float64, error) {
	lhs, rhs, ok := strings.Cut(equation, "=")
	if !ok {
		return nil, fmt.Errorf("%w: equation %q has no '='", ErrInvalidReaction, equation)
	}

	stoich := make(map[int]float64)
	sides := []struct {
		text string
		sign float64
	}{{lhs, -1}, {rhs, 1}}

	for _, side := range sides {
		coeff := 1.0
		pending := false
		for _, tok := range strings.Fields(side.text) {
			if tok == "+" {
				continue
			}
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				if pending || !(v > 0) {
					return nil, fmt.Errorf("%w: bad coefficient %q in %q", ErrInvalidReaction, tok, equation)
				}
				coeff, pending = v, true
				continue
			}
			i, err := sys.IndexSpecies(tok)
			if err != nil {
				return nil, err
			}
			stoich[i] += side.sign * coeff
			coeff, pending = 1.0, false
		}
		if pending {
			return nil, fmt.Errorf("%w: dangling coefficient in %q", ErrInvalidReaction, equation)
		}
	}

	for i, v := range stoich {
		if v == 0 {
			delete(stoich, i)
		}
	}
	if len(stoich) == 0 {
		return nil, fmt.Errorf("%w: equation %q has no net species", ErrInvalidReaction, equation)
	}
	return stoich, nil
}

// MassAction returns the law r = kf * prod(a_reactant^|nu|) - kb * prod(a_product^nu).
func MassAction(kf, kb float64, stoich map[int]float64) RateLaw {
	reactants, products := split(stoich)
	return func(T, P float64, n, a []float64) float64 {
		fwd, bwd := kf, kb
		for _, t := range reactants {
			fwd *= math.Pow(a[t.index], t.coeff)
		}
		for _, t := range products {
			bwd *= math.Pow(a[t.index], t.coeff)
		}
		return fwd - bwd
	}
}

// FirstOrder returns the law r = k * n_i.
func FirstOrder(k float64, i int) RateLaw {
	return func(T, P float64, n, a []float64) float64 {
		return k * n[i]
	}
}

// MineralRate returns the transition-state law r = k * area * (1 - Omega)
// for the dissolution of a mineral, with saturation ratio
// Omega = prod(a_i^nu_i) / K. The rate is zero once the mineral is
// exhausted and the solution is undersaturated.
func MineralRate(k, area, logK float64, mineral int, stoich map[int]float64) RateLaw {
	lnK := logK * math.Ln10
	return func(T, P float64, n, a []float64) float64 {
		lnQ := 0.0
		for i, nu := range stoich {
			if i == mineral {
				continue
			}
			lnQ += nu * math.Log(math.Max(a[i], 1e-300))
		}
		r := k * area * (1 - math.Exp(lnQ-lnK))
		if r > 0 && n[mineral] <= 0 {
			return 0
		}
		return r
	}
}

type term struct {
	index int
	coeff float64
}

func split(stoich map[int]float64) (reactants, products []term) {
	for i, nu := range stoich {
		switch {
		case nu < 0:
			reactants = append(reactants, term{i, -nu})
		case nu > 0:
			products = append(products, term{i, nu})
		}
	}
	sort.Slice(reactants, func(a, b int) bool { return reactants[a].index < reactants[b].index })
	sort.Slice(products, func(a, b int) bool { return products[a].index < products[b].index })
	return reactants, products
}

// ReactionSystem is an immutable set of reactions over a chemical system.
type ReactionSystem struct {
	sys       *chem.System
	reactions []Reaction
	nu        *mat.Dense // reactions x species, nil without reactions
}

func NewReactionSystem(sys *chem.System, reactions ...Reaction) (*ReactionSystem, error) {
	rs := &ReactionSystem{sys: sys}
	for k, r := range reactions {
		if r.Rate == nil {
			return nil, fmt.Errorf("%w: reaction %d (%s) has no rate law", ErrInvalidReaction, k, r.Name)
		}
		if len(r.Stoichiometry) == 0 {
			return nil, fmt.Errorf("%w: reaction %d (%s) has no species", ErrInvalidReaction, k, r.Name)
		}
		stoich := make(map[int]float64, len(r.Stoichiometry))
		for i, v := range r.Stoichiometry {
			if i < 0 || i >= sys.NumSpecies() {
				return nil, fmt.Errorf("%w: reaction %d (%s) references species %d of %d", ErrInvalidReaction, k, r.Name, i, sys.NumSpecies())
			}
			stoich[i] = v
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("R%d", k+1)
		}
		r.Stoichiometry = stoich
		rs.reactions = append(rs.reactions, r)
	}

	if len(rs.reactions) > 0 {
		rs.nu = mat.NewDense(len(rs.reactions), sys.NumSpecies(), nil)
		for k, r := range rs.reactions {
			for i, v := range r.Stoichiometry {
				rs.nu.Set(k, i, v)
			}
		}
	}
	return rs, nil
}

func (rs *ReactionSystem) System() *chem.System { return rs.sys }
func (rs *ReactionSystem) NumReactions() int    { return len(rs.reactions) }

// Reaction returns reaction k; the stoichiometry map is a copy.
func (rs *ReactionSystem) Reaction(k int) Reaction {
	r := rs.reactions[k]
	stoich := make(map[int]float64, len(r.Stoichiometry))
	for i, v := range r.Stoichiometry {
		stoich[i] = v
	}
	r.Stoichiometry = stoich
	return r
}

// Stoichiometry returns a copy of the reactions x species matrix, or nil
// when there are no reactions.
func (rs *ReactionSystem) Stoichiometry() *mat.Dense {
	if rs.nu == nil {
		return nil
	}
	return mat.DenseCopyOf(rs.nu)
}

// Rates evaluates every rate law at (T, P, n).
func (rs *ReactionSystem) Rates(T, P float64, n []float64) []float64 {
	r := make([]float64, len(rs.reactions))
	if len(r) == 0 {
		return r
	}
	a := rs.sys.Activities(T, P, n)
	for k, reaction := range rs.reactions {
		r[k] = reaction.Rate(T, P, n, a)
	}
	return r
}

// Imbalance returns A * nu_k, the net element change per unit extent of
// reaction k. It is zero for element-balanced reactions.
func (rs *ReactionSystem) Imbalance(k int) []float64 {
	A := rs.sys.FormulaMatrix()
	out := make([]float64, rs.sys.NumElements())
	for i, v := range rs.reactions[k].Stoichiometry {
		for j := range out {
			out[j] += A.At(j, i) * v
		}
	}
	return out
}
