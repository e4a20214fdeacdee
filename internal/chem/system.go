package chem

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// WaterMolarMass is the molar mass of water in kg/mol.
const WaterMolarMass = 0.018015268

// SolventName is the name of the aqueous solvent species.
const SolventName = "H2O(l)"

// System is an immutable description of a chemical system.
type System struct {
	elements []Element
	species  []Species
	phases   []Phase

	phaseOf    []int // species index -> phase index
	phaseStart []int // phase index -> first species index

	formula *mat.Dense // elements x species
	solvent int
}

// NewSystem builds a System from its phases. Elements are collected from
// the species formulas in alphabetical order, with the charge
// pseudo-element last when any species is charged.
func NewSystem(phases ...Phase) (*System, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidSystem)
	}

	s := &System{solvent: -1}
	seenSpecies := make(map[string]bool)
	seenPhases := make(map[string]bool)
	elementSet := make(map[string]bool)
	charged := false

	for ip, p := range phases {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: phase %d has no name", ErrInvalidSystem, ip)
		}
		if seenPhases[p.Name] {
			return nil, fmt.Errorf("%w: duplicate phase %q", ErrInvalidSystem, p.Name)
		}
		if len(p.Species) == 0 {
			return nil, fmt.Errorf("%w: phase %q has no species", ErrInvalidSystem, p.Name)
		}
		seenPhases[p.Name] = true

		cp := Phase{Name: p.Name, Kind: p.Kind, Species: make([]Species, 0, len(p.Species))}
		s.phaseStart = append(s.phaseStart, len(s.species))

		for _, sp := range p.Species {
			if sp.Name == "" {
				return nil, fmt.Errorf("%w: unnamed species in phase %q", ErrInvalidSystem, p.Name)
			}
			if seenSpecies[sp.Name] {
				return nil, fmt.Errorf("%w: duplicate species %q", ErrInvalidSystem, sp.Name)
			}
			if len(sp.Formula) == 0 && sp.Charge == 0 {
				return nil, fmt.Errorf("%w: species %q has an empty formula", ErrInvalidSystem, sp.Name)
			}
			seenSpecies[sp.Name] = true

			c := sp.clone()
			if _, ok := c.Formula[ChargeElement]; ok {
				return nil, fmt.Errorf("%w: species %q uses reserved element %q", ErrInvalidSystem, sp.Name, ChargeElement)
			}
			for e, coeff := range c.Formula {
				if coeff < 0 {
					return nil, fmt.Errorf("%w: species %q has negative coefficient for %s", ErrInvalidSystem, sp.Name, e)
				}
				if _, ok := ElementMolarMass(e); !ok {
					return nil, fmt.Errorf("%w: species %q references unknown element %q", ErrInvalidSystem, sp.Name, e)
				}
				elementSet[e] = true
			}
			if c.MolarMass == 0 {
				for e, coeff := range c.Formula {
					m, _ := ElementMolarMass(e)
					c.MolarMass += coeff * m
				}
			}
			if c.Charge != 0 {
				charged = true
			}
			if p.Kind == Aqueous && c.Name == SolventName {
				s.solvent = len(s.species)
			}

			cp.Species = append(cp.Species, c)
			s.species = append(s.species, c)
			s.phaseOf = append(s.phaseOf, ip)
		}
		s.phases = append(s.phases, cp)
	}

	names := make([]string, 0, len(elementSet))
	for e := range elementSet {
		names = append(names, e)
	}
	sort.Strings(names)
	if charged {
		names = append(names, ChargeElement)
	}
	for _, e := range names {
		m, _ := ElementMolarMass(e)
		s.elements = append(s.elements, Element{Name: e, MolarMass: m})
	}

	s.formula = mat.NewDense(len(s.elements), len(s.species), nil)
	for j, sp := range s.species {
		for i, e := range s.elements {
			if e.Name == ChargeElement {
				s.formula.Set(i, j, sp.Charge)
				continue
			}
			s.formula.Set(i, j, sp.Formula[e.Name])
		}
	}

	return s, nil
}

func (s *System) NumElements() int { return len(s.elements) }
func (s *System) NumSpecies() int  { return len(s.species) }
func (s *System) NumPhases() int   { return len(s.phases) }

func (s *System) Element(i int) Element { return s.elements[i] }
func (s *System) Species(i int) Species { return s.species[i].clone() }
func (s *System) Phase(i int) Phase {
	p := s.phases[i]
	c := Phase{Name: p.Name, Kind: p.Kind, Species: make([]Species, len(p.Species))}
	for k, sp := range p.Species {
		c.Species[k] = sp.clone()
	}
	return c
}

// SpeciesNames returns the species names in index order.
func (s *System) SpeciesNames() []string {
	names := make([]string, len(s.species))
	for i, sp := range s.species {
		names[i] = sp.Name
	}
	return names
}

// ElementNames returns the element names in index order.
func (s *System) ElementNames() []string {
	names := make([]string, len(s.elements))
	for i, e := range s.elements {
		names[i] = e.Name
	}
	return names
}

// PhaseNames returns the phase names in index order.
func (s *System) PhaseNames() []string {
	names := make([]string, len(s.phases))
	for i, p := range s.phases {
		names[i] = p.Name
	}
	return names
}

// IndexSpecies returns the index of the named species.
func (s *System) IndexSpecies(name string) (int, error) {
	for i, sp := range s.species {
		if sp.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: species %q", ErrUnknownName, name)
}

// IndexElement returns the index of the named element.
func (s *System) IndexElement(name string) (int, error) {
	for i, e := range s.elements {
		if e.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: element %q", ErrUnknownName, name)
}

// IndexPhase returns the index of the named phase.
func (s *System) IndexPhase(name string) (int, error) {
	for i, p := range s.phases {
		if p.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: phase %q", ErrUnknownName, name)
}

// PhaseOfSpecies returns the index of the phase containing species i.
func (s *System) PhaseOfSpecies(i int) int { return s.phaseOf[i] }

// SpeciesRange returns the first species index and species count of a phase.
func (s *System) SpeciesRange(iphase int) (start, count int) {
	return s.phaseStart[iphase], len(s.phases[iphase].Species)
}

// Solvent returns the index of the aqueous solvent species, or -1.
func (s *System) Solvent() int { return s.solvent }

// FormulaMatrix returns a copy of the elements x species formula matrix.
func (s *System) FormulaMatrix() *mat.Dense {
	return mat.DenseCopyOf(s.formula)
}

// FormulaColumn returns the element coefficients of species j.
func (s *System) FormulaColumn(j int) []float64 {
	col := make([]float64, len(s.elements))
	mat.Col(col, j, s.formula)
	return col
}

// MolarMasses returns the species molar masses in kg/mol.
func (s *System) MolarMasses() []float64 {
	m := make([]float64, len(s.species))
	for i, sp := range s.species {
		m[i] = sp.MolarMass
	}
	return m
}

// ElementAmounts returns b = A n.
func (s *System) ElementAmounts(n []float64) []float64 {
	b := make([]float64, len(s.elements))
	if len(s.elements) == 0 {
		return b
	}
	bv := mat.NewVecDense(len(b), b)
	bv.MulVec(s.formula, mat.NewVecDense(len(n), append([]float64(nil), n...)))
	return b
}

// ElementAmountsInSpecies returns the element amounts contributed by the
// given species only.
func (s *System) ElementAmountsInSpecies(indices []int, n []float64) []float64 {
	b := make([]float64, len(s.elements))
	for _, j := range indices {
		for i := range s.elements {
			b[i] += s.formula.At(i, j) * n[j]
		}
	}
	return b
}

// ElementAmountsInPhase returns the element amounts in one phase.
func (s *System) ElementAmountsInPhase(iphase int, n []float64) []float64 {
	start, count := s.SpeciesRange(iphase)
	indices := make([]int, count)
	for k := range indices {
		indices[k] = start + k
	}
	return s.ElementAmountsInSpecies(indices, n)
}

// ElementAmount returns the amount of element ie in the whole system.
func (s *System) ElementAmount(ie int, n []float64) float64 {
	return mat.Dot(s.formula.RowView(ie), mat.NewVecDense(len(n), append([]float64(nil), n...)))
}

// ElementAmountInPhase returns the amount of element ie in phase iphase.
func (s *System) ElementAmountInPhase(ie, iphase int, n []float64) float64 {
	return s.ElementAmountsInPhase(iphase, n)[ie]
}

// ElementAmountInSpecies returns the amount of element ie in the given species.
func (s *System) ElementAmountInSpecies(ie int, indices []int, n []float64) float64 {
	return s.ElementAmountsInSpecies(indices, n)[ie]
}
