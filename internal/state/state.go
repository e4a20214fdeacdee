// Package state holds the mutable thermodynamic state of a chemical
// system: temperature, pressure, species amounts and the dual variables
// produced by equilibrium calculations.
//
// A [ChemicalState] is bound to one [chem.System] for its lifetime. Every
// setter validates its input before touching the state, so a failing call
// leaves the state exactly as it was. States are not safe for concurrent
// use; copy them with [ChemicalState.Clone].
package state

import (
	"errors"
	"fmt"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/units"
)

var (
	// ErrInvalidState indicates a non-positive temperature or pressure, a
	// negative amount, volume or scale factor, or an out-of-range index.
	ErrInvalidState = errors.New("state: invalid state")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the species or element count of the bound system.
	ErrDimensionMismatch = errors.New("state: dimension mismatch")

	// ErrInvalidQuery indicates a malformed Extract query.
	ErrInvalidQuery = errors.New("state: invalid query")
)

const (
	DefaultTemperature = 298.15 // K
	DefaultPressure    = 1e5    // Pa
)

// ChemicalState is a snapshot of T, P, species amounts n, element
// potentials y and species potentials z.
type ChemicalState struct {
	system *chem.System

	T float64
	P float64
	n []float64
	y []float64
	z []float64
}

// New creates a state bound to sys with zero amounts and default T and P.
func New(sys *chem.System) *ChemicalState {
	return &ChemicalState{
		system: sys,
		T:      DefaultTemperature,
		P:      DefaultPressure,
		n:      make([]float64, sys.NumSpecies()),
		y:      make([]float64, sys.NumElements()),
		z:      make([]float64, sys.NumSpecies()),
	}
}

// Clone returns a deep copy sharing only the immutable system.
func (s *ChemicalState) Clone() *ChemicalState {
	return &ChemicalState{
		system: s.system,
		T:      s.T,
		P:      s.P,
		n:      clone(s.n),
		y:      clone(s.y),
		z:      clone(s.z),
	}
}

// CopyFrom overwrites s with the contents of other. Both states must be
// bound to systems of the same size.
func (s *ChemicalState) CopyFrom(other *ChemicalState) error {
	if len(other.n) != len(s.n) || len(other.y) != len(s.y) {
		return fmt.Errorf("%w: cannot copy a state of %d species into one of %d", ErrDimensionMismatch, len(other.n), len(s.n))
	}
	s.T, s.P = other.T, other.P
	copy(s.n, other.n)
	copy(s.y, other.y)
	copy(s.z, other.z)
	return nil
}

func (s *ChemicalState) System() *chem.System { return s.system }

func (s *ChemicalState) Temperature() float64 { return s.T }
func (s *ChemicalState) Pressure() float64    { return s.P }

// SpeciesAmounts returns a copy of n in mol.
func (s *ChemicalState) SpeciesAmounts() []float64 { return clone(s.n) }

// ElementPotentials returns a copy of y in J/mol.
func (s *ChemicalState) ElementPotentials() []float64 { return clone(s.y) }

// SpeciesPotentials returns a copy of z in J/mol.
func (s *ChemicalState) SpeciesPotentials() []float64 { return clone(s.z) }

// SetTemperature sets T in kelvin.
func (s *ChemicalState) SetTemperature(v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: temperature must be positive, got %g", ErrInvalidState, v)
	}
	s.T = v
	return nil
}

// SetTemperatureIn sets T given in the named temperature units.
func (s *ChemicalState) SetTemperatureIn(v float64, unit string) error {
	k, err := units.Convert(v, unit, "kelvin")
	if err != nil {
		return err
	}
	return s.SetTemperature(k)
}

// SetPressure sets P in pascal.
func (s *ChemicalState) SetPressure(v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: pressure must be positive, got %g", ErrInvalidState, v)
	}
	s.P = v
	return nil
}

// SetPressureIn sets P given in the named pressure units.
func (s *ChemicalState) SetPressureIn(v float64, unit string) error {
	pa, err := units.Convert(v, unit, "pascal")
	if err != nil {
		return err
	}
	return s.SetPressure(pa)
}

// FillSpeciesAmounts sets every species amount to v.
func (s *ChemicalState) FillSpeciesAmounts(v float64) error {
	if !(v >= 0) {
		return fmt.Errorf("%w: species amount must be non-negative, got %g", ErrInvalidState, v)
	}
	for i := range s.n {
		s.n[i] = v
	}
	return nil
}

// SetSpeciesAmounts replaces the whole amounts vector.
func (s *ChemicalState) SetSpeciesAmounts(n []float64) error {
	if len(n) != len(s.n) {
		return fmt.Errorf("%w: got %d species amounts, system has %d species", ErrDimensionMismatch, len(n), len(s.n))
	}
	if err := checkAmounts(n); err != nil {
		return err
	}
	copy(s.n, n)
	return nil
}

// SetSpeciesAmountsAt sets n[indices[k]] = values[k].
func (s *ChemicalState) SetSpeciesAmountsAt(values []float64, indices []int) error {
	if len(values) != len(indices) {
		return fmt.Errorf("%w: got %d amounts for %d indices", ErrDimensionMismatch, len(values), len(indices))
	}
	for _, i := range indices {
		if err := s.checkSpecies(i); err != nil {
			return err
		}
	}
	if err := checkAmounts(values); err != nil {
		return err
	}
	for k, i := range indices {
		s.n[i] = values[k]
	}
	return nil
}

// SetSpeciesAmount sets the amount of species i in mol.
func (s *ChemicalState) SetSpeciesAmount(i int, amount float64) error {
	if err := s.checkSpecies(i); err != nil {
		return err
	}
	if !(amount >= 0) {
		return fmt.Errorf("%w: amount of %s must be non-negative, got %g", ErrInvalidState, s.system.Species(i).Name, amount)
	}
	s.n[i] = amount
	return nil
}

// SetSpeciesAmountByName sets the amount of the named species in mol.
func (s *ChemicalState) SetSpeciesAmountByName(name string, amount float64) error {
	i, err := s.system.IndexSpecies(name)
	if err != nil {
		return err
	}
	return s.SetSpeciesAmount(i, amount)
}

// SetSpeciesAmountIn sets the amount of species i given in amount units
// (mol, mmol, ...) or mass units (kg, g, ...). Mass is converted to moles
// through the molar mass of the species.
func (s *ChemicalState) SetSpeciesAmountIn(i int, amount float64, unit string) error {
	if err := s.checkSpecies(i); err != nil {
		return err
	}
	mol, err := s.toMoles(i, amount, unit)
	if err != nil {
		return err
	}
	return s.SetSpeciesAmount(i, mol)
}

// SetSpeciesAmountByNameIn is SetSpeciesAmountIn addressed by name.
func (s *ChemicalState) SetSpeciesAmountByNameIn(name string, amount float64, unit string) error {
	i, err := s.system.IndexSpecies(name)
	if err != nil {
		return err
	}
	return s.SetSpeciesAmountIn(i, amount, unit)
}

func (s *ChemicalState) toMoles(i int, amount float64, unit string) (float64, error) {
	switch {
	case units.Convertible(unit, "mol"):
		return units.Convert(amount, unit, "mol")
	case units.Convertible(unit, "kg"):
		kg, err := units.Convert(amount, unit, "kg")
		if err != nil {
			return 0, err
		}
		return kg / s.system.Species(i).MolarMass, nil
	}
	return 0, fmt.Errorf("%w: %q is neither an amount nor a mass unit", units.ErrUnsupportedUnits, unit)
}

// SetElementPotentials stores the element-balance dual variables.
func (s *ChemicalState) SetElementPotentials(y []float64) error {
	if len(y) != len(s.y) {
		return fmt.Errorf("%w: got %d element potentials, system has %d elements", ErrDimensionMismatch, len(y), len(s.y))
	}
	copy(s.y, y)
	return nil
}

// SetSpeciesPotentials stores the species bound dual variables.
func (s *ChemicalState) SetSpeciesPotentials(z []float64) error {
	if len(z) != len(s.z) {
		return fmt.Errorf("%w: got %d species potentials, system has %d species", ErrDimensionMismatch, len(z), len(s.z))
	}
	copy(s.z, z)
	return nil
}

// SetVolume scales all amounts so that the total phase volume equals
// volume (m3). A state whose current volume is zero collapses to zero
// amounts.
func (s *ChemicalState) SetVolume(volume float64) error {
	if !(volume >= 0) {
		return fmt.Errorf("%w: volume must be non-negative, got %g", ErrInvalidState, volume)
	}
	total := 0.0
	for _, v := range s.system.PhaseVolumes(s.T, s.P, s.n) {
		total += v
	}
	scalar := 0.0
	if total != 0 {
		scalar = volume / total
	}
	return s.ScaleSpeciesAmounts(scalar)
}

// SetPhaseVolume scales the amounts of one phase so that its volume
// equals volume (m3).
func (s *ChemicalState) SetPhaseVolume(iphase int, volume float64) error {
	if !(volume >= 0) {
		return fmt.Errorf("%w: volume must be non-negative, got %g", ErrInvalidState, volume)
	}
	if err := s.checkPhase(iphase); err != nil {
		return err
	}
	v := s.system.PhaseVolumes(s.T, s.P, s.n)[iphase]
	scalar := 0.0
	if v != 0 {
		scalar = volume / v
	}
	return s.ScaleSpeciesAmountsInPhase(iphase, scalar)
}

// SetPhaseVolumeByName is SetPhaseVolume addressed by phase name.
func (s *ChemicalState) SetPhaseVolumeByName(name string, volume float64) error {
	ip, err := s.system.IndexPhase(name)
	if err != nil {
		return err
	}
	return s.SetPhaseVolume(ip, volume)
}

// ScaleSpeciesAmounts multiplies every amount by scalar.
func (s *ChemicalState) ScaleSpeciesAmounts(scalar float64) error {
	if !(scalar >= 0) {
		return fmt.Errorf("%w: scale factor must be non-negative, got %g", ErrInvalidState, scalar)
	}
	for i := range s.n {
		s.n[i] *= scalar
	}
	return nil
}

// ScaleSpeciesAmountsInPhase multiplies the amounts of one phase by scalar.
func (s *ChemicalState) ScaleSpeciesAmountsInPhase(iphase int, scalar float64) error {
	if !(scalar >= 0) {
		return fmt.Errorf("%w: scale factor must be non-negative, got %g", ErrInvalidState, scalar)
	}
	if err := s.checkPhase(iphase); err != nil {
		return err
	}
	start, count := s.system.SpeciesRange(iphase)
	for i := start; i < start+count; i++ {
		s.n[i] *= scalar
	}
	return nil
}

// SpeciesAmount returns the amount of species i in mol.
func (s *ChemicalState) SpeciesAmount(i int) (float64, error) {
	if err := s.checkSpecies(i); err != nil {
		return 0, err
	}
	return s.n[i], nil
}

// SpeciesAmountByName returns the amount of the named species in mol.
func (s *ChemicalState) SpeciesAmountByName(name string) (float64, error) {
	i, err := s.system.IndexSpecies(name)
	if err != nil {
		return 0, err
	}
	return s.n[i], nil
}

// SpeciesAmountIn returns the amount of the named species in amount or
// mass units.
func (s *ChemicalState) SpeciesAmountIn(name, unit string) (float64, error) {
	i, err := s.system.IndexSpecies(name)
	if err != nil {
		return 0, err
	}
	return s.SpeciesAmountAtIn(i, unit)
}

// SpeciesAmountAtIn is SpeciesAmountIn addressed by index.
func (s *ChemicalState) SpeciesAmountAtIn(i int, unit string) (float64, error) {
	if err := s.checkSpecies(i); err != nil {
		return 0, err
	}
	switch {
	case units.Convertible("mol", unit):
		return units.Convert(s.n[i], "mol", unit)
	case units.Convertible("kg", unit):
		return units.Convert(s.n[i]*s.system.Species(i).MolarMass, "kg", unit)
	}
	return 0, fmt.Errorf("%w: %q is neither an amount nor a mass unit", units.ErrUnsupportedUnits, unit)
}

// ElementAmounts returns the amount of every element in mol.
func (s *ChemicalState) ElementAmounts() []float64 {
	return s.system.ElementAmounts(s.n)
}

// ElementAmountsInPhase returns the element amounts of one phase.
func (s *ChemicalState) ElementAmountsInPhase(iphase int) ([]float64, error) {
	if err := s.checkPhase(iphase); err != nil {
		return nil, err
	}
	return s.system.ElementAmountsInPhase(iphase, s.n), nil
}

// ElementAmountsInSpecies returns the element amounts of a species subset.
func (s *ChemicalState) ElementAmountsInSpecies(indices []int) ([]float64, error) {
	for _, i := range indices {
		if err := s.checkSpecies(i); err != nil {
			return nil, err
		}
	}
	return s.system.ElementAmountsInSpecies(indices, s.n), nil
}

// ElementAmount returns the amount of element ie in mol.
func (s *ChemicalState) ElementAmount(ie int) (float64, error) {
	if err := s.checkElement(ie); err != nil {
		return 0, err
	}
	return s.system.ElementAmount(ie, s.n), nil
}

// ElementAmountByName returns the amount of the named element in mol.
func (s *ChemicalState) ElementAmountByName(name string) (float64, error) {
	ie, err := s.system.IndexElement(name)
	if err != nil {
		return 0, err
	}
	return s.system.ElementAmount(ie, s.n), nil
}

// ElementAmountIn returns the amount of the named element in amount units.
func (s *ChemicalState) ElementAmountIn(name, unit string) (float64, error) {
	b, err := s.ElementAmountByName(name)
	if err != nil {
		return 0, err
	}
	return units.Convert(b, "mol", unit)
}

// ElementAmountInPhase returns the amount of an element inside one phase.
func (s *ChemicalState) ElementAmountInPhase(element, phase string) (float64, error) {
	ie, err := s.system.IndexElement(element)
	if err != nil {
		return 0, err
	}
	ip, err := s.system.IndexPhase(phase)
	if err != nil {
		return 0, err
	}
	return s.system.ElementAmountInPhase(ie, ip, s.n), nil
}

// ElementAmountInPhaseIn is ElementAmountInPhase in the given amount units.
func (s *ChemicalState) ElementAmountInPhaseIn(element, phase, unit string) (float64, error) {
	b, err := s.ElementAmountInPhase(element, phase)
	if err != nil {
		return 0, err
	}
	return units.Convert(b, "mol", unit)
}

// ElementAmountInSpecies returns the amount of element ie contained in
// the given species.
func (s *ChemicalState) ElementAmountInSpecies(ie int, indices []int) (float64, error) {
	b, err := s.ElementAmountsInSpecies(indices)
	if err != nil {
		return 0, err
	}
	if err := s.checkElement(ie); err != nil {
		return 0, err
	}
	return b[ie], nil
}

// Add returns a new state whose amounts are a.n + b.n; T, P and the dual
// variables are taken from a.
func Add(a, b *ChemicalState) (*ChemicalState, error) {
	if len(a.n) != len(b.n) {
		return nil, fmt.Errorf("%w: cannot add states of %d and %d species", ErrDimensionMismatch, len(a.n), len(b.n))
	}
	res := a.Clone()
	for i := range res.n {
		res.n[i] += b.n[i]
	}
	return res, nil
}

// Scale returns a new state with amounts multiplied by scalar.
func Scale(scalar float64, st *ChemicalState) (*ChemicalState, error) {
	res := st.Clone()
	if err := res.ScaleSpeciesAmounts(scalar); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ChemicalState) checkSpecies(i int) error {
	if i < 0 || i >= len(s.n) {
		return fmt.Errorf("%w: species index %d out of range [0, %d)", ErrInvalidState, i, len(s.n))
	}
	return nil
}

func (s *ChemicalState) checkElement(i int) error {
	if i < 0 || i >= len(s.y) {
		return fmt.Errorf("%w: element index %d out of range [0, %d)", ErrInvalidState, i, len(s.y))
	}
	return nil
}

func (s *ChemicalState) checkPhase(i int) error {
	if i < 0 || i >= s.system.NumPhases() {
		return fmt.Errorf("%w: phase index %d out of range [0, %d)", ErrInvalidState, i, s.system.NumPhases())
	}
	return nil
}

func checkAmounts(n []float64) error {
	for i, v := range n {
		if !(v >= 0) {
			return fmt.Errorf("%w: species amount %d must be non-negative, got %g", ErrInvalidState, i, v)
		}
	}
	return nil
}

func clone(v []float64) []float64 {
	c := make([]float64, len(v))
	copy(c, v)
	return c
}
