package chem

import (
	"fmt"
	"sort"
	"strings"
)

// PhaseKind selects the activity model used for the species of a phase.
type PhaseKind int

const (
	Aqueous PhaseKind = iota
	Gaseous
	Liquid
	Solid
)

func (k PhaseKind) String() string {
	switch k {
	case Aqueous:
		return "aqueous"
	case Gaseous:
		return "gaseous"
	case Liquid:
		return "liquid"
	case Solid:
		return "solid"
	default:
		return fmt.Sprintf("PhaseKind(%d)", int(k))
	}
}

// ParsePhaseKind converts a database token into a PhaseKind.
func ParsePhaseKind(s string) (PhaseKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aqueous", "aq":
		return Aqueous, nil
	case "gaseous", "gas", "g":
		return Gaseous, nil
	case "liquid", "l":
		return Liquid, nil
	case "solid", "mineral", "s":
		return Solid, nil
	}
	return 0, fmt.Errorf("%w: unknown phase kind %q", ErrInvalidSystem, s)
}

// Species is a chemical species with its standard thermodynamic data.
type Species struct {
	Name    string
	Formula map[string]float64 // element -> atoms per formula unit
	Charge  float64

	// MolarMass in kg/mol; computed from Formula when zero.
	MolarMass float64

	// Gibbs is the standard Gibbs energy of formation at 298.15 K (J/mol).
	Gibbs float64
	// Entropy is the standard molar entropy at 298.15 K (J/(mol K)).
	Entropy float64
	// MolarVolume in m3/mol, used for condensed phases.
	MolarVolume float64
}

// Elements returns the element names of the species in sorted order.
func (s Species) Elements() []string {
	names := make([]string, 0, len(s.Formula))
	for e := range s.Formula {
		names = append(names, e)
	}
	sort.Strings(names)
	return names
}

func (s Species) clone() Species {
	c := s
	c.Formula = make(map[string]float64, len(s.Formula))
	for k, v := range s.Formula {
		c.Formula[k] = v
	}
	return c
}

// Phase groups species that share one activity model.
type Phase struct {
	Name    string
	Kind    PhaseKind
	Species []Species
}
