package partition

import (
	"fmt"
	"strings"

	"github.com/san-kum/reaksim/internal/chem"
)

// Parse builds a Partition from a descriptor such as
//
//	kinetic = Calcite; inert = Quartz
//
// Clauses are separated by ';' and have the form "role = name ...", where
// role is equilibrium, kinetic or inert and each name is a species or a
// phase (a phase stands for all of its species). Omitted roles are filled
// in by complement: equilibrium first, then kinetic. An empty descriptor
// yields AllEquilibrium.
func Parse(sys *chem.System, descriptor string) (Partition, error) {
	var sets [3][]int
	var given [3]bool

	for _, clause := range strings.Split(descriptor, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return Partition{}, fmt.Errorf("%w: clause %q has no '='", ErrInvalidPartition, clause)
		}

		role, err := parseRole(lhs)
		if err != nil {
			return Partition{}, err
		}
		if given[role] {
			return Partition{}, fmt.Errorf("%w: %s set given twice", ErrInvalidPartition, role)
		}
		given[role] = true

		for _, name := range strings.Fields(rhs) {
			indices, err := resolve(sys, name)
			if err != nil {
				return Partition{}, err
			}
			sets[role] = append(sets[role], indices...)
		}
	}

	eq, kin, inert := sets[Equilibrium], sets[Kinetic], sets[Inert]
	switch {
	case !given[Equilibrium] && !given[Kinetic] && !given[Inert]:
		return AllEquilibrium(sys), nil
	case !given[Equilibrium]:
		return AllEquilibriumExcept(sys, kin, inert)
	case !given[Kinetic]:
		return AllKineticExcept(sys, eq, inert)
	}

	p, err := New(eq, kin, inert)
	if err != nil {
		return Partition{}, err
	}
	return p, p.Validate(sys.NumSpecies())
}

func parseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equilibrium", "eq":
		return Equilibrium, nil
	case "kinetic", "kinetics":
		return Kinetic, nil
	case "inert":
		return Inert, nil
	}
	return Unassigned, fmt.Errorf("%w: unknown role %q", ErrInvalidPartition, strings.TrimSpace(s))
}

func resolve(sys *chem.System, name string) ([]int, error) {
	if i, err := sys.IndexSpecies(name); err == nil {
		return []int{i}, nil
	}
	ip, err := sys.IndexPhase(name)
	if err != nil {
		return nil, fmt.Errorf("%w: species or phase %q", chem.ErrUnknownName, name)
	}
	start, count := sys.SpeciesRange(ip)
	return span(count + start)[start:], nil
}
