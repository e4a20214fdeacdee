// Package partition classifies the species of a chemical system into
// equilibrium, kinetic and inert roles.
//
// A Partition is an immutable value. It carries no reference to a system,
// so range and coverage checks against a species count happen at the
// point of use through [Partition.Validate].
package partition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/reaksim/internal/chem"
)

// ErrInvalidPartition indicates overlapping, duplicated, negative,
// out-of-range or non-exhaustive species indices.
var ErrInvalidPartition = errors.New("partition: invalid partition")

// Role is the treatment a species receives during kinetic stepping.
type Role int

const (
	Equilibrium Role = iota
	Kinetic
	Inert
	Unassigned
)

func (r Role) String() string {
	switch r {
	case Equilibrium:
		return "equilibrium"
	case Kinetic:
		return "kinetic"
	case Inert:
		return "inert"
	default:
		return "unassigned"
	}
}

// Partition holds three disjoint sorted index sets.
type Partition struct {
	equilibrium []int
	kinetic     []int
	inert       []int
}

// New builds a Partition from explicit index lists. It fails when an
// index is negative or appears more than once across the three lists.
func New(equilibrium, kinetic, inert []int) (Partition, error) {
	seen := make(map[int]Role)
	sets := [3][]int{equilibrium, kinetic, inert}
	for r, set := range sets {
		for _, i := range set {
			if i < 0 {
				return Partition{}, fmt.Errorf("%w: negative index %d in %s set", ErrInvalidPartition, i, Role(r))
			}
			if prev, ok := seen[i]; ok {
				return Partition{}, fmt.Errorf("%w: index %d is both %s and %s", ErrInvalidPartition, i, prev, Role(r))
			}
			seen[i] = Role(r)
		}
	}
	return Partition{
		equilibrium: sorted(equilibrium),
		kinetic:     sorted(kinetic),
		inert:       sorted(inert),
	}, nil
}

// AllEquilibrium puts every species of sys in the equilibrium set.
func AllEquilibrium(sys *chem.System) Partition {
	return Partition{equilibrium: span(sys.NumSpecies()), kinetic: []int{}, inert: []int{}}
}

// AllKinetic puts every species of sys in the kinetic set.
func AllKinetic(sys *chem.System) Partition {
	return Partition{equilibrium: []int{}, kinetic: span(sys.NumSpecies()), inert: []int{}}
}

// AllEquilibriumExcept makes every species not listed as kinetic or inert
// an equilibrium species.
func AllEquilibriumExcept(sys *chem.System, kinetic, inert []int) (Partition, error) {
	eq := complement(sys.NumSpecies(), kinetic, inert)
	p, err := New(eq, kinetic, inert)
	if err != nil {
		return Partition{}, err
	}
	return p, p.Validate(sys.NumSpecies())
}

// AllKineticExcept makes every species not listed as equilibrium or inert
// a kinetic species.
func AllKineticExcept(sys *chem.System, equilibrium, inert []int) (Partition, error) {
	kin := complement(sys.NumSpecies(), equilibrium, inert)
	p, err := New(equilibrium, kin, inert)
	if err != nil {
		return Partition{}, err
	}
	return p, p.Validate(sys.NumSpecies())
}

// Validate checks that the partition covers exactly the range [0, n).
func (p Partition) Validate(n int) error {
	count := 0
	for _, set := range [][]int{p.equilibrium, p.kinetic, p.inert} {
		for _, i := range set {
			if i >= n {
				return fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidPartition, i, n)
			}
			count++
		}
	}
	if count != n {
		return fmt.Errorf("%w: %d of %d species classified", ErrInvalidPartition, count, n)
	}
	return nil
}

// Equilibrium returns the indices of the equilibrium species.
func (p Partition) Equilibrium() []int { return clone(p.equilibrium) }

// Kinetic returns the indices of the kinetic species.
func (p Partition) Kinetic() []int { return clone(p.kinetic) }

// Inert returns the indices of the inert species.
func (p Partition) Inert() []int { return clone(p.inert) }

// NumEquilibrium, NumKinetic and NumInert return the set sizes.
func (p Partition) NumEquilibrium() int { return len(p.equilibrium) }
func (p Partition) NumKinetic() int     { return len(p.kinetic) }
func (p Partition) NumInert() int       { return len(p.inert) }

// Role reports the role of species i.
func (p Partition) Role(i int) Role {
	switch {
	case contains(p.equilibrium, i):
		return Equilibrium
	case contains(p.kinetic, i):
		return Kinetic
	case contains(p.inert, i):
		return Inert
	}
	return Unassigned
}

func (p Partition) String() string {
	return fmt.Sprintf("equilibrium=%v kinetic=%v inert=%v", p.equilibrium, p.kinetic, p.inert)
}

// Describe renders the partition with species names.
func (p Partition) Describe(sys *chem.System) string {
	var b strings.Builder
	for r, set := range [][]int{p.equilibrium, p.kinetic, p.inert} {
		if r > 0 {
			b.WriteString("; ")
		}
		b.WriteString(Role(r).String())
		b.WriteString(" =")
		for _, i := range set {
			b.WriteByte(' ')
			if i < sys.NumSpecies() {
				b.WriteString(sys.Species(i).Name)
			} else {
				fmt.Fprintf(&b, "#%d", i)
			}
		}
	}
	return b.String()
}

func span(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}

func complement(n int, a, b []int) []int {
	excluded := make(map[int]bool, len(a)+len(b))
	for _, i := range a {
		excluded[i] = true
	}
	for _, i := range b {
		excluded[i] = true
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !excluded[i] {
			out = append(out, i)
		}
	}
	return out
}

func sorted(s []int) []int {
	c := clone(s)
	sort.Ints(c)
	return c
}

func clone(s []int) []int {
	c := make([]int, len(s))
	copy(c, s)
	return c
}

func contains(sortedSet []int, i int) bool {
	k := sort.SearchInts(sortedSet, i)
	return k < len(sortedSet) && sortedSet[k] == i
}
