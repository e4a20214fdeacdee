package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/reaksim/internal/chem"
)

func testSystem(t *testing.T) *chem.System {
	t.Helper()
	sys, err := chem.NewSystem(
		chem.Phase{Name: "Aqueous", Kind: chem.Aqueous, Species: []chem.Species{
			{Name: "H2O(l)", Formula: map[string]float64{"H": 2, "O": 1}},
			{Name: "H+", Formula: map[string]float64{"H": 1}, Charge: 1},
			{Name: "OH-", Formula: map[string]float64{"H": 1, "O": 1}, Charge: -1},
		}},
		chem.Phase{Name: "Gaseous", Kind: chem.Gaseous, Species: []chem.Species{
			{Name: "H2(g)", Formula: map[string]float64{"H": 2}},
			{Name: "O2(g)", Formula: map[string]float64{"O": 2}},
		}},
		chem.Phase{Name: "Quartz", Kind: chem.Solid, Species: []chem.Species{
			{Name: "Quartz", Formula: map[string]float64{"Si": 1, "O": 2}},
		}},
	)
	require.NoError(t, err)
	return sys
}

func TestNew_ReconstructsInput(t *testing.T) {
	tests := []struct {
		name            string
		eq, kin, inert  []int
		wantEq, wantKin []int
		wantInert       []int
	}{
		{"ordered", []int{0, 1}, []int{2}, []int{3}, []int{0, 1}, []int{2}, []int{3}},
		{"unordered", []int{3, 0}, []int{2, 1}, nil, []int{0, 3}, []int{1, 2}, []int{}},
		{"empty", nil, nil, nil, []int{}, []int{}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.eq, tt.kin, tt.inert)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEq, p.Equilibrium())
			assert.Equal(t, tt.wantKin, p.Kinetic())
			assert.Equal(t, tt.wantInert, p.Inert())
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name           string
		eq, kin, inert []int
	}{
		{"overlap eq/kin", []int{0, 1}, []int{1}, nil},
		{"overlap kin/inert", []int{0}, []int{2}, []int{2}},
		{"duplicate within set", []int{0, 0}, nil, nil},
		{"negative", []int{-1}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.eq, tt.kin, tt.inert)
			assert.ErrorIs(t, err, ErrInvalidPartition)
		})
	}
}

func TestValidate(t *testing.T) {
	p, err := New([]int{0, 1}, []int{2}, []int{3})
	require.NoError(t, err)

	assert.NoError(t, p.Validate(4))
	assert.ErrorIs(t, p.Validate(3), ErrInvalidPartition, "index 3 out of range")
	assert.ErrorIs(t, p.Validate(5), ErrInvalidPartition, "index 4 unclassified")
}

func TestAccessorsReturnCopies(t *testing.T) {
	p, err := New([]int{0, 1}, []int{2}, nil)
	require.NoError(t, err)

	eq := p.Equilibrium()
	eq[0] = 42
	assert.Equal(t, []int{0, 1}, p.Equilibrium())
}

func TestAllEquilibriumAndAllKinetic(t *testing.T) {
	sys := testSystem(t)

	p := AllEquilibrium(sys)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, p.Equilibrium())
	assert.Empty(t, p.Kinetic())
	assert.Empty(t, p.Inert())
	assert.NoError(t, p.Validate(sys.NumSpecies()))

	p = AllKinetic(sys)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, p.Kinetic())
	assert.Empty(t, p.Equilibrium())
	assert.NoError(t, p.Validate(sys.NumSpecies()))
}

func TestAllEquilibriumExcept(t *testing.T) {
	sys := testSystem(t)

	p, err := AllEquilibriumExcept(sys, []int{5}, []int{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, p.Equilibrium())
	assert.Equal(t, []int{5}, p.Kinetic())
	assert.Equal(t, []int{3, 4}, p.Inert())

	_, err = AllEquilibriumExcept(sys, []int{5}, []int{5})
	assert.ErrorIs(t, err, ErrInvalidPartition)

	_, err = AllEquilibriumExcept(sys, []int{6}, nil)
	assert.ErrorIs(t, err, ErrInvalidPartition)
}

func TestAllKineticExcept(t *testing.T) {
	sys := testSystem(t)

	p, err := AllKineticExcept(sys, []int{0, 1, 2}, []int{5})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, p.Equilibrium())
	assert.Equal(t, []int{3, 4}, p.Kinetic())
	assert.Equal(t, []int{5}, p.Inert())
}

func TestRole(t *testing.T) {
	p, err := New([]int{0}, []int{1}, []int{2})
	require.NoError(t, err)

	assert.Equal(t, Equilibrium, p.Role(0))
	assert.Equal(t, Kinetic, p.Role(1))
	assert.Equal(t, Inert, p.Role(2))
	assert.Equal(t, Unassigned, p.Role(3))
	assert.Equal(t, "kinetic", p.Role(1).String())
}

func TestParse(t *testing.T) {
	sys := testSystem(t)

	tests := []struct {
		name           string
		descriptor     string
		eq, kin, inert []int
	}{
		{"empty", "", []int{0, 1, 2, 3, 4, 5}, []int{}, []int{}},
		{"kinetic only", "kinetic = Quartz", []int{0, 1, 2, 3, 4}, []int{5}, []int{}},
		{"kinetic and inert phase", "kinetic = Quartz; inert = Gaseous", []int{0, 1, 2}, []int{5}, []int{3, 4}},
		{"equilibrium given", "equilibrium = Aqueous; inert = O2(g)", []int{0, 1, 2}, []int{3, 5}, []int{4}},
		{"all explicit", "Equilibrium = Aqueous; kinetic = H2(g) O2(g); inert = Quartz", []int{0, 1, 2}, []int{3, 4}, []int{5}},
		{"trailing separator", "kinetic = Quartz;", []int{0, 1, 2, 3, 4}, []int{5}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(sys, tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, tt.eq, p.Equilibrium())
			assert.Equal(t, tt.kin, p.Kinetic())
			assert.Equal(t, tt.inert, p.Inert())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	sys := testSystem(t)

	_, err := Parse(sys, "kinetic Quartz")
	assert.ErrorIs(t, err, ErrInvalidPartition)

	_, err = Parse(sys, "reactive = Quartz")
	assert.ErrorIs(t, err, ErrInvalidPartition)

	_, err = Parse(sys, "kinetic = Quartz; kinetic = H+")
	assert.ErrorIs(t, err, ErrInvalidPartition)

	_, err = Parse(sys, "kinetic = Granite")
	assert.ErrorIs(t, err, chem.ErrUnknownName)

	_, err = Parse(sys, "equilibrium = Aqueous; kinetic = Quartz; inert = H2(g)")
	assert.ErrorIs(t, err, ErrInvalidPartition, "O2(g) left unclassified")

	_, err = Parse(sys, "kinetic = Quartz; inert = Quartz")
	assert.ErrorIs(t, err, ErrInvalidPartition)
}

func TestDescribe(t *testing.T) {
	sys := testSystem(t)
	p, err := Parse(sys, "kinetic = Quartz; inert = Gaseous")
	require.NoError(t, err)
	assert.Equal(t, "equilibrium = H2O(l) H+ OH-; kinetic = Quartz; inert = H2(g) O2(g)", p.Describe(sys))
}
