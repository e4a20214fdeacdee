package state

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/units"
)

func testSystem(t *testing.T) *chem.System {
	t.Helper()
	sys, err := chem.NewSystem(
		chem.Phase{Name: "Aqueous", Kind: chem.Aqueous, Species: []chem.Species{
			{Name: "H2O(l)", Formula: map[string]float64{"H": 2, "O": 1}},
			{Name: "H+", Formula: map[string]float64{"H": 1}, Charge: 1},
			{Name: "OH-", Formula: map[string]float64{"H": 1, "O": 1}, Charge: -1},
			{Name: "CO2(aq)", Formula: map[string]float64{"C": 1, "O": 2}},
		}},
		chem.Phase{Name: "Gaseous", Kind: chem.Gaseous, Species: []chem.Species{
			{Name: "CO2(g)", Formula: map[string]float64{"C": 1, "O": 2}},
		}},
	)
	require.NoError(t, err)
	return sys
}

func filledState(t *testing.T) *ChemicalState {
	t.Helper()
	st := New(testSystem(t))
	require.NoError(t, st.SetSpeciesAmounts([]float64{55.508, 1e-7 * 55.508 * chem.WaterMolarMass, 1e-7, 0.01, 1}))
	return st
}

func TestNew_Defaults(t *testing.T) {
	st := New(testSystem(t))

	assert.Equal(t, 298.15, st.Temperature())
	assert.Equal(t, 1e5, st.Pressure())
	assert.Equal(t, make([]float64, 5), st.SpeciesAmounts())
	assert.Len(t, st.ElementPotentials(), 4)
	assert.Len(t, st.SpeciesPotentials(), 5)
}

func TestTemperatureAndPressure(t *testing.T) {
	st := New(testSystem(t))

	require.NoError(t, st.SetTemperatureIn(60, "celsius"))
	assert.InDelta(t, 333.15, st.Temperature(), 1e-12)

	require.NoError(t, st.SetPressureIn(2, "bar"))
	assert.InDelta(t, 2e5, st.Pressure(), 1e-9)

	assert.ErrorIs(t, st.SetTemperature(-1), ErrInvalidState)
	assert.ErrorIs(t, st.SetPressure(0), ErrInvalidState)
	assert.ErrorIs(t, st.SetTemperatureIn(1, "bar"), units.ErrUnsupportedUnits)
	assert.InDelta(t, 333.15, st.Temperature(), 1e-12)
	assert.InDelta(t, 2e5, st.Pressure(), 1e-9)
}

func TestSpeciesAmounts_RoundTrip(t *testing.T) {
	st := New(testSystem(t))

	require.NoError(t, st.SetSpeciesAmount(1, 0.5))
	v, err := st.SpeciesAmount(1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	require.NoError(t, st.SetSpeciesAmountByName("CO2(g)", 2))
	v, err = st.SpeciesAmountByName("CO2(g)")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	require.NoError(t, st.SetSpeciesAmountsAt([]float64{3, 4}, []int{0, 3}))
	assert.Equal(t, []float64{3, 0.5, 0, 4, 2}, st.SpeciesAmounts())

	require.NoError(t, st.FillSpeciesAmounts(1))
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, st.SpeciesAmounts())
}

func TestSpeciesAmounts_InvalidInputLeavesStateUnchanged(t *testing.T) {
	st := filledState(t)
	before := st.SpeciesAmounts()

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{"short vector", func() error { return st.SetSpeciesAmounts([]float64{1, 2}) }, ErrDimensionMismatch},
		{"negative entry", func() error { return st.SetSpeciesAmounts([]float64{1, 1, 1, -1, 1}) }, ErrInvalidState},
		{"NaN entry", func() error { return st.SetSpeciesAmounts([]float64{1, 1, math.NaN(), 1, 1}) }, ErrInvalidState},
		{"index out of range", func() error { return st.SetSpeciesAmount(5, 1) }, ErrInvalidState},
		{"negative amount", func() error { return st.SetSpeciesAmount(0, -1) }, ErrInvalidState},
		{"unknown name", func() error { return st.SetSpeciesAmountByName("NaCl(aq)", 1) }, chem.ErrUnknownName},
		{"indices length", func() error { return st.SetSpeciesAmountsAt([]float64{1}, []int{0, 1}) }, ErrDimensionMismatch},
		{"indices range", func() error { return st.SetSpeciesAmountsAt([]float64{1, 1}, []int{0, 9}) }, ErrInvalidState},
		{"negative fill", func() error { return st.FillSpeciesAmounts(-2) }, ErrInvalidState},
		{"unsupported units", func() error { return st.SetSpeciesAmountIn(0, 1, "bar") }, units.ErrUnsupportedUnits},
		{"negative scale", func() error { return st.ScaleSpeciesAmounts(-1) }, ErrInvalidState},
		{"negative volume", func() error { return st.SetVolume(-1) }, ErrInvalidState},
		{"phase out of range", func() error { return st.SetPhaseVolume(2, 1) }, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), tt.wantErr)
			assert.Equal(t, before, st.SpeciesAmounts())
		})
	}
}

func TestSetSpeciesAmountIn_Units(t *testing.T) {
	st := New(testSystem(t))
	mw := st.System().Species(0).MolarMass

	require.NoError(t, st.SetSpeciesAmountIn(0, 1000*mw, "g"))
	v, err := st.SpeciesAmount(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)

	require.NoError(t, st.SetSpeciesAmountByNameIn("CO2(g)", 250, "mmol"))
	v, err = st.SpeciesAmountIn("CO2(g)", "mol")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, v, 1e-15)

	g, err := st.SpeciesAmountIn("H2O(l)", "g")
	require.NoError(t, err)
	assert.InDelta(t, 1000*mw, g, 1e-9)

	g, err = st.SpeciesAmountAtIn(0, "g")
	require.NoError(t, err)
	assert.InDelta(t, 1000*mw, g, 1e-9)

	mmol, err := st.SpeciesAmountAtIn(st.System().NumSpecies()-1, "mmol")
	require.NoError(t, err)
	assert.InDelta(t, 250, mmol, 1e-9)

	_, err = st.SpeciesAmountAtIn(-1, "mol")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = st.SpeciesAmountAtIn(0, "bar")
	assert.ErrorIs(t, err, units.ErrUnsupportedUnits)
}

func TestScale_IdentityAndAdd(t *testing.T) {
	st := filledState(t)

	same, err := Scale(1, st)
	require.NoError(t, err)
	assert.Equal(t, st.SpeciesAmounts(), same.SpeciesAmounts())

	double, err := Add(st, st)
	require.NoError(t, err)
	twice, err := Scale(2, st)
	require.NoError(t, err)
	assert.Equal(t, twice.SpeciesAmounts(), double.SpeciesAmounts())

	_, err = Scale(-1, st)
	assert.ErrorIs(t, err, ErrInvalidState)

	other, err := chem.NewSystem(chem.Phase{Name: "Gas", Kind: chem.Gaseous, Species: []chem.Species{
		{Name: "N2(g)", Formula: map[string]float64{"N": 2}},
	}})
	require.NoError(t, err)
	_, err = Add(st, New(other))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClone_IsDeep(t *testing.T) {
	st := filledState(t)
	c := st.Clone()

	require.NoError(t, c.SetSpeciesAmount(4, 42))
	require.NoError(t, c.SetElementPotentials([]float64{1, 2, 3, 4}))

	v, _ := st.SpeciesAmount(4)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, make([]float64, 4), st.ElementPotentials())

	out := st.SpeciesAmounts()
	out[0] = -5
	v, _ = st.SpeciesAmount(0)
	assert.Equal(t, 55.508, v)
}

func TestSetVolume(t *testing.T) {
	st := filledState(t)
	sys := st.System()

	total := func() float64 {
		sum := 0.0
		for _, v := range sys.PhaseVolumes(st.Temperature(), st.Pressure(), st.SpeciesAmounts()) {
			sum += v
		}
		return sum
	}

	target := 3 * total()
	require.NoError(t, st.SetVolume(target))
	assert.InDelta(t, target, total(), target*1e-12)

	require.NoError(t, st.SetPhaseVolumeByName("Gaseous", 0.01))
	assert.InDelta(t, 0.01, sys.PhaseVolumes(st.Temperature(), st.Pressure(), st.SpeciesAmounts())[1], 1e-14)

	empty := New(sys)
	require.NoError(t, empty.SetVolume(1))
	assert.Equal(t, make([]float64, 5), empty.SpeciesAmounts())
}

func TestScaleSpeciesAmountsInPhase(t *testing.T) {
	st := filledState(t)
	require.NoError(t, st.ScaleSpeciesAmountsInPhase(1, 0.5))

	n := st.SpeciesAmounts()
	assert.Equal(t, 0.5, n[4])
	assert.Equal(t, 55.508, n[0])
}

func TestElementAmounts(t *testing.T) {
	st := filledState(t)

	c, err := st.ElementAmountByName("C")
	require.NoError(t, err)
	assert.InDelta(t, 1.01, c, 1e-12)

	cGas, err := st.ElementAmountInPhase("C", "Gaseous")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cGas, 1e-12)

	mmol, err := st.ElementAmountIn("C", "mmol")
	require.NoError(t, err)
	assert.InDelta(t, 1010, mmol, 1e-9)

	ic, err := st.System().IndexElement("C")
	require.NoError(t, err)
	inAq, err := st.ElementAmountInSpecies(ic, []int{3})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, inAq, 1e-15)

	_, err = st.ElementAmount(10)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = st.ElementAmountByName("Na")
	assert.ErrorIs(t, err, chem.ErrUnknownName)
}

func TestPotentials_DimensionChecks(t *testing.T) {
	st := New(testSystem(t))
	assert.ErrorIs(t, st.SetElementPotentials([]float64{1}), ErrDimensionMismatch)
	assert.ErrorIs(t, st.SetSpeciesPotentials([]float64{1}), ErrDimensionMismatch)
	assert.NoError(t, st.SetSpeciesPotentials([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, st.SpeciesPotentials())
}

func TestExtract(t *testing.T) {
	st := filledState(t)
	kgWater := 55.508 * chem.WaterMolarMass

	tests := []struct {
		query string
		want  float64
	}{
		{"n[CO2(g)]", 1},
		{"n[CO2(g)]:mmol", 1000},
		{"n[CO2(aq)]", 0.01},
		{"b[C]", 1.01},
		{"b[C,Gaseous]", 1},
		{"b[C][Aqueous]", 0.01},
		{"b[C]:mmol", 1010},
		{"m[CO2(aq)]", 0.01 / kgWater},
		{"m[CO2(aq)]:mmolal", 10 / kgWater},
		{"a[CO2(g)]", 1},
		{"a[H+]", 1e-7},
		{"pH", 7},
		{" pH ", 7},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Extract(st, tt.query)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, math.Abs(tt.want)*1e-9)
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	st := filledState(t)

	tests := []struct {
		query   string
		wantErr error
	}{
		{"", ErrInvalidQuery},
		{"x[H+]", ErrInvalidQuery},
		{"n[H+", ErrInvalidQuery},
		{"n[]", ErrInvalidQuery},
		{"n H+", ErrInvalidQuery},
		{"n[H+]]", ErrInvalidQuery},
		{"n[H+,Aqueous]", ErrInvalidQuery},
		{"pH extra", ErrInvalidQuery},
		{"n[H+]:", ErrInvalidQuery},
		{"n[Na+]", chem.ErrUnknownName},
		{"b[C,Solid]", chem.ErrUnknownName},
		{"n[H+]:K", units.ErrUnsupportedUnits},
		{"a[H+]:mol", units.ErrUnsupportedUnits},
		{"pH:mol", units.ErrUnsupportedUnits},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, err := Extract(st, tt.query)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExtract_MolalityWithoutSolvent(t *testing.T) {
	st := New(testSystem(t))
	require.NoError(t, st.SetSpeciesAmount(3, 1))

	_, err := Extract(st, "m[CO2(aq)]")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWriteTable(t *testing.T) {
	st := filledState(t)
	out := st.String()

	for _, want := range []string{"Temperature [K]", "SPECIES", "CO2(g)", "H2O(l)", "ELEMENT"} {
		assert.True(t, strings.Contains(out, want), "missing %q", want)
	}

	lines := strings.Split(out, "\n")
	var header, water []string
	for _, line := range lines {
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "INDEX") && strings.Contains(line, "SPECIES"):
			header = fields
		case len(fields) > 1 && fields[1] == "H2O(l)":
			water = fields
		}
	}
	require.NotNil(t, header)
	require.NotNil(t, water)

	hdr := strings.Join(header, " ")
	gibbs := strings.Index(hdr, "STANDARD GIBBS [J/mol]")
	require.GreaterOrEqual(t, gibbs, 0, "missing standard gibbs column in %q", hdr)
	assert.Less(t, strings.Index(hdr, "ACTIVITY"), gibbs)
	assert.Less(t, gibbs, strings.Index(hdr, "CHEM POTENTIAL"))

	// INDEX SPECIES AMOUNT ACTIVITY G0 MU Z
	require.Len(t, water, 7)
	g0 := st.System().StandardGibbsEnergies(st.Temperature(), st.Pressure())
	assert.Equal(t, fmt.Sprintf("%.6e", g0[0]), water[4])
}
