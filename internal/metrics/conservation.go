package metrics

import (
	"math"

	"github.com/san-kum/reaksim/internal/state"
)

// ElementDrift tracks the largest relative change of any element amount
// against the first observed state. Elements that start at zero are
// measured in absolute moles.
type ElementDrift struct {
	name     string
	initial  []float64
	maxDrift float64
}

func NewElementDrift() *ElementDrift {
	return &ElementDrift{name: "element_drift"}
}

func (e *ElementDrift) Name() string { return e.name }

func (e *ElementDrift) Observe(st *state.ChemicalState, t float64) {
	b := st.ElementAmounts()
	if e.initial == nil {
		e.initial = b
		return
	}
	for j, v := range b {
		drift := math.Abs(v - e.initial[j])
		if e.initial[j] != 0 {
			drift /= math.Abs(e.initial[j])
		}
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *ElementDrift) Value() float64 { return e.maxDrift }

func (e *ElementDrift) Reset() {
	e.initial = nil
	e.maxDrift = 0
}

// GibbsChange is the total Gibbs energy of the last observed state minus
// that of the first, in J. It is negative for a spontaneous process.
type GibbsChange struct {
	name    string
	initial float64
	current float64
	samples int
}

func NewGibbsChange() *GibbsChange {
	return &GibbsChange{name: "gibbs_change"}
}

func (g *GibbsChange) Name() string { return g.name }

func (g *GibbsChange) Observe(st *state.ChemicalState, t float64) {
	G := GibbsEnergy(st)
	if g.samples == 0 {
		g.initial = G
	}
	g.current = G
	g.samples++
}

func (g *GibbsChange) Value() float64 {
	if g.samples == 0 {
		return 0
	}
	return g.current - g.initial
}

func (g *GibbsChange) Reset() {
	g.initial = 0
	g.current = 0
	g.samples = 0
}

// GibbsEnergy returns sum(n_i * mu_i) over the species present in st.
func GibbsEnergy(st *state.ChemicalState) float64 {
	n := st.SpeciesAmounts()
	mu := st.System().ChemicalPotentials(st.Temperature(), st.Pressure(), n)
	G := 0.0
	for i, v := range n {
		if v > 0 {
			G += v * mu[i]
		}
	}
	return G
}
