package chem

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// GasConstant in J/(mol K).
	GasConstant = 8.3144621

	// ReferenceTemperature of the standard-state data in K.
	ReferenceTemperature = 298.15

	// ReferencePressure of the gaseous standard state in Pa.
	ReferencePressure = 1e5

	// defaultWaterVolume is the molar volume of liquid water in m3/mol.
	defaultWaterVolume = 1.807e-5

	// amountFloor replaces zero amounts inside logarithms.
	amountFloor = 1e-300
)

// StandardGibbsEnergies returns G°(T) for every species in J/mol.
func (s *System) StandardGibbsEnergies(T, P float64) []float64 {
	g := make([]float64, len(s.species))
	for i, sp := range s.species {
		g[i] = sp.Gibbs - sp.Entropy*(T-ReferenceTemperature)
	}
	return g
}

// phaseTotals returns the total amount of each phase.
func (s *System) phaseTotals(n []float64) []float64 {
	totals := make([]float64, len(s.phases))
	for i, v := range n {
		totals[s.phaseOf[i]] += v
	}
	return totals
}

// LnActivities returns ln a for every species at (T, P, n).
func (s *System) LnActivities(T, P float64, n []float64) []float64 {
	totals := s.phaseTotals(n)
	lna := make([]float64, len(s.species))

	for ip, p := range s.phases {
		start, count := s.SpeciesRange(ip)
		total := math.Max(totals[ip], amountFloor)

		switch p.Kind {
		case Aqueous:
			iw := s.solvent
			if iw < start || iw >= start+count {
				iw = -1
			}
			var lnKgWater float64
			if iw >= 0 {
				lnKgWater = math.Log(math.Max(n[iw], amountFloor) * WaterMolarMass)
			}
			for i := start; i < start+count; i++ {
				ni := math.Max(n[i], amountFloor)
				switch {
				case i == iw:
					lna[i] = math.Log(ni / total)
				case iw >= 0:
					lna[i] = math.Log(ni) - lnKgWater
				default:
					lna[i] = math.Log(ni / total)
				}
			}
		case Gaseous:
			lnP := math.Log(P / ReferencePressure)
			for i := start; i < start+count; i++ {
				lna[i] = math.Log(math.Max(n[i], amountFloor)/total) + lnP
			}
		default:
			for i := start; i < start+count; i++ {
				lna[i] = math.Log(math.Max(n[i], amountFloor) / total)
			}
		}
	}
	return lna
}

// Activities returns a for every species at (T, P, n).
func (s *System) Activities(T, P float64, n []float64) []float64 {
	a := s.LnActivities(T, P, n)
	for i := range a {
		a[i] = math.Exp(a[i])
	}
	return a
}

// ChemicalPotentials returns μ = G° + RT ln a in J/mol.
func (s *System) ChemicalPotentials(T, P float64, n []float64) []float64 {
	g := s.StandardGibbsEnergies(T, P)
	lna := s.LnActivities(T, P, n)
	RT := GasConstant * T
	for i := range g {
		g[i] += RT * lna[i]
	}
	return g
}

// LnActivityJacobian returns J with J[i][j] = ∂ln a_i / ∂ln n_j,
// restricted to the given species (rows and columns follow indices).
func (s *System) LnActivityJacobian(T, P float64, n []float64, indices []int) *mat.Dense {
	k := len(indices)
	J := mat.NewDense(k, k, nil)
	totals := s.phaseTotals(n)

	for r, i := range indices {
		ip := s.phaseOf[i]
		kind := s.phases[ip].Kind
		iw := s.solvent
		if kind != Aqueous || iw < 0 || s.phaseOf[iw] != ip {
			iw = -1
		}
		total := math.Max(totals[ip], amountFloor)

		for c, j := range indices {
			if s.phaseOf[j] != ip {
				continue
			}
			var v float64
			if i == j {
				v = 1
			}
			switch {
			case kind == Aqueous && iw >= 0 && i != iw:
				// ln a_i = ln n_i - ln(n_w M_w)
				if j == iw {
					v -= 1
				}
			default:
				// ln a_i = ln n_i - ln N_p
				v -= math.Max(n[j], 0) / total
			}
			J.Set(r, c, v)
		}
	}
	return J
}

// PhaseVolumes returns the volume of each phase in m3.
func (s *System) PhaseVolumes(T, P float64, n []float64) []float64 {
	v := make([]float64, len(s.phases))
	for ip, p := range s.phases {
		start, count := s.SpeciesRange(ip)
		if p.Kind == Gaseous {
			total := 0.0
			for i := start; i < start+count; i++ {
				total += n[i]
			}
			v[ip] = total * GasConstant * T / P
			continue
		}
		for i := start; i < start+count; i++ {
			vm := s.species[i].MolarVolume
			if vm == 0 && i == s.solvent {
				vm = defaultWaterVolume
			}
			v[ip] += n[i] * vm
		}
	}
	return v
}
