package chem

// ChargeElement is the pseudo-element carrying electric charge. It is
// appended to the element list whenever a species has a non-zero charge
// so that charge balance is enforced like any other element balance.
const ChargeElement = "Z"

// Element is a chemical element (or the charge pseudo-element).
type Element struct {
	Name      string
	MolarMass float64 // kg/mol
}

// molar masses in kg/mol
var periodicTable = map[string]float64{
	"H":  0.00100794,
	"He": 0.004002602,
	"Li": 0.006941,
	"Be": 0.009012182,
	"B":  0.010811,
	"C":  0.0120107,
	"N":  0.0140067,
	"O":  0.0159994,
	"F":  0.0189984032,
	"Ne": 0.0201797,
	"Na": 0.02298977,
	"Mg": 0.024305,
	"Al": 0.026981538,
	"Si": 0.0280855,
	"P":  0.030973761,
	"S":  0.032065,
	"Cl": 0.035453,
	"Ar": 0.039948,
	"K":  0.0390983,
	"Ca": 0.040078,
	"Mn": 0.054938049,
	"Fe": 0.055845,
	"Cu": 0.063546,
	"Zn": 0.06538,
	"Br": 0.079904,
	"Sr": 0.08762,
	"Ba": 0.137327,
	"I":  0.12690447,
	"U":  0.23802891,
	"A":  0.001, // generic test element
	"X":  0.001, // generic test element

	ChargeElement: 0,
}

// ElementMolarMass returns the molar mass of a known element in kg/mol.
func ElementMolarMass(name string) (float64, bool) {
	m, ok := periodicTable[name]
	return m, ok
}
