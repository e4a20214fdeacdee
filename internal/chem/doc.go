// Package chem describes a chemical system: its elements, species and
// phases, together with an ideal-mixture thermodynamic model.
//
// A [System] is immutable once built. Species are stored phase by phase,
// so the species of phase p occupy the contiguous index range returned by
// [System.SpeciesRange].
//
// The thermodynamic model is deliberately simple:
//
//   - standard Gibbs energy G°(T) = G°ref - S°ref (T - Tref)
//   - aqueous solutes: ideal molality activity, a = m/m°
//   - aqueous solvent, liquid and solid solutions: a = x
//   - gases: ideal gas, a = x P/P°
//
// Phase volumes use the ideal-gas law for gaseous phases and constant
// molar volumes otherwise.
//
// Systems are usually loaded from a YAML species database:
//
//	sys, err := chem.LoadDatabase("species.yaml")
//	sys, err := chem.Builtin("carbonate")
package chem
