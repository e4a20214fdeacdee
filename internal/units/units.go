// Package units converts scalar quantities between named units.
//
// Units are grouped by dimension (amount, mass, temperature, pressure,
// volume, molality, time). Conversion is only defined inside a dimension:
//
//	v, err := units.Convert(25, "celsius", "kelvin") // 298.15
//
// Unknown unit names and cross-dimension conversions fail with
// [ErrUnsupportedUnits].
package units

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedUnits indicates an unknown unit or incompatible unit pair.
var ErrUnsupportedUnits = errors.New("units: unsupported units")

// Dimension identifies the physical quantity a unit measures.
type Dimension int

const (
	Dimensionless Dimension = iota
	Amount
	Mass
	Temperature
	Pressure
	Volume
	Molality
	Time
)

func (d Dimension) String() string {
	switch d {
	case Amount:
		return "amount"
	case Mass:
		return "mass"
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	case Volume:
		return "volume"
	case Molality:
		return "molality"
	case Time:
		return "time"
	default:
		return "dimensionless"
	}
}

// unit maps a value to the SI base of its dimension: si = v*scale + offset.
type unit struct {
	dim    Dimension
	scale  float64
	offset float64
}

var table = map[string]unit{
	// amount (mol)
	"mol":  {Amount, 1, 0},
	"mmol": {Amount, 1e-3, 0},
	"umol": {Amount, 1e-6, 0},
	"nmol": {Amount, 1e-9, 0},
	"kmol": {Amount, 1e3, 0},

	// mass (kg)
	"kg": {Mass, 1, 0},
	"g":  {Mass, 1e-3, 0},
	"mg": {Mass, 1e-6, 0},
	"ug": {Mass, 1e-9, 0},
	"t":  {Mass, 1e3, 0},
	"lb": {Mass, 0.45359237, 0},

	// temperature (K)
	"K":          {Temperature, 1, 0},
	"kelvin":     {Temperature, 1, 0},
	"degC":       {Temperature, 1, 273.15},
	"celsius":    {Temperature, 1, 273.15},
	"degF":       {Temperature, 5.0 / 9.0, 273.15 - 32*5.0/9.0},
	"fahrenheit": {Temperature, 5.0 / 9.0, 273.15 - 32*5.0/9.0},
	"degR":       {Temperature, 5.0 / 9.0, 0},
	"rankine":    {Temperature, 5.0 / 9.0, 0},

	// pressure (Pa)
	"Pa":     {Pressure, 1, 0},
	"pascal": {Pressure, 1, 0},
	"kPa":    {Pressure, 1e3, 0},
	"MPa":    {Pressure, 1e6, 0},
	"GPa":    {Pressure, 1e9, 0},
	"bar":    {Pressure, 1e5, 0},
	"mbar":   {Pressure, 1e2, 0},
	"atm":    {Pressure, 101325, 0},
	"psi":    {Pressure, 6894.757293168361, 0},
	"mmHg":   {Pressure, 133.322387415, 0},

	// volume (m3)
	"m3":  {Volume, 1, 0},
	"cm3": {Volume, 1e-6, 0},
	"mm3": {Volume, 1e-9, 0},
	"L":   {Volume, 1e-3, 0},
	"l":   {Volume, 1e-3, 0},
	"mL":  {Volume, 1e-6, 0},
	"ml":  {Volume, 1e-6, 0},

	// molality (mol/kg)
	"molal":  {Molality, 1, 0},
	"mol/kg": {Molality, 1, 0},
	"mmolal": {Molality, 1e-3, 0},
	"umolal": {Molality, 1e-6, 0},

	// time (s)
	"s":      {Time, 1, 0},
	"second": {Time, 1, 0},
	"minute": {Time, 60, 0},
	"min":    {Time, 60, 0},
	"hour":   {Time, 3600, 0},
	"h":      {Time, 3600, 0},
	"day":    {Time, 86400, 0},
	"year":   {Time, 31557600, 0},
}

func lookup(name string) (unit, bool) {
	u, ok := table[strings.TrimSpace(name)]
	return u, ok
}

// DimensionOf reports the dimension of a unit name.
func DimensionOf(name string) (Dimension, error) {
	u, ok := lookup(name)
	if !ok {
		return Dimensionless, fmt.Errorf("%w: unknown unit %q", ErrUnsupportedUnits, name)
	}
	return u.dim, nil
}

// Convertible reports whether a value in from can be expressed in to.
func Convertible(from, to string) bool {
	uf, ok := lookup(from)
	if !ok {
		return false
	}
	ut, ok := lookup(to)
	if !ok {
		return false
	}
	return uf.dim == ut.dim
}

// Convert converts value from one unit to another of the same dimension.
func Convert(value float64, from, to string) (float64, error) {
	uf, ok := lookup(from)
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrUnsupportedUnits, from)
	}
	ut, ok := lookup(to)
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrUnsupportedUnits, to)
	}
	if uf.dim != ut.dim {
		return 0, fmt.Errorf("%w: cannot convert %s (%s) to %s (%s)", ErrUnsupportedUnits, from, uf.dim, to, ut.dim)
	}
	if from == to {
		return value, nil
	}
	si := value*uf.scale + uf.offset
	return (si - ut.offset) / ut.scale, nil
}

// MustConvert is Convert for unit pairs known to be valid at compile time.
func MustConvert(value float64, from, to string) float64 {
	v, err := Convert(value, from, to)
	if err != nil {
		panic(err)
	}
	return v
}
