package config

import (
	"sort"

	"github.com/san-kum/reaksim/internal/kinetics"
)

func solver(maxStep float64) kinetics.Options {
	opts := kinetics.DefaultOptions()
	opts.MaxStep = maxStep
	return opts
}

var water = Amount{Species: "H2O(l)", Value: 1, Unit: "kg"}

// Presets are keyed by builtin database and then by scenario name.
var Presets = map[string]map[string]*Config{
	"carbonate": {
		"dissolution": {
			Name: "CO2 dissolution", Database: "carbonate",
			Temperature: Quantity{25, "celsius"}, Pressure: Quantity{1, "bar"},
			Amounts:   []Amount{water, {Species: "CO2(g)", Value: 1}},
			Partition: "kinetic = CO2(g)",
			Reactions: []ReactionConfig{{
				Name: "dissolution", Equation: "CO2(g) = CO2(aq)", Type: MassAction,
				Params: map[string]float64{"kf": 0.01, "log_k": -1.469},
			}},
			Time:        TimeSpan{End: 100, Unit: "s"},
			Equilibrate: true,
			Outputs:     []string{"pH", "m[CO2(aq)]", "m[HCO3-]"},
			Solver:      solver(0.5),
		},
		"calcite": {
			Name: "calcite dissolution", Database: "carbonate",
			Temperature: Quantity{25, "celsius"}, Pressure: Quantity{1, "bar"},
			Amounts: []Amount{
				water,
				{Species: "CO2(g)", Value: 0.01},
				{Species: "Calcite", Value: 10, Unit: "g"},
			},
			Partition: "kinetic = Calcite",
			Reactions: []ReactionConfig{{
				Name: "calcite", Equation: "Calcite + H+ = Ca++ + HCO3-", Type: Mineral,
				Species: "Calcite",
				Params:  map[string]float64{"k": 1e-5, "area": 1, "log_k": 1.849},
			}},
			Time:        TimeSpan{End: 1, Unit: "h"},
			Equilibrate: true,
			Outputs:     []string{"pH", "m[Ca++]", "n[Calcite]"},
			Solver:      solver(5),
		},
	},
	"butane": {
		"isomerization": {
			Name: "butane isomerization", Database: "butane",
			Temperature: Quantity{25, "celsius"}, Pressure: Quantity{3, "bar"},
			Amounts: []Amount{
				{Species: "n-C4H10(g)", Value: 0.5},
				{Species: "i-C4H10(g)", Value: 0.01},
				{Species: "n-C4H10(l)", Value: 1},
			},
			Partition: "kinetic = i-C4H10(g)",
			Reactions: []ReactionConfig{{
				Name: "isomerization", Equation: "n-C4H10(g) = i-C4H10(g)", Type: MassAction,
				Params: map[string]float64{"kf": 0.05, "log_k": 0.6535},
			}},
			Time:        TimeSpan{End: 10, Unit: "min"},
			Equilibrate: true,
			Outputs:     []string{"n[n-C4H10(g)]", "n[i-C4H10(g)]", "n[n-C4H10(l)]"},
			Solver:      solver(2),
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(database, preset string) *Config {
	dbPresets, ok := Presets[database]
	if !ok {
		return nil
	}
	cfg, ok := dbPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(database string) []string {
	dbPresets, ok := Presets[database]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(dbPresets))
	for name := range dbPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListDatabases returns the databases that have presets.
func ListDatabases() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
