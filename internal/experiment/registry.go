package experiment

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/kinetics"
)

// lawFactory builds a rate law for a parsed stoichiometry. species is the
// index named by ReactionConfig.Species, or the first reactant; mass
// action ignores it.
type lawFactory func(stoich map[int]float64, species int, params map[string]float64) kinetics.RateLaw

var laws = map[string]lawFactory{
	config.MassAction: func(stoich map[int]float64, _ int, p map[string]float64) kinetics.RateLaw {
		kf := p["kf"]
		kb, ok := p["kb"]
		if !ok {
			kb = kf / math.Pow(10, p["log_k"])
		}
		return kinetics.MassAction(kf, kb, stoich)
	},
	config.FirstOrder: func(_ map[int]float64, species int, p map[string]float64) kinetics.RateLaw {
		return kinetics.FirstOrder(p["k"], species)
	},
	config.Mineral: func(stoich map[int]float64, species int, p map[string]float64) kinetics.RateLaw {
		return kinetics.MineralRate(p["k"], p["area"], p["log_k"], species, stoich)
	},
}

// ReactionTypes lists the accepted ReactionConfig.Type values.
func ReactionTypes() []string {
	names := make([]string, 0, len(laws))
	for name := range laws {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildReaction resolves the equation of rc against sys and attaches the
// rate law named by rc.Type.
func BuildReaction(sys *chem.System, rc config.ReactionConfig) (kinetics.Reaction, error) {
	factory, ok := laws[rc.Type]
	if !ok {
		return kinetics.Reaction{}, fmt.Errorf("%w: unknown type %q", kinetics.ErrInvalidReaction, rc.Type)
	}
	stoich, err := kinetics.ParseEquation(sys, rc.Equation)
	if err != nil {
		return kinetics.Reaction{}, err
	}

	species := firstReactant(stoich)
	if rc.Species != "" {
		if species, err = sys.IndexSpecies(rc.Species); err != nil {
			return kinetics.Reaction{}, err
		}
	}
	if species < 0 && rc.Type != config.MassAction {
		return kinetics.Reaction{}, fmt.Errorf("%w: %s law for %q needs a reactant", kinetics.ErrInvalidReaction, rc.Type, rc.Equation)
	}

	name := rc.Name
	if name == "" {
		name = rc.Equation
	}
	return kinetics.Reaction{
		Name:          name,
		Stoichiometry: stoich,
		Rate:          factory(stoich, species, rc.Params),
	}, nil
}

func firstReactant(stoich map[int]float64) int {
	first := -1
	for i, nu := range stoich {
		if nu < 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}
