package chem

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtinFS embed.FS

// Database is the YAML form of a species database.
type Database struct {
	Phases []PhaseRecord `yaml:"phases"`
}

type PhaseRecord struct {
	Name    string          `yaml:"name"`
	Kind    string          `yaml:"kind"`
	Species []SpeciesRecord `yaml:"species"`
}

type SpeciesRecord struct {
	Name        string             `yaml:"name"`
	Formula     map[string]float64 `yaml:"formula"`
	Charge      float64            `yaml:"charge,omitempty"`
	MolarMass   float64            `yaml:"molar_mass,omitempty"`
	Gibbs       float64            `yaml:"gibbs"`
	Entropy     float64            `yaml:"entropy,omitempty"`
	MolarVolume float64            `yaml:"volume,omitempty"`
}

// ParseDatabase decodes a YAML species database and builds the System.
func ParseDatabase(data []byte) (*System, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSystem, err)
	}
	return db.System()
}

// LoadDatabase reads a YAML species database from disk.
func LoadDatabase(filename string) (*System, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseDatabase(data)
}

// Builtin returns one of the databases shipped with the binary.
func Builtin(name string) (*System, error) {
	data, err := builtinFS.ReadFile(path.Join("data", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: builtin database %q (available: %s)", ErrUnknownName, name, strings.Join(ListBuiltin(), ", "))
	}
	return ParseDatabase(data)
}

// ListBuiltin lists the names accepted by Builtin.
func ListBuiltin() []string {
	entries, err := builtinFS.ReadDir("data")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// System converts the database records into a System.
func (db Database) System() (*System, error) {
	phases := make([]Phase, 0, len(db.Phases))
	for _, pr := range db.Phases {
		kind, err := ParsePhaseKind(pr.Kind)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", pr.Name, err)
		}
		p := Phase{Name: pr.Name, Kind: kind}
		for _, sr := range pr.Species {
			p.Species = append(p.Species, Species{
				Name:        sr.Name,
				Formula:     sr.Formula,
				Charge:      sr.Charge,
				MolarMass:   sr.MolarMass,
				Gibbs:       sr.Gibbs,
				Entropy:     sr.Entropy,
				MolarVolume: sr.MolarVolume,
			})
		}
		phases = append(phases, p)
	}
	return NewSystem(phases...)
}
