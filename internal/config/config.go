package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/reaksim/internal/kinetics"
	"github.com/san-kum/reaksim/internal/units"
)

var ErrInvalidConfig = errors.New("config: invalid config")

const (
	DefaultDatabase    = "carbonate"
	DefaultTemperature = 25.0
	DefaultPressure    = 1.0
	DefaultDuration    = 100.0
)

// Reaction kinds accepted in ReactionConfig.Type.
const (
	MassAction = "mass_action"
	FirstOrder = "first_order"
	Mineral    = "mineral"
)

type Config struct {
	Name string `yaml:"name,omitempty"`

	// Database is the name of a builtin species database or a path to a
	// YAML database file.
	Database string `yaml:"database"`

	Temperature Quantity `yaml:"temperature"`
	Pressure    Quantity `yaml:"pressure"`
	Amounts     []Amount `yaml:"amounts"`

	// Partition is a descriptor such as "kinetic = CO2(g)"; empty means
	// every species is in equilibrium.
	Partition string `yaml:"partition"`

	Reactions []ReactionConfig `yaml:"reactions"`
	Time      TimeSpan         `yaml:"time"`

	// Equilibrate brings the equilibrium species of the initial state to
	// equilibrium before integration starts.
	Equilibrate bool `yaml:"equilibrate"`

	// Outputs are Extract queries recorded after every step.
	Outputs []string `yaml:"outputs,omitempty"`

	Solver kinetics.Options `yaml:"solver"`
}

type Quantity struct {
	Value float64 `yaml:"value"`
	Unit  string  `yaml:"unit"`
}

// Amount is the initial amount of one species. Unit may be an amount or
// a mass unit and defaults to mol.
type Amount struct {
	Species string  `yaml:"species"`
	Value   float64 `yaml:"value"`
	Unit    string  `yaml:"unit,omitempty"`
}

type ReactionConfig struct {
	Name     string `yaml:"name,omitempty"`
	Equation string `yaml:"equation"`
	Type     string `yaml:"type"`

	// Species selects the species a first-order law depends on, or the
	// mineral of a mineral law. It defaults to the first reactant.
	Species string `yaml:"species,omitempty"`

	// Params holds kf and kb (or log_k) for mass action, k for first
	// order, and k, area, log_k for minerals.
	Params map[string]float64 `yaml:"params"`
}

type TimeSpan struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	// Step caps every step when positive.
	Step float64 `yaml:"step,omitempty"`
	Unit string  `yaml:"unit,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Database:    DefaultDatabase,
		Temperature: Quantity{Value: DefaultTemperature, Unit: "celsius"},
		Pressure:    Quantity{Value: DefaultPressure, Unit: "bar"},
		Time:        TimeSpan{End: DefaultDuration, Unit: "s"},
		Equilibrate: true,
		Solver:      kinetics.DefaultOptions(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML config over DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the parts of the config that do not need the species
// database. Species names and equations are resolved by the experiment
// builder.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("%w: no database", ErrInvalidConfig)
	}
	if _, err := c.TemperatureK(); err != nil {
		return err
	}
	if _, err := c.PressurePa(); err != nil {
		return err
	}

	for _, a := range c.Amounts {
		if a.Species == "" {
			return fmt.Errorf("%w: amount without species", ErrInvalidConfig)
		}
		if !(a.Value >= 0) {
			return fmt.Errorf("%w: amount of %s must be non-negative, got %g", ErrInvalidConfig, a.Species, a.Value)
		}
		unit := a.unit()
		if !units.Convertible(unit, "mol") && !units.Convertible(unit, "kg") {
			return fmt.Errorf("%w: amount of %s: %w", ErrInvalidConfig, a.Species, unsupported(unit))
		}
	}

	for k, r := range c.Reactions {
		if err := r.validate(); err != nil {
			return fmt.Errorf("%w: reaction %d: %v", ErrInvalidConfig, k+1, err)
		}
	}

	t0, t1, dt, err := c.Time.Seconds()
	if err != nil {
		return err
	}
	if t1 < t0 {
		return fmt.Errorf("%w: time end %g precedes start %g", ErrInvalidConfig, t1, t0)
	}
	if dt < 0 {
		return fmt.Errorf("%w: negative time step %g", ErrInvalidConfig, dt)
	}

	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) TemperatureK() (float64, error) {
	return c.Temperature.In("kelvin")
}

func (c *Config) PressurePa() (float64, error) {
	return c.Pressure.In("pascal")
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Amounts = append([]Amount(nil), c.Amounts...)
	out.Outputs = append([]string(nil), c.Outputs...)
	out.Reactions = make([]ReactionConfig, len(c.Reactions))
	for k, r := range c.Reactions {
		params := make(map[string]float64, len(r.Params))
		for name, v := range r.Params {
			params[name] = v
		}
		r.Params = params
		out.Reactions[k] = r
	}
	return &out
}

// In converts q to unit.
// Fingerprint hashes the YAML form of the config. Configs that differ
// only in Name share a fingerprint.
func (c *Config) Fingerprint() (string, error) {
	anon := *c
	anon.Name = ""
	data, err := yaml.Marshal(&anon)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data)), nil
}

func (q Quantity) In(unit string) (float64, error) {
	v, err := units.Convert(q.Value, q.Unit, unit)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return v, nil
}

func (a Amount) unit() string {
	if a.Unit == "" {
		return "mol"
	}
	return a.Unit
}

// UnitOrDefault returns the amount unit, mol when unset.
func (a Amount) UnitOrDefault() string { return a.unit() }

// Seconds returns start, end and step in seconds.
func (ts TimeSpan) Seconds() (t0, t1, dt float64, err error) {
	unit := ts.Unit
	if unit == "" {
		unit = "s"
	}
	if !units.Convertible(unit, "s") {
		return 0, 0, 0, fmt.Errorf("%w: time: %w", ErrInvalidConfig, unsupported(unit))
	}
	t0 = units.MustConvert(ts.Start, unit, "s")
	t1 = units.MustConvert(ts.End, unit, "s")
	dt = units.MustConvert(ts.Step, unit, "s")
	return t0, t1, dt, nil
}

func (r ReactionConfig) validate() error {
	if r.Equation == "" {
		return errors.New("no equation")
	}
	var required []string
	switch r.Type {
	case MassAction:
		if _, ok := r.Params["kb"]; !ok {
			if _, ok := r.Params["log_k"]; !ok {
				return errors.New("mass action needs kb or log_k")
			}
		}
		required = []string{"kf"}
	case FirstOrder:
		required = []string{"k"}
	case Mineral:
		required = []string{"k", "area", "log_k"}
	default:
		return fmt.Errorf("unknown type %q", r.Type)
	}
	for _, name := range required {
		if _, ok := r.Params[name]; !ok {
			return fmt.Errorf("%s reaction needs parameter %s", r.Type, name)
		}
	}
	return nil
}

func unsupported(unit string) error {
	return fmt.Errorf("%w: %q", units.ErrUnsupportedUnits, unit)
}
