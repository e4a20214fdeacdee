package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/kinetics"
	"github.com/san-kum/reaksim/internal/metrics"
	"github.com/san-kum/reaksim/internal/state"
)

// ErrNotRecorded indicates an output query that was not part of the run.
var ErrNotRecorded = errors.New("experiment: output not recorded")

// Experiment is one configured run: a system, its initial state and a
// kinetic solver bound to them.
type Experiment struct {
	cfg       *config.Config
	system    *chem.System
	state     *state.ChemicalState
	initial   *state.ChemicalState
	reactions *kinetics.ReactionSystem
	solver    *kinetics.Solver
	metrics   []metrics.Metric
	collector *metrics.Collector
	logger    *slog.Logger

	t0, t1, dt float64
	t          float64
}

// Result is the recorded path of a run. Amounts[k] and Outputs[k] belong
// to Times[k]; the first entry is the initial state.
type Result struct {
	Species     []string
	Elements    []string
	OutputNames []string

	Times   []float64
	Amounts [][]float64
	Outputs [][]float64

	Steps int
	// Drift is the final minus the initial element amount, per element.
	Drift   []float64
	Metrics map[string]float64
}

// New builds an experiment from cfg. The config is validated, species
// names and equations are resolved against its database, and the
// equilibrium species are equilibrated when cfg.Equilibrate is set.
func New(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := LoadSystem(cfg.Database)
	if err != nil {
		return nil, err
	}

	st, err := NewState(sys, cfg)
	if err != nil {
		return nil, err
	}

	reactions := make([]kinetics.Reaction, 0, len(cfg.Reactions))
	for k, rc := range cfg.Reactions {
		r, err := BuildReaction(sys, rc)
		if err != nil {
			return nil, fmt.Errorf("reaction %d: %w", k+1, err)
		}
		reactions = append(reactions, r)
	}
	rs, err := kinetics.NewReactionSystem(sys, reactions...)
	if err != nil {
		return nil, err
	}

	solver := kinetics.NewSolver(rs)
	if err := solver.Configure(cfg.Solver); err != nil {
		return nil, err
	}
	if cfg.Partition != "" {
		if err := solver.SetPartitionString(cfg.Partition); err != nil {
			return nil, err
		}
	}

	if cfg.Equilibrate {
		if err := equilibrateInitial(st, solver.Partition().Equilibrium(), cfg.Solver.Equilibrium); err != nil {
			return nil, err
		}
	}

	for _, q := range cfg.Outputs {
		if _, err := state.Extract(st, q); err != nil {
			return nil, fmt.Errorf("output %q: %w", q, err)
		}
	}

	t0, t1, dt, err := cfg.Time.Seconds()
	if err != nil {
		return nil, err
	}

	ms := DefaultMetrics(cfg)
	for _, m := range ms {
		solver.AddObserver(kinetics.ObserverFunc(m.Observe))
	}

	return &Experiment{
		cfg:       cfg,
		system:    sys,
		state:     st,
		initial:   st.Clone(),
		reactions: rs,
		solver:    solver,
		metrics:   ms,
		logger:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
		t0:        t0,
		t1:        t1,
		dt:        dt,
		t:         t0,
	}, nil
}

// DefaultMetrics returns the metrics tracked for every run: element
// drift, Gibbs energy change and the relaxation time of each output.
func DefaultMetrics(cfg *config.Config) []metrics.Metric {
	ms := []metrics.Metric{metrics.NewElementDrift(), metrics.NewGibbsChange()}
	for _, q := range cfg.Outputs {
		ms = append(ms, metrics.NewRelaxation(q, 1e-3))
	}
	return ms
}

// LoadSystem resolves a builtin database name or a database file path.
func LoadSystem(database string) (*chem.System, error) {
	if slices.Contains(chem.ListBuiltin(), database) {
		return chem.Builtin(database)
	}
	return chem.LoadDatabase(database)
}

// NewState builds the initial state of cfg over sys.
func NewState(sys *chem.System, cfg *config.Config) (*state.ChemicalState, error) {
	st := state.New(sys)
	if err := st.SetTemperatureIn(cfg.Temperature.Value, cfg.Temperature.Unit); err != nil {
		return nil, err
	}
	if err := st.SetPressureIn(cfg.Pressure.Value, cfg.Pressure.Unit); err != nil {
		return nil, err
	}
	for _, a := range cfg.Amounts {
		if err := st.SetSpeciesAmountByNameIn(a.Species, a.Value, a.UnitOrDefault()); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func equilibrateInitial(st *state.ChemicalState, ieq []int, opts equilibrium.Options) error {
	if len(ieq) == 0 {
		return nil
	}
	eq, err := equilibrium.NewSolver(opts)
	if err != nil {
		return err
	}
	be, err := st.ElementAmountsInSpecies(ieq)
	if err != nil {
		return err
	}
	_, err = eq.Equilibrate(st, ieq, be)
	return err
}

func (e *Experiment) Config() *config.Config              { return e.cfg }
func (e *Experiment) System() *chem.System                { return e.system }
func (e *Experiment) State() *state.ChemicalState         { return e.state }
func (e *Experiment) Initial() *state.ChemicalState       { return e.initial }
func (e *Experiment) Solver() *kinetics.Solver            { return e.solver }
func (e *Experiment) Reactions() *kinetics.ReactionSystem { return e.reactions }
func (e *Experiment) Metrics() map[string]float64         { return metrics.Values(e.metrics) }

// Span returns the start time, end time and step cap in seconds.
func (e *Experiment) Span() (t0, t1, dt float64) { return e.t0, e.t1, e.dt }

// SetLogger sets the logger of the experiment and its solver.
func (e *Experiment) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	e.logger = l
	e.solver.SetLogger(l)
}

// SetCollector reports every finished Run to c. A nil c disables
// reporting.
func (e *Experiment) SetCollector(c *metrics.Collector) { e.collector = c }

// Begin binds the solver to the state at the start time.
func (e *Experiment) Begin() error {
	if err := e.solver.Initialize(e.state, e.t0); err != nil {
		return err
	}
	e.t = e.t0
	for _, m := range e.metrics {
		m.Reset()
		m.Observe(e.state, e.t)
	}
	return nil
}

// Reset restores the initial state and calls Begin.
func (e *Experiment) Reset() error {
	if err := e.state.CopyFrom(e.initial); err != nil {
		return err
	}
	return e.Begin()
}

// Advance takes one accepted step, capped at the configured step and
// never past the end time, and returns the new time.
func (e *Experiment) Advance() (float64, error) {
	if e.Done() {
		return e.t, nil
	}
	maxStep := e.t1 - e.t
	if e.dt > 0 {
		maxStep = math.Min(maxStep, e.dt)
	}
	next, err := e.solver.StepMax(e.state, e.t, maxStep)
	if err != nil {
		return e.t, err
	}
	if e.t1-next <= e.eps() {
		next = e.t1
	}
	e.t = next
	return next, nil
}

func (e *Experiment) Time() float64 { return e.t }
func (e *Experiment) Done() bool    { return e.t1-e.t <= e.eps() }

func (e *Experiment) eps() float64 {
	return 1e-12 * math.Max(1, math.Abs(e.t1))
}

// Run integrates from the start to the end time, recording every
// accepted step.
func (e *Experiment) Run(ctx context.Context) (result *Result, err error) {
	if err := e.Begin(); err != nil {
		return nil, err
	}
	if e.collector != nil {
		start := time.Now()
		defer func() {
			e.collector.ObserveRun(result.Steps, result.MaxDrift(), time.Since(start), err)
		}()
	}

	result = e.newResult()
	if err := e.record(result, e.t); err != nil {
		return result, err
	}

	for !e.Done() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		t, err := e.Advance()
		if err != nil {
			e.logger.Error("run aborted", "t", t, "err", err)
			return result, err
		}
		result.Steps++
		if err := e.record(result, t); err != nil {
			return result, err
		}
	}

	result.Drift = e.Drift()
	result.Metrics = metrics.Values(e.metrics)
	e.logger.Info("run finished", "name", e.cfg.Name, "steps", result.Steps, "t", e.t)
	return result, nil
}

// Drift returns the current minus the initial element amounts.
func (e *Experiment) Drift() []float64 {
	b0 := e.initial.ElementAmounts()
	b := e.state.ElementAmounts()
	for j := range b {
		b[j] -= b0[j]
	}
	return b
}

func (e *Experiment) newResult() *Result {
	return &Result{
		Species:     e.system.SpeciesNames(),
		Elements:    e.system.ElementNames(),
		OutputNames: slices.Clone(e.cfg.Outputs),
	}
}

func (e *Experiment) record(r *Result, t float64) error {
	row := make([]float64, len(r.OutputNames))
	for k, q := range r.OutputNames {
		v, err := state.Extract(e.state, q)
		if err != nil {
			return fmt.Errorf("output %q at t=%g: %w", q, t, err)
		}
		row[k] = v
	}
	r.Times = append(r.Times, t)
	r.Amounts = append(r.Amounts, e.state.SpeciesAmounts())
	r.Outputs = append(r.Outputs, row)
	return nil
}

// Series returns the recorded amount of a species over time.
func (r *Result) Series(species string) ([]float64, error) {
	i := slices.Index(r.Species, species)
	if i < 0 {
		return nil, fmt.Errorf("%w: species %q", chem.ErrUnknownName, species)
	}
	out := make([]float64, len(r.Amounts))
	for k, n := range r.Amounts {
		out[k] = n[i]
	}
	return out, nil
}

// OutputSeries returns a recorded output over time.
func (r *Result) OutputSeries(query string) ([]float64, error) {
	i := slices.Index(r.OutputNames, query)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotRecorded, query)
	}
	out := make([]float64, len(r.Outputs))
	for k, row := range r.Outputs {
		out[k] = row[i]
	}
	return out, nil
}

// MaxDrift is the largest absolute element drift.
func (r *Result) MaxDrift() float64 {
	m := 0.0
	for _, d := range r.Drift {
		m = math.Max(m, math.Abs(d))
	}
	return m
}
