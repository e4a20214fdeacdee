package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/reaksim/internal/chem"
	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/equilibrium"
	"github.com/san-kum/reaksim/internal/experiment"
	"github.com/san-kum/reaksim/internal/metrics"
	"github.com/san-kum/reaksim/internal/state"
	"github.com/san-kum/reaksim/internal/storage"
	"github.com/san-kum/reaksim/internal/tui"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	duration   float64
	step       float64
	maxStep    float64
	method     string
	save       bool
	jsonOut    bool
	noPlot     bool
	initial    bool
	workers    int
	reaction   int
	param      string
	values     []float64
	svgFile    string
	promAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "reaksim",
		Short:         "partitioned equilibrium and kinetic reaction modelling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunInteractive()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".reaksim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [database/preset]",
		Short: "run a kinetic simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", false, "store the run under the data directory")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "write the run as JSON to stdout")
	runCmd.Flags().BoolVar(&noPlot, "no-plot", false, "skip the ascii plots")

	showCmd := &cobra.Command{
		Use:   "show [database/preset]",
		Short: "show the initial state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showState,
	}
	showCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")

	equilibrateCmd := &cobra.Command{
		Use:   "equilibrate [database/preset]",
		Short: "equilibrate every species of the initial state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  equilibrateState,
	}
	equilibrateCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")

	extractCmd := &cobra.Command{
		Use:   "extract [database/preset] [query...]",
		Short: "evaluate queries such as pH or m[CO2(aq)] on the final state",
		Args:  cobra.MinimumNArgs(1),
		RunE:  extractQueries,
	}
	addRunFlags(extractCmd)
	extractCmd.Flags().BoolVar(&initial, "initial", false, "evaluate on the initial state instead")

	liveCmd := &cobra.Command{
		Use:   "live [database/preset]",
		Short: "run a simulation in the live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [database/preset]",
		Short: "run a preset over a range of one rate parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&reaction, "reaction", 0, "reaction index")
	sweepCmd.Flags().StringVar(&param, "param", "kf", "rate parameter name")
	sweepCmd.Flags().Float64SliceVar(&values, "values", nil, "parameter values")
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (0 = GOMAXPROCS)")
	sweepCmd.Flags().StringVar(&promAddr, "metrics-addr", "", "serve prometheus metrics on this address during the sweep")

	presetsCmd := &cobra.Command{
		Use:   "presets [database]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	databasesCmd := &cobra.Command{
		Use:   "databases",
		Short: "list built-in databases and their species",
		RunE:  listDatabases,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "write the plot to an svg file instead")

	rootCmd.AddCommand(runCmd, showCmd, equilibrateCmd, extractCmd, liveCmd, sweepCmd, presetsCmd, databasesCmd, listCmd, plotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.TimeOnly,
	})))
	return nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().Float64Var(&duration, "time", 0, "end time in the configured time unit")
	cmd.Flags().Float64Var(&step, "step", 0, "output step in the configured time unit")
	cmd.Flags().Float64Var(&maxStep, "max-step", 0, "largest integrator step [s]")
	cmd.Flags().StringVar(&method, "method", "", "integration method (dopri5, rk4, euler)")
}

// resolveConfig loads --config when given, otherwise the database/preset
// argument, and applies flag overrides on top.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case len(args) > 0:
		database, name, ok := strings.Cut(args[0], "/")
		if !ok {
			return nil, fmt.Errorf("expected database/preset, got %q", args[0])
		}
		cfg = config.GetPreset(database, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets(database))
		}
	default:
		return nil, fmt.Errorf("either a database/preset argument or --config is required")
	}

	flags := cmd.Flags()
	if flags.Lookup("time") != nil && flags.Changed("time") {
		cfg.Time.End = duration
	}
	if flags.Lookup("step") != nil && flags.Changed("step") {
		cfg.Time.Step = step
	}
	if flags.Lookup("max-step") != nil && flags.Changed("max-step") {
		cfg.Solver.MaxStep = maxStep
	}
	if flags.Lookup("method") != nil && flags.Changed("method") {
		cfg.Solver.Method = method
	}
	return cfg, nil
}

func newExperiment(cmd *cobra.Command, args []string) (*config.Config, *experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	exp.SetLogger(slog.Default())
	return cfg, exp, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !jsonOut {
		fmt.Printf("running %s (%s)...\n", cfg.Name, exp.Solver().Partition().Describe(exp.System()))
	}
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if jsonOut {
		return storage.ExportJSON(os.Stdout, cfg, result)
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", result.Steps)
	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(cfg, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	fmt.Println("\nfinal state:")
	if err := exp.State().WriteTable(os.Stdout); err != nil {
		return err
	}

	fmt.Println("\nelement drift:")
	for j, d := range result.Drift {
		fmt.Printf("  %s: %.3e\n", result.Elements[j], d)
	}

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}

	if len(cfg.Outputs) > 0 {
		fmt.Println("\noutputs:")
		last := result.Outputs[len(result.Outputs)-1]
		for k, q := range result.OutputNames {
			fmt.Printf("  %s: %.6g\n", q, last[k])
		}
	}

	if noPlot || len(result.Times) < 2 {
		return nil
	}
	for _, i := range exp.Solver().Partition().Kinetic() {
		name := exp.System().Species(i).Name
		series, err := result.Series(name)
		if err != nil {
			return err
		}
		plot(series, fmt.Sprintf("n[%s] [mol]", name))
	}
	for _, q := range result.OutputNames {
		series, err := result.OutputSeries(q)
		if err != nil {
			return err
		}
		plot(series, q)
	}
	return nil
}

func plot(data []float64, caption string) {
	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println()
	fmt.Println(graph)
}

func showState(cmd *cobra.Command, args []string) error {
	cfg, exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", cfg.Name)
	fmt.Printf("partition: %s\n\n", exp.Solver().Partition().Describe(exp.System()))
	return exp.Initial().WriteTable(os.Stdout)
}

func equilibrateState(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	sys, err := experiment.LoadSystem(cfg.Database)
	if err != nil {
		return err
	}
	st, err := experiment.NewState(sys, cfg)
	if err != nil {
		return err
	}
	solver, err := equilibrium.NewSolver(cfg.Solver.Equilibrium)
	if err != nil {
		return err
	}
	res, err := solver.EquilibrateAll(st)
	if err != nil {
		return err
	}
	fmt.Printf("converged in %d iterations (residual %.3e)\n\n", res.Iterations, res.Residual)
	return st.WriteTable(os.Stdout)
}

func extractQueries(cmd *cobra.Command, args []string) error {
	presetArgs, queries := args[:1], args[1:]
	if configFile != "" {
		presetArgs, queries = nil, args
	}
	_, exp, err := newExperiment(cmd, presetArgs)
	if err != nil {
		return err
	}

	st := exp.Initial()
	if !initial {
		if _, err := exp.Run(cmd.Context()); err != nil {
			return err
		}
		st = exp.State()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUERY\tVALUE")
	for _, q := range queries {
		v, err := state.Extract(st, q)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.6g\n", q, v)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, exp, err := newExperiment(cmd, args)
	if err != nil {
		return err
	}
	// slog output would tear the alt screen
	exp.SetLogger(nil)
	title := cfg.Name
	if len(args) > 0 {
		title = args[0]
	}
	return tui.RunLive(exp, title)
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("--values is required")
	}
	if reaction < 0 || reaction >= len(base.Reactions) {
		return fmt.Errorf("reaction index %d out of range [0, %d)", reaction, len(base.Reactions))
	}

	cfgs := experiment.Sweep(base, values, func(c *config.Config, v float64) {
		if c.Reactions[reaction].Params == nil {
			c.Reactions[reaction].Params = map[string]float64{}
		}
		c.Reactions[reaction].Params[param] = v
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := experiment.BatchOptions{Workers: workers, Logger: slog.Default()}
	if promAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Collector = metrics.NewCollector(reg, "")
		srv := serveMetrics(promAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	start := time.Now()
	results, err := experiment.RunBatch(ctx, cfgs, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%d runs completed in %v\n\n", len(results), time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := []string{strings.ToUpper(param), "STEPS", "MAX DRIFT"}
	header = append(header, base.Outputs...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for i, res := range results {
		row := []string{fmt.Sprintf("%g", values[i]), fmt.Sprintf("%d", res.Steps), fmt.Sprintf("%.2e", res.MaxDrift())}
		last := res.Outputs[len(res.Outputs)-1]
		for _, v := range last {
			row = append(row, fmt.Sprintf("%.6g", v))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "err", err)
		}
	}()
	return srv
}

func listPresets(cmd *cobra.Command, args []string) error {
	databases := config.ListDatabases()
	if len(args) > 0 {
		databases = args
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tNAME\tPARTITION")
	for _, db := range databases {
		names := config.ListPresets(db)
		if len(names) == 0 {
			return fmt.Errorf("no presets for database: %s", db)
		}
		for _, name := range names {
			cfg := config.GetPreset(db, name)
			fmt.Fprintf(w, "%s/%s\t%s\t%s\n", db, name, cfg.Name, cfg.Partition)
		}
	}
	return w.Flush()
}

func listDatabases(cmd *cobra.Command, args []string) error {
	for _, name := range chem.ListBuiltin() {
		sys, err := chem.Builtin(name)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", name)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for ip := 0; ip < sys.NumPhases(); ip++ {
			phase := sys.Phase(ip)
			start, count := sys.SpeciesRange(ip)
			names := sys.SpeciesNames()[start : start+count]
			fmt.Fprintf(w, "  %s\t%s\t%s\n", phase.Name, phase.Kind, strings.Join(names, " "))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONFIG\tNAME\tDATABASE\tTIME\tEND\tSTEPS\tMETHOD")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%.8s\t%s\t%s\t%s\t%gs\t%d\t%s\n",
			run.ID,
			run.Fingerprint,
			run.Name,
			run.Database,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.End,
			run.Steps,
			run.Method,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	header, rows, err := st.LoadPath(runID)
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return fmt.Errorf("no data to plot")
	}

	const maxPlots = 8
	if svgFile != "" {
		columns := make([]int, 0, maxPlots)
		for col := 1; col < len(header) && col <= maxPlots; col++ {
			columns = append(columns, col)
		}
		f, err := os.Create(svgFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := storage.WriteSVG(f, header, rows, columns, 800, 400); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgFile)
		return f.Close()
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("database: %s\n", meta.Database)
	fmt.Printf("samples: %d\n", len(rows))

	for col := 1; col < len(header) && col <= maxPlots; col++ {
		data := make([]float64, len(rows))
		for i, row := range rows {
			data[i] = row[col]
		}
		plot(data, header[col])
	}
	return nil
}
