package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/battherm/battherm/internal/config"
	"github.com/battherm/battherm/internal/logging"
	"github.com/battherm/battherm/internal/optim"
	"github.com/battherm/battherm/internal/report"
	"github.com/battherm/battherm/internal/sim"
	"github.com/battherm/battherm/internal/storage"
	"github.com/battherm/battherm/internal/viz"
)

var (
	dataDir     string
	verbose     bool
	configFile  string
	preset      string
	current     float64
	steps       int
	dt          float64
	coolingVar  string
	controller  string
	electrochem bool
	reportPath  string
	outPath     string
	// optimize flags
	method      string
	generations int
	population  int
	seed        int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "battherm",
		Short:         "battery pack thermal simulation and cooling control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".battherm", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one simulation",
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&reportPath, "report", "", "write HTML report to this path")

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

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run history to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVar(&outPath, "out", "", "output path (default <run_id>.csv)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation with a live terminal view",
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [param=min:max:count ...]",
		Short: "run a parallel parameter sweep",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)

	optimizeCmd := &cobra.Command{
		Use:   "optimize [param=min:max ...]",
		Short: "search parameters minimizing cooling energy under the safety limit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOptimize,
	}
	addRunFlags(optimizeCmd)
	optimizeCmd.Flags().StringVar(&method, "method", "ga", "search method: ga or grid")
	optimizeCmd.Flags().IntVar(&generations, "generations", 20, "ga generations")
	optimizeCmd.Flags().IntVar(&population, "population", 30, "ga population")
	optimizeCmd.Flags().Int64Var(&seed, "seed", 1, "ga random seed")

	reportCmd := &cobra.Command{
		Use:   "report [run_id]",
		Short: "write an HTML report for a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  reportRun,
	}
	reportCmd.Flags().StringVar(&outPath, "out", "", "output path (default <run_id>.html)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, liveCmd, sweepCmd, optimizeCmd, reportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset configuration name")
	cmd.Flags().Float64Var(&current, "current", -5.0, "applied current, A (negative discharges)")
	cmd.Flags().IntVar(&steps, "steps", 20, "number of timesteps")
	cmd.Flags().Float64Var(&dt, "dt", 1.0, "timestep, s")
	cmd.Flags().StringVar(&coolingVar, "cooling", "passive", "cooling variant: passive, liquid or pcm")
	cmd.Flags().StringVar(&controller, "controller", "", "controller: none or mpc")
	cmd.Flags().BoolVar(&electrochem, "electrochem", false, "use the electrochemical heat source")
}

// loadConfig resolves preset, config file and flags, in increasing
// precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("current") {
		cfg.Current = current
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = steps
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("cooling") {
		cfg.Cooling.Variant = coolingVar
	}
	if cmd.Flags().Changed("controller") {
		cfg.Control.Controller = controller
	}
	if cmd.Flags().Changed("electrochem") {
		cfg.Electrochem.Enabled = electrochem
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	loop, err := sim.Build(cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("running %s cooling, %d zones, %d steps...\n", cfg.Cooling.Variant, cfg.Zones, cfg.Steps)
	start := time.Now()
	result, err := loop.Run(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	dir := dataDir
	if f := cmd.Flag("data"); f != nil && !f.Changed && cfg.Output.DataDir != "" {
		dir = cfg.Output.DataDir
	}
	st := storage.New(dir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg.Cooling.Variant, cfg.Control.Controller, cfg.Zones, cfg.Dt, cfg.Current, cfg.Safety.TMax, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", len(result.History))
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6f\n", name, val)
	}
	if result.Warnings.Any() {
		w := result.Warnings
		fmt.Printf("\nwarnings: %d generation fallbacks, %d safety events, %d dt adjustments\n",
			w.GenFallbacks, w.SafetyEvents, w.DtAdjustments)
	}

	if reportPath == "" {
		reportPath = cfg.Output.Report
	}
	if reportPath != "" {
		if err := report.Write(reportPath, cfg.Cooling.Variant, cfg.Control.Controller, cfg.Dt, cfg.Current, cfg.Safety.TMax, result); err != nil {
			return err
		}
		fmt.Printf("report: %s\n", reportPath)
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
		fmt.Println("no runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOOLING\tCONTROLLER\tSTEPS\tMAX TEMP\tWHEN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n",
			run.ID, run.Cooling, run.Controller, run.Steps,
			run.Metrics["max_temp"], run.Timestamp.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	fmt.Print(viz.PlotHistory(history, meta.TMax))
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	path := outPath
	if path == "" {
		path = args[0] + ".csv"
	}
	if err := storage.WriteHistoryCSV(path, meta.Zones, history); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d rows)\n", path, len(history))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	result := &sim.Result{History: history, Metrics: meta.Metrics, Warnings: meta.Warnings}
	return storage.ExportJSON(os.Stdout, meta.Cooling, meta.Controller, meta.Zones, meta.Dt, meta.Current, result)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	loop, err := sim.Build(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	return viz.RunLive(loop, cfg.Cooling.Variant, cfg.Safety.TMax)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	names := make([]string, 0, len(args))
	values := make([][]float64, 0, len(args))
	for _, arg := range args {
		name, vals, err := parseSweepArg(arg)
		if err != nil {
			return err
		}
		names = append(names, name)
		values = append(values, vals)
	}

	assignments := sim.GridAssignments(names, values)
	fmt.Printf("sweeping %d points over %v...\n", len(assignments), names)
	start := time.Now()
	points, err := sim.Sweep(context.Background(), cfg, assignments, log)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := strings.Join(names, "\t")
	fmt.Fprintf(w, "%s\tFITNESS\tMAX TEMP\tCOOLING ENERGY\n", strings.ToUpper(header))
	for _, pt := range points {
		for _, name := range names {
			fmt.Fprintf(w, "%g\t", pt.Params[name])
		}
		if pt.Err != nil {
			fmt.Fprintf(w, "failed: %v\t\t\n", pt.Err)
			continue
		}
		fmt.Fprintf(w, "%.4g\t%.2f\t%.4g\n", pt.Fitness, pt.Metrics["max_temp"], pt.Metrics["cooling_energy"])
	}
	return w.Flush()
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bounds := make([]optim.Bound, 0, len(args))
	for _, arg := range args {
		b, err := parseBoundArg(arg)
		if err != nil {
			return err
		}
		bounds = append(bounds, b)
	}

	objective := func(ctx context.Context, params map[string]float64) (float64, error) {
		c := cfg.Clone()
		for name, val := range params {
			if err := c.Set(name, val); err != nil {
				return 0, err
			}
		}
		fitness, _, err := sim.Evaluate(ctx, c, zap.NewNop())
		return fitness, err
	}

	var best map[string]float64
	var fitness float64
	start := time.Now()
	switch method {
	case "ga":
		ga, err := optim.NewGenetic(optim.GAConfig{
			Population:  population,
			Generations: generations,
			Seed:        seed,
		}, bounds)
		if err != nil {
			return err
		}
		best, fitness, err = ga.Run(context.Background(), objective)
		if err != nil {
			return err
		}
	case "grid":
		names := make([]string, len(bounds))
		ranges := make([][]float64, len(bounds))
		for i, b := range bounds {
			names[i] = b.Name
			ranges[i] = gridRange(b.Min, b.Max, 10)
		}
		gs := optim.NewGridSearch(names, ranges)
		var err error
		best, fitness, err = gs.Search(context.Background(), objective)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown method: %s (want ga or grid)", method)
	}

	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("best fitness: %.6g\n", fitness)
	for name, val := range best {
		fmt.Printf("  %s: %.6g\n", name, val)
	}
	return nil
}

func reportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	history, err := st.LoadHistory(args[0])
	if err != nil {
		return err
	}
	path := outPath
	if path == "" {
		path = args[0] + ".html"
	}
	result := &sim.Result{History: history, Metrics: meta.Metrics, Warnings: meta.Warnings}
	if err := report.Write(path, meta.Cooling, meta.Controller, meta.Dt, meta.Current, meta.TMax, result); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// parseSweepArg parses "name=min:max:count".
func parseSweepArg(arg string) (string, []float64, error) {
	name, spec, ok := strings.Cut(arg, "=")
	if !ok {
		return "", nil, fmt.Errorf("bad sweep argument %q, want name=min:max:count", arg)
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("bad sweep argument %q, want name=min:max:count", arg)
	}
	min, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", nil, err
	}
	max, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", nil, err
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", nil, err
	}
	if count < 1 {
		return "", nil, fmt.Errorf("sweep count must be >= 1, got %d", count)
	}
	return name, gridRange(min, max, count), nil
}

// parseBoundArg parses "name=min:max".
func parseBoundArg(arg string) (optim.Bound, error) {
	name, spec, ok := strings.Cut(arg, "=")
	if !ok {
		return optim.Bound{}, fmt.Errorf("bad bound %q, want name=min:max", arg)
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return optim.Bound{}, fmt.Errorf("bad bound %q, want name=min:max", arg)
	}
	min, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return optim.Bound{}, err
	}
	max, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return optim.Bound{}, err
	}
	return optim.Bound{Name: name, Min: min, Max: max}, nil
}

func gridRange(min, max float64, count int) []float64 {
	if count == 1 {
		return []float64{min}
	}
	vals := make([]float64, count)
	step := (max - min) / float64(count-1)
	for i := range vals {
		vals[i] = min + float64(i)*step
	}
	return vals
}
