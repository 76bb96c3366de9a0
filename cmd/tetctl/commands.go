package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"tetmeter/internal/codec"
	"tetmeter/internal/config"
	"tetmeter/internal/corpus"
	"tetmeter/internal/health"
	"tetmeter/internal/logging"
	"tetmeter/internal/metrics"
	"tetmeter/internal/store"
	"tetmeter/internal/tet"
	"tetmeter/internal/trial"
	"tetmeter/internal/watcher"
)

func cmdCalc(args []string) error {
	fs := flag.NewFlagSet("calc", flag.ExitOnError)
	presented := fs.String("p", "", "presented string")
	transcribed := fs.String("t", "", "transcribed string")
	seconds := fs.Float64("s", 0, "entry time in seconds")
	dist := fs.String("dist", "", "reference distribution")
	verbose := fs.Bool("v", false, "print the full breakdown")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, _, err := resolveDistribution(cfg, *dist)
	if err != nil {
		return err
	}

	m, err := measure(d, *presented, *transcribed, *seconds)
	if err != nil {
		fmt.Println("undefined")
		return &exitError{code: 2, err: err}
	}

	if *verbose {
		printMeasurement(os.Stdout, m)
	}
	fmt.Printf("%.4f bits/s\n", m.Throughput)
	return nil
}

func measure(d *tet.Distribution[rune], presented, transcribed string, seconds float64) (*tet.Measurement[rune], error) {
	elapsed, err := tet.ParseSeconds(seconds)
	if err != nil {
		return nil, err
	}
	return tet.MeasureText(tet.NewCalculator(d), presented, transcribed, elapsed)
}

func printMeasurement(w io.Writer, m *tet.Measurement[rune]) {
	fmt.Fprintln(w, m.Alignment)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "distance\t%d\n", m.Alignment.Distance())
	fmt.Fprintf(tw, "aligned length\t%d\n", m.Alignment.Len())
	fmt.Fprintf(tw, "p(I) insertion\t%.4f\n", m.Rates.Insertion)
	fmt.Fprintf(tw, "p(O) omission\t%.4f\n", m.Rates.Omission)
	fmt.Fprintf(tw, "p(S) substitution\t%.4f\n", m.Rates.Substitution)
	fmt.Fprintf(tw, "p(C) correct\t%.4f\n", m.Rates.Correct)
	fmt.Fprintf(tw, "H(X)\t%.4f bits\n", m.SourceEntropy)
	fmt.Fprintf(tw, "H_Y(X)\t%.4f bits\n", m.ConditionalEntropy)
	fmt.Fprintf(tw, "I(X;Y)\t%.4f bits/char\n", m.MutualInformation)
	fmt.Fprintf(tw, "speed\t%.4f chars/s\n", m.SymbolsPerSecond)
	tw.Flush()
}

func cmdAlign(args []string) error {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	limit := fs.Int("max", 10, "maximum number of optimal alignments to list")
	all := fs.Bool("all", false, "list every optimal alignment up to -max")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return errors.New("usage: tetctl align [-max N] [-all] <presented> <transcribed>")
	}
	p, t := []rune(fs.Arg(0)), []rune(fs.Arg(1))
	if *limit < 1 {
		*limit = 1
	}

	a := tet.Align(p, t)
	fmt.Println(a)
	fmt.Printf("distance: %d\n", a.Distance())

	count := 0
	n := tet.Enumerate(p, t, func(alt *tet.Alignment[rune]) bool {
		count++
		if *all {
			fmt.Printf("\n#%d\n%s\n", count, alt)
		}
		return count < *limit
	})
	if *all {
		fmt.Println()
	}
	if n >= *limit {
		fmt.Printf("optimal alignments: %d or more\n", n)
	} else {
		fmt.Printf("optimal alignments: %d\n", n)
	}
	return nil
}

func cmdFreq(args []string) error {
	fs := flag.NewFlagSet("freq", flag.ExitOnError)
	output := fs.String("o", "", "write the table to a .json, .yaml or .toml file")
	counts := fs.Bool("counts", false, "write raw counts instead of probabilities")
	save := fs.String("save", "", "store the distribution under this name")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	paths := fs.Args()
	if len(paths) == 0 {
		paths = cfg.Corpus.Paths
	}
	if len(paths) == 0 {
		return errors.New("usage: tetctl freq [-o file] [-counts] [-save name] <path>...")
	}

	table, err := corpus.CountFiles(paths, cfg.Corpus.Extensions, corpusOptions(cfg))
	if err != nil {
		return err
	}
	d, err := tet.NewDistribution(table)
	if err != nil {
		return err
	}
	logger.Info("corpus counted", "paths", len(paths), "symbols", table.Len(), "total", table.Total())

	switch {
	case *output != "" && *counts:
		err = codec.SaveFrequencyFile(*output, table)
	case *output != "":
		err = codec.SaveDistributionFile(*output, d)
	default:
		err = codec.EncodeDistribution(os.Stdout, d, codec.FormatYAML)
	}
	if err != nil {
		return err
	}

	if *save != "" {
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.SaveDistribution(*save, d); err != nil {
			return err
		}
		logger.Info("distribution stored", "name", *save)
	}

	fmt.Fprintf(os.Stderr, "%d symbols, %d characters, H(X) = %.4f bits\n", table.Len(), table.Total(), d.Entropy())
	return nil
}

func cmdEntropy(args []string) error {
	fs := flag.NewFlagSet("entropy", flag.ExitOnError)
	dist := fs.String("dist", "", "reference distribution")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, name, err := resolveDistribution(cfg, *dist)
	if err != nil {
		return err
	}
	fmt.Printf("%s: H(X) = %.6f bits over %d symbols\n", name, d.Entropy(), d.Len())
	return nil
}

func newEvaluator(cfg *config.Config, dist string, logger *logging.Logger, m *metrics.EvaluationMetrics) (*trial.Evaluator, string, error) {
	d, name, err := resolveDistribution(cfg, dist)
	if err != nil {
		return nil, "", err
	}
	e := trial.NewEvaluator(tet.NewCalculator(d), trial.EvaluatorConfig{
		Workers:    cfg.Evaluation.Workers,
		MaxSymbols: cfg.Evaluation.MaxSymbols,
		Logger:     logger,
		Metrics:    m,
	})
	return e, name, nil
}

func cmdEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	dist := fs.String("dist", "", "reference distribution")
	save := fs.Bool("store", false, "store results in the database")
	workers := fs.Int("workers", -1, "concurrent trials (default from config)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("usage: tetctl eval [-dist src] [-store] [-workers N] <session>...")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *workers >= 0 {
		cfg.Evaluation.Workers = *workers
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	e, distName, err := newEvaluator(cfg, *dist, logger, nil)
	if err != nil {
		return err
	}

	var s *store.Store
	if *save {
		if s, err = openStore(cfg); err != nil {
			return err
		}
		defer s.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var all []trial.Result
	for _, path := range fs.Args() {
		session, err := trial.LoadFile(path, cfg.Evaluation.ValidateSchema)
		if err != nil {
			return err
		}
		results, err := e.Evaluate(ctx, session)
		if err != nil {
			return err
		}

		fmt.Printf("== %s (%s)\n", sessionName(session, path), distName)
		printResults(os.Stdout, results)
		fmt.Println()

		if s != nil {
			if err := storeResults(s, sessionName(session, path), distName, results, logger); err != nil {
				return err
			}
		}
		all = append(all, results...)
	}

	printSummary(os.Stdout, trial.Summarize(all))
	return nil
}

func sessionName(s *trial.Session, path string) string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(path)
}

func storeResults(s *store.Store, session, distName string, results []trial.Result, logger *logging.Logger) error {
	inserted := 0
	for i := range results {
		_, isNew, err := s.InsertResult(results[i].Record(session, distName))
		if err != nil {
			return err
		}
		if isNew {
			inserted++
		}
	}
	logger.Info("results stored", "session", session, "new", inserted, "duplicates", len(results)-inserted)
	return nil
}

func printResults(w io.Writer, results []trial.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tMETHOD\tMSD\tERROR%\tI(X;Y)\tTHROUGHPUT")
	for i := range results {
		r := &results[i]
		id := r.Trial.ID
		if id == "" {
			id = fmt.Sprintf("#%d", r.Index+1)
		}
		if !r.Defined() {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\tundefined (%v)\n", id, r.Trial.Method, r.Err)
			continue
		}
		m := r.Measurement
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.4f\t%.4f bits/s\n",
			id, r.Trial.Method, m.Alignment.Distance(), 100*(1-m.Rates.Correct), m.MutualInformation, m.Throughput)
	}
	tw.Flush()
}

func printSummary(w io.Writer, summaries []trial.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tTRIALS\tUNDEFINED\tMEAN I(X;Y)\tMEAN THROUGHPUT")
	for _, s := range summaries {
		method := s.Method
		if method == "" {
			method = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.4f bits/s\n",
			method, s.Trials, s.Undefined, s.MeanMutualInformation, s.MeanThroughput)
	}
	tw.Flush()
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dist := fs.String("dist", "", "reference distribution")
	metricsAddr := fs.String("metrics", "", "serve metrics on this address (e.g. localhost:9090)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.Watch.MetricsAddr = *metricsAddr
	}
	paths := fs.Args()
	if len(paths) == 0 {
		paths = cfg.Watch.Paths
	}
	if len(paths) == 0 {
		return errors.New("usage: tetctl watch [-dist src] [-metrics addr] <dir>...")
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger = logger.WithComponent("watch")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var m *metrics.EvaluationMetrics
	checker := health.NewChecker()
	if cfg.Watch.MetricsAddr != "" {
		m = metrics.NewEvaluationMetrics(metrics.Default())
		checker.RegisterFunc("database", true, health.DatabaseCheck(s.DB().PingContext))
		for _, p := range paths {
			checker.RegisterFunc("watch:"+p, false, health.DirectoryCheck(p))
		}
		srv := serveStatus(cfg.Watch.MetricsAddr, m.Registry(), checker, logger)
		defer srv.Close()
	}

	e, distName, err := newEvaluator(cfg, *dist, logger, m)
	if err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{
		Paths:      paths,
		Extensions: cfg.Watch.Extensions,
		Debounce:   time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		return err
	}
	checker.SetReady(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching for sessions", "paths", paths, "distribution", distName)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := evaluateFile(ctx, e, s, distName, ev, cfg.Evaluation.ValidateSchema, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Error("session failed", "path", ev.Path, "error", err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func statusMux(registry *metrics.Registry, checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	mux.Handle("/livez", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/healthz", checker.HealthHandler())
	return mux
}

// serveStatus exposes metrics and health probes on addr.
func serveStatus(addr string, registry *metrics.Registry, checker *health.Checker, logger *logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           statusMux(registry, checker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving status endpoint", "addr", addr)
	return srv
}

func evaluateFile(ctx context.Context, e *trial.Evaluator, s *store.Store, distName string, ev watcher.Event, validate bool, logger *logging.Logger) error {
	ctx = logging.ContextWithRequestID(ctx, logger.NewRequestID())
	logger = logger.WithContext(ctx)
	logger.Debug("session file changed", "path", ev.Path, "size", ev.Size)

	session, err := trial.LoadFile(ev.Path, validate)
	if err != nil {
		return err
	}
	results, err := e.Evaluate(ctx, session)
	if err != nil {
		return err
	}
	name := sessionName(session, ev.Path)
	if err := storeResults(s, name, distName, results, logger); err != nil {
		return err
	}
	for _, sum := range trial.Summarize(results) {
		logger.Info("session summary",
			"session", name,
			"method", sum.Method,
			"trials", sum.Trials,
			"undefined", sum.Undefined,
			"mean_throughput", sum.MeanThroughput,
		)
	}
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of results to show")
	method := fs.String("method", "", "only show results for this entry method")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var records []*store.ResultRecord
	if *method != "" {
		records, err = s.ResultsByMethod(*method)
	} else {
		records, err = s.ListResults(*limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No results stored.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSESSION\tTRIAL\tMETHOD\tDIST\tTHROUGHPUT")
	for _, r := range records {
		tp := "undefined"
		if r.Defined {
			tp = fmt.Sprintf("%.4f bits/s", r.Throughput)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, time.Unix(0, r.CreatedAt).Format(time.DateTime), r.Session, r.TrialID, r.Method, r.Distribution, tp)
	}
	return tw.Flush()
}

func cmdDistributions(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	infos, err := s.ListDistributions()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No distributions stored.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSYMBOLS\tH(X)\tCREATED")
	for _, d := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%s\n", d.Name, d.Symbols, d.Entropy, time.Unix(0, d.CreatedAt).Format(time.DateTime))
	}
	return tw.Flush()
}

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: tetctl config init|show|validate")
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	switch args[0] {
	case "init":
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %s\n", path)
		} else {
			fmt.Printf("Config already exists at %s\n", path)
		}
		return nil

	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		return config.Encode(os.Stdout, cfg, filepath.Ext(path))

	case "validate":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, v := range verrs {
					level := "error"
					if v.IsWarning() {
						level = "warning"
					}
					fmt.Printf("%s: %s: %s\n", level, v.Field, v.Message)
				}
				if !verrs.HasErrors() {
					return nil
				}
			}
			return &exitError{code: 1, err: errors.New("configuration is invalid")}
		}
		fmt.Println("Configuration is valid.")
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}
