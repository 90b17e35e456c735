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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/dishlink-simulator/core"
	"github.com/signalsfoundry/dishlink-simulator/internal/config"
	"github.com/signalsfoundry/dishlink-simulator/internal/logging"
	"github.com/signalsfoundry/dishlink-simulator/internal/observability"
	"github.com/signalsfoundry/dishlink-simulator/internal/session"
	"github.com/signalsfoundry/dishlink-simulator/kb"
	"github.com/signalsfoundry/dishlink-simulator/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML scenario (built-in rooftop pair when empty)")
	duration := fs.Duration("duration", 0, "override the scenario duration")
	tick := fs.Duration("tick", 0, "override the sample interval")
	realTime := fs.Bool("realtime", false, "pace ticks on the wall clock")
	metricsAddr := fs.String("metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *duration > 0 {
		cfg.Simulation.DurationSec = duration.Seconds()
	}
	if *tick > 0 {
		cfg.Simulation.TickMillis = int(tick.Milliseconds())
	}
	if *realTime {
		cfg.Simulation.Accelerated = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	base := logging.NewFromEnv(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx, _ = logging.WithSessionLogger(ctx, base)
	log := logging.LoggerFromContext(ctx)

	tracing := observability.DefaultTracingConfig()
	tracing.Enabled = cfg.Tracing.Enabled
	tracing.Exporter = cfg.Tracing.Exporter
	tracing.Endpoint = cfg.Tracing.Endpoint
	tracing.Path = cfg.Tracing.Path
	tracing.SampleRatio = cfg.Tracing.SampleRatio
	shutdownTracing, err := observability.InitTracing(ctx, tracing.WithEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewAlignmentCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if metricsSrv := serveMetrics(*metricsAddr, collector, log); metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	registry := kb.NewDishRegistry()
	for _, d := range cfg.Dishes() {
		if err := registry.AddDish(d); err != nil {
			return fmt.Errorf("register dish %q: %w", d.ID, err)
		}
	}

	sessionOpts := []session.Option{
		session.WithMetrics(collector),
		session.WithLogger(log),
		session.WithTableCache(core.NewTableCache(4)),
	}
	target, site, err := cfg.OrbitTarget()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if target != nil {
		sessionOpts = append(sessionOpts, session.WithOrbitTarget(target, site))
	}

	sess, err := session.New(registry, session.Options{
		OperatedDish:   cfg.Operator.Dish,
		PeerDish:       cfg.PeerDish(),
		LinkBudget:     cfg.LinkBudgetSettings(),
		Learner:        cfg.LearnerSettings(),
		GuidanceEvery:  cfg.Simulation.GuidanceEvery,
		ReadingNoiseDB: cfg.Simulation.ReadingNoiseDB,
		Seed:           cfg.Simulation.Seed,
	}, sessionOpts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	op := session.NewOperator(session.OperatorSettings{
		SweepStepDeg:     cfg.Operator.SweepStepDeg,
		FollowConfidence: cfg.Operator.FollowConfidence,
		JitterDeg:        cfg.Operator.JitterDeg,
	}, cfg.Simulation.Seed)

	mode := timectrl.Accelerated
	if !cfg.Simulation.Accelerated {
		mode = timectrl.RealTime
	}
	start, err := cfg.Start()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if start.IsZero() {
		start = time.Now().UTC()
	}
	tc := timectrl.NewTimeController(start, cfg.Tick(), mode)
	tc.AddListener(sess.Listener(ctx, op))

	log.Info(ctx, "starting alignment session",
		logging.String("operated", cfg.Operator.Dish),
		logging.String("mode", mode.String()),
		logging.String("duration", cfg.Duration().String()),
		logging.String("dish", cfg.ToParameters().String()),
	)
	started := time.Now()
	runErr := tc.Run(ctx, cfg.Duration())
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	sum := sess.Summary()
	log.Info(ctx, "alignment session finished",
		logging.Int("ticks", tc.Ticks()),
		logging.Float64("final_db", sum.FinalDB),
		logging.String("took", time.Since(started).Round(time.Millisecond).String()),
	)
	fmt.Fprint(stdout, sum.String())
	return nil
}

func serveMetrics(addr string, collector *observability.AlignmentCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
