package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/internal/workload"
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/observability"
	"github.com/ajitpratap0/connpool/pkg/pool"
)

func newBenchCommand(v *viper.Viper) *cobra.Command {
	var wl workload.Config
	var metricsAddr string
	var trace bool

	cmd := &cobra.Command{
		Use:   "bench SQL",
		Short: "Drive concurrent load through the pool",
		Long: `Run many workers that each repeatedly acquire a lease, run SQL and release it.
The pool statistics and latency percentiles are printed as JSON when the run ends.

Example:
  connpool bench --config pool.yaml --workers 32 --duration 30s --rate 500 "SELECT 1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddr = metricsAddr
			}
			if trace {
				cfg.Tracing.Enabled = true
			}
			wl.Query = args[0]

			log, err := initLogger(cfg, "bench")
			if err != nil {
				return err
			}
			defer func() { _ = observability.SyncLogger(log) }()

			return runBench(cmd, cfg, wl, log)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&wl.Workers, "workers", 8, "Number of concurrent workers")
	flags.DurationVar(&wl.Duration, "duration", 10*time.Second, "How long to run; 0 runs until --operations are done")
	flags.IntVar(&wl.Operations, "operations", 0, "Stop after this many operations; 0 means no limit")
	flags.Float64Var(&wl.Rate, "rate", 0, "Maximum operations per second across all workers; 0 is unlimited")
	flags.UintVar(&wl.MaxRetries, "max-retries", 3, "Retries for operations that fail to connect")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g., :9090)")
	flags.BoolVar(&trace, "trace", false, "Export acquire spans to stderr")
	return cmd
}

func runBench(cmd *cobra.Command, cfg *config.Config, wl workload.Config, log *zap.Logger) error {
	ctx := cmd.Context()
	opts := []pool.Option{pool.WithLogger(log)}

	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(ctx, cfg.Tracing, version, cmd.ErrOrStderr(), log)
		if err != nil {
			return err
		}
		tracing.Install()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := tracing.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to flush spans", zap.Error(err))
			}
		}()
		opts = append(opts, pool.WithTracer(tracing.Provider().Tracer(cfg.Tracing.ServiceName)))
	}

	p, err := openPool(cfg, opts...)
	if err != nil {
		return err
	}
	defer closePool(p, log)

	runnerOpts := []workload.Option{workload.WithLogger(log)}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pc := metrics.NewPoolCollector(cfg.Metrics.Namespace)
		pc.Add(p)
		reg.MustRegister(pc)
		runnerOpts = append(runnerOpts, workload.WithMetrics(metrics.NewWorkloadMetrics(reg, cfg.Metrics.Namespace)))

		stop := serveMetrics(cfg.Metrics.ListenAddr, reg, log)
		defer stop()
	}

	runner, err := workload.New(p, wl, runnerOpts...)
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx)
	if report != nil {
		if werr := writeJSON(cmd, report); werr != nil {
			return werr
		}
	}
	return err
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
