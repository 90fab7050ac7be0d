// Package workload drives concurrent query traffic through a pool. It backs
// the bench command and doubles as a soak test for pool behaviour under
// contention.
package workload

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/pool"
)

// Config describes one workload run
type Config struct {
	// Workers is the number of goroutines issuing operations
	Workers int `yaml:"workers" json:"workers"`
	// Duration bounds the run; zero means run until Operations are done
	Duration time.Duration `yaml:"duration" json:"duration"`
	// Operations bounds the run; zero means run until Duration elapses
	Operations int `yaml:"operations" json:"operations"`
	// Rate caps operations per second across all workers; zero is unlimited
	Rate float64 `yaml:"rate" json:"rate"`
	// Query is run once per operation
	Query string `yaml:"query" json:"query"`
	// MaxRetries is how often a retryable failure is retried
	MaxRetries uint `yaml:"max_retries" json:"max_retries"`
}

// Validate checks that the run is bounded and has something to do
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "workers must be positive, got %d", c.Workers)
	}
	if c.Duration <= 0 && c.Operations <= 0 {
		return errors.New(errors.ErrorTypeConfig, "either duration or operations must be set")
	}
	if c.Query == "" {
		return errors.New(errors.ErrorTypeConfig, "query is required")
	}
	if c.Rate < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "rate must not be negative, got %v", c.Rate)
	}
	return nil
}

// Report summarizes a finished run
type Report struct {
	Operations int64         `json:"operations"`
	Errors     int64         `json:"errors"`
	Retries    int64         `json:"retries"`
	Elapsed    time.Duration `json:"elapsed"`
	Throughput float64       `json:"throughput_per_second"`
	P50        time.Duration `json:"p50"`
	P99        time.Duration `json:"p99"`
	Pool       pool.Stats    `json:"pool"`
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records every operation on m
func WithMetrics(m *metrics.WorkloadMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithBackOff replaces the exponential back-off used between retries
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Runner) { r.newBackOff = newBackOff }
}

// Runner issues Config.Query through a pool from many goroutines. A Runner
// is used for a single Run.
type Runner struct {
	pool       *pool.Pool
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics.WorkloadMetrics
	newBackOff func() backoff.BackOff

	issued  atomic.Int64
	ops     atomic.Int64
	errs    atomic.Int64
	retries atomic.Int64
	latency    *metrics.LatencyTracker
	throughput *metrics.ThroughputTracker
}

// New creates a Runner for p
func New(p *pool.Pool, cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		pool:   p,
		cfg:    cfg,
		logger: logger.Component("workload"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		latency: metrics.NewLatencyTracker(10000),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the workload and returns its report. It stops early when
// ctx is done or the pool is closed; operation failures are counted in the
// report rather than returned.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	limit := rate.Inf
	if r.cfg.Rate > 0 {
		limit = rate.Limit(r.cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	r.logger.Info("starting workload",
		zap.String("pool", r.pool.Name()),
		zap.Int("workers", r.cfg.Workers),
		zap.Duration("duration", r.cfg.Duration),
		zap.Int("operations", r.cfg.Operations),
		zap.Float64("rate", r.cfg.Rate))

	r.throughput = metrics.NewThroughputTracker()
	timer := metrics.NewTimer()
	workers := concpool.New().WithContext(ctx).WithMaxGoroutines(r.cfg.Workers).WithCancelOnError()
	for i := 0; i < r.cfg.Workers; i++ {
		workers.Go(func(ctx context.Context) error {
			return r.worker(ctx, limiter)
		})
	}
	err := workers.Wait()
	elapsed := timer.Stop()

	report := &Report{
		Operations: r.ops.Load(),
		Errors:     r.errs.Load(),
		Retries:    r.retries.Load(),
		Elapsed:    elapsed,
		P50:        r.latency.GetPercentile(50),
		P99:        r.latency.GetPercentile(99),
		Throughput: r.throughput.GetAndReset(),
		Pool:       r.pool.Stats(),
	}

	r.logger.Info("workload finished",
		zap.Int64("operations", report.Operations),
		zap.Int64("errors", report.Errors),
		zap.Int64("retries", report.Retries),
		zap.Duration("elapsed", report.Elapsed),
		zap.Float64("throughput", report.Throughput))

	return report, err
}

func (r *Runner) worker(ctx context.Context, limiter *rate.Limiter) error {
	for {
		if r.cfg.Operations > 0 && r.issued.Add(1) > int64(r.cfg.Operations) {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		err := r.operation(ctx)
		switch {
		case err == nil:
			r.ops.Add(1)
			r.throughput.Increment(1)
		case ctx.Err() != nil:
			return nil
		case stderrors.Is(err, pool.ErrPoolClosed):
			return err
		default:
			r.ops.Add(1)
			r.throughput.Increment(1)
			r.errs.Add(1)
			r.logger.Debug("operation failed", zap.Error(err))
		}
	}
}

// operation runs the query once, retrying retryable failures with back-off.
func (r *Runner) operation(ctx context.Context) error {
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := r.attempt(ctx)
		if err != nil && !errors.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.cfg.MaxRetries+1))

	for i := 1; i < attempts; i++ {
		r.retries.Add(1)
		r.metrics.ObserveRetry()
	}
	return err
}

func (r *Runner) attempt(ctx context.Context) error {
	start := time.Now()
	err := r.pool.With(ctx, func(l *pool.Lease) error {
		_, err := l.Query(ctx, r.cfg.Query)
		return err
	})
	d := time.Since(start)

	r.latency.Record(d)
	r.metrics.ObserveOperation(r.pool.Name(), d, err)
	return err
}
