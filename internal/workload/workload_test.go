package workload

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/internal/testutil"
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/metrics"
	"github.com/ajitpratap0/connpool/pkg/pool"
)

func newPool(t *testing.T, capacity int) (*pool.Pool, *testutil.FakeConnector) {
	t.Helper()

	connector := testutil.NewFakeConnector()
	p, err := pool.New(config.PoolConfig{Name: "bench", Capacity: capacity}, connector,
		pool.WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, connector
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"operations bound", Config{Workers: 1, Operations: 1, Query: "q"}, true},
		{"duration bound", Config{Workers: 1, Duration: time.Second, Query: "q"}, true},
		{"no workers", Config{Operations: 1, Query: "q"}, false},
		{"unbounded", Config{Workers: 1, Query: "q"}, false},
		{"no query", Config{Workers: 1, Operations: 1}, false},
		{"negative rate", Config{Workers: 1, Operations: 1, Query: "q", Rate: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestRun_FixedOperations(t *testing.T) {
	p, connector := newPool(t, 2)
	connector.SetHold(200 * time.Microsecond)

	reg := prometheus.NewRegistry()
	wm := metrics.NewWorkloadMetrics(reg, "connpool")

	r, err := New(p, Config{Workers: 8, Operations: 200, Query: "SELECT 1"},
		WithLogger(testutil.TestLogger(t)), WithMetrics(wm))
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(200), report.Operations)
	assert.Equal(t, int64(0), report.Errors)
	assert.LessOrEqual(t, report.Pool.Created, 2)
	assert.Equal(t, 0, report.Pool.InUse)
	assert.Equal(t, int64(200), report.Pool.Acquired)
	assert.Greater(t, report.Throughput, 0.0)
	assert.LessOrEqual(t, report.P50, report.P99)
	assert.Equal(t, int64(0), connector.Violations())

	n, err := promtest.GatherAndCount(reg, "connpool_workload_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_RetriesConnectionFailures(t *testing.T) {
	p, connector := newPool(t, 1)
	connector.FailNext(
		errors.New(errors.ErrorTypeConnection, "refused"),
		errors.New(errors.ErrorTypeConnection, "refused"),
	)

	r, err := New(p, Config{Workers: 1, Operations: 3, Query: "SELECT 1", MaxRetries: 3},
		WithLogger(testutil.TestLogger(t)), WithBackOff(zeroBackOff))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Operations)
	assert.Equal(t, int64(0), report.Errors)
	assert.Equal(t, int64(2), report.Retries)
	assert.Equal(t, int64(2), report.Pool.CreateFailures)
}

func TestRun_QueryErrorsAreNotRetried(t *testing.T) {
	p, _ := newPool(t, 1)

	r, err := New(p, Config{Workers: 2, Operations: 10, Query: testutil.FailQuery, MaxRetries: 5},
		WithLogger(testutil.TestLogger(t)), WithBackOff(zeroBackOff))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.Operations)
	assert.Equal(t, int64(10), report.Errors)
	assert.Equal(t, int64(0), report.Retries)
	assert.Equal(t, 1, report.Pool.Idle)
}

func TestRun_RateLimited(t *testing.T) {
	p, _ := newPool(t, 4)

	r, err := New(p, Config{Workers: 4, Duration: 200 * time.Millisecond, Rate: 20, Query: "SELECT 1"},
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.Operations, int64(0))
	assert.LessOrEqual(t, report.Operations, int64(10))
	assert.GreaterOrEqual(t, report.Elapsed, 100*time.Millisecond)
}

func TestRun_StopsWhenPoolCloses(t *testing.T) {
	p, _ := newPool(t, 1)
	require.NoError(t, p.Close(context.Background()))

	r, err := New(p, Config{Workers: 2, Duration: time.Second, Query: "SELECT 1"},
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	assert.ErrorIs(t, err, pool.ErrPoolClosed)
	require.NotNil(t, report)
	assert.Equal(t, int64(0), report.Operations)
	assert.True(t, report.Pool.Closed)
}
