package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
)

var (
	// ErrPoolClosed is returned by Acquire once Close has been called.
	ErrPoolClosed = errors.New(errors.ErrorTypeClosed, "pool is closed")
	// ErrLeaseReleased is returned by every Lease method after Release.
	ErrLeaseReleased = errors.New(errors.ErrorTypeClosed, "lease already released")
)

// closeTimeout bounds closing a connection returned after the pool closed.
const closeTimeout = 5 * time.Second

// Pool is a bounded set of reusable connections shared by many goroutines.
// At most capacity connections are ever created; they are created lazily on
// demand, reused most-recently-released first, and callers block in Acquire
// while all of them are leased.
//
// A *Pool is safe for concurrent use and is shared by copying the pointer.
type Pool struct {
	name      string
	capacity  int
	connector driver.Connector
	logger    *zap.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	idle    []driver.Conn
	created int // idle + leased + under construction
	leased  int
	waiters []chan struct{}
	closed  bool
	drained chan struct{} // closed once closed && created == 0

	acquired       int64
	reused         int64
	createFailures int64
	waitCount      int64
	waitDuration   time.Duration
	leaksRecovered int64
}

// New creates a pool that builds connections with connector. No connection
// is opened until the first Acquire.
func New(cfg config.PoolConfig, connector driver.Connector, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "connector is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	name := cfg.Name
	if o.name != "" {
		name = o.name
	}
	if name == "" {
		name = "default"
	}

	p := &Pool{
		name:      name,
		capacity:  cfg.Capacity,
		connector: connector,
		logger:    o.logger.With(zap.String("component", "connection_pool"), zap.String("pool", name)),
		tracer:    o.tracer,
		idle:      make([]driver.Conn, 0, cfg.Capacity),
		drained:   make(chan struct{}),
	}

	p.logger.Debug("pool created", zap.Int("capacity", cfg.Capacity))
	return p, nil
}

// Name returns the pool name used in logs, metrics and spans.
func (p *Pool) Name() string {
	return p.name
}

// Capacity returns the fixed maximum number of connections.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire returns a Lease on an idle connection, creating one if the pool is
// under capacity, and otherwise blocks until another Lease is released.
//
// The pool imposes no deadline of its own: with context.Background() the
// call waits indefinitely. A cancelled or expired ctx ends the wait with
// ctx.Err(). A failure from the connector is returned unchanged and does not
// consume capacity, so the caller may simply call Acquire again.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	ctx, span := p.tracer.Start(ctx, "pool.acquire",
		trace.WithAttributes(attribute.String("pool.name", p.name)))
	defer span.End()

	lease, err := p.acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("pool.lease_id", lease.id),
		attribute.Bool("pool.reused", lease.reused),
	)
	return lease, nil
}

func (p *Pool) acquire(ctx context.Context) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var waitStart time.Time

	p.mu.Lock()
	for {
		if p.closed {
			p.recordWaitLocked(waitStart)
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle[n-1] = nil
			p.idle = p.idle[:n-1]
			p.leased++
			p.acquired++
			p.reused++
			p.recordWaitLocked(waitStart)
			p.mu.Unlock()

			lease := p.newLease(conn, true)
			p.logger.Debug("reusing connection", zap.String("lease_id", lease.id))
			return lease, nil
		}

		if p.created < p.capacity {
			// Reserve the slot before dialing so concurrent callers cannot
			// overshoot capacity while the lock is released.
			p.created++
			p.recordWaitLocked(waitStart)
			p.mu.Unlock()
			return p.create(ctx)
		}

		if waitStart.IsZero() {
			waitStart = time.Now()
			p.waitCount++
			p.logger.Debug("waiting for connection",
				zap.Int("created", p.created),
				zap.Int("waiting", len(p.waiters)+1))
		}

		wake := make(chan struct{})
		p.waiters = append(p.waiters, wake)
		p.mu.Unlock()

		select {
		case <-wake:
			p.mu.Lock()
		case <-ctx.Done():
			p.mu.Lock()
			if !p.removeWaiterLocked(wake) {
				// We were signalled concurrently with cancellation; pass the
				// wakeup on so the released connection is not stranded.
				p.signalLocked()
			}
			p.recordWaitLocked(waitStart)
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// create dials a new connection for a slot already reserved in p.created.
func (p *Pool) create(ctx context.Context) (*Lease, error) {
	conn, err := p.connector.Connect(ctx)
	if err == nil && conn == nil {
		err = errors.New(errors.ErrorTypeInternal, "connector returned a nil connection")
	}

	p.mu.Lock()
	if err != nil {
		p.created--
		p.createFailures++
		p.signalLocked()
		p.checkDrainedLocked()
		p.mu.Unlock()
		return nil, err
	}

	if p.closed {
		p.created--
		p.checkDrainedLocked()
		p.mu.Unlock()
		_ = conn.Close(ctx)
		return nil, ErrPoolClosed
	}

	p.leased++
	p.acquired++
	created := p.created
	p.mu.Unlock()

	lease := p.newLease(conn, false)
	p.logger.Debug("created new connection",
		zap.String("lease_id", lease.id),
		zap.Int("created", created))
	return lease, nil
}

// With acquires a Lease, runs fn with it and releases it on every exit path,
// including a panic inside fn (the panic continues after the release).
func (p *Pool) With(ctx context.Context, fn func(*Lease) error) (err error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(lease)
}

// put returns a released connection. After Close the connection is closed
// instead of being kept.
func (p *Pool) put(conn driver.Conn, leaseID string, held time.Duration) error {
	p.mu.Lock()
	p.leased--

	if p.closed {
		p.created--
		p.checkDrainedLocked()
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		return conn.Close(ctx)
	}

	p.idle = append(p.idle, conn)
	idle := len(p.idle)
	p.signalLocked()
	p.mu.Unlock()

	p.logger.Debug("returned connection to pool",
		zap.String("lease_id", leaseID),
		zap.Duration("held", held),
		zap.Int("idle", idle))
	return nil
}

// reclaim returns the connection of a Lease that became unreachable without
// being released.
func (p *Pool) reclaim(o orphan) {
	conn := o.state.take()
	if conn == nil {
		return
	}

	p.mu.Lock()
	p.leaksRecovered++
	p.mu.Unlock()

	p.logger.Warn("recovered connection from unreleased lease",
		zap.String("lease_id", o.id),
		zap.Time("acquired_at", o.acquiredAt))

	if err := p.put(conn, o.id, time.Since(o.acquiredAt)); err != nil {
		p.logger.Warn("failed to close recovered connection", zap.String("lease_id", o.id), zap.Error(err))
	}
}

// Close stops the pool. Idle connections are closed immediately, blocked
// Acquire calls return ErrPoolClosed, and connections still leased are
// closed when their Lease is released. Close waits for those releases until
// ctx is done. Calling Close again only waits.
func (p *Pool) Close(ctx context.Context) error {
	var idle []driver.Conn

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		idle = p.idle
		p.idle = nil
		p.created -= len(idle)
		for _, wake := range p.waiters {
			close(wake)
		}
		p.waiters = nil
		p.checkDrainedLocked()
	}
	drained := p.drained
	p.mu.Unlock()

	var errs []error
	for _, conn := range idle {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeConnection, "close idle connection"))
		}
	}

	select {
	case <-drained:
		p.logger.Info("connection pool closed", zap.Int("closed_idle", len(idle)))
	case <-ctx.Done():
		outstanding := p.Stats().InUse
		p.logger.Warn("pool close timed out with outstanding leases", zap.Int("outstanding", outstanding))
		errs = append(errs, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout,
			fmt.Sprintf("close pool %s: %d leases unreturned", p.name, outstanding)))
	}

	return errors.Join(errs...)
}

// signalLocked wakes the longest-waiting blocked Acquire, if any.
func (p *Pool) signalLocked() {
	if len(p.waiters) == 0 {
		return
	}
	wake := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	close(wake)
}

func (p *Pool) removeWaiterLocked(wake chan struct{}) bool {
	for i, w := range p.waiters {
		if w == wake {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) recordWaitLocked(start time.Time) {
	if !start.IsZero() {
		p.waitDuration += time.Since(start)
	}
}

func (p *Pool) checkDrainedLocked() {
	if !p.closed || p.created != 0 {
		return
	}
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}
