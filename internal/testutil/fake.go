package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
)

// FailQuery makes a FakeConn return ErrFakeQuery.
const FailQuery = "FAIL"

var (
	// ErrFakeQuery is returned for the FailQuery statement.
	ErrFakeQuery = errors.New(errors.ErrorTypeQuery, "fake query failed")
	// ErrConcurrentUse is returned when two goroutines use one FakeConn at once.
	ErrConcurrentUse = errors.New(errors.ErrorTypeInternal, "fake connection used concurrently")
	// ErrConnClosed is returned by a FakeConn after Close.
	ErrConnClosed = errors.New(errors.ErrorTypeConnection, "fake connection closed")
)

// FakeConnector is an in-memory driver.Connector that records how many
// connections exist and detects a connection being shared.
type FakeConnector struct {
	mu       sync.Mutex
	failures []error
	delay    time.Duration
	hold     time.Duration

	nextID     atomic.Int64
	connects   atomic.Int64
	live       atomic.Int64
	maxLive    atomic.Int64
	closed     atomic.Int64
	violations atomic.Int64
}

// NewFakeConnector creates a connector whose connections always succeed
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{}
}

// FailNext scripts the results of the next Connect calls: each non-nil
// error is returned once, in order, before connections succeed again.
func (f *FakeConnector) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// SetDelay makes Connect take d, honouring ctx cancellation.
func (f *FakeConnector) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetHold makes every Query and Exec take d, widening race windows.
func (f *FakeConnector) SetHold(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = d
}

// Connect implements driver.Connector
func (f *FakeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	f.mu.Lock()
	delay, hold := f.delay, f.hold
	var scripted error
	if len(f.failures) > 0 {
		scripted = f.failures[0]
		f.failures = f.failures[1:]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if scripted != nil {
		return nil, scripted
	}

	f.connects.Add(1)
	live := f.live.Add(1)
	for {
		peak := f.maxLive.Load()
		if live <= peak || f.maxLive.CompareAndSwap(peak, live) {
			break
		}
	}

	return &FakeConn{id: f.nextID.Add(1), owner: f, hold: hold}, nil
}

// Connects returns the number of connections successfully created
func (f *FakeConnector) Connects() int64 { return f.connects.Load() }

// Live returns the number of connections created and not yet closed
func (f *FakeConnector) Live() int64 { return f.live.Load() }

// MaxLive returns the highest Live value observed
func (f *FakeConnector) MaxLive() int64 { return f.maxLive.Load() }

// Closed returns the number of connections closed
func (f *FakeConnector) Closed() int64 { return f.closed.Load() }

// Violations returns how many times a connection was used concurrently
func (f *FakeConnector) Violations() int64 { return f.violations.Load() }

// FakeConn is a driver.Conn whose queries return its own id.
type FakeConn struct {
	id     int64
	owner  *FakeConnector
	hold   time.Duration
	inUse  atomic.Bool
	closed atomic.Bool
}

func (c *FakeConn) enter() error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if !c.inUse.CompareAndSwap(false, true) {
		c.owner.violations.Add(1)
		return ErrConcurrentUse
	}
	return nil
}

func (c *FakeConn) run(ctx context.Context, query string) (*driver.Result, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	defer c.inUse.Store(false)

	if c.hold > 0 {
		select {
		case <-time.After(c.hold):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if query == FailQuery {
		return nil, ErrFakeQuery
	}

	return &driver.Result{
		Columns: []string{"conn_id", "query"},
		Rows:    [][]any{{c.id, query}},
	}, nil
}

// Query implements driver.Conn. The single result row holds the connection
// id and the query text.
func (c *FakeConn) Query(ctx context.Context, query string, args ...any) (*driver.Result, error) {
	return c.run(ctx, query)
}

// Prepare implements driver.Conn
func (c *FakeConn) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	if query == FailQuery {
		return nil, ErrFakeQuery
	}
	return &fakeStmt{conn: c, query: query}, nil
}

// Close implements driver.Conn
func (c *FakeConn) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return fmt.Errorf("fake connection %d closed twice", c.id)
	}
	c.owner.live.Add(-1)
	c.owner.closed.Add(1)
	return nil
}

type fakeStmt struct {
	conn   *FakeConn
	query  string
	closed atomic.Bool
}

func (s *fakeStmt) Exec(ctx context.Context, args ...any) (*driver.Result, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("statement %q closed", s.query)
	}
	res, err := s.conn.run(ctx, s.query)
	if err != nil {
		return nil, err
	}
	res.RowsAffected = int64(len(args))
	return res, nil
}

func (s *fakeStmt) Close(ctx context.Context) error {
	s.closed.Store(true)
	return nil
}
