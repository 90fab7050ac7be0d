package pool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/connpool/pkg/driver"
)

// Lease is exclusive access to one pooled connection. It is obtained from
// Pool.Acquire and must be released exactly once with Release; Pool.With
// does this automatically.
//
// Methods on a Lease are serialized, so a Lease may be shared between
// goroutines of the same owner, but the connection never is.
type Lease struct {
	id         string
	pool       *Pool
	state      *leaseState
	acquiredAt time.Time
	reused     bool
	cleanup    runtime.Cleanup
}

// leaseState owns the connection while it is checked out. It is shared with
// the leak cleanup, which must not reference the Lease itself.
type leaseState struct {
	mu   sync.Mutex
	conn driver.Conn
}

// take removes the connection, returning nil if it was already taken.
func (s *leaseState) take() driver.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	s.conn = nil
	return conn
}

// orphan is what the cleanup of an unreachable Lease needs to return its
// connection.
type orphan struct {
	id         string
	state      *leaseState
	acquiredAt time.Time
}

func (p *Pool) newLease(conn driver.Conn, reused bool) *Lease {
	l := &Lease{
		id:         uuid.NewString(),
		pool:       p,
		state:      &leaseState{conn: conn},
		acquiredAt: time.Now(),
		reused:     reused,
	}
	l.cleanup = runtime.AddCleanup(l, p.reclaim, orphan{
		id:         l.id,
		state:      l.state,
		acquiredAt: l.acquiredAt,
	})
	return l
}

// ID identifies this checkout in logs and traces
func (l *Lease) ID() string {
	return l.id
}

// AcquiredAt returns when the connection was checked out
func (l *Lease) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Reused reports whether the connection came from the idle set rather than
// being created for this Lease.
func (l *Lease) Reused() bool {
	return l.reused
}

// Query runs query on the leased connection. Errors from the connection are
// returned unchanged.
func (l *Lease) Query(ctx context.Context, query string, args ...any) (*driver.Result, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if l.state.conn == nil {
		return nil, ErrLeaseReleased
	}
	return l.state.conn.Query(ctx, query, args...)
}

// Prepare prepares query on the leased connection. The returned statement
// belongs to the connection and stops working once the Lease is released.
func (l *Lease) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if l.state.conn == nil {
		return nil, ErrLeaseReleased
	}
	stmt, err := l.state.conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &leaseStmt{lease: l, stmt: stmt}, nil
}

// Release returns the connection to the pool and wakes one blocked Acquire.
// If the pool has been closed the connection is closed instead, and any
// error from closing it is returned. Calling Release more than once returns
// ErrLeaseReleased.
func (l *Lease) Release() error {
	conn := l.state.take()
	if conn == nil {
		return ErrLeaseReleased
	}
	l.cleanup.Stop()

	return l.pool.put(conn, l.id, time.Since(l.acquiredAt))
}

// leaseStmt keeps its Lease reachable while the statement is in use and
// refuses to run after the Lease is released.
type leaseStmt struct {
	lease *Lease
	stmt  driver.Stmt
}

func (s *leaseStmt) Exec(ctx context.Context, args ...any) (*driver.Result, error) {
	state := s.lease.state
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.conn == nil {
		return nil, ErrLeaseReleased
	}
	return s.stmt.Exec(ctx, args...)
}

func (s *leaseStmt) Close(ctx context.Context) error {
	state := s.lease.state
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.conn == nil {
		return ErrLeaseReleased
	}
	return s.stmt.Close(ctx)
}
