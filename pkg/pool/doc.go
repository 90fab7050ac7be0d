// Package pool implements a bounded, blocking connection pool.
//
// A Pool creates at most Capacity connections, lazily, through a
// driver.Connector. Callers check a connection out with Acquire, use it
// through the returned Lease, and give it back with Release:
//
//	p, err := pool.New(config.PoolConfig{Name: "orders", Capacity: 8}, connector)
//	if err != nil {
//		return err
//	}
//	defer p.Close(context.Background())
//
//	lease, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer lease.Release()
//
//	res, err := lease.Query(ctx, "SELECT id FROM orders WHERE state = ?", "open")
//
// The scoped form releases on every exit path, including panics:
//
//	err := p.With(ctx, func(l *pool.Lease) error {
//		_, err := l.Query(ctx, "UPDATE orders SET state = 'done' WHERE id = ?", id)
//		return err
//	})
//
// # Blocking
//
// When every connection is leased, Acquire blocks until one is released. The
// pool has no timeout of its own; pass a context with a deadline to bound the
// wait. Released connections wake exactly one waiter.
//
// # Failures
//
// A connector error is returned from Acquire unchanged and does not use up
// capacity. Errors from Query, Prepare or statements are returned unchanged
// as well, and the connection still goes back to the idle set: the pool does
// not health-check connections.
//
// # Leaks
//
// A Lease that becomes unreachable without Release has its connection
// returned by a runtime cleanup. This shows up as a warning log and in
// Stats().LeaksRecovered, and should be treated as a bug in the caller.
package pool
