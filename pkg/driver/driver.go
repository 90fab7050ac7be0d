// Package driver defines the connection capability the pool manages and a
// registry of named drivers that construct it.
//
// A driver turns a config.ConnectionConfig into a Connector. The pool calls
// Connector.Connect whenever it needs a new physical connection and never
// looks inside the returned Conn beyond handing it to one Lease at a time.
package driver

import "context"

// Conn is one live connection to a backend. A Conn is used by a single
// goroutine at a time; the pool guarantees that by leasing it exclusively.
type Conn interface {
	// Query runs a statement and materializes its result.
	Query(ctx context.Context, query string, args ...any) (*Result, error)
	// Prepare creates a server-side prepared statement bound to this Conn.
	Prepare(ctx context.Context, query string) (Stmt, error)
	// Close terminates the connection.
	Close(ctx context.Context) error
}

// Stmt is a prepared statement. It is only valid while the Conn that
// prepared it is held.
type Stmt interface {
	Exec(ctx context.Context, args ...any) (*Result, error)
	Close(ctx context.Context) error
}

// Result is a fully read statement result.
type Result struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
	LastInsertID int64    `json:"last_insert_id,omitempty"`
}

// Connector creates new connections. It must be safe to call repeatedly and
// concurrently, and connections it returns must be independent.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}
