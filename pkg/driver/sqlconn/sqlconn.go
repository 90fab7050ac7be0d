// Package sqlconn adapts any database/sql/driver.Connector to a
// driver.Connector, so drivers written for database/sql can be pooled
// without database/sql's own pool in between.
package sqlconn

import (
	"context"
	sqldriver "database/sql/driver"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
)

// Connector wraps a database/sql driver connector
type Connector struct {
	connector sqldriver.Connector
	logger    *zap.Logger
}

// NewConnector adapts c
func NewConnector(c sqldriver.Connector) *Connector {
	return &Connector{
		connector: c,
		logger:    logger.Component("sqlconn_driver"),
	}
}

// Connect implements driver.Connector
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	raw, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open sql connection")
	}
	c.logger.Debug("sql connection established")
	return &Conn{conn: raw}, nil
}

// Conn is one database/sql/driver connection
type Conn struct {
	conn sqldriver.Conn
}

// Query implements driver.Conn. It uses the driver's QueryerContext fast
// path and falls back to prepare-and-query when the driver skips it.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*driver.Result, error) {
	named, err := namedValues(c.conn, args)
	if err != nil {
		return nil, err
	}

	if q, ok := c.conn.(sqldriver.QueryerContext); ok {
		rows, err := q.QueryContext(ctx, query, named)
		if !stderrors.Is(err, sqldriver.ErrSkip) {
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery, "sql query failed")
			}
			return collect(rows)
		}
	}

	stmt, err := prepare(ctx, c.conn, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := queryStmt(ctx, stmt, named)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "sql query failed")
	}
	return collect(rows)
}

// Prepare implements driver.Conn
func (c *Conn) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	stmt, err := prepare(ctx, c.conn, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{conn: c.conn, stmt: stmt}, nil
}

// Close implements driver.Conn
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close()
}

// Stmt is a prepared database/sql/driver statement. Exec reports affected
// rows and the last insert id; row-returning statements belong in
// Lease.Query.
type Stmt struct {
	conn sqldriver.Conn
	stmt sqldriver.Stmt
}

// Exec implements driver.Stmt
func (s *Stmt) Exec(ctx context.Context, args ...any) (*driver.Result, error) {
	named, err := namedValues(s.conn, args)
	if err != nil {
		return nil, err
	}

	var r sqldriver.Result
	if se, ok := s.stmt.(sqldriver.StmtExecContext); ok {
		r, err = se.ExecContext(ctx, named)
	} else {
		r, err = s.stmt.Exec(plainValues(named)) //nolint:staticcheck // drivers without StmtExecContext
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "sql statement failed")
	}

	res := &driver.Result{}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	if id, err := r.LastInsertId(); err == nil {
		res.LastInsertID = id
	}
	return res, nil
}

// Close implements driver.Stmt
func (s *Stmt) Close(ctx context.Context) error {
	return s.stmt.Close()
}

func prepare(ctx context.Context, conn sqldriver.Conn, query string) (sqldriver.Stmt, error) {
	var (
		stmt sqldriver.Stmt
		err  error
	)
	if pc, ok := conn.(sqldriver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = conn.Prepare(query)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "sql prepare failed")
	}
	return stmt, nil
}

func queryStmt(ctx context.Context, stmt sqldriver.Stmt, args []sqldriver.NamedValue) (sqldriver.Rows, error) {
	if sq, ok := stmt.(sqldriver.StmtQueryContext); ok {
		return sq.QueryContext(ctx, args)
	}
	return stmt.Query(plainValues(args)) //nolint:staticcheck // drivers without StmtQueryContext
}

// namedValues converts args the way database/sql does: the driver's
// NamedValueChecker first, then the default converter.
func namedValues(conn sqldriver.Conn, args []any) ([]sqldriver.NamedValue, error) {
	checker, _ := conn.(sqldriver.NamedValueChecker)

	named := make([]sqldriver.NamedValue, len(args))
	for i, arg := range args {
		nv := sqldriver.NamedValue{Ordinal: i + 1, Value: arg}
		if checker != nil {
			err := checker.CheckNamedValue(&nv)
			if err == nil {
				named[i] = nv
				continue
			}
			if !stderrors.Is(err, sqldriver.ErrSkip) {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported argument").
					WithDetail("ordinal", i+1)
			}
		}

		v, err := sqldriver.DefaultParameterConverter.ConvertValue(arg)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported argument").
				WithDetail("ordinal", i+1)
		}
		nv.Value = v
		named[i] = nv
	}
	return named, nil
}

func plainValues(named []sqldriver.NamedValue) []sqldriver.Value {
	values := make([]sqldriver.Value, len(named))
	for i, nv := range named {
		values[i] = nv.Value
	}
	return values
}

// collect drains rows. Byte slices are owned by the driver until the next
// call to Next, so they are copied out as strings.
func collect(rows sqldriver.Rows) (*driver.Result, error) {
	defer rows.Close()

	res := &driver.Result{Columns: rows.Columns()}
	dest := make([]sqldriver.Value, len(res.Columns))
	for {
		err := rows.Next(dest)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read sql row")
		}

		row := make([]any, len(dest))
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[i] = v
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
