package sqlconn

import (
	"context"
	sqldriver "database/sql/driver"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/internal/testutil"
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/pool"
)

type fakeSQLConnector struct {
	err       error
	skipQuery bool
}

func (c *fakeSQLConnector) Connect(context.Context) (sqldriver.Conn, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &fakeSQLConn{skipQuery: c.skipQuery}, nil
}

func (c *fakeSQLConnector) Driver() sqldriver.Driver { return nil }

type fakeSQLConn struct {
	skipQuery bool
	closed    bool
}

func (c *fakeSQLConn) Prepare(query string) (sqldriver.Stmt, error) {
	if query == testutil.FailQuery {
		return nil, stderrors.New("syntax error")
	}
	return &fakeSQLStmt{query: query}, nil
}

func (c *fakeSQLConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeSQLConn) Begin() (sqldriver.Tx, error) {
	return nil, stderrors.New("transactions not supported")
}

func (c *fakeSQLConn) QueryContext(_ context.Context, query string, args []sqldriver.NamedValue) (sqldriver.Rows, error) {
	if c.skipQuery {
		return nil, sqldriver.ErrSkip
	}
	return newRows("direct", query, args), nil
}

type fakeSQLStmt struct {
	query string
}

func (s *fakeSQLStmt) Close() error  { return nil }
func (s *fakeSQLStmt) NumInput() int { return -1 }

func (s *fakeSQLStmt) Exec(args []sqldriver.Value) (sqldriver.Result, error) {
	return sqldriver.RowsAffected(len(args)), nil
}

func (s *fakeSQLStmt) Query(args []sqldriver.Value) (sqldriver.Rows, error) {
	named := make([]sqldriver.NamedValue, len(args))
	for i, a := range args {
		named[i] = sqldriver.NamedValue{Ordinal: i + 1, Value: a}
	}
	return newRows("prepared", s.query, named), nil
}

type fakeRows struct {
	cols []string
	data [][]sqldriver.Value
	next int
}

func newRows(path, query string, args []sqldriver.NamedValue) *fakeRows {
	row := []sqldriver.Value{path, []byte(query), int64(len(args))}
	if len(args) > 0 {
		row[2] = args[0].Value
	}
	return &fakeRows{cols: []string{"path", "query", "arg"}, data: [][]sqldriver.Value{row}}
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []sqldriver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}

func connect(t *testing.T, c *fakeSQLConnector) driver.Conn {
	t.Helper()
	conn, err := NewConnector(c).Connect(context.Background())
	require.NoError(t, err)
	return conn
}

func TestConn_Query(t *testing.T) {
	t.Run("queryer fast path", func(t *testing.T) {
		conn := connect(t, &fakeSQLConnector{})

		res, err := conn.Query(context.Background(), "SELECT ?", 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"path", "query", "arg"}, res.Columns)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, []any{"direct", "SELECT ?", int64(7)}, res.Rows[0])
	})

	t.Run("falls back to prepare on ErrSkip", func(t *testing.T) {
		conn := connect(t, &fakeSQLConnector{skipQuery: true})

		res, err := conn.Query(context.Background(), "SELECT ?", "a")
		require.NoError(t, err)
		assert.Equal(t, []any{"prepared", "SELECT ?", "a"}, res.Rows[0])
	})

	t.Run("unsupported argument", func(t *testing.T) {
		conn := connect(t, &fakeSQLConnector{})

		_, err := conn.Query(context.Background(), "SELECT ?", struct{}{})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("prepare failure is a query error", func(t *testing.T) {
		conn := connect(t, &fakeSQLConnector{skipQuery: true})

		_, err := conn.Query(context.Background(), testutil.FailQuery)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
	})
}

func TestStmt_Exec(t *testing.T) {
	conn := connect(t, &fakeSQLConnector{})
	ctx := context.Background()

	stmt, err := conn.Prepare(ctx, "INSERT INTO t VALUES (?, ?)")
	require.NoError(t, err)

	res, err := stmt.Exec(ctx, 1, "two")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)
	assert.Equal(t, int64(0), res.LastInsertID)
	require.NoError(t, stmt.Close(ctx))
}

func TestConnector_Errors(t *testing.T) {
	cause := stderrors.New("refused")
	_, err := NewConnector(&fakeSQLConnector{err: cause}).Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
	assert.ErrorIs(t, err, cause)
}

func TestConnector_Pooled(t *testing.T) {
	p, err := pool.New(config.PoolConfig{Name: "sqlconn", Capacity: 1},
		NewConnector(&fakeSQLConnector{}), pool.WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)

	err = p.With(context.Background(), func(l *pool.Lease) error {
		_, err := l.Query(context.Background(), "SELECT 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))
}

func TestMySQLConfig(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		cfg := config.NewConnectionConfig(MySQLDriverName)
		cfg.Host = "db"
		cfg.User = "app"
		cfg.Password = "pw"
		cfg.Database = "orders"
		cfg.Params["parseTime"] = "true"

		mcfg, err := MySQLConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "tcp", mcfg.Net)
		assert.Equal(t, "db:3306", mcfg.Addr)
		assert.Equal(t, "app", mcfg.User)
		assert.Equal(t, "orders", mcfg.DBName)
		assert.Equal(t, 10*time.Second, mcfg.Timeout)
		assert.Equal(t, "true", mcfg.Params["parseTime"])
	})

	t.Run("dsn", func(t *testing.T) {
		cfg := config.NewConnectionConfig(MySQLDriverName)
		cfg.DSN = "root:pw@tcp(10.0.0.5:3307)/inventory?timeout=2s"

		mcfg, err := MySQLConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5:3307", mcfg.Addr)
		assert.Equal(t, 2*time.Second, mcfg.Timeout)
	})

	t.Run("registered", func(t *testing.T) {
		cfg := config.NewConnectionConfig(MySQLDriverName)
		cfg.User = "app"

		c, err := driver.Open(cfg)
		require.NoError(t, err)
		assert.IsType(t, &Connector{}, c)
	})
}

func TestMySQLDSNIntegration(t *testing.T) {
	dsn := testutil.IntegrationTest(t, "CONNPOOL_MYSQL_DSN")

	cfg := config.NewConnectionConfig(MySQLDriverName)
	cfg.DSN = dsn
	connector, err := driver.Open(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)

	res, err := conn.Query(ctx, "SELECT ? AS v", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, res.Columns)
	assert.Equal(t, "hello", res.Rows[0][0])
}
