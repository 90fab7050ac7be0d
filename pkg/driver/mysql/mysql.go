// Package mysql provides a MySQL driver built on the go-mysql client.
// Importing it registers the "mysql" driver.
package mysql

import (
	"context"

	"github.com/go-mysql-org/go-mysql/client"
	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	dsnparser "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
)

// DriverName is the registry name of this driver
const DriverName = "mysql"

// DefaultPort is used when the configuration omits one
const DefaultPort = 3306

func init() {
	driver.Register(driver.Info{
		Name:        DriverName,
		Description: "MySQL over the go-mysql client protocol",
		DefaultPort: DefaultPort,
	}, New)
}

// Connector dials MySQL connections
type Connector struct {
	addr     string
	user     string
	password string
	database string
	charset  string
	cfg      *config.ConnectionConfig
	logger   *zap.Logger
}

// New creates a Connector. A DSN in the go-sql-driver format
// (user:pass@tcp(host:port)/db) overrides the discrete fields.
func New(cfg *config.ConnectionConfig) (driver.Connector, error) {
	c := &Connector{
		addr:     cfg.Address(DefaultPort),
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		charset:  cfg.Param("charset", gomysql.DEFAULT_CHARSET),
		cfg:      cfg,
		logger:   logger.Component("mysql_driver"),
	}

	if cfg.HasDSN() {
		parsed, err := dsnparser.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse mysql dsn")
		}
		c.addr = parsed.Addr
		c.user = parsed.User
		c.password = parsed.Passwd
		c.database = parsed.DBName
	}

	if c.user == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql user is required")
	}
	return c, nil
}

// Connect implements driver.Connector
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := client.ConnectWithContext(ctx, c.addr, c.user, c.password, c.database, c.cfg.ConnectTimeout,
		func(conn *client.Conn) error {
			return conn.SetCharset(c.charset)
		})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mysql").
			WithDetail("addr", c.addr)
	}

	c.logger.Debug("mysql connection established",
		zap.String("addr", c.addr),
		zap.String("database", c.database),
		zap.Uint32("connection_id", conn.GetConnectionID()))

	return &Conn{conn: conn}, nil
}

// Conn is a single go-mysql client connection. The client API has no
// context support, so a done ctx is checked before each round trip.
type Conn struct {
	conn *client.Conn
}

// Query implements driver.Conn
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := c.conn.Execute(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mysql query failed")
	}
	return convert(r)
}

// Prepare implements driver.Conn
func (c *Conn) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mysql prepare failed")
	}
	return &Stmt{stmt: stmt}, nil
}

// Close implements driver.Conn
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close()
}

// Stmt is a server-side prepared statement
type Stmt struct {
	stmt *client.Stmt
}

// Exec implements driver.Stmt
func (s *Stmt) Exec(ctx context.Context, args ...any) (*driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.stmt.Execute(args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mysql statement failed")
	}
	return convert(r)
}

// Close implements driver.Stmt
func (s *Stmt) Close(ctx context.Context) error {
	return s.stmt.Close()
}

// convert copies a go-mysql result. Text values are returned as strings.
func convert(r *gomysql.Result) (*driver.Result, error) {
	res := &driver.Result{
		RowsAffected: int64(r.AffectedRows),
		LastInsertID: int64(r.InsertId),
	}
	if r.Resultset == nil {
		return res, nil
	}

	res.Columns = make([]string, len(r.Fields))
	for i, f := range r.Fields {
		res.Columns[i] = string(f.Name)
	}

	res.Rows = make([][]any, 0, r.RowNumber())
	for row := 0; row < r.RowNumber(); row++ {
		values := make([]any, r.ColumnNumber())
		for col := range values {
			v, err := r.GetValue(row, col)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read mysql value")
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			values[col] = v
		}
		res.Rows = append(res.Rows, values)
	}
	return res, nil
}
