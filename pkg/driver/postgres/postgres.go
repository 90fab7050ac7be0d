// Package postgres provides a PostgreSQL driver backed by pgx. Importing it
// registers the "postgres" driver.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
)

// DriverName is the registry name of this driver
const DriverName = "postgres"

// DefaultPort is used when the configuration omits one
const DefaultPort = 5432

func init() {
	driver.Register(driver.Info{
		Name:        DriverName,
		Description: "PostgreSQL over the pgx native protocol",
		DefaultPort: DefaultPort,
	}, New)
}

// Connector dials PostgreSQL connections
type Connector struct {
	config *pgx.ConnConfig
	logger *zap.Logger
}

// New creates a Connector from cfg. A DSN (URL or keyword/value form) takes
// precedence over the discrete host, port and credential fields.
func New(cfg *config.ConnectionConfig) (driver.Connector, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = BuildURL(cfg)
	}

	pgcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse postgres connection string")
	}
	if cfg.ConnectTimeout > 0 {
		pgcfg.ConnectTimeout = cfg.ConnectTimeout
	}

	return &Connector{
		config: pgcfg,
		logger: logger.Component("postgres_driver"),
	}, nil
}

// BuildURL renders the discrete connection fields as a postgres:// URL.
// Params become query parameters (sslmode, application_name, ...).
func BuildURL(cfg *config.ConnectionConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Address(DefaultPort),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.Database != "" {
		u.Path = "/" + cfg.Database
	}

	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Connect implements driver.Connector
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, c.config.Copy())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres").
			WithDetail("host", c.config.Host)
	}

	c.logger.Debug("postgres connection established",
		zap.String("host", c.config.Host),
		zap.Uint16("port", c.config.Port),
		zap.String("database", c.config.Database))

	return &Conn{conn: conn}, nil
}

// Conn is a single pgx connection
type Conn struct {
	conn  *pgx.Conn
	stmts atomic.Int64
}

// Query implements driver.Conn
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*driver.Result, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres query failed")
	}
	return collect(rows)
}

// Prepare implements driver.Conn. Statements are named server-side and
// deallocated on Close.
func (c *Conn) Prepare(ctx context.Context, query string) (driver.Stmt, error) {
	name := fmt.Sprintf("connpool_stmt_%d", c.stmts.Add(1))
	if _, err := c.conn.Prepare(ctx, name, query); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres prepare failed")
	}
	return &Stmt{conn: c.conn, name: name}, nil
}

// Close implements driver.Conn
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Stmt is a prepared statement on one connection
type Stmt struct {
	conn *pgx.Conn
	name string
}

// Exec implements driver.Stmt
func (s *Stmt) Exec(ctx context.Context, args ...any) (*driver.Result, error) {
	rows, err := s.conn.Query(ctx, s.name, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres statement failed")
	}
	return collect(rows)
}

// Close implements driver.Stmt
func (s *Stmt) Close(ctx context.Context) error {
	return s.conn.Deallocate(ctx, s.name)
}

func collect(rows pgx.Rows) (*driver.Result, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &driver.Result{Columns: make([]string, len(fields))}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read postgres row")
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres query failed")
	}

	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}
