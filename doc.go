// Package connpool is a bounded, blocking pool of database connections.
//
// A pool never opens more than its configured capacity of physical
// connections. Callers that find every connection leased block until one is
// released, their context ends, or the pool closes. Connections are opened
// lazily, reused most-recently-released first, and handed out as leases that
// give exclusive use of one connection until released.
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/ajitpratap0/connpool/pkg/config"
//	    "github.com/ajitpratap0/connpool/pkg/driver"
//	    "github.com/ajitpratap0/connpool/pkg/pool"
//	    _ "github.com/ajitpratap0/connpool/pkg/driver/mysql"
//	)
//
//	cfg, _ := config.LoadFile("pool.yaml")
//	connector, _ := driver.Open(&cfg.Connection)
//	p, _ := pool.New(cfg.Pool, connector)
//	defer p.Close(context.Background())
//
//	err := p.With(ctx, func(l *pool.Lease) error {
//	    _, err := l.Query(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", 10, 7)
//	    return err
//	})
//
// # Key Packages
//
//	pkg/pool          - Pool and Lease
//	pkg/driver        - Conn and Connector contracts, driver registry
//	pkg/driver/mysql  - MySQL wire protocol driver (go-mysql)
//	pkg/driver/postgres - PostgreSQL driver (pgx)
//	pkg/driver/sqlconn  - adapter for database/sql drivers (go-sql-driver/mysql)
//	pkg/config        - YAML configuration with ${VAR_NAME} substitution
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus collectors for pool statistics
//	pkg/observability - OpenTelemetry tracer setup
//
// # Command Line
//
// cmd/connpool runs single queries and load tests through a pool:
//
//	connpool drivers
//	connpool query --config pool.yaml "SELECT 1"
//	connpool bench --config pool.yaml --workers 32 --duration 30s --metrics-addr :9090 "SELECT 1"
//
// Settings are read from the YAML file, then CONNPOOL_* environment
// variables (a .env file is loaded if present), then flags.
package connpool
