package sqlconn

import (
	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
)

// MySQLDriverName is the registry name of the go-sql-driver backed driver
const MySQLDriverName = "mysql-dsn"

func init() {
	driver.Register(driver.Info{
		Name:        MySQLDriverName,
		Description: "MySQL through go-sql-driver/mysql, configured by DSN or fields",
		DefaultPort: 3306,
	}, NewMySQL)
}

// NewMySQL builds a go-sql-driver connector from cfg
func NewMySQL(cfg *config.ConnectionConfig) (driver.Connector, error) {
	mcfg, err := MySQLConfig(cfg)
	if err != nil {
		return nil, err
	}

	c, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql configuration")
	}
	return NewConnector(c), nil
}

// MySQLConfig translates cfg to a go-sql-driver configuration. A DSN is
// parsed as-is; otherwise the discrete fields are used over TCP.
func MySQLConfig(cfg *config.ConnectionConfig) (*mysql.Config, error) {
	if cfg.HasDSN() {
		mcfg, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse mysql dsn")
		}
		if mcfg.Timeout == 0 {
			mcfg.Timeout = cfg.ConnectTimeout
		}
		return mcfg, nil
	}

	mcfg := mysql.NewConfig()
	mcfg.User = cfg.User
	mcfg.Passwd = cfg.Password
	mcfg.Net = "tcp"
	mcfg.Addr = cfg.Address(3306)
	mcfg.DBName = cfg.Database
	mcfg.Timeout = cfg.ConnectTimeout
	if len(cfg.Params) > 0 {
		mcfg.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			mcfg.Params[k] = v
		}
	}
	return mcfg, nil
}
