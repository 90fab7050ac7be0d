package config

import (
	"net"
	"strconv"
	"time"
)

// ConnectionConfig contains the parameters a driver needs to open one
// physical connection. Either DSN or the discrete fields may be used; a
// non-empty DSN takes precedence in every driver.
type ConnectionConfig struct {
	// Driver selects the registered driver (e.g., "mysql", "postgres")
	Driver string `yaml:"driver" json:"driver"`

	// DSN is a driver-native connection string
	DSN string `yaml:"dsn" json:"dsn"`

	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	// Params are driver-specific options (charset, sslmode, ...)
	Params map[string]string `yaml:"params" json:"params"`

	// ConnectTimeout bounds dialing a single connection
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// NewConnectionConfig returns connection defaults for the given driver.
func NewConnectionConfig(driver string) *ConnectionConfig {
	return &ConnectionConfig{
		Driver:         driver,
		Host:           "127.0.0.1",
		Params:         make(map[string]string),
		ConnectTimeout: 10 * time.Second,
	}
}

// Address joins Host and Port. When Port is zero, defaultPort is used.
func (c *ConnectionConfig) Address(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Param returns a driver parameter or the fallback when unset.
func (c *ConnectionConfig) Param(key, fallback string) string {
	if v, ok := c.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// HasDSN returns true if a raw connection string was configured
func (c *ConnectionConfig) HasDSN() bool {
	return c.DSN != ""
}
