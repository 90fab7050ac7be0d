// Package config provides the configuration system for connpool.
// A single Config value describes one pool: its capacity, how to reach the
// backend, and the ambient logging, metrics and tracing settings.
//
// The configuration is organized into logical sections:
//   - Pool: name and fixed capacity
//   - Connection: driver name and the parameters handed to it
//   - Logging: zap logger settings
//   - Metrics: Prometheus exposition
//   - Tracing: OpenTelemetry span export
//
// Example usage:
//
//	cfg := config.NewDefault()
//	cfg.Pool.Capacity = 8
//	cfg.Connection.Driver = "mysql"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
)

// Config is the top-level configuration of a pool and its surroundings.
type Config struct {
	// Pool sizing
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Connection parameters, opaque to the pool and consumed by the driver
	Connection ConnectionConfig `yaml:"connection" json:"connection"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Metrics configures Prometheus exposition
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry spans around acquisition
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// PoolConfig holds the immutable sizing of a pool.
type PoolConfig struct {
	// Name identifies the pool in logs, metrics and spans
	Name string `yaml:"name" json:"name"`
	// Capacity is the maximum number of connections the pool will ever create
	Capacity int `yaml:"capacity" json:"capacity"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes pool metrics over HTTP
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Namespace prefixes every metric name
	Namespace string `yaml:"namespace" json:"namespace"`
	// ListenAddr is the address the /metrics endpoint listens on
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled exports acquire spans
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ServiceName is the tracer name reported on spans
	ServiceName string `yaml:"service_name" json:"service_name"`
	// SamplingRate is the fraction of traces recorded, between 0 and 1
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	// Environment is attached to every span as deployment.environment
	Environment string `yaml:"environment" json:"environment"`
}

// NewDefault creates a Config with sensible defaults. The connection driver
// is left empty and must be set by the caller.
func NewDefault() *Config {
	return &Config{
		Pool: PoolConfig{
			Name:     "default",
			Capacity: 10,
		},
		Connection: *NewConnectionConfig(""),
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Namespace:  "connpool",
			ListenAddr: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "connpool",
			SamplingRate: 1.0,
			Environment:  "development",
		},
	}
}

// Validate checks the pool section. Connection parameters are validated by
// the selected driver when it is opened.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.Connection.Driver == "" {
		return errors.New(errors.ErrorTypeConfig, "connection.driver is required")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics.listen_addr is required when metrics are enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.Newf(errors.ErrorTypeConfig, "tracing.sampling_rate must be between 0 and 1, got %v", c.Tracing.SamplingRate)
	}
	return nil
}

// Validate rejects pools that could never serve a connection.
func (p *PoolConfig) Validate() error {
	if p.Capacity <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "pool.capacity must be positive, got %d", p.Capacity).
			WithDetail("capacity", p.Capacity)
	}
	return nil
}
