package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
)

// Factory builds a Connector from connection parameters. Factories validate
// their parameters eagerly so configuration mistakes surface before the
// first Acquire.
type Factory func(cfg *config.ConnectionConfig) (Connector, error)

// Info describes a registered driver
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DefaultPort int    `json:"default_port,omitempty"`
}

// Registry manages driver registration and instantiation
type Registry struct {
	factories map[string]Factory
	infos     map[string]Info
	mu        sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new driver registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		infos:     make(map[string]Info),
	}
}

// Register registers a driver factory under info.Name
func (r *Registry) Register(info Info, factory Factory) error {
	if info.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "driver name is required")
	}
	if factory == nil {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("driver %s: factory is nil", info.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[info.Name]; exists {
		return errors.New(errors.ErrorTypeConflict, fmt.Sprintf("driver %s already registered", info.Name))
	}

	r.factories[info.Name] = factory
	r.infos[info.Name] = info
	logger.Component("driver_registry").Debug("driver registered", zap.String("name", info.Name))
	return nil
}

// Open builds a Connector for cfg.Driver
func (r *Registry) Open(cfg *config.ConnectionConfig) (Connector, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connection config is nil")
	}

	r.mu.RLock()
	factory, exists := r.factories[cfg.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("driver %q not registered", cfg.Driver)).
			WithDetail("available", r.Drivers())
	}

	connector, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to open driver %s", cfg.Driver))
	}

	return connector, nil
}

// Drivers returns the sorted names of registered drivers
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns metadata for a registered driver
func (r *Registry) Info(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[name]
	return info, ok
}

// Has checks if a driver is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Global registry functions

// Register registers a driver in the global registry. Drivers call it from
// init and panic on duplicates, mirroring database/sql.
func Register(info Info, factory Factory) {
	if err := globalRegistry.Register(info, factory); err != nil {
		panic(err)
	}
}

// Open builds a Connector from the global registry
func Open(cfg *config.ConnectionConfig) (Connector, error) {
	return globalRegistry.Open(cfg)
}

// Drivers returns registered drivers from the global registry
func Drivers() []string {
	return globalRegistry.Drivers()
}

// Lookup returns metadata for a driver in the global registry
func Lookup(name string) (Info, bool) {
	return globalRegistry.Info(name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
