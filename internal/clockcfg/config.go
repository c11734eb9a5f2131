package clockcfg

import (
	"fmt"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

// OperationConfig holds the per-operation-type parameters: worker
// timeout, max retries, and retry delay. Keyed by the typed
// OperationType enum rather than a bare string lookup.
type OperationConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryDelaySeconds int
}

// ConfigStore holds all reloadable configuration. It is passed explicitly
// into component constructors instead of being read from a package-level
// singleton.
type ConfigStore struct {
	MaxExecutionsPerMinute int
	PoolSize               int
	TickInterval           time.Duration
	HardWallClockCeiling   time.Duration
	ShutdownGrace          time.Duration
	PerOLTLockTimeout      time.Duration
	BurstSmoothWindow      time.Duration
	BurstSmoothHysteresis  time.Duration
	QueueCapacityFactor    int // bounded FIFO capacity = factor * PoolSize

	operations map[domain.OperationType]OperationConfig
}

// DefaultConfigStore returns the documented defaults.
func DefaultConfigStore() *ConfigStore {
	cs := &ConfigStore{
		MaxExecutionsPerMinute: 6,
		PoolSize:               10,
		TickInterval:           30 * time.Second,
		HardWallClockCeiling:   180 * time.Second,
		ShutdownGrace:          30 * time.Second,
		PerOLTLockTimeout:      60 * time.Second,
		BurstSmoothWindow:      180 * time.Second,
		BurstSmoothHysteresis:  30 * time.Second,
		QueueCapacityFactor:    4,
		operations:             make(map[domain.OperationType]OperationConfig),
	}
	cs.operations[domain.OperationDiscovery] = OperationConfig{Timeout: 10 * time.Second, MaxRetries: 0, RetryDelaySeconds: 0}
	cs.operations[domain.OperationGet] = OperationConfig{Timeout: 5 * time.Second, MaxRetries: 2, RetryDelaySeconds: 120}
	cs.operations[domain.OperationWalk] = OperationConfig{Timeout: 15 * time.Second, MaxRetries: 2, RetryDelaySeconds: 120}
	cs.operations[domain.OperationTable] = OperationConfig{Timeout: 20 * time.Second, MaxRetries: 2, RetryDelaySeconds: 120}
	cs.operations[domain.OperationBulk] = OperationConfig{Timeout: 20 * time.Second, MaxRetries: 2, RetryDelaySeconds: 120}
	return cs
}

// OperationConfigFor returns the configuration for an operation type,
// falling back to a conservative default for unknown types.
func (cs *ConfigStore) OperationConfigFor(t domain.OperationType) OperationConfig {
	if cfg, ok := cs.operations[t]; ok {
		return cfg
	}
	return OperationConfig{Timeout: 10 * time.Second, MaxRetries: 1, RetryDelaySeconds: 120}
}

// SetOperationConfig installs or overrides the config for an operation
// type; the change takes effect at the next tick.
func (cs *ConfigStore) SetOperationConfig(t domain.OperationType, cfg OperationConfig) {
	cs.operations[t] = cfg
}

// Validate sanity-checks the store; called after loading from JSON.
func (cs *ConfigStore) Validate() error {
	if cs.PoolSize < 0 {
		return fmt.Errorf("pool size must be >= 0")
	}
	if cs.MaxExecutionsPerMinute <= 0 {
		return fmt.Errorf("max executions per minute must be > 0")
	}
	if cs.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be > 0")
	}
	return nil
}
