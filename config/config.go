// Package config loads the daemon's JSON configuration file: defaults
// first, then file overrides, then validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
)

// operationConfigJSON mirrors clockcfg.OperationConfig with
// JSON-friendly, human-readable duration fields.
type operationConfigJSON struct {
	TimeoutSeconds    int `json:"timeout_seconds"`
	MaxRetries        int `json:"max_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`
}

// AppConfig is the daemon's top-level configuration, loaded from JSON and
// converted into a *clockcfg.ConfigStore for the core components.
type AppConfig struct {
	DBPath                    string                                   `json:"db_path"`
	HTTPAddr                  string                                   `json:"http_addr"`
	PoolSize                  int                                      `json:"pool_size"`
	TickIntervalSeconds       int                                      `json:"tick_interval_seconds"`
	MaxExecutionsPerMinute    int                                      `json:"max_executions_per_minute"`
	HardWallClockCeilingSecs  int                                      `json:"hard_wall_clock_ceiling_seconds"`
	ShutdownGraceSeconds      int                                      `json:"shutdown_grace_seconds"`
	PerOLTLockTimeoutSeconds  int                                      `json:"per_olt_lock_timeout_seconds"`
	BurstSmoothWindowSeconds  int                                      `json:"burst_smooth_window_seconds"`
	BurstSmoothHysteresisSecs int                                      `json:"burst_smooth_hysteresis_seconds"`
	QueueCapacityFactor       int                                      `json:"queue_capacity_factor"`
	Operations                map[string]operationConfigJSON           `json:"operations"`
	ExecutionRetention        string                                   `json:"execution_retention"`
}

// Default returns an AppConfig with every field set to its documented
// default.
func Default() AppConfig {
	return AppConfig{
		DBPath:                    "pollerd.db",
		HTTPAddr:                  ":8090",
		PoolSize:                  10,
		TickIntervalSeconds:       30,
		MaxExecutionsPerMinute:    6,
		HardWallClockCeilingSecs:  180,
		ShutdownGraceSeconds:      30,
		PerOLTLockTimeoutSeconds:  60,
		BurstSmoothWindowSeconds:  180,
		BurstSmoothHysteresisSecs: 30,
		QueueCapacityFactor:       4,
		ExecutionRetention:        "168h",
		Operations: map[string]operationConfigJSON{
			"discovery": {TimeoutSeconds: 10, MaxRetries: 0, RetryDelaySeconds: 0},
			"get":       {TimeoutSeconds: 5, MaxRetries: 2, RetryDelaySeconds: 120},
			"walk":      {TimeoutSeconds: 15, MaxRetries: 2, RetryDelaySeconds: 120},
			"table":     {TimeoutSeconds: 20, MaxRetries: 2, RetryDelaySeconds: 120},
			"bulk":      {TimeoutSeconds: 20, MaxRetries: 2, RetryDelaySeconds: 120},
		},
	}
}

// Load reads and parses the JSON file at path, applying defaults for any
// field absent from the file (a field present with a zero value keeps that
// zero), then validates the result. An empty path or a missing file yields
// the defaults unvalidated.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	loaded := Default()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := loaded.validate(); err != nil {
		return AppConfig{}, err
	}
	return loaded, nil
}

func (c AppConfig) validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be >= 0")
	}
	if c.MaxExecutionsPerMinute <= 0 {
		return fmt.Errorf("max_executions_per_minute must be > 0")
	}
	if c.TickIntervalSeconds <= 0 {
		return fmt.Errorf("tick_interval_seconds must be > 0")
	}
	return nil
}

// ExecutionRetentionDuration parses ExecutionRetention, defaulting to
// 7 days if unset or unparsable.
func (c AppConfig) ExecutionRetentionDuration() time.Duration {
	if c.ExecutionRetention == "" {
		return 7 * 24 * time.Hour
	}
	d, err := time.ParseDuration(c.ExecutionRetention)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// ToConfigStore converts the loaded JSON configuration into the
// *clockcfg.ConfigStore every core component is constructed with.
func (c AppConfig) ToConfigStore() *clockcfg.ConfigStore {
	cs := clockcfg.DefaultConfigStore()
	cs.MaxExecutionsPerMinute = c.MaxExecutionsPerMinute
	cs.PoolSize = c.PoolSize
	cs.TickInterval = time.Duration(c.TickIntervalSeconds) * time.Second
	cs.HardWallClockCeiling = time.Duration(c.HardWallClockCeilingSecs) * time.Second
	cs.ShutdownGrace = time.Duration(c.ShutdownGraceSeconds) * time.Second
	cs.PerOLTLockTimeout = time.Duration(c.PerOLTLockTimeoutSeconds) * time.Second
	cs.BurstSmoothWindow = time.Duration(c.BurstSmoothWindowSeconds) * time.Second
	cs.BurstSmoothHysteresis = time.Duration(c.BurstSmoothHysteresisSecs) * time.Second
	cs.QueueCapacityFactor = c.QueueCapacityFactor

	for opKey, oc := range c.Operations {
		cs.SetOperationConfig(domain.OperationType(opKey), clockcfg.OperationConfig{
			Timeout:           time.Duration(oc.TimeoutSeconds) * time.Second,
			MaxRetries:        oc.MaxRetries,
			RetryDelaySeconds: oc.RetryDelaySeconds,
		})
	}
	return cs
}
