package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// SafetyYAMLConfig mirrors config/safety.yaml, the operator-tunable knobs
// for the C13 safety envelope that aren't worth round-tripping through
// individual env vars. internal/core applies IndexCount and
// MaintenanceWindow, and cmd/server's scheduler applies
// MaintenanceWindow. RateLimiting and StorageBudget are parsed but not
// applied: the envelope's rate limiter and storage budget use fixed
// values set in internal/core.
type SafetyYAMLConfig struct {
	RateLimiting      RateLimitingConfig           `yaml:"rate_limiting"`
	MaintenanceWindow MaintenanceWindowYAMLConfig  `yaml:"maintenance_window"`
	StorageBudget     StorageBudgetYAMLConfig      `yaml:"storage_budget"`
	IndexCount        IndexCountYAMLConfig         `yaml:"index_count"`
}

// IndexCountYAMLConfig caps how many auto-created indexes may exist per
// table and, optionally, per tenant (fuser stage 5, spec §4.9).
type IndexCountYAMLConfig struct {
	MaxPerTable  int            `yaml:"max_per_table"`
	MaxPerTenant map[string]int `yaml:"max_per_tenant"`
}

// RateLimitingConfig holds the C13 rate-limiter gate's configuration:
// a global default plus per-table overrides.
type RateLimitingConfig struct {
	Enabled           bool                           `yaml:"enabled"`
	CreationsPerHour  float64                        `yaml:"creations_per_hour"`
	BurstSize         int                            `yaml:"burst_size"`
	CleanupInterval   string                         `yaml:"cleanup_interval"`
	PerTable          map[string]TableLimitConfig    `yaml:"per_table"`
}

// TableLimitConfig overrides the global rate limit for one table.
type TableLimitConfig struct {
	CreationsPerHour float64 `yaml:"creations_per_hour"`
	BurstSize        int     `yaml:"burst_size"`
}

// MaintenanceWindowYAMLConfig describes the allowed daily window, in
// whole local hours [StartHour, EndHour), during which batch mode may
// issue CREATE INDEX.
type MaintenanceWindowYAMLConfig struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// StorageBudgetYAMLConfig caps projected index storage, globally and
// per tenant.
type StorageBudgetYAMLConfig struct {
	GlobalCapMB     float64            `yaml:"global_cap_mb"`
	PerTenantCapMB  map[string]float64 `yaml:"per_tenant_cap_mb"`
}

// LoadSafetyConfig loads the safety-envelope YAML configuration, falling
// back to conservative defaults when the file is absent.
func LoadSafetyConfig() (SafetyYAMLConfig, error) {
	configPath := os.Getenv("INDEXPILOT_SAFETY_CONFIG")
	if configPath == "" {
		configPath = "config/safety.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return SafetyYAMLConfig{
			RateLimiting: RateLimitingConfig{
				Enabled:          true,
				CreationsPerHour: 5,
				BurstSize:        1,
				CleanupInterval:  "5m",
				PerTable:         make(map[string]TableLimitConfig),
			},
			MaintenanceWindow: MaintenanceWindowYAMLConfig{
				StartHour: 2,
				EndHour:   6,
			},
			StorageBudget: StorageBudgetYAMLConfig{
				GlobalCapMB:    102400, // 100GB
				PerTenantCapMB: make(map[string]float64),
			},
			IndexCount: IndexCountYAMLConfig{
				MaxPerTable:  10,
				MaxPerTenant: make(map[string]int),
			},
		}, nil
	}

	var cfg SafetyYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SafetyYAMLConfig{}, fmt.Errorf("failed to parse safety.yaml: %w", err)
	}

	return cfg, nil
}

// ParseDuration parses a duration string, defaulting to 5 minutes if the
// string is empty or malformed.
func ParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
