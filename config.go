package isoworker

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds host-tunable settings for workers and pools.
type Config struct {
	MemoryLimitMB   int    `envconfig:"MEMORY_LIMIT_MB" default:"0"`    // per-worker isolate heap limit, 0 = engine default
	PoolSize        int    `envconfig:"POOL_SIZE" default:"4"`          // workers per pool
	Transpile       bool   `envconfig:"TRANSPILE" default:"false"`      // run scripts through the esbuild transform before loading
	SourceStorePath string `envconfig:"SOURCE_STORE_PATH" default:""`   // SQLite path for the script source store, empty = no store
}

// ConfigFromEnv loads Config from ISOWORKER_* environment variables,
// falling back to the struct defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("ISOWORKER", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}
	return cfg, nil
}
