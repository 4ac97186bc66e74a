package isoworker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.MemoryLimitMB)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.False(t, cfg.Transpile)
	assert.Empty(t, cfg.SourceStorePath)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("ISOWORKER_MEMORY_LIMIT_MB", "64")
	t.Setenv("ISOWORKER_POOL_SIZE", "8")
	t.Setenv("ISOWORKER_TRANSPILE", "true")
	t.Setenv("ISOWORKER_SOURCE_STORE_PATH", "/tmp/scripts.db")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MemoryLimitMB)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.True(t, cfg.Transpile)
	assert.Equal(t, "/tmp/scripts.db", cfg.SourceStorePath)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("ISOWORKER_POOL_SIZE", "not-a-number")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestWithConfig_AppliesWorkerFields(t *testing.T) {
	w := newTestWorker(t, Handlers{}, WithConfig(Config{MemoryLimitMB: 64}))
	mustLoad(t, w, "cfg.js", "var ok = true;")

	hs := w.GetHeapStatistics()
	assert.Positive(t, hs.HeapSizeLimit)
	assert.LessOrEqual(t, hs.HeapSizeLimit, 64*1024*1024+16*1024*1024) // limit near the configured cap
}
