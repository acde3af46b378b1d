package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, 2000, cfg.Engine.PollIntervalMs)
	require.Equal(t, 15, cfg.Engine.MaxPollAttempts)
	require.Equal(t, 4, cfg.Evaluation.MaxConcurrentTestCases)
	require.Equal(t, 128000, cfg.Evaluation.MemoryLimitKB)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_BASE_URL", "http://judge0.local:2358/")
	t.Setenv("EVAL_MAX_CONCURRENCY", "8")
	t.Setenv("EVAL_CPU_TIME_LIMIT", "1.5")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("ENGINE_MAX_POLL_ATTEMPTS", "not-a-number")

	cfg := LoadConfig()

	require.Equal(t, "http://judge0.local:2358", cfg.Engine.BaseURL)
	require.Equal(t, 8, cfg.Evaluation.MaxConcurrentTestCases)
	require.Equal(t, 1.5, cfg.Evaluation.CPUTimeLimitSeconds)
	require.True(t, cfg.Database.UseSSL)
	require.Equal(t, 15, cfg.Engine.MaxPollAttempts)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge.toml")
	data := []byte(`
server_port = 9090

[engine]
base_url = "http://engine:2358"
poll_interval_ms = 500

[evaluation]
max_concurrent_testcases = 2
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("ENGINE_POLL_INTERVAL_MS", "250")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.ServerPort)
	require.Equal(t, "http://engine:2358", cfg.Engine.BaseURL)
	require.Equal(t, 250, cfg.Engine.PollIntervalMs)
	require.Equal(t, 2, cfg.Evaluation.MaxConcurrentTestCases)
	require.Equal(t, 15, cfg.Engine.MaxPollAttempts)
}
