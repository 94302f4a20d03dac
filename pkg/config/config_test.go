package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
backends:
  - id: local-a
    kind: local
    host: http://localhost:11434
    model: llama3
    context_tokens: 8192
  - id: cloud-a
    kind: cloud
    model: claude-sonnet
    context_tokens: 200000
rate_limits:
  - resource: local-a
    capacity: 10
    period: 1m
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultHealthCheckInterval, cfg.HealthCheckInterval)
	require.Equal(t, DefaultRateLimitQueueSize, cfg.RateLimits[0].MaxQueueSize)
}

func TestLoadRejectsMissingBackends(t *testing.T) {
	path := writeTempConfig(t, "rate_limits: []\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateBackendID(t *testing.T) {
	dup := `
backends:
  - id: a
    kind: local
    host: http://localhost:1
    model: m
    context_tokens: 1000
  - id: a
    kind: local
    host: http://localhost:2
    model: m
    context_tokens: 1000
`
	path := writeTempConfig(t, dup)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsLocalBackendWithoutHost(t *testing.T) {
	bad := `
backends:
  - id: a
    kind: local
    model: m
    context_tokens: 1000
`
	path := writeTempConfig(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestBackendByID(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	b, ok := cfg.BackendByID("cloud-a")
	require.True(t, ok)
	require.Equal(t, "claude-sonnet", b.Model)

	_, ok = cfg.BackendByID("missing")
	require.False(t, ok)
}
