package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	Reset()
	// Empty path triggers viper's search-path discovery, which tolerates a
	// missing protohackd.toml; an explicit path to a file that doesn't
	// exist is treated as a real error instead (see Load).
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Speed.Addr)
	assert.Equal(t, ":9002", cfg.LRCP.Addr)
	assert.Equal(t, ":9003", cfg.Pest.Addr)
	assert.Equal(t, "pestcontrol.protohackers.com:20547", cfg.Pest.UpstreamAddr)
	assert.Equal(t, ":9004", cfg.JobCentre.Addr)
	assert.Equal(t, "slate", cfg.Log.Theme)
}

func TestLoadReadsFileOverrides(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "protohackd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[speed]
addr = ":7001"

[pest]
upstream_addr = "upstream.example:1234"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Speed.Addr)
	assert.Equal(t, "upstream.example:1234", cfg.Pest.UpstreamAddr)
	assert.Equal(t, ":9002", cfg.LRCP.Addr) // untouched key keeps its default
}

func TestLoadCachesUntilReset(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "protohackd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[speed]\naddr = \":1111\"\n"), 0o644))

	first, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1111", first.Speed.Addr)

	require.NoError(t, os.WriteFile(path, []byte("[speed]\naddr = \":2222\"\n"), 0o644))
	second, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1111", second.Speed.Addr, "Load must return the cached config until Reset")

	Reset()
	third, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":2222", third.Speed.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	Reset()
	t.Setenv("PROTOHACKD_SPEED_ADDR", ":5555")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.Speed.Addr)
}
