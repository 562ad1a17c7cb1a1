package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/tilecache/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "tilecache.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg := config.NewDefault()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, "64MB", cfg.Cache.Capacity)
	assert.NoError(t, cfg.Validate())

	_, err = execute(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: 8MB\n  threshold: 0.5\n"), 0600))

	out, err := execute(t, "--config", path, "--log-level", "debug", "config", "show")
	require.NoError(t, err)

	var shown config.Configuration
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "8MB", shown.Cache.Capacity)
	assert.Equal(t, 0.5, shown.Cache.Threshold)
	assert.Equal(t, "debug", shown.Global.LogLevel)
}

func TestConfigShowInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  threshold: 3\n"), 0600))

	_, err := execute(t, "--config", path, "config", "show")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show")
	assert.Error(t, err)
}

func TestSoak(t *testing.T) {
	out, err := execute(t,
		"--log-level", "error",
		"soak",
		"--duration", "200ms",
		"--workers", "2",
		"--owners", "2",
		"--grid", "3",
		"--tile-size", "1KB",
		"--capacity", "4KB",
		"--release-every", "50ms",
		"--write-ratio", "0.5",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "lookups")
	assert.Contains(t, out, "hit rate")
	assert.Contains(t, out, "memory")
}

func TestSoakRejectsBadOptions(t *testing.T) {
	_, err := execute(t, "--log-level", "error", "soak", "--duration", "10ms", "--workers", "0")
	assert.Error(t, err)

	_, err = execute(t, "--log-level", "error", "soak", "--duration", "10ms", "--tile-size", "2B")
	assert.Error(t, err)
}
