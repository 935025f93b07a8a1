package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	in := `
aliases:
  backtrace: ["where"]
max-backtrace-depth: 10
pass-signals: []
show-disassembly: true
show-source: false
`
	c, err := readConfig(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"where"}, c.Aliases["backtrace"])
	assert.Equal(t, 10, c.BacktraceDepth())
	assert.Empty(t, c.PassSignalNames())
	assert.True(t, c.ShowDisassembly)
	assert.False(t, c.SourceEnabled())
}

func TestDefaults(t *testing.T) {
	var c *Config
	assert.Equal(t, defaultDepth, c.BacktraceDepth())
	assert.Equal(t, DefaultPassSignals, c.PassSignalNames())
	assert.True(t, c.SourceEnabled())
	assert.Equal(t, defaultCacheSize, c.SourceCache())

	c = &Config{}
	assert.Equal(t, defaultDepth, c.BacktraceDepth())
	assert.Equal(t, DefaultPassSignals, c.PassSignalNames())
}

func TestDefaultConfigParses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDefaultConfig(&buf))
	c, err := readConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultPassSignals, c.PassSignalNames())
	assert.False(t, c.ShowDisassembly)
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnv, dir)

	c := LoadConfig()
	require.NotNil(t, c)
	_, err := os.Stat(filepath.Join(dir, configFile))
	assert.NoError(t, err)

	assert.Equal(t, defaultDepth, c.BacktraceDepth())

	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte("max-backtrace-depth: 5\n"), 0o600))
	assert.Equal(t, 5, LoadConfig().BacktraceDepth())
}
