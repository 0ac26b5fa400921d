package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, uint32(DefaultInitialPages), c.Heap.InitialPages)
	assert.Equal(t, uint32(DefaultMaxPages), c.Heap.MaxPages)
	assert.Equal(t, uint32(DefaultGCThreshold), c.Heap.GCThreshold)
	assert.Equal(t, DefaultRootTable, c.Runtime.RootTable)
	assert.False(t, c.Runtime.DebugChecks)
	assert.Equal(t, os.Stdout, c.Stdout)
	require.NoError(t, c.Validate())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
[heap]
initial-pages = 4
max-pages = 64

[runtime]
debug-checks = true
root-table = "my_refs"

[log]
level = "debug"
development = true
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.Heap.InitialPages)
	assert.Equal(t, uint32(64), c.Heap.MaxPages)
	assert.Equal(t, uint32(DefaultGCThreshold), c.Heap.GCThreshold)
	assert.True(t, c.Runtime.DebugChecks)
	assert.Equal(t, "my_refs", c.Runtime.RootTable)
	assert.Equal(t, "debug", c.Log.Level)

	logger, err := c.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[heap\n"},
		{"unknown key", "[heap]\npages = 3\n"},
		{"initial too small", "[heap]\ninitial-pages = 1\n"},
		{"max below initial", "[heap]\ninitial-pages = 32\nmax-pages = 16\n"},
		{"max too large", "[heap]\nmax-pages = 70000\n"},
		{"tiny threshold", "[heap]\ngc-threshold = 10\n"},
		{"bad root name", "[runtime]\nroot-table = \"not a name\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
		})
	}
}

func TestMaxFollowsLargeInitial(t *testing.T) {
	c, err := Parse([]byte("[heap]\ninitial-pages = 2048\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), c.Heap.MaxPages)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[heap]\nmax-pages = 128\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), c.Heap.MaxPages)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}
