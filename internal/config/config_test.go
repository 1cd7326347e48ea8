package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w24fs/internal/types"
)

func TestDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	v.Set("node.home", "/srv/home")

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 8888, c.Node.Port)
	assert.Equal(t, 5*time.Second, c.Mirrors.DialTimeout)

	nc := c.NodeConfig()
	assert.Equal(t, types.RolePrimary, nc.Role)
	assert.Equal(t, filepath.Join("/srv/home", "w24project"), nc.WorkDir)
	assert.Equal(t, "127.0.0.1:8889", nc.Mirror1)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  role: mirror
  port: 8890
  home: /data/m2
  workdir: /tmp/m2work
mirrors:
  dial_timeout: 2s
`), 0o644))
	t.Setenv("W24_METRICS_ADDR", ":9100")

	v, err := New(path)
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "mirror", c.Node.Role)
	assert.Equal(t, 8890, c.Node.Port)
	assert.Equal(t, "/tmp/m2work", c.NodeConfig().WorkDir)
	assert.Equal(t, 2*time.Second, c.Mirrors.DialTimeout)
	assert.Equal(t, ":9100", c.Metrics.Addr)
}

func TestValidate(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	v.Set("node.home", "/h")
	v.Set("node.role", "replica")
	_, err = Load(v)
	assert.ErrorContains(t, err, "node.role")

	v.Set("node.role", "primary")
	v.Set("mirrors.mirror2", "")
	_, err = Load(v)
	assert.ErrorContains(t, err, "mirror2")

	v.Set("node.role", "mirror")
	_, err = Load(v)
	assert.NoError(t, err, "mirrors do not need peers")

	v.Set("node.port", 70000)
	_, err = Load(v)
	assert.ErrorContains(t, err, "port")
}

func TestMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
