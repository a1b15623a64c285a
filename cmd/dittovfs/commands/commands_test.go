package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
logging:
  level: error
  output: stderr
mounts:
  - mount_point: /
    backend: memory
    arguments: ["root"]
  - mount_point: /scratch
    backend: memory
    arguments: ["name=scratch", "capacity=2048"]
    quota: 1KiB
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dittovfs dev")
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestMountsCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "mounts", "--config", path, "-o", "json")
	require.NoError(t, err)

	var infos []mount.Info
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "/scratch/", infos[1].MountPoint)
	assert.Equal(t, "memory::scratch", infos[1].StorageID)
	assert.Equal(t, int64(1024), infos[1].FreeSpace)
	assert.Equal(t, int64(1024), infos[1].Quota)
	assert.Equal(t, int64(-1), infos[0].Quota)

	out, err = run(t, "mounts", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "MOUNT POINT")
	assert.Contains(t, out, "unlimited")
	assert.Contains(t, out, "1.0 KiB")
	assert.Contains(t, out, "unknown")
}

func TestResolveCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "resolve", "--config", path, "-o", "json", "/scratch/a/b.txt")
	require.NoError(t, err)

	var r resolution
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "/scratch/", r.MountPoint)
	assert.Equal(t, "a/b.txt", r.InternalPath)
	assert.Equal(t, "memory", r.Backend)

	_, err = run(t, "resolve", "--config", path)
	assert.Error(t, err)
}

func TestScanCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "scan", "--config", path, "-o", "yaml", "/scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "mount_point: /scratch/")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "mounts", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestBadOutputFormat(t *testing.T) {
	path := writeTestConfig(t)
	_, err := run(t, "mounts", "--config", path, "-o", "xml")
	assert.ErrorContains(t, err, "invalid output format")
}
