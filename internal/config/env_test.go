package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile_missing(t *testing.T) {
	err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent"))
	require.NoError(t, err, "missing file should return nil")
}

func TestLoadEnvFile_setsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOO=bar\n# comment\nBAZ=quux\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("FOO")
		os.Unsetenv("BAZ")
	})
	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "bar", os.Getenv("FOO"))
	require.Equal(t, "quux", os.Getenv("BAZ"))
}

func TestLoadEnvFile_unquote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(`X="hello world"`), 0644))
	t.Cleanup(func() { os.Unsetenv("X") })
	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "hello world", os.Getenv("X"))
}

func TestLoadEnvFile_overridesProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TVBOX_ADDR=:9999\n"), 0644))
	t.Setenv("TVBOX_ADDR", ":3000")
	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, ":9999", os.Getenv("TVBOX_ADDR"))
}
