package spider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCache_saveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	d := NewDiskCache(dir, 24*time.Hour)
	at := time.Now().Add(-time.Hour).Truncate(time.Second)
	r := newRecord(validJAR(1), "https://mirror.example/spider.jar", true, at, 2)
	require.NoError(t, d.Save(r))

	got, ok := d.Load()
	require.True(t, ok)
	assert.Equal(t, r.Binary, got.Binary)
	assert.Equal(t, r.Checksum, got.Checksum)
	assert.Equal(t, r.OriginURL, got.OriginURL)
	assert.True(t, got.Succeeded)
	assert.True(t, got.Cached)
	assert.Equal(t, at.Unix(), got.FetchedAt.Unix())
	assert.Equal(t, len(r.Binary), got.SizeBytes)

	raw, err := os.ReadFile(filepath.Join(dir, "spider.json"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"checksum", "originURL", "succeeded", "fetchedAtUnixSeconds", "sizeBytes"} {
		assert.Contains(t, m, k)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestDiskCache_missing(t *testing.T) {
	d := NewDiskCache(t.TempDir(), time.Hour)
	_, ok := d.Load()
	assert.False(t, ok)
}

func TestDiskCache_expired(t *testing.T) {
	d := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, d.Save(newRecord(validJAR(1), "u", true, time.Now().Add(-2*time.Hour), 1)))
	_, ok := d.Load()
	assert.False(t, ok)
}

func TestDiskCache_tamperedBinary(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskCache(dir, time.Hour)
	require.NoError(t, d.Save(newRecord(validJAR(1), "u", true, time.Now(), 1)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spider.jar"), validJAR(9), 0o644))
	_, ok := d.Load()
	assert.False(t, ok)
}

func TestDiskCache_corruptMetadata(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskCache(dir, time.Hour)
	require.NoError(t, d.Save(newRecord(validJAR(1), "u", true, time.Now(), 1)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spider.json"), []byte("{not json"), 0o644))
	_, ok := d.Load()
	assert.False(t, ok)
}

func TestDiskCache_saveWithoutBinary(t *testing.T) {
	d := NewDiskCache(t.TempDir(), time.Hour)
	assert.Error(t, d.Save(Record{OriginURL: "u"}))
}
