package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_CreateTempNaming(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)

	f, err := fs.CreateTemp("3135556", 2)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, "track_3135556_2.part"), f.Name())
}

func TestFileStorage_TempPerAttempt(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)

	first, err := fs.CreateTemp("7", 1)
	require.NoError(t, err)
	_, err = first.WriteString("partial data from a failed attempt")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A retry gets a fresh file, never the previous attempt's partial bytes.
	second, err := fs.CreateTemp("7", 2)
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.Name(), second.Name())

	info, err := os.Stat(second.Name())
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestFileStorage_Promote(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)

	tmp := filepath.Join(dir, "track_1_1.part")
	require.NoError(t, os.WriteFile(tmp, []byte("audio"), 0o644))

	final := filepath.Join(dir, "library", "Artist", "Album", "Song.mp3")
	require.NoError(t, fs.Promote(tmp, final))

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorage_PromoteMissingSource(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)

	err := fs.Promote(filepath.Join(dir, "missing.part"), filepath.Join(dir, "out.mp3"))
	assert.Error(t, err)
}

func TestFileStorage_RemoveTempIdempotent(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir)

	tmp := filepath.Join(dir, "track_9_1.part")
	require.NoError(t, os.WriteFile(tmp, nil, 0o644))

	fs.RemoveTemp(tmp)
	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))

	// Removing again must not panic or recreate anything.
	fs.RemoveTemp(tmp)
}
