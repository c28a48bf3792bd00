package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_WriteReadStat(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte(`{"mean":[0]}`)
	require.NoError(t, m.WriteFile("/stats/v1.json", data, 0o600))
	data[0] = 'X'

	got, err := m.ReadFile("/stats/./v1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"mean":[0]}`, string(got), "stored data must be isolated from the caller")

	got[0] = 'Y'
	again, _ := m.ReadFile("/stats/v1.json")
	assert.Equal(t, byte('{'), again[0], "returned data must be a copy")

	info, err := m.Stat("/stats/v1.json")
	require.NoError(t, err)
	assert.Equal(t, "v1.json", info.Name())
	assert.Equal(t, int64(12), info.Size())
	assert.Equal(t, os.FileMode(0o600), info.Mode())
	assert.False(t, info.IsDir())

	dir, err := m.Stat("/stats")
	require.NoError(t, err)
	assert.True(t, dir.IsDir(), "parent directory is implied by the write")
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()
	_, err := m.ReadFile("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Open("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Stat("/nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, m.Exists("/nope"))
}

func TestMemoryFileSystem_CreateAndOpen(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("/out/rows.csv")
	require.NoError(t, err)
	_, err = io.WriteString(w, "1,2,")
	require.NoError(t, err)
	_, err = io.WriteString(w, "3\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), fs.ErrClosed)

	f, err := m.Open("/out/rows.csv")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3\n", string(body))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size())
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll("/debug/run/a", 0o755))
	for _, p := range []string{"/debug", "/debug/run", "/debug/run/a"} {
		assert.True(t, m.Exists(p), p)
	}
	require.NoError(t, m.WriteFile("/debug/file", nil, 0o644))
	assert.Error(t, m.MkdirAll("/debug/file", 0o755))
	assert.Error(t, m.WriteFile("/debug/run", nil, 0o644))
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "f.txt")
	assert.False(t, fsys.Exists(path))
	require.NoError(t, fsys.WriteFile(path, []byte("hello"), 0o644))
	assert.True(t, fsys.Exists(path))

	got, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(body))

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())
}
