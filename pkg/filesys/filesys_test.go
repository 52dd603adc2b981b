package filesys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateDirMakesNewDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "nested")
	require.NoError(t, CreateDir(dir, 0o755, false))

	ok, err := Exists(dir)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCreateDirRejectsExistingFileWhenNotForced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, WriteFile(path, 0o644, []byte("x")))

	err := CreateDir(path, 0o755, false)
	require.Error(t, err)
}

func TestExistsReportsFalseForMissingPath(t *testing.T) {
	ok, err := Exists(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteReadDeleteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, WriteFile(path, 0o644, []byte("hello")))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	require.NoError(t, DeleteFile(path))
	ok, err := Exists(path)
	require.NoError(t, err)
	require.False(t, ok)
}
