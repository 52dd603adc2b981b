package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireReportsFirstOpener(t *testing.T) {
	r := New()
	k := Key{Device: 1, Inode: 1}

	require.True(t, r.Acquire(k))
	require.False(t, r.Acquire(k))
	require.Equal(t, 2, r.Count(k))
}

func TestReleaseReportsLastCloser(t *testing.T) {
	r := New()
	k := Key{Device: 1, Inode: 2}

	r.Acquire(k)
	r.Acquire(k)

	require.False(t, r.Release(k))
	require.True(t, r.Release(k))
	require.Equal(t, 0, r.Count(k))
}

func TestReleaseOfUnknownKeyIsLastCloser(t *testing.T) {
	r := New()
	require.True(t, r.Release(Key{Device: 9, Inode: 9}))
}

func TestKeyForDistinguishesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a")
	pathB := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(pathA, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(pathB, []byte("b"), 0o600))

	infoA, err := os.Stat(pathA)
	require.NoError(t, err)
	infoB, err := os.Stat(pathB)
	require.NoError(t, err)

	keyA, ok := KeyFor(infoA)
	require.True(t, ok)
	keyB, ok := KeyFor(infoB)
	require.True(t, ok)
	require.NotEqual(t, keyA, keyB)
}

func TestKeyForAgreesForHardLinkedPaths(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "original")
	linked := filepath.Join(dir, "linked")
	require.NoError(t, os.WriteFile(original, []byte("x"), 0o600))
	require.NoError(t, os.Link(original, linked))

	infoOriginal, err := os.Stat(original)
	require.NoError(t, err)
	infoLinked, err := os.Stat(linked)
	require.NoError(t, err)

	keyOriginal, ok := KeyFor(infoOriginal)
	require.True(t, ok)
	keyLinked, ok := KeyFor(infoLinked)
	require.True(t, ok)
	require.Equal(t, keyOriginal, keyLinked, "hard-linked paths must resolve to the same device+inode key")
}
