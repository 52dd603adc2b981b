package hashindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/freelist"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/pkg/hashfn"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.tdb")
	f, err := fileio.Open(path, true, false, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	locks := lockmgr.New(f.Fd(), func(uintptr, bool, int64, int64, bool) error { return nil }, 0)
	free := freelist.New(f, locks, 1, 256)
	idx, err := Open(f, free, nil, hashfn.Default, 1, Config{HashBits: 4, GroupBits: 2, SublevelBits: 2}, 0)
	require.NoError(t, err)
	return idx
}

func TestInsertLookupRoundTrip(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.Insert(0x1234, 1000))
	require.NoError(t, idx.Insert(0x5678, 2000))

	off, ok, err := idx.Lookup(0x1234)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1000, off)

	off, ok, err = idx.Lookup(0x5678)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2000, off)
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	idx := newTestIndex(t)
	_, ok, err := idx.Lookup(0xDEAD)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertOverwritesExistingHash(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(0xAAAA, 111))
	require.NoError(t, idx.Insert(0xAAAA, 222))

	off, ok, err := idx.Lookup(0xAAAA)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 222, off)
}

func TestDeleteRemovesEntry(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(0x1111, 55))

	off, ok, err := idx.Delete(0x1111)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 55, off)

	_, ok, err = idx.Lookup(0x1111)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpandOnGroupOverflowPreservesAllEntries(t *testing.T) {
	idx := newTestIndex(t)

	// All six hashes share the same top-level group (high nibble 0x1), and
	// the next two bits spread them across distinct sublevel children so
	// overflowing the 4-slot group on the fifth insert triggers exactly
	// one expansion.
	hashes := []uint64{
		0x1000000000000001,
		0x1400000000000001,
		0x1800000000000001,
		0x1800000000000002,
		0x1C00000000000001,
		0x1000000000000002,
	}
	for i, h := range hashes {
		require.NoError(t, idx.Insert(h, uint64(i+1)*100))
	}

	for i, h := range hashes {
		off, ok, err := idx.Lookup(h)
		require.NoError(t, err)
		require.True(t, ok, "hash %x should still be found after sublevel expansion", h)
		require.EqualValues(t, (i+1)*100, off)
	}
}

func TestTraverseVisitsEveryInsertedEntry(t *testing.T) {
	idx := newTestIndex(t)
	want := map[uint64]uint64{0x10: 1, 0x20: 2, 0x30: 3}
	for h, off := range want {
		require.NoError(t, idx.Insert(h, off))
	}

	got := map[uint64]uint64{}
	err := idx.Traverse(func(hash, recOffset uint64) error {
		got[hash] = recOffset
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}
