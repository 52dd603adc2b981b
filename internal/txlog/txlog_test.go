package txlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
)

func newTestLog(t *testing.T) (*fileio.File, *Log) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txlog.tdb")
	f, err := fileio.Open(path, true, false, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	_, err = f.Expand(8192)
	require.NoError(t, err)

	locks := lockmgr.New(f.Fd(), func(uintptr, bool, int64, int64, bool) error { return nil }, 0)
	return f, New(f, locks, 0, 4096)
}

func TestCommitAppliesBufferedWrites(t *testing.T) {
	f, log := newTestLog(t)

	txn, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Write(4096, []byte("BBBBBBBB")))
	require.NoError(t, txn.PrepareCommit())
	require.NoError(t, txn.Commit())

	f.SetTransactionHooks(nil, nil)
	buf := make([]byte, 8)
	require.NoError(t, f.ReadAt(buf, 4096))
	require.Equal(t, "BBBBBBBB", string(buf))
	require.Equal(t, 0, log.Depth())
}

func TestCancelDiscardsBufferedWrites(t *testing.T) {
	f, log := newTestLog(t)
	require.NoError(t, f.WriteAt([]byte("AAAAAAAA"), 4096))

	txn, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Write(4096, []byte("BBBBBBBB")))
	require.NoError(t, txn.Cancel())

	f.SetTransactionHooks(nil, nil)
	buf := make([]byte, 8)
	require.NoError(t, f.ReadAt(buf, 4096))
	require.Equal(t, "AAAAAAAA", string(buf))
}

func TestNestedCancelFailsOuterCommit(t *testing.T) {
	f, log := newTestLog(t)
	require.NoError(t, f.WriteAt([]byte("AAAAAAAA"), 4096))

	outer, err := log.Begin()
	require.NoError(t, err)
	inner, err := log.Begin()
	require.NoError(t, err)
	require.Same(t, outer, inner, "a nested Begin must return the same Txn as the outer one")

	require.NoError(t, inner.Write(4096, []byte("BBBBBBBB")))
	require.NoError(t, inner.Cancel())
	require.Equal(t, 1, log.Depth(), "canceling the inner transaction should only drop depth by one")

	require.NoError(t, outer.Commit())

	f.SetTransactionHooks(nil, nil)
	buf := make([]byte, 8)
	require.NoError(t, f.ReadAt(buf, 4096))
	require.Equal(t, "AAAAAAAA", string(buf), "an outer commit over a failed inner transaction must not apply writes")
	require.Equal(t, 0, log.Depth())
}

func TestReplayOnOpenRestoresBeforeImage(t *testing.T) {
	f, log := newTestLog(t)
	require.NoError(t, f.WriteAt([]byte("AAAAAAAA"), 4096))

	txn, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Write(4096, []byte("BBBBBBBB")))
	require.NoError(t, txn.PrepareCommit())
	// Simulate a crash between PrepareCommit and Commit: the recovery
	// record is durable but the overlay was never applied or cleared.

	f.SetTransactionHooks(nil, nil)
	require.NoError(t, ReplayOnOpen(f, 0))

	buf := make([]byte, 8)
	require.NoError(t, f.ReadAt(buf, 4096))
	require.Equal(t, "AAAAAAAA", string(buf))
}

func TestPrepareCommitRejectsOversizedRecoveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txlog-small.tdb")
	f, err := fileio.Open(path, true, false, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	_, err = f.Expand(8192)
	require.NoError(t, err)

	locks := lockmgr.New(f.Fd(), func(uintptr, bool, int64, int64, bool) error { return nil }, 0)
	log := New(f, locks, 0, 32) // far too small for the write below

	txn, err := log.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Write(4096, make([]byte, 256)))

	err = txn.PrepareCommit()
	require.Error(t, err)
}
