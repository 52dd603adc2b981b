package tdb

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tdbgo/pkg/attrs"
	"github.com/iamNilotpal/tdbgo/pkg/options"
)

// TestActiveLockAllowsConcurrentOpenersAcrossProcesses exercises the
// AddrActive fix directly: a separate OS process opens the database and
// holds its handle open, then this process opens the same file. Before
// the fix, AddrActive was taken exclusively for a handle's whole
// lifetime, so this Open would block on the agent indefinitely; it must
// now return quickly since the lock is shared.
func TestActiveLockAllowsConcurrentOpenersAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross-active.tdb")

	h0, err := Open(path, true, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	require.NoError(t, h0.Close())

	a := startAgent(t, "hold-active", path)
	line := a.readLine(t)
	require.Equal(t, "ready", strings.TrimSpace(line))

	done := make(chan error, 1)
	go func() {
		h, err := Open(path, false, false, 0o600, nil, options.NewDefaultOptions())
		if err != nil {
			done <- err
			return
		}
		done <- h.Close()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Open blocked on a concurrent opener's active lock, expected it to be shared")
	}
}

// TestFirstOpenerSignalIsCrossProcess exercises the registry replacement
// directly: after this process creates the database and closes it again,
// an external agent process opens it first and must observe itself as the
// first opener; this process then opens the same file and must observe
// that it is NOT the first opener, even though its own process-local
// registry has never seen this file before. A process-local registry
// alone cannot make this distinction.
func TestFirstOpenerSignalIsCrossProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross-first.tdb")

	h0, err := Open(path, true, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	require.NoError(t, h0.Close())

	a := startAgent(t, "open-and-report-first", path)
	line := strings.TrimSpace(a.readLine(t))
	require.Equal(t, "first", line, "the agent opened an already-created file before anyone else; it should be first")

	var sawHook bool
	hook := attrs.OpenHook(func() error {
		sawHook = true
		return nil
	})
	h1, err := Open(path, true, false, 0o600, attrs.List{hook}, options.NewDefaultOptions())
	require.NoError(t, err)
	require.NoError(t, h1.Close())
	require.False(t, sawHook, "this process's own registry has never seen the file, but the agent already opened it first")
}
