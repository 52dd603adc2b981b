package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestChainIndexWrapsWithinRange(t *testing.T) {
	idx := ChainIndex(1 << 40)
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx, chainCount)
}

func TestFreeIndexWrapsWithinRange(t *testing.T) {
	idx := FreeIndex(100)
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx, freeCount)
}

func TestAddressOrderingIsMonotonic(t *testing.T) {
	require.Less(t, rank(AddrOpen), rank(AddrActive))
	require.Less(t, rank(AddrActive), rank(AddrTransaction))
	require.Less(t, rank(AddrTransaction), rank(AddrAllRecord))
	require.Less(t, rank(AddrAllRecord), rank(AddrChainBase))
	require.Equal(t, rank(AddrChainBase), rank(AddrChainBase+5))
	require.Less(t, rank(AddrChainBase), rank(AddrFreeBucket))
}

func TestAddressString(t *testing.T) {
	require.Equal(t, "open", AddrOpen.String())
	require.Equal(t, "transaction", AddrTransaction.String())
}

func TestManagerReentrantLockNestsWithoutDeadlock(t *testing.T) {
	calls := 0
	tryLock := func(fd uintptr, writeLock bool, off, length int64, blocking bool) error {
		calls++
		return nil
	}
	m := New(0, tryLock, 0)

	require.NoError(t, m.Lock(AddrTransaction, 0, true, true))
	require.NoError(t, m.Lock(AddrTransaction, 0, true, true))
	require.Equal(t, 1, calls, "the underlying primitive should only be invoked once for a nested lock")

	require.NoError(t, m.Unlock(AddrTransaction, 0, true))
	require.NoError(t, m.Unlock(AddrTransaction, 0, true))
}

func TestManagerUnlockOfUnheldLockErrors(t *testing.T) {
	m := New(0, func(uintptr, bool, int64, int64, bool) error { return nil }, 0)
	err := m.Unlock(AddrActive, 0, true)
	require.Error(t, err)
}

func TestProbeAndHoldActiveReportsFirstOpenerOnEmptyLock(t *testing.T) {
	var calls []bool // records writeLock arg of each tryLock call
	tryLock := func(fd uintptr, writeLock bool, off, length int64, blocking bool) error {
		calls = append(calls, writeLock)
		return nil // exclusive probe always succeeds: nobody else holds it
	}
	m := New(0, tryLock, 0)

	first, err := m.ProbeAndHoldActive()
	require.NoError(t, err)
	require.True(t, first)
	require.Equal(t, []bool{true, false}, calls, "probe exclusive, then downgrade to shared")

	require.NoError(t, m.Unlock(AddrActive, 0, true))
}

func TestProbeAndHoldActiveFallsBackToSharedWhenAlreadyHeld(t *testing.T) {
	first := true
	tryLock := func(fd uintptr, writeLock bool, off, length int64, blocking bool) error {
		if first {
			first = false
			return unix.EAGAIN // another opener already holds it exclusively/shared
		}
		return nil // the blocking shared acquisition succeeds
	}
	m := New(0, tryLock, 0)

	isFirst, err := m.ProbeAndHoldActive()
	require.NoError(t, err)
	require.False(t, isFirst)

	require.NoError(t, m.Unlock(AddrActive, 0, true))
}
