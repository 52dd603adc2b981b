package tdb

import "github.com/iamNilotpal/tdbgo/internal/lockmgr"

// ChainLock acquires the lock covering key's hash chain for external
// coordination across multiple related operations a caller wants to run
// as one atomic unit without paying for a full transaction.
func (h *Handle) ChainLock(key []byte, write, blocking bool) error {
	hash := h.hashFn(key, h.seed)
	groupIdx := hash >> (64 - h.indexHashBits())
	return h.locks.Lock(lockmgr.AddrChainBase, lockmgr.ChainIndex(groupIdx), write, blocking)
}

// ChainUnlock releases a lock acquired by ChainLock.
func (h *Handle) ChainUnlock(key []byte, write bool) error {
	hash := h.hashFn(key, h.seed)
	groupIdx := hash >> (64 - h.indexHashBits())
	return h.locks.Unlock(lockmgr.AddrChainBase, lockmgr.ChainIndex(groupIdx), write)
}

// LockAll acquires the whole-database allrecord lock, exclusive when
// write is true and shared otherwise. Fetch, Store, Delete and the other
// per-key operations take only their chain lock and do not check it, so
// holding it excludes other LockAll callers (including Repack) but does
// not block per-key reads or writes from other handles.
func (h *Handle) LockAll(write, blocking bool) error {
	return h.locks.Lock(lockmgr.AddrAllRecord, 0, write, blocking)
}

// UnlockAll releases the whole-database lock.
func (h *Handle) UnlockAll(write bool) error {
	return h.locks.Unlock(lockmgr.AddrAllRecord, 0, write)
}
