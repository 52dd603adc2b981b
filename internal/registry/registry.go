// Package registry implements process-local open-handle reference
// counting: every Open of the same underlying file (identified by device
// and inode, not path, since two paths can name the same file via hard
// or symbolic links) shares a single refcount, so a process that opens
// the same database twice through different paths still knows when the
// last of its own handles closes.
//
// This registry is scoped to one process and cannot see handles opened
// by others; it is deliberately not used to decide whether this process
// is the database's first opener across process boundaries. That signal
// comes from the file's actual lock state instead (see
// internal/lockmgr's ProbeAndHoldActive), which every process observes
// consistently regardless of how many processes have the file open.
//
package registry

import (
	"os"
	"sync"
)

// Key identifies a file independent of the path used to open it.
type Key struct {
	Device uint64
	Inode  uint64
}

// KeyFor derives a Key from an open file's Stat result.
func KeyFor(info os.FileInfo) (Key, bool) {
	stat, ok := sysStat(info)
	if !ok {
		return Key{}, false
	}
	return stat, true
}

// entry tracks how many of this process's handles currently reference a
// file, so Acquire and Release can report the first and last handle this
// process holds on it. Whether an Open is the database's first opener
// across processes (the OPENHOOK attribute) is decided by the lock
// manager's active-lock probe, not by this count.
type entry struct {
	refCount int
}

// Registry is the process-wide table, safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// New creates an empty registry. tdbgo keeps exactly one of these at
// package scope (Global below), which pkg/tdb uses; tests construct their own
// to avoid cross-test interference.
func New() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Acquire registers a new handle on key, returning true if this is the
// first handle this process has opened on that file.
func (r *Registry) Acquire(key Key) (firstOpener bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		r.entries[key] = &entry{refCount: 1}
		return true
	}
	e.refCount++
	return false
}

// Release unregisters a handle on key, returning true if this was the
// last handle this process held on that file.
func (r *Registry) Release(key Key) (lastCloser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return true
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(r.entries, key)
		return true
	}
	return false
}

// Count reports how many handles this process currently holds on key,
// for diagnostics and tests.
func (r *Registry) Count(key Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refCount
	}
	return 0
}

// Global is the single registry shared by every Open call in this
// process.
var Global = New()
