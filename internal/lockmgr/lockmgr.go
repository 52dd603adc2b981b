// Package lockmgr implements the multi-granularity advisory lock protocol:
// a fixed address plan of byte ranges within the database file, acquired
// in a strict order to prevent the classic lock-ordering deadlock between
// concurrent handles.
//
// Grounded on marmos91-dittofs's use of golang.org/x/sys/unix for
// POSIX-level file primitives; ccan/tdb2's tdb_lock equivalent
// (original_source) is the source of the address plan and the nonblocking-
// fails-fast, blocking-waits-with-timeout split.
package lockmgr

import (
	"errors"
	"sync"
	"time"

	tdberrors "github.com/iamNilotpal/tdbgo/pkg/errors"
	"golang.org/x/sys/unix"
)

// Address identifies one entry in the fixed lock plan.
type Address int

// chainCount and freeCount size the per-chain and per-free-table lock
// arrays. chainCount matches the default top-level group count
// (1<<DefaultHashBits), so each default group has an independent lock;
// freeCount matches the maximum number of free tables.
const (
	chainCount = 1 << 10
	freeCount  = 32
)

const (
	// AddrOpen serializes the "am I the first opener" check against
	// concurrent Open/Close from other processes.
	AddrOpen Address = iota
	// AddrActive is held shared for the lifetime of every open handle;
	// ProbeAndHoldActive's exclusive probe of it tells an opener whether
	// any other handle has the file open.
	AddrActive
	// AddrTransaction is the single mutual-exclusion lock between
	// concurrent transactions on one database.
	AddrTransaction
	// AddrAllRecord is acquired by LockAll/UnlockAll, covering the whole
	// record-address space as one range.
	AddrAllRecord
	// AddrChainBase is the address used for every per-hash-chain lock;
	// Lock(AddrChainBase, i, ...) locks chain i.
	AddrChainBase
)

// AddrFreeBucket is the address used for every per-free-table lock,
// positioned immediately after the chain array so the two ranges never
// collide. Lock(AddrFreeBucket, i, ...) locks free table i.
const AddrFreeBucket = AddrChainBase + chainCount

// planOffset maps a logical address to the byte offset fcntl locks on.
// The exact numeric values don't matter, since locks and data share no
// byte range lookup; only that every process that opens this file agrees
// on them, which a package-level constant table guarantees.
func planOffset(addr Address, index int) int64 {
	switch addr {
	case AddrOpen:
		return 0
	case AddrActive:
		return 8
	case AddrTransaction:
		return 16
	case AddrAllRecord:
		return 24
	case AddrFreeBucket:
		return 32 + int64(chainCount)*8 + int64(index)*8
	default: // AddrChainBase
		return 32 + int64(index)*8
	}
}

func (a Address) String() string {
	switch a {
	case AddrOpen:
		return "open"
	case AddrActive:
		return "active"
	case AddrTransaction:
		return "transaction"
	case AddrAllRecord:
		return "allrecord"
	case AddrFreeBucket:
		return "freebucket"
	default:
		return "chain"
	}
}

// order fixes the acquisition sequence every caller must respect: open,
// then active, then transaction, then allrecord, then the per-chain
// array, then the per-free-table array, each in ascending index.
// Violating this order across concurrently-held locks is how tdb1-era
// implementations deadlocked; this package makes that impossible by
// construction as long as callers only ever call Lock in increasing rank.
var order = map[Address]int{
	AddrOpen:        0,
	AddrActive:      1,
	AddrTransaction: 2,
	AddrAllRecord:   3,
	AddrChainBase:   4,
	AddrFreeBucket:  5,
}

func rank(addr Address) int {
	if addr == AddrFreeBucket {
		return order[AddrFreeBucket]
	}
	if addr >= AddrChainBase {
		return order[AddrChainBase]
	}
	return order[addr]
}

// TryLockFunc is the primitive Manager calls through, overridable via the
// FLOCK open attribute (pkg/attrs.Flock).
type TryLockFunc func(fd uintptr, writeLock bool, off, length int64, blocking bool) error

// Manager serializes lock acquisition for one open handle and enforces
// acquisition ordering across the held set.
type Manager struct {
	mu sync.Mutex

	fd      uintptr
	tryLock TryLockFunc
	timeout time.Duration

	held       map[key]int // nesting count per (address,index)
	maxHeldRank int
}

type key struct {
	addr  Address
	index int
}

// New creates a lock manager bound to fd. If tryLock is nil, the default
// fcntl-based implementation is used.
func New(fd uintptr, tryLock TryLockFunc, timeout time.Duration) *Manager {
	if tryLock == nil {
		tryLock = fcntlTryLock
	}
	return &Manager{fd: fd, tryLock: tryLock, timeout: timeout, held: make(map[key]int)}
}

// Lock acquires addr[index] for read or write, blocking if blocking is
// true (subject to the manager's configured timeout), or failing fast
// with ErrorCodeLock if not. Re-entrant: a second Lock on an
// already-held key just bumps the nesting count, the documented nesting
// support for the transaction and allrecord locks.
func (m *Manager) Lock(addr Address, index int, writeLock, blocking bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{addr, index}
	if n, ok := m.held[k]; ok {
		m.held[k] = n + 1
		return nil
	}

	if rank(addr) < m.maxHeldRank {
		return tdberrors.NewLockError(nil, tdberrors.ErrorCodeLock, "lock acquisition out of order").
			WithLock(addr.String()).WithDetail("index", index)
	}

	off := planOffset(addr, index)
	if err := m.acquire(off, writeLock, blocking); err != nil {
		return err
	}

	m.held[k] = 1
	if r := rank(addr); r > m.maxHeldRank {
		m.maxHeldRank = r
	}
	return nil
}

func (m *Manager) acquire(off int64, writeLock, blocking bool) error {
	if !blocking || m.timeout <= 0 {
		err := m.tryLock(m.fd, writeLock, off, 1, blocking)
		return classify(err, blocking)
	}

	deadline := time.Now().Add(m.timeout)
	for {
		err := m.tryLock(m.fd, writeLock, off, 1, false)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EACCES) {
			return classify(err, true)
		}
		if time.Now().After(deadline) {
			return tdberrors.NewLockError(err, tdberrors.ErrorCodeLock, "blocking lock timed out").
				WithBlocking(true)
		}
		time.Sleep(time.Millisecond)
	}
}

// ProbeAndHoldActive acquires the active lock and reports whether this
// opener is the only one currently holding it, anywhere: across this
// process and every other process with the file open. It works by first
// attempting a non-blocking exclusive lock; succeeding means no other
// opener holds even a shared lock yet, so the caller is free to run
// first-opener setup (replaying the recovery log, running the open
// hook). The lock is then downgraded to shared so later openers aren't
// blocked behind it. If the exclusive attempt fails because someone else
// already holds the lock, this call falls back to a normal blocking
// shared acquisition.
//
// Callers must hold AddrOpen across this call so the probe and the
// eventual acquisition are atomic with respect to other processes
// racing to open the same file.
func (m *Manager) ProbeAndHoldActive() (firstOpener bool, err error) {
	off := planOffset(AddrActive, 0)

	if probeErr := m.tryLock(m.fd, true, off, 1, false); probeErr == nil {
		firstOpener = true
		// Downgrade to shared: a lock conversion on the same fd and byte
		// range is atomic, so other processes never observe a gap where
		// nobody holds the active lock.
		if convErr := m.tryLock(m.fd, false, off, 1, false); convErr != nil {
			return true, tdberrors.NewLockError(convErr, tdberrors.ErrorCodeLock, "failed to downgrade active lock").
				WithLock(AddrActive.String())
		}
	} else if acqErr := m.acquire(off, false, true); acqErr != nil {
		return false, acqErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{AddrActive, 0}
	if n, ok := m.held[k]; ok {
		m.held[k] = n + 1
	} else {
		m.held[k] = 1
		if r := rank(AddrActive); r > m.maxHeldRank {
			m.maxHeldRank = r
		}
	}
	return firstOpener, nil
}

func classify(err error, blocking bool) error {
	if err == nil {
		return nil
	}
	return tdberrors.NewLockError(err, tdberrors.ErrorCodeLock, "lock acquisition failed").
		WithBlocking(blocking)
}

// Unlock releases one nesting level of addr[index]. Once the nesting
// count drops to zero the underlying fcntl lock is actually released.
func (m *Manager) Unlock(addr Address, index int, writeLock bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{addr, index}
	n, ok := m.held[k]
	if !ok {
		return tdberrors.NewLockError(nil, tdberrors.ErrorCodeLock, "unlock of a lock not held").
			WithLock(addr.String()).WithDetail("index", index)
	}
	if n > 1 {
		m.held[k] = n - 1
		return nil
	}

	off := planOffset(addr, index)
	delete(m.held, k)
	m.recomputeMaxRank()

	if err := unlockUnix(m.fd, off, 1); err != nil {
		return tdberrors.NewLockError(err, tdberrors.ErrorCodeLock, "unlock failed").
			WithLock(addr.String())
	}
	return nil
}

func (m *Manager) recomputeMaxRank() {
	max := 0
	for k := range m.held {
		if r := rank(k.addr); r > max {
			max = r
		}
	}
	m.maxHeldRank = max
}

// UnlockAll releases every lock this manager currently holds, regardless
// of nesting depth, for use on the Close error-unwind path where the
// caller aggregates failures with multierr rather than stopping at the
// first one.
func (m *Manager) UnlockAll() []error {
	m.mu.Lock()
	keys := make([]key, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	var errs []error
	for _, k := range keys {
		m.mu.Lock()
		m.held[k] = 1
		m.mu.Unlock()
		if err := m.Unlock(k.addr, k.index, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ChainIndex returns the lock-array index for a hash chain, derived from
// the group's top bits so neighboring groups spread across the chain
// array instead of colliding on one index.
func ChainIndex(group uint64) int {
	return int(group % uint64(chainCount))
}

// FreeIndex returns the lock-array index for a free-space table.
func FreeIndex(table int) int {
	return table % freeCount
}

func fcntlTryLock(fd uintptr, writeLock bool, off, length int64, blocking bool) error {
	lockType := int16(unix.F_RDLCK)
	if writeLock {
		lockType = unix.F_WRLCK
	}
	flock := unix.Flock_t{
		Type:   lockType,
		Whence: int16(unix.SEEK_SET),
		Start:  off,
		Len:    length,
	}
	cmd := unix.F_SETLK
	if blocking {
		cmd = unix.F_SETLKW
	}
	for {
		err := unix.FcntlFlock(fd, cmd, &flock)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func unlockUnix(fd uintptr, off, length int64) error {
	flock := unix.Flock_t{
		Type:   int16(unix.F_UNLCK),
		Whence: int16(unix.SEEK_SET),
		Start:  off,
		Len:    length,
	}
	return unix.FcntlFlock(fd, unix.F_SETLK, &flock)
}
