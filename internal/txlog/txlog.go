// Package txlog implements the transaction overlay and write-ahead
// recovery log: writes inside a transaction accumulate in an in-memory
// dirty-block map instead of touching the file directly; PrepareCommit
// serializes the blocks about to change, plus their before-images, into
// a single recovery record written and synced ahead of the real writes;
// Commit applies the overlay and invalidates the recovery record; and
// ReplayOnOpen restores a half-applied commit after a crash.
package txlog

import (
	"sort"
	"sync"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

// recoveryMagic tags a valid, not-yet-applied recovery record at
// recoveryOffset. Any other value there means no recovery is pending.
const recoveryMagic = 0x5444425F52454356 // "TDB_RECV" in ASCII-ish hex

// Log owns the single recovery-record slot for one database file and the
// nesting state for transactions on this handle.
type Log struct {
	mu sync.Mutex

	file           *fileio.File
	locks          *lockmgr.Manager
	recoveryOffset int64
	recoveryArea   int64

	depth   int // transaction nesting depth, 0 when none is open
	current *Txn
}

// New creates a transaction log bound to file, with its single recovery
// record slot at recoveryOffset (a fixed, pre-allocated location in the
// database header region so PrepareCommit never needs the free-space
// manager, which could itself be mid-transaction). recoveryArea bounds how
// many bytes that slot actually has; a transaction whose recovery record
// would overflow it fails instead of writing past the area into live data.
func New(file *fileio.File, locks *lockmgr.Manager, recoveryOffset int64, recoveryArea int64) *Log {
	return &Log{file: file, locks: locks, recoveryOffset: recoveryOffset, recoveryArea: recoveryArea}
}

// write is one buffered write inside a transaction's overlay: the
// before-image lets PrepareCommit build a recovery record, and the
// after-image (data) is what Commit eventually applies.
type write struct {
	offset int64
	before []byte
	after  []byte
}

// Txn is one (possibly nested) transaction. Nested transactions share
// the outer transaction's overlay and lock; only the outermost Commit or
// Cancel actually touches the file.
type Txn struct {
	log    *Log
	outer  bool
	writes map[int64]*write
	order  []int64 // insertion order, for deterministic recovery-record layout
	failed bool    // set once any inner transaction cancels; see Cancel
}

// Begin starts a transaction, blocking (per the configured lock timeout)
// until the transaction lock is free. A Begin while one is already open
// on this handle returns the existing Txn with depth incremented,
// matching ccan/tdb2's nested-transaction model: inner transactions
// don't get their own recovery record, they just extend the outer one.
func (l *Log) Begin() (*Txn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 {
		l.depth++
		return l.current, nil
	}

	if err := l.locks.Lock(lockmgr.AddrTransaction, 0, true, true); err != nil {
		return nil, err
	}

	txn := &Txn{log: l, outer: true, writes: make(map[int64]*write)}
	l.depth = 1
	l.current = txn
	l.file.SetTransactionHooks(txn.InterceptWrite, txn.InterceptRead)
	return txn, nil
}

// Depth returns the current transaction nesting depth, 0 if none is
// open, so a caller managing its own Txn reference across nested
// Begin/Commit pairs knows when the outermost transaction has actually
// closed.
func (l *Log) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Read returns the current value of the byte range [offset, offset+n),
// preferring an uncommitted overlay write over the on-disk content, so a
// transaction sees its own writes.
func (t *Txn) Read(offset int64, n int) ([]byte, error) {
	if w, ok := t.writes[offset]; ok && len(w.after) == n {
		out := make([]byte, n)
		copy(out, w.after)
		return out, nil
	}
	buf := make([]byte, n)
	if err := t.log.file.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write buffers data to be applied at offset when the transaction
// commits, recording the current on-disk content as the before-image for
// the eventual recovery record.
func (t *Txn) Write(offset int64, data []byte) error {
	if _, ok := t.writes[offset]; !ok {
		before := make([]byte, len(data))
		if err := t.log.file.ReadAt(before, offset); err != nil {
			return err
		}
		t.order = append(t.order, offset)
		t.writes[offset] = &write{offset: offset, before: before}
	}
	after := make([]byte, len(data))
	copy(after, data)
	t.writes[offset].after = after
	return nil
}

// InterceptWrite adapts Write to the signature fileio.File.
// SetTransactionHooks expects, so Begin's caller can wire every write
// through this transaction with one call.
func (t *Txn) InterceptWrite(offset int64, data []byte) error {
	return t.Write(offset, data)
}

// InterceptRead adapts Read to the signature fileio.File.
// SetTransactionHooks expects: it fills buf and returns true only when
// this transaction has buffered a same-length write at offset.
func (t *Txn) InterceptRead(offset int64, buf []byte) bool {
	w, ok := t.writes[offset]
	if !ok || len(w.after) != len(buf) {
		return false
	}
	copy(buf, w.after)
	return true
}

// PrepareCommit serializes every buffered write's before-image into the
// recovery record and syncs it to disk, so a crash between here and
// Commit's apply step can restore the pre-transaction state. Fails
// without writing anything if the record would overflow the fixed
// recovery area.
func (t *Txn) PrepareCommit() error {
	if t.log.depth > 1 {
		return nil // only the outermost commit writes a real recovery record
	}

	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })

	buf := make([]byte, 0, 64)
	buf = appendUint64(buf, recoveryMagic)
	buf = appendUint64(buf, uint64(len(t.order)))
	for _, off := range t.order {
		w := t.writes[off]
		buf = appendUint64(buf, uint64(w.offset))
		buf = appendUint64(buf, uint64(len(w.before)))
		buf = append(buf, w.before...)
	}

	if t.log.recoveryArea > 0 && int64(len(buf)) > t.log.recoveryArea {
		return errors.NewRecoveryError(nil, errors.ErrorCodeOOM, "transaction too large for the recovery area").
			WithRecoveryOffset(t.log.recoveryOffset).WithPhase("prepare").
			WithDetail("recovery_record_bytes", len(buf)).WithDetail("recovery_area_bytes", t.log.recoveryArea)
	}

	if err := t.directWrite(buf, t.log.recoveryOffset); err != nil {
		return errors.NewRecoveryError(err, errors.ErrorCodeIO, "failed to write recovery record").
			WithRecoveryOffset(t.log.recoveryOffset).WithPhase("prepare")
	}
	return t.log.file.Sync()
}

// directWrite bypasses this transaction's own overlay hooks for a write
// that must land on disk immediately (the recovery record itself, and
// its later invalidation) rather than being buffered as part of the
// transaction it belongs to.
func (t *Txn) directWrite(buf []byte, off int64) error {
	t.log.file.SetTransactionHooks(nil, nil)
	err := t.log.file.WriteAt(buf, off)
	t.log.file.SetTransactionHooks(t.InterceptWrite, t.InterceptRead)
	return err
}

// Commit applies every buffered write to the file, syncs, then
// invalidates the recovery record (also synced), making the transaction
// durable. Nested Commits just decrement the depth counter; only the
// outermost one touches the file.
func (t *Txn) Commit() error {
	t.log.mu.Lock()
	defer t.log.mu.Unlock()

	t.log.depth--
	if t.log.depth > 0 {
		return nil
	}
	defer func() {
		t.log.current = nil
	}()

	t.log.file.SetTransactionHooks(nil, nil)

	if t.failed {
		return t.cancelLocked()
	}

	for _, off := range t.order {
		w := t.writes[off]
		if err := t.log.file.WriteAt(w.after, off); err != nil {
			return errors.NewRecoveryError(err, errors.ErrorCodeIO, "failed to apply transaction writes").
				WithPhase("apply")
		}
	}
	if err := t.log.file.Sync(); err != nil {
		return err
	}

	if err := t.invalidateRecovery(); err != nil {
		return err
	}

	return t.log.locks.Unlock(lockmgr.AddrTransaction, 0, true)
}

// Cancel discards every buffered write without touching the file.
//
// Nested cancel semantics: canceling an inner transaction marks the
// whole stack failed; the outermost Commit then degrades to a Cancel
// rather than applying a partial write set. ccan/tdb2 takes the same
// position, because there is no way to discard only an inner
// transaction's writes once they've been merged into one shared overlay.
func (t *Txn) Cancel() error {
	t.log.mu.Lock()
	defer t.log.mu.Unlock()

	if t.log.depth > 1 {
		t.log.depth--
		t.log.current.failed = true
		return nil
	}

	defer func() {
		t.log.current = nil
	}()
	return t.cancelLocked()
}

func (t *Txn) cancelLocked() error {
	t.log.file.SetTransactionHooks(nil, nil)
	t.log.depth = 0
	t.writes = nil
	t.order = nil
	return t.log.locks.Unlock(lockmgr.AddrTransaction, 0, true)
}

func (t *Txn) invalidateRecovery() error {
	buf := make([]byte, 8)
	if err := t.log.file.WriteAt(buf, t.log.recoveryOffset); err != nil {
		return errors.NewRecoveryError(err, errors.ErrorCodeIO, "failed to invalidate recovery record").
			WithRecoveryOffset(t.log.recoveryOffset).WithPhase("invalidate")
	}
	return t.log.file.Sync()
}

// ReplayOnOpen inspects the recovery-record slot and, if it holds a
// valid unreplayed record (left behind by a crash between PrepareCommit
// and Commit's invalidation step), restores every recorded before-image
// and clears the record. It is a no-op on a cleanly closed database.
func ReplayOnOpen(file *fileio.File, recoveryOffset int64) error {
	header := make([]byte, 16)
	if err := file.ReadAt(header, recoveryOffset); err != nil {
		return err
	}
	magic := beUint64(header[0:8])
	if magic != recoveryMagic {
		return nil
	}
	count := beUint64(header[8:16])

	pos := recoveryOffset + 16
	for i := uint64(0); i < count; i++ {
		entryHeader := make([]byte, 16)
		if err := file.ReadAt(entryHeader, pos); err != nil {
			return err
		}
		offset := int64(beUint64(entryHeader[0:8]))
		length := beUint64(entryHeader[8:16])
		pos += 16

		before := make([]byte, length)
		if err := file.ReadAt(before, pos); err != nil {
			return err
		}
		pos += int64(length)

		if err := file.WriteAt(before, offset); err != nil {
			return errors.NewRecoveryError(err, errors.ErrorCodeIO, "failed to restore before-image during recovery").
				WithRecoveryOffset(offset).WithPhase("replay")
		}
	}

	if err := file.Sync(); err != nil {
		return err
	}

	clear := make([]byte, 8)
	if err := file.WriteAt(clear, recoveryOffset); err != nil {
		return err
	}
	return file.Sync()
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func beUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}
