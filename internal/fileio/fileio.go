// Package fileio implements the file I/O and mapping layer: growing the
// backing file, reading and writing at arbitrary offsets,
// and an optional mmap-backed read view.
//
// Every multi-byte field tdbgo writes goes through explicit big-endian
// encode/decode helpers in internal/format and pkg/tdb, so the on-disk
// layout is already host-independent; there is deliberately no runtime
// byte-swap path here; see DESIGN.md for why a CONVERT-style flag would
// have nothing to do.
package fileio

import (
	"io"
	"os"
	"sync"

	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"golang.org/x/sys/unix"
)

// GrowthFactor is how much headroom File.Expand requests beyond the exact
// size a caller asked for, amortizing the cost of repeated small grows.
const GrowthFactor = 1.25

// File wraps the single on-disk database file, tracking its current size
// so repeated Expand calls don't need to stat the file each time, and
// optionally an mmap'd read view for fast header/table access.
type File struct {
	mu sync.RWMutex

	f        *os.File
	path     string
	size     int64
	readOnly bool

	mapping []byte // nil unless mmap is active

	// writeIntercept and readOverlay redirect I/O through an active
	// transaction's overlay (internal/txlog) when set, so every
	// component sharing this *File automatically participates in the
	// transaction instead of writing straight through to disk.
	writeIntercept func(offset int64, data []byte) error
	readOverlay    func(offset int64, buf []byte) bool
}

// SetTransactionHooks installs the overlay functions an active
// transaction uses to intercept writes and serve read-your-own-write
// reads. Passing nil for either clears that hook.
func (fl *File) SetTransactionHooks(write func(offset int64, data []byte) error, read func(offset int64, buf []byte) bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.writeIntercept = write
	fl.readOverlay = read
}

// Open opens or creates the backing file at path. create and readOnly
// mirror the caller's requested open mode; perm is only used when create
// is true.
func Open(path string, create, readOnly bool, perm os.FileMode) (*File, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	if create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat database file").
			WithPath(path).WithDetail("operation", "stat")
	}

	return &File{f: f, path: path, size: info.Size(), readOnly: readOnly}, nil
}

// Path returns the path this file was opened from.
func (fl *File) Path() string { return fl.path }

// Size returns the file's current size in bytes.
func (fl *File) Size() int64 {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.size
}

// ReadAt reads len(buf) bytes starting at off. If a transaction overlay
// is active and holds a buffered write at exactly this offset and length,
// that buffered value is returned instead of the on-disk content.
func (fl *File) ReadAt(buf []byte, off int64) error {
	fl.mu.RLock()
	overlay := fl.readOverlay
	fl.mu.RUnlock()
	if overlay != nil && overlay(off, buf) {
		return nil
	}

	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if _, err := fl.f.ReadAt(buf, off); err != nil {
		if err == io.EOF {
			return errors.NewStorageError(err, errors.ErrorCodeCorrupt, "read past end of database file").
				WithPath(fl.path).WithOffset(off).WithLength(int64(len(buf)))
		}
		return errors.NewStorageError(err, errors.ErrorCodeIO, "read failed").
			WithPath(fl.path).WithOffset(off).WithLength(int64(len(buf)))
	}
	return nil
}

// WriteAt writes buf starting at off. It does not grow the file; callers
// must Expand first via the free-space manager's allocation path. If a
// transaction overlay is active, the write is redirected there instead
// of touching the file, so it only becomes durable at Commit.
func (fl *File) WriteAt(buf []byte, off int64) error {
	fl.mu.RLock()
	ro := fl.readOnly
	intercept := fl.writeIntercept
	fl.mu.RUnlock()
	if ro {
		return errors.NewLockError(nil, errors.ErrorCodeReadOnly, "write attempted on read-only handle").
			WithLock("file")
	}
	if intercept != nil {
		return intercept(off, buf)
	}
	if _, err := fl.f.WriteAt(buf, off); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "write failed").
			WithPath(fl.path).WithOffset(off).WithLength(int64(len(buf)))
	}
	return nil
}

// Expand grows the file so it is at least minSize bytes long, requesting
// GrowthFactor headroom beyond minSize (new size = minSize*GrowthFactor)
// to amortize future grows; the new size is not page-aligned. It returns
// the file's new size.
func (fl *File) Expand(minSize int64) (int64, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.size >= minSize {
		return fl.size, nil
	}
	if fl.readOnly {
		return 0, errors.NewLockError(nil, errors.ErrorCodeReadOnly, "expand attempted on read-only handle").
			WithLock("file")
	}

	target := int64(float64(minSize) * GrowthFactor)
	if target < minSize {
		target = minSize
	}

	if err := fl.f.Truncate(target); err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to grow database file").
			WithPath(fl.path).WithLength(target)
	}
	fl.size = target
	return fl.size, nil
}

// Sync flushes pending writes to stable storage, matching the point at
// which a transaction commit becomes durable.
func (fl *File) Sync() error {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if fl.readOnly {
		return nil
	}
	if err := fl.f.Sync(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "fsync failed").WithPath(fl.path)
	}
	return nil
}

// Close releases the file descriptor and any active mapping.
func (fl *File) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.mapping != nil {
		_ = unix.Munmap(fl.mapping)
		fl.mapping = nil
	}
	if err := fl.f.Close(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "close failed").WithPath(fl.path)
	}
	return nil
}

// Fd exposes the raw file descriptor for the lock manager's fcntl calls.
func (fl *File) Fd() uintptr { return fl.f.Fd() }

// Mmap establishes a read-only mapping of the whole file, refreshed by a
// call to Remap after any Expand. Mapping is advisory: every code path
// must still work correctly if Mmap is never called, falling back to
// ReadAt.
func (fl *File) Mmap() ([]byte, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.mapping != nil {
		_ = unix.Munmap(fl.mapping)
		fl.mapping = nil
	}
	if fl.size == 0 {
		return nil, nil
	}

	data, err := unix.Mmap(int(fl.f.Fd()), 0, int(fl.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "mmap failed").WithPath(fl.path)
	}
	fl.mapping = data
	return fl.mapping, nil
}

// Remap re-establishes the mapping after the file has grown. A no-op if
// Mmap was never called.
func (fl *File) Remap() error {
	fl.mu.RLock()
	active := fl.mapping != nil
	fl.mu.RUnlock()
	if !active {
		return nil
	}
	_, err := fl.Mmap()
	return err
}
