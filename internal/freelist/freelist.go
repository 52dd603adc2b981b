// Package freelist implements the free-space manager: a size-class
// bucket allocator over the database file, geometrically spaced so a
// bucket search is O(1) expected, with coalescing of adjacent free
// regions and multiple independent free tables to spread lock contention
// across concurrent writers.
package freelist

import (
	"math/bits"
	"sync"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/format"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

// Spacing is K, the number of buckets per power-of-two size doubling.
// Bigger K means tighter size classes (less internal fragmentation) at
// the cost of more buckets to search when coalescing creates an
// unusually large free region.
const Spacing = 4

// BucketOf maps a size to its size class:
// ilog2(size)*K + interpolate(size within its power-of-two range).
func BucketOf(size uint64) int {
	if size == 0 {
		return 0
	}
	lg := bits.Len64(size) - 1
	lowerPow2 := uint64(1) << uint(lg)
	upperPow2 := lowerPow2 << 1
	frac := float64(size-lowerPow2) / float64(upperPow2-lowerPow2)
	interp := int(frac * Spacing)
	if interp >= Spacing {
		interp = Spacing - 1
	}
	return lg*Spacing + interp
}

// record is one entry on a bucket's free list, mirroring the on-disk
// layout: a v2 header tagged MagicFree followed by a next-pointer union
// over the record body.
type record struct {
	offset uint64
	size   uint64
	next   uint64
}

// Table is one free table: an array of bucket head-offsets plus the
// chain-walking logic to allocate from or return to it. Multiple tables
// let independent writers pick different tables to reduce lock
// contention on the hot path.
type Table struct {
	mu      sync.Mutex
	index   int
	buckets []uint64 // bucket -> offset of first free record, 0 if empty
}

// Manager owns every free table for one open handle.
type Manager struct {
	file   *fileio.File
	locks  *lockmgr.Manager
	tables []*Table
	next   int // round-robin table picker
	mu     sync.Mutex
}

// New creates a free-space manager with tableCount independent tables,
// each sized to cover size classes up to maxBucket.
func New(file *fileio.File, locks *lockmgr.Manager, tableCount, maxBucket int) *Manager {
	tables := make([]*Table, tableCount)
	for i := range tables {
		tables[i] = &Table{index: i, buckets: make([]uint64, maxBucket)}
	}
	return &Manager{file: file, locks: locks, tables: tables}
}

// pickTable round-robins across tables to spread contention.
func (m *Manager) pickTable() *Table {
	m.mu.Lock()
	t := m.tables[m.next%len(m.tables)]
	m.next++
	m.mu.Unlock()
	return t
}

// Alloc finds a free region of at least size bytes, preferring an exact
// or near-exact bucket match before falling through to larger buckets
// (first-fit within the smallest sufficient size class), and splits off
// any excess into a new free record. It returns the region's offset and
// expands the file via fileio if no free table holds anything big enough.
func (m *Manager) Alloc(size uint64) (uint64, error) {
	want := BucketOf(size)

	for attempt := 0; attempt < 2; attempt++ {
		for _, t := range m.tables {
			off, ok, err := m.lockedTake(t, want, size)
			if err != nil {
				return 0, err
			}
			if ok {
				return off, nil
			}
		}
		if attempt == 0 {
			if err := m.expand(size); err != nil {
				return 0, err
			}
		}
	}

	return 0, errors.NewOOMError(int64(size))
}

// lockedTake holds t's cross-process free-table lock for the duration of
// a take, so two processes racing Store/Delete against the same free
// table can't unlink/insert out from under each other, per the lock plan's
// free-bucket lock.
func (m *Manager) lockedTake(t *Table, want int, size uint64) (uint64, bool, error) {
	idx := lockmgr.FreeIndex(t.index)
	if err := m.locks.Lock(lockmgr.AddrFreeBucket, idx, true, true); err != nil {
		return 0, false, err
	}
	defer m.locks.Unlock(lockmgr.AddrFreeBucket, idx, true)

	off, ok := t.take(m.file, want, size)
	return off, ok, nil
}

// take searches table t for a free record of at least size bytes in
// bucket classes want and above, removing it from the free list (and
// re-inserting any leftover tail as a new, smaller free record).
func (t *Table) take(file *fileio.File, want int, size uint64) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for b := want; b < len(t.buckets); b++ {
		offset := t.buckets[b]
		var prev uint64
		for offset != 0 {
			rec, err := readRecord(file, offset)
			if err != nil {
				return 0, false
			}
			if rec.size >= size {
				t.unlink(file, b, prev, offset, rec)
				if leftover := rec.size - size; leftover >= freeRecordSize+format.FooterSize {
					t.insertAt(file, rec.offset+size, leftover)
				} else {
					size = rec.size // absorb the sliver rather than leak it
				}
				return offset, true
			}
			prev = offset
			offset = rec.next
		}
	}
	return 0, false
}

func (t *Table) unlink(file *fileio.File, bucket int, prev, offset uint64, rec record) {
	if prev == 0 {
		t.buckets[bucket] = rec.next
		return
	}
	prevRec, err := readRecord(file, prev)
	if err != nil {
		return
	}
	prevRec.next = rec.next
	_ = writeRecord(file, prevRec)
}

// insertAt adds a new free record of size bytes at offset to its size
// class's bucket list, at the head for O(1) insertion. It also stamps
// the trailing boundary-tag footer so Free can later find this record
// as a left neighbor of whatever gets allocated or freed right after it.
func (t *Table) insertAt(file *fileio.File, offset, size uint64) {
	b := BucketOf(size)
	if b >= len(t.buckets) {
		b = len(t.buckets) - 1
	}
	rec := record{offset: offset, size: size, next: t.buckets[b]}
	if writeRecord(file, rec) == nil {
		_ = writeFooter(file, offset, size)
		t.buckets[b] = offset
	}
}

func writeFooter(file *fileio.File, offset, size uint64) error {
	if size < format.FooterSize {
		return nil
	}
	buf := make([]byte, format.FooterSize)
	putBeUint64(buf, size)
	return file.WriteAt(buf, int64(offset+size-format.FooterSize))
}

// Free returns a region to the pool, first attempting to coalesce it with
// adjacent free regions on both sides so fragmentation doesn't accumulate
// under churn and no two free records ever sit next to each other. The
// left neighbor, if any, must be supplied by the caller (it already
// knows the record that used to sit there); the right neighbor is
// detected by probing the byte range immediately following this region
// for a free record's magic tag.
func (m *Manager) Free(offset, size uint64, leftNeighbor *uint64, leftNeighborSize uint64) error {
	t := m.pickTable()
	idx := lockmgr.FreeIndex(t.index)
	if err := m.locks.Lock(lockmgr.AddrFreeBucket, idx, true, true); err != nil {
		return err
	}
	defer m.locks.Unlock(lockmgr.AddrFreeBucket, idx, true)

	t.mu.Lock()
	defer t.mu.Unlock()

	if leftNeighbor != nil {
		if merged, ok := t.tryCoalesce(m.file, *leftNeighbor, leftNeighborSize, offset, size); ok {
			offset, size = *leftNeighbor, merged
		}
	}

	if merged, ok := t.tryCoalesceRight(m.file, offset, size); ok {
		size = merged
	}

	t.insertAt(m.file, offset, size)
	return nil
}

// FreeRecord describes one free-list entry as seen by a consistency walk:
// which table and bucket it was filed under, and its on-disk span.
type FreeRecord struct {
	Table  int
	Bucket int
	Offset uint64
	Size   uint64
}

// Walk invokes fn for every free record across every table, table by
// table, holding only that table's own mutex for the duration of its
// walk. Used by Check to verify free-space invariants rather than by any
// allocation path.
func (m *Manager) Walk(fn func(FreeRecord) error) error {
	for _, t := range m.tables {
		if err := t.walk(m.file, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) walk(file *fileio.File, fn func(FreeRecord) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for b, head := range t.buckets {
		offset := head
		for offset != 0 {
			rec, err := readRecord(file, offset)
			if err != nil {
				return err
			}
			if err := fn(FreeRecord{Table: t.index, Bucket: b, Offset: rec.offset, Size: rec.size}); err != nil {
				return err
			}
			offset = rec.next
		}
	}
	return nil
}

// tryCoalesce removes the free record at left (size leftSize) from its
// bucket if it immediately precedes [offset, offset+size), returning the
// merged span's size. The caller is responsible for reinserting the
// merged span; this only unlinks left.
func (t *Table) tryCoalesce(file *fileio.File, left, leftSize, offset, size uint64) (uint64, bool) {
	if left+leftSize != offset {
		return size, false
	}
	b := BucketOf(leftSize)
	if b >= len(t.buckets) {
		b = len(t.buckets) - 1
	}
	var prev uint64
	cur := t.buckets[b]
	for cur != 0 {
		rec, err := readRecord(file, cur)
		if err != nil {
			return size, false
		}
		if cur == left {
			t.unlink(file, b, prev, cur, rec)
			return leftSize + size, true
		}
		prev = cur
		cur = rec.next
	}
	return size, false
}

// tryCoalesceRight checks whether a free record already begins exactly at
// offset+size, the region immediately following the one being freed, and
// if so removes it from its bucket and returns the merged size. A read
// failure (most often because offset+size lands on live data or past the
// end of the file) just means there's nothing to merge with, not an
// error: the region being freed is returned to the pool either way.
func (t *Table) tryCoalesceRight(file *fileio.File, offset, size uint64) (uint64, bool) {
	rightOffset := offset + size
	rec, err := readRecord(file, rightOffset)
	if err != nil {
		return size, false
	}

	b := BucketOf(rec.size)
	if b >= len(t.buckets) {
		b = len(t.buckets) - 1
	}
	var prev uint64
	cur := t.buckets[b]
	for cur != 0 {
		curRec, err := readRecord(file, cur)
		if err != nil {
			return size, false
		}
		if cur == rightOffset {
			t.unlink(file, b, prev, cur, curRec)
			return size + rec.size, true
		}
		prev = cur
		cur = curRec.next
	}
	return size, false
}

// expand grows the backing file by at least size bytes and adds the new
// region as a free record, the fallback path when no existing free
// record is large enough.
func (m *Manager) expand(size uint64) error {
	slack := uint64(format.SizeV2) + format.FooterSize
	oldSize, err := m.file.Expand(m.file.Size() + int64(size+slack))
	_ = oldSize
	if err != nil {
		return err
	}
	t := m.pickTable()
	newOffset := uint64(m.file.Size()) - size - slack

	idx := lockmgr.FreeIndex(t.index)
	if err := m.locks.Lock(lockmgr.AddrFreeBucket, idx, true, true); err != nil {
		return err
	}
	defer m.locks.Unlock(lockmgr.AddrFreeBucket, idx, true)

	t.mu.Lock()
	t.insertAt(m.file, newOffset, size+slack)
	t.mu.Unlock()
	return nil
}

// freeRecordSize is the on-disk footprint of a free record: a v2 header
// plus an 8-byte next-pointer occupying the head of its free region.
const freeRecordSize = format.SizeV2 + 8

func readRecord(file *fileio.File, offset uint64) (record, error) {
	buf := make([]byte, freeRecordSize)
	if err := file.ReadAt(buf, int64(offset)); err != nil {
		return record{}, err
	}
	hdr := format.HeaderV2{MagicAndMeta: beUint64(buf[0:8]), KeyAndDataLen: beUint64(buf[8:16])}
	if hdr.Magic() != format.MagicFree {
		return record{}, errors.NewCorruptError(int64(offset), "expected free record magic")
	}
	next := beUint64(buf[16:24])
	return record{offset: offset, size: hdr.TotalLen(), next: next}, nil
}

func writeRecord(file *fileio.File, rec record) error {
	hdr := format.EncodeV2(format.MagicFree, 0, uint32(rec.size), 0, 0)
	buf := make([]byte, freeRecordSize)
	putBeUint64(buf[0:8], hdr.MagicAndMeta)
	putBeUint64(buf[8:16], hdr.KeyAndDataLen)
	putBeUint64(buf[16:24], rec.next)
	return file.WriteAt(buf, int64(rec.offset))
}

func beUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func putBeUint64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}
