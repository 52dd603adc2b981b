// Package hashindex implements the hash index: a top-level table of
// groups, each holding a small number of direct key-to-record entries
// in-place, expanding in-place into a sublevel of child groups when a
// group overflows, recursively.
package hashindex

import (
	"sync"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/freelist"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"github.com/iamNilotpal/tdbgo/pkg/hashfn"
)

// slotSize is the on-disk footprint of one (hash, pointer) slot: the
// full 64-bit hash for final verification plus an 8-byte pointer, either
// to a record or, tagged, to a child node.
const slotSize = 16

const childTag = uint64(1) << 63

// Config bundles the sizing knobs HASH_BITS, GROUP_BITS, and
// SUBLEVEL_BITS.
type Config struct {
	HashBits     uint // bits of the hash used to pick a top-level group
	GroupBits    uint // log2 of a group's direct slot capacity
	SublevelBits uint // log2 of a sublevel's child-group fan-out
}

// Index is one open handle's view of the hash index.
type Index struct {
	mu sync.Mutex

	file  *fileio.File
	free  *freelist.Manager
	locks *lockmgr.Manager
	hash  hashfn.Func
	seed  uint64
	cfg   Config

	topOffset   uint64 // file offset of the top-level group-pointer array
	groupSize   int    // 1 << GroupBits, direct slots per group
	sublevelFan int    // 1 << SublevelBits, children per expanded group
}

// Open attaches a hash index view to an already-located top-level table.
// topOffset is read from the database header at Open time; a topOffset
// of 0 means the table hasn't been allocated yet and Open allocates a
// fresh, all-empty one.
func Open(file *fileio.File, free *freelist.Manager, locks *lockmgr.Manager, hash hashfn.Func, seed uint64, cfg Config, topOffset uint64) (*Index, error) {
	idx := &Index{
		file: file, free: free, locks: locks, hash: hash, seed: seed, cfg: cfg,
		groupSize:   1 << cfg.GroupBits,
		sublevelFan: 1 << cfg.SublevelBits,
		topOffset:   topOffset,
	}
	if idx.topOffset == 0 {
		off, err := idx.allocTopLevel()
		if err != nil {
			return nil, err
		}
		idx.topOffset = off
	}
	return idx, nil
}

// TopOffset returns the top-level table's file offset, for the caller to
// persist in the database header.
func (idx *Index) TopOffset() uint64 { return idx.topOffset }

func (idx *Index) topLevelCount() int { return 1 << idx.cfg.HashBits }

func (idx *Index) allocTopLevel() (uint64, error) {
	size := uint64(idx.topLevelCount()) * 8
	off, err := idx.free.Alloc(size)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	if err := idx.file.WriteAt(buf, int64(off)); err != nil {
		return 0, err
	}
	return off, nil
}

// groupIndex returns this key's top-level group index: the high
// HashBits bits of its hash.
func (idx *Index) groupIndex(hash uint64) uint64 {
	return hash >> (64 - idx.cfg.HashBits)
}

func (idx *Index) topSlotOffset(groupIdx uint64) int64 {
	return int64(idx.topOffset) + int64(groupIdx)*8
}

func (idx *Index) readTopPointer(groupIdx uint64) (uint64, error) {
	buf := make([]byte, 8)
	if err := idx.file.ReadAt(buf, idx.topSlotOffset(groupIdx)); err != nil {
		return 0, err
	}
	return beUint64(buf), nil
}

func (idx *Index) writeTopPointer(groupIdx, ptr uint64) error {
	buf := make([]byte, 8)
	putBeUint64(buf, ptr)
	return idx.file.WriteAt(buf, idx.topSlotOffset(groupIdx))
}

// node is a decoded in-memory view of one group's on-disk slot array,
// whether it's a leaf (direct entries) or has overflowed into a
// sublevel (child-group pointers tagged with childTag).
type node struct {
	offset uint64
	slots  []slot
}

type slot struct {
	hash uint64
	ptr  uint64
}

func (s slot) empty() bool    { return s.ptr == 0 }
func (s slot) isChild() bool  { return s.ptr&childTag != 0 }
func (s slot) childOff() uint64 { return s.ptr &^ childTag }

func (idx *Index) readNode(offset uint64, count int) (node, error) {
	buf := make([]byte, count*slotSize)
	if err := idx.file.ReadAt(buf, int64(offset)); err != nil {
		return node{}, err
	}
	slots := make([]slot, count)
	for i := range slots {
		slots[i] = slot{
			hash: beUint64(buf[i*slotSize : i*slotSize+8]),
			ptr:  beUint64(buf[i*slotSize+8 : i*slotSize+16]),
		}
	}
	return node{offset: offset, slots: slots}, nil
}

func (idx *Index) writeNode(n node) error {
	buf := make([]byte, len(n.slots)*slotSize)
	for i, s := range n.slots {
		putBeUint64(buf[i*slotSize:i*slotSize+8], s.hash)
		putBeUint64(buf[i*slotSize+8:i*slotSize+16], s.ptr)
	}
	return idx.file.WriteAt(buf, int64(n.offset))
}

func (idx *Index) allocGroup(count int) (uint64, error) {
	off, err := idx.free.Alloc(uint64(count * slotSize))
	if err != nil {
		return 0, err
	}
	n := node{offset: off, slots: make([]slot, count)}
	if err := idx.writeNode(n); err != nil {
		return 0, err
	}
	return off, nil
}

// Lookup finds the record offset stored for hash, descending through any
// sublevels. It returns (0, false, nil) if no entry matches.
func (idx *Index) Lookup(hash uint64) (uint64, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	groupIdx := idx.groupIndex(hash)
	groupOff, err := idx.readTopPointer(groupIdx)
	if err != nil {
		return 0, false, err
	}
	if groupOff == 0 {
		return 0, false, nil
	}

	depth := idx.cfg.HashBits
	for {
		n, err := idx.readNode(groupOff, idx.groupSize)
		if err != nil {
			return 0, false, err
		}
		leaf, childIdx := idx.classify(n, hash, depth)
		if leaf {
			for _, s := range n.slots {
				if !s.empty() && !s.isChild() && s.hash == hash {
					return s.ptr, true, nil
				}
			}
			return 0, false, nil
		}
		child := n.slots[childIdx]
		if child.empty() {
			return 0, false, nil
		}
		groupOff = child.childOff()
		depth += idx.cfg.SublevelBits
	}
}

// classify reports whether node n is still a leaf of direct entries, and
// if not, which of its sublevel child slots hash routes to next.
func (idx *Index) classify(n node, hash uint64, depth uint) (leaf bool, childIdx uint64) {
	for _, s := range n.slots {
		if !s.empty() && s.isChild() {
			shift := 64 - depth - idx.cfg.SublevelBits
			idx64 := (hash >> shift) & uint64(idx.sublevelFan-1)
			return false, idx64
		}
	}
	return true, 0
}

// Insert stores recOffset under hash, expanding the owning group into a
// sublevel (possibly recursively) if it is already full and the key
// isn't already present. Expansion happens in place, without relocating
// the rest of the table.
func (idx *Index) Insert(hash uint64, recOffset uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	groupIdx := idx.groupIndex(hash)
	groupOff, err := idx.readTopPointer(groupIdx)
	if err != nil {
		return err
	}
	if groupOff == 0 {
		groupOff, err = idx.allocGroup(idx.groupSize)
		if err != nil {
			return err
		}
		if err := idx.writeTopPointer(groupIdx, groupOff); err != nil {
			return err
		}
	}

	return idx.insertInto(groupOff, idx.cfg.HashBits, hash, recOffset)
}

func (idx *Index) insertInto(groupOff uint64, depth uint, hash, recOffset uint64) error {
	n, err := idx.readNode(groupOff, idx.groupSize)
	if err != nil {
		return err
	}

	leaf, childIdx := idx.classify(n, hash, depth)
	if !leaf {
		child := n.slots[childIdx]
		if child.empty() {
			childGroupOff, err := idx.allocGroup(idx.groupSize)
			if err != nil {
				return err
			}
			n.slots[childIdx] = slot{hash: 0, ptr: childGroupOff | childTag}
			if err := idx.writeNode(n); err != nil {
				return err
			}
			return idx.insertInto(childGroupOff, depth+idx.cfg.SublevelBits, hash, recOffset)
		}
		return idx.insertInto(child.childOff(), depth+idx.cfg.SublevelBits, hash, recOffset)
	}

	freeIdx := -1
	for i, s := range n.slots {
		if s.empty() {
			if freeIdx == -1 {
				freeIdx = i
			}
			continue
		}
		if s.hash == hash {
			n.slots[i].ptr = recOffset
			return idx.writeNode(n)
		}
	}
	if freeIdx != -1 {
		n.slots[freeIdx] = slot{hash: hash, ptr: recOffset}
		return idx.writeNode(n)
	}

	return idx.expand(n, depth, hash, recOffset)
}

// expand converts a full leaf group into a sublevel: it allocates
// sublevelFan child groups, rehashes every existing entry into the
// correct child by depth's next SublevelBits, then retries the caller's
// insert into the now-populated sublevel. A freshly created child that
// still can't hold two colliding entries (a hash collision run longer
// than the sublevel fan-out) recurses by calling expand again, which is
// how deep collision runs are handled without a special case.
func (idx *Index) expand(n node, depth uint, newHash, newRecOffset uint64) error {
	if depth+idx.cfg.SublevelBits > 64 {
		return errors.NewHashChainCorruptError(idx.groupIndex(newHash), int(depth)).
			WithOperation("expand")
	}

	children := make([]uint64, idx.sublevelFan)
	for i := range children {
		off, err := idx.allocGroup(idx.groupSize)
		if err != nil {
			return err
		}
		children[i] = off
	}

	shift := 64 - depth - idx.cfg.SublevelBits
	route := func(h uint64) uint64 { return (h >> shift) & uint64(idx.sublevelFan-1) }

	for _, s := range n.slots {
		if s.empty() || s.isChild() {
			continue
		}
		if err := idx.insertInto(children[route(s.hash)], depth+idx.cfg.SublevelBits, s.hash, s.ptr); err != nil {
			return err
		}
	}

	newSlots := make([]slot, idx.groupSize)
	for i := 0; i < idx.sublevelFan && i < idx.groupSize; i++ {
		newSlots[i] = slot{hash: 0, ptr: children[i] | childTag}
	}
	n.slots = newSlots
	if err := idx.writeNode(n); err != nil {
		return err
	}

	return idx.insertInto(children[route(newHash)], depth+idx.cfg.SublevelBits, newHash, newRecOffset)
}

// Delete removes the entry for hash, if present, returning the record
// offset it pointed to so the caller can free the record's storage via
// the record layer and free-space manager. It does not collapse an
// emptied sublevel back into a leaf;
// that is left as a Repack-time concern rather than an eager one,
// avoiding thrash under insert/delete churn.
func (idx *Index) Delete(hash uint64) (uint64, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	groupIdx := idx.groupIndex(hash)
	groupOff, err := idx.readTopPointer(groupIdx)
	if err != nil {
		return 0, false, err
	}
	if groupOff == 0 {
		return 0, false, nil
	}

	depth := idx.cfg.HashBits
	for {
		n, err := idx.readNode(groupOff, idx.groupSize)
		if err != nil {
			return 0, false, err
		}
		leaf, childIdx := idx.classify(n, hash, depth)
		if leaf {
			for i, s := range n.slots {
				if !s.empty() && !s.isChild() && s.hash == hash {
					recOffset := s.ptr
					n.slots[i] = slot{}
					return recOffset, true, idx.writeNode(n)
				}
			}
			return 0, false, nil
		}
		child := n.slots[childIdx]
		if child.empty() {
			return 0, false, nil
		}
		groupOff = child.childOff()
		depth += idx.cfg.SublevelBits
	}
}

// Traverse walks every live entry in hash order, calling fn with each
// entry's hash and record offset. Traverse holds no lock across calls to
// fn; the caller is responsible for whatever chain-lock discipline makes
// a concurrent delete safe during traversal.
func (idx *Index) Traverse(fn func(hash, recOffset uint64) error) error {
	count := idx.topLevelCount()
	for g := 0; g < count; g++ {
		idx.mu.Lock()
		groupOff, err := idx.readTopPointer(uint64(g))
		idx.mu.Unlock()
		if err != nil {
			return err
		}
		if groupOff == 0 {
			continue
		}
		if err := idx.walk(groupOff, fn); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) walk(groupOff uint64, fn func(hash, recOffset uint64) error) error {
	idx.mu.Lock()
	n, err := idx.readNode(groupOff, idx.groupSize)
	idx.mu.Unlock()
	if err != nil {
		return err
	}
	for _, s := range n.slots {
		if s.empty() {
			continue
		}
		if s.isChild() {
			if err := idx.walk(s.childOff(), fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(s.hash, s.ptr); err != nil {
			return err
		}
	}
	return nil
}

// Depth returns the number of sublevel expansions a given hash's chain
// has undergone.
func (idx *Index) Depth(hash uint64) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	groupIdx := idx.groupIndex(hash)
	groupOff, err := idx.readTopPointer(groupIdx)
	if err != nil {
		return 0, err
	}
	depth := idx.cfg.HashBits
	levels := 0
	for groupOff != 0 {
		n, err := idx.readNode(groupOff, idx.groupSize)
		if err != nil {
			return levels, err
		}
		leaf, childIdx := idx.classify(n, hash, depth)
		if leaf {
			return levels, nil
		}
		child := n.slots[childIdx]
		if child.empty() {
			return levels, nil
		}
		groupOff = child.childOff()
		depth += idx.cfg.SublevelBits
		levels++
	}
	return levels, nil
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
