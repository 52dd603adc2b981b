package tdb

import (
	"os"
	"time"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/freelist"
	"github.com/iamNilotpal/tdbgo/internal/hashindex"
	"github.com/iamNilotpal/tdbgo/internal/txlog"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"github.com/iamNilotpal/tdbgo/pkg/options"
	"github.com/iamNilotpal/tdbgo/pkg/snapname"
)

// Repack rewrites every live record into a freshly built copy of the
// database, eliminating fragmentation and collapsing any sublevel chains
// back down to the minimum depth their current record count needs. It
// holds the whole-database lock for its entire duration since nothing
// else may observe a half-rewritten file.
func (h *Handle) Repack() error {
	if h.readOnly {
		return errors.NewReadOnlyError("repack")
	}

	if err := h.LockAll(true, true); err != nil {
		return err
	}
	defer h.UnlockAll(true)

	scratchPath := snapname.Generate(h.path, time.Now().UnixNano())
	scratch, err := fileio.Open(scratchPath, true, false, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		_ = scratch.Close()
		_ = os.Remove(scratchPath)
	}()

	if _, err := scratch.Expand(dataStart); err != nil {
		return err
	}

	header, err := readHeader(h.file, h.path)
	if err != nil {
		return err
	}
	if err := writeHeader(scratch, header); err != nil {
		return err
	}

	scratchFree := freelist.New(scratch, h.locks, options.DefaultFreeTableCount, 64)
	scratchIdx, err := hashindex.Open(scratch, scratchFree, h.locks, h.hashFn, header.seed, hashindex.Config{
		HashBits:     uint(header.hashBits),
		GroupBits:    uint(header.groupBits),
		SublevelBits: uint(header.sublevelBits),
	}, 0)
	if err != nil {
		return err
	}

	err = h.index.Traverse(func(hash, recOffset uint64) error {
		_, key, data, err := h.readRecord(recOffset)
		if err != nil {
			return err
		}
		needed := h.spanSize(uint64(len(key)), uint64(len(data)), 0)
		newOffset, err := scratchFree.Alloc(needed)
		if err != nil {
			return err
		}
		if header.version == 1 {
			if err := writeUsedRecordV1To(scratch, newOffset, key, data, 0); err != nil {
				return err
			}
		} else if err := writeUsedRecordTo(scratch, newOffset, key, data, 0, hash); err != nil {
			return err
		}
		return scratchIdx.Insert(hash, newOffset)
	})
	if err != nil {
		return err
	}

	header.topOffset = scratchIdx.TopOffset()
	if err := writeHeader(scratch, header); err != nil {
		return err
	}
	if err := scratch.Sync(); err != nil {
		return err
	}

	if err := scratch.Close(); err != nil {
		return err
	}
	if err := h.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(scratchPath, h.path); err != nil {
		return err
	}

	reopened, err := fileio.Open(h.path, false, false, 0o600)
	if err != nil {
		return err
	}
	h.file = reopened

	free := freelist.New(h.file, h.locks, options.DefaultFreeTableCount, 64)
	idx, err := hashindex.Open(h.file, free, h.locks, h.hashFn, header.seed, hashindex.Config{
		HashBits:     uint(header.hashBits),
		GroupBits:    uint(header.groupBits),
		SublevelBits: uint(header.sublevelBits),
	}, header.topOffset)
	if err != nil {
		return err
	}
	h.free = free
	h.index = idx
	h.log = txlog.New(h.file, h.locks, headerSize, recoveryAreaSize)

	return nil
}
