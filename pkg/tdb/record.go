package tdb

import (
	"bytes"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/format"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

// StoreMode selects Store's existence semantics: unconditional replace,
// insert-only, or modify-only.
type StoreMode int

const (
	// StoreReplace writes the key unconditionally, whether or not it
	// already exists.
	StoreReplace StoreMode = iota
	// StoreInsert fails with EXISTS if the key is already present.
	StoreInsert
	// StoreModify fails with NOEXIST if the key is not already present.
	StoreModify
)

func (h *Handle) chainLockFor(key []byte, hash uint64, write bool) (unlock func() error, err error) {
	groupIdx := hash >> (64 - h.indexHashBits())
	idx := lockmgr.ChainIndex(groupIdx)
	if err := h.locks.Lock(lockmgr.AddrChainBase, idx, write, true); err != nil {
		return nil, err
	}
	return func() error { return h.locks.Unlock(lockmgr.AddrChainBase, idx, write) }, nil
}

func (h *Handle) indexHashBits() uint {
	header, err := readHeader(h.file, h.path)
	if err != nil {
		return 10
	}
	return uint(header.hashBits)
}

// recordHeaderSize reports the on-disk header size this handle's file
// format version uses, so Store/Delete/Repack size arithmetic doesn't
// assume v2 unconditionally.
func (h *Handle) recordHeaderSize() int64 {
	if h.headerVersion() == 1 {
		return format.SizeV1
	}
	return format.SizeV2
}

// spanSize is the full on-disk footprint of a record, header through
// trailing boundary-tag footer, the unit Alloc/Free work in.
func (h *Handle) spanSize(keyLen, dataLen, extra uint64) uint64 {
	return uint64(h.recordHeaderSize()) + keyLen + dataLen + extra + format.FooterSize
}

// leftNeighbor looks for a free record immediately preceding offset by
// reading the boundary-tag footer written at offset-8. Every record
// (used or free) carries this footer, so any bytes found there either
// belong to a real neighbor or, at the very start of the data area,
// aren't read at all. Returns ok=false if there's no record there, it
// isn't free, or offset sits at the start of the data area.
//
// Restricted to v2 databases: a v1 used record's header doesn't carry a
// v2-shaped magic tag in its first 8 bytes, so probing it the v2 way
// could misread arbitrary header bits as MagicFree.
func (h *Handle) leftNeighbor(offset uint64) (start uint64, size uint64, ok bool) {
	if h.headerVersion() != 2 {
		return 0, 0, false
	}
	if offset < dataStart+format.FooterSize {
		return 0, 0, false
	}

	footer := make([]byte, format.FooterSize)
	if err := h.file.ReadAt(footer, int64(offset-format.FooterSize)); err != nil {
		return 0, 0, false
	}
	span := beU64(footer)
	if span == 0 || span > offset-dataStart {
		return 0, 0, false
	}
	start = offset - span

	hdrBuf := make([]byte, 8)
	if err := h.file.ReadAt(hdrBuf, int64(start)); err != nil {
		return 0, 0, false
	}
	hdr := format.HeaderV2{MagicAndMeta: beU64(hdrBuf)}
	if hdr.Magic() != format.MagicFree {
		return 0, 0, false
	}
	return start, span, true
}

// readRecord reads and decodes the header and body at offset, dispatching
// on this handle's format version. v1 records are synthesized into a
// HeaderV2-shaped value (extra padding taken from RecLen's slack, cached
// hash bits left at 0, since v1 has no such field) so every caller in
// this package can stay version-agnostic past this point.
func (h *Handle) readRecord(offset uint64) (format.HeaderV2, []byte, []byte, error) {
	if h.headerVersion() == 1 {
		return readRecordV1(h.file, offset)
	}
	return readRecordV2(h.file, offset)
}

func readRecordV2(file *fileio.File, offset uint64) (format.HeaderV2, []byte, []byte, error) {
	hdrBuf := make([]byte, format.SizeV2)
	if err := file.ReadAt(hdrBuf, int64(offset)); err != nil {
		return format.HeaderV2{}, nil, nil, err
	}
	hdr := format.HeaderV2{MagicAndMeta: beU64(hdrBuf[0:8]), KeyAndDataLen: beU64(hdrBuf[8:16])}
	if hdr.Magic() != format.MagicUsed {
		return format.HeaderV2{}, nil, nil, errors.NewCorruptError(int64(offset), "expected used-record magic")
	}

	body := make([]byte, hdr.KeyLen()+hdr.DataLen())
	if err := file.ReadAt(body, int64(offset)+format.SizeV2); err != nil {
		return format.HeaderV2{}, nil, nil, err
	}
	return hdr, body[:hdr.KeyLen()], body[hdr.KeyLen():], nil
}

func readRecordV1(file *fileio.File, offset uint64) (format.HeaderV2, []byte, []byte, error) {
	hdrBuf := make([]byte, format.SizeV1)
	if err := file.ReadAt(hdrBuf, int64(offset)); err != nil {
		return format.HeaderV2{}, nil, nil, err
	}
	v1 := format.DecodeV1(hdrBuf)
	if v1.Magic != format.MagicV1Used {
		return format.HeaderV2{}, nil, nil, errors.NewCorruptError(int64(offset), "expected used-record magic")
	}

	body := make([]byte, v1.KeyLen+v1.DataLen)
	if err := file.ReadAt(body, int64(offset)+format.SizeV1); err != nil {
		return format.HeaderV2{}, nil, nil, err
	}
	extra := v1.RecLen - v1.KeyLen - v1.DataLen
	synth := format.EncodeV2(format.MagicUsed, uint32(v1.KeyLen), uint32(v1.DataLen), uint16(extra), 0)
	return synth, body[:v1.KeyLen], body[v1.KeyLen:], nil
}

// writeRecord writes a used record's header and body at offset, in this
// handle's format version. extra is the unused tail-byte count recorded
// in the header for future in-place growth.
func (h *Handle) writeRecord(offset uint64, key, data []byte, extra uint16, hashBits uint64) error {
	if h.headerVersion() == 1 {
		return writeUsedRecordV1To(h.file, offset, key, data, extra)
	}
	return writeUsedRecordTo(h.file, offset, key, data, extra, hashBits)
}

// writeUsedRecordTo is writeRecord's v2 path without a bound Handle, so
// Repack can write into the scratch file it builds before swapping it in.
// It also stamps the trailing boundary-tag footer so a later Free of the
// record that follows this one can find it as a left neighbor.
func writeUsedRecordTo(file *fileio.File, offset uint64, key, data []byte, extra uint16, hashBits uint64) error {
	hdr := format.EncodeV2(format.MagicUsed, uint32(len(key)), uint32(len(data)), extra, hashBits)
	span := uint64(format.SizeV2) + uint64(len(key)) + uint64(len(data)) + uint64(extra) + format.FooterSize
	buf := make([]byte, span)
	putBeU64(buf[0:8], hdr.MagicAndMeta)
	putBeU64(buf[8:16], hdr.KeyAndDataLen)
	copy(buf[format.SizeV2:], key)
	copy(buf[format.SizeV2+len(key):], data)
	putBeU64(buf[span-format.FooterSize:], span)
	return file.WriteAt(buf, int64(offset))
}

// writeUsedRecordV1To is writeRecord's v1 path, used both from Store and
// from Repack when rebuilding a database that was created with
// TDB_VERSION1, so a repacked legacy database keeps its v1 record headers
// rather than silently upgrading to v2 on first repack. It
// also stamps the same trailing boundary-tag footer the v2 path does;
// the footer lives past RecLen, so it's purely tdbgo's own free-space
// bookkeeping and doesn't perturb the legacy header fields.
func writeUsedRecordV1To(file *fileio.File, offset uint64, key, data []byte, extra uint16) error {
	v1 := format.HeaderV1{
		Next:    0,
		RecLen:  uint64(len(key)) + uint64(len(data)) + uint64(extra),
		KeyLen:  uint64(len(key)),
		DataLen: uint64(len(data)),
		Magic:   format.MagicV1Used,
	}
	hdrBuf := format.EncodeV1(v1)
	span := uint64(len(hdrBuf)) + uint64(len(key)) + uint64(len(data)) + uint64(extra) + format.FooterSize
	buf := make([]byte, span)
	copy(buf, hdrBuf)
	copy(buf[len(hdrBuf):], key)
	copy(buf[len(hdrBuf)+len(key):], data)
	putBeU64(buf[span-format.FooterSize:], span)
	return file.WriteAt(buf, int64(offset))
}

// Fetch returns the value stored for key, or NOEXIST if there is none.
func (h *Handle) Fetch(key []byte) ([]byte, error) {
	hash := h.hashFn(key, h.seed)
	unlock, err := h.chainLockFor(key, hash, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	offset, ok, err := h.index.Lookup(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewKeyNotFoundError(string(key))
	}

	_, storedKey, data, err := h.readRecord(offset)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(storedKey, key) {
		return nil, errors.NewKeyNotFoundError(string(key))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ParseFunc inspects a record's key and data in place, returning an error
// to abort Parse and propagate out as its result.
type ParseFunc func(key, data []byte) error

// Parse looks up key and invokes cb with the stored key and data read
// directly from the record, without the defensive copy Fetch makes.
// The chain lock stays held for the duration of cb, so cb must not call
// back into this handle for the same key (or anything that needs the
// same chain lock) or it will deadlock; it exists for callers who want
// to decode or scan a large value without allocating an intermediate
// copy. Returns NOEXIST if key isn't present; otherwise cb's own error,
// if any, is returned unchanged.
func (h *Handle) Parse(key []byte, cb ParseFunc) error {
	hash := h.hashFn(key, h.seed)
	unlock, err := h.chainLockFor(key, hash, false)
	if err != nil {
		return err
	}
	defer unlock()

	offset, ok, err := h.index.Lookup(hash)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewKeyNotFoundError(string(key))
	}

	_, storedKey, data, err := h.readRecord(offset)
	if err != nil {
		return err
	}
	if !bytes.Equal(storedKey, key) {
		return errors.NewKeyNotFoundError(string(key))
	}
	return cb(storedKey, data)
}

// Exists reports whether key is present, without copying its value.
func (h *Handle) Exists(key []byte) (bool, error) {
	hash := h.hashFn(key, h.seed)
	unlock, err := h.chainLockFor(key, hash, false)
	if err != nil {
		return false, err
	}
	defer unlock()

	offset, ok, err := h.index.Lookup(hash)
	if err != nil || !ok {
		return false, err
	}
	_, storedKey, _, err := h.readRecord(offset)
	if err != nil {
		return false, err
	}
	return bytes.Equal(storedKey, key), nil
}

// Store writes key=data according to mode, returning EXISTS or NOEXIST
// when mode's existence precondition isn't met.
func (h *Handle) Store(key, data []byte, mode StoreMode) error {
	if h.readOnly {
		return errors.NewReadOnlyError("store")
	}

	hash := h.hashFn(key, h.seed)
	unlock, err := h.chainLockFor(key, hash, true)
	if err != nil {
		return err
	}
	defer unlock()

	offset, exists, err := h.index.Lookup(hash)
	if err != nil {
		return err
	}

	switch mode {
	case StoreInsert:
		if exists {
			return errors.NewKeyExistsError(string(key))
		}
	case StoreModify:
		if !exists {
			return errors.NewKeyNotFoundError(string(key))
		}
	}

	if exists {
		hdr, storedKey, _, err := h.readRecord(offset)
		if err != nil {
			return err
		}
		if bytes.Equal(storedKey, key) && uint32(len(data)) <= hdr.DataLen()+uint32(hdr.ExtraPadding()) {
			extra := hdr.DataLen() + uint32(hdr.ExtraPadding()) - uint32(len(data))
			if err := h.writeRecord(offset, key, data, uint16(extra), hdr.HashBits()); err != nil {
				return err
			}
			return h.bumpSeqnum()
		}
		total := h.spanSize(uint64(len(storedKey)), uint64(hdr.DataLen()), uint64(hdr.ExtraPadding()))
		var left *uint64
		var leftSize uint64
		if start, size, ok := h.leftNeighbor(offset); ok {
			left, leftSize = &start, size
		}
		if err := h.free.Free(offset, total, left, leftSize); err != nil {
			return err
		}
	}

	needed := h.spanSize(uint64(len(key)), uint64(len(data)), 0)
	newOffset, err := h.free.Alloc(needed)
	if err != nil {
		return err
	}
	if err := h.writeRecord(newOffset, key, data, 0, hash); err != nil {
		return err
	}
	if err := h.index.Insert(hash, newOffset); err != nil {
		return err
	}
	return h.bumpSeqnum()
}

// Delete removes key, returning NOEXIST if it isn't present.
func (h *Handle) Delete(key []byte) error {
	if h.readOnly {
		return errors.NewReadOnlyError("delete")
	}

	hash := h.hashFn(key, h.seed)
	unlock, err := h.chainLockFor(key, hash, true)
	if err != nil {
		return err
	}
	defer unlock()

	offset, ok, err := h.index.Delete(hash)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewKeyNotFoundError(string(key))
	}

	hdr, storedKey, _, err := h.readRecord(offset)
	if err != nil {
		return err
	}
	if !bytes.Equal(storedKey, key) {
		return errors.NewKeyNotFoundError(string(key))
	}

	total := h.spanSize(uint64(hdr.KeyLen()), uint64(hdr.DataLen()), uint64(hdr.ExtraPadding()))
	var left *uint64
	var leftSize uint64
	if start, size, ok := h.leftNeighbor(offset); ok {
		left, leftSize = &start, size
	}
	if err := h.free.Free(offset, total, left, leftSize); err != nil {
		return err
	}
	return h.bumpSeqnum()
}

// Append concatenates data onto any existing value for key, or creates
// it if absent.
func (h *Handle) Append(key, data []byte) error {
	existing, err := h.Fetch(key)
	if err != nil && errors.GetErrorCode(err) != errors.ErrorCodeNoExist {
		return err
	}
	combined := make([]byte, 0, len(existing)+len(data))
	combined = append(combined, existing...)
	combined = append(combined, data...)
	return h.Store(key, combined, StoreReplace)
}

func beU64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func putBeU64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}
