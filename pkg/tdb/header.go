// Package tdb is the public API: Open/Close, Fetch/Store/Delete/Exists/
// Append, Traverse and key iteration, chain and whole-database locking,
// transactions, and the Check/Summary/Repack maintenance operations,
// composing every internal/ component behind one Handle.
package tdb

import (
	"fmt"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

const (
	headerMagic      = "TDBGO2\x00\x00"
	headerSize       = 256
	recoveryAreaSize = 4096
	dataStart        = headerSize + recoveryAreaSize
)

// fileHeader is the fixed-size region at offset 0 of every database
// file: format identification, the hash seed and self-check value, and
// the current locations of the hash index's top-level table and the
// sequence counter Seqnum reports.
type fileHeader struct {
	version        uint32
	flags          uint32
	seed           uint64
	hashTest       uint64
	topOffset      uint64
	recoveryOffset uint64
	seqnum         uint64
	hashBits       uint32
	groupBits      uint32
	sublevelBits   uint32
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], headerMagic)
	putU32(buf[8:12], h.version)
	putU32(buf[12:16], h.flags)
	putU64(buf[16:24], h.seed)
	putU64(buf[24:32], h.hashTest)
	putU64(buf[32:40], h.topOffset)
	putU64(buf[40:48], h.recoveryOffset)
	putU64(buf[48:56], h.seqnum)
	putU32(buf[56:60], h.hashBits)
	putU32(buf[60:64], h.groupBits)
	putU32(buf[64:68], h.sublevelBits)
	return buf
}

func decodeHeader(buf []byte, path string) (fileHeader, error) {
	if len(buf) < headerSize {
		return fileHeader{}, errors.NewCorruptError(0, "database file too short for a header").
			WithPath(path)
	}
	if string(buf[0:8]) != headerMagic {
		return fileHeader{}, errors.NewCorruptError(0, "bad magic: not a tdbgo database").
			WithPath(path)
	}
	return fileHeader{
		version:        getU32(buf[8:12]),
		flags:          getU32(buf[12:16]),
		seed:           getU64(buf[16:24]),
		hashTest:       getU64(buf[24:32]),
		topOffset:      getU64(buf[32:40]),
		recoveryOffset: getU64(buf[40:48]),
		seqnum:         getU64(buf[48:56]),
		hashBits:       getU32(buf[56:60]),
		groupBits:      getU32(buf[60:64]),
		sublevelBits:   getU32(buf[64:68]),
	}, nil
}

func readHeader(file *fileio.File, path string) (fileHeader, error) {
	buf := make([]byte, headerSize)
	if err := file.ReadAt(buf, 0); err != nil {
		return fileHeader{}, err
	}
	return decodeHeader(buf, path)
}

func writeHeader(file *fileio.File, h fileHeader) error {
	return file.WriteAt(encodeHeader(h), 0)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func validateVersion(v uint32) error {
	if v != 1 && v != 2 {
		return errors.NewCorruptError(8, fmt.Sprintf("unsupported database version %d", v))
	}
	return nil
}
