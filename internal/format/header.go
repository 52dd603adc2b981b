// Package format implements the record layer: encoding and decoding of
// the packed headers that precede every record in the file, for both the
// current v2 layout and the legacy v1 layout. format packs and unpacks
// the bits of each field; the callers that write these headers to disk
// store every multi-byte field in fixed big-endian order, so no runtime
// byte-order conversion is involved.
package format

import "fmt"

// Magic tags distinguish the six record kinds.
type Magic uint8

const (
	MagicUsed Magic = iota
	MagicFree
	MagicHashTable
	MagicFreeTable
	MagicRecovery
	MagicCapability
)

func (m Magic) String() string {
	switch m {
	case MagicUsed:
		return "used"
	case MagicFree:
		return "free"
	case MagicHashTable:
		return "hashtable"
	case MagicFreeTable:
		return "freetable"
	case MagicRecovery:
		return "recovery"
	case MagicCapability:
		return "capability"
	default:
		return fmt.Sprintf("magic(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the six documented record kinds.
func (m Magic) Valid() bool {
	return m <= MagicCapability
}

const (
	magicBits = 5
	extraBits = 15
	hashBits  = 64 - magicBits - extraBits // 44 bits of cached hash, v2 only

	extraMask = (uint64(1) << extraBits) - 1
	hashMask  = (uint64(1) << hashBits) - 1

	keyLenBits  = 32
	dataLenBits = 64 - keyLenBits

	keyLenMask  = (uint64(1) << keyLenBits) - 1
	dataLenMask = (uint64(1) << dataLenBits) - 1
)

// HeaderV2 is the v2 record header: two bit-packed 64-bit words, laid out
// so the magic occupies the high bits of the first word for a fast,
// single aligned 8-byte read.
//
//	word0 (MagicAndMeta):  magic(5) | extra_padding(15) | hash_bits(44)
//	word1 (KeyAndDataLen): key_len(32) | data_len(32)
type HeaderV2 struct {
	MagicAndMeta  uint64
	KeyAndDataLen uint64
}

// SizeV2 is the on-disk size of a v2 header in bytes.
const SizeV2 = 16

// FooterSize is the width of the trailing boundary tag written after
// every record's body: the record's own total span, so a neighboring
// record can be located by reading backward from its start offset
// without needing a reverse index.
const FooterSize = 8

// EncodeV2 packs a v2 record header. hashBits44 is truncated to the low 44
// bits; callers that need more discriminating power fall back to comparing
// full key bytes.
func EncodeV2(magic Magic, keyLen, dataLen uint32, extraPadding uint16, hashBits44 uint64) HeaderV2 {
	return HeaderV2{
		MagicAndMeta:  (uint64(magic) << (64 - magicBits)) | (uint64(extraPadding)&extraMask)<<hashBits | (hashBits44 & hashMask),
		KeyAndDataLen: (uint64(keyLen)&keyLenMask)<<dataLenBits | (uint64(dataLen) & dataLenMask),
	}
}

// Magic extracts the record-kind tag.
func (h HeaderV2) Magic() Magic {
	return Magic(h.MagicAndMeta >> (64 - magicBits))
}

// ExtraPadding extracts the unused tail-byte count, which allows in-place
// growth (store(REPLACE) without relocation) without a new allocation.
func (h HeaderV2) ExtraPadding() uint16 {
	return uint16((h.MagicAndMeta >> hashBits) & extraMask)
}

// HashBits extracts the cached hash-extra bits used to skip non-matching
// slots without reading the key.
func (h HeaderV2) HashBits() uint64 {
	return h.MagicAndMeta & hashMask
}

// KeyLen extracts the key length in bytes.
func (h HeaderV2) KeyLen() uint32 {
	return uint32(h.KeyAndDataLen >> dataLenBits)
}

// DataLen extracts the data (or, for a free record, free-region) length
// in bytes.
func (h HeaderV2) DataLen() uint32 {
	return uint32(h.KeyAndDataLen & dataLenMask)
}

// TotalLen is the full on-disk footprint of the record body (key + data +
// tail padding), not including the header itself.
func (h HeaderV2) TotalLen() uint64 {
	return uint64(h.KeyLen()) + uint64(h.DataLen()) + uint64(h.ExtraPadding())
}

// SetExtraPadding rewrites the extra_padding field in place, used when a
// store(REPLACE) grows a record in place and consumes some of its padding.
func (h HeaderV2) SetExtraPadding(extra uint16) HeaderV2 {
	h.MagicAndMeta = (h.MagicAndMeta &^ (extraMask << hashBits)) | (uint64(extra)&extraMask)<<hashBits
	return h
}

// HeaderV1 is the legacy v1 record header: a conventional, non-bit-packed
// layout matching the original tdb1 tdb_record structure field-for-field.
// Only the record header follows tdb1; the index and free-space layout
// around it are tdbgo's own, so a tdb1 reader cannot open the file.
type HeaderV1 struct {
	Next     uint64 // offset of the next record in this hash chain, 0 if none
	RecLen   uint64 // total length of the record body after this header
	KeyLen   uint64
	DataLen  uint64
	FullHash uint32 // full 32-bit hash of the key, v1's chained-bucket scheme
	Magic    uint32 // TDB_MAGIC / TDB_FREE_MAGIC, stored as a plain 32-bit value
}

// SizeV1 is the on-disk size of a v1 header in bytes: 4 uint64 + 2 uint32.
const SizeV1 = 8*4 + 4*2

const (
	MagicV1Used = 0x42554744
	MagicV1Free = 0x46524545
)

// EncodeV1 packs a v1 record header into its on-disk byte layout: four
// big-endian uint64 fields followed by two big-endian uint32 fields, in
// declaration order.
func EncodeV1(h HeaderV1) []byte {
	buf := make([]byte, SizeV1)
	putU64(buf[0:8], h.Next)
	putU64(buf[8:16], h.RecLen)
	putU64(buf[16:24], h.KeyLen)
	putU64(buf[24:32], h.DataLen)
	putU32(buf[32:36], h.FullHash)
	putU32(buf[36:40], h.Magic)
	return buf
}

// DecodeV1 unpacks a v1 record header from its on-disk byte layout. buf
// must be at least SizeV1 bytes.
func DecodeV1(buf []byte) HeaderV1 {
	return HeaderV1{
		Next:     getU64(buf[0:8]),
		RecLen:   getU64(buf[8:16]),
		KeyLen:   getU64(buf[16:24]),
		DataLen:  getU64(buf[24:32]),
		FullHash: getU32(buf[32:36]),
		Magic:    getU32(buf[36:40]),
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (24 - 8*i))
	}
}

func getU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}
