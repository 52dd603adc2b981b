// Package hashfn provides the default 64-bit hash collaborator:
// hash(bytes, seed) -> u64. The hash index uses it to place keys; the
// file header stores hash_test, the hash of a known constant under the
// database's seed, so that a reopen with a different hash function is
// detected and rejected with IO.
package hashfn

import (
	"github.com/zeebo/xxh3"
)

// testConstant is hashed with the database's seed at creation time and the
// result stored in the header as hash_test. Any later Hash implementation
// that disagrees on this value is incompatible with the file and Open must
// fail with errors.ErrorCodeIO.
const testConstant = "TDBGO_HASH_TEST_CONSTANT_v2"

// Func is the hash collaborator signature the store depends on everywhere:
// the hash index, the header's self-check, and the HASH open attribute.
type Func func(data []byte, seed uint64) uint64

// Default is tdbgo's built-in Func, backed by xxh3's seeded 64-bit hash:
// fast, well-distributed, and stable across runs for a fixed seed.
func Default(data []byte, seed uint64) uint64 {
	return xxh3.HashSeed(data, seed)
}

// SelfCheck computes the hash_test value for a given Func and seed, to be
// stored in the file header at creation time.
func SelfCheck(fn Func, seed uint64) uint64 {
	return fn([]byte(testConstant), seed)
}

// VerifySelfCheck reports whether fn agrees with a previously stored
// hash_test value for the given seed. A mismatch means the caller supplied
// a HASH attribute incompatible with the file that created the database,
// which must surface as an IO error.
func VerifySelfCheck(fn Func, seed, storedTest uint64) bool {
	return SelfCheck(fn, seed) == storedTest
}
