// Package attrs implements the variadic open configuration: a closed,
// discriminated union of attribute variants supplied to Open. Unlike
// pkg/options' plain defaults struct, this is the caller-facing surface:
// each variant is a distinct capability (a log sink, a hash function
// override, a seed override, a lock-timeout policy, an open hook, a v1
// hash-size hint, or a stats request), and Validate rejects anything that
// isn't one of them.
package attrs

import (
	"strconv"
	"time"

	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"github.com/iamNilotpal/tdbgo/pkg/hashfn"
	"go.uber.org/zap/zapcore"
)

// Kind discriminates the attribute variants.
type Kind int

const (
	KindLog Kind = iota
	KindHash
	KindSeed
	KindFlock
	KindOpenHook
	KindTDB1HashSize
	KindStats
)

// OpenHookFunc is invoked under the open lock when this handle turns out
// to be the first opener of the file, e.g. to truncate and reinitialize a
// file that an external tool deleted the content of but not the inode.
type OpenHookFunc func() error

// LockFunc overrides the try_lock primitive the lock manager calls
// through; it holds no store lock when invoked.
type LockFunc func(fd uintptr, writeLock bool, off, length int64, blocking bool) error

// Attribute is one variant of the closed tagged union. Exactly one of the
// fields indicated by Kind is meaningful.
type Attribute struct {
	Kind Kind

	// KindLog
	LogCore zapcore.Core

	// KindHash
	HashFunc hashfn.Func

	// KindSeed
	Seed uint64

	// KindFlock
	LockFunc    LockFunc
	LockTimeout time.Duration

	// KindOpenHook
	OpenHook OpenHookFunc

	// KindTDB1HashSize
	TDB1HashSize uint32

	// KindStats
	StatsOut *Stats
}

// Stats is the counter block a KindStats attribute points at, mirroring
// ccan/tdb2's run-91-get-stats.c. Open keeps the pointer on the handle,
// but no operation updates these counters.
type Stats struct {
	Allocs      uint64
	Expands     uint64
	SublevelOps uint64
	Locks       uint64
}

// Log wraps an external zapcore.Core as the store's log sink.
func Log(core zapcore.Core) Attribute { return Attribute{Kind: KindLog, LogCore: core} }

// Hash overrides the default hash(bytes, seed) -> u64 collaborator.
func Hash(fn hashfn.Func) Attribute { return Attribute{Kind: KindHash, HashFunc: fn} }

// Seed overrides the random per-database hash seed (only meaningful at
// creation time; ignored on reopen of an existing file). A zero seed
// counts as no override.
func Seed(seed uint64) Attribute { return Attribute{Kind: KindSeed, Seed: seed} }

// Flock overrides the try_lock/unlock primitive and/or sets a
// blocking-lock deadline, layered above the lock function as an optional
// wrapper.
func Flock(fn LockFunc, timeout time.Duration) Attribute {
	return Attribute{Kind: KindFlock, LockFunc: fn, LockTimeout: timeout}
}

// OpenHook registers a hook invoked under the open lock iff this handle is
// the first opener.
func OpenHook(hook OpenHookFunc) Attribute {
	return Attribute{Kind: KindOpenHook, OpenHook: hook}
}

// TDB1HashSize hints the legacy v1 hash-table size for TDB_VERSION1 creates.
func TDB1HashSize(size uint32) Attribute {
	return Attribute{Kind: KindTDB1HashSize, TDB1HashSize: size}
}

// StatsAttr hands out to Open, which keeps it on the handle; no operation
// updates its counters.
func StatsAttr(out *Stats) Attribute {
	return Attribute{Kind: KindStats, StatsOut: out}
}

// List is the attribute list an Open call accepts (modeled here as a
// slice; the union is still closed and typed).
type List []Attribute

// Validate rejects any attribute whose Kind is not one of the seven
// variants above, and any variant missing its required payload.
func (l List) Validate() error {
	for i, a := range l {
		field := "attrs[" + strconv.Itoa(i) + "]"
		switch a.Kind {
		case KindLog:
			if a.LogCore == nil {
				return errors.NewRequiredFieldError(field).WithMessage("LOG attribute requires a non-nil core")
			}
		case KindHash:
			if a.HashFunc == nil {
				return errors.NewRequiredFieldError(field).WithMessage("HASH attribute requires a non-nil function")
			}
		case KindSeed, KindFlock, KindOpenHook, KindTDB1HashSize, KindStats:
			// No required payload beyond what the constructor already set.
		default:
			return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "unknown open attribute variant").
				WithField(field).WithRule("closed_union").WithProvided(a.Kind)
		}
	}
	return nil
}
