package tdb

import (
	"math/bits"
	"math/rand/v2"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamNilotpal/tdbgo/internal/fileio"
	"github.com/iamNilotpal/tdbgo/internal/freelist"
	"github.com/iamNilotpal/tdbgo/internal/hashindex"
	"github.com/iamNilotpal/tdbgo/internal/lockmgr"
	"github.com/iamNilotpal/tdbgo/internal/registry"
	"github.com/iamNilotpal/tdbgo/internal/txlog"
	"github.com/iamNilotpal/tdbgo/pkg/attrs"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"github.com/iamNilotpal/tdbgo/pkg/hashfn"
	"github.com/iamNilotpal/tdbgo/pkg/logger"
	"github.com/iamNilotpal/tdbgo/pkg/options"
)

// Handle is one open database. It composes every internal component
// behind the public surface: file I/O (internal/fileio), locking
// (internal/lockmgr), free space (internal/freelist), the hash index
// (internal/hashindex), transactions (internal/txlog), and the
// process-wide open-handle bookkeeping (internal/registry).
type Handle struct {
	path     string
	readOnly bool

	file  *fileio.File
	locks *lockmgr.Manager
	free  *freelist.Manager
	index *hashindex.Index
	log   *txlog.Log

	hashFn hashfn.Func
	seed   uint64
	opts   options.Options

	registryKey registry.Key
	lastCloser  bool

	logger    *zap.SugaredLogger
	statsOut  *attrs.Stats
	openHook  attrs.OpenHookFunc
	lockFn    lockmgr.TryLockFunc
	lockWait  time.Duration
	activeTxn *txlog.Txn
}

// Open opens or creates a database at path. attrList carries the
// optional capabilities (logging sink, hash override, lock override,
// open hook, stats); from opts it uses the initial hash bits, the free
// table count, the lock wait timeout and the seqnum switch. A new file
// always gets options.DefaultGroupBits and DefaultSublevelBits, and
// opts.GroupBits, SublevelBits, GrowthFactor, BucketSpacing and NoSync
// are not consulted.
func Open(path string, create, readOnly bool, perm os.FileMode, attrList attrs.List, opts options.Options) (h *Handle, err error) {
	if err := attrList.Validate(); err != nil {
		return nil, err
	}

	cfg := resolveAttrs(attrList)

	log := cfg.logSink
	if log == nil {
		log = logger.New("tdb")
	}

	hashFn := cfg.hashFn
	if hashFn == nil {
		hashFn = hashfn.Default
	}

	file, err := fileio.Open(path, create, readOnly, perm)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = file.Close()
		}
	}()

	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, errors.NewStorageError(statErr, errors.ErrorCodeIO, "failed to stat database file after open").
			WithPath(path)
	}
	key, _ := registry.KeyFor(info)
	registry.Global.Acquire(key)

	timeout := cfg.lockTimeout
	if timeout == 0 {
		timeout = opts.LockWaitTimeout
	}
	locks := lockmgr.New(file.Fd(), cfg.lockFn, timeout)

	if err := locks.Lock(lockmgr.AddrOpen, 0, true, true); err != nil {
		registry.Global.Release(key)
		return nil, err
	}
	defer func() {
		_ = locks.Unlock(lockmgr.AddrOpen, 0, true)
	}()

	// firstOpener is derived from the active lock's actual state, not
	// from any in-process bookkeeping: taking it non-blocking and
	// exclusive succeeds only when no other opener, in this process or
	// any other, currently holds it. AddrOpen stays held for the whole
	// probe so no other process can race us between the check and the
	// eventual shared acquisition.
	firstOpener, err := locks.ProbeAndHoldActive()
	if err != nil {
		registry.Global.Release(key)
		return nil, err
	}

	var header fileHeader
	if file.Size() == 0 {
		if readOnly {
			return nil, errors.NewLockError(nil, errors.ErrorCodeReadOnly, "cannot create a new database read-only")
		}
		seed := cfg.seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		version := uint32(2)
		hashBits := uint32(opts.HashBits)
		if cfg.tdb1 {
			version = 1
			if cfg.tdb1HashSize > 0 {
				hashBits = cfg.tdb1HashSize
			}
		}
		header = fileHeader{
			version:      version,
			seed:         seed,
			hashTest:     hashfn.SelfCheck(hashFn, seed),
			hashBits:     hashBits,
			groupBits:    uint32(options.DefaultGroupBits),
			sublevelBits: uint32(options.DefaultSublevelBits),
		}
		if _, err := file.Expand(dataStart); err != nil {
			return nil, err
		}
		if err := writeHeader(file, header); err != nil {
			return nil, err
		}
	} else {
		header, err = readHeader(file, path)
		if err != nil {
			return nil, err
		}
		if err := validateVersion(header.version); err != nil {
			return nil, err
		}
		if !hashfn.VerifySelfCheck(hashFn, header.seed, header.hashTest) {
			return nil, errors.NewStorageError(nil, errors.ErrorCodeIO, "hash function mismatch: database was created with a different hash").
				WithPath(path)
		}
	}

	freeTables := opts.FreeTableCount
	if freeTables == 0 {
		freeTables = options.DefaultFreeTableCount
	}
	free := freelist.New(file, locks, freeTables, 64)

	idx, err := hashindex.Open(file, free, locks, hashFn, header.seed, hashindex.Config{
		HashBits:     uint(header.hashBits),
		GroupBits:    uint(header.groupBits),
		SublevelBits: uint(header.sublevelBits),
	}, header.topOffset)
	if err != nil {
		return nil, err
	}
	if header.topOffset == 0 {
		header.topOffset = idx.TopOffset()
		if err := writeHeader(file, header); err != nil {
			return nil, err
		}
	}

	txnLog := txlog.New(file, locks, headerSize, recoveryAreaSize)

	if firstOpener {
		if err := txlog.ReplayOnOpen(file, headerSize); err != nil {
			return nil, err
		}
		if cfg.openHook != nil {
			if err := cfg.openHook(); err != nil {
				return nil, err
			}
		}
	}

	h = &Handle{
		path: path, readOnly: readOnly,
		file: file, locks: locks, free: free, index: idx, log: txnLog,
		hashFn: hashFn, seed: header.seed, opts: opts,
		registryKey: key,
		logger:      log.Named("handle"),
		statsOut:    cfg.statsOut,
		openHook:    cfg.openHook,
		lockFn:      cfg.lockFn,
		lockWait:    timeout,
	}
	return h, nil
}

type resolvedAttrs struct {
	logSink      *zap.SugaredLogger
	hashFn       hashfn.Func
	seed         uint64
	lockFn       lockmgr.TryLockFunc
	lockTimeout  time.Duration
	openHook     attrs.OpenHookFunc
	statsOut     *attrs.Stats
	tdb1         bool
	tdb1HashSize uint32
}

func resolveAttrs(list attrs.List) resolvedAttrs {
	var r resolvedAttrs
	for _, a := range list {
		switch a.Kind {
		case attrs.KindLog:
			r.logSink = logger.NewFromCore("tdb", a.LogCore)
		case attrs.KindHash:
			r.hashFn = a.HashFunc
		case attrs.KindSeed:
			r.seed = a.Seed
		case attrs.KindFlock:
			if a.LockFunc != nil {
				fn := a.LockFunc
				r.lockFn = func(fd uintptr, writeLock bool, off, length int64, blocking bool) error {
					return fn(fd, writeLock, off, length, blocking)
				}
			}
			r.lockTimeout = a.LockTimeout
		case attrs.KindOpenHook:
			r.openHook = a.OpenHook
		case attrs.KindTDB1HashSize:
			// TDB_VERSION1: the presence of this attribute at create time
			// is what selects the legacy v1 on-disk format. The hash-size
			// hint itself is clamped into the same hashBits field v2 uses
			// for its top-level table, since tdbgo's hash index is shared
			// across both formats (see DESIGN.md).
			r.tdb1 = true
			r.tdb1HashSize = clampHashBits(a.TDB1HashSize)
		case attrs.KindStats:
			r.statsOut = a.StatsOut
		}
	}
	return r
}

// clampHashBits folds a caller-supplied bucket-count hint into the
// [MinHashBits, MaxHashBits] range the hash index's HashBits config
// accepts, treating 0 as "use the default".
func clampHashBits(hint uint32) uint32 {
	if hint == 0 {
		return 0
	}
	bits := uint32(bits.Len32(hint))
	if bits < uint32(options.MinHashBits) {
		return uint32(options.MinHashBits)
	}
	if bits > uint32(options.MaxHashBits) {
		return uint32(options.MaxHashBits)
	}
	return bits
}

// Close releases every lock this handle holds, records in lastCloser
// whether this was the last handle on the file in this process (no
// further cleanup runs on it), and closes the file descriptor. Errors
// from each step are aggregated with
// multierr rather than stopping at the first one, so a failure to
// release one lock doesn't prevent an attempt to release the rest.
func (h *Handle) Close() error {
	var errs error

	for _, e := range h.locks.UnlockAll() {
		errs = multierr.Append(errs, e)
	}

	h.lastCloser = registry.Global.Release(h.registryKey)

	if err := h.file.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// Version reports the on-disk format version (1 or 2) this handle is
// bound to: reopening a v1 database without TDB_VERSION1 must still
// report it as v1.
func (h *Handle) Version() (uint32, error) {
	header, err := readHeader(h.file, h.path)
	if err != nil {
		return 0, err
	}
	return header.version, nil
}

func (h *Handle) headerVersion() uint32 {
	header, err := readHeader(h.file, h.path)
	if err != nil {
		return 2
	}
	return header.version
}

// Seqnum returns the database's mutation counter, incremented on every
// Store, Delete, and Append made through a handle opened with
// options.SeqnumEnabled, for callers doing optimistic
// cache-invalidation over repeated Fetch calls.
func (h *Handle) Seqnum() (uint64, error) {
	header, err := readHeader(h.file, h.path)
	if err != nil {
		return 0, err
	}
	return header.seqnum, nil
}

func (h *Handle) bumpSeqnum() error {
	if !h.opts.SeqnumEnabled {
		return nil
	}
	header, err := readHeader(h.file, h.path)
	if err != nil {
		return err
	}
	header.seqnum++
	return writeHeader(h.file, header)
}
