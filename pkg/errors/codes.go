package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// The TDB_ERR_* taxonomy. Every failure the store surfaces maps to exactly
// one of these; the mapping from underlying syscall or structural cause to
// code lives in the classification helpers below and in internal/fileio,
// internal/lockmgr and internal/hashindex.
const (
	// ErrorCodeIO covers pread/pwrite/ftruncate/mmap/fsync failures.
	ErrorCodeIO ErrorCode = "IO"

	// ErrorCodeCorrupt covers magic mismatch, a hash chain that wrapped
	// unboundedly, or any other on-disk invariant violation.
	ErrorCodeCorrupt ErrorCode = "CORRUPT"

	// ErrorCodeLock covers failures reported by the lock manager, such as
	// nonblocking lock contention or an out-of-order acquisition.
	ErrorCodeLock ErrorCode = "LOCK"

	// ErrorCodeOOM covers allocation failure within the file: the
	// free-space manager returned 0 even after the caller expanded the
	// file once and retried.
	ErrorCodeOOM ErrorCode = "OOM"

	// ErrorCodeExists is returned by store(INSERT) when the key is present.
	ErrorCodeExists ErrorCode = "EXISTS"

	// ErrorCodeNoExist is returned by fetch/delete/store(MODIFY) when the
	// key is absent.
	ErrorCodeNoExist ErrorCode = "NOEXIST"

	// ErrorCodeInvalidInput covers malformed attributes and other caller
	// misuse (TDB_ERR_EINVAL).
	ErrorCodeInvalidInput ErrorCode = "EINVAL"

	// ErrorCodeReadOnly is returned by any mutating call on a read-only
	// handle.
	ErrorCodeReadOnly ErrorCode = "RDONLY"

	// ErrorCodeNesting is the code for a refused nested transaction start
	// (see NewNestingError). TransactionStart always nests, so no path in
	// pkg/tdb returns it.
	ErrorCodeNesting ErrorCode = "NESTING"

	// ErrorCodeInternal is the fallback for errors that don't carry one
	// of the above codes.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)
