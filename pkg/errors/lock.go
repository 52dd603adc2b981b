package errors

// LockError is a specialized error type for the lock manager: failed
// nonblocking acquisitions, read-only violations, and acquisition-order
// misuse all surface through this type.
type LockError struct {
	*baseError

	// Name of the lock involved: "open", "active", "transaction",
	// "allrecord", "chain", "freebucket", or "file" for a read-only
	// violation at the file layer. Where known, the chain or table index
	// is carried as the "index" detail.
	lock string

	// Whether the failed acquisition was blocking.
	blocking bool
}

// NewLockError creates a new lock-specific error.
func NewLockError(err error, code ErrorCode, msg string) *LockError {
	return &LockError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the LockError type.
func (le *LockError) WithMessage(msg string) *LockError {
	le.baseError.WithMessage(msg)
	return le
}

// WithDetail adds contextual information while maintaining the LockError type.
func (le *LockError) WithDetail(key string, value any) *LockError {
	le.baseError.WithDetail(key, value)
	return le
}

// WithLock records which lock in the address plan was involved.
func (le *LockError) WithLock(name string) *LockError {
	le.lock = name
	return le
}

// WithBlocking records whether the failed acquisition was blocking.
func (le *LockError) WithBlocking(blocking bool) *LockError {
	le.blocking = blocking
	return le
}

// Lock returns the name of the lock involved in the error.
func (le *LockError) Lock() string {
	return le.lock
}

// Blocking reports whether the failed acquisition was blocking.
func (le *LockError) Blocking() bool {
	return le.blocking
}

// NewWouldBlockError creates the LOCK error for a nonblocking acquisition
// that could not proceed immediately.
func NewWouldBlockError(lock string) *LockError {
	return NewLockError(nil, ErrorCodeLock, "lock would block").
		WithLock(lock).
		WithBlocking(false)
}

// NewReadOnlyError creates the RDONLY error for a mutating call on a
// read-only handle.
func NewReadOnlyError(operation string) *LockError {
	return NewLockError(nil, ErrorCodeReadOnly, "operation not permitted on read-only handle").
		WithDetail("operation", operation)
}
