// Package errors implements tdbgo's TDB_ERR_* error taxonomy.
//
// Every operation in the public API reports failure through one of the
// typed errors in this package, each carrying an ErrorCode plus
// domain-specific context: a StorageError knows the byte offset and
// region length involved, a HashIndexError knows the key and hash group,
// a LockError knows which lock in the address plan was contended, and a
// RecoveryError knows which transaction phase failed.
//
// All of them embed baseError, so errors.Is/errors.As and the fluent
// With* builder chain work uniformly regardless of which domain type is in
// play. GetErrorCode and GetErrorDetails give callers a single place to
// extract the TDB_ERR_* code and structured details without caring which
// concrete type produced the error.
package errors

import (
	stdErrors "errors"
	"os"
	"syscall"
)

// IsValidationError checks if the given error is a ValidationError or
// contains one in its error chain.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return stdErrors.As(err, &ve)
}

// IsStorageError determines if an error is related to file I/O, free-space
// management, or record-layer operations.
func IsStorageError(err error) bool {
	var se *StorageError
	return stdErrors.As(err, &se)
}

// IsHashIndexError identifies errors that occurred during hash-index
// operations such as lookups, inserts, deletes, or sublevel promotion.
func IsHashIndexError(err error) bool {
	var ie *HashIndexError
	return stdErrors.As(err, &ie)
}

// IsLockError identifies errors produced by the lock manager.
func IsLockError(err error) bool {
	var le *LockError
	return stdErrors.As(err, &le)
}

// IsRecoveryError identifies errors produced by the transaction overlay or
// recovery log.
func IsRecoveryError(err error) bool {
	var re *RecoveryError
	return stdErrors.As(err, &re)
}

// AsValidationError safely extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsStorageError extracts StorageError context from an error chain.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsHashIndexError extracts HashIndexError context from an error chain.
func AsHashIndexError(err error) (*HashIndexError, bool) {
	var ie *HashIndexError
	if stdErrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// AsLockError extracts LockError context from an error chain.
func AsLockError(err error) (*LockError, bool) {
	var le *LockError
	if stdErrors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// AsRecoveryError extracts RecoveryError context from an error chain.
func AsRecoveryError(err error) (*RecoveryError, bool) {
	var re *RecoveryError
	if stdErrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// GetErrorCode extracts the ErrorCode from any error in this package's
// taxonomy, or returns ErrorCodeInternal for errors that don't carry one.
func GetErrorCode(err error) ErrorCode {
	if ve, ok := AsValidationError(err); ok {
		return ve.Code()
	}
	if se, ok := AsStorageError(err); ok {
		return se.Code()
	}
	if ie, ok := AsHashIndexError(err); ok {
		return ie.Code()
	}
	if le, ok := AsLockError(err); ok {
		return le.Code()
	}
	if re, ok := AsRecoveryError(err); ok {
		return re.Code()
	}
	return ErrorCodeInternal
}

// GetErrorDetails extracts structured details from any error that supports
// them, returning an empty map for errors without details.
func GetErrorDetails(err error) map[string]any {
	if ve, ok := AsValidationError(err); ok && ve.Details() != nil {
		return ve.Details()
	}
	if se, ok := AsStorageError(err); ok && se.Details() != nil {
		return se.Details()
	}
	if ie, ok := AsHashIndexError(err); ok && ie.Details() != nil {
		return ie.Details()
	}
	if le, ok := AsLockError(err); ok && le.Details() != nil {
		return le.Details()
	}
	if re, ok := AsRecoveryError(err); ok && re.Details() != nil {
		return re.Details()
	}
	return make(map[string]any)
}

// ClassifyFileOpenError analyzes database file open failures and returns a
// StorageError with the appropriate ErrorCode and as much syscall-level
// context as can be recovered from err.
func ClassifyFileOpenError(err error, path string) error {
	if os.IsPermission(err) {
		return NewStorageError(err, ErrorCodeIO, "insufficient permissions to open database file").
			WithPath(path).
			WithDetail("operation", "open").
			WithDetail("suggestion", "check file permissions or run with elevated privileges")
	}

	if pathErr, ok := err.(*os.PathError); ok {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ENOSPC:
				return NewStorageError(err, ErrorCodeIO, "insufficient disk space to create database file").
					WithPath(path).
					WithDetail("operation", "open")
			case syscall.EROFS:
				return NewStorageError(err, ErrorCodeIO, "cannot open database file on read-only filesystem").
					WithPath(path).
					WithDetail("operation", "open")
			}
		}
	}

	return NewStorageError(err, ErrorCodeIO, "failed to open database file").
		WithPath(path).
		WithDetail("operation", "open")
}
