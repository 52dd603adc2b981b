package errors

// StorageError is a specialized error type for file I/O and on-disk
// layout failures (file I/O, free-space manager, record layer). It
// embeds baseError to inherit chaining and structured details, then adds
// the file-offset context that lets a caller point at the exact byte
// range involved.
type StorageError struct {
	*baseError
	offset   int64  // Byte offset within the database file where the problem happened.
	length   int64  // Length of the region involved, if applicable.
	fileName string // Name of the database file.
	path     string // Path of the database file.
}

// NewStorageError creates a new storage-specific error.
func NewStorageError(err error, code ErrorCode, msg string) *StorageError {
	return &StorageError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the StorageError type.
func (se *StorageError) WithMessage(msg string) *StorageError {
	se.baseError.WithMessage(msg)
	return se
}

// WithCode sets the error code while preserving the StorageError type.
func (se *StorageError) WithCode(code ErrorCode) *StorageError {
	se.baseError.WithCode(code)
	return se
}

// WithDetail adds contextual information while maintaining the StorageError type.
func (se *StorageError) WithDetail(key string, value any) *StorageError {
	se.baseError.WithDetail(key, value)
	return se
}

// WithOffset records the byte position where the error occurred.
func (se *StorageError) WithOffset(offset int64) *StorageError {
	se.offset = offset
	return se
}

// WithLength records the length of the region involved in the error.
func (se *StorageError) WithLength(length int64) *StorageError {
	se.length = length
	return se
}

// WithFileName captures which file was being processed when the error occurred.
func (se *StorageError) WithFileName(fileName string) *StorageError {
	se.fileName = fileName
	return se
}

// WithPath captures which path was being processed when the error occurred.
func (se *StorageError) WithPath(path string) *StorageError {
	se.path = path
	return se
}

// Offset returns the byte offset within the database file where the error
// happened.
func (se *StorageError) Offset() int64 {
	return se.offset
}

// Length returns the length of the region involved in the error.
func (se *StorageError) Length() int64 {
	return se.length
}

// FileName returns the name of the file that was being processed.
func (se *StorageError) FileName() string {
	return se.fileName
}

// Path returns the path of the file that was being processed.
func (se *StorageError) Path() string {
	return se.path
}

// NewCorruptError builds the CORRUPT error for on-disk consistency
// violations: magic mismatch, inconsistent lengths, or a probe chain that
// wraps unboundedly.
func NewCorruptError(offset int64, reason string) *StorageError {
	return NewStorageError(nil, ErrorCodeCorrupt, reason).WithOffset(offset)
}

// NewOOMError builds the OOM error the free-space manager returns when an
// allocation request cannot be satisfied even after one file expansion.
func NewOOMError(size int64) *StorageError {
	return NewStorageError(nil, ErrorCodeOOM, "allocation failed: no free region of requested size").
		WithLength(size)
}
